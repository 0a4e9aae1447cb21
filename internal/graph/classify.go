package graph

import (
	"github.com/toolweave/toolweave"
)

// classifyPair is one ordered source→target candidate.
type classifyPair struct {
	source toolweave.Tool
	target toolweave.Tool
}

// classify decides whether the source tool's output can feed the target
// tool's input. Structural superset compatibility wins outright as a direct
// edge; otherwise a sufficiently similar pair with a derivable field
// mapping becomes a translatable edge. Everything else gets no edge.
func (g *Graph) classify(source, target toolweave.Tool) (toolweave.CapabilityEdge, bool) {
	if toolweave.SupersetCompatible(source.OutputSchema, target.InputSchema) {
		return toolweave.CapabilityEdge{
			Source:     source.ID,
			Target:     target.ID,
			Kind:       toolweave.EdgeDirect,
			Confidence: 1.0,
		}, true
	}

	similarity, ok := g.index.PairSimilarity(source.ID, target.ID)
	if !ok || similarity < g.threshold {
		return toolweave.CapabilityEdge{}, false
	}

	// A translatable edge without a usable field mapping would only
	// produce translation failures at run time, so it is not recorded.
	hint := toolweave.DeriveHint(source.OutputSchema, target.InputSchema)
	if hint == nil {
		return toolweave.CapabilityEdge{}, false
	}

	return toolweave.CapabilityEdge{
		Source:     source.ID,
		Target:     target.ID,
		Kind:       toolweave.EdgeTranslatable,
		Confidence: similarity,
		Hint:       hint,
	}, true
}
