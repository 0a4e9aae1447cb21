package graph

import (
	"github.com/toolweave/toolweave"
	"github.com/toolweave/toolweave/internal/embedding"
)

// Stats summarizes the current graph snapshot and the embedding index
// behind it.
type Stats struct {
	SnapshotVersion   uint64          `json:"snapshot_version"`
	ToolCount         int             `json:"tool_count"`
	EdgeCount         int             `json:"edge_count"`
	DirectEdges       int             `json:"direct_edges"`
	TranslatableEdges int             `json:"translatable_edges"`
	AverageConfidence float64         `json:"average_confidence"`
	Index             embedding.Stats `json:"index"`
}

// Stats computes summary statistics over the current snapshot.
func (g *Graph) Stats() Stats {
	snapshot := g.Snapshot()

	stats := Stats{
		SnapshotVersion: snapshot.Version,
		ToolCount:       snapshot.ToolCount(),
		EdgeCount:       snapshot.EdgeCount(),
		Index:           g.index.Stats(),
	}

	var confidenceSum float64
	for _, edge := range snapshot.Edges() {
		confidenceSum += edge.Confidence
		switch edge.Kind {
		case toolweave.EdgeDirect:
			stats.DirectEdges++
		case toolweave.EdgeTranslatable:
			stats.TranslatableEdges++
		}
	}
	if stats.EdgeCount > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.EdgeCount)
	}

	return stats
}
