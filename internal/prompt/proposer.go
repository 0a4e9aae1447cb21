// Package prompt builds the model-facing prompt and Genkit flow for
// sequence proposal.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"

	"github.com/toolweave/toolweave"
)

const proposerFlowName = "proposeSequence"

// BuildProposerPrompt renders the prompt for one request: the tool catalog
// with declared schemas, the expected JSON shape, and the request itself.
func BuildProposerPrompt(input toolweave.ProposerInput) string {
	var b strings.Builder

	b.WriteString("You select tools from a catalog to satisfy a user request.\n\n")
	b.WriteString("Available tools:\n")
	for _, tool := range input.Tools {
		fmt.Fprintf(&b, "- %s: %s (inputs: %s; outputs: %s)\n",
			tool.ID, tool.Description, tool.Inputs, tool.Outputs)
	}

	b.WriteString("\nPropose an ordered sequence of tool invocations where each tool's\n")
	b.WriteString("output feeds the next tool's input. Use only tools from the catalog.\n")
	b.WriteString("Answer with a JSON object of this shape:\n\n")
	b.WriteString(`{"steps": [{"server": "web", "tool": "fetch_page", "reason": "..."}], "explanation": "..."}`)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Request: %q\nJSON sequence:\n", input.RequestText)
	return b.String()
}

// DefineProposerFlow registers the Genkit flow that asks the configured
// model for a candidate tool sequence. The flow's answer is untrusted and
// is validated against the capability graph by the planner.
func DefineProposerFlow(g *genkit.Genkit) *core.Flow[*toolweave.ProposerInput, *toolweave.ProposedSequence, struct{}] {
	return genkit.DefineFlow(g, proposerFlowName,
		func(ctx context.Context, input *toolweave.ProposerInput) (*toolweave.ProposedSequence, error) {
			sequence, _, err := genkit.GenerateData[toolweave.ProposedSequence](ctx, g,
				ai.WithPrompt(BuildProposerPrompt(*input)))
			if err != nil {
				return nil, fmt.Errorf("proposer generation failed: %w", err)
			}
			if sequence == nil || len(sequence.Steps) == 0 {
				return nil, fmt.Errorf("model returned an empty sequence")
			}
			return sequence, nil
		})
}
