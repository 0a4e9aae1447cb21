package adapters

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/core"

	"github.com/toolweave/toolweave"
)

// GenkitProposerAdapter uses a Genkit Flow to implement the
// toolweave.SequenceProposer interface. The flow's answer is untrusted;
// graph validation happens in the planner, and proposal caching lives
// there too so every proposer implementation benefits from it.
type GenkitProposerAdapter struct {
	proposerFlow *core.Flow[*toolweave.ProposerInput, *toolweave.ProposedSequence, struct{}]
}

// NewGenkitProposerAdapter creates a new adapter for the proposer flow.
func NewGenkitProposerAdapter(proposerFlow *core.Flow[*toolweave.ProposerInput, *toolweave.ProposedSequence, struct{}]) *GenkitProposerAdapter {
	return &GenkitProposerAdapter{proposerFlow: proposerFlow}
}

// ProposeSequence implements the toolweave.SequenceProposer interface.
func (a *GenkitProposerAdapter) ProposeSequence(ctx context.Context, input toolweave.ProposerInput) (*toolweave.ProposedSequence, error) {
	sequence, err := a.proposerFlow.Run(ctx, &input)
	if err != nil {
		return nil, fmt.Errorf("proposer flow execution failed: %w", err)
	}
	if sequence == nil || len(sequence.Steps) == 0 {
		return nil, fmt.Errorf("proposer flow returned an empty sequence")
	}
	return sequence, nil
}
