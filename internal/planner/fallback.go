package planner

import (
	"context"
	"log"

	"github.com/toolweave/toolweave"
)

// FallbackProposer tries a primary proposer and falls back to a secondary
// one when the primary fails or returns no steps. The usual pairing is a
// model-backed proposer with a KeywordProposer behind it, so a malformed
// model response still yields a candidate sequence for graph validation.
type FallbackProposer struct {
	primary  toolweave.SequenceProposer
	fallback toolweave.SequenceProposer
}

// NewFallbackProposer creates a FallbackProposer.
func NewFallbackProposer(primary, fallback toolweave.SequenceProposer) *FallbackProposer {
	return &FallbackProposer{primary: primary, fallback: fallback}
}

// ProposeSequence delegates to the primary proposer and consults the
// fallback only when the primary produced nothing usable. Context
// cancellation is not recoverable and short-circuits the fallback.
func (fp *FallbackProposer) ProposeSequence(ctx context.Context, input toolweave.ProposerInput) (*toolweave.ProposedSequence, error) {
	proposal, err := fp.primary.ProposeSequence(ctx, input)
	if err == nil && proposal != nil && len(proposal.Steps) > 0 {
		return proposal, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err != nil {
		log.Printf("Primary proposer failed, using fallback: %v", err)
	} else {
		log.Printf("Primary proposer returned no steps, using fallback")
	}
	return fp.fallback.ProposeSequence(ctx, input)
}
