// Package planner turns natural-language requests into graph-validated
// pipeline plans. The sequence proposal comes from an untrusted external
// proposer; everything it returns is checked against the graph snapshot
// before it becomes a plan.
package planner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/toolweave/toolweave"
)

// Planner implements toolweave.Planner.
type Planner struct {
	proposer toolweave.SequenceProposer
	cache    toolweave.Cache
}

// Option configures a Planner.
type Option func(*Planner)

// WithCache sets a cache for proposer results.
func WithCache(cache toolweave.Cache) Option {
	return func(p *Planner) {
		p.cache = cache
	}
}

// New creates a Planner backed by the given sequence proposer.
func New(proposer toolweave.SequenceProposer, options ...Option) *Planner {
	p := &Planner{proposer: proposer}
	for _, option := range options {
		option(p)
	}
	return p
}

// Plan proposes a tool sequence for the request and validates it against
// the snapshot: every referenced tool must be registered and every adjacent
// pair must be connected by an edge. Validation is all-or-nothing; any
// violation surfaces as PLAN_INFEASIBLE.
func (p *Planner) Plan(ctx context.Context, requestText string, snapshot *toolweave.GraphSnapshot) (*toolweave.PipelinePlan, error) {
	if strings.TrimSpace(requestText) == "" {
		return nil, toolweave.NewPlanInfeasibleError("request text is empty", nil)
	}
	if snapshot.ToolCount() == 0 {
		return nil, toolweave.NewPlanInfeasibleError("no tools are registered", nil)
	}

	proposal, err := p.propose(ctx, requestText, snapshot)
	if err != nil {
		return nil, err
	}

	return p.validate(requestText, proposal, snapshot)
}

// propose fetches a sequence proposal, consulting the cache first. The
// cache key covers the request and the tool-set fingerprint so a changed
// registry never serves a stale proposal.
func (p *Planner) propose(ctx context.Context, requestText string, snapshot *toolweave.GraphSnapshot) (*toolweave.ProposedSequence, error) {
	input := toolweave.ProposerInput{
		RequestText: requestText,
		Tools:       snapshot.Summaries(),
	}

	cacheKey := p.cacheKey(input)
	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, cacheKey); err == nil {
			if proposal, ok := cached.(*toolweave.ProposedSequence); ok {
				return proposal, nil
			}
		}
	}

	proposal, err := p.proposer.ProposeSequence(ctx, input)
	if err != nil {
		return nil, toolweave.NewPlanInfeasibleError("sequence proposer failed", err)
	}
	if proposal == nil || len(proposal.Steps) == 0 {
		return nil, toolweave.NewPlanInfeasibleError("proposer returned an empty sequence", nil)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, proposal); err != nil {
			log.Printf("Failed to cache proposal (key: %s): %v", cacheKey, err)
		}
	}

	return proposal, nil
}

// validate turns an untrusted proposal into a plan or rejects it outright.
func (p *Planner) validate(requestText string, proposal *toolweave.ProposedSequence, snapshot *toolweave.GraphSnapshot) (*toolweave.PipelinePlan, error) {
	steps := make([]toolweave.PlanStep, 0, len(proposal.Steps))
	confidence := 1.0

	var previous toolweave.ToolID
	for i, proposed := range proposal.Steps {
		id := toolweave.ToolID{Server: proposed.Server, Name: proposed.Tool}
		if _, ok := snapshot.Tool(id); !ok {
			return nil, toolweave.NewPlanInfeasibleError(
				fmt.Sprintf("proposed step %d references unknown tool '%s'", i+1, id), nil)
		}

		step := toolweave.PlanStep{Tool: id, Justification: proposed.Reason}

		if i > 0 {
			edge, ok := snapshot.Edge(previous, id)
			if !ok {
				return nil, toolweave.NewPlanInfeasibleError(
					fmt.Sprintf("no capability edge from '%s' to '%s'", previous, id), nil)
			}
			step.Edge = &edge
			if edge.Confidence < confidence {
				confidence = edge.Confidence
			}
		}

		steps = append(steps, step)
		previous = id
	}

	// Single-step plans traverse no edge and carry full confidence.
	if len(steps) < 2 {
		confidence = 1.0
	}

	return &toolweave.PipelinePlan{
		RequestText:     requestText,
		Steps:           steps,
		Confidence:      confidence,
		Explanation:     proposal.Explanation,
		SnapshotVersion: snapshot.Version,
	}, nil
}

// cacheKey creates a stable key for caching proposer results.
func (p *Planner) cacheKey(input toolweave.ProposerInput) string {
	inputBytes, err := json.Marshal(input)
	if err != nil {
		log.Printf("Failed to marshal proposer input for cache key: %v", err)
		return "planner:" + input.RequestText
	}

	hasher := sha1.New()
	hasher.Write(inputBytes)
	return "planner:" + hex.EncodeToString(hasher.Sum(nil))
}
