package planner

import (
	"context"
	"sort"
	"strings"

	"github.com/toolweave/toolweave"
)

// KeywordProposer is an offline SequenceProposer that matches request
// keywords against tool names and descriptions. It needs no external
// provider, which makes it useful as a fallback and in tests.
type KeywordProposer struct{}

// NewKeywordProposer creates a KeywordProposer.
func NewKeywordProposer() *KeywordProposer {
	return &KeywordProposer{}
}

// ProposeSequence scores every tool by keyword overlap with the request and
// returns the matching tools ordered by where their keywords first appear
// in the request text, so "fetch the page then summarize it" proposes the
// fetcher before the summarizer.
func (kp *KeywordProposer) ProposeSequence(ctx context.Context, input toolweave.ProposerInput) (*toolweave.ProposedSequence, error) {
	request := strings.ToLower(input.RequestText)
	requestTokens := tokenize(request)

	type match struct {
		tool     toolweave.ToolSummary
		position int
		score    int
	}

	var matches []match
	for _, tool := range input.Tools {
		keywords := tokenize(strings.ToLower(tool.ID.Name + " " + tool.Description))

		score := 0
		position := len(request)
		for keyword := range keywords {
			if !requestTokens[keyword] {
				continue
			}
			score++
			if idx := strings.Index(request, keyword); idx >= 0 && idx < position {
				position = idx
			}
		}

		if score > 0 {
			matches = append(matches, match{tool: tool, position: position, score: score})
		}
	}

	if len(matches) == 0 {
		return &toolweave.ProposedSequence{}, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].position != matches[j].position {
			return matches[i].position < matches[j].position
		}
		return matches[i].score > matches[j].score
	})

	steps := make([]toolweave.ProposedStep, 0, len(matches))
	for _, m := range matches {
		steps = append(steps, toolweave.ProposedStep{
			Server: m.tool.ID.Server,
			Tool:   m.tool.ID.Name,
			Reason: "keyword match",
		})
	}

	return &toolweave.ProposedSequence{
		Steps:       steps,
		Explanation: "keyword fallback proposal",
	}, nil
}

// stopWords are tokens too common to signal a tool match.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "then": true,
	"it": true, "of": true, "to": true, "for": true, "with": true,
	"that": true, "this": true, "is": true, "in": true, "on": true,
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(token) < 2 || stopWords[token] {
			continue
		}
		tokens[token] = true
	}
	return tokens
}
