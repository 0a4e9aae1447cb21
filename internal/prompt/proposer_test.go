package prompt

import (
	"strings"
	"testing"

	"github.com/toolweave/toolweave"
)

func TestBuildProposerPrompt(t *testing.T) {
	input := toolweave.ProposerInput{
		RequestText: "fetch the release page and summarize it",
		Tools: []toolweave.ToolSummary{
			{
				ID:          toolweave.ToolID{Server: "web", Name: "fetcher"},
				Description: "Fetches a web page.",
				Inputs:      "url:string!",
				Outputs:     "content:string!",
			},
			{
				ID:          toolweave.ToolID{Server: "nlp", Name: "summarizer"},
				Description: "Summarizes text.",
				Inputs:      "content:string!",
				Outputs:     "summary:string!",
			},
		},
	}

	rendered := BuildProposerPrompt(input)

	for _, want := range []string{
		"web.fetcher",
		"nlp.summarizer",
		"inputs: url:string!",
		`"fetch the release page and summarize it"`,
		`"steps"`,
		`"explanation"`,
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
}

func TestBuildProposerPrompt_EmptyCatalog(t *testing.T) {
	rendered := BuildProposerPrompt(toolweave.ProposerInput{RequestText: "anything"})
	if !strings.Contains(rendered, "Available tools:") {
		t.Error("prompt should still render the catalog header")
	}
}
