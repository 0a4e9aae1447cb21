// Package adapters bridges external providers (Genkit models, MCP tool
// servers, in-process Go tools) to the broker's interfaces.
package adapters

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// GenkitEmbedderAdapter exposes a Genkit embedder through the
// toolweave.Embedder interface.
type GenkitEmbedderAdapter struct {
	embedder ai.Embedder
}

// NewGenkitEmbedderAdapter creates a new adapter around a Genkit embedder.
func NewGenkitEmbedderAdapter(embedder ai.Embedder) *GenkitEmbedderAdapter {
	return &GenkitEmbedderAdapter{embedder: embedder}
}

// Embed implements the toolweave.Embedder interface.
func (a *GenkitEmbedderAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := ai.Embed(ctx, a.embedder, ai.WithTextDocs(text))
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}

	// Genkit vectors are float32; similarity math downstream is float64.
	vector := make([]float64, len(resp.Embeddings[0].Embedding))
	for i, v := range resp.Embeddings[0].Embedding {
		vector[i] = float64(v)
	}
	return vector, nil
}
