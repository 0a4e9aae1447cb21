// Package embedding maintains the per-tool embedding vectors used for
// capability classification. Each tool carries two vectors: one for what it
// produces and one for what it consumes, so directed compatibility can be
// scored as output-against-input similarity.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/toolweave/toolweave"
)

// entry holds both vectors of one indexed tool.
type entry struct {
	outputVector []float64
	inputVector  []float64
}

// Index stores tool embedding vectors and computes pair similarities
// locally. Embedding text generation follows the tool description plus the
// relevant schema rendering; the external embedder is only consulted on Add.
type Index struct {
	embedder toolweave.Embedder

	mutex   sync.RWMutex
	entries map[toolweave.ToolID]entry
}

// Stats summarizes the index contents.
type Stats struct {
	ToolCount   int `json:"tool_count"`
	VectorCount int `json:"vector_count"`
}

// NewIndex creates an empty index backed by the given embedder.
func NewIndex(embedder toolweave.Embedder) *Index {
	return &Index{
		embedder: embedder,
		entries:  make(map[toolweave.ToolID]entry),
	}
}

// Add embeds the tool's output side and input side and stores both
// vectors. On embedder failure nothing is stored and the tool remains
// unindexed.
func (idx *Index) Add(ctx context.Context, tool toolweave.Tool) error {
	outputVector, err := idx.embedder.Embed(ctx, OutputText(tool))
	if err != nil {
		return toolweave.NewEmbeddingUnavailableError(tool.ID, err)
	}

	inputVector, err := idx.embedder.Embed(ctx, InputText(tool))
	if err != nil {
		return toolweave.NewEmbeddingUnavailableError(tool.ID, err)
	}

	idx.mutex.Lock()
	idx.entries[tool.ID] = entry{outputVector: outputVector, inputVector: inputVector}
	idx.mutex.Unlock()
	return nil
}

// Remove drops the tool's vectors. Removing an unindexed tool is a no-op.
func (idx *Index) Remove(id toolweave.ToolID) {
	idx.mutex.Lock()
	delete(idx.entries, id)
	idx.mutex.Unlock()
}

// Has reports whether the tool is indexed.
func (idx *Index) Has(id toolweave.ToolID) bool {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	_, ok := idx.entries[id]
	return ok
}

// PairSimilarity computes the cosine similarity between the source tool's
// output vector and the target tool's input vector, clamped to [0, 1].
// The second return is false when either tool is not indexed.
func (idx *Index) PairSimilarity(source, target toolweave.ToolID) (float64, bool) {
	idx.mutex.RLock()
	sourceEntry, sourceOK := idx.entries[source]
	targetEntry, targetOK := idx.entries[target]
	idx.mutex.RUnlock()

	if !sourceOK || !targetOK {
		return 0, false
	}
	return CosineSimilarity(sourceEntry.outputVector, targetEntry.inputVector), true
}

// Stats returns the indexed tool and vector counts.
func (idx *Index) Stats() Stats {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return Stats{
		ToolCount:   len(idx.entries),
		VectorCount: len(idx.entries) * 2,
	}
}

// OutputText renders the text embedded for a tool's producing side.
func OutputText(tool toolweave.Tool) string {
	return fmt.Sprintf("%s produces: %s", tool.Description, tool.OutputSchema.String())
}

// InputText renders the text embedded for a tool's consuming side.
func InputText(tool toolweave.Tool) string {
	return fmt.Sprintf("%s consumes: %s", tool.Description, tool.InputSchema.String())
}

// CosineSimilarity computes the cosine similarity of two vectors, clamped
// to [0, 1]. Mismatched dimensions or zero vectors score zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}
