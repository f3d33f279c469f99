package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/shillcollin/agentkit/core"
)

// KeywordEmbedder embeds text as keyword counts over a fixed vocabulary, so
// similarity follows shared words.
type KeywordEmbedder struct {
	Vocabulary []string
	Batch      int

	mu      sync.Mutex
	batches [][]string
}

// NewKeywordEmbedder returns an embedder over vocabulary.
func NewKeywordEmbedder(vocabulary ...string) *KeywordEmbedder {
	return &KeywordEmbedder{Vocabulary: vocabulary}
}

// Embed implements core.EmbeddingModel.
func (e *KeywordEmbedder) Embed(ctx context.Context, texts []string) ([]core.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()

	out := make([]core.Embedding, len(texts))
	for i, text := range texts {
		words := strings.Fields(strings.ToLower(text))
		vec := make([]float64, len(e.Vocabulary))
		for j, term := range e.Vocabulary {
			for _, w := range words {
				if strings.Trim(w, ".,?!") == term {
					vec[j]++
				}
			}
		}
		out[i] = core.Embedding{Document: text, Vector: vec}
	}
	return out, nil
}

// Dimensions implements core.EmbeddingModel.
func (e *KeywordEmbedder) Dimensions() int { return len(e.Vocabulary) }

// MaxBatch implements core.EmbeddingModel.
func (e *KeywordEmbedder) MaxBatch() int {
	if e.Batch <= 0 {
		return 16
	}
	return e.Batch
}

// Batches returns the text batches passed to Embed.
func (e *KeywordEmbedder) Batches() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.batches...)
}
