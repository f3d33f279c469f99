package core

import "context"

// CompletionModel is implemented by every provider adapter. Completion returns a
// full response; Stream returns the provider's decoded chunks for normalization.
type CompletionModel interface {
	Completion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Stream(ctx context.Context, req CompletionRequest) (*RawStream, error)
}

// EmbeddingModel turns text into vectors for similarity search.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([]Embedding, error)
	// Dimensions reports the vector width, or 0 when unknown.
	Dimensions() int
	// MaxBatch is the number of texts accepted per Embed call.
	MaxBatch() int
}

// Embedding pairs a source text with its vector.
type Embedding struct {
	Document string    `json:"document"`
	Vector   []float64 `json:"vector"`
}
