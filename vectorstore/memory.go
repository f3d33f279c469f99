package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/shillcollin/agentkit/core"
)

type entry struct {
	doc    core.ContextDocument
	vector []float64
	norm   float64
}

// MemoryIndex keeps embeddings in memory and ranks by cosine similarity.
// Equal scores keep insertion order.
type MemoryIndex struct {
	embedder core.EmbeddingModel

	mu      sync.RWMutex
	entries []entry
	ids     map[string]int
	dims    int
}

// NewMemoryIndex returns an empty index embedding with embedder.
func NewMemoryIndex(embedder core.EmbeddingModel) *MemoryIndex {
	return &MemoryIndex{embedder: embedder, ids: map[string]int{}, dims: embedder.Dimensions()}
}

// Len returns the number of indexed documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Add embeds docs in batches of the embedder's MaxBatch and indexes them.
// Re-adding an ID replaces the earlier document in place. Add is all or
// nothing: when any batch fails nothing is indexed.
func (m *MemoryIndex) Add(ctx context.Context, docs ...core.ContextDocument) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return newError(InvalidDocument, "document id required", nil)
		}
	}
	batch := m.embedder.MaxBatch()
	if batch <= 0 {
		batch = len(docs)
	}
	vectors := make([][]float64, 0, len(docs))
	for start := 0; start < len(docs); start += batch {
		chunk := docs[start:min(start+batch, len(docs))]
		texts := make([]string, len(chunk))
		for i, doc := range chunk {
			texts[i] = doc.Text
		}
		embeddings, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return newError(EmbeddingError, "embed documents", err)
		}
		if len(embeddings) != len(chunk) {
			return newError(EmbeddingError, fmt.Sprintf("expected %d embeddings, got %d", len(chunk), len(embeddings)), nil)
		}
		for _, e := range embeddings {
			vectors = append(vectors, e.Vector)
		}
	}
	return m.insert(docs, vectors)
}

func (m *MemoryIndex) insert(docs []core.ContextDocument, vectors [][]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dims := m.dims
	for i, vec := range vectors {
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return newError(DimensionError, fmt.Sprintf("document %s has %d dimensions, want %d", docs[i].ID, len(vec), dims), nil)
		}
	}
	m.dims = dims
	for i, doc := range docs {
		e := entry{doc: doc, vector: vectors[i], norm: norm(vectors[i])}
		if idx, ok := m.ids[doc.ID]; ok {
			m.entries[idx] = e
			continue
		}
		m.ids[doc.ID] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return nil
}

// TopN implements Index.
func (m *MemoryIndex) TopN(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	ranked, err := m.rank(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredDocument, len(ranked))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, r := range ranked {
		doc := m.entries[r.idx].doc
		out[i] = ScoredDocument{Score: r.score, ID: doc.ID, Document: doc}
	}
	return out, nil
}

// TopNIDs implements Index.
func (m *MemoryIndex) TopNIDs(ctx context.Context, query string, k int) ([]ScoredID, error) {
	ranked, err := m.rank(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredID, len(ranked))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, r := range ranked {
		out[i] = ScoredID{Score: r.score, ID: m.entries[r.idx].doc.ID}
	}
	return out, nil
}

type ranked struct {
	idx   int
	score float64
}

func (m *MemoryIndex) rank(ctx context.Context, query string, k int) ([]ranked, error) {
	if k <= 0 {
		return []ranked{}, nil
	}
	m.mu.RLock()
	empty := len(m.entries) == 0
	m.mu.RUnlock()
	if empty {
		return []ranked{}, nil
	}

	embeddings, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, newError(EmbeddingError, "embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, newError(EmbeddingError, fmt.Sprintf("expected 1 query embedding, got %d", len(embeddings)), nil)
	}
	q := embeddings[0].Vector
	qNorm := norm(q)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(q) != m.dims {
		return nil, newError(DimensionError, fmt.Sprintf("query has %d dimensions, want %d", len(q), m.dims), nil)
	}
	scores := make([]ranked, len(m.entries))
	for i, e := range m.entries {
		scores[i] = ranked{idx: i, score: cosine(q, qNorm, e.vector, e.norm)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k < len(scores) {
		scores = scores[:k]
	}
	return scores, nil
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a []float64, aNorm float64, b []float64, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (aNorm * bNorm)
}
