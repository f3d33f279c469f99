package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/testutil"
)

func seededIndex(t *testing.T, embedder *testutil.KeywordEmbedder) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex(embedder)
	err := idx.Add(context.Background(),
		core.ContextDocument{ID: "cats", Text: "cats purr and cats nap"},
		core.ContextDocument{ID: "dogs", Text: "dogs bark"},
		core.ContextDocument{ID: "pets", Text: "cats and dogs are pets"},
	)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return idx
}

func TestMemoryIndexTopN(t *testing.T) {
	idx := seededIndex(t, testutil.NewKeywordEmbedder("cats", "dogs", "pets"))
	hits, err := idx.TopN(context.Background(), "tell me about cats", 2)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "cats" || hits[1].ID != "pets" {
		t.Fatalf("unexpected ranking %+v", hits)
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("scores must descend: %+v", hits)
	}
	if hits[0].Document.Text != "cats purr and cats nap" {
		t.Fatalf("document payload missing: %+v", hits[0])
	}
}

func TestMemoryIndexEdgeCases(t *testing.T) {
	idx := seededIndex(t, testutil.NewKeywordEmbedder("cats", "dogs", "pets"))
	cases := []struct {
		name string
		k    int
		want int
	}{
		{"zero", 0, 0},
		{"negative", -1, 0},
		{"more than stored", 10, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hits, err := idx.TopNIDs(context.Background(), "cats", tc.k)
			if err != nil {
				t.Fatalf("top n ids: %v", err)
			}
			if len(hits) != tc.want {
				t.Fatalf("expected %d hits, got %d", tc.want, len(hits))
			}
		})
	}
}

func TestMemoryIndexTiesKeepInsertionOrder(t *testing.T) {
	idx := NewMemoryIndex(testutil.NewKeywordEmbedder("a"))
	if err := idx.Add(context.Background(),
		core.ContextDocument{ID: "first", Text: "a"},
		core.ContextDocument{ID: "second", Text: "a"},
		core.ContextDocument{ID: "third", Text: "a"},
	); err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, _ := idx.TopNIDs(context.Background(), "a", 3)
	for i, want := range []string{"first", "second", "third"} {
		if hits[i].ID != want {
			t.Fatalf("expected insertion order, got %+v", hits)
		}
	}
}

func TestMemoryIndexBatchesEmbeddings(t *testing.T) {
	embedder := testutil.NewKeywordEmbedder("x")
	embedder.Batch = 2
	idx := NewMemoryIndex(embedder)
	docs := make([]core.ContextDocument, 5)
	for i := range docs {
		docs[i] = core.ContextDocument{ID: string(rune('a' + i)), Text: "x"}
	}
	if err := idx.Add(context.Background(), docs...); err != nil {
		t.Fatalf("add: %v", err)
	}
	batches := embedder.Batches()
	if len(batches) != 3 || len(batches[2]) != 1 {
		t.Fatalf("expected batches of 2,2,1 got %v", batches)
	}
	if idx.Len() != 5 {
		t.Fatalf("expected 5 documents, got %d", idx.Len())
	}
}

func TestMemoryIndexReplacesDuplicateID(t *testing.T) {
	idx := NewMemoryIndex(testutil.NewKeywordEmbedder("x", "y"))
	ctx := context.Background()
	_ = idx.Add(ctx, core.ContextDocument{ID: "doc", Text: "x"})
	_ = idx.Add(ctx, core.ContextDocument{ID: "doc", Text: "y"})
	hits, _ := idx.TopN(ctx, "y", 1)
	if idx.Len() != 1 || hits[0].Document.Text != "y" {
		t.Fatalf("expected replaced document, got %+v", hits)
	}
}

type failingEmbedder struct{ testutil.KeywordEmbedder }

func (*failingEmbedder) Embed(context.Context, []string) ([]core.Embedding, error) {
	return nil, errors.New("quota exceeded")
}

func TestMemoryIndexEmbeddingError(t *testing.T) {
	idx := NewMemoryIndex(&failingEmbedder{})
	err := idx.Add(context.Background(), core.ContextDocument{ID: "a", Text: "x"})
	var vErr *Error
	if !errors.As(err, &vErr) || vErr.Kind != EmbeddingError {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if err := idx.Add(context.Background(), core.ContextDocument{Text: "no id"}); err == nil {
		t.Fatalf("expected invalid document error")
	}
}

// lengthEmbedder returns vectors as long as the input text, so mixed lengths
// produce a dimension mismatch.
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) ([]core.Embedding, error) {
	out := make([]core.Embedding, len(texts))
	for i, text := range texts {
		vec := make([]float64, len(text))
		for j := range vec {
			vec[j] = 1
		}
		out[i] = core.Embedding{Document: text, Vector: vec}
	}
	return out, nil
}

func (lengthEmbedder) Dimensions() int { return 0 }
func (lengthEmbedder) MaxBatch() int   { return 1 }

func TestMemoryIndexAddIsAllOrNothing(t *testing.T) {
	idx := NewMemoryIndex(lengthEmbedder{})
	err := idx.Add(context.Background(),
		core.ContextDocument{ID: "a", Text: "ab"},
		core.ContextDocument{ID: "b", Text: "cd"},
		core.ContextDocument{ID: "c", Text: "xyz"},
	)
	var vErr *Error
	if !errors.As(err, &vErr) || vErr.Kind != DimensionError {
		t.Fatalf("expected dimension error, got %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("failed add must not index anything, got %d documents", idx.Len())
	}
	if err := idx.Add(context.Background(), core.ContextDocument{ID: "c", Text: "xyz"}); err != nil {
		t.Fatalf("dimensions should not be fixed by a failed add: %v", err)
	}
}
