// Package vectorstore provides similarity search over embedded documents.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/shillcollin/agentkit/core"
)

// ScoredDocument is one ranked search hit.
type ScoredDocument struct {
	Score    float64              `json:"score"`
	ID       string               `json:"id"`
	Document core.ContextDocument `json:"document"`
}

// Index finds the documents closest to a query.
type Index interface {
	// TopN returns at most k hits ordered by descending score.
	TopN(ctx context.Context, query string, k int) ([]ScoredDocument, error)
	// TopNIDs is TopN without document payloads.
	TopNIDs(ctx context.Context, query string, k int) ([]ScoredID, error)
}

// ScoredID is a ranked hit without its document.
type ScoredID struct {
	Score float64 `json:"score"`
	ID    string  `json:"id"`
}

// ErrorKind categorizes vector store failures.
type ErrorKind string

const (
	EmbeddingError  ErrorKind = "embedding_error"
	DimensionError  ErrorKind = "dimension_error"
	DuplicateError  ErrorKind = "duplicate_error"
	InvalidDocument ErrorKind = "invalid_document"
)

// Error is returned by index operations.
type Error struct {
	Kind    ErrorKind
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.wrapped != nil {
		return fmt.Sprintf("vectorstore: %s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("vectorstore: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

func newError(kind ErrorKind, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Message: msg, wrapped: wrapped}
}
