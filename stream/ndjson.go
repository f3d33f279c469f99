package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/shillcollin/agentkit/core"
)

// NDJSON writes s to w as newline-delimited JSON. A failure is written as a
// {"type":"error"} line before being returned.
func NDJSON(ctx context.Context, w http.ResponseWriter, s *StreamingResult, policy Policy) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	return pipe(ctx, NewNDJSONWriter(w), s, policy)
}

// NDJSONWriter encodes one event per line and flushes after each.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   http.ResponseWriter
}

// NewNDJSONWriter returns a writer on w.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w), w: w}
}

// Write sends event as one line.
func (n *NDJSONWriter) Write(event core.StreamEvent) error {
	return n.line(event)
}

// WriteError sends an error line.
func (n *NDJSONWriter) WriteError(payload errorPayload) error {
	return n.line(payload)
}

func (n *NDJSONWriter) line(v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	if f, ok := n.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
