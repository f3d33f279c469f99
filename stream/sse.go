package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shillcollin/agentkit/core"
)

const (
	defaultSSEBuffer = 16 * 1024
	minHeartbeatTick = time.Millisecond
)

// eventSink is a wire encoding for forwarded stream events.
type eventSink interface {
	Write(core.StreamEvent) error
	WriteError(errorPayload) error
}

// pipe forwards s to sink until the final event, filtered by policy. A stream
// failure is written through sink before being returned.
func pipe(ctx context.Context, sink eventSink, s *StreamingResult, policy Policy) error {
	for {
		event, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if werr := sink.WriteError(errorEvent(policy, err)); werr != nil {
				return errors.Join(err, werr)
			}
			return err
		}
		if out, ok := filterEvent(policy, event); ok {
			if err := sink.Write(out); err != nil {
				return err
			}
		}
	}
}

// SSE writes s to w as Server-Sent Events with the zero Policy.
func SSE(ctx context.Context, w http.ResponseWriter, s *StreamingResult) error {
	return SSEWithPolicy(ctx, w, s, Policy{})
}

// SSEWithPolicy writes s to w as Server-Sent Events. Each frame carries the
// event type as its name and the event sequence number as its id. With
// policy.Heartbeat set, a comment frame is sent whenever the stream is idle
// that long.
func SSEWithPolicy(ctx context.Context, w http.ResponseWriter, s *StreamingResult, policy Policy) error {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("X-Accel-Buffering", "no")

	writer := newSSEWriter(w, policy.BufferSize)
	if policy.Heartbeat > 0 {
		stop := writer.keepAlive(policy.Heartbeat)
		defer stop()
	}
	return pipe(ctx, writer, s, policy)
}

// SSEWriter encodes events as text/event-stream frames and flushes after
// each one. It is safe for concurrent use.
type SSEWriter struct {
	mu       sync.Mutex
	buf      *bufio.Writer
	w        http.ResponseWriter
	lastSent time.Time
}

func newSSEWriter(w http.ResponseWriter, size int) *SSEWriter {
	if size <= 0 {
		size = defaultSSEBuffer
	}
	return &SSEWriter{buf: bufio.NewWriterSize(w, size), w: w, lastSent: time.Now()}
}

// NewSSEWriter returns a writer on w.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return newSSEWriter(w, defaultSSEBuffer)
}

// Write sends event as one frame.
func (s *SSEWriter) Write(event core.StreamEvent) error {
	return s.frame(string(event.Type), strconv.Itoa(event.Seq), event)
}

// WriteError sends an "error" frame.
func (s *SSEWriter) WriteError(payload errorPayload) error {
	return s.frame("error", "", payload)
}

func (s *SSEWriter) frame(name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		fmt.Fprintf(s.buf, "id: %s\n", id)
	}
	fmt.Fprintf(s.buf, "event: %s\ndata: %s\n\n", name, data)
	return s.flushLocked()
}

// comment sends a ": ping" frame, which clients ignore.
func (s *SSEWriter) comment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.buf.WriteString(": ping\n\n"); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *SSEWriter) flushLocked() error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	s.lastSent = time.Now()
	return nil
}

// keepAlive sends a comment when nothing was written for interval. The
// idle check runs every interval/2, but no more often than minHeartbeatTick.
// The returned func stops it and waits for the goroutine to exit.
func (s *SSEWriter) keepAlive(interval time.Duration) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(interval/2, minHeartbeatTick))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				s.mu.Lock()
				idle := now.Sub(s.lastSent) >= interval
				s.mu.Unlock()
				if idle && s.comment() != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
