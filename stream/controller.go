package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/shillcollin/agentkit/core"
)

// StreamingResult delivers a normalized stream to a single consumer with
// cooperative pause, resume and cancel. A background pump keeps reading the
// transport while paused, so queued events are never dropped.
type StreamingResult struct {
	raw    *core.RawStream
	norm   *Normalizer
	cancel context.CancelFunc
	onDone func(*core.CompletionResponse, error)

	mu        sync.Mutex
	queue     []core.StreamEvent
	changed   chan struct{}
	paused    bool
	cancelled bool
	done      bool
	err       error
	response  *core.CompletionResponse

	pumpDone chan struct{}
}

// Option customises a StreamingResult.
type Option func(*StreamingResult)

// WithCancelFunc registers the function that aborts the underlying request.
func WithCancelFunc(cancel context.CancelFunc) Option {
	return func(s *StreamingResult) { s.cancel = cancel }
}

// WithNormalizer supplies a preconfigured normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(s *StreamingResult) { s.norm = n }
}

// OnComplete registers a callback invoked once the pump stops, with the
// aggregated response on success.
func OnComplete(fn func(*core.CompletionResponse, error)) Option {
	return func(s *StreamingResult) { s.onDone = fn }
}

// Start begins pumping raw into a new StreamingResult.
func Start(raw *core.RawStream, opts ...Option) *StreamingResult {
	s := &StreamingResult{
		raw:      raw,
		changed:  make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.norm == nil {
		s.norm = NewNormalizer()
	}
	go s.pump()
	return s
}

// ID returns the stream identifier stamped on every event.
func (s *StreamingResult) ID() string { return s.norm.StreamID() }

// Next returns the next event in arrival order. It returns io.EOF after the final
// event, core.ErrStreamCancelled once Cancel was called, or the stream's error
// after all events preceding it were delivered. While paused it waits for Resume,
// Cancel or ctx.
func (s *StreamingResult) Next(ctx context.Context) (core.StreamEvent, error) {
	for {
		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return core.StreamEvent{}, core.ErrStreamCancelled
		}
		if !s.paused {
			if len(s.queue) > 0 {
				ev := s.queue[0]
				s.queue[0] = core.StreamEvent{}
				s.queue = s.queue[1:]
				s.mu.Unlock()
				return ev, nil
			}
			if s.done {
				err := s.err
				s.mu.Unlock()
				if err == nil {
					return core.StreamEvent{}, io.EOF
				}
				return core.StreamEvent{}, err
			}
		}
		wait := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return core.StreamEvent{}, ctx.Err()
		case <-wait:
		}
	}
}

// Pause stops delivery. Events keep being received and queued.
func (s *StreamingResult) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.broadcastLocked()
}

// Resume releases queued events in their original order.
func (s *StreamingResult) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.broadcastLocked()
}

// Paused reports whether delivery is suspended.
func (s *StreamingResult) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Cancel aborts the stream. The next call to Next returns core.ErrStreamCancelled.
func (s *StreamingResult) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.queue = nil
	s.broadcastLocked()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	_ = s.raw.Close()
}

// Close cancels the stream if it is still running and waits for the pump to exit.
func (s *StreamingResult) Close() error {
	s.mu.Lock()
	running := !s.done
	s.mu.Unlock()
	if running {
		s.Cancel()
	}
	<-s.pumpDone
	return nil
}

// Wait blocks until the pump stopped or ctx ends, then returns the stream error.
func (s *StreamingResult) Wait(ctx context.Context) error {
	select {
	case <-s.pumpDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return core.ErrStreamCancelled
	}
	return s.err
}

// Response returns the aggregated answer once the stream completed successfully.
func (s *StreamingResult) Response() (*core.CompletionResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response, s.response != nil
}

func (s *StreamingResult) pump() {
	defer close(s.pumpDone)
	defer s.raw.Close()

	for {
		choice, err := s.raw.Next()
		if errors.Is(err, io.EOF) {
			events, ferr := s.norm.Finish()
			s.enqueue(events)
			s.finish(ferr)
			return
		}
		if err != nil {
			s.finish(err)
			return
		}
		events, err := s.norm.Push(choice)
		s.enqueue(events)
		if err != nil {
			s.finish(err)
			return
		}
		if s.norm.Finished() {
			s.finish(nil)
			return
		}
	}
}

func (s *StreamingResult) enqueue(events []core.StreamEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.queue = append(s.queue, events...)
	s.broadcastLocked()
}

func (s *StreamingResult) finish(err error) {
	s.mu.Lock()
	if s.cancelled {
		err = core.ErrStreamCancelled
	}
	s.done = true
	s.err = err
	if err == nil {
		s.response = s.norm.Response()
	}
	resp := s.response
	s.broadcastLocked()
	s.mu.Unlock()

	if s.cancel != nil && err == nil {
		s.cancel()
	}
	if s.onDone != nil {
		s.onDone(resp, err)
	}
}

func (s *StreamingResult) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Collect drains the stream and returns the aggregated response.
func Collect(ctx context.Context, s *StreamingResult) (*core.CompletionResponse, error) {
	for {
		_, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	resp, ok := s.Response()
	if !ok {
		return nil, core.ErrStreamClosed
	}
	return resp, nil
}

// TextTo writes text events to w as they arrive and returns the aggregated response.
func TextTo(ctx context.Context, s *StreamingResult, w io.Writer) (*core.CompletionResponse, error) {
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ev.Type == core.EventText {
			if _, err := io.WriteString(w, ev.Text); err != nil {
				return nil, err
			}
		}
	}
	resp, ok := s.Response()
	if !ok {
		return nil, core.ErrStreamClosed
	}
	return resp, nil
}
