package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shillcollin/agentkit/core"
)

// chanStream feeds raw choices from a channel so tests control arrival timing.
func chanStream(ch <-chan core.RawChoice) *core.RawStream {
	return core.NewRawStream(func() (core.RawChoice, error) {
		c, ok := <-ch
		if !ok {
			return core.RawChoice{}, io.EOF
		}
		return c, nil
	}, nil)
}

func nextWithin(t *testing.T, s *StreamingResult, d time.Duration) (core.StreamEvent, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Next(ctx)
}

func TestStreamingResultPauseResumeKeepsOrder(t *testing.T) {
	ch := make(chan core.RawChoice)
	s := Start(chanStream(ch))
	defer s.Close()

	ch <- core.TextChoice("one")
	if ev, err := nextWithin(t, s, time.Second); err != nil || ev.Text != "one" {
		t.Fatalf("unexpected first event %+v %v", ev, err)
	}

	s.Pause()
	ch <- core.TextChoice("two")
	ch <- core.TextChoice("three")
	ch <- core.TextChoice("four")

	if _, err := nextWithin(t, s, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("paused stream must not deliver, got %v", err)
	}

	s.Resume()
	for _, want := range []string{"two", "three", "four"} {
		ev, err := nextWithin(t, s, time.Second)
		if err != nil || ev.Text != want {
			t.Fatalf("expected %q after resume, got %+v %v", want, ev, err)
		}
	}
	close(ch)
	if ev, err := nextWithin(t, s, time.Second); err != nil || ev.Type != core.EventFinal {
		t.Fatalf("expected final, got %+v %v", ev, err)
	}
	if _, err := nextWithin(t, s, time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after final, got %v", err)
	}
}

func TestStreamingResultCancelIsObservable(t *testing.T) {
	ch := make(chan core.RawChoice)
	cancelled := false
	s := Start(chanStream(ch), WithCancelFunc(func() { cancelled = true }))

	ch <- core.TextChoice("partial")
	if _, err := nextWithin(t, s, time.Second); err != nil {
		t.Fatalf("first event: %v", err)
	}
	s.Cancel()
	if _, err := nextWithin(t, s, time.Second); !errors.Is(err, core.ErrStreamCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if _, err := nextWithin(t, s, time.Second); !errors.Is(err, core.ErrStreamCancelled) {
		t.Fatalf("cancellation must be sticky, got %v", err)
	}
	if !cancelled {
		t.Fatalf("expected cancel func to run")
	}
	close(ch)
	if err := s.Wait(context.Background()); !errors.Is(err, core.ErrStreamCancelled) {
		t.Fatalf("wait: expected cancellation, got %v", err)
	}
	if _, ok := s.Response(); ok {
		t.Fatalf("cancelled stream must not report a response")
	}
}

// Run with -race: Cancel closes the frame reader while the pump is blocked
// reading the body.
func TestStreamingResultCancelClosesBlockedTransport(t *testing.T) {
	pr, pw := io.Pipe()
	s := Start(NewRawStream(pr, FormatSSE, textDecoder))

	go func() {
		_, _ = io.WriteString(pw, "data: {\"t\":\"hello\"}\n\n")
	}()
	if ev, err := nextWithin(t, s, time.Second); err != nil || ev.Text != "hello" {
		t.Fatalf("unexpected first event %+v %v", ev, err)
	}
	s.Cancel()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := nextWithin(t, s, time.Second); !errors.Is(err, core.ErrStreamCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if _, err := io.WriteString(pw, "data: {\"t\":\"late\"}\n\n"); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("transport should be closed, got %v", err)
	}
}

func TestStreamingResultCancelWhilePaused(t *testing.T) {
	ch := make(chan core.RawChoice, 1)
	s := Start(chanStream(ch))
	s.Pause()
	ch <- core.TextChoice("queued")
	s.Cancel()
	if _, err := nextWithin(t, s, time.Second); !errors.Is(err, core.ErrStreamCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	close(ch)
	_ = s.Close()
}

func TestStreamingResultErrorAfterQueuedEvents(t *testing.T) {
	boom := core.NewCompletionError(core.ResponseError, "bad frame")
	calls := 0
	raw := core.NewRawStream(func() (core.RawChoice, error) {
		calls++
		if calls == 1 {
			return core.TextChoice("ok"), nil
		}
		return core.RawChoice{}, boom
	}, nil)
	s := Start(raw)
	if ev, err := nextWithin(t, s, time.Second); err != nil || ev.Text != "ok" {
		t.Fatalf("expected queued text before error, got %+v %v", ev, err)
	}
	if _, err := nextWithin(t, s, time.Second); !core.IsResponseError(err) {
		t.Fatalf("expected response error, got %v", err)
	}
}

func TestCollectAggregatesResponse(t *testing.T) {
	raw := core.RawStreamFromChoices(
		core.TextChoice("The answer "),
		core.TextChoice("is 5."),
		core.ToolCallChoice(0, "call_1", "log", `{}`),
		core.FinalChoice(core.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}, nil),
	)
	resp, err := Collect(context.Background(), Start(raw))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if resp.Text() != "The answer is 5." || len(resp.ToolCalls()) != 1 || resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestTextTo(t *testing.T) {
	var b strings.Builder
	raw := core.RawStreamFromChoices(core.TextChoice("a"), core.TextChoice("b"))
	if _, err := TextTo(context.Background(), Start(raw), &b); err != nil {
		t.Fatalf("text to: %v", err)
	}
	if b.String() != "ab" {
		t.Fatalf("unexpected output %q", b.String())
	}
}

func TestOnCompleteReceivesResponse(t *testing.T) {
	done := make(chan *core.CompletionResponse, 1)
	raw := core.RawStreamFromChoices(core.TextChoice("hi"))
	s := Start(raw, OnComplete(func(resp *core.CompletionResponse, err error) {
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
		done <- resp
	}))
	select {
	case resp := <-done:
		if resp.Text() != "hi" {
			t.Fatalf("unexpected response %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback not invoked")
	}
	_ = s.Close()
}
