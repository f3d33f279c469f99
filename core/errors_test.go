package core

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	respErr := NewCompletionError(ResponseError, "bad json", WithProvider("openai"))
	wrapped := fmt.Errorf("round 2: %w", respErr)
	if !IsResponseError(wrapped) || IsHTTPError(wrapped) {
		t.Fatalf("unexpected classification for %v", wrapped)
	}
	if got := respErr.Error(); got != "openai: response_error: bad json" {
		t.Fatalf("unexpected message %q", got)
	}

	notFound := NewToolNotFound("add")
	if !IsToolNotFound(WrapPromptError(notFound)) {
		t.Fatalf("tool not found must survive prompt wrapping")
	}
	if pe := WrapPromptError(notFound); pe.Kind != PromptToolError {
		t.Fatalf("expected tool error kind, got %s", pe.Kind)
	}

	maxErr := NewMaxTurnsExceeded(3, nil)
	if !IsMaxTurnsExceeded(fmt.Errorf("agent: %w", maxErr)) {
		t.Fatalf("expected max turns predicate")
	}
	if pe := WrapPromptError(ErrStreamCancelled); !IsPromptCancelled(pe) {
		t.Fatalf("expected cancelled kind, got %s", pe.Kind)
	}
}

func TestWrapCompletionErrorKeepsExisting(t *testing.T) {
	inner := NewCompletionError(ProviderError, "overloaded", WithStatus(529))
	if got := WrapCompletionError(fmt.Errorf("ctx: %w", inner), HTTPError); got != inner {
		t.Fatalf("expected existing error to be returned")
	}
	if !IsRetryable(inner) {
		t.Fatalf("529 should be retryable")
	}
	plain := WrapCompletionError(io.ErrUnexpectedEOF, HTTPError)
	if !errors.Is(plain, io.ErrUnexpectedEOF) {
		t.Fatalf("wrapped error lost")
	}
}

func TestRawStreamStopsAfterError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	s := NewRawStream(func() (RawChoice, error) {
		calls++
		if calls == 1 {
			return TextChoice("a"), nil
		}
		return RawChoice{}, boom
	}, nil)
	if c, err := s.Next(); err != nil || c.Text != "a" {
		t.Fatalf("unexpected first read %+v %v", c, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Next(); !errors.Is(err, boom) {
			t.Fatalf("expected sticky error, got %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("next called %d times after error", calls)
	}
	_ = s.Close()
	if _, err := s.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
