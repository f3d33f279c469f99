package stream

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shillcollin/agentkit/core"
)

func TestSSEWithPolicyFiltersReasoning(t *testing.T) {
	raw := core.RawStreamFromChoices(
		core.ReasoningChoice("hmm"),
		core.TextChoice("hi"),
		core.FinalChoice(core.Usage{TotalTokens: 3}, []byte(`{"secret":true}`)),
	)
	recorder := httptest.NewRecorder()
	if err := SSEWithPolicy(context.Background(), recorder, Start(raw), DefaultPolicy()); err != nil {
		t.Fatalf("sse: %v", err)
	}
	out := recorder.Body.String()
	if strings.Contains(out, "hmm") {
		t.Fatalf("reasoning leaked: %s", out)
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("raw payload leaked: %s", out)
	}
	if strings.Count(out, "\n\n") != 2 {
		t.Fatalf("expected text and final frames, got %q", out)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestSSERoundTripThroughEventReader(t *testing.T) {
	raw := core.RawStreamFromChoices(
		core.TextChoice("The answer "),
		core.TextChoice("is 5."),
		core.ToolCallChoice(0, "call_1", "add", `{"x":2,"y":3}`),
	)
	recorder := httptest.NewRecorder()
	if err := SSE(context.Background(), recorder, Start(raw)); err != nil {
		t.Fatalf("sse: %v", err)
	}

	reader := NewEventReader(io.NopCloser(strings.NewReader(recorder.Body.String())), FormatSSE)
	var types []core.EventType
	for {
		ev, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		types = append(types, ev.Type)
		if ev.Type == core.EventToolCall && string(ev.ToolCall.Arguments) != `{"x":2,"y":3}` {
			t.Fatalf("arguments altered: %s", ev.ToolCall.Arguments)
		}
	}
	want := []core.EventType{core.EventText, core.EventText, core.EventToolCall, core.EventFinal}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
}

func TestSSEWritesErrorFrame(t *testing.T) {
	calls := 0
	raw := core.NewRawStream(func() (core.RawChoice, error) {
		calls++
		if calls == 1 {
			return core.TextChoice("partial"), nil
		}
		return core.RawChoice{}, core.NewCompletionError(core.ResponseError, "bad frame")
	}, nil)
	recorder := httptest.NewRecorder()
	err := SSEWithPolicy(context.Background(), recorder, Start(raw), Policy{MaskErrors: true})
	if !core.IsResponseError(err) {
		t.Fatalf("expected response error, got %v", err)
	}

	reader := NewEventReader(io.NopCloser(strings.NewReader(recorder.Body.String())), FormatSSE)
	if ev, err := reader.Read(); err != nil || ev.Text != "partial" {
		t.Fatalf("unexpected first event %+v %v", ev, err)
	}
	_, err = reader.Read()
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Kind != "response_error" || remote.Message != "stream failed" {
		t.Fatalf("expected masked remote error, got %v", err)
	}
}

func TestSSEFramesCarrySeqIDs(t *testing.T) {
	raw := core.RawStreamFromChoices(core.TextChoice("a"), core.TextChoice("b"))
	recorder := httptest.NewRecorder()
	if err := SSE(context.Background(), recorder, Start(raw)); err != nil {
		t.Fatalf("sse: %v", err)
	}
	out := recorder.Body.String()
	if !strings.HasPrefix(out, "id: 1\nevent: text\n") || !strings.Contains(out, "id: 2\nevent: text\n") {
		t.Fatalf("unexpected frames %q", out)
	}
}

func TestSSEHeartbeatWhileIdle(t *testing.T) {
	calls := 0
	raw := core.NewRawStream(func() (core.RawChoice, error) {
		calls++
		switch calls {
		case 1:
			time.Sleep(120 * time.Millisecond)
			return core.TextChoice("late"), nil
		case 2:
			return core.FinalChoice(core.Usage{}, nil), nil
		default:
			return core.RawChoice{}, io.EOF
		}
	}, nil)
	recorder := httptest.NewRecorder()
	policy := Policy{Heartbeat: 20 * time.Millisecond}
	if err := SSEWithPolicy(context.Background(), recorder, Start(raw), policy); err != nil {
		t.Fatalf("sse: %v", err)
	}
	out := recorder.Body.String()
	if !strings.HasPrefix(out, ": ping\n\n") || !strings.Contains(out, "late") {
		t.Fatalf("expected heartbeat before the first event, got %q", out)
	}

	reader := NewEventReader(io.NopCloser(strings.NewReader(out)), FormatSSE)
	if ev, err := reader.Read(); err != nil || ev.Text != "late" {
		t.Fatalf("heartbeat should be skipped by readers: %+v %v", ev, err)
	}
}

func TestSSEHeartbeatWaitsFullInterval(t *testing.T) {
	calls := 0
	raw := core.NewRawStream(func() (core.RawChoice, error) {
		calls++
		if calls == 1 {
			time.Sleep(150 * time.Millisecond)
			return core.TextChoice("slow"), nil
		}
		return core.RawChoice{}, io.EOF
	}, nil)
	recorder := httptest.NewRecorder()
	policy := Policy{Heartbeat: 200 * time.Millisecond}
	if err := SSEWithPolicy(context.Background(), recorder, Start(raw), policy); err != nil {
		t.Fatalf("sse: %v", err)
	}
	if out := recorder.Body.String(); strings.Contains(out, ": ping") {
		t.Fatalf("stream was never idle for a full interval, got %q", out)
	}
}

func TestSSETinyHeartbeat(t *testing.T) {
	raw := core.RawStreamFromChoices(core.TextChoice("hi"))
	recorder := httptest.NewRecorder()
	policy := Policy{Heartbeat: time.Nanosecond}
	if err := SSEWithPolicy(context.Background(), recorder, Start(raw), policy); err != nil {
		t.Fatalf("sse: %v", err)
	}
	if !strings.Contains(recorder.Body.String(), `"text":"hi"`) {
		t.Fatalf("missing event in %q", recorder.Body.String())
	}
}

func TestNDJSONRoundTrip(t *testing.T) {
	raw := core.RawStreamFromChoices(core.TextChoice("a"), core.TextChoice("b"))
	recorder := httptest.NewRecorder()
	if err := NDJSON(context.Background(), recorder, Start(raw), Policy{}); err != nil {
		t.Fatalf("ndjson: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(recorder.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), lines)
	}
	reader := NewEventReader(io.NopCloser(strings.NewReader(recorder.Body.String())), FormatNDJSON)
	count := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 events, got %d", count)
	}
}

func TestEventReaderRequiresFinal(t *testing.T) {
	input := "event: text\ndata: {\"type\":\"text\",\"seq\":1,\"text\":\"a\"}\n\n"
	reader := NewEventReader(io.NopCloser(strings.NewReader(input)), FormatSSE)
	if _, err := reader.Read(); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := reader.Read(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected missing final error, got %v", err)
	}
}
