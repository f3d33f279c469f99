package openai

import (
	"errors"
	"testing"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/stream"
)

func decodeAll(t *testing.T, d *ChunkDecoder, frames ...string) []core.RawChoice {
	t.Helper()
	var out []core.RawChoice
	for _, data := range frames {
		choices, err := d.Decode(stream.Frame{Data: data})
		out = append(out, choices...)
		if errors.Is(err, stream.ErrDone) {
			return out
		}
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
	}
	flushed, err := d.Flush()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	return append(out, flushed...)
}

func TestChunkDecoderParallelToolCalls(t *testing.T) {
	d := NewChunkDecoder("openai")
	choices := decodeAll(t, d,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"add","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"sub","arguments":"{\"x\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"x\":1}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"2}"}}]},"finish_reason":"tool_calls"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":6}}`,
		`[DONE]`,
	)

	var kinds []core.RawKind
	for _, c := range choices {
		kinds = append(kinds, c.Kind)
	}
	want := []core.RawKind{
		core.RawToolCall, core.RawToolCall, core.RawToolCall, core.RawToolCall,
		core.RawToolCallEnd, core.RawToolCallEnd, core.RawFinal,
	}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected choices %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("choice %d: got %v want %v", i, kinds[i], want[i])
		}
	}
	if choices[2].ToolCall.Index != 0 || choices[2].ToolCall.Arguments != `{"x":1}` {
		t.Fatalf("fragment routed to wrong index: %+v", choices[2].ToolCall)
	}
	if choices[4].ToolCall.Index != 0 || choices[5].ToolCall.Index != 1 {
		t.Fatalf("end markers out of order")
	}
	final := choices[len(choices)-1]
	if final.Final.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected usage %+v", final.Final.Usage)
	}
}

func TestChunkDecoderFlushWithoutDone(t *testing.T) {
	d := NewChunkDecoder("groq")
	choices := decodeAll(t, d,
		`{"choices":[{"delta":{"reasoning_content":"thinking"}}]}`,
		`{"choices":[{"delta":{"content":"hi"}}]}`,
	)
	if len(choices) != 3 {
		t.Fatalf("expected reasoning, text, final; got %d", len(choices))
	}
	if choices[0].Kind != core.RawReasoning || choices[1].Text != "hi" || choices[2].Kind != core.RawFinal {
		t.Fatalf("unexpected choices %+v", choices)
	}
	if extra, _ := d.Flush(); len(extra) != 0 {
		t.Fatalf("flush must emit final once")
	}
}

func TestChunkDecoderErrors(t *testing.T) {
	d := NewChunkDecoder("xai")
	_, err := d.Decode(stream.Frame{Data: `{"error":{"message":"overloaded","type":"server_error"}}`})
	var ce *core.CompletionError
	if !errors.As(err, &ce) || ce.Kind != core.ProviderError || ce.Provider != "xai" || ce.Message != "overloaded" {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := d.Decode(stream.Frame{Data: `{"choices":`}); err == nil {
		t.Fatalf("expected decode error for malformed chunk")
	}
}
