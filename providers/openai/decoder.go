package openai

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/stream"
)

// ChunkDecoder decodes chat completion SSE chunks. It is shared by every
// OpenAI-compatible provider.
type ChunkDecoder struct {
	provider string
	usage    core.Usage
	last     json.RawMessage
	open     map[int]bool
	done     bool
}

// NewChunkDecoder returns a decoder labelling provider errors with provider.
func NewChunkDecoder(provider string) *ChunkDecoder {
	return &ChunkDecoder{provider: provider, open: map[int]bool{}}
}

// Decode implements stream.Decoder.
func (d *ChunkDecoder) Decode(frame stream.Frame) ([]core.RawChoice, error) {
	if stream.IsDoneSentinel(frame.Data) {
		d.done = true
		return []core.RawChoice{core.FinalChoice(d.usage, d.last)}, stream.ErrDone
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	if len(chunk.Error) > 0 {
		message, typ := httpclient.ErrorMessage([]byte(frame.Data))
		return nil, core.NewCompletionError(core.ProviderError, message,
			core.WithProvider(d.provider), core.WithErrorType(typ))
	}
	d.last = json.RawMessage(frame.Data)
	if chunk.Usage != nil {
		d.usage = chunk.Usage.toCore()
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	var out []core.RawChoice
	choice := chunk.Choices[0]
	if reasoning := choice.Delta.reasoningText(); reasoning != "" {
		out = append(out, core.ReasoningChoice(reasoning))
	}
	if text := choice.Delta.JoinText(); text != "" {
		out = append(out, core.TextChoice(text))
	}
	for i, call := range choice.Delta.ToolCalls {
		idx := i
		if call.Index != nil {
			idx = *call.Index
		}
		d.open[idx] = true
		out = append(out, core.ToolCallChoice(idx, call.ID, call.Function.Name, call.Function.Arguments))
	}
	if choice.FinishReason == "tool_calls" || choice.FinishReason == "function_call" {
		out = append(out, d.closeOpen()...)
	}
	return out, nil
}

// Flush implements stream.Flusher for servers that end without [DONE].
func (d *ChunkDecoder) Flush() ([]core.RawChoice, error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	return []core.RawChoice{core.FinalChoice(d.usage, d.last)}, nil
}

func (d *ChunkDecoder) closeOpen() []core.RawChoice {
	indices := make([]int, 0, len(d.open))
	for idx := range d.open {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	out := make([]core.RawChoice, len(indices))
	for i, idx := range indices {
		out[i] = core.ToolCallEndChoice(idx)
		delete(d.open, idx)
	}
	return out
}
