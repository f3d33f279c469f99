package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/stream"
)

// eventDecoder decodes Messages API server-sent events. Events are routed by
// their SSE event name; tool_use blocks become tool call fragments keyed by
// content block index.
type eventDecoder struct {
	usage     anthropicUsage
	toolIndex map[int]bool
	raw       json.RawMessage
}

func newEventDecoder() *eventDecoder {
	return &eventDecoder{toolIndex: map[int]bool{}}
}

func (d *eventDecoder) Decode(frame stream.Frame) ([]core.RawChoice, error) {
	event := frame.Event
	if event == "" {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(frame.Data), &probe); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		event = probe.Type
	}

	switch event {
	case "message_start":
		var start messageStart
		if err := json.Unmarshal([]byte(frame.Data), &start); err != nil {
			return nil, fmt.Errorf("decode message_start: %w", err)
		}
		d.usage = d.usage.merge(start.Message.Usage)
		return nil, nil

	case "content_block_start":
		var start contentBlockStart
		if err := json.Unmarshal([]byte(frame.Data), &start); err != nil {
			return nil, fmt.Errorf("decode content_block_start: %w", err)
		}
		switch start.ContentBlock.Type {
		case "tool_use":
			d.toolIndex[start.Index] = true
			return []core.RawChoice{core.ToolCallChoice(start.Index, start.ContentBlock.ID, start.ContentBlock.Name, "")}, nil
		case "text":
			if start.ContentBlock.Text != "" {
				return []core.RawChoice{core.TextChoice(start.ContentBlock.Text)}, nil
			}
		}
		return nil, nil

	case "content_block_delta":
		var delta contentBlockDelta
		if err := json.Unmarshal([]byte(frame.Data), &delta); err != nil {
			return nil, fmt.Errorf("decode content_block_delta: %w", err)
		}
		switch delta.Delta.Type {
		case "text_delta":
			return []core.RawChoice{core.TextChoice(delta.Delta.Text)}, nil
		case "input_json_delta":
			return []core.RawChoice{core.ToolCallChoice(delta.Index, "", "", delta.Delta.PartialJSON)}, nil
		case "thinking_delta":
			return []core.RawChoice{core.ReasoningChoice(delta.Delta.Thinking)}, nil
		case "signature_delta":
			return []core.RawChoice{{Kind: core.RawReasoning, Signature: delta.Delta.Signature}}, nil
		}
		return nil, nil

	case "content_block_stop":
		var stop contentBlockStop
		if err := json.Unmarshal([]byte(frame.Data), &stop); err != nil {
			return nil, fmt.Errorf("decode content_block_stop: %w", err)
		}
		if !d.toolIndex[stop.Index] {
			return nil, nil
		}
		delete(d.toolIndex, stop.Index)
		return []core.RawChoice{core.ToolCallEndChoice(stop.Index)}, nil

	case "message_delta":
		var delta messageDelta
		if err := json.Unmarshal([]byte(frame.Data), &delta); err != nil {
			return nil, fmt.Errorf("decode message_delta: %w", err)
		}
		d.usage = d.usage.merge(delta.Usage)
		d.raw = json.RawMessage(frame.Data)
		return nil, nil

	case "message_stop":
		return []core.RawChoice{core.FinalChoice(d.usage.toCore(), d.raw)}, stream.ErrDone

	case "error":
		var se streamError
		if err := json.Unmarshal([]byte(frame.Data), &se); err != nil {
			return nil, fmt.Errorf("decode error event: %w", err)
		}
		return nil, core.NewCompletionError(core.ProviderError, se.Error.Message,
			core.WithProvider("anthropic"), core.WithErrorType(se.Error.Type))

	default:
		// ping and future event types
		return nil, nil
	}
}
