package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/stream"
)

// chunkDecoder decodes streamGenerateContent SSE chunks. Gemini sends each
// function call whole, so every call is opened and closed in the same chunk.
// The stream has no terminal sentinel; Flush emits the final choice.
type chunkDecoder struct {
	usage     core.Usage
	last      json.RawMessage
	nextIndex int
	done      bool
}

func (d *chunkDecoder) Decode(frame stream.Frame) ([]core.RawChoice, error) {
	if stream.IsDoneSentinel(frame.Data) {
		d.done = true
		return []core.RawChoice{core.FinalChoice(d.usage, d.last)}, stream.ErrDone
	}
	var chunk geminiResponse
	if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	if len(chunk.Candidates) == 0 {
		var probe struct {
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal([]byte(frame.Data), &probe) == nil && len(probe.Error) > 0 {
			message, typ := httpclient.ErrorMessage([]byte(frame.Data))
			return nil, core.NewCompletionError(core.ProviderError, message,
				core.WithProvider(provider), core.WithErrorType(typ))
		}
	}
	if err := blocked(chunk); err != nil {
		return nil, err
	}
	d.last = json.RawMessage(frame.Data)
	if chunk.UsageMetadata != (geminiUsageMetadata{}) {
		d.usage = chunk.UsageMetadata.toCore()
	}
	if len(chunk.Candidates) == 0 {
		return nil, nil
	}

	var out []core.RawChoice
	for _, part := range chunk.Candidates[0].Content.Parts {
		switch {
		case part.Thought:
			out = append(out, core.RawChoice{Kind: core.RawReasoning, Text: part.Text, Signature: part.ThoughtSignature})
		case part.FunctionCall != nil:
			idx := d.nextIndex
			d.nextIndex++
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args := string(part.FunctionCall.Args)
			out = append(out,
				core.ToolCallChoice(idx, id, part.FunctionCall.Name, args),
				core.ToolCallEndChoice(idx),
			)
		case part.Text != "":
			out = append(out, core.TextChoice(part.Text))
		}
	}
	return out, nil
}

func (d *chunkDecoder) Flush() ([]core.RawChoice, error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	return []core.RawChoice{core.FinalChoice(d.usage, d.last)}, nil
}

// blocked reports a prompt rejected by safety filters.
func blocked(resp geminiResponse) error {
	if resp.PromptFeedback == nil || resp.PromptFeedback.BlockReason == "" {
		return nil
	}
	return core.NewCompletionError(core.ProviderError,
		"prompt blocked: "+resp.PromptFeedback.BlockReason,
		core.WithProvider(provider), core.WithErrorType("blocked"))
}
