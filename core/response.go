package core

import (
	"encoding/json"
	"strings"
)

// Usage captures token accounting returned by providers. Absent provider fields stay zero.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	TotalTokens       int `json:"total_tokens"`
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
}

// Add returns the field-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:       u.InputTokens + other.InputTokens,
		OutputTokens:      u.OutputTokens + other.OutputTokens,
		TotalTokens:       u.TotalTokens + other.TotalTokens,
		CachedInputTokens: u.CachedInputTokens + other.CachedInputTokens,
	}
}

// Normalize fills TotalTokens when the provider did not report it.
func (u Usage) Normalize() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

// IsZero reports whether no tokens were recorded.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// CompletionResponse is a full, non-streaming model answer.
type CompletionResponse struct {
	ID     string          `json:"id,omitempty"`
	Model  string          `json:"model,omitempty"`
	Choice []Part          `json:"-"`
	Usage  Usage           `json:"usage"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Message wraps the choice as an assistant message.
func (r *CompletionResponse) Message() Message {
	return AssistantMessage(r.Choice...)
}

// Text concatenates the text parts of the choice.
func (r *CompletionResponse) Text() string {
	var b strings.Builder
	for _, part := range r.Choice {
		if t, ok := part.(Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls of the choice in order.
func (r *CompletionResponse) ToolCalls() []ToolCall {
	return r.Message().ToolCalls()
}

// FinalResponse terminates every normalized stream.
type FinalResponse struct {
	Usage Usage           `json:"usage"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}
