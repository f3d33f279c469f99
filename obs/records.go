package obs

import (
	"strings"

	"github.com/shillcollin/agentkit/core"
)

// Completion is one model round as seen by sinks.
type Completion struct {
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model"`
	RequestID    string           `json:"request_id,omitempty"`
	Turn         int              `json:"turn"`
	Input        []Message        `json:"input,omitempty"`
	Output       Message          `json:"output"`
	Usage        UsageTokens      `json:"usage"`
	LatencyMS    int64            `json:"latency_ms,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAtUTC int64            `json:"created_at_ms"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
}

// ToolCallRecord summarizes a tool invocation made after a round.
type ToolCallRecord struct {
	Turn       int    `json:"turn"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Message is a flattened copy of a core.Message. Media parts are listed by
// type only.
type Message struct {
	Role        string    `json:"role"`
	Text        string    `json:"text,omitempty"`
	Reasoning   string    `json:"reasoning,omitempty"`
	ToolCalls   []ToolRef `json:"tool_calls,omitempty"`
	ToolResults []ToolRef `json:"tool_results,omitempty"`
	Media       []string  `json:"media,omitempty"`
}

// ToolRef is a tool call or result inside a Message.
type ToolRef struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Payload string `json:"payload,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// UsageTokens mirrors core.Usage without importing core into sinks.
type UsageTokens struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	CachedTokens int `json:"cached_tokens,omitempty"`
}

// IsZero reports whether no tokens were counted.
func (u UsageTokens) IsZero() bool {
	return u == UsageTokens{}
}

// UsageFromCore converts a core.Usage.
func UsageFromCore(u core.Usage) UsageTokens {
	return UsageTokens{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
		CachedTokens: u.CachedInputTokens,
	}
}

// MessageFromCore flattens msg.
func MessageFromCore(msg core.Message) Message {
	out := Message{Role: string(msg.Role)}
	var text, reasoning []string
	for _, part := range msg.Content {
		switch p := part.(type) {
		case core.Text:
			text = append(text, p.Text)
		case core.Reasoning:
			reasoning = append(reasoning, p.Text)
		case core.ToolCall:
			out.ToolCalls = append(out.ToolCalls, ToolRef{ID: p.ID, Name: p.Name, Payload: string(p.Arguments)})
		case core.ToolResult:
			out.ToolResults = append(out.ToolResults, ToolRef{ID: p.CallID, Name: p.Name, Payload: p.Content, IsError: p.IsError})
		default:
			out.Media = append(out.Media, string(part.Type()))
		}
	}
	out.Text = strings.Join(text, "\n")
	out.Reasoning = strings.Join(reasoning, "\n")
	return out
}

// MessagesFromCore flattens each message.
func MessagesFromCore(messages []core.Message) []Message {
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = MessageFromCore(msg)
	}
	return out
}
