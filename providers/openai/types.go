package openai

import (
	"encoding/json"
	"strings"

	"github.com/shillcollin/agentkit/core"
)

type chatCompletionRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *streamOptions  `json:"stream_options,omitempty"`
	Tools               []openAITool    `json:"tools,omitempty"`
	ToolChoice          any             `json:"tool_choice,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type openAIMessage struct {
	Role             string           `json:"role,omitempty"`
	Content          []openAIContent  `json:"content,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	Reasoning        string           `json:"reasoning,omitempty"`
	ToolCalls        []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
	Name             string           `json:"name,omitempty"`
}

type openAIContent struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	ImageURL   *openAIImageURL   `json:"image_url,omitempty"`
	InputAudio *openAIInputAudio `json:"input_audio,omitempty"`
	File       *openAIFile       `json:"file,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type openAIFile struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openAIToolCall struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *openAIUsage           `json:"usage"`
}

type chatCompletionChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

type streamChunk struct {
	ID      string              `json:"id"`
	Model   string              `json:"model"`
	Choices []streamChunkChoice `json:"choices"`
	Usage   *openAIUsage        `json:"usage,omitempty"`
	Error   json.RawMessage     `json:"error,omitempty"`
}

type streamChunkChoice struct {
	Index        int           `json:"index"`
	Delta        openAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

func (u *openAIUsage) toCore() core.Usage {
	if u == nil {
		return core.Usage{}
	}
	usage := core.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	if u.PromptTokensDetails != nil {
		usage.CachedInputTokens = u.PromptTokensDetails.CachedTokens
	}
	return usage.Normalize()
}

// JoinText concatenates the text content parts.
func (m openAIMessage) JoinText() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Text != "" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

func (m openAIMessage) reasoningText() string {
	if m.ReasoningContent != "" {
		return m.ReasoningContent
	}
	return m.Reasoning
}

// MarshalJSON sends text-only content as a plain string, which every
// OpenAI-compatible server accepts.
func (m openAIMessage) MarshalJSON() ([]byte, error) {
	type alias openAIMessage
	textOnly := len(m.Content) > 0
	for _, c := range m.Content {
		if c.Type != "text" {
			textOnly = false
			break
		}
	}
	if !textOnly {
		return json.Marshal(alias(m))
	}
	return json.Marshal(struct {
		alias
		Content string `json:"content"`
	}{alias: alias(m), Content: m.JoinText()})
}

func (m *openAIMessage) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		Role             string           `json:"role"`
		Content          json.RawMessage  `json:"content"`
		ReasoningContent string           `json:"reasoning_content"`
		Reasoning        string           `json:"reasoning"`
		ToolCalls        []openAIToolCall `json:"tool_calls,omitempty"`
		ToolCallID       string           `json:"tool_call_id,omitempty"`
		Name             string           `json:"name,omitempty"`
	}
	if len(data) == 0 {
		return nil
	}
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.ReasoningContent = raw.ReasoningContent
	m.Reasoning = raw.Reasoning
	m.ToolCalls = raw.ToolCalls
	m.ToolCallID = raw.ToolCallID
	m.Name = raw.Name
	m.Content = nil
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	switch raw.Content[0] {
	case '{', '[':
		var parts []openAIContent
		if err := json.Unmarshal(raw.Content, &parts); err != nil {
			return err
		}
		m.Content = parts
		return nil
	default:
		var text string
		if err := json.Unmarshal(raw.Content, &text); err != nil {
			return err
		}
		if text != "" {
			m.Content = []openAIContent{{Type: "text", Text: text}}
		}
		return nil
	}
}
