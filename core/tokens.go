package core

import (
	"github.com/shillcollin/agentkit/internal/tokens"
)

// TokenEstimate summarises estimated token usage.
type TokenEstimate struct {
	Input     int
	MaxOutput int
	Total     int
}

// EstimateTokens estimates tokens for a request using heuristics. It counts
// what a provider receives: preamble, context documents, history, prompt and
// tool definitions.
func EstimateTokens(req CompletionRequest) TokenEstimate {
	input := tokens.EstimateText(req.Preamble)
	for _, msg := range req.ProviderMessages() {
		input += EstimateMessageTokens(msg)
	}
	for _, def := range req.Tools {
		input += tokens.EstimateText(def.Name) + tokens.EstimateText(def.Description) + tokens.EstimateText(string(def.Parameters))
	}
	maxOut := tokens.DefaultMaxOutput
	if req.MaxTokens != nil {
		maxOut = *req.MaxTokens
	}
	return TokenEstimate{Input: input, MaxOutput: maxOut, Total: input + maxOut}
}

// EstimateMessageTokens estimates tokens for a message.
func EstimateMessageTokens(msg Message) int {
	total := tokens.EstimateText(string(msg.Role))
	for _, part := range msg.Content {
		total += estimatePartTokens(part)
	}
	return total
}

// EstimateTextTokens estimates tokens from raw text.
func EstimateTextTokens(text string) int {
	return tokens.EstimateText(text)
}

func estimatePartTokens(part Part) int {
	switch p := part.(type) {
	case Text:
		return tokens.EstimateText(p.Text)
	case Reasoning:
		return tokens.EstimateText(p.Text)
	case Image:
		return estimateMedia(p.Media, 512)
	case Audio:
		return estimateMedia(p.Media, 1024)
	case Video:
		return 1024
	case Document:
		if p.Encoding == EncodingRaw {
			return tokens.EstimateText(p.Data)
		}
		return estimateMedia(p.Media, 256)
	case ToolCall:
		return tokens.EstimateText(p.Name) + tokens.EstimateText(string(p.Arguments))
	case ToolResult:
		return tokens.EstimateText(p.Content)
	default:
		return 32
	}
}

// estimateMedia sizes inline payloads by their decoded length. URLs fall
// back to a flat cost.
func estimateMedia(m Media, fallback int) int {
	if m.Encoding == EncodingURL {
		return fallback
	}
	data, err := m.Bytes()
	if err != nil || len(data) == 0 {
		return fallback
	}
	return tokens.EstimateBytes(int64(len(data)))
}
