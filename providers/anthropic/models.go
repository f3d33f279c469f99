package anthropic

import (
	"fmt"
	"slices"
	"strings"
)

// Model is a Claude model identifier.
type Model string

const (
	ClaudeOpus41   Model = "claude-opus-4-1"
	ClaudeOpus4    Model = "claude-opus-4-0"
	ClaudeSonnet45 Model = "claude-sonnet-4-5"
	ClaudeSonnet4  Model = "claude-sonnet-4-0"
	ClaudeHaiku45  Model = "claude-haiku-4-5"
	Claude37Sonnet Model = "claude-3-7-sonnet-latest"
	Claude35Haiku  Model = "claude-3-5-haiku-latest"
)

var knownModels = []Model{
	ClaudeOpus41, ClaudeOpus4, ClaudeSonnet45, ClaudeSonnet4,
	ClaudeHaiku45, Claude37Sonnet, Claude35Haiku,
}

func (m Model) String() string { return string(m) }

// ParseModel returns the known model named s. Clients accept any name; this
// is for callers that want to reject typos early.
func ParseModel(s string) (Model, error) {
	if !slices.Contains(knownModels, Model(s)) {
		return "", fmt.Errorf("anthropic: unknown model %q", s)
	}
	return Model(s), nil
}

// defaultMaxTokens is the output budget used when a request sets none. The
// Messages API requires max_tokens on every call.
func defaultMaxTokens(model string) int {
	switch {
	case strings.HasPrefix(model, "claude-opus-4"):
		return 32000
	case strings.HasPrefix(model, "claude-sonnet-4"), strings.HasPrefix(model, "claude-haiku-4"),
		strings.HasPrefix(model, "claude-3-7"):
		return 64000
	case strings.HasPrefix(model, "claude-3-5"):
		return 8192
	default:
		return 4096
	}
}
