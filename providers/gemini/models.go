package gemini

import (
	"fmt"
	"slices"
)

// Model is a Gemini model identifier.
type Model string

const (
	Gemini25Pro       Model = "gemini-2.5-pro"
	Gemini25Flash     Model = "gemini-2.5-flash"
	Gemini25FlashLite Model = "gemini-2.5-flash-lite"
	Gemini20Flash     Model = "gemini-2.0-flash"

	GeminiEmbedding001 Model = "gemini-embedding-001"
	TextEmbedding004   Model = "text-embedding-004"
)

var knownModels = []Model{
	Gemini25Pro, Gemini25Flash, Gemini25FlashLite, Gemini20Flash,
	GeminiEmbedding001, TextEmbedding004,
}

func (m Model) String() string { return string(m) }

func ParseModel(s string) (Model, error) {
	if !slices.Contains(knownModels, Model(s)) {
		return "", fmt.Errorf("gemini: unknown model %q", s)
	}
	return Model(s), nil
}

func embeddingDimensions(model string) int {
	switch Model(model) {
	case GeminiEmbedding001:
		return 3072
	case TextEmbedding004:
		return 768
	default:
		return 0
	}
}
