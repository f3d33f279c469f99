package openai

import "fmt"

// Model is an OpenAI model name.
type Model string

const (
	GPT4o     Model = "gpt-4o"
	GPT4oMini Model = "gpt-4o-mini"
	GPT41     Model = "gpt-4.1"
	GPT41Mini Model = "gpt-4.1-mini"
	GPT41Nano Model = "gpt-4.1-nano"
	GPT5      Model = "gpt-5"
	GPT5Mini  Model = "gpt-5-mini"
	GPT5Nano  Model = "gpt-5-nano"
	O3        Model = "o3"
	O3Mini    Model = "o3-mini"
	O4Mini    Model = "o4-mini"

	TextEmbedding3Small Model = "text-embedding-3-small"
	TextEmbedding3Large Model = "text-embedding-3-large"
	TextEmbeddingAda002 Model = "text-embedding-ada-002"
)

var knownModels = map[Model]struct{}{
	GPT4o: {}, GPT4oMini: {}, GPT41: {}, GPT41Mini: {}, GPT41Nano: {},
	GPT5: {}, GPT5Mini: {}, GPT5Nano: {}, O3: {}, O3Mini: {}, O4Mini: {},
	TextEmbedding3Small: {}, TextEmbedding3Large: {}, TextEmbeddingAda002: {},
}

func (m Model) String() string { return string(m) }

// ParseModel returns the known model named s.
func ParseModel(s string) (Model, error) {
	m := Model(s)
	if _, ok := knownModels[m]; !ok {
		return "", fmt.Errorf("openai: unknown model %q", s)
	}
	return m, nil
}

// embeddingDimensions reports the default vector width of embedding models.
func embeddingDimensions(model string) int {
	switch Model(model) {
	case TextEmbedding3Large:
		return 3072
	case TextEmbedding3Small, TextEmbeddingAda002:
		return 1536
	default:
		return 0
	}
}
