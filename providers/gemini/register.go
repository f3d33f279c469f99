package gemini

import (
	"os"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/core"
)

func init() {
	agentkit.RegisterProvider("gemini", &Factory{})
}

// Factory creates Gemini provider instances.
type Factory struct{}

// New creates a new Gemini client with the given configuration.
func (f *Factory) New(config agentkit.ProviderConfig) (core.CompletionModel, error) {
	return New(configOptions(config)...), nil
}

// NewEmbedding creates an embedding model from config.
func (f *Factory) NewEmbedding(config agentkit.ProviderConfig, model string) (core.EmbeddingModel, error) {
	return New(configOptions(config)...).EmbeddingModel(model, 0), nil
}

// DefaultConfig reads GOOGLE_API_KEY (or GEMINI_API_KEY) and GEMINI_BASE_URL.
func (f *Factory) DefaultConfig() agentkit.ProviderConfig {
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	return agentkit.ProviderConfig{
		APIKey:  key,
		BaseURL: os.Getenv("GEMINI_BASE_URL"),
	}
}

func configOptions(config agentkit.ProviderConfig) []Option {
	var opts []Option

	if config.APIKey != "" {
		opts = append(opts, WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, WithBaseURL(config.BaseURL))
	}
	if config.DefaultModel != "" {
		opts = append(opts, WithModel(config.DefaultModel))
	}
	if config.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(config.HTTPClient))
	}
	if config.Timeout > 0 {
		opts = append(opts, WithTimeout(config.Timeout))
	}
	if config.Logger != nil {
		opts = append(opts, WithLogger(config.Logger))
	}
	return opts
}
