package openai

import (
	"os"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/core"
)

func init() {
	agentkit.RegisterProvider("openai", &Factory{})
}

// Factory creates OpenAI clients for the provider registry.
type Factory struct{}

// New creates a client from config.
func (f *Factory) New(config agentkit.ProviderConfig) (core.CompletionModel, error) {
	return New(Options(config)...), nil
}

// NewEmbedding creates an embedding model from config.
func (f *Factory) NewEmbedding(config agentkit.ProviderConfig, model string) (core.EmbeddingModel, error) {
	return New(Options(config)...).EmbeddingModel(model, 0), nil
}

// DefaultConfig reads OPENAI_API_KEY, OPENAI_BASE_URL and OPENAI_ORG_ID.
func (f *Factory) DefaultConfig() agentkit.ProviderConfig {
	cfg := agentkit.ProviderConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if org := os.Getenv("OPENAI_ORG_ID"); org != "" {
		cfg.Headers = map[string]string{"OpenAI-Organization": org}
	}
	return cfg
}

// Options converts a registry config into client options. OpenAI-compatible
// providers reuse it.
func Options(config agentkit.ProviderConfig) []Option {
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
	for k, v := range config.Headers {
		opts = append(opts, WithHeader(k, v))
	}
	return opts
}
