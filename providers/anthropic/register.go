package anthropic

import (
	"os"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/core"
)

func init() {
	agentkit.RegisterProvider("anthropic", &Factory{})
}

// Factory creates Anthropic provider instances.
type Factory struct{}

// New creates a new Anthropic client with the given configuration.
func (f *Factory) New(config agentkit.ProviderConfig) (core.CompletionModel, error) {
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

	return New(opts...), nil
}

// DefaultConfig returns default configuration from environment variables.
func (f *Factory) DefaultConfig() agentkit.ProviderConfig {
	return agentkit.ProviderConfig{
		APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
	}
}
