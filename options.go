package agentkit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shillcollin/agentkit/agent"
	"github.com/shillcollin/agentkit/core"
)

// WithProvider installs a ready-made model under id, bypassing the factory
// registry.
func WithProvider(id string, provider core.CompletionModel) ClientOption {
	return func(c *Client) {
		c.providers[id] = provider
	}
}

// updateConfig queues a change to a provider's configuration. Changes for
// the same provider compose in option order.
func updateConfig(providerID string, fn func(*ProviderConfig)) ClientOption {
	return func(c *Client) {
		prev := c.pending[providerID]
		c.pending[providerID] = func(config *ProviderConfig) {
			if prev != nil {
				prev(config)
			}
			fn(config)
		}
	}
}

// WithAPIKey overrides the key a registered provider reads from its
// environment variable.
func WithAPIKey(providerID, apiKey string) ClientOption {
	return updateConfig(providerID, func(config *ProviderConfig) {
		config.APIKey = apiKey
	})
}

// WithBaseURL points a provider at a proxy or self-hosted endpoint.
func WithBaseURL(providerID, baseURL string) ClientOption {
	return updateConfig(providerID, func(config *ProviderConfig) {
		config.BaseURL = baseURL
	})
}

// WithHeaders adds extra request headers for a specific provider.
func WithHeaders(providerID string, headers map[string]string) ClientOption {
	return updateConfig(providerID, func(config *ProviderConfig) {
		if len(headers) == 0 {
			return
		}
		merged := make(map[string]string, len(config.Headers)+len(headers))
		for k, v := range config.Headers {
			merged[k] = v
		}
		for k, v := range headers {
			merged[k] = v
		}
		config.Headers = merged
	})
}

// WithTimeout sets the request timeout for a specific provider.
func WithTimeout(providerID string, d time.Duration) ClientOption {
	return updateConfig(providerID, func(config *ProviderConfig) {
		config.Timeout = d
	})
}

// WithProviderConfig replaces the provider's default config entirely.
func WithProviderConfig(providerID string, config ProviderConfig) ClientOption {
	return updateConfig(providerID, func(c *ProviderConfig) {
		*c = config
	})
}

// WithDefaultModel is used when a model reference is empty. It may be an
// alias.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) {
		c.defaults.Model = model
	}
}

// WithDefaultTemperature sets the default temperature for all agents.
func WithDefaultTemperature(temp float64) ClientOption {
	return func(c *Client) {
		c.defaults.Temperature = &temp
	}
}

// WithDefaultMaxTokens sets the default max tokens for all agents.
func WithDefaultMaxTokens(n int) ClientOption {
	return func(c *Client) {
		c.defaults.MaxTokens = &n
	}
}

// WithAlias maps a short name to a model reference or another alias.
// Unlike SetAlias it is not validated up front; a bad chain surfaces as an
// ErrInvalidModel when the alias is resolved.
func WithAlias(alias, model string) ClientOption {
	return func(c *Client) {
		c.aliases[alias] = model
	}
}

// WithAliases adds every entry of aliases, e.g. DefaultAliases().
func WithAliases(aliases map[string]string) ClientOption {
	return func(c *Client) {
		for alias, model := range aliases {
			c.aliases[alias] = model
		}
	}
}

// WithHTTPClient sets a custom HTTP client for all providers.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger handed to providers and agents.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithToolTimeout sets the timeout for individual tool executions.
func WithToolTimeout(d time.Duration) ClientOption {
	return WithAgentOptions(agent.WithToolTimeout(d))
}

// WithMaxTurns caps the tool loop of every agent built by the client.
func WithMaxTurns(n int) ClientOption {
	return WithAgentOptions(agent.WithMaxTurns(n))
}

// WithAgentOptions appends options applied to every agent the client
// builds, before per-agent options.
func WithAgentOptions(opts ...agent.Option) ClientOption {
	return func(c *Client) {
		c.agentOpts = append(c.agentOpts, opts...)
	}
}
