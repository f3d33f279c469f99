package agentkit

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/shillcollin/agentkit/agent"
	"github.com/shillcollin/agentkit/core"
)

// Client resolves "provider/model" references against the provider
// registry and builds agents on the resolved models.
type Client struct {
	mu         sync.RWMutex
	providers  map[string]core.CompletionModel
	configs    map[string]ProviderConfig
	pending    map[string]func(*ProviderConfig)
	aliases    map[string]string
	defaults   ClientDefaults
	httpClient *http.Client
	logger     *slog.Logger
	agentOpts  []agent.Option
}

// ClientDefaults holds values applied to every agent the client builds.
type ClientDefaults struct {
	Model       string   // Default model if none specified (e.g., "openai/gpt-4o")
	Temperature *float64 // Default temperature for all agents
	MaxTokens   *int     // Default max tokens for all agents
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Client with auto-configuration from environment.
// Providers are initialized if their API keys are present in environment
// variables (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY). Registered providers
// without a key are configured on first use.
//
// Import providers to enable them:
//
//	import (
//	    "github.com/shillcollin/agentkit"
//	    _ "github.com/shillcollin/agentkit/providers/openai"
//	    _ "github.com/shillcollin/agentkit/providers/anthropic"
//	)
//
//	client := agentkit.NewClient()
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers:  make(map[string]core.CompletionModel),
		configs:    make(map[string]ProviderConfig),
		pending:    make(map[string]func(*ProviderConfig)),
		aliases:    make(map[string]string),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.configurePending()
	c.autoConfigureProviders()
	return c
}

// configurePending builds providers configured explicitly through options.
func (c *Client) configurePending() {
	names := make([]string, 0, len(c.pending))
	for name := range c.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		factory, ok := providerFactory(name)
		if !ok {
			c.logger.Warn("provider not registered", slog.String("provider", name))
			continue
		}
		config := factory.DefaultConfig()
		c.pending[name](&config)
		if err := c.configure(name, config); err != nil {
			c.logger.Warn("provider configuration failed", slog.String("provider", name), slog.Any("error", err))
		}
	}
	c.pending = nil
}

// autoConfigureProviders builds every registered provider whose default
// config carries an API key.
func (c *Client) autoConfigureProviders() {
	for name, factory := range registeredFactories() {
		if _, exists := c.providers[name]; exists {
			continue
		}
		config := c.withClientDefaults(factory.DefaultConfig())
		if config.APIKey == "" {
			continue
		}
		provider, err := factory.New(config)
		if err != nil {
			c.logger.Warn("provider auto-configuration failed", slog.String("provider", name), slog.Any("error", err))
			continue
		}
		c.providers[name] = provider
		c.configs[name] = config
	}
}

// withClientDefaults fills the logger and any client-wide HTTP client. A nil
// HTTPClient lets the provider build its own pooled client.
func (c *Client) withClientDefaults(config ProviderConfig) ProviderConfig {
	if config.HTTPClient == nil {
		config.HTTPClient = c.httpClient
	}
	if config.Logger == nil {
		config.Logger = c.logger
	}
	return config
}

// configure builds a provider from config and stores it.
func (c *Client) configure(name string, config ProviderConfig) error {
	factory, ok := providerFactory(name)
	if !ok {
		return ErrNoProvider
	}
	config = c.withClientDefaults(config)
	provider, err := factory.New(config)
	if err != nil {
		return err
	}
	c.providers[name] = provider
	c.configs[name] = config
	return nil
}

// parseRef splits a model reference after alias and default resolution.
func (c *Client) parseRef(ref string) (string, string, error) {
	if ref == "" {
		ref = c.defaults.Model
	}
	ref, err := c.resolveAlias(ref)
	if err != nil {
		return "", "", err
	}
	if ref == "" {
		return "", "", &ModelError{Model: ref, Err: ErrNoModel}
	}
	providerID, modelID, ok := strings.Cut(ref, "/")
	if !ok || providerID == "" || modelID == "" {
		return "", "", &ModelError{Model: ref, Err: ErrInvalidModel, Available: c.availableProviders()}
	}
	return providerID, modelID, nil
}

// provider returns the configured client for a provider, configuring a
// registered provider from its defaults on first use.
func (c *Client) provider(ref, providerID string) (core.CompletionModel, error) {
	c.mu.RLock()
	p, ok := c.providers[providerID]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[providerID]; ok {
		return p, nil
	}
	factory, ok := providerFactory(providerID)
	if !ok {
		return nil, &ModelError{Model: ref, Err: ErrNoProvider, Available: c.availableProviders()}
	}
	if err := c.configure(providerID, factory.DefaultConfig()); err != nil {
		return nil, &ModelError{Model: ref, Err: err}
	}
	return c.providers[providerID], nil
}

// Model resolves a "provider/model" reference or alias. An empty reference
// selects the default model.
func (c *Client) Model(ref string) (*Model, error) {
	c.mu.RLock()
	providerID, modelID, err := c.parseRef(ref)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	p, err := c.provider(ref, providerID)
	if err != nil {
		return nil, err
	}
	return NewModel(providerID, modelID, p), nil
}

// CompletionModel resolves ref like Model. It lets a Client serve as an
// agent.ModelResolver when loading bundles.
func (c *Client) CompletionModel(ref string) (core.CompletionModel, error) {
	m, err := c.Model(ref)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// EmbeddingModel resolves a "provider/model" reference to an embedding
// model.
func (c *Client) EmbeddingModel(ref string) (core.EmbeddingModel, error) {
	c.mu.RLock()
	providerID, modelID, err := c.parseRef(ref)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if _, err := c.provider(ref, providerID); err != nil {
		return nil, err
	}
	factory, _ := providerFactory(providerID)
	ef, ok := factory.(EmbeddingFactory)
	if !ok {
		return nil, &ModelError{Model: ref, Err: ErrNoEmbeddings}
	}
	c.mu.RLock()
	config := c.configs[providerID]
	c.mu.RUnlock()
	model, err := ef.NewEmbedding(config, modelID)
	if err != nil {
		return nil, &ModelError{Model: ref, Err: err}
	}
	return model, nil
}

// Agent builds an agent on the resolved model. Client defaults apply first
// so opts can override them.
func (c *Client) Agent(ref string, opts ...agent.Option) (*agent.Agent, error) {
	m, err := c.Model(ref)
	if err != nil {
		return nil, err
	}
	base := []agent.Option{agent.WithModelName(m.Name()), agent.WithLogger(c.logger)}
	if c.defaults.Temperature != nil {
		base = append(base, agent.WithTemperature(*c.defaults.Temperature))
	}
	if c.defaults.MaxTokens != nil {
		base = append(base, agent.WithMaxTokens(*c.defaults.MaxTokens))
	}
	base = append(base, c.agentOpts...)
	return agent.New(m, append(base, opts...)...), nil
}

// LoadAgent loads an agent bundle from dir and builds it on this client's
// providers.
func (c *Client) LoadAgent(dir string, opts ...agent.Option) (*agent.Agent, *agent.Bundle, error) {
	bundle, err := agent.LoadBundle(dir)
	if err != nil {
		return nil, nil, err
	}
	a, err := c.BuildAgent(bundle, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, bundle, nil
}

// BuildAgent builds a loaded bundle on this client's providers. Client
// agent options apply after the manifest and before opts.
func (c *Client) BuildAgent(bundle *agent.Bundle, opts ...agent.Option) (*agent.Agent, error) {
	extra := append(append([]agent.Option{agent.WithLogger(c.logger)}, c.agentOpts...), opts...)
	return bundle.Build(c, extra...)
}

// availableProviders returns the sorted names of configured providers.
func (c *Client) availableProviders() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Providers returns the names of all configured providers.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.availableProviders()
}

// HasProvider checks if a provider is configured.
func (c *Client) HasProvider(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.providers[name]
	return ok
}
