// Package compat adapts servers that speak the OpenAI chat completions
// protocol. Groq, xAI, vLLM, Ollama and LM Studio all fit.
package compat

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/providers/openai"
)

// CompatOpts configures the OpenAI-compatible client.
type CompatOpts struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Headers     map[string]string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      *slog.Logger
	ParamPolicy openai.ParamPolicy
}

// Client is a chat completions client labelled with the compatible
// provider's name.
type Client struct {
	*openai.Client
}

// New constructs a provider targeting an OpenAI-compatible API surface.
func New(opts CompatOpts) *Client {
	provider := opts.Provider
	if provider == "" {
		provider = "compat"
	}
	options := []openai.Option{
		openai.WithProviderName(provider),
		openai.WithBaseURL(opts.BaseURL),
		openai.WithAPIKey(opts.APIKey),
	}
	if opts.Model != "" {
		options = append(options, openai.WithModel(opts.Model))
	}
	if opts.HTTPClient != nil {
		options = append(options, openai.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		options = append(options, openai.WithTimeout(opts.Timeout))
	}
	if opts.Logger != nil {
		options = append(options, openai.WithLogger(opts.Logger))
	}
	if opts.ParamPolicy != nil {
		options = append(options, openai.WithParamPolicy(opts.ParamPolicy))
	}
	for k, v := range opts.Headers {
		options = append(options, openai.WithHeader(k, v))
	}
	return &Client{Client: openai.New(options...)}
}

// Factory registers an OpenAI-compatible service with the provider
// registry. Environment variables are read as <EnvPrefix>_API_KEY and
// <EnvPrefix>_BASE_URL.
type Factory struct {
	Name           string
	DefaultBaseURL string
	DefaultModel   string
	EnvPrefix      string
	ParamPolicy    openai.ParamPolicy
}

// New implements agentkit.ProviderFactory.
func (f Factory) New(config agentkit.ProviderConfig) (core.CompletionModel, error) {
	return f.Client(config), nil
}

// NewEmbedding implements agentkit.EmbeddingFactory for servers exposing
// /embeddings.
func (f Factory) NewEmbedding(config agentkit.ProviderConfig, model string) (core.EmbeddingModel, error) {
	return f.Client(config).EmbeddingModel(model, 0), nil
}

// Client builds the typed client for config.
func (f Factory) Client(config agentkit.ProviderConfig) *Client {
	opts := CompatOpts{
		Provider:    f.Name,
		BaseURL:     config.BaseURL,
		APIKey:      config.APIKey,
		Model:       config.DefaultModel,
		Headers:     config.Headers,
		HTTPClient:  config.HTTPClient,
		Timeout:     config.Timeout,
		Logger:      config.Logger,
		ParamPolicy: f.ParamPolicy,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = f.DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = f.DefaultModel
	}
	return New(opts)
}

// DefaultConfig implements agentkit.ProviderFactory.
func (f Factory) DefaultConfig() agentkit.ProviderConfig {
	prefix := f.EnvPrefix
	if prefix == "" {
		prefix = strings.ToUpper(f.Name)
	}
	return agentkit.ProviderConfig{
		APIKey:  os.Getenv(prefix + "_API_KEY"),
		BaseURL: os.Getenv(prefix + "_BASE_URL"),
	}
}
