// Package xai adapts the xAI Grok API, which speaks the chat completions
// protocol.
package xai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/providers/compat"
)

// DefaultBaseURL is the xAI API root.
const DefaultBaseURL = "https://api.x.ai/v1"

// Grok model names.
const (
	Grok4     = "grok-4"
	Grok3     = "grok-3"
	Grok3Mini = "grok-3-mini"
)

// Option configures the client.
type Option func(*options)

type options struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		baseURL: DefaultBaseURL,
		model:   Grok3Mini,
		timeout: 120 * time.Second,
		headers: map[string]string{},
	}
}

// WithAPIKey configures the API key.
func WithAPIKey(key string) Option { return func(o *options) { o.apiKey = key } }

// WithModel sets the default model.
func WithModel(model string) Option { return func(o *options) { o.model = model } }

// WithBaseURL overrides the API root.
func WithBaseURL(url string) Option { return func(o *options) { o.baseURL = url } }

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithHeader adds a static request header.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers[key] = value }
}

// WithTimeout customizes the client timeout.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithLogger sets the logger for dropped parameter warnings.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New constructs a new xAI client.
func New(opts ...Option) *compat.Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(o.timeout))
	}
	return compat.New(compat.CompatOpts{
		Provider:    "xai",
		BaseURL:     o.baseURL,
		APIKey:      o.apiKey,
		Model:       o.model,
		HTTPClient:  o.httpClient,
		Headers:     o.headers,
		Logger:      o.logger,
		ParamPolicy: allowParam,
	})
}

// Reasoning models reject penalties and stop sequences; only grok-3-mini
// takes a reasoning effort.
func allowParam(model, key string, value any) bool {
	m := strings.ToLower(model)
	reasoning := strings.HasPrefix(m, Grok4) || strings.HasPrefix(m, Grok3Mini)
	switch key {
	case "presence_penalty", "frequency_penalty", "stop":
		return !reasoning
	case "reasoning_effort":
		effort, _ := value.(string)
		return strings.HasPrefix(m, Grok3Mini) && (effort == "low" || effort == "high")
	default:
		return true
	}
}

// Factory creates xAI clients from XAI_API_KEY and XAI_BASE_URL.
var Factory = compat.Factory{
	Name:           "xai",
	DefaultBaseURL: DefaultBaseURL,
	DefaultModel:   Grok3Mini,
	EnvPrefix:      "XAI",
	ParamPolicy:    allowParam,
}

func init() {
	agentkit.RegisterProvider("xai", Factory)
}
