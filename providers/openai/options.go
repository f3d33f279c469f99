package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Option configures the client.
type Option func(*options)

type options struct {
	apiKey       string
	baseURL      string
	model        string
	organization string
	provider     string
	httpClient   *http.Client
	headers      map[string]string
	timeout      time.Duration
	logger       *slog.Logger
	paramPolicy  ParamPolicy
}

// ParamPolicy reports whether an additional request parameter may be sent
// for model. Compatible servers reject fields the OpenAI API accepts.
type ParamPolicy func(model, key string, value any) bool

func defaultOptions() options {
	return options{
		baseURL:  DefaultBaseURL,
		model:    string(GPT4oMini),
		provider: "openai",
		timeout:  60 * time.Second,
		headers:  map[string]string{},
		logger:   slog.Default(),
	}
}

// WithAPIKey configures the API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(o *options) { o.organization = org }
}

// WithProviderName labels errors, spans and logs. OpenAI-compatible
// providers built on this client set their own name.
func WithProviderName(name string) Option {
	return func(o *options) { o.provider = name }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithHeader adds a static request header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithTimeout customizes the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger used for dropped parameter warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithParamPolicy replaces the built-in OpenAI model profiles for
// additional parameters.
func WithParamPolicy(policy ParamPolicy) Option {
	return func(o *options) { o.paramPolicy = policy }
}
