package anthropic

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the Anthropic API root.
const DefaultBaseURL = "https://api.anthropic.com/v1"

// APIVersion is sent as the anthropic-version header unless overridden.
const APIVersion = "2023-06-01"

type Option func(*options)

type options struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		baseURL: DefaultBaseURL,
		model:   string(ClaudeSonnet45),
		timeout: 60 * time.Second,
		headers: map[string]string{},
		logger:  slog.Default(),
	}
}

func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithBeta enables an anthropic-beta feature flag.
func WithBeta(feature string) Option {
	return WithHeader("anthropic-beta", feature)
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
