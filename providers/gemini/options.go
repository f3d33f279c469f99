package gemini

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Option func(*options)

type options struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		baseURL: DefaultBaseURL,
		model:   string(Gemini25Flash),
		timeout: 60 * time.Second,
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
