// Package httpclient holds the JSON-over-HTTP plumbing shared by provider
// clients.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// UserAgent is sent when a request carries none.
const UserAgent = "agentkit-go"

// DefaultTimeout bounds the wait for response headers.
const DefaultTimeout = 60 * time.Second

type config struct {
	timeout   time.Duration
	transport http.RoundTripper
	userAgent string
}

// Option configures New.
type Option func(*config)

// WithTimeout bounds the wait for response headers. A streamed body may take
// longer; its lifetime is governed by the request context.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces the pooled transport. The header timeout is not
// applied to a custom transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.transport = rt }
}

// WithUserAgent overrides UserAgent.
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// New returns a client for provider APIs. The client has no overall
// Timeout so that streaming responses are not cut off mid-body.
func New(opts ...Option) *http.Client {
	cfg := config{timeout: DefaultTimeout, userAgent: UserAgent}
	for _, opt := range opts {
		opt(&cfg)
	}
	base := cfg.transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = cfg.timeout
		t.MaxIdleConnsPerHost = 32
		t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		base = t
	}
	return &http.Client{Transport: &userAgentTransport{base: base, ua: cfg.userAgent}}
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ua == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(req)
}
