// Package httpapi serves agents over HTTP: a blocking prompt endpoint that
// runs the tool loop, and a streaming endpoint emitting normalized events as
// SSE or NDJSON.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shillcollin/agentkit/agent"
	"github.com/shillcollin/agentkit/stream"
)

const (
	bodyLimit           = "4M" // room for inline images
	shutdownGracePeriod = 10 * time.Second
	defaultReadTimeout  = 30 * time.Second
	idleTimeout         = 120 * time.Second

	FormatSSE    = "sse"
	FormatNDJSON = "ndjson"

	mimeNDJSON = "application/x-ndjson"
	mimeSSE    = "text/event-stream"
)

// Server exposes a fixed set of named agents.
type Server struct {
	app          *echo.Echo
	agents       map[string]*agent.Agent
	logger       *slog.Logger
	addr         string
	format       string
	policy       stream.Policy
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address used by Run.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithStreamFormat sets the format used when a stream request's Accept
// header names neither SSE nor NDJSON.
func WithStreamFormat(format string) Option {
	return func(s *Server) { s.format = format }
}

// WithPolicy sets the event filtering policy for streams.
func WithPolicy(policy stream.Policy) Option {
	return func(s *Server) { s.policy = policy }
}

// WithTimeouts sets the HTTP server read and write timeouts. Zero leaves the
// default. Streams longer than the write timeout are cut off.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs an HTTP server wired with routing and middleware.
func New(agents map[string]*agent.Agent, opts ...Option) (*Server, error) {
	if len(agents) == 0 {
		return nil, errors.New("httpapi: at least one agent is required")
	}
	s := &Server{
		agents:      agents,
		logger:      slog.Default(),
		addr:        ":8080",
		format:      FormatSSE,
		policy:      stream.DefaultPolicy(),
		readTimeout: defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.format != FormatSSE && s.format != FormatNDJSON {
		return nil, fmt.Errorf("httpapi: unknown stream format %q", s.format)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"request_id", v.RequestID,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	s.app = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.app.GET("/healthz", s.handleHealth)
	s.app.GET("/v1/agents", s.handleListAgents)
	s.app.POST("/v1/agents/:name/prompt", s.handlePrompt)
	s.app.POST("/v1/agents/:name/stream", s.handleStream)
}

// Handler returns the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.app }

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.addr, "agents", s.agentNames())

	httpServer := &http.Server{
		Addr:         s.addr,
		Handler:      s.app,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) agentNames() []string {
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) lookup(c echo.Context) (*agent.Agent, error) {
	name := c.Param("name")
	a, ok := s.agents[name]
	if !ok {
		return nil, requestError{
			Status:  http.StatusNotFound,
			Message: fmt.Sprintf("agent %q not found", name),
			Type:    "not_found",
		}
	}
	return a, nil
}
