package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/obs"
	"github.com/shillcollin/agentkit/stream"
)

// statusClientClosed is the non-standard status logged when the caller goes
// away mid request.
const statusClientClosed = 499

// PromptRequest is the body of the prompt and stream endpoints.
type PromptRequest struct {
	Prompt   string         `json:"prompt"`
	History  []core.Message `json:"history,omitempty"`
	MaxTurns int            `json:"max_turns,omitempty"`
}

// PromptResponse is the result of a converged prompt.
type PromptResponse struct {
	Text     string         `json:"text"`
	Usage    core.Usage     `json:"usage"`
	Turns    int            `json:"turns"`
	Messages []core.Message `json:"messages"`
}

// AgentInfo describes a served agent.
type AgentInfo struct {
	Name     string   `json:"name"`
	Tools    []string `json:"tools"`
	MaxTurns int      `json:"max_turns"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "agents": len(s.agents)})
}

func (s *Server) handleListAgents(c echo.Context) error {
	out := make([]AgentInfo, 0, len(s.agents))
	for _, name := range s.agentNames() {
		a := s.agents[name]
		info := AgentInfo{Name: name, Tools: []string{}, MaxTurns: a.MaxTurns()}
		if set := a.Tools(); set != nil {
			info.Tools = set.Names()
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) decodePrompt(c echo.Context) (PromptRequest, error) {
	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return req, requestError{
			Status:  http.StatusBadRequest,
			Message: "invalid JSON payload: " + err.Error(),
			Type:    "invalid_request_error",
		}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, requestError{
			Status:  http.StatusBadRequest,
			Message: "prompt must not be empty",
			Type:    "invalid_request_error",
		}
	}
	if req.MaxTurns < 0 {
		return req, requestError{
			Status:  http.StatusBadRequest,
			Message: "max_turns must not be negative",
			Type:    "invalid_request_error",
		}
	}
	if err := core.ValidateMessages(req.History); err != nil {
		return req, requestError{
			Status:  http.StatusBadRequest,
			Message: "invalid history: " + err.Error(),
			Type:    "invalid_request_error",
		}
	}
	return req, nil
}

func (s *Server) handlePrompt(c echo.Context) error {
	a, err := s.lookup(c)
	if err != nil {
		return err
	}
	body, err := s.decodePrompt(c)
	if err != nil {
		return err
	}

	ctx, rec := obs.StartRequest(c.Request().Context(), "httpapi.prompt",
		attribute.String("agent", c.Param("name")),
		attribute.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)
	history := core.CloneMessages(body.History)
	pr := a.PromptRequest(body.Prompt).WithHistory(&history)
	if body.MaxTurns > 0 {
		pr = pr.MultiTurn(body.MaxTurns)
	}
	res, err := pr.Send(ctx)
	if err != nil {
		rec.End(err, obs.UsageTokens{})
		return s.toHTTPError(err)
	}
	rec.AddAttributes(attribute.Int("turns", res.Turns))
	rec.End(nil, obs.UsageFromCore(res.Usage))

	messages := res.Messages
	if messages == nil {
		messages = []core.Message{}
	}
	return c.JSON(http.StatusOK, PromptResponse{
		Text:     res.Text,
		Usage:    res.Usage,
		Turns:    res.Turns,
		Messages: messages,
	})
}

func (s *Server) handleStream(c echo.Context) error {
	a, err := s.lookup(c)
	if err != nil {
		return err
	}
	body, err := s.decodePrompt(c)
	if err != nil {
		return err
	}

	ctx, rec := obs.StartRequest(c.Request().Context(), "httpapi.stream",
		attribute.String("agent", c.Param("name")),
	)
	result, err := a.StreamChat(ctx, body.Prompt, body.History)
	if err != nil {
		rec.End(err, obs.UsageTokens{})
		return s.toHTTPError(err)
	}
	defer result.Close()

	format := s.negotiate(c.Request().Header.Get(echo.HeaderAccept))
	rec.AddAttributes(attribute.String("format", format))
	w := c.Response()
	if format == FormatNDJSON {
		err = stream.NDJSON(ctx, w, result, s.policy)
	} else {
		err = stream.SSEWithPolicy(ctx, w, result, s.policy)
	}
	var usage obs.UsageTokens
	if resp, ok := result.Response(); ok {
		usage = obs.UsageFromCore(resp.Usage)
	}
	rec.End(err, usage)
	if err != nil {
		result.Cancel()
		// The failure was already written to the stream as an error event.
		s.logger.WarnContext(ctx, "stream ended with error", "agent", c.Param("name"), "error", err)
	}
	return nil
}

// negotiate picks the stream format from the Accept header.
func (s *Server) negotiate(accept string) string {
	switch {
	case strings.Contains(accept, mimeNDJSON):
		return FormatNDJSON
	case strings.Contains(accept, mimeSSE):
		return FormatSSE
	default:
		return s.format
	}
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	return c.JSON(status, payload)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, http.StatusText(he.Code), "invalid_request_error")
		return
	}
	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error")
}

// toHTTPError maps agent failures onto HTTP statuses.
func (s *Server) toHTTPError(err error) error {
	message := err.Error()
	if s.policy.MaskErrors {
		message = "request failed"
	}
	switch {
	case core.IsRequestError(err):
		return requestError{Status: http.StatusBadRequest, Message: message, Type: "invalid_request_error"}
	case core.IsMaxTurnsExceeded(err):
		return requestError{Status: http.StatusUnprocessableEntity, Message: message, Type: "max_turns_exceeded"}
	case errors.Is(err, context.DeadlineExceeded):
		return requestError{Status: http.StatusGatewayTimeout, Message: message, Type: "timeout"}
	case core.IsPromptCancelled(err), errors.Is(err, context.Canceled):
		return requestError{Status: statusClientClosed, Message: message, Type: "cancelled"}
	case core.IsRetryable(err):
		return requestError{Status: http.StatusServiceUnavailable, Message: message, Type: "upstream_unavailable"}
	case core.IsProviderError(err), core.IsHTTPError(err), core.IsResponseError(err), core.IsProtocolError(err):
		return requestError{Status: http.StatusBadGateway, Message: message, Type: "upstream_error"}
	case core.IsToolNotFound(err):
		return requestError{Status: http.StatusBadGateway, Message: message, Type: "tool_error"}
	default:
		return requestError{Status: http.StatusInternalServerError, Message: message, Type: "server_error"}
	}
}
