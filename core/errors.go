package core

import (
	"errors"
	"fmt"
)

// CompletionErrorKind categorizes failures of a single completion round.
type CompletionErrorKind string

const (
	HTTPError     CompletionErrorKind = "http_error"
	JSONError     CompletionErrorKind = "json_error"
	RequestError  CompletionErrorKind = "request_error"
	ResponseError CompletionErrorKind = "response_error"
	ProviderError CompletionErrorKind = "provider_error"
	ProtocolError CompletionErrorKind = "protocol_error"
)

// CompletionError reports transport, provider and parse failures. It is fatal to
// the current round and never retried by the SDK itself.
type CompletionError struct {
	Kind     CompletionErrorKind
	Provider string
	Message  string
	Status   int
	Type     string
	wrapped  error
}

func (e *CompletionError) Error() string {
	if e == nil {
		return ""
	}
	prefix := string(e.Kind)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}
	if e.Status > 0 {
		prefix = fmt.Sprintf("%s (%d)", prefix, e.Status)
	}
	if e.wrapped != nil {
		if e.Message == "" {
			return fmt.Sprintf("%s: %v", prefix, e.wrapped)
		}
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *CompletionError) Unwrap() error { return e.wrapped }

// NewCompletionError builds a CompletionError explicitly.
func NewCompletionError(kind CompletionErrorKind, message string, opts ...ErrorOption) *CompletionError {
	e := &CompletionError{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WrapCompletionError wraps err unless it already is a CompletionError.
func WrapCompletionError(err error, kind CompletionErrorKind, opts ...ErrorOption) *CompletionError {
	if err == nil {
		return nil
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}
	e := &CompletionError{Kind: kind, wrapped: err}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrorOption mutates a CompletionError during construction.
type ErrorOption func(*CompletionError)

// WithStatus sets the HTTP status code.
func WithStatus(status int) ErrorOption {
	return func(e *CompletionError) { e.Status = status }
}

// WithProvider records the provider name.
func WithProvider(name string) ErrorOption {
	return func(e *CompletionError) { e.Provider = name }
}

// WithErrorType records the provider's error type string.
func WithErrorType(typ string) ErrorOption {
	return func(e *CompletionError) { e.Type = typ }
}

// WithWrapped attaches an underlying error.
func WithWrapped(err error) ErrorOption {
	return func(e *CompletionError) { e.wrapped = err }
}

// ToolSetErrorKind categorizes tool lookup and execution failures.
type ToolSetErrorKind string

const (
	ToolNotFound  ToolSetErrorKind = "tool_not_found"
	ToolCallError ToolSetErrorKind = "tool_call_error"
)

// ToolSetError is returned by tool lookup and invocation.
type ToolSetError struct {
	Kind    ToolSetErrorKind
	Name    string
	wrapped error
}

// NewToolNotFound reports a call to an unknown tool.
func NewToolNotFound(name string) *ToolSetError {
	return &ToolSetError{Kind: ToolNotFound, Name: name}
}

// NewToolCallError wraps a failure raised by the tool itself.
func NewToolCallError(name string, err error) *ToolSetError {
	return &ToolSetError{Kind: ToolCallError, Name: name, wrapped: err}
}

func (e *ToolSetError) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind == ToolNotFound {
		return fmt.Sprintf("tool %q not found", e.Name)
	}
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.wrapped)
}

func (e *ToolSetError) Unwrap() error { return e.wrapped }

// PromptErrorKind categorizes failures of a multi-turn prompt.
type PromptErrorKind string

const (
	PromptCompletionError PromptErrorKind = "completion_error"
	PromptToolError       PromptErrorKind = "tool_error"
	MaxTurnsExceeded      PromptErrorKind = "max_turns_exceeded"
	PromptCancelled       PromptErrorKind = "cancelled"
)

// PromptError is returned by the multi-turn loop.
type PromptError struct {
	Kind     PromptErrorKind
	MaxTurns int
	// Pending holds the tool calls left unanswered when the turn budget ran out.
	Pending  []ToolCall
	wrapped  error
}

// WrapPromptError classifies err as a completion or tool failure.
func WrapPromptError(err error) *PromptError {
	if err == nil {
		return nil
	}
	var pe *PromptError
	if errors.As(err, &pe) {
		return pe
	}
	var te *ToolSetError
	if errors.As(err, &te) {
		return &PromptError{Kind: PromptToolError, wrapped: err}
	}
	if errors.Is(err, ErrStreamCancelled) {
		return &PromptError{Kind: PromptCancelled, wrapped: err}
	}
	return &PromptError{Kind: PromptCompletionError, wrapped: err}
}

// NewPromptError builds a PromptError of kind wrapping err.
func NewPromptError(kind PromptErrorKind, err error) *PromptError {
	return &PromptError{Kind: kind, wrapped: err}
}

// NewMaxTurnsExceeded reports a loop that did not converge.
func NewMaxTurnsExceeded(maxTurns int, pending []ToolCall) *PromptError {
	return &PromptError{Kind: MaxTurnsExceeded, MaxTurns: maxTurns, Pending: pending}
}

func (e *PromptError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case MaxTurnsExceeded:
		return fmt.Sprintf("reached max turns (%d) without a final answer", e.MaxTurns)
	case PromptCancelled:
		if e.wrapped != nil {
			return fmt.Sprintf("prompt cancelled: %v", e.wrapped)
		}
		return "prompt cancelled"
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.wrapped)
	}
}

func (e *PromptError) Unwrap() error { return e.wrapped }

func completionKind(kind CompletionErrorKind) func(error) bool {
	return func(err error) bool {
		var ce *CompletionError
		if errors.As(err, &ce) {
			return ce.Kind == kind
		}
		return false
	}
}

func toolKind(kind ToolSetErrorKind) func(error) bool {
	return func(err error) bool {
		var te *ToolSetError
		if errors.As(err, &te) {
			return te.Kind == kind
		}
		return false
	}
}

func promptKind(kind PromptErrorKind) func(error) bool {
	return func(err error) bool {
		var pe *PromptError
		if errors.As(err, &pe) {
			return pe.Kind == kind
		}
		return false
	}
}

// Helper predicates for common error handling patterns.
var (
	IsHTTPError     = completionKind(HTTPError)
	IsJSONError     = completionKind(JSONError)
	IsRequestError  = completionKind(RequestError)
	IsResponseError = completionKind(ResponseError)
	IsProviderError = completionKind(ProviderError)
	IsProtocolError = completionKind(ProtocolError)

	IsToolNotFound  = toolKind(ToolNotFound)
	IsToolCallError = toolKind(ToolCallError)

	IsMaxTurnsExceeded = promptKind(MaxTurnsExceeded)
	IsPromptCancelled  = promptKind(PromptCancelled)
)

// IsRetryable reports whether a provider error status suggests retrying later.
func IsRetryable(err error) bool {
	var ce *CompletionError
	if !errors.As(err, &ce) {
		return false
	}
	switch {
	case ce.Kind == HTTPError:
		return true
	case ce.Status == 429, ce.Status == 529, ce.Status >= 500:
		return true
	}
	return false
}
