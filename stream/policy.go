package stream

import (
	"errors"
	"time"

	"github.com/shillcollin/agentkit/core"
)

// Policy controls which events are forwarded to a client and how failures
// are reported.
type Policy struct {
	SendReasoning bool
	SendFinal     bool
	// MaskErrors replaces error text with a generic message; the kind is kept.
	MaskErrors bool
	BufferSize int
	// Heartbeat is the SSE idle interval before a keep-alive comment.
	Heartbeat time.Duration
}

// DefaultPolicy forwards everything except reasoning.
func DefaultPolicy() Policy {
	return Policy{SendFinal: true}
}

// isZero reports whether no filtering option is set.
func (p Policy) isZero() bool {
	return !p.SendReasoning && !p.SendFinal && !p.MaskErrors
}

func filterEvent(policy Policy, event core.StreamEvent) (core.StreamEvent, bool) {
	if policy.isZero() {
		return event, true
	}
	switch event.Type {
	case core.EventReasoning:
		if !policy.SendReasoning {
			return core.StreamEvent{}, false
		}
	case core.EventFinal:
		if !policy.SendFinal {
			return core.StreamEvent{}, false
		}
		// Raw provider payloads stay server side.
		cloned := event
		cloned.Final = &core.FinalResponse{Usage: event.Final.Usage}
		return cloned, true
	}
	return event, true
}

type errorPayload struct {
	Type  string `json:"type"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}

func errorEvent(policy Policy, err error) errorPayload {
	payload := errorPayload{Type: "error", Kind: errorKind(err), Error: err.Error()}
	if policy.MaskErrors {
		payload.Error = "stream failed"
	}
	return payload
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrStreamCancelled):
		return "cancelled"
	case core.IsProtocolError(err):
		return string(core.ProtocolError)
	case core.IsResponseError(err):
		return string(core.ResponseError)
	case core.IsProviderError(err):
		return string(core.ProviderError)
	case core.IsHTTPError(err):
		return string(core.HTTPError)
	default:
		return ""
	}
}
