// Package stream checks serialized event streams produced by the stream
// writers: every line a known event type, strictly increasing seq, one
// stream id, and nothing after the terminal final or error event.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shillcollin/agentkit/core"
)

const errorType = "error"

var knownTypes = map[string]bool{
	string(core.EventText):      true,
	string(core.EventToolCall):  true,
	string(core.EventReasoning): true,
	string(core.EventFinal):     true,
}

type wireEvent struct {
	Type     string          `json:"type"`
	Seq      *int            `json:"seq"`
	TS       string          `json:"ts"`
	StreamID string          `json:"stream_id"`
	ToolCall json.RawMessage `json:"tool_call"`
	Final    json.RawMessage `json:"final"`
	Error    string          `json:"error"`
}

func decode(data []byte) (wireEvent, error) {
	var event wireEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("decode event: %w", err)
	}
	if event.Type == "" {
		return event, errors.New("event missing type")
	}
	if event.Type == errorType {
		if event.Error == "" {
			return event, errors.New("error event without message")
		}
		return event, nil
	}
	if !knownTypes[event.Type] {
		return event, fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.Seq == nil || *event.Seq < 1 {
		return event, fmt.Errorf("invalid seq in %s event", event.Type)
	}
	if event.TS != "" {
		if _, err := time.Parse(time.RFC3339, event.TS); err != nil {
			return event, fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	switch event.Type {
	case string(core.EventToolCall):
		var call core.ToolCall
		if len(event.ToolCall) == 0 || json.Unmarshal(event.ToolCall, &call) != nil || call.Name == "" {
			return event, errors.New("tool_call event without call")
		}
		if !json.Valid(call.Arguments) {
			return event, fmt.Errorf("tool_call %s has invalid arguments", call.Name)
		}
	case string(core.EventFinal):
		if len(event.Final) == 0 || string(event.Final) == "null" {
			return event, errors.New("final event without payload")
		}
	}
	return event, nil
}

// ValidateRaw performs structural validation for a single serialized event.
func ValidateRaw(data []byte) error {
	_, err := decode(data)
	return err
}

// Validator checks the events of one stream in order.
type Validator struct {
	lastSeq  int
	streamID string
	terminal string
}

// Validate checks the next event of the stream.
func (v *Validator) Validate(data []byte) error {
	event, err := decode(data)
	if err != nil {
		return err
	}
	if v.terminal != "" {
		return fmt.Errorf("%s event after %s", event.Type, v.terminal)
	}
	if event.Type == errorType {
		v.terminal = errorType
		return nil
	}
	if event.StreamID != "" {
		if v.streamID == "" {
			v.streamID = event.StreamID
		} else if v.streamID != event.StreamID {
			return fmt.Errorf("stream id changed: %s -> %s", v.streamID, event.StreamID)
		}
	}
	if *event.Seq <= v.lastSeq {
		return fmt.Errorf("non-increasing seq: %d -> %d", v.lastSeq, *event.Seq)
	}
	v.lastSeq = *event.Seq
	if event.Type == string(core.EventFinal) {
		v.terminal = event.Type
	}
	return nil
}

// Failed reports whether the stream ended with an error event.
func (v *Validator) Failed() bool { return v.terminal == errorType }

// EnsureFinished verifies the stream reached a final event.
func (v *Validator) EnsureFinished() error {
	switch v.terminal {
	case string(core.EventFinal):
		return nil
	case errorType:
		return errors.New("stream ended with an error event")
	default:
		return errors.New("stream missing final event")
	}
}
