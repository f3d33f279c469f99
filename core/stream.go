package core

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrStreamClosed indicates the stream has already been closed.
var ErrStreamClosed = errors.New("stream closed")

// ErrStreamCancelled is returned by the first read after a stream was cancelled.
var ErrStreamCancelled = errors.New("stream cancelled")

// RawKind enumerates raw decoder outputs.
type RawKind int

const (
	RawText RawKind = iota + 1
	RawReasoning
	RawToolCall
	RawToolCallEnd
	RawFinal
)

func (k RawKind) String() string {
	switch k {
	case RawText:
		return "text"
	case RawReasoning:
		return "reasoning"
	case RawToolCall:
		return "tool_call"
	case RawToolCallEnd:
		return "tool_call_end"
	case RawFinal:
		return "final"
	default:
		return "unknown"
	}
}

// RawToolCallDelta is one fragment of a streamed tool call. Fragments with the same
// Index belong to the same call; ID and Name are usually only set on the first.
type RawToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// RawChoice is a provider-neutral decoder output.
type RawChoice struct {
	Kind      RawKind
	Text      string
	Signature string
	ToolCall  RawToolCallDelta
	Final     *FinalResponse
}

// TextChoice builds a text delta.
func TextChoice(text string) RawChoice { return RawChoice{Kind: RawText, Text: text} }

// ReasoningChoice builds a reasoning delta.
func ReasoningChoice(text string) RawChoice { return RawChoice{Kind: RawReasoning, Text: text} }

// ToolCallChoice builds a tool-call fragment.
func ToolCallChoice(index int, id, name, args string) RawChoice {
	return RawChoice{Kind: RawToolCall, ToolCall: RawToolCallDelta{Index: index, ID: id, Name: name, Arguments: args}}
}

// ToolCallEndChoice marks the call at index as syntactically complete.
func ToolCallEndChoice(index int) RawChoice {
	return RawChoice{Kind: RawToolCallEnd, ToolCall: RawToolCallDelta{Index: index}}
}

// FinalChoice carries terminal usage and the raw provider payload.
func FinalChoice(usage Usage, raw json.RawMessage) RawChoice {
	return RawChoice{Kind: RawFinal, Final: &FinalResponse{Usage: usage, Raw: raw}}
}

// RawStream is a pull iterator over decoded provider chunks. Next returns io.EOF
// once the provider ended the stream cleanly.
type RawStream struct {
	next   func() (RawChoice, error)
	closer io.Closer

	mu     sync.Mutex
	done   bool
	err    error
	closed bool
}

// NewRawStream wraps a next function and the transport closer.
func NewRawStream(next func() (RawChoice, error), closer io.Closer) *RawStream {
	return &RawStream{next: next, closer: closer}
}

// RawStreamFromChoices replays a fixed sequence; useful for fakes.
func RawStreamFromChoices(choices ...RawChoice) *RawStream {
	i := 0
	return NewRawStream(func() (RawChoice, error) {
		if i >= len(choices) {
			return RawChoice{}, io.EOF
		}
		c := choices[i]
		i++
		return c, nil
	}, nil)
}

// Next returns the next raw choice. After an error every call returns the same error.
func (s *RawStream) Next() (RawChoice, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RawChoice{}, ErrStreamClosed
	}
	if s.done {
		err := s.err
		s.mu.Unlock()
		return RawChoice{}, err
	}
	s.mu.Unlock()

	choice, err := s.next()
	if err != nil {
		s.mu.Lock()
		s.done = true
		s.err = err
		s.mu.Unlock()
		return RawChoice{}, err
	}
	return choice, nil
}

// Close releases the transport. It is safe to call more than once.
func (s *RawStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// EventType enumerates normalized stream event types.
type EventType string

const (
	EventText      EventType = "text"
	EventToolCall  EventType = "tool_call"
	EventReasoning EventType = "reasoning"
	EventFinal     EventType = "final"
)

// StreamEvent is one item of a normalized stream. Tool calls are always complete.
type StreamEvent struct {
	Type      EventType `json:"type"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"ts"`
	StreamID  string    `json:"stream_id,omitempty"`

	Text      string         `json:"text,omitempty"`
	Reasoning *Reasoning     `json:"reasoning,omitempty"`
	ToolCall  *ToolCall      `json:"tool_call,omitempty"`
	Final     *FinalResponse `json:"final,omitempty"`
}
