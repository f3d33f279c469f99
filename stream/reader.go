package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/shillcollin/agentkit/core"
	internalstream "github.com/shillcollin/agentkit/internal/stream"
)

// Format identifies the upstream stream encoding.
type Format int

const (
	FormatSSE Format = iota
	FormatNDJSON
)

// Frame is one transport unit: an SSE event or an NDJSON line.
type Frame struct {
	Event string
	Data  string
}

// FrameReader splits a response body into frames.
type FrameReader struct {
	source  io.ReadCloser
	format  Format
	scanner *bufio.Reader
	// done is also set by Close, which may run on another goroutine.
	done atomic.Bool
}

// NewFrameReader constructs a reader for the given format.
func NewFrameReader(r io.ReadCloser, format Format) *FrameReader {
	return &FrameReader{
		source:  r,
		format:  format,
		scanner: bufio.NewReader(r),
	}
}

// Next returns the next frame, or io.EOF once the body is exhausted.
func (r *FrameReader) Next() (Frame, error) {
	if r.done.Load() {
		return Frame{}, io.EOF
	}
	var (
		frame Frame
		err   error
	)
	switch r.format {
	case FormatNDJSON:
		frame, err = r.readLine()
	case FormatSSE:
		frame, err = r.readSSE()
	default:
		err = fmt.Errorf("unsupported format %d", r.format)
	}
	if errors.Is(err, io.EOF) {
		r.done.Store(true)
	}
	return frame, err
}

func (r *FrameReader) readLine() (Frame, error) {
	for {
		line, err := r.scanner.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return Frame{Data: trimmed}, nil
		}
		if err != nil {
			return Frame{}, err
		}
	}
}

func (r *FrameReader) readSSE() (Frame, error) {
	var (
		frame   Frame
		data    strings.Builder
		hasData bool
	)
	for {
		line, err := r.scanner.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Frame{}, err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData || frame.Event != "" {
				frame.Data = data.String()
				return frame, nil
			}
			if eof {
				return Frame{}, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			if eof {
				return r.flushPending(frame, &data, hasData)
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			frame.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
		if eof {
			return r.flushPending(frame, &data, hasData)
		}
	}
}

// flushPending dispatches an event that was not terminated by a blank line.
func (r *FrameReader) flushPending(frame Frame, data *strings.Builder, hasData bool) (Frame, error) {
	if !hasData && frame.Event == "" {
		return Frame{}, io.EOF
	}
	frame.Data = data.String()
	r.done.Store(true)
	return frame, nil
}

// Close releases the underlying reader.
func (r *FrameReader) Close() error {
	r.done.Store(true)
	if r.source != nil {
		return r.source.Close()
	}
	return nil
}

// EventReader consumes normalized events written by SSE or NDJSON and checks
// their ordering invariants.
type EventReader struct {
	frames    *FrameReader
	validator *internalstream.Validator
}

// NewEventReader constructs a reader for the given format.
func NewEventReader(r io.ReadCloser, format Format) *EventReader {
	return &EventReader{
		frames:    NewFrameReader(r, format),
		validator: &internalstream.Validator{},
	}
}

// Read returns the next event. Error frames written by the server are returned
// as errors.
func (r *EventReader) Read() (core.StreamEvent, error) {
	frame, err := r.frames.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if ferr := r.validator.EnsureFinished(); ferr != nil {
				return core.StreamEvent{}, ferr
			}
		}
		return core.StreamEvent{}, err
	}
	if frame.Event == "error" || isErrorPayload(frame.Data) {
		var payload errorPayload
		if err := json.Unmarshal([]byte(frame.Data), &payload); err != nil || payload.Error == "" {
			return core.StreamEvent{}, fmt.Errorf("stream error: %s", frame.Data)
		}
		return core.StreamEvent{}, &RemoteError{Kind: payload.Kind, Message: payload.Error}
	}
	if err := r.validator.Validate([]byte(frame.Data)); err != nil {
		return core.StreamEvent{}, err
	}
	var event core.StreamEvent
	if err := json.Unmarshal([]byte(frame.Data), &event); err != nil {
		return core.StreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}
	return event, nil
}

// Close releases the underlying reader.
func (r *EventReader) Close() error {
	return r.frames.Close()
}

func isErrorPayload(data string) bool {
	var head struct {
		Type string `json:"type"`
	}
	return json.Unmarshal([]byte(data), &head) == nil && head.Type == "error"
}

// RemoteError is an error frame received from a server.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}
