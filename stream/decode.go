package stream

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/shillcollin/agentkit/core"
)

// ErrDone is returned by a Decoder when the provider's terminal sentinel arrives.
// Choices returned alongside it are still delivered.
var ErrDone = errors.New("stream: done")

// Decoder turns one transport frame into provider-neutral raw choices. Frames
// that carry nothing of interest yield no choices and no error.
type Decoder interface {
	Decode(frame Frame) ([]core.RawChoice, error)
}

// Flusher is implemented by decoders that hold state until the transport ends,
// such as providers without a terminal sentinel.
type Flusher interface {
	Flush() ([]core.RawChoice, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(frame Frame) ([]core.RawChoice, error)

// Decode calls f(frame).
func (f DecoderFunc) Decode(frame Frame) ([]core.RawChoice, error) { return f(frame) }

// IsDoneSentinel reports whether data is the conventional "[DONE]" marker.
func IsDoneSentinel(data string) bool {
	return strings.TrimSpace(data) == "[DONE]"
}

// NewRawStream binds a transport body and a decoder into a core.RawStream.
// Transport read failures surface as HTTPError, decoder failures as
// ResponseError; both end the stream.
func NewRawStream(body io.ReadCloser, format Format, decoder Decoder, opts ...core.ErrorOption) *core.RawStream {
	frames := NewFrameReader(body, format)
	var (
		pending []core.RawChoice
		ended   bool
	)
	next := func() (core.RawChoice, error) {
		for {
			if len(pending) > 0 {
				choice := pending[0]
				pending = pending[1:]
				return choice, nil
			}
			if ended {
				return core.RawChoice{}, io.EOF
			}
			frame, err := frames.Next()
			if errors.Is(err, io.EOF) {
				ended = true
				if f, ok := decoder.(Flusher); ok {
					choices, ferr := f.Flush()
					if ferr != nil {
						return core.RawChoice{}, core.WrapCompletionError(ferr, core.ResponseError, opts...)
					}
					pending = append(pending, choices...)
				}
				continue
			}
			if err != nil {
				return core.RawChoice{}, core.WrapCompletionError(err, core.HTTPError, opts...)
			}
			if strings.TrimSpace(frame.Data) == "" {
				continue
			}
			choices, err := decoder.Decode(frame)
			if errors.Is(err, ErrDone) {
				ended = true
				pending = append(pending, choices...)
				continue
			}
			if err != nil {
				return core.RawChoice{}, core.WrapCompletionError(err, core.ResponseError, opts...)
			}
			pending = append(pending, choices...)
		}
	}
	return core.NewRawStream(next, frames)
}

// OnEnd wraps raw so fn runs once when the stream ends, fails or is closed
// early. usage is taken from the Final choice, if one was read; err is nil on
// a clean end and core.ErrStreamClosed when the consumer closed it first.
func OnEnd(raw *core.RawStream, fn func(usage core.Usage, err error)) *core.RawStream {
	var (
		once  sync.Once
		mu    sync.Mutex
		usage core.Usage
	)
	end := func(err error) {
		once.Do(func() {
			mu.Lock()
			u := usage
			mu.Unlock()
			fn(u, err)
		})
	}
	next := func() (core.RawChoice, error) {
		choice, err := raw.Next()
		if errors.Is(err, io.EOF) {
			end(nil)
			return choice, err
		}
		if err != nil {
			end(err)
			return choice, err
		}
		if choice.Kind == core.RawFinal && choice.Final != nil {
			mu.Lock()
			usage = choice.Final.Usage
			mu.Unlock()
		}
		return choice, nil
	}
	return core.NewRawStream(next, closerFunc(func() error {
		end(core.ErrStreamClosed)
		return raw.Close()
	}))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
