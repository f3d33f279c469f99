package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shillcollin/agentkit/core"
)

// Normalizer turns raw decoder output into normalized stream events. Text is
// emitted as it arrives, reasoning is emitted once its block ends, and tool calls
// are emitted only when complete: on their end marker or when the stream finishes,
// in ascending index order.
type Normalizer struct {
	streamID string
	now      func() time.Time
	seq      int

	calls   map[int]*toolAccumulator
	flushed map[int]bool

	reasoning    strings.Builder
	signature    string
	hasReasoning bool

	parts    []core.Part
	usage    core.Usage
	raw      json.RawMessage
	finished bool
}

type toolAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithStreamID stamps events with the given identifier.
func WithStreamID(id string) NormalizerOption {
	return func(n *Normalizer) { n.streamID = id }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

// NewNormalizer constructs an empty normalizer.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		streamID: uuid.NewString(),
		now:      time.Now,
		calls:    map[int]*toolAccumulator{},
		flushed:  map[int]bool{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// StreamID returns the identifier stamped on events.
func (n *Normalizer) StreamID() string { return n.streamID }

// Finished reports whether the final event has been produced.
func (n *Normalizer) Finished() bool { return n.finished }

// Push consumes one raw choice in arrival order.
func (n *Normalizer) Push(choice core.RawChoice) ([]core.StreamEvent, error) {
	if n.finished {
		return nil, protocolError("%s chunk after final response", choice.Kind)
	}
	switch choice.Kind {
	case core.RawText:
		out := n.flushReasoning()
		if choice.Text == "" {
			return out, nil
		}
		n.appendText(choice.Text)
		ev := n.event(core.EventText)
		ev.Text = choice.Text
		return append(out, ev), nil

	case core.RawReasoning:
		n.reasoning.WriteString(choice.Text)
		if choice.Signature != "" {
			n.signature = choice.Signature
		}
		n.hasReasoning = true
		return nil, nil

	case core.RawToolCall:
		out := n.flushReasoning()
		if err := n.merge(choice.ToolCall); err != nil {
			return out, err
		}
		return out, nil

	case core.RawToolCallEnd:
		out := n.flushReasoning()
		if _, ok := n.calls[choice.ToolCall.Index]; !ok {
			return out, nil
		}
		ev, err := n.flushCall(choice.ToolCall.Index)
		if err != nil {
			return out, err
		}
		return append(out, ev), nil

	case core.RawFinal:
		if choice.Final != nil {
			n.usage = choice.Final.Usage
			n.raw = choice.Final.Raw
		}
		return n.finish()

	default:
		return nil, protocolError("unknown raw chunk kind %d", int(choice.Kind))
	}
}

// Finish flushes pending state when the transport ended. It produces the final
// event unless one was already emitted.
func (n *Normalizer) Finish() ([]core.StreamEvent, error) {
	if n.finished {
		return nil, nil
	}
	return n.finish()
}

// Response returns the aggregated assistant answer seen so far.
func (n *Normalizer) Response() *core.CompletionResponse {
	return &core.CompletionResponse{
		ID:     n.streamID,
		Choice: append([]core.Part(nil), n.parts...),
		Usage:  n.usage,
		Raw:    n.raw,
	}
}

func (n *Normalizer) finish() ([]core.StreamEvent, error) {
	out := n.flushReasoning()
	indices := make([]int, 0, len(n.calls))
	for idx := range n.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		ev, err := n.flushCall(idx)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	n.finished = true
	ev := n.event(core.EventFinal)
	ev.Final = &core.FinalResponse{Usage: n.usage, Raw: n.raw}
	return append(out, ev), nil
}

func (n *Normalizer) merge(delta core.RawToolCallDelta) error {
	if n.flushed[delta.Index] {
		return protocolError("tool call %d received a fragment after completion", delta.Index)
	}
	acc, ok := n.calls[delta.Index]
	if !ok {
		acc = &toolAccumulator{}
		n.calls[delta.Index] = acc
	}
	if delta.ID != "" {
		if acc.id != "" && acc.id != delta.ID {
			return protocolError("tool call %d changed id from %q to %q", delta.Index, acc.id, delta.ID)
		}
		acc.id = delta.ID
	}
	if delta.Name != "" {
		if acc.name != "" && acc.name != delta.Name {
			return protocolError("tool call %d changed name from %q to %q", delta.Index, acc.name, delta.Name)
		}
		acc.name = delta.Name
	}
	acc.args.WriteString(delta.Arguments)
	return nil
}

func (n *Normalizer) flushCall(idx int) (core.StreamEvent, error) {
	acc := n.calls[idx]
	delete(n.calls, idx)
	n.flushed[idx] = true

	if acc.name == "" {
		return core.StreamEvent{}, protocolError("tool call %d has no name", idx)
	}
	args := acc.args.String()
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return core.StreamEvent{}, protocolError("tool call %d (%s) has invalid JSON arguments", idx, acc.name)
	}
	id := acc.id
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	call := core.ToolCall{ID: id, Name: acc.name, Arguments: json.RawMessage(args)}
	n.parts = append(n.parts, call)
	ev := n.event(core.EventToolCall)
	ev.ToolCall = &call
	return ev, nil
}

func (n *Normalizer) flushReasoning() []core.StreamEvent {
	if !n.hasReasoning {
		return nil
	}
	r := core.Reasoning{Text: n.reasoning.String(), Signature: n.signature}
	n.reasoning.Reset()
	n.signature = ""
	n.hasReasoning = false
	n.parts = append(n.parts, r)
	ev := n.event(core.EventReasoning)
	ev.Reasoning = &r
	return []core.StreamEvent{ev}
}

func (n *Normalizer) appendText(text string) {
	if last := len(n.parts) - 1; last >= 0 {
		if t, ok := n.parts[last].(core.Text); ok {
			n.parts[last] = core.Text{Text: t.Text + text}
			return
		}
	}
	n.parts = append(n.parts, core.Text{Text: text})
}

func (n *Normalizer) event(typ core.EventType) core.StreamEvent {
	n.seq++
	return core.StreamEvent{
		Type:      typ,
		Seq:       n.seq,
		Timestamp: n.now().UTC(),
		StreamID:  n.streamID,
	}
}

func protocolError(format string, args ...any) error {
	return core.NewCompletionError(core.ProtocolError, fmt.Sprintf(format, args...))
}
