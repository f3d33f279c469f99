package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/obs"
	"github.com/shillcollin/agentkit/stream"
	"github.com/shillcollin/agentkit/tools"
)

// DefaultMaxTurns bounds the number of dispatch rounds when no limit is set.
const DefaultMaxTurns = 5

// ErrCancelled may be returned by a hook to stop the loop.
var ErrCancelled = errors.New("runner: cancelled")

// State is a phase of the dispatch loop.
type State int

const (
	StatePrompting State = iota
	StateDispatching
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePrompting:
		return "prompting"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Hooks observe the loop. Any hook error stops it; ErrCancelled is reported as
// a cancelled prompt.
type Hooks struct {
	OnStateChange        func(turn int, state State)
	OnCompletionCall     func(ctx context.Context, turn int, req core.CompletionRequest) error
	OnCompletionResponse func(ctx context.Context, turn int, resp *core.CompletionResponse) error
	OnToolCall           func(ctx context.Context, turn int, call core.ToolCall) error
	OnToolResult         func(ctx context.Context, turn int, call core.ToolCall, result core.ToolResult) error
	// OnEvent receives normalized events when the runner streams.
	OnEvent func(ctx context.Context, turn int, ev core.StreamEvent) error
}

// Runner drives the prompt, dispatch, re-prompt loop against a model.
type Runner struct {
	model       core.CompletionModel
	tools       *tools.ToolSet
	maxTurns    int
	toolTimeout time.Duration
	streaming   bool
	hooks       Hooks
	logger      *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithTools sets the tools available for dispatch.
func WithTools(set *tools.ToolSet) RunnerOption {
	return func(r *Runner) { r.tools = set }
}

// WithMaxTurns sets how many dispatch rounds may run before the loop fails.
// Zero allows none.
func WithMaxTurns(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.maxTurns = n
		}
	}
}

// WithToolTimeout sets the per-tool timeout.
func WithToolTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.toolTimeout = d
		}
	}
}

// WithStreaming makes each round use Stream instead of Completion.
func WithStreaming(enabled bool) RunnerOption {
	return func(r *Runner) { r.streaming = enabled }
}

// WithHooks installs loop hooks.
func WithHooks(h Hooks) RunnerOption {
	return func(r *Runner) { r.hooks = h }
}

// WithLogger sets the logger used for per-round debug records.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a new runner.
func New(model core.CompletionModel, opts ...RunnerOption) *Runner {
	r := &Runner{
		model:       model,
		maxTurns:    DefaultMaxTurns,
		toolTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of a converged run.
type Result struct {
	Text string
	// Usage is summed across rounds.
	Usage core.Usage
	// Turns counts completion calls.
	Turns int
	// Messages holds everything appended to the history during the run.
	Messages []core.Message
	Response *core.CompletionResponse
}

// Run sends req and dispatches tool calls until the model answers without
// calling tools. When history is non-nil it replaces req.ChatHistory and every
// appended message is written back to it as the loop progresses, including on
// failure.
func (r *Runner) Run(ctx context.Context, req core.CompletionRequest, history *[]core.Message) (*Result, error) {
	conv := core.CloneMessages(req.ChatHistory)
	if history != nil {
		conv = *history
	}
	result := &Result{}
	appendMessage := func(msg core.Message) {
		conv = append(conv, msg)
		result.Messages = append(result.Messages, msg)
		if history != nil {
			*history = conv
		}
	}
	appendMessage(req.Prompt)

	if len(req.Tools) == 0 && r.tools.Len() > 0 {
		req.Tools = r.tools.Definitions(ctx, req.Prompt.Text())
	}

	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			return result, r.fail(turn, err)
		}
		r.setState(turn, StatePrompting)

		round := req.Clone()
		round.ChatHistory = conv[:len(conv)-1]
		round.Prompt = conv[len(conv)-1]
		if err := round.Validate(); err != nil {
			return result, r.fail(turn, core.WrapCompletionError(err, core.RequestError))
		}
		if r.hooks.OnCompletionCall != nil {
			if err := r.hooks.OnCompletionCall(ctx, turn, round); err != nil {
				return result, r.fail(turn, err)
			}
		}

		resp, err := r.complete(ctx, turn, round)
		if err != nil {
			return result, r.fail(turn, err)
		}
		result.Turns = turn
		result.Response = resp
		result.Usage = result.Usage.Add(resp.Usage)
		if r.hooks.OnCompletionResponse != nil {
			if err := r.hooks.OnCompletionResponse(ctx, turn, resp); err != nil {
				return result, r.fail(turn, err)
			}
		}

		calls := resp.ToolCalls()
		r.logger.DebugContext(ctx, "runner turn complete",
			slog.Int("turn", turn),
			slog.Int("tool_calls", len(calls)),
			slog.Int("output_tokens", resp.Usage.OutputTokens),
		)
		if len(calls) == 0 {
			if len(resp.Choice) > 0 {
				appendMessage(resp.Message())
			}
			result.Text = resp.Text()
			r.setState(turn, StateDone)
			r.logCompletion(ctx, turn, round, resp, nil)
			return result, nil
		}
		if turn > r.maxTurns {
			return result, r.fail(turn, core.NewMaxTurnsExceeded(r.maxTurns, calls))
		}

		r.setState(turn, StateDispatching)
		for _, call := range calls {
			if _, ok := r.tools.Get(call.Name); !ok {
				return result, r.fail(turn, core.NewToolNotFound(call.Name))
			}
		}
		appendMessage(resp.Message())
		records := make([]obs.ToolCallRecord, 0, len(calls))
		for _, call := range calls {
			toolResult, record, err := r.dispatch(ctx, turn, call)
			if err != nil {
				return result, r.fail(turn, err)
			}
			records = append(records, record)
			appendMessage(core.ToolResultMessage(toolResult))
		}
		r.logCompletion(ctx, turn, round, resp, records)
	}
}

func (r *Runner) complete(ctx context.Context, turn int, req core.CompletionRequest) (*core.CompletionResponse, error) {
	ctx, span := obs.StartSpan(ctx, "runner.turn", attribute.Int("turn", turn))
	if !r.streaming {
		resp, err := r.model.Completion(ctx, req)
		obs.EndSpan(span, err)
		return resp, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	raw, err := r.model.Stream(streamCtx, req)
	if err != nil {
		cancel()
		obs.EndSpan(span, err)
		return nil, err
	}
	s := stream.Start(raw, stream.WithCancelFunc(cancel))
	defer s.Close()
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			obs.EndSpan(span, err)
			return nil, err
		}
		if r.hooks.OnEvent != nil {
			if err := r.hooks.OnEvent(ctx, turn, ev); err != nil {
				s.Cancel()
				obs.EndSpan(span, err)
				return nil, err
			}
		}
	}
	resp, ok := s.Response()
	if !ok {
		obs.EndSpan(span, core.ErrStreamClosed)
		return nil, core.ErrStreamClosed
	}
	obs.EndSpan(span, nil)
	return resp, nil
}

func (r *Runner) dispatch(ctx context.Context, turn int, call core.ToolCall) (core.ToolResult, obs.ToolCallRecord, error) {
	record := obs.ToolCallRecord{Turn: turn, ID: call.ID, Name: call.Name, Arguments: string(call.Arguments)}
	if r.hooks.OnToolCall != nil {
		if err := r.hooks.OnToolCall(ctx, turn, call); err != nil {
			return core.ToolResult{}, record, err
		}
	}

	ctx, span := obs.StartSpan(ctx, "runner.tool",
		attribute.String("tool", call.Name),
		attribute.String("call_id", call.ID),
	)
	toolCtx := tools.ContextWithMeta(ctx, tools.Meta{CallID: call.ID, ToolName: call.Name})
	var cancel context.CancelFunc = func() {}
	if r.toolTimeout > 0 {
		toolCtx, cancel = context.WithTimeout(toolCtx, r.toolTimeout)
	}
	start := time.Now()
	out, err := r.tools.Call(toolCtx, call.Name, toolArgs(call))
	cancel()
	duration := time.Since(start)
	obs.EndSpan(span, err)
	obs.RecordToolCall(ctx, call.Name, duration, err)

	result := core.ToolResult{CallID: call.ID, Name: call.Name, Content: out}
	record.DurationMS = duration.Milliseconds()
	if err != nil {
		// Failures are fed back to the model as content.
		result.Content = err.Error()
		result.IsError = true
		record.Error = err.Error()
		r.logger.DebugContext(ctx, "tool call failed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
	} else {
		record.Result = out
		r.logger.DebugContext(ctx, "tool call",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.Duration("duration", duration),
		)
	}

	if r.hooks.OnToolResult != nil {
		if err := r.hooks.OnToolResult(ctx, turn, call, result); err != nil {
			return result, record, err
		}
	}
	return result, record, nil
}

func (r *Runner) setState(turn int, state State) {
	if r.hooks.OnStateChange != nil {
		r.hooks.OnStateChange(turn, state)
	}
}

// fail moves to StateFailed and classifies err as a PromptError.
func (r *Runner) fail(turn int, err error) error {
	r.setState(turn, StateFailed)
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return core.NewPromptError(core.PromptCancelled, err)
	}
	return core.WrapPromptError(err)
}

func (r *Runner) logCompletion(ctx context.Context, turn int, req core.CompletionRequest, resp *core.CompletionResponse, records []obs.ToolCallRecord) {
	obs.LogCompletion(ctx, obs.Completion{
		Model:        resp.Model,
		RequestID:    resp.ID,
		Turn:         turn,
		Input:        obs.MessagesFromCore(req.Messages()),
		Output:       obs.MessageFromCore(resp.Message()),
		Usage:        obs.UsageFromCore(resp.Usage),
		CreatedAtUTC: time.Now().UTC().UnixMilli(),
		ToolCalls:    records,
		Metadata: map[string]any{
			"tools":                  len(req.Tools),
			"estimated_input_tokens": core.EstimateTokens(req).Input,
		},
	})
}

func toolArgs(call core.ToolCall) json.RawMessage {
	if len(call.Arguments) == 0 {
		return json.RawMessage(`{}`)
	}
	return call.Arguments
}
