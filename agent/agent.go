// Package agent assembles preamble, context documents and tools into
// completion requests and drives them through the tool dispatch loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/runner"
	"github.com/shillcollin/agentkit/stream"
	"github.com/shillcollin/agentkit/tools"
	"github.com/shillcollin/agentkit/vectorstore"
)

// DefaultMaxTurns is the dispatch round limit of a new agent.
const DefaultMaxTurns = 5

type dynamicContext struct {
	k     int
	index vectorstore.Index
}

type dynamicTools struct {
	k     int
	index vectorstore.Index
	set   *tools.ToolSet
}

// Agent is an immutable prompt configuration bound to a model. It is safe for
// concurrent use; each call owns its own history.
type Agent struct {
	name        string
	model       core.CompletionModel
	modelName   string
	preamble    string
	static      []core.ContextDocument
	dynamic     []dynamicContext
	toolList    []tools.Tool
	toolset     *tools.ToolSet
	dynTools    []dynamicTools
	temperature *float64
	maxTokens   *int
	params      map[string]any
	toolChoice  core.ToolChoice
	maxTurns    int
	toolTimeout time.Duration
	hooks       runner.Hooks
	logger      *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithName labels the agent in logs and HTTP routes.
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithModelName sets the model identifier sent on every request.
func WithModelName(model string) Option {
	return func(a *Agent) { a.modelName = model }
}

// WithPreamble sets the system instruction.
func WithPreamble(preamble string) Option {
	return func(a *Agent) { a.preamble = preamble }
}

// WithContext adds static context documents sent with every prompt.
func WithContext(docs ...core.ContextDocument) Option {
	return func(a *Agent) { a.static = append(a.static, docs...) }
}

// WithContextText adds static context strings, numbered in order.
func WithContextText(texts ...string) Option {
	return func(a *Agent) {
		for _, text := range texts {
			id := fmt.Sprintf("static_doc_%d", len(a.static))
			a.static = append(a.static, core.ContextDocument{ID: id, Text: text})
		}
	}
}

// WithDynamicContext adds the k documents of index closest to each prompt.
func WithDynamicContext(k int, index vectorstore.Index) Option {
	return func(a *Agent) { a.dynamic = append(a.dynamic, dynamicContext{k: k, index: index}) }
}

// WithTools adds tools. Later tools with an already registered name are ignored.
func WithTools(ts ...tools.Tool) Option {
	return func(a *Agent) { a.toolList = append(a.toolList, ts...) }
}

// WithToolSet adds every tool of set.
func WithToolSet(set *tools.ToolSet) Option {
	return func(a *Agent) { a.toolList = append(a.toolList, set.Tools()...) }
}

// WithDynamicTools offers, per prompt, the k tools of set whose index
// entries are closest to the prompt. Index document IDs are tool names.
func WithDynamicTools(k int, index vectorstore.Index, set *tools.ToolSet) Option {
	return func(a *Agent) { a.dynTools = append(a.dynTools, dynamicTools{k: k, index: index, set: set}) }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(a *Agent) { a.maxTokens = &n }
}

// WithAdditionalParams merges provider-specific fields into every request body.
func WithAdditionalParams(params map[string]any) Option {
	return func(a *Agent) {
		if a.params == nil {
			a.params = map[string]any{}
		}
		maps.Copy(a.params, params)
	}
}

// WithToolChoice sets how the model may pick tools.
func WithToolChoice(choice core.ToolChoice) Option {
	return func(a *Agent) { a.toolChoice = choice }
}

// WithMaxTurns sets the default dispatch round limit.
func WithMaxTurns(n int) Option {
	return func(a *Agent) { a.maxTurns = n }
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(a *Agent) { a.toolTimeout = d }
}

// WithHooks observes every multi-turn prompt.
func WithHooks(h runner.Hooks) Option {
	return func(a *Agent) { a.hooks = h }
}

// WithLogger sets the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds an agent over model.
func New(model core.CompletionModel, opts ...Option) *Agent {
	a := &Agent{
		model:    model,
		maxTurns: DefaultMaxTurns,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.toolset = a.buildToolSet()
	a.toolList = nil
	return a
}

func (a *Agent) buildToolSet() *tools.ToolSet {
	var accepted []tools.Tool
	seen := map[string]bool{}
	for _, tool := range a.toolList {
		if tool == nil || tool.Name() == "" {
			a.logger.Warn("agent: skipping unnamed tool", slog.String("agent", a.name))
			continue
		}
		if seen[tool.Name()] {
			a.logger.Warn("agent: skipping duplicate tool", slog.String("agent", a.name), slog.String("tool", tool.Name()))
			continue
		}
		seen[tool.Name()] = true
		accepted = append(accepted, tool)
	}
	return tools.MustToolSet(accepted...)
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Preamble returns the system instruction.
func (a *Agent) Preamble() string { return a.preamble }

// Tools returns the static tool set.
func (a *Agent) Tools() *tools.ToolSet { return a.toolset }

// MaxTurns returns the default dispatch round limit.
func (a *Agent) MaxTurns() int { return a.maxTurns }

// Prompt runs the multi-turn loop for text and returns the final answer.
func (a *Agent) Prompt(ctx context.Context, text string) (string, error) {
	res, err := a.PromptRequest(text).Send(ctx)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Chat is Prompt with prior history. history is not modified.
func (a *Agent) Chat(ctx context.Context, text string, history []core.Message) (string, error) {
	conv := core.CloneMessages(history)
	res, err := a.PromptRequest(text).WithHistory(&conv).Send(ctx)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// StreamPrompt sends a single round and returns its normalized stream. Tool
// calls are reported as events and not dispatched.
func (a *Agent) StreamPrompt(ctx context.Context, text string) (*stream.StreamingResult, error) {
	return a.StreamChat(ctx, text, nil)
}

// StreamChat is StreamPrompt with prior history.
func (a *Agent) StreamChat(ctx context.Context, text string, history []core.Message) (*stream.StreamingResult, error) {
	req, _, err := a.build(ctx, core.UserText(text), history)
	if err != nil {
		return nil, err
	}
	return a.StreamRequest(ctx, req)
}

// StreamRequest streams a request built with Completion.
func (a *Agent) StreamRequest(ctx context.Context, req core.CompletionRequest) (*stream.StreamingResult, error) {
	if err := req.Validate(); err != nil {
		return nil, core.WrapCompletionError(err, core.RequestError)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	raw, err := a.model.Stream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return stream.Start(raw, stream.WithCancelFunc(cancel)), nil
}

// Completion builds the request the agent would send for prompt after history.
func (a *Agent) Completion(ctx context.Context, prompt core.Message, history []core.Message) (core.CompletionRequest, error) {
	req, _, err := a.build(ctx, prompt, history)
	return req, err
}
