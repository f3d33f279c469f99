package agent

import (
	"context"
	"log/slog"
	"maps"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/runner"
	"github.com/shillcollin/agentkit/tools"
)

// PromptRequest configures one multi-turn prompt.
type PromptRequest struct {
	agent     *Agent
	prompt    core.Message
	history   *[]core.Message
	maxTurns  int
	streaming bool
	hooks     *runner.Hooks
}

// PromptRequest starts a prompt for text using the agent defaults.
func (a *Agent) PromptRequest(text string) *PromptRequest {
	return a.PromptMessage(core.UserText(text))
}

// PromptMessage starts a prompt for a prebuilt user message, e.g. with images.
func (a *Agent) PromptMessage(msg core.Message) *PromptRequest {
	return &PromptRequest{agent: a, prompt: msg, maxTurns: a.maxTurns}
}

// WithHistory uses and extends *history. Every message the loop appends is
// written back, including when the prompt fails.
func (p *PromptRequest) WithHistory(history *[]core.Message) *PromptRequest {
	p.history = history
	return p
}

// MultiTurn sets the dispatch round limit for this prompt.
func (p *PromptRequest) MultiTurn(n int) *PromptRequest {
	p.maxTurns = n
	return p
}

// Streaming makes each round stream; pair with WithHooks to observe events.
func (p *PromptRequest) Streaming() *PromptRequest {
	p.streaming = true
	return p
}

// WithHooks overrides the agent hooks for this prompt.
func (p *PromptRequest) WithHooks(h runner.Hooks) *PromptRequest {
	p.hooks = &h
	return p
}

// Send runs the loop to completion.
func (p *PromptRequest) Send(ctx context.Context) (*runner.Result, error) {
	a := p.agent
	var history []core.Message
	if p.history != nil {
		history = *p.history
	}
	req, set, err := a.build(ctx, p.prompt, history)
	if err != nil {
		return nil, core.WrapPromptError(err)
	}
	hooks := a.hooks
	if p.hooks != nil {
		hooks = *p.hooks
	}
	opts := []runner.RunnerOption{
		runner.WithTools(set),
		runner.WithMaxTurns(p.maxTurns),
		runner.WithHooks(hooks),
		runner.WithLogger(a.logger.With(slog.String("agent", a.name))),
		runner.WithStreaming(p.streaming),
	}
	if a.toolTimeout > 0 {
		opts = append(opts, runner.WithToolTimeout(a.toolTimeout))
	}
	return runner.New(a.model, opts...).Run(ctx, req, p.history)
}

// build assembles a request and the tool set able to serve it.
func (a *Agent) build(ctx context.Context, prompt core.Message, history []core.Message) (core.CompletionRequest, *tools.ToolSet, error) {
	query := prompt.Text()
	req := core.CompletionRequest{
		Model:       a.modelName,
		Preamble:    a.preamble,
		ChatHistory: history,
		Prompt:      prompt,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		ToolChoice:  a.toolChoice,
	}
	if a.params != nil {
		req.AdditionalParams = maps.Clone(a.params)
	}

	docs := append([]core.ContextDocument(nil), a.static...)
	for _, src := range a.dynamic {
		hits, err := src.index.TopN(ctx, query, src.k)
		if err != nil {
			return core.CompletionRequest{}, nil, core.NewCompletionError(core.RequestError, "dynamic context lookup", core.WithWrapped(err))
		}
		for _, hit := range hits {
			docs = append(docs, hit.Document)
		}
	}
	req.Documents = docs

	set := a.toolset
	for _, src := range a.dynTools {
		ids, err := src.index.TopNIDs(ctx, query, src.k)
		if err != nil {
			return core.CompletionRequest{}, nil, core.NewCompletionError(core.RequestError, "dynamic tool lookup", core.WithWrapped(err))
		}
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = id.ID
		}
		set = set.Merge(src.set.Subset(names...))
	}
	req.Tools = set.Definitions(ctx, query)

	a.logger.DebugContext(ctx, "agent request built",
		slog.String("agent", a.name),
		slog.Int("documents", len(req.Documents)),
		slog.Int("tools", len(req.Tools)),
		slog.Int("history", len(history)),
	)
	return req, set, nil
}
