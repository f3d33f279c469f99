package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/shillcollin/agentkit/core"
)

// ErrScriptExhausted is returned when a ScriptedModel runs out of steps.
var ErrScriptExhausted = errors.New("testutil: script exhausted")

// Step is one scripted model reply. Choices drive Stream; when empty they are
// derived from Response.
type Step struct {
	Response *core.CompletionResponse
	Choices  []core.RawChoice
	Err      error
}

// ScriptedModel is a core.CompletionModel replaying steps in order.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []Step
	repeat   bool
	requests []core.CompletionRequest
}

// NewScriptedModel replays steps once each.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// RepeatLast keeps answering with the final step once the others are used.
func (m *ScriptedModel) RepeatLast() *ScriptedModel {
	m.repeat = true
	return m
}

// Requests returns copies of every request received.
func (m *ScriptedModel) Requests() []core.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.CompletionRequest(nil), m.requests...)
}

// Calls returns the number of requests received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *ScriptedModel) next(req core.CompletionRequest) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req.Clone())
	if len(m.steps) == 0 {
		return Step{}, ErrScriptExhausted
	}
	step := m.steps[0]
	if len(m.steps) > 1 || !m.repeat {
		m.steps = m.steps[1:]
	}
	return step, nil
}

// Completion implements core.CompletionModel.
func (m *ScriptedModel) Completion(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response != nil {
		resp := *step.Response
		resp.Choice = append([]core.Part(nil), step.Response.Choice...)
		return &resp, nil
	}
	return responseFromChoices(step.Choices), nil
}

// Stream implements core.CompletionModel.
func (m *ScriptedModel) Stream(ctx context.Context, req core.CompletionRequest) (*core.RawStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	choices := step.Choices
	if len(choices) == 0 && step.Response != nil {
		choices = choicesFromResponse(step.Response)
	}
	return core.RawStreamFromChoices(choices...), nil
}

// TextResponse is a reply holding only text.
func TextResponse(text string, usage core.Usage) Step {
	return Step{Response: &core.CompletionResponse{Choice: []core.Part{core.Text{Text: text}}, Usage: usage}}
}

// ToolCallResponse is a reply requesting one tool call per entry of calls.
func ToolCallResponse(usage core.Usage, calls ...core.ToolCall) Step {
	parts := make([]core.Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, call)
	}
	return Step{Response: &core.CompletionResponse{Choice: parts, Usage: usage}}
}

// Call builds a tool call with raw JSON arguments.
func Call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func choicesFromResponse(resp *core.CompletionResponse) []core.RawChoice {
	var choices []core.RawChoice
	index := 0
	for _, part := range resp.Choice {
		switch p := part.(type) {
		case core.Text:
			choices = append(choices, core.TextChoice(p.Text))
		case core.Reasoning:
			choices = append(choices, core.RawChoice{Kind: core.RawReasoning, Text: p.Text, Signature: p.Signature})
		case core.ToolCall:
			choices = append(choices,
				core.ToolCallChoice(index, p.ID, p.Name, string(p.Arguments)),
				core.ToolCallEndChoice(index),
			)
			index++
		}
	}
	return append(choices, core.FinalChoice(resp.Usage, resp.Raw))
}

func responseFromChoices(choices []core.RawChoice) *core.CompletionResponse {
	resp := &core.CompletionResponse{}
	for _, c := range choices {
		switch c.Kind {
		case core.RawText:
			resp.Choice = append(resp.Choice, core.Text{Text: c.Text})
		case core.RawToolCall:
			resp.Choice = append(resp.Choice, core.ToolCall{ID: c.ToolCall.ID, Name: c.ToolCall.Name, Arguments: json.RawMessage(c.ToolCall.Arguments)})
		case core.RawFinal:
			if c.Final != nil {
				resp.Usage = c.Final.Usage
			}
		}
	}
	return resp
}
