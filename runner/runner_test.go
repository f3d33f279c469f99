package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/testutil"
	"github.com/shillcollin/agentkit/tools"
)

type addArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func addToolSet(t *testing.T) *tools.ToolSet {
	t.Helper()
	add := tools.New[addArgs, int]("add", "Add two integers", func(ctx context.Context, in addArgs, meta tools.Meta) (int, error) {
		return in.X + in.Y, nil
	})
	set, err := tools.NewToolSet(add)
	if err != nil {
		t.Fatalf("toolset: %v", err)
	}
	return set
}

func userPrompt(text string) core.CompletionRequest {
	return core.CompletionRequest{Prompt: core.UserText(text)}
}

func TestRunnerTwoRoundAddition(t *testing.T) {
	for _, streaming := range []bool{false, true} {
		name := "completion"
		if streaming {
			name = "stream"
		}
		t.Run(name, func(t *testing.T) {
			model := testutil.NewScriptedModel(
				testutil.ToolCallResponse(core.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
					testutil.Call("call_1", "add", `{"x":2,"y":3}`)),
				testutil.TextResponse("The answer is 5.", core.Usage{InputTokens: 20, OutputTokens: 6, TotalTokens: 26}),
			)
			r := New(model, WithTools(addToolSet(t)), WithStreaming(streaming))

			var history []core.Message
			res, err := r.Run(context.Background(), userPrompt("What is 2+3?"), &history)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Text != "The answer is 5." {
				t.Fatalf("unexpected text %q", res.Text)
			}
			if res.Turns != 2 || res.Usage.TotalTokens != 41 {
				t.Fatalf("unexpected turns/usage %d %+v", res.Turns, res.Usage)
			}
			if len(history) != 4 {
				t.Fatalf("expected 4 history messages, got %d", len(history))
			}
			wantRoles := []core.Role{core.User, core.Assistant, core.Tool, core.Assistant}
			for i, role := range wantRoles {
				if history[i].Role != role {
					t.Fatalf("message %d: expected role %s, got %s", i, role, history[i].Role)
				}
			}
			result, ok := history[2].Content[0].(core.ToolResult)
			if !ok || result.CallID != "call_1" || result.Content != "5" || result.IsError {
				t.Fatalf("unexpected tool result %+v", history[2].Content[0])
			}

			reqs := model.Requests()
			if len(reqs) != 2 {
				t.Fatalf("expected 2 requests, got %d", len(reqs))
			}
			if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "add" {
				t.Fatalf("expected tool definitions on request, got %+v", reqs[0].Tools)
			}
			if reqs[1].Prompt.Role != core.Tool || len(reqs[1].ChatHistory) != 2 {
				t.Fatalf("second round must re-prompt with the tool result, got %+v", reqs[1])
			}
		})
	}
}

func TestRunnerFailingToolFeedsErrorBack(t *testing.T) {
	fail := tools.Func("flaky", "", nil, func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	model := testutil.NewScriptedModel(
		testutil.ToolCallResponse(core.Usage{}, testutil.Call("call_1", "flaky", `{}`)),
		testutil.TextResponse("Sorry, the service is down.", core.Usage{}),
	)
	r := New(model, WithTools(tools.MustToolSet(fail)))
	res, err := r.Run(context.Background(), userPrompt("check"), nil)
	if err != nil {
		t.Fatalf("tool failure must not end the conversation: %v", err)
	}
	result := res.Messages[2].Content[0].(core.ToolResult)
	if !result.IsError || !strings.Contains(result.Content, "upstream unavailable") {
		t.Fatalf("expected error content, got %+v", result)
	}
}

func TestRunnerMaxTurnsExceeded(t *testing.T) {
	calls := 0
	fail := tools.Func("flaky", "", nil, func(context.Context, json.RawMessage) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	model := testutil.NewScriptedModel(
		testutil.ToolCallResponse(core.Usage{}, testutil.Call("call_x", "flaky", `{}`)),
	).RepeatLast()
	r := New(model, WithTools(tools.MustToolSet(fail)), WithMaxTurns(3))

	var history []core.Message
	_, err := r.Run(context.Background(), userPrompt("loop"), &history)
	if !core.IsMaxTurnsExceeded(err) {
		t.Fatalf("expected max turns exceeded, got %v", err)
	}
	var pe *core.PromptError
	if !errors.As(err, &pe) || pe.MaxTurns != 3 || len(pe.Pending) != 1 {
		t.Fatalf("unexpected prompt error %+v", pe)
	}
	if calls != 3 {
		t.Fatalf("expected 3 tool invocations, got %d", calls)
	}
	if model.Calls() != 4 {
		t.Fatalf("expected 4 completion calls, got %d", model.Calls())
	}
	// prompt + 3 x (assistant call, error result); the last round is not appended.
	if len(history) != 7 {
		t.Fatalf("expected 7 history messages, got %d", len(history))
	}
	for i := 2; i < len(history); i += 2 {
		if res := history[i].Content[0].(core.ToolResult); !res.IsError {
			t.Fatalf("message %d: expected error result", i)
		}
	}
}

func TestRunnerUnknownToolFailsFast(t *testing.T) {
	model := testutil.NewScriptedModel(
		testutil.ToolCallResponse(core.Usage{}, testutil.Call("call_1", "add", `{"x":1,"y":1}`), testutil.Call("call_2", "missing", `{}`)),
	)
	r := New(model, WithTools(addToolSet(t)))
	var history []core.Message
	_, err := r.Run(context.Background(), userPrompt("hi"), &history)
	if !core.IsToolNotFound(err) {
		t.Fatalf("expected tool not found, got %v", err)
	}
	var pe *core.PromptError
	if !errors.As(err, &pe) || pe.Kind != core.PromptToolError {
		t.Fatalf("expected prompt tool error, got %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history must not include the failed round, got %d messages", len(history))
	}
}

func TestRunnerCompletionErrorIsWrapped(t *testing.T) {
	boom := core.NewCompletionError(core.ProviderError, "overloaded", core.WithStatus(529))
	model := testutil.NewScriptedModel(testutil.Step{Err: boom})
	_, err := New(model).Run(context.Background(), userPrompt("hi"), nil)
	var pe *core.PromptError
	if !errors.As(err, &pe) || pe.Kind != core.PromptCompletionError || !core.IsProviderError(err) {
		t.Fatalf("expected wrapped completion error, got %v", err)
	}
}

func TestRunnerHooksAndStates(t *testing.T) {
	model := testutil.NewScriptedModel(
		testutil.ToolCallResponse(core.Usage{}, testutil.Call("call_1", "add", `{"x":2,"y":3}`)),
		testutil.TextResponse("5", core.Usage{}),
	)
	var states []State
	var toolResults []string
	hooks := Hooks{
		OnStateChange: func(turn int, s State) { states = append(states, s) },
		OnToolResult: func(ctx context.Context, turn int, call core.ToolCall, res core.ToolResult) error {
			toolResults = append(toolResults, res.Content)
			return nil
		},
	}
	if _, err := New(model, WithTools(addToolSet(t)), WithHooks(hooks)).Run(context.Background(), userPrompt("2+3"), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []State{StatePrompting, StateDispatching, StatePrompting, StateDone}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
	if len(toolResults) != 1 || toolResults[0] != "5" {
		t.Fatalf("unexpected tool results %v", toolResults)
	}
}

func TestRunnerHookCancels(t *testing.T) {
	model := testutil.NewScriptedModel(
		testutil.ToolCallResponse(core.Usage{}, testutil.Call("call_1", "add", `{"x":2,"y":3}`)),
	)
	hooks := Hooks{
		OnToolCall: func(context.Context, int, core.ToolCall) error { return ErrCancelled },
	}
	_, err := New(model, WithTools(addToolSet(t)), WithHooks(hooks)).Run(context.Background(), userPrompt("2+3"), nil)
	if !core.IsPromptCancelled(err) {
		t.Fatalf("expected cancelled prompt, got %v", err)
	}
}

func TestRunnerToolTimeout(t *testing.T) {
	slow := tools.Func("slow", "", nil, func(ctx context.Context, _ json.RawMessage) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})
	model := testutil.NewScriptedModel(
		testutil.ToolCallResponse(core.Usage{}, testutil.Call("call_1", "slow", `{}`)),
		testutil.TextResponse("gave up", core.Usage{}),
	)
	r := New(model, WithTools(tools.MustToolSet(slow)), WithToolTimeout(10*time.Millisecond))
	res, err := r.Run(context.Background(), userPrompt("go"), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	result := res.Messages[2].Content[0].(core.ToolResult)
	if !result.IsError || !strings.Contains(result.Content, context.DeadlineExceeded.Error()) {
		t.Fatalf("expected timeout result, got %+v", result)
	}
}

func TestRunnerStreamingEvents(t *testing.T) {
	model := testutil.NewScriptedModel(testutil.Step{Choices: []core.RawChoice{
		core.TextChoice("Hel"),
		core.TextChoice("lo"),
		core.FinalChoice(core.Usage{OutputTokens: 2}, nil),
	}})
	var text strings.Builder
	hooks := Hooks{OnEvent: func(ctx context.Context, turn int, ev core.StreamEvent) error {
		text.WriteString(ev.Text)
		return nil
	}}
	res, err := New(model, WithStreaming(true), WithHooks(hooks)).Run(context.Background(), userPrompt("hi"), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if text.String() != "Hello" || res.Text != "Hello" || res.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected streaming result %q %+v", text.String(), res)
	}
}
