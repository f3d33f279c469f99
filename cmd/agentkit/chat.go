package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/shillcollin/agentkit/agent"
	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/runner"
)

type chatSession struct {
	agent         *agent.Agent
	out           io.Writer
	history       []core.Message
	usage         core.Usage
	showReasoning bool
	conversation  string
}

func chatCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		common    commonFlags
		agentOpts agentFlags
		reasoning bool
	)
	fs := pflag.NewFlagSet("chat", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	agentOpts.register(fs)
	fs.BoolVar(&reasoning, "reasoning", false, "print reasoning as it streams")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	a, err := env.buildAgent(agentOpts, common.model)
	if err != nil {
		return err
	}
	s := &chatSession{
		agent:         a,
		out:           stdout,
		showReasoning: reasoning,
		conversation:  uuid.NewString(),
	}
	env.logger.Debug("chat started", "agent", a.Name(), "conversation", s.conversation)

	fmt.Fprintln(stdout, "agentkit chat: /reset clears history, /usage shows token totals, /exit quits.")
	lines := readLines(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(stdout)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(stdout)
			return nil
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.history = nil
			fmt.Fprintln(stdout, "history cleared")
			continue
		case "/usage":
			fmt.Fprintf(stdout, "input %d, output %d, total %d tokens\n",
				s.usage.InputTokens, s.usage.OutputTokens, s.usage.TotalTokens)
			continue
		}
		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
	}
}

// turn runs one prompt through the tool loop, streaming text as it arrives.
// The history keeps whatever the loop appended, even on failure.
func (s *chatSession) turn(ctx context.Context, text string) error {
	hooks := runner.Hooks{
		OnEvent: func(ctx context.Context, turn int, ev core.StreamEvent) error {
			switch ev.Type {
			case core.EventText:
				fmt.Fprint(s.out, ev.Text)
			case core.EventReasoning:
				if s.showReasoning && ev.Reasoning != nil {
					fmt.Fprintf(s.out, "[thinking] %s\n", ev.Reasoning.Text)
				}
			}
			return nil
		},
		OnToolCall: func(ctx context.Context, turn int, call core.ToolCall) error {
			fmt.Fprintf(s.out, "\n[tool] %s(%s)\n", call.Name, call.Arguments)
			return nil
		},
		OnToolResult: func(ctx context.Context, turn int, call core.ToolCall, result core.ToolResult) error {
			status := "ok"
			if result.IsError {
				status = "error"
			}
			fmt.Fprintf(s.out, "[tool] %s %s: %s\n", call.Name, status, truncate(result.Content, 200))
			return nil
		},
	}
	res, err := s.agent.PromptRequest(text).
		WithHistory(&s.history).
		Streaming().
		WithHooks(hooks).
		Send(ctx)
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}
	s.usage = s.usage.Add(res.Usage)
	return nil
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
