package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/shillcollin/agentkit/agent"
	"github.com/shillcollin/agentkit/stream"
)

func promptCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		common     commonFlags
		agentOpts  agentFlags
		paramsPath string
		streaming  bool
		asJSON     bool
	)
	fs := pflag.NewFlagSet("prompt", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	agentOpts.register(fs)
	fs.StringVar(&paramsPath, "params", "", "JSON (comments allowed) file of provider-specific request parameters")
	fs.BoolVar(&streaming, "stream", false, "stream a single round without dispatching tools")
	fs.BoolVar(&asJSON, "json", false, "print text, usage and turns as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := promptText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	var extra []agent.Option
	if paramsPath != "" {
		params, err := loadParams(paramsPath)
		if err != nil {
			return err
		}
		extra = append(extra, agent.WithAdditionalParams(params))
	}

	env, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	a, err := env.buildAgent(agentOpts, common.model, extra...)
	if err != nil {
		return err
	}

	if streaming {
		result, err := a.StreamPrompt(ctx, text)
		if err != nil {
			return err
		}
		defer result.Close()
		resp, err := stream.TextTo(ctx, result, stdout)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout)
		env.logger.Debug("stream finished",
			"stream_id", result.ID(),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)
		return nil
	}

	res, err := a.PromptRequest(text).Send(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"text":  res.Text,
			"usage": res.Usage,
			"turns": res.Turns,
		})
	}
	fmt.Fprintln(stdout, res.Text)
	return nil
}

// promptText joins the positional arguments, reading stdin when there are
// none or the only one is "-".
func promptText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		args = []string{string(data)}
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", errors.New("prompt must not be empty")
	}
	return text, nil
}

// loadParams reads a JSON object, comments and trailing commas allowed.
func loadParams(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &params); err != nil {
		return nil, fmt.Errorf("parse params %s: %w", path, err)
	}
	return params, nil
}
