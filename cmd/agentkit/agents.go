package main

import (
	"github.com/spf13/pflag"

	"github.com/shillcollin/agentkit/agent"
)

// agentFlags select and tune the agent for chat and prompt.
type agentFlags struct {
	bundleDir   string
	system      string
	temperature float64
	maxTokens   int
	maxTurns    int
}

func (f *agentFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.bundleDir, "agent", "a", "", "agent bundle directory containing agent.yaml")
	fs.StringVarP(&f.system, "system", "s", "", "preamble (overrides the bundle's)")
	fs.Float64VarP(&f.temperature, "temperature", "t", -1, "sampling temperature; negative keeps the default")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "output token limit; 0 keeps the default")
	fs.IntVar(&f.maxTurns, "max-turns", 0, "tool dispatch round limit; 0 keeps the default")
}

func (f agentFlags) options() []agent.Option {
	var opts []agent.Option
	if f.system != "" {
		opts = append(opts, agent.WithPreamble(f.system))
	}
	if f.temperature >= 0 {
		opts = append(opts, agent.WithTemperature(f.temperature))
	}
	if f.maxTokens > 0 {
		opts = append(opts, agent.WithMaxTokens(f.maxTokens))
	}
	if f.maxTurns > 0 {
		opts = append(opts, agent.WithMaxTurns(f.maxTurns))
	}
	return opts
}

// buildAgent loads the bundle named by f, or builds a plain agent on model
// (the default model when empty). A non-empty model overrides the bundle's.
func (a *app) buildAgent(f agentFlags, model string, extra ...agent.Option) (*agent.Agent, error) {
	opts := append(f.options(), extra...)
	if f.bundleDir == "" {
		return a.client.Agent(model, opts...)
	}
	bundle, err := agent.LoadBundle(f.bundleDir)
	if err != nil {
		return nil, err
	}
	if model != "" {
		bundle.Manifest.Model = model
	}
	a.logger.Debug("loaded agent bundle",
		"name", bundle.Manifest.Name,
		"version", bundle.Manifest.Version,
		"model", bundle.Manifest.Model,
	)
	return a.client.BuildAgent(bundle, opts...)
}
