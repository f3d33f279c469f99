package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/shillcollin/agentkit/agent"
	"github.com/shillcollin/agentkit/httpapi"
	"github.com/shillcollin/agentkit/internal/config"
	"github.com/shillcollin/agentkit/stream"
)

func serveCommand(ctx context.Context, args []string, stderr io.Writer) error {
	var (
		common  commonFlags
		addr    string
		bundles []string
	)
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	fs.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	fs.StringArrayVar(&bundles, "agent", nil, "agent bundle directory to serve; repeatable, added to the config's agents")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	for _, dir := range bundles {
		env.cfg.Agents = append(env.cfg.Agents, config.AgentConfig{Dir: dir})
	}
	if addr != "" {
		env.cfg.Server.Addr = addr
	}
	agents, err := env.loadAgents(env.cfg.Agents)
	if err != nil {
		return err
	}

	server, err := httpapi.New(agents, serverOptions(env.cfg.Server, env)...)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

// loadAgents builds every configured bundle, keyed by the configured name,
// the manifest name, or the directory name in that order.
func (a *app) loadAgents(entries []config.AgentConfig) (map[string]*agent.Agent, error) {
	if len(entries) == 0 {
		return nil, errors.New("no agents configured; add agents to the config file or pass --agent")
	}
	agents := make(map[string]*agent.Agent, len(entries))
	for _, entry := range entries {
		bundle, err := agent.LoadBundle(entry.Dir)
		if err != nil {
			return nil, err
		}
		if entry.Model != "" {
			bundle.Manifest.Model = entry.Model
		}
		name := entry.Name
		if name == "" {
			name = bundle.Manifest.Name
		}
		if name == "" {
			name = filepath.Base(entry.Dir)
		}
		if _, dup := agents[name]; dup {
			return nil, fmt.Errorf("agent %q is configured twice", name)
		}
		built, err := a.client.BuildAgent(bundle, agent.WithName(name))
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		agents[name] = built
		a.logger.Info("agent loaded", "name", name, "model", bundle.Manifest.Model, "dir", entry.Dir)
	}
	return agents, nil
}

func serverOptions(cfg config.ServerConfig, env *app) []httpapi.Option {
	policy := stream.DefaultPolicy()
	policy.SendReasoning = cfg.SendReasoning
	policy.MaskErrors = cfg.MaskErrors
	policy.Heartbeat = cfg.Heartbeat.Std()
	return []httpapi.Option{
		httpapi.WithAddr(cfg.Addr),
		httpapi.WithStreamFormat(cfg.StreamFormat),
		httpapi.WithPolicy(policy),
		httpapi.WithTimeouts(cfg.ReadTimeout.Std(), cfg.WriteTimeout.Std()),
		httpapi.WithLogger(env.logger),
	}
}
