// Command agentkit chats with, prompts and serves agents built on any
// registered provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/internal/config"
	"github.com/shillcollin/agentkit/obs"

	_ "github.com/shillcollin/agentkit/providers/anthropic"
	_ "github.com/shillcollin/agentkit/providers/compat"
	_ "github.com/shillcollin/agentkit/providers/gemini"
	_ "github.com/shillcollin/agentkit/providers/groq"
	_ "github.com/shillcollin/agentkit/providers/openai"
	_ "github.com/shillcollin/agentkit/providers/xai"
)

const obsShutdownTimeout = 5 * time.Second

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "agentkit: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "chat":
		return chatCommand(ctx, rest, stdin, stdout, stderr)
	case "prompt":
		return promptCommand(ctx, rest, stdin, stdout, stderr)
	case "serve":
		return serveCommand(ctx, rest, stderr)
	case "providers":
		return providersCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `agentkit commands:
  chat       interactive chat with streamed replies
  prompt     run one prompt through the tool loop and print the answer
  serve      serve the configured agents over HTTP
  providers  list registered providers and whether their keys are set

Run "agentkit <command> --help" for flags.`)
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	envFile    string
	model      string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "config file (.yaml, .yml, .json or .jsonc)")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading provider keys")
	fs.StringVarP(&f.model, "model", "m", "", "model reference (provider/model or alias)")
}

// app is the environment a command runs in.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	client   *agentkit.Client
	shutdown func(context.Context) error
}

func (a *app) close() {
	if a.shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), obsShutdownTimeout)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("observability shutdown failed", "error", err)
	}
}

func setup(ctx context.Context, flags commonFlags, stderr io.Writer) (*app, error) {
	if err := loadEnv(flags.envFile); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.model != "" {
		cfg.DefaultModel = flags.model
	}
	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	opts := observabilityOptions(cfg.Observability, logger)
	if path := cfg.Observability.CompletionsFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open completions file: %w", err)
		}
		opts.Sinks = append(opts.Sinks, obs.NewJSONSink(f))
	}
	shutdown, err := obs.Init(ctx, opts)
	if err != nil {
		for _, sink := range opts.Sinks {
			_ = sink.Shutdown(ctx)
		}
		return nil, fmt.Errorf("init observability: %w", err)
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   agentkit.NewClient(clientOptions(cfg, logger)...),
		shutdown: shutdown,
	}, nil
}

// loadEnv loads path into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// observabilityOptions overlays the config file on the OTEL_* environment.
// The environment's exporter wins unless the file names a real one.
func observabilityOptions(cfg config.ObservabilityConfig, logger *slog.Logger) obs.Options {
	opts := obs.OptionsFromEnv()
	if opts.ServiceName == "" {
		opts.ServiceName = "agentkit"
	}
	if cfg.ServiceName != "" {
		opts.ServiceName = cfg.ServiceName
	}
	if exporter := obs.ExporterType(cfg.Exporter); exporter != "" && exporter != obs.ExporterNone {
		opts.Exporter = exporter
		opts.Insecure = cfg.Insecure
	}
	if cfg.Protocol != "" {
		opts.Protocol = obs.Protocol(cfg.Protocol)
	}
	if cfg.Endpoint != "" {
		opts.Endpoint = cfg.Endpoint
	}
	if len(cfg.Headers) > 0 {
		opts.Headers = cfg.Headers
	}
	if cfg.SampleRatio != nil {
		opts.SampleRatio = *cfg.SampleRatio
	}
	opts.LogCompletions = cfg.LogCompletions
	opts.Logger = logger
	return opts
}

func clientOptions(cfg config.Config, logger *slog.Logger) []agentkit.ClientOption {
	opts := []agentkit.ClientOption{
		agentkit.WithLogger(logger),
		agentkit.WithAliases(agentkit.DefaultAliases()),
		agentkit.WithAliases(cfg.Aliases),
	}
	if cfg.DefaultModel != "" {
		opts = append(opts, agentkit.WithDefaultModel(cfg.DefaultModel))
	}
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			opts = append(opts, agentkit.WithAPIKey(name, p.APIKey))
		}
		if p.BaseURL != "" {
			opts = append(opts, agentkit.WithBaseURL(name, p.BaseURL))
		}
		if len(p.Headers) > 0 {
			opts = append(opts, agentkit.WithHeaders(name, p.Headers))
		}
		if p.Timeout > 0 {
			opts = append(opts, agentkit.WithTimeout(name, p.Timeout.Std()))
		}
	}
	return opts
}
