package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	FormatSSE    = "sse"
	FormatNDJSON = "ndjson"
)

// Config is the agentkit server and CLI configuration. Files are YAML
// (.yaml, .yml) or JSON with comments (.json, .jsonc).
type Config struct {
	Server        ServerConfig              `yaml:"server" json:"server"`
	DefaultModel  string                    `yaml:"default_model" json:"default_model"`
	Aliases       map[string]string         `yaml:"aliases" json:"aliases"`
	Providers     map[string]ProviderConfig `yaml:"providers" json:"providers"`
	Agents        []AgentConfig             `yaml:"agents" json:"agents"`
	Observability ObservabilityConfig       `yaml:"observability" json:"observability"`
	Log           LogConfig                 `yaml:"log" json:"log"`

	// Dir is the directory of the loaded file. Relative paths resolve
	// against it.
	Dir string `yaml:"-" json:"-"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr          string   `yaml:"addr" json:"addr"`
	StreamFormat  string   `yaml:"stream_format" json:"stream_format"`
	ReadTimeout   Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout  Duration `yaml:"write_timeout" json:"write_timeout"`
	SendReasoning bool     `yaml:"send_reasoning" json:"send_reasoning"`
	MaskErrors    bool     `yaml:"mask_errors" json:"mask_errors"`
	Heartbeat     Duration `yaml:"heartbeat" json:"heartbeat"`
}

// ProviderConfig overrides a provider's environment defaults.
type ProviderConfig struct {
	APIKey  string            `yaml:"api_key" json:"api_key"`
	BaseURL string            `yaml:"base_url" json:"base_url"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	Timeout Duration          `yaml:"timeout" json:"timeout"`
}

// AgentConfig names an agent bundle directory, optionally overriding the
// bundle's own name and model.
type AgentConfig struct {
	Name  string `yaml:"name" json:"name"`
	Dir   string `yaml:"dir" json:"dir"`
	Model string `yaml:"model" json:"model"`
}

// ObservabilityConfig selects the trace exporter and completion sinks.
type ObservabilityConfig struct {
	ServiceName    string            `yaml:"service_name" json:"service_name"`
	Exporter       string            `yaml:"exporter" json:"exporter"`
	Protocol       string            `yaml:"protocol" json:"protocol"`
	Endpoint       string            `yaml:"endpoint" json:"endpoint"`
	Insecure       bool              `yaml:"insecure" json:"insecure"`
	Headers        map[string]string `yaml:"headers" json:"headers"`
	SampleRatio    *float64          `yaml:"sample_ratio" json:"sample_ratio"`
	LogCompletions bool              `yaml:"log_completions" json:"log_completions"`
	// CompletionsFile receives one JSON line per model round.
	CompletionsFile string `yaml:"completions_file" json:"completions_file"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.set(s)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			StreamFormat: FormatSSE,
		},
		Observability: ObservabilityConfig{Exporter: "none"},
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file, expands ${VAR} references from the
// environment, applies defaults and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}
	cfg, err := Parse(data, filepath.Ext(absPath))
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	cfg.Dir = filepath.Dir(absPath)
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data in the format implied by ext over Default.
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	expanded := []byte(os.ExpandEnv(string(data)))
	switch strings.ToLower(ext) {
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return Config{}, err
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(expanded), &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

func (c *Config) resolvePaths() {
	for i := range c.Agents {
		if c.Agents[i].Dir != "" && !filepath.IsAbs(c.Agents[i].Dir) {
			c.Agents[i].Dir = filepath.Join(c.Dir, c.Agents[i].Dir)
		}
	}
	if f := c.Observability.CompletionsFile; f != "" && !filepath.IsAbs(f) {
		c.Observability.CompletionsFile = filepath.Join(c.Dir, f)
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	switch c.Server.StreamFormat {
	case FormatSSE, FormatNDJSON:
	default:
		errs = append(errs, fmt.Errorf("server.stream_format must be %q or %q, got %q", FormatSSE, FormatNDJSON, c.Server.StreamFormat))
	}
	if c.Server.Heartbeat < 0 {
		errs = append(errs, errors.New("server.heartbeat must not be negative"))
	}
	if c.DefaultModel != "" && !isModelRef(c.DefaultModel) && c.Aliases[c.DefaultModel] == "" {
		errs = append(errs, fmt.Errorf("default_model must be provider/model or an alias, got %q", c.DefaultModel))
	}
	for alias, target := range c.Aliases {
		if strings.TrimSpace(alias) == "" || !isModelRef(target) {
			errs = append(errs, fmt.Errorf("alias %q: target must be provider/model, got %q", alias, target))
		}
	}
	for name, provider := range c.Providers {
		for key := range provider.Headers {
			if !isHTTPHeader(key) {
				errs = append(errs, fmt.Errorf("provider %s: header %q is not a valid HTTP header", name, key))
			}
		}
		if provider.Timeout < 0 {
			errs = append(errs, fmt.Errorf("provider %s: timeout must not be negative", name))
		}
	}
	names := make(map[string]struct{}, len(c.Agents))
	for i, agent := range c.Agents {
		if strings.TrimSpace(agent.Dir) == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: dir must be provided", i))
		}
		if agent.Model != "" && !isModelRef(agent.Model) && c.Aliases[agent.Model] == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: model must be provider/model or an alias, got %q", i, agent.Model))
		}
		if agent.Name == "" {
			continue
		}
		if _, dup := names[agent.Name]; dup {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, agent.Name))
		}
		names[agent.Name] = struct{}{}
	}
	switch c.Observability.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("observability.exporter must be none, stdout or otlp, got %q", c.Observability.Exporter))
	}
	switch c.Observability.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("observability.protocol must be grpc or http/protobuf, got %q", c.Observability.Protocol))
	}
	if r := c.Observability.SampleRatio; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("observability.sample_ratio must be within [0, 1], got %v", *r))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func isModelRef(ref string) bool {
	provider, model, ok := strings.Cut(ref, "/")
	return ok && provider != "" && model != ""
}

func isHTTPHeader(header string) bool {
	if header == "" {
		return false
	}
	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
