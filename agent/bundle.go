package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/prompts"
)

// ManifestFile is the bundle manifest name.
const ManifestFile = "agent.yaml"

// Manifest is the agent.yaml document of a bundle.
type Manifest struct {
	Name             string            `yaml:"name" json:"name"`
	Version          string            `yaml:"version" json:"version"`
	Model            string            `yaml:"model" json:"model"`
	Preamble         string            `yaml:"preamble" json:"preamble,omitempty"`
	PreambleTemplate string            `yaml:"preamble_template" json:"preamble_template,omitempty"`
	Vars             map[string]any    `yaml:"vars" json:"vars,omitempty"`
	Context          []ContextEntry    `yaml:"context" json:"context,omitempty"`
	ContextFiles     []string          `yaml:"context_files" json:"context_files,omitempty"`
	Temperature      *float64          `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens        *int              `yaml:"max_tokens" json:"max_tokens,omitempty"`
	MaxTurns         int               `yaml:"max_turns" json:"max_turns,omitempty"`
	ToolChoice       string            `yaml:"tool_choice" json:"tool_choice,omitempty"`
	AdditionalParams map[string]any    `yaml:"additional_params" json:"additional_params,omitempty"`
	Metadata         map[string]string `yaml:"metadata" json:"metadata,omitempty"`
}

// ContextEntry is an inline context document.
type ContextEntry struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// Bundle is a loaded agent directory with its preamble and context resolved.
type Bundle struct {
	Path     string
	Manifest Manifest
	// SemVer is the parsed manifest version.
	SemVer    *semver.Version
	Preamble  string
	Documents []core.ContextDocument
	// PromptID identifies the rendered preamble template, if any.
	PromptID prompts.PromptID
}

// ModelResolver turns a "provider/model" reference into a model.
type ModelResolver interface {
	CompletionModel(ref string) (core.CompletionModel, error)
}

// ModelResolverFunc adapts a function to ModelResolver.
type ModelResolverFunc func(ref string) (core.CompletionModel, error)

// CompletionModel implements ModelResolver.
func (f ModelResolverFunc) CompletionModel(ref string) (core.CompletionModel, error) {
	return f(ref)
}

// LoadBundle parses the agent bundle rooted at dir. Preamble templates are
// looked up in the bundle's prompts directory.
func LoadBundle(dir string) (*Bundle, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("agent bundle path is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("agent: stat bundle: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("agent: %s is not a directory", abs)
	}

	bundle := &Bundle{Path: abs}
	if err := bundle.loadManifest(); err != nil {
		return nil, err
	}
	if err := bundle.loadPreamble(); err != nil {
		return nil, err
	}
	if err := bundle.loadContext(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (b *Bundle) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(b.Path, ManifestFile))
	if err != nil {
		return fmt.Errorf("agent: read %s: %w", ManifestFile, err)
	}
	if err := yaml.Unmarshal(data, &b.Manifest); err != nil {
		return fmt.Errorf("agent: decode %s: %w", ManifestFile, err)
	}
	m := &b.Manifest
	if strings.TrimSpace(m.Name) == "" {
		m.Name = filepath.Base(b.Path)
	}
	if strings.TrimSpace(m.Version) == "" {
		m.Version = "0.0.0"
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return fmt.Errorf("agent: version %q: %w", m.Version, err)
	}
	b.SemVer = v

	provider, model, ok := strings.Cut(m.Model, "/")
	if !ok || provider == "" || model == "" {
		return fmt.Errorf("agent: model must be provider/model, got %q", m.Model)
	}
	if m.Preamble != "" && m.PreambleTemplate != "" {
		return errors.New("agent: preamble and preamble_template are mutually exclusive")
	}
	if m.MaxTurns < 0 {
		return fmt.Errorf("agent: max_turns must not be negative, got %d", m.MaxTurns)
	}
	if _, err := parseToolChoice(m.ToolChoice); err != nil {
		return err
	}
	return nil
}

func (b *Bundle) loadPreamble() error {
	m := b.Manifest
	if m.PreambleTemplate == "" {
		b.Preamble = m.Preamble
		return nil
	}
	name, version, _ := strings.Cut(m.PreambleTemplate, "@")
	registry := prompts.NewRegistry(os.DirFS(filepath.Join(b.Path, "prompts")), prompts.WithStrict())
	if err := registry.Reload(); err != nil {
		return fmt.Errorf("agent: load prompts: %w", err)
	}
	data := map[string]any{
		"Name":    m.Name,
		"Version": m.Version,
		"Vars":    m.Vars,
	}
	text, id, err := registry.Render(name, version, data)
	if err != nil {
		return fmt.Errorf("agent: render preamble: %w", err)
	}
	b.Preamble = strings.TrimSpace(text)
	b.PromptID = id
	return nil
}

func (b *Bundle) loadContext() error {
	for i, entry := range b.Manifest.Context {
		id := entry.ID
		if id == "" {
			id = fmt.Sprintf("static_doc_%d", i)
		}
		b.Documents = append(b.Documents, core.ContextDocument{ID: id, Text: entry.Text})
	}
	root := os.DirFS(b.Path)
	for _, rel := range b.Manifest.ContextFiles {
		clean := filepath.ToSlash(filepath.Clean(rel))
		if filepath.IsAbs(rel) || !fs.ValidPath(clean) {
			return fmt.Errorf("agent: context file %q must stay inside the bundle", rel)
		}
		data, err := fs.ReadFile(root, clean)
		if err != nil {
			return fmt.Errorf("agent: context file: %w", err)
		}
		b.Documents = append(b.Documents, core.ContextDocument{
			ID:       clean,
			Text:     string(data),
			Metadata: map[string]string{"path": clean},
		})
	}
	return nil
}

// Options converts the manifest into agent options, excluding the model.
func (b *Bundle) Options() []Option {
	m := b.Manifest
	_, model, _ := strings.Cut(m.Model, "/")
	opts := []Option{
		WithName(m.Name),
		WithModelName(model),
		WithPreamble(b.Preamble),
	}
	if len(b.Documents) > 0 {
		opts = append(opts, WithContext(b.Documents...))
	}
	if m.Temperature != nil {
		opts = append(opts, WithTemperature(*m.Temperature))
	}
	if m.MaxTokens != nil {
		opts = append(opts, WithMaxTokens(*m.MaxTokens))
	}
	if m.MaxTurns > 0 {
		opts = append(opts, WithMaxTurns(m.MaxTurns))
	}
	if choice, _ := parseToolChoice(m.ToolChoice); !choice.IsZero() {
		opts = append(opts, WithToolChoice(choice))
	}
	if len(m.AdditionalParams) > 0 {
		opts = append(opts, WithAdditionalParams(m.AdditionalParams))
	}
	return opts
}

// Build resolves the bundle model and returns the agent. extra options are
// applied after the manifest, e.g. to attach tools.
func (b *Bundle) Build(resolver ModelResolver, extra ...Option) (*Agent, error) {
	if resolver == nil {
		return nil, errors.New("agent: model resolver is nil")
	}
	model, err := resolver.CompletionModel(b.Manifest.Model)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve model %s: %w", b.Manifest.Model, err)
	}
	return New(model, append(b.Options(), extra...)...), nil
}

func parseToolChoice(value string) (core.ToolChoice, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return core.ToolChoice{}, nil
	case string(core.ToolChoiceAuto):
		return core.ToolChoice{Mode: core.ToolChoiceAuto}, nil
	case string(core.ToolChoiceNone):
		return core.ToolChoice{Mode: core.ToolChoiceNone}, nil
	case string(core.ToolChoiceRequired):
		return core.ToolChoice{Mode: core.ToolChoiceRequired}, nil
	default:
		return core.ToolChoice{}, fmt.Errorf("agent: unknown tool_choice %q", value)
	}
}
