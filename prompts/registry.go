// Package prompts renders versioned preamble templates. Templates are files
// named name@version.tmpl, where version is a semantic version; files whose
// name starts with an underscore are partials available to every template
// under their base name, e.g. {{template "rules" .}} for _rules.tmpl.
package prompts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/semver/v3"
)

const ext = ".tmpl"

// ErrNotFound is returned when no template matches a name and version.
var ErrNotFound = errors.New("prompt not found")

// PromptID identifies the template version that produced a rendering.
type PromptID struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// Template is one loaded template version.
type Template struct {
	Name        string
	Version     *semver.Version
	Fingerprint string
	// Source is the file path within the layer it was loaded from.
	Source string

	tmpl *template.Template
}

// ID returns the template's PromptID.
func (t *Template) ID() PromptID {
	return PromptID{Name: t.Name, Version: t.Version.Original(), Fingerprint: t.Fingerprint}
}

// Registry holds the templates of one or more filesystem layers. Later
// layers replace same-named versions and partials of earlier ones.
type Registry struct {
	layers []fs.FS
	funcs  template.FuncMap
	strict bool

	mu      sync.RWMutex
	prompts map[string][]*Template // ascending by version
}

// Option configures a Registry.
type Option func(*Registry)

// WithOverlay adds a layer loaded after the base filesystem.
func WithOverlay(fsys fs.FS) Option {
	return func(r *Registry) {
		if fsys != nil {
			r.layers = append(r.layers, fsys)
		}
	}
}

// WithFuncs adds template helpers, replacing built-ins of the same name.
func WithFuncs(funcs template.FuncMap) Option {
	return func(r *Registry) {
		for k, v := range funcs {
			r.funcs[k] = v
		}
	}
}

// WithStrict makes a missing map key a render error instead of "<no value>".
func WithStrict() Option {
	return func(r *Registry) { r.strict = true }
}

// NewRegistry returns a registry over fsys. Call Reload before rendering.
func NewRegistry(fsys fs.FS, opts ...Option) *Registry {
	r := &Registry{
		layers:  []fs.FS{fsys},
		funcs:   builtinFuncs(),
		prompts: map[string][]*Template{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rawFile struct {
	source string
	data   []byte
}

// Reload reads every layer and replaces the loaded templates. On error the
// previous templates stay in place.
func (r *Registry) Reload() error {
	versions := map[string]map[string]rawFile{}
	partials := map[string]rawFile{}
	for _, layer := range r.layers {
		err := fs.WalkDir(layer, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(p, ext) {
				return nil
			}
			data, err := fs.ReadFile(layer, p)
			if err != nil {
				return err
			}
			base := strings.TrimSuffix(path.Base(p), ext)
			if strings.HasPrefix(base, "_") {
				partials[strings.TrimPrefix(base, "_")] = rawFile{source: p, data: data}
				return nil
			}
			name, version, err := parseFilename(base)
			if err != nil {
				return fmt.Errorf("prompts: %s: %w", p, err)
			}
			if versions[name] == nil {
				versions[name] = map[string]rawFile{}
			}
			versions[name][version.String()] = rawFile{source: p, data: data}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	prompts := make(map[string][]*Template, len(versions))
	for name, files := range versions {
		for _, file := range files {
			t, err := r.parse(name, file, partials)
			if err != nil {
				return err
			}
			prompts[name] = append(prompts[name], t)
		}
		sort.Slice(prompts[name], func(i, j int) bool {
			return prompts[name][i].Version.LessThan(prompts[name][j].Version)
		})
	}

	r.mu.Lock()
	r.prompts = prompts
	r.mu.Unlock()
	return nil
}

func (r *Registry) parse(name string, file rawFile, partials map[string]rawFile) (*Template, error) {
	base := strings.TrimSuffix(path.Base(file.source), ext)
	_, version, _ := parseFilename(base)

	tmpl := template.New(name).Funcs(r.funcs)
	if r.strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	sum := sha256.New()
	sum.Write(file.data)
	partialNames := make([]string, 0, len(partials))
	for p := range partials {
		partialNames = append(partialNames, p)
	}
	sort.Strings(partialNames)
	for _, p := range partialNames {
		if _, err := tmpl.New(p).Parse(string(partials[p].data)); err != nil {
			return nil, fmt.Errorf("prompts: partial %s: %w", partials[p].source, err)
		}
		sum.Write(partials[p].data)
	}
	if _, err := tmpl.Parse(string(file.data)); err != nil {
		return nil, fmt.Errorf("prompts: %s: %w", file.source, err)
	}
	return &Template{
		Name:        name,
		Version:     version,
		Fingerprint: hex.EncodeToString(sum.Sum(nil)),
		Source:      file.source,
		tmpl:        tmpl,
	}, nil
}

// Lookup returns the template for name matching version, which may be an
// exact version, a constraint such as "^1.2", or "" / "latest" for the
// highest version.
func (r *Registry) Lookup(name, version string) (*Template, error) {
	r.mu.RLock()
	ordered := r.prompts[name]
	r.mu.RUnlock()
	if len(ordered) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if version == "" || version == "latest" {
		return ordered[len(ordered)-1], nil
	}
	if v, err := semver.NewVersion(version); err == nil {
		for _, t := range ordered {
			if t.Version.Equal(v) {
				return t, nil
			}
		}
	}
	constraint, err := semver.NewConstraint(version)
	if err != nil {
		return nil, fmt.Errorf("prompts: version %q: %w", version, err)
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		if constraint.Check(ordered[i].Version) {
			return ordered[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
}

// Render executes the template matching name and version with data.
func (r *Registry) Render(name, version string, data any) (string, PromptID, error) {
	t, err := r.Lookup(name, version)
	if err != nil {
		return "", PromptID{}, err
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", PromptID{}, fmt.Errorf("prompts: render %s@%s: %w", name, t.Version, err)
	}
	return buf.String(), t.ID(), nil
}

// Versions returns the loaded versions of name in ascending order.
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.prompts[name]))
	for _, t := range r.prompts[name] {
		out = append(out, t.Version.Original())
	}
	return out
}

// Names returns the loaded template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.prompts))
	for name := range r.prompts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func parseFilename(base string) (string, *semver.Version, error) {
	name, version, ok := strings.Cut(base, "@")
	if !ok || name == "" || version == "" {
		return "", nil, fmt.Errorf("file name must be name@version%s", ext)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", nil, fmt.Errorf("version %q: %w", version, err)
	}
	return name, v, nil
}

func builtinFuncs() template.FuncMap {
	return template.FuncMap{
		"join":  strings.Join,
		"trim":  strings.TrimSpace,
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"indent": func(n int, s string) string {
			pad := strings.Repeat(" ", n)
			return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
		},
		"default": func(def, v any) any {
			if v == nil || v == "" {
				return def
			}
			return v
		},
		"json": func(v any) (string, error) {
			data, err := json.Marshal(v)
			return string(data), err
		},
	}
}
