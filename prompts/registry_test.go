package prompts

import (
	"errors"
	"reflect"
	"testing"
	"testing/fstest"
	"text/template"
)

func load(t *testing.T, fsys fstest.MapFS, opts ...Option) *Registry {
	t.Helper()
	reg := NewRegistry(fsys, opts...)
	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return reg
}

func TestRegistryRender(t *testing.T) {
	reg := load(t, fstest.MapFS{
		"summary@1.0.0.tmpl": {Data: []byte("Summary: {{.Text}}")},
		"summary@1.1.0.tmpl": {Data: []byte("Summary v1.1: {{.Text | upper}}")},
	})
	out, id, err := reg.Render("summary", "1.1.0", map[string]any{"Text": "hello"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Summary v1.1: HELLO" {
		t.Fatalf("unexpected output %q", out)
	}
	if id.Name != "summary" || id.Version != "1.1.0" || len(id.Fingerprint) != 64 {
		t.Fatalf("unexpected prompt id %+v", id)
	}
	if !reflect.DeepEqual(reg.Names(), []string{"summary"}) {
		t.Fatalf("unexpected names %v", reg.Names())
	}
}

func TestRegistryVersionSelection(t *testing.T) {
	reg := load(t, fstest.MapFS{
		"system@1.9.0.tmpl":  {Data: []byte("nine")},
		"system@1.10.0.tmpl": {Data: []byte("ten")},
		"system@2.0.0.tmpl":  {Data: []byte("two")},
	})
	if got := reg.Versions("system"); !reflect.DeepEqual(got, []string{"1.9.0", "1.10.0", "2.0.0"}) {
		t.Fatalf("unexpected order %v", got)
	}
	tests := []struct {
		want string
		out  string
	}{
		{"", "two"},
		{"latest", "two"},
		{"^1", "ten"},
		{"~1.9", "nine"},
		{"1.10", "ten"},
		{"v2", "two"},
	}
	for _, tt := range tests {
		out, _, err := reg.Render("system", tt.want, nil)
		if err != nil {
			t.Fatalf("%q: Render: %v", tt.want, err)
		}
		if out != tt.out {
			t.Fatalf("%q: expected %s, got %s", tt.want, tt.out, out)
		}
	}
	if _, _, err := reg.Render("system", "^3", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := reg.Render("missing", "", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := reg.Render("system", "not a version", nil); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected constraint error, got %v", err)
	}
}

func TestRegistryPartialsAndOverlay(t *testing.T) {
	base := fstest.MapFS{
		"_rules.tmpl":         {Data: []byte("Be brief.")},
		"agent@1.0.0.tmpl":    {Data: []byte(`{{.Name}}: {{template "rules" .}}`)},
		"nested/x@0.1.0.tmpl": {Data: []byte("x")},
	}
	overlay := fstest.MapFS{
		"_rules.tmpl": {Data: []byte("Be thorough.")},
	}
	plain := load(t, base)
	out, first, err := plain.Render("agent", "", map[string]any{"Name": "helper"})
	if err != nil || out != "helper: Be brief." {
		t.Fatalf("unexpected render %q %v", out, err)
	}
	if len(plain.Versions("x")) != 1 {
		t.Fatalf("nested templates should load")
	}

	layered := load(t, base, WithOverlay(overlay))
	out, second, err := layered.Render("agent", "", map[string]any{"Name": "helper"})
	if err != nil || out != "helper: Be thorough." {
		t.Fatalf("overlay partial not used: %q %v", out, err)
	}
	if first.Fingerprint == second.Fingerprint {
		t.Fatalf("fingerprint should cover partials")
	}
}

func TestRegistryStrictAndFuncs(t *testing.T) {
	fsys := fstest.MapFS{
		"p@1.0.0.tmpl": {Data: []byte(`{{.Vars.missing}}|{{default "none" .Opt}}|{{json .List}}|{{shout "hi"}}`)},
	}
	funcs := template.FuncMap{"shout": func(s string) string { return s + "!" }}
	data := map[string]any{"Vars": map[string]any{}, "Opt": "", "List": []int{1, 2}}

	out, _, err := load(t, fsys, WithFuncs(funcs)).Render("p", "", data)
	if err != nil || out != "<no value>|none|[1,2]|hi!" {
		t.Fatalf("unexpected render %q %v", out, err)
	}
	if _, _, err := load(t, fsys, WithFuncs(funcs), WithStrict()).Render("p", "", data); err == nil {
		t.Fatalf("strict mode should reject missing keys")
	}
}

func TestRegistryReloadErrors(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad version":  {"bad@latest.tmpl": {Data: []byte("x")}},
		"no version":   {"bad.tmpl": {Data: []byte("x")}},
		"bad template": {"bad@1.0.0.tmpl": {Data: []byte("{{.Open")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := NewRegistry(fsys).Reload(); err == nil {
				t.Fatalf("expected reload error")
			}
		})
	}
}
