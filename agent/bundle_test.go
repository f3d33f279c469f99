package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadBundle(t *testing.T) {
	tdir := t.TempDir()
	writeFile(t, filepath.Join(tdir, "agent.yaml"), `name: support
version: 1.2.0
model: openai/gpt-4o-mini
preamble_template: system@^1
vars:
  product: Widgets
context:
  - id: hours
    text: Open 9 to 5.
context_files:
  - docs/faq.md
temperature: 0.2
max_tokens: 256
max_turns: 3
tool_choice: auto
additional_params:
  seed: 7
`)
	writeFile(t, filepath.Join(tdir, "prompts", "system@1.0.0.tmpl"), "old")
	writeFile(t, filepath.Join(tdir, "prompts", "system@1.4.0.tmpl"), "You are {{.Name}}, helping with {{.Vars.product}}.\n")
	writeFile(t, filepath.Join(tdir, "docs", "faq.md"), "Returns within 30 days.")

	bundle, err := LoadBundle(tdir)
	if err != nil {
		t.Fatalf("LoadBundle error: %v", err)
	}
	if bundle.Manifest.Name != "support" || bundle.SemVer.Minor() != 2 {
		t.Fatalf("unexpected manifest %+v", bundle.Manifest)
	}
	if bundle.Preamble != "You are support, helping with Widgets." {
		t.Fatalf("unexpected preamble %q", bundle.Preamble)
	}
	if bundle.PromptID.Version != "1.4.0" {
		t.Fatalf("expected newest matching template, got %+v", bundle.PromptID)
	}
	if len(bundle.Documents) != 2 || bundle.Documents[0].ID != "hours" || bundle.Documents[1].ID != "docs/faq.md" {
		t.Fatalf("unexpected documents %+v", bundle.Documents)
	}

	var resolved string
	model := testutil.NewScriptedModel(testutil.TextResponse("hi", core.Usage{}))
	resolver := ModelResolverFunc(func(ref string) (core.CompletionModel, error) {
		resolved = ref
		return model, nil
	})
	a, err := bundle.Build(resolver)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if resolved != "openai/gpt-4o-mini" || a.Name() != "support" || a.MaxTurns() != 3 {
		t.Fatalf("unexpected agent %q %q %d", resolved, a.Name(), a.MaxTurns())
	}
	req, err := a.Completion(context.Background(), core.UserText("hello"), nil)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if req.Model != "gpt-4o-mini" || *req.Temperature != 0.2 || *req.MaxTokens != 256 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.ToolChoice.Mode != core.ToolChoiceAuto || req.AdditionalParams["seed"] != 7 {
		t.Fatalf("unexpected request params %+v", req)
	}
}

func TestLoadBundleRejectsInvalidManifests(t *testing.T) {
	cases := []struct {
		name     string
		manifest string
		want     string
	}{
		{"bad version", "version: one\nmodel: openai/gpt-4o\n", "version"},
		{"bare model", "model: gpt-4o\n", "provider/model"},
		{"both preambles", "model: openai/gpt-4o\npreamble: a\npreamble_template: b\n", "mutually exclusive"},
		{"tool choice", "model: openai/gpt-4o\ntool_choice: sometimes\n", "tool_choice"},
		{"escaping context", "model: openai/gpt-4o\ncontext_files: [../secret]\n", "inside the bundle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tdir := t.TempDir()
			writeFile(t, filepath.Join(tdir, "agent.yaml"), tc.manifest)
			_, err := LoadBundle(tdir)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBundleDefaultsAndResolverError(t *testing.T) {
	tdir := t.TempDir()
	writeFile(t, filepath.Join(tdir, "agent.yaml"), "model: anthropic/claude-3-5-sonnet-latest\npreamble: Be brief.\n")
	bundle, err := LoadBundle(tdir)
	if err != nil {
		t.Fatalf("LoadBundle error: %v", err)
	}
	if bundle.Manifest.Name != filepath.Base(tdir) || bundle.Manifest.Version != "0.0.0" {
		t.Fatalf("unexpected defaults %+v", bundle.Manifest)
	}
	if bundle.Preamble != "Be brief." {
		t.Fatalf("unexpected preamble %q", bundle.Preamble)
	}

	boom := errors.New("no such provider")
	_, err = bundle.Build(ModelResolverFunc(func(string) (core.CompletionModel, error) { return nil, boom }))
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}
