package core

import (
	"slices"
	"strings"
	"testing"
)

func TestCompletionRequestValidate(t *testing.T) {
	temp := 2.5
	zero := 0
	cases := []struct {
		name    string
		req     CompletionRequest
		wantErr string
	}{
		{name: "ok", req: CompletionRequest{Prompt: UserText("hi")}},
		{name: "assistant prompt", req: CompletionRequest{Prompt: AssistantText("hi")}, wantErr: "prompt must be"},
		{name: "temperature", req: CompletionRequest{Prompt: UserText("hi"), Temperature: &temp}, wantErr: "temperature"},
		{name: "max tokens", req: CompletionRequest{Prompt: UserText("hi"), MaxTokens: &zero}, wantErr: "max tokens"},
		{
			name:    "duplicate tools",
			req:     CompletionRequest{Prompt: UserText("hi"), Tools: []ToolDefinition{{Name: "a"}, {Name: "a"}}},
			wantErr: "duplicate",
		},
		{
			name:    "specific unknown",
			req:     CompletionRequest{Prompt: UserText("hi"), Tools: []ToolDefinition{{Name: "a"}}, ToolChoice: SpecificTools("b")},
			wantErr: "unknown tool",
		},
		{
			name:    "required without tools",
			req:     CompletionRequest{Prompt: UserText("hi"), ToolChoice: ToolChoice{Mode: ToolChoiceRequired}},
			wantErr: "without tools",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProviderMessagesPrependsDocuments(t *testing.T) {
	req := CompletionRequest{
		ChatHistory: []Message{UserText("earlier"), AssistantText("reply")},
		Prompt:      UserText("now"),
		Documents: []ContextDocument{
			{ID: "doc-1", Text: "glarb means cat", Metadata: map[string]string{"source": "wiki"}},
		},
	}
	msgs := req.ProviderMessages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	first := msgs[0].Text()
	if !strings.HasPrefix(first, "<attachments>") || !strings.Contains(first, "<file id: doc-1>") {
		t.Fatalf("unexpected attachment block %q", first)
	}
	if !strings.Contains(first, "<metadata source: wiki>") {
		t.Fatalf("metadata missing from %q", first)
	}
	if msgs[3].Text() != "now" {
		t.Fatalf("prompt must be last, got %q", msgs[3].Text())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	req := CompletionRequest{
		Prompt:           UserText("hi"),
		ChatHistory:      []Message{UserText("a")},
		AdditionalParams: map[string]any{"seed": 1},
	}
	clone := req.Clone()
	clone.ChatHistory[0] = AssistantText("b")
	clone.AdditionalParams["seed"] = 2
	if req.ChatHistory[0].Role != User || req.AdditionalParams["seed"] != 1 {
		t.Fatalf("clone mutated original: %+v", req)
	}
}

func TestOfferedTools(t *testing.T) {
	tools := []ToolDefinition{{Name: "add"}, {Name: "sub"}, {Name: "mul"}}
	names := func(defs []ToolDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Name)
		}
		return out
	}
	tests := []struct {
		choice ToolChoice
		want   []string
	}{
		{ToolChoice{}, []string{"add", "sub", "mul"}},
		{ToolChoice{Mode: ToolChoiceRequired}, []string{"add", "sub", "mul"}},
		{SpecificTools("mul", "add"), []string{"add", "mul"}},
		{SpecificTools("sub"), []string{"sub"}},
	}
	for _, tt := range tests {
		req := CompletionRequest{Tools: tools, ToolChoice: tt.choice}
		if got := names(req.OfferedTools()); !slices.Equal(got, tt.want) {
			t.Fatalf("%+v: expected %v, got %v", tt.choice, tt.want, got)
		}
	}
}

func TestUsageAddAndNormalize(t *testing.T) {
	u := Usage{InputTokens: 3, OutputTokens: 4}.Normalize()
	if u.TotalTokens != 7 {
		t.Fatalf("expected total 7, got %d", u.TotalTokens)
	}
	sum := u.Add(Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2, CachedInputTokens: 5})
	if sum != (Usage{InputTokens: 4, OutputTokens: 5, TotalTokens: 9, CachedInputTokens: 5}) {
		t.Fatalf("unexpected sum %+v", sum)
	}
}
