package core

import "testing"

func TestEstimateTokens(t *testing.T) {
	limit := 100
	req := CompletionRequest{
		Preamble:    "12345678",
		ChatHistory: []Message{AssistantText("abcd")},
		Prompt:      UserText("abcdefgh"),
		MaxTokens:   &limit,
		Tools:       []ToolDefinition{{Name: "tool"}},
	}
	est := EstimateTokens(req)
	// preamble 2, role "assistant" 3 + text 1, role "user" 1 + text 2, tool name 1
	if est.Input != 10 || est.MaxOutput != 100 || est.Total != 110 {
		t.Fatalf("unexpected estimate %+v", est)
	}
	if EstimateTokens(CompletionRequest{Prompt: UserText("")}).MaxOutput != 256 {
		t.Fatalf("default max output not applied")
	}
}

func TestEstimatePartTokens(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want int
	}{
		{"text", TextPart("abcdefgh"), 2},
		{"image url", ImageURL("https://x/y.png", "image/png"), 512},
		{"inline image", ImageBytes(make([]byte, 2048), "image/png"), 2},
		{"raw document", DocumentText("notes", "abcd"), 1},
		{"tool call", ToolCall{Name: "add", Arguments: []byte(`{"x":1}`)}, 8},
		{"tool result", ToolResult{Content: "42"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimatePartTokens(tt.part); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
