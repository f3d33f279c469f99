package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/providers/compat"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestAllowParam(t *testing.T) {
	cases := []struct {
		model string
		key   string
		value any
		want  bool
	}{
		{Llama33_70B, "logit_bias", map[string]int{}, false},
		{Llama33_70B, "reasoning_effort", "low", false},
		{GPTOSS120B, "reasoning_effort", "high", true},
		{Qwen3_32B, "reasoning_effort", "default", true},
		{Qwen3_32B, "reasoning_effort", "high", false},
		{Qwen3_32B, "reasoning_format", "parsed", true},
		{Llama31_8B, "n", 1, true},
		{Llama31_8B, "n", 2, false},
		{Llama31_8B, "top_p", 0.9, true},
	}
	for _, tc := range cases {
		if got := allowParam(tc.model, tc.key, tc.value); got != tc.want {
			t.Fatalf("allowParam(%s, %s, %v) = %v, want %v", tc.model, tc.key, tc.value, got, tc.want)
		}
	}
}

func TestGroqClientUsesDefaults(t *testing.T) {
	var payload map[string]any
	client := New(compat.CompatOpts{
		APIKey: "gsk",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.String() != DefaultBaseURL+"/chat/completions" {
				t.Fatalf("unexpected url %s", r.URL)
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			body := `{"id":"x","choices":[{"message":{"content":"ok"}}]}`
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
		})},
	})
	_, err := client.Completion(context.Background(), core.CompletionRequest{
		Prompt:           core.UserText("hi"),
		AdditionalParams: map[string]any{"logprobs": true},
	})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}
	if payload["model"] != DefaultModel {
		t.Fatalf("unexpected model %v", payload["model"])
	}
	if _, ok := payload["logprobs"]; ok {
		t.Fatalf("logprobs must be dropped")
	}
}

func TestGroqRegistered(t *testing.T) {
	if !agentkit.IsProviderRegistered("groq") {
		t.Fatalf("groq not registered")
	}
}
