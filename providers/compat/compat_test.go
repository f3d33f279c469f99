package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/core"
)

type roundTrip func(*http.Request) (*http.Response, error)

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req)
}

func TestCompatCompletion(t *testing.T) {
	var payload map[string]any
	transport := roundTrip(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "https://compat.example.com/v1/chat/completions" {
			t.Fatalf("unexpected url %s", req.URL)
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp := map[string]any{
			"id":    "chatcmpl",
			"model": "compat-model",
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": []map[string]any{{"type": "text", "text": "Compat"}},
				},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		}
		buf, _ := json.Marshal(resp)
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(buf)), Header: http.Header{"Content-Type": []string{"application/json"}}}, nil
	})

	client := New(CompatOpts{
		Provider:   "local",
		BaseURL:    "https://compat.example.com/v1",
		APIKey:     "key",
		Model:      "compat-model",
		HTTPClient: &http.Client{Transport: transport},
		ParamPolicy: func(model, key string, value any) bool {
			return key != "logit_bias"
		},
	})

	res, err := client.Completion(context.Background(), core.CompletionRequest{
		Prompt:           core.UserText("hello"),
		AdditionalParams: map[string]any{"logit_bias": map[string]int{"1": 2}, "top_k": 5},
	})
	if err != nil {
		t.Fatalf("Completion error: %v", err)
	}
	if res.Text() != "Compat" {
		t.Fatalf("unexpected text: %s", res.Text())
	}
	if _, ok := payload["logit_bias"]; ok {
		t.Fatalf("policy should drop logit_bias")
	}
	if payload["top_k"] != float64(5) || payload["model"] != "compat-model" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if client.Provider() != "local" {
		t.Fatalf("unexpected provider %s", client.Provider())
	}
}

func TestCompatProviderErrorsCarryName(t *testing.T) {
	transport := roundTrip(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 503, Body: io.NopCloser(bytes.NewBufferString(`{"error":"down"}`))}, nil
	})
	client := Factory{Name: "vllm", DefaultBaseURL: "http://localhost:8000/v1"}.Client(agentkit.ProviderConfig{
		HTTPClient: &http.Client{Transport: transport},
	})
	_, err := client.Completion(context.Background(), core.CompletionRequest{Prompt: core.UserText("hi")})
	var ce *core.CompletionError
	if !errors.As(err, &ce) || ce.Kind != core.ProviderError || ce.Provider != "vllm" || ce.Message != "down" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFactoryDefaultConfig(t *testing.T) {
	t.Setenv("LOCALAI_API_KEY", "secret")
	t.Setenv("LOCALAI_BASE_URL", "http://box:8080/v1")
	cfg := Factory{Name: "localai"}.DefaultConfig()
	if cfg.APIKey != "secret" || cfg.BaseURL != "http://box:8080/v1" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
