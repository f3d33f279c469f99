package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/stream"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testClient(t *testing.T, fn roundTripFunc, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL("https://api.example.com/v1"),
		WithHTTPClient(&http.Client{Transport: fn}),
		WithAPIKey("test"),
		WithModel("gpt-4o-mini"),
	}
	return New(append(base, opts...)...)
}

func TestCompletion(t *testing.T) {
	var captured map[string]any
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Fatalf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		body := chatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []chatCompletionChoice{{
				Message:      openAIMessage{Content: []openAIContent{{Type: "text", Text: "Hello"}}},
				FinishReason: "stop",
			}},
			Usage: &openAIUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		buf, _ := json.Marshal(body)
		return jsonResponse(http.StatusOK, string(buf)), nil
	})

	temp := 0.3
	res, err := client.Completion(context.Background(), core.CompletionRequest{
		Preamble:    "Be terse.",
		Prompt:      core.UserText("Hi"),
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Completion error: %v", err)
	}
	if res.Text() != "Hello" || res.Usage.TotalTokens != 15 || res.ID != "chatcmpl-123" {
		t.Fatalf("unexpected response: %+v", res)
	}
	if captured["model"] != "gpt-4o-mini" || captured["temperature"] != 0.3 {
		t.Fatalf("unexpected payload: %v", captured)
	}
	msgs := captured["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "Be terse." {
		t.Fatalf("expected system preamble as plain string, got %v", first)
	}
}

func TestCompletionToolCalls(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id":"c","model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"x\":1}"}},
			{"id":"call_2","type":"function","function":{"name":"now","arguments":""}}]},"finish_reason":"tool_calls"}]}`), nil
	})
	res, err := client.Completion(context.Background(), core.CompletionRequest{Prompt: core.UserText("go")})
	if err != nil {
		t.Fatalf("Completion error: %v", err)
	}
	calls := res.ToolCalls()
	if len(calls) != 2 || calls[0].Name != "add" || string(calls[0].Arguments) != `{"x":1}` {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if string(calls[1].Arguments) != "{}" {
		t.Fatalf("empty arguments must become {}, got %s", calls[1].Arguments)
	}
}

func TestBuildChatPayloadConversation(t *testing.T) {
	client := New(WithModel("gpt-4o"))
	maxTokens := 64
	req := core.CompletionRequest{
		Documents: []core.ContextDocument{{ID: "doc1", Text: "Paris is in France."}},
		ChatHistory: []core.Message{
			core.UserText("Where is Paris?"),
			core.AssistantMessage(core.ToolCall{ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{"q":"Paris"}`)}),
		},
		Prompt:    core.ToolResultMessage(core.ToolResult{CallID: "call_1", Name: "lookup", Content: "France"}),
		MaxTokens: &maxTokens,
		Tools: []core.ToolDefinition{{
			Name:        "lookup",
			Description: "Look things up",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		}},
		ToolChoice:       core.SpecificTools("lookup"),
		AdditionalParams: map[string]any{"seed": 3},
	}
	body, model, err := client.buildChatPayload(context.Background(), req, true)
	if err != nil {
		t.Fatalf("buildChatPayload error: %v", err)
	}
	if model != "gpt-4o" || body["max_tokens"] != float64(64) || body["seed"] != 3 {
		t.Fatalf("unexpected payload %v", body)
	}
	if opts := body["stream_options"].(map[string]any); opts["include_usage"] != true {
		t.Fatalf("stream must request usage, got %v", opts)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected attachments, user, assistant, tool; got %d", len(msgs))
	}
	if docs := msgs[0].(map[string]any)["content"].(string); !strings.Contains(docs, "<file id: doc1>") {
		t.Fatalf("documents not rendered: %q", docs)
	}
	assistant := msgs[2].(map[string]any)
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	if call["id"] != "call_1" || call["function"].(map[string]any)["arguments"] != `{"q":"Paris"}` {
		t.Fatalf("unexpected assistant call %v", call)
	}
	tool := msgs[3].(map[string]any)
	if tool["role"] != "tool" || tool["tool_call_id"] != "call_1" || tool["content"] != "France" {
		t.Fatalf("unexpected tool message %v", tool)
	}
	choice := body["tool_choice"].(map[string]any)
	if choice["function"].(map[string]any)["name"] != "lookup" {
		t.Fatalf("unexpected tool choice %v", choice)
	}
}

func TestBuildChatPayloadModelProfile(t *testing.T) {
	client := New(WithModel("gpt-5-mini"))
	temp := 1.0
	maxTokens := 100
	body, _, err := client.buildChatPayload(context.Background(), core.CompletionRequest{
		Prompt:           core.UserText("hi"),
		Temperature:      &temp,
		MaxTokens:        &maxTokens,
		AdditionalParams: map[string]any{"seed": 1, "reasoning_effort": "minimal"},
	}, false)
	if err != nil {
		t.Fatalf("buildChatPayload error: %v", err)
	}
	if _, ok := body["temperature"]; ok {
		t.Fatalf("temperature must be dropped for gpt-5 models")
	}
	if _, ok := body["seed"]; ok {
		t.Fatalf("seed must be dropped for gpt-5 models")
	}
	if body["max_completion_tokens"] != float64(100) || body["reasoning_effort"] != "minimal" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestBuildChatPayloadMultimodal(t *testing.T) {
	client := New(WithModel("gpt-4o"))
	msg := core.UserMessage(
		core.TextPart("describe"),
		core.ImageBytes([]byte{0x01, 0x02}, "image/png"),
		core.AudioBytes([]byte{0x10, 0x20}, "audio/wav"),
	)
	body, _, err := client.buildChatPayload(context.Background(), core.CompletionRequest{Prompt: msg}, false)
	if err != nil {
		t.Fatalf("buildChatPayload error: %v", err)
	}
	parts := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if len(parts) != 3 {
		t.Fatalf("expected 3 content parts, got %d", len(parts))
	}
	image := parts[1].(map[string]any)
	if image["type"] != "image_url" || !strings.HasPrefix(image["image_url"].(map[string]any)["url"].(string), "data:image/png;base64,") {
		t.Fatalf("image part not encoded correctly: %v", image)
	}
	audio := parts[2].(map[string]any)
	if audio["type"] != "input_audio" || audio["input_audio"].(map[string]any)["format"] != "wav" {
		t.Fatalf("audio part not encoded correctly: %v", audio)
	}

	video := core.UserMessage(core.VideoURL("https://example.com/v.mp4", "video/mp4"))
	_, _, err = client.buildChatPayload(context.Background(), core.CompletionRequest{Prompt: video}, false)
	if !core.IsRequestError(err) {
		t.Fatalf("expected request error for video, got %v", err)
	}
}

func TestCompletionErrors(t *testing.T) {
	cases := []struct {
		name  string
		rt    roundTripFunc
		check func(error) bool
	}{
		{
			name: "provider status",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`), nil
			},
			check: func(err error) bool {
				var ce *core.CompletionError
				return errors.As(err, &ce) && ce.Kind == core.ProviderError && ce.Status == 429 &&
					ce.Message == "slow down" && ce.Type == "rate_limit" && core.IsRetryable(err)
			},
		},
		{
			name: "transport",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection reset")
			},
			check: core.IsHTTPError,
		},
		{
			name: "malformed body",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"choices":`), nil
			},
			check: core.IsResponseError,
		},
		{
			name: "no choices",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"choices":[]}`), nil
			},
			check: core.IsResponseError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := testClient(t, tc.rt)
			_, err := client.Completion(context.Background(), core.CompletionRequest{Prompt: core.UserText("hi")})
			if !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestStream(t *testing.T) {
	events := "data: {\"id\":\"chatcmpl\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"id\":\"chatcmpl\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: {\"id\":\"chatcmpl\",\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3,\"total_tokens\":15}}\n\n" +
		"data: [DONE]\n\n"

	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(events)),
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		}, nil
	})
	raw, err := client.Stream(context.Background(), core.CompletionRequest{Prompt: core.UserText("Hi")})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	s := stream.Start(raw)
	defer s.Close()
	resp, err := stream.Collect(context.Background(), s)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if resp.Text() != "Hello" {
		t.Fatalf("unexpected streamed text: %s", resp.Text())
	}
	if resp.Usage.TotalTokens != 15 || resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestStreamProviderErrorStatus(t *testing.T) {
	client := testClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":{"message":"bad key"}}`), nil
	})
	_, err := client.Stream(context.Background(), core.CompletionRequest{Prompt: core.UserText("Hi")})
	if !core.IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEmbeddings(t *testing.T) {
	var captured embeddingRequest
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"model":"text-embedding-3-small","data":[
			{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}],"usage":{"prompt_tokens":4,"total_tokens":4}}`), nil
	})
	model := client.EmbeddingModel("", 2)
	out, err := model.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if captured.Model != "text-embedding-3-small" || captured.Dimensions != 2 || len(captured.Input) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	if out[0].Document != "a" || out[0].Vector[0] != 1 || out[1].Vector[1] != 1 {
		t.Fatalf("embeddings not ordered by index: %+v", out)
	}
	if model.Dimensions() != 2 || model.MaxBatch() != maxEmbeddingBatch {
		t.Fatalf("unexpected model metadata")
	}
}

func TestParseModel(t *testing.T) {
	if m, err := ParseModel("gpt-4o"); err != nil || m != GPT4o || m.String() != "gpt-4o" {
		t.Fatalf("unexpected parse result %q %v", m, err)
	}
	if _, err := ParseModel("gpt-0"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
