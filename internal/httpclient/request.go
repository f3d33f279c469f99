package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shillcollin/agentkit/core"
)

const maxErrorBody = 8 << 10

// Request describes one JSON call to a provider API.
type Request struct {
	Provider string
	Method   string
	URL      string
	Header   http.Header
	Body     any
}

// Do sends req and returns the response when its status is below 400. Encoding
// problems are RequestErrors, transport failures HTTPErrors and error statuses
// ProviderErrors carrying the message from the provider's error body.
func Do(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	provider := core.WithProvider(req.Provider)
	var body io.Reader
	if req.Body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(req.Body); err != nil {
			return nil, core.WrapCompletionError(fmt.Errorf("marshal payload: %w", err), core.RequestError, provider)
		}
		body = buf
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, core.WrapCompletionError(err, core.RequestError, provider)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, core.WrapCompletionError(err, core.HTTPError, provider)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, StatusError(req.Provider, resp)
	}
	return resp, nil
}

// StatusError converts an error response into a ProviderError.
func StatusError(provider string, resp *http.Response) *core.CompletionError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message, typ := ErrorMessage(data)
	if message == "" {
		message = resp.Status
	}
	return core.NewCompletionError(core.ProviderError, message,
		core.WithProvider(provider),
		core.WithStatus(resp.StatusCode),
		core.WithErrorType(typ),
	)
}

// ErrorMessage extracts the message and type from the error body shapes used by
// OpenAI-style, Anthropic and Gemini APIs, falling back to the trimmed body.
func ErrorMessage(data []byte) (message, typ string) {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Type    string          `json:"type"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data)), ""
	}
	if len(body.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Status  string `json:"status"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			if nested.Type == "" {
				nested.Type = nested.Status
			}
			return nested.Message, nested.Type
		}
		var text string
		if json.Unmarshal(body.Error, &text) == nil && text != "" {
			return text, body.Type
		}
	}
	if body.Message != "" {
		return body.Message, body.Type
	}
	return strings.TrimSpace(string(data)), body.Type
}

// DecodeJSON decodes a successful response body into v and closes it. Failures
// are ResponseErrors.
func DecodeJSON(provider string, body io.ReadCloser, v any) error {
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return core.WrapCompletionError(err, core.HTTPError, core.WithProvider(provider))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.WrapCompletionError(fmt.Errorf("decode response: %w", err), core.ResponseError, core.WithProvider(provider))
	}
	return nil
}

// JoinURL appends path to base without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
