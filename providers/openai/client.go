package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/obs"
	"github.com/shillcollin/agentkit/stream"
)

// Client implements core.CompletionModel for the chat completions API and
// any server speaking the same protocol.
type Client struct {
	httpClient *http.Client
	opts       options
}

// New constructs a new OpenAI client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(o.timeout))
	}
	return &Client{
		httpClient: o.httpClient,
		opts:       o,
	}
}

// Provider returns the name used in errors and spans.
func (c *Client) Provider() string { return c.opts.provider }

// Completion implements core.CompletionModel.
func (c *Client) Completion(ctx context.Context, req core.CompletionRequest) (_ *core.CompletionResponse, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers."+c.opts.provider+".Completion",
		attribute.String("ai.provider", c.opts.provider),
		attribute.String("ai.operation", "chat.completions"),
	)
	var usageTokens obs.UsageTokens
	defer func() { recorder.End(err, usageTokens) }()

	body, model, err := c.buildChatPayload(ctx, req, false)
	if err != nil {
		return nil, err
	}
	recorder.AddAttributes(attribute.String("ai.model", model))

	resp, err := c.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	var out chatCompletionResponse
	if err := httpclient.DecodeJSON(c.opts.provider, resp.Body, &out); err != nil {
		return nil, err
	}
	result, err := c.toResponse(out)
	if err != nil {
		return nil, err
	}
	usageTokens = obs.UsageFromCore(result.Usage)
	return result, nil
}

// Stream implements core.CompletionModel.
func (c *Client) Stream(ctx context.Context, req core.CompletionRequest) (*core.RawStream, error) {
	ctx, recorder := obs.StartRequest(ctx, "providers."+c.opts.provider+".Stream",
		attribute.String("ai.provider", c.opts.provider),
		attribute.String("ai.operation", "chat.completions.stream"),
	)
	body, model, err := c.buildChatPayload(ctx, req, true)
	if err != nil {
		recorder.End(err, obs.UsageTokens{})
		return nil, err
	}
	recorder.AddAttributes(attribute.String("ai.model", model))

	resp, err := c.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		recorder.End(err, obs.UsageTokens{})
		return nil, err
	}
	raw := stream.NewRawStream(resp.Body, stream.FormatSSE, NewChunkDecoder(c.opts.provider), core.WithProvider(c.opts.provider))
	return stream.OnEnd(raw, func(usage core.Usage, err error) {
		recorder.End(err, obs.UsageFromCore(usage))
	}), nil
}

func (c *Client) buildChatPayload(ctx context.Context, req core.CompletionRequest, streaming bool) (map[string]any, string, error) {
	messages, err := convertMessages(req, c.opts.provider)
	if err != nil {
		return nil, "", err
	}
	model := req.Model
	if model == "" {
		model = c.opts.model
	}
	profile := profileForModel(model)
	payload := &chatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   streaming,
	}
	if streaming {
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if req.MaxTokens != nil {
		if profile.maxCompletionTokens {
			payload.MaxCompletionTokens = *req.MaxTokens
		} else {
			payload.MaxTokens = *req.MaxTokens
		}
	}
	if req.Temperature != nil {
		if profile.sampling {
			payload.Temperature = req.Temperature
		} else {
			c.warnDropped(ctx, "temperature", model)
		}
	}
	if len(req.Tools) > 0 {
		payload.Tools = convertTools(req.OfferedTools())
		payload.ToolChoice = convertToolChoice(req.ToolChoice)
	}

	body, err := toMap(payload)
	if err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(c.opts.provider))
	}
	for key, value := range req.AdditionalParams {
		allowed := profile.allows(key, value)
		if c.opts.paramPolicy != nil {
			allowed = c.opts.paramPolicy(model, key, value)
		}
		if !allowed {
			c.warnDropped(ctx, key, model)
			continue
		}
		if key == "max_tokens" && profile.maxCompletionTokens {
			key = "max_completion_tokens"
		}
		body[key] = value
	}
	return body, model, nil
}

func (c *Client) warnDropped(ctx context.Context, field, model string) {
	c.opts.logger.WarnContext(ctx, "parameter not supported by model, dropped",
		slog.String("provider", c.opts.provider),
		slog.String("model", model),
		slog.String("param", field),
	)
}

func (c *Client) doRequest(ctx context.Context, path string, payload any) (*http.Response, error) {
	header := http.Header{}
	if c.opts.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.opts.apiKey)
	}
	if c.opts.organization != "" {
		header.Set("OpenAI-Organization", c.opts.organization)
	}
	for k, v := range c.opts.headers {
		header.Set(k, v)
	}
	return httpclient.Do(ctx, c.httpClient, httpclient.Request{
		Provider: c.opts.provider,
		URL:      httpclient.JoinURL(c.opts.baseURL, path),
		Header:   header,
		Body:     payload,
	})
}

func (c *Client) toResponse(out chatCompletionResponse) (*core.CompletionResponse, error) {
	if len(out.Choices) == 0 {
		return nil, core.NewCompletionError(core.ResponseError, "response contained no choices", core.WithProvider(c.opts.provider))
	}
	msg := out.Choices[0].Message
	var parts []core.Part
	if reasoning := msg.reasoningText(); reasoning != "" {
		parts = append(parts, core.Reasoning{Text: reasoning})
	}
	if text := msg.JoinText(); text != "" {
		parts = append(parts, core.Text{Text: text})
	}
	for _, call := range msg.ToolCalls {
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return nil, core.NewCompletionError(core.ResponseError,
				fmt.Sprintf("tool call %s has invalid arguments", call.Function.Name),
				core.WithProvider(c.opts.provider))
		}
		parts = append(parts, core.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: json.RawMessage(args)})
	}
	raw, _ := json.Marshal(out)
	return &core.CompletionResponse{
		ID:     out.ID,
		Model:  out.Model,
		Choice: parts,
		Usage:  out.Usage.toCore(),
		Raw:    raw,
	}, nil
}

func convertMessages(req core.CompletionRequest, provider string) ([]openAIMessage, error) {
	var result []openAIMessage
	if req.Preamble != "" {
		result = append(result, openAIMessage{Role: "system", Content: []openAIContent{{Type: "text", Text: req.Preamble}}})
	}
	for _, msg := range req.ProviderMessages() {
		switch msg.Role {
		case core.Tool:
			for _, part := range msg.Content {
				tr, ok := part.(core.ToolResult)
				if !ok {
					continue
				}
				result = append(result, openAIMessage{
					Role:       "tool",
					ToolCallID: tr.CallID,
					Content:    []openAIContent{{Type: "text", Text: tr.Content}},
				})
			}
		case core.Assistant:
			omsg := openAIMessage{Role: "assistant"}
			for _, part := range msg.Content {
				switch p := part.(type) {
				case core.Text:
					omsg.Content = append(omsg.Content, openAIContent{Type: "text", Text: p.Text})
				case core.ToolCall:
					omsg.ToolCalls = append(omsg.ToolCalls, openAIToolCall{
						ID:   p.ID,
						Type: "function",
						Function: openAIFunctionCall{
							Name:      p.Name,
							Arguments: string(p.Arguments),
						},
					})
				}
			}
			result = append(result, omsg)
		default:
			omsg := openAIMessage{Role: "user"}
			for _, part := range msg.Content {
				content, err := convertUserPart(part)
				if err != nil {
					return nil, core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
				}
				omsg.Content = append(omsg.Content, content)
			}
			result = append(result, omsg)
		}
	}
	return result, nil
}

func convertUserPart(part core.Part) (openAIContent, error) {
	switch p := part.(type) {
	case core.Text:
		return openAIContent{Type: "text", Text: p.Text}, nil
	case core.Image:
		url := p.Data
		if p.Encoding != core.EncodingURL {
			data, err := p.Base64()
			if err != nil {
				return openAIContent{}, err
			}
			url = fmt.Sprintf("data:%s;base64,%s", p.MediaType, data)
		}
		return openAIContent{Type: "image_url", ImageURL: &openAIImageURL{URL: url, Detail: p.Detail}}, nil
	case core.Audio:
		data, err := p.Base64()
		if err != nil {
			return openAIContent{}, err
		}
		format := strings.TrimPrefix(p.MediaType, "audio/")
		if format == "mpeg" {
			format = "mp3"
		}
		return openAIContent{Type: "input_audio", InputAudio: &openAIInputAudio{Data: data, Format: format}}, nil
	case core.Document:
		if p.Encoding == core.EncodingRaw || strings.HasPrefix(p.MediaType, "text/") {
			text, err := p.Bytes()
			if err != nil {
				return openAIContent{}, err
			}
			return openAIContent{Type: "text", Text: string(text)}, nil
		}
		data, err := p.Base64()
		if err != nil {
			return openAIContent{}, err
		}
		return openAIContent{Type: "file", File: &openAIFile{
			Filename: p.Name,
			FileData: fmt.Sprintf("data:%s;base64,%s", p.MediaType, data),
		}}, nil
	default:
		return openAIContent{}, fmt.Errorf("unsupported user part %s", part.Type())
	}
}

func convertTools(defs []core.ToolDefinition) []openAITool {
	out := make([]openAITool, 0, len(defs))
	for _, def := range defs {
		params := def.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func convertToolChoice(choice core.ToolChoice) any {
	switch choice.Mode {
	case core.ToolChoiceRequired:
		return "required"
	case core.ToolChoiceNone:
		return "none"
	case core.ToolChoiceSpecific:
		if len(choice.Names) == 1 {
			return map[string]any{"type": "function", "function": map[string]any{"name": choice.Names[0]}}
		}
		return "required"
	case core.ToolChoiceAuto:
		return "auto"
	default:
		return nil
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
