package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/obs"
	"github.com/shillcollin/agentkit/stream"
)

const provider = "anthropic"

// Client implements core.CompletionModel for Anthropic's Messages API.
type Client struct {
	opts       options
	httpClient *http.Client
}

// New constructs a new Anthropic client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(o.timeout))
	}
	if _, ok := o.headers["anthropic-version"]; !ok {
		o.headers["anthropic-version"] = APIVersion
	}
	return &Client{opts: o, httpClient: o.httpClient}
}

// Completion implements core.CompletionModel.
func (c *Client) Completion(ctx context.Context, req core.CompletionRequest) (_ *core.CompletionResponse, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.anthropic.Completion",
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", "messages"),
	)
	var usageTokens obs.UsageTokens
	defer func() {
		recorder.End(err, usageTokens)
	}()

	payload, model, err := c.buildPayload(req, false)
	if err != nil {
		return nil, err
	}
	recorder.AddAttributes(attribute.String("ai.model", model))
	resp, err := c.doRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	var out anthropicResponse
	if err := httpclient.DecodeJSON(provider, resp.Body, &out); err != nil {
		return nil, err
	}
	result, err := toResponse(out)
	if err != nil {
		return nil, err
	}
	usageTokens = obs.UsageFromCore(result.Usage)
	return result, nil
}

// Stream implements core.CompletionModel.
func (c *Client) Stream(ctx context.Context, req core.CompletionRequest) (*core.RawStream, error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.anthropic.Stream",
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", "messages.stream"),
	)
	payload, model, err := c.buildPayload(req, true)
	if err != nil {
		recorder.End(err, obs.UsageTokens{})
		return nil, err
	}
	recorder.AddAttributes(attribute.String("ai.model", model))
	resp, err := c.doRequest(ctx, payload)
	if err != nil {
		recorder.End(err, obs.UsageTokens{})
		return nil, err
	}
	raw := stream.NewRawStream(resp.Body, stream.FormatSSE, newEventDecoder(), core.WithProvider(provider))
	return stream.OnEnd(raw, func(usage core.Usage, err error) {
		recorder.End(err, obs.UsageFromCore(usage))
	}), nil
}

func (c *Client) buildPayload(req core.CompletionRequest, streaming bool) (map[string]any, string, error) {
	messages, err := convertMessages(req.ProviderMessages())
	if err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
	}
	model := req.Model
	if model == "" {
		model = c.opts.model
	}
	payload := anthropicRequest{
		Model:       model,
		Messages:    messages,
		System:      req.Preamble,
		MaxTokens:   defaultMaxTokens(model),
		Stream:      streaming,
		Temperature: req.Temperature,
	}
	if req.MaxTokens != nil {
		payload.MaxTokens = *req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload.Tools = convertTools(req.OfferedTools())
		payload.ToolChoice = convertToolChoice(req.ToolChoice)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
	}
	for key, value := range req.AdditionalParams {
		body[key] = value
	}
	return body, model, nil
}

func (c *Client) doRequest(ctx context.Context, payload map[string]any) (*http.Response, error) {
	header := http.Header{}
	header.Set("X-API-Key", c.opts.apiKey)
	for k, v := range c.opts.headers {
		header.Set(k, v)
	}
	return httpclient.Do(ctx, c.httpClient, httpclient.Request{
		Provider: provider,
		URL:      httpclient.JoinURL(c.opts.baseURL, "/messages"),
		Header:   header,
		Body:     payload,
	})
}

func toResponse(out anthropicResponse) (*core.CompletionResponse, error) {
	var parts []core.Part
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			parts = append(parts, core.Text{Text: block.Text})
		case "thinking":
			parts = append(parts, core.Reasoning{Text: block.Thinking, Signature: block.Signature})
		case "tool_use":
			args := block.Input
			if len(args) == 0 || string(args) == "null" {
				args = json.RawMessage("{}")
			}
			parts = append(parts, core.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	if len(out.Content) == 0 && out.StopReason == "" {
		return nil, core.NewCompletionError(core.ResponseError, "response contained no content", core.WithProvider(provider))
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

// convertMessages maps the conversation onto alternating user and
// assistant turns. Tool results travel as user content and consecutive
// messages with the same role are merged.
func convertMessages(messages []core.Message) ([]anthropicMessage, error) {
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		role := roleString(msg.Role)
		if role == "" {
			return nil, fmt.Errorf("unsupported role %s", msg.Role)
		}
		content := make([]anthropicContent, 0, len(msg.Content))
		for _, part := range msg.Content {
			block, ok, err := convertPart(part)
			if err != nil {
				return nil, err
			}
			if ok {
				content = append(content, block)
			}
		}
		if len(content) == 0 {
			continue
		}
		if last := len(out) - 1; last >= 0 && out[last].Role == role {
			out[last].Content = append(out[last].Content, content...)
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: content})
	}
	return out, nil
}

func convertPart(part core.Part) (anthropicContent, bool, error) {
	switch p := part.(type) {
	case core.Text:
		if p.Text == "" {
			return anthropicContent{}, false, nil
		}
		return anthropicContent{Type: "text", Text: p.Text}, true, nil
	case core.Image:
		if p.Encoding == core.EncodingURL {
			return anthropicContent{Type: "image", Source: &anthropicSource{Type: "url", URL: p.Data}}, true, nil
		}
		data, err := p.Base64()
		if err != nil {
			return anthropicContent{}, false, err
		}
		return anthropicContent{Type: "image", Source: &anthropicSource{Type: "base64", MediaType: p.MediaType, Data: data}}, true, nil
	case core.Document:
		if p.Encoding == core.EncodingURL {
			return anthropicContent{Type: "document", Title: p.Name, Source: &anthropicSource{Type: "url", URL: p.Data}}, true, nil
		}
		if p.Encoding == core.EncodingRaw || strings.HasPrefix(p.MediaType, "text/") {
			text, err := p.Bytes()
			if err != nil {
				return anthropicContent{}, false, err
			}
			return anthropicContent{Type: "document", Title: p.Name, Source: &anthropicSource{Type: "text", MediaType: "text/plain", Data: string(text)}}, true, nil
		}
		data, err := p.Base64()
		if err != nil {
			return anthropicContent{}, false, err
		}
		return anthropicContent{Type: "document", Title: p.Name, Source: &anthropicSource{Type: "base64", MediaType: p.MediaType, Data: data}}, true, nil
	case core.ToolCall:
		input := p.Arguments
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return anthropicContent{Type: "tool_use", ID: p.ID, Name: p.Name, Input: input}, true, nil
	case core.ToolResult:
		return anthropicContent{Type: "tool_result", ToolUseID: p.CallID, Content: p.Content, IsError: p.IsError}, true, nil
	case core.Reasoning:
		// Unsigned thinking cannot be replayed.
		if p.Signature == "" {
			return anthropicContent{}, false, nil
		}
		return anthropicContent{Type: "thinking", Thinking: p.Text, Signature: p.Signature}, true, nil
	default:
		return anthropicContent{}, false, fmt.Errorf("unsupported part type %s", part.Type())
	}
}

func convertTools(defs []core.ToolDefinition) []anthropicTool {
	tools := make([]anthropicTool, 0, len(defs))
	for _, def := range defs {
		schema := def.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		tools = append(tools, anthropicTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return tools
}

func convertToolChoice(choice core.ToolChoice) map[string]string {
	switch choice.Mode {
	case core.ToolChoiceNone:
		return map[string]string{"type": "none"}
	case core.ToolChoiceRequired:
		return map[string]string{"type": "any"}
	case core.ToolChoiceSpecific:
		if len(choice.Names) == 1 {
			return map[string]string{"type": "tool", "name": choice.Names[0]}
		}
		return map[string]string{"type": "any"}
	default:
		return map[string]string{"type": "auto"}
	}
}

func roleString(role core.Role) string {
	switch role {
	case core.User, core.Tool:
		return "user"
	case core.Assistant:
		return "assistant"
	default:
		return ""
	}
}
