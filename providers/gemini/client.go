package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/obs"
	"github.com/shillcollin/agentkit/stream"
)

const provider = "gemini"

// Client implements core.CompletionModel for the Gemini generateContent API.
type Client struct {
	opts       options
	httpClient *http.Client
}

// New constructs a new Gemini client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(o.timeout))
	}
	return &Client{opts: o, httpClient: o.httpClient}
}

// Completion implements core.CompletionModel.
func (c *Client) Completion(ctx context.Context, req core.CompletionRequest) (_ *core.CompletionResponse, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.gemini.Completion",
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", "generateContent"),
	)
	var usageTokens obs.UsageTokens
	defer func() {
		recorder.End(err, usageTokens)
	}()

	body, model, err := buildRequest(req, c.opts.model)
	if err != nil {
		return nil, err
	}
	recorder.AddAttributes(attribute.String("ai.model", model))
	resp, err := c.doRequest(ctx, model, ":generateContent", nil, body)
	if err != nil {
		return nil, err
	}
	var out geminiResponse
	if err := httpclient.DecodeJSON(provider, resp.Body, &out); err != nil {
		return nil, err
	}
	result, err := toResponse(out, model)
	if err != nil {
		return nil, err
	}
	if len(out.Candidates) > 0 {
		switch reason := out.Candidates[0].FinishReason; reason {
		case "", "STOP", "MAX_TOKENS":
		default:
			c.opts.logger.WarnContext(ctx, "candidate finished early",
				slog.String("provider", provider),
				slog.String("model", model),
				slog.String("finish_reason", reason),
			)
		}
	}
	usageTokens = obs.UsageFromCore(result.Usage)
	return result, nil
}

// Stream implements core.CompletionModel.
func (c *Client) Stream(ctx context.Context, req core.CompletionRequest) (*core.RawStream, error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.gemini.Stream",
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", "streamGenerateContent"),
	)
	body, model, err := buildRequest(req, c.opts.model)
	if err != nil {
		recorder.End(err, obs.UsageTokens{})
		return nil, err
	}
	recorder.AddAttributes(attribute.String("ai.model", model))
	resp, err := c.doRequest(ctx, model, ":streamGenerateContent", url.Values{"alt": {"sse"}}, body)
	if err != nil {
		recorder.End(err, obs.UsageTokens{})
		return nil, err
	}
	raw := stream.NewRawStream(resp.Body, stream.FormatSSE, &chunkDecoder{}, core.WithProvider(provider))
	return stream.OnEnd(raw, func(usage core.Usage, err error) {
		recorder.End(err, obs.UsageFromCore(usage))
	}), nil
}

func (c *Client) doRequest(ctx context.Context, model, method string, query url.Values, payload any) (*http.Response, error) {
	if query == nil {
		query = url.Values{}
	}
	if c.opts.apiKey != "" {
		query.Set("key", c.opts.apiKey)
	}
	endpoint := httpclient.JoinURL(c.opts.baseURL, "/models/"+url.PathEscape(model)+method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return httpclient.Do(ctx, c.httpClient, httpclient.Request{
		Provider: provider,
		URL:      endpoint,
		Body:     payload,
	})
}

func buildRequest(req core.CompletionRequest, fallback string) (map[string]any, string, error) {
	model := req.Model
	if model == "" {
		model = fallback
	}
	model = trimModelPrefix(model)
	contents, err := convertMessages(req.ProviderMessages())
	if err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
	}
	request := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature: req.Temperature,
		},
	}
	if req.MaxTokens != nil {
		request.GenerationConfig.MaxOutputTokens = *req.MaxTokens
	}
	if req.Preamble != "" {
		request.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.Preamble}}}
	}
	if len(req.Tools) > 0 {
		request.Tools = []geminiTool{{FunctionDeclarations: convertTools(req.Tools)}}
		request.ToolConfig = &geminiToolConfig{FunctionCallingConfig: convertToolChoice(req.ToolChoice)}
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, "", core.WrapCompletionError(err, core.RequestError, core.WithProvider(provider))
	}
	applyAdditionalParams(body, req.AdditionalParams)
	return body, model, nil
}

func applyAdditionalParams(body map[string]any, params map[string]any) {
	if len(params) == 0 {
		return
	}
	genConfig, _ := body["generationConfig"].(map[string]any)
	if genConfig == nil {
		genConfig = map[string]any{}
		body["generationConfig"] = genConfig
	}
	thinking := map[string]any{}
	for key, value := range params {
		switch key {
		case ParamThinkingBudget:
			thinking["thinkingBudget"] = value
		case ParamIncludeThoughts:
			thinking["includeThoughts"] = value
		default:
			if field, ok := generationKeys[key]; ok {
				genConfig[field] = value
				continue
			}
			body[key] = value
		}
	}
	if len(thinking) > 0 {
		genConfig["thinkingConfig"] = thinking
	}
}

func toResponse(out geminiResponse, model string) (*core.CompletionResponse, error) {
	if err := blocked(out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, core.NewCompletionError(core.ResponseError, "response contained no candidates", core.WithProvider(provider))
	}
	var parts []core.Part
	for i, part := range out.Candidates[0].Content.Parts {
		switch {
		case part.Thought:
			parts = append(parts, core.Reasoning{Text: part.Text, Signature: part.ThoughtSignature})
		case part.FunctionCall != nil:
			args := part.FunctionCall.Args
			if len(args) == 0 || string(args) == "null" {
				args = json.RawMessage("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%s_%d", out.ResponseID, i)
			}
			parts = append(parts, core.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
		case part.Text != "":
			parts = append(parts, core.Text{Text: part.Text})
		}
	}
	if out.ModelVersion != "" {
		model = out.ModelVersion
	}
	raw, _ := json.Marshal(out)
	return &core.CompletionResponse{
		ID:     out.ResponseID,
		Model:  model,
		Choice: parts,
		Usage:  out.UsageMetadata.toCore(),
		Raw:    raw,
	}, nil
}

// convertMessages maps the conversation onto user and model turns. Tool
// results become functionResponse parts of a user turn; consecutive turns
// with the same role are merged.
func convertMessages(messages []core.Message) ([]geminiContent, error) {
	out := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		role := roleFromMessageRole(msg.Role)
		if role == "" {
			return nil, fmt.Errorf("unsupported role %s", msg.Role)
		}
		parts := make([]geminiPart, 0, len(msg.Content))
		for _, part := range msg.Content {
			converted, ok, err := convertPart(part)
			if err != nil {
				return nil, err
			}
			if ok {
				parts = append(parts, converted)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if last := len(out) - 1; last >= 0 && out[last].Role == role {
			out[last].Parts = append(out[last].Parts, parts...)
			continue
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out, nil
}

func convertPart(part core.Part) (geminiPart, bool, error) {
	switch p := part.(type) {
	case core.Text:
		if p.Text == "" {
			return geminiPart{}, false, nil
		}
		return geminiPart{Text: p.Text}, true, nil
	case core.Image:
		return mediaPart(p.Media)
	case core.Audio:
		return mediaPart(p.Media)
	case core.Video:
		return mediaPart(p.Media)
	case core.Document:
		if p.Encoding == core.EncodingRaw {
			text, err := p.Bytes()
			if err != nil {
				return geminiPart{}, false, err
			}
			return geminiPart{Text: string(text)}, true, nil
		}
		return mediaPart(p.Media)
	case core.ToolCall:
		args := p.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return geminiPart{FunctionCall: &geminiFunctionCall{ID: p.ID, Name: p.Name, Args: args}}, true, nil
	case core.ToolResult:
		return geminiPart{FunctionResponse: &geminiFunctionResponse{
			ID:       p.CallID,
			Name:     p.Name,
			Response: functionResponsePayload(p),
		}}, true, nil
	case core.Reasoning:
		if p.Signature == "" {
			return geminiPart{}, false, nil
		}
		return geminiPart{Text: p.Text, Thought: true, ThoughtSignature: p.Signature}, true, nil
	default:
		return geminiPart{}, false, fmt.Errorf("unsupported part type %s", part.Type())
	}
}

func mediaPart(m core.Media) (geminiPart, bool, error) {
	if m.Encoding == core.EncodingURL {
		return geminiPart{FileData: &geminiFileData{MimeType: m.MediaType, FileURI: m.Data}}, true, nil
	}
	data, err := m.Base64()
	if err != nil {
		return geminiPart{}, false, err
	}
	return geminiPart{InlineData: &geminiInlineData{MimeType: m.MediaType, Data: data}}, true, nil
}

// functionResponsePayload passes JSON object output through and wraps
// anything else under "result", or "error" for failed calls.
func functionResponsePayload(result core.ToolResult) map[string]any {
	if result.IsError {
		return map[string]any{"error": result.Content}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(result.Content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": result.Content}
}

func convertTools(defs []core.ToolDefinition) []geminiFunctionDeclaration {
	decls := make([]geminiFunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, geminiFunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  sanitizeSchema(def.ParametersMap()),
		})
	}
	return decls
}

// unsupportedSchemaKeys are JSON Schema keywords the OpenAPI subset accepted
// by function declarations rejects.
var unsupportedSchemaKeys = []string{"$schema", "$id", "$defs", "additionalProperties", "definitions"}

func sanitizeSchema(schema map[string]any) map[string]any {
	if len(schema) == 0 {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = sanitizeValue(v)
	}
	for _, key := range unsupportedSchemaKeys {
		delete(out, key)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return sanitizeSchema(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = sanitizeValue(item)
		}
		return items
	default:
		return v
	}
}

func convertToolChoice(choice core.ToolChoice) *geminiFunctionCallingConfig {
	switch choice.Mode {
	case core.ToolChoiceNone:
		return &geminiFunctionCallingConfig{Mode: "NONE"}
	case core.ToolChoiceRequired:
		return &geminiFunctionCallingConfig{Mode: "ANY"}
	case core.ToolChoiceSpecific:
		return &geminiFunctionCallingConfig{Mode: "ANY", AllowedFunctionNames: choice.Names}
	default:
		return &geminiFunctionCallingConfig{Mode: "AUTO"}
	}
}

func roleFromMessageRole(role core.Role) string {
	switch role {
	case core.User, core.Tool:
		return "user"
	case core.Assistant:
		return "model"
	default:
		return ""
	}
}

// trimModelPrefix accepts both "gemini-2.5-flash" and "models/gemini-2.5-flash".
func trimModelPrefix(model string) string {
	return strings.TrimPrefix(model, "models/")
}
