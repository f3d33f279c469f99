package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/jsonschema"
)

// SubmitTool is the tool an Extractor forces the model to call.
const SubmitTool = "submit"

const extractorPreamble = "Extract the data requested by the submit tool's schema from the input. " +
	"Always respond by calling the submit tool exactly once. Leave out optional fields the input does not mention."

// ErrNoExtraction is returned when the model answers without calling submit.
var ErrNoExtraction = errors.New("agent: model did not call the submit tool")

// Extractor turns unstructured text into a T by forcing a tool call whose
// parameters are T's derived schema.
type Extractor[T any] struct {
	model     core.CompletionModel
	modelName string
	preamble  string
	retries   int
	logger    *slog.Logger

	params    json.RawMessage
	validator *jsonschema.Validator
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*extractorConfig)

type extractorConfig struct {
	modelName string
	preamble  string
	retries   int
	logger    *slog.Logger
}

// WithExtractorModel sets the model name sent with each request.
func WithExtractorModel(name string) ExtractorOption {
	return func(c *extractorConfig) { c.modelName = name }
}

// WithExtractorPreamble appends instructions to the extraction preamble.
func WithExtractorPreamble(text string) ExtractorOption {
	return func(c *extractorConfig) { c.preamble = text }
}

// WithRetries sets how many extra attempts follow a missing or invalid
// submission.
func WithRetries(n int) ExtractorOption {
	return func(c *extractorConfig) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(l *slog.Logger) ExtractorOption {
	return func(c *extractorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewExtractor derives T's schema and returns an extractor on model. T must
// be a struct type.
func NewExtractor[T any](model core.CompletionModel, opts ...ExtractorOption) (*Extractor[T], error) {
	cfg := extractorConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	doc, err := jsonschema.Derive[T]()
	if err != nil {
		return nil, fmt.Errorf("agent: derive extraction schema: %w", err)
	}
	if doc.Type != "object" {
		return nil, fmt.Errorf("agent: extraction target must be an object, got %q", doc.Type)
	}
	params, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("agent: encode extraction schema: %w", err)
	}
	validator, err := jsonschema.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("agent: compile extraction schema: %w", err)
	}
	preamble := extractorPreamble
	if cfg.preamble != "" {
		preamble += "\n\n" + cfg.preamble
	}
	return &Extractor[T]{
		model:     model,
		modelName: cfg.modelName,
		preamble:  preamble,
		retries:   cfg.retries,
		logger:    cfg.logger,
		params:    params,
		validator: validator,
	}, nil
}

// Extract returns the data extracted from text.
func (e *Extractor[T]) Extract(ctx context.Context, text string) (T, error) {
	out, _, err := e.ExtractWithUsage(ctx, text)
	return out, err
}

// ExtractWithUsage is Extract plus the token usage summed over attempts.
func (e *Extractor[T]) ExtractWithUsage(ctx context.Context, text string) (T, core.Usage, error) {
	var (
		zero  T
		usage core.Usage
		last  error
	)
	req := core.CompletionRequest{
		Model:    e.modelName,
		Preamble: e.preamble,
		Prompt:   core.UserText(text),
		Tools: []core.ToolDefinition{{
			Name:        SubmitTool,
			Description: "Submit the extracted data.",
			Parameters:  e.params,
		}},
		ToolChoice: core.SpecificTools(SubmitTool),
	}
	for attempt := 0; attempt <= e.retries; attempt++ {
		resp, err := e.model.Completion(ctx, req)
		if err != nil {
			return zero, usage, err
		}
		usage = usage.Add(resp.Usage)
		out, err := e.decode(resp)
		if err == nil {
			return out, usage, nil
		}
		last = err
		e.logger.DebugContext(ctx, "extraction attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return zero, usage, last
}

func (e *Extractor[T]) decode(resp *core.CompletionResponse) (T, error) {
	var out T
	for _, call := range resp.ToolCalls() {
		if call.Name != SubmitTool {
			continue
		}
		args, err := jsonschema.RepairJSON(call.Arguments)
		if err != nil {
			return out, fmt.Errorf("agent: submit arguments: %w", err)
		}
		if err := e.validator.Validate(args); err != nil {
			return out, fmt.Errorf("agent: submit arguments: %w", err)
		}
		if err := json.Unmarshal(args, &out); err != nil {
			return out, fmt.Errorf("agent: decode submit arguments: %w", err)
		}
		return out, nil
	}
	return out, ErrNoExtraction
}
