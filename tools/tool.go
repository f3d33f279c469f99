package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shillcollin/agentkit/core"
	jsonschema "github.com/shillcollin/agentkit/internal/jsonschema"
	"github.com/shillcollin/agentkit/schema"
)

// Tool is a callable the model may request by name.
type Tool interface {
	Name() string
	// Definition describes the tool to the model. prompt is the text being
	// answered, so a tool may tailor its description.
	Definition(ctx context.Context, prompt string) core.ToolDefinition
	// Call executes the tool with JSON arguments and returns its textual output.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Meta identifies the tool call being executed.
type Meta struct {
	CallID   string
	ToolName string
}

type metaKey struct{}

// ContextWithMeta attaches call metadata to ctx.
func ContextWithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFrom returns the call metadata stored in ctx, if any.
func MetaFrom(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}

// ToolFunc is the handler invoked when the model calls the tool.
type ToolFunc[I any, O any] func(ctx context.Context, input I, meta Meta) (O, error)

// Typed is a tool whose parameter schema is derived from its input type.
type Typed[I any, O any] struct {
	name        string
	description string
	fn          ToolFunc[I, O]

	once        sync.Once
	inputSchema *schema.Schema
	params      json.RawMessage
	validator   *jsonschema.Validator
	schemaErr   error
}

// New constructs a typed tool with a derived input schema.
func New[I any, O any](name, description string, fn ToolFunc[I, O]) *Typed[I, O] {
	return &Typed[I, O]{name: name, description: description, fn: fn}
}

// Name returns the tool name.
func (t *Typed[I, O]) Name() string { return t.name }

// Description returns the description.
func (t *Typed[I, O]) Description() string { return t.description }

// InputSchema returns a copy of the JSON schema for the input type.
func (t *Typed[I, O]) InputSchema() *schema.Schema {
	t.ensureSchema()
	return t.inputSchema.Clone()
}

// Definition implements Tool.
func (t *Typed[I, O]) Definition(context.Context, string) core.ToolDefinition {
	t.ensureSchema()
	return core.ToolDefinition{Name: t.name, Description: t.description, Parameters: t.params}
}

// Call validates args against the input schema, decodes them and runs the handler.
func (t *Typed[I, O]) Call(ctx context.Context, args json.RawMessage) (string, error) {
	t.ensureSchema()
	if t.schemaErr != nil {
		return "", t.schemaErr
	}
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	if t.validator != nil {
		if err := t.validator.Validate(args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	var input I
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	meta := MetaFrom(ctx)
	if meta.ToolName == "" {
		meta.ToolName = t.name
	}
	out, err := t.fn(ctx, input, meta)
	if err != nil {
		return "", err
	}
	return encodeOutput(out)
}

func (t *Typed[I, O]) ensureSchema() {
	t.once.Do(func() {
		in, err := jsonschema.Derive[I]()
		if err != nil {
			t.schemaErr = fmt.Errorf("derive input schema for %s: %w", t.name, err)
			return
		}
		// Providers require an object at the top level.
		if in.Type == "" {
			in.Type = "object"
		}
		t.inputSchema = in
		params, err := json.Marshal(in)
		if err != nil {
			t.schemaErr = fmt.Errorf("encode input schema for %s: %w", t.name, err)
			return
		}
		t.params = params
		validator, err := jsonschema.Compile(in)
		if err != nil {
			t.schemaErr = fmt.Errorf("compile input schema for %s: %w", t.name, err)
			return
		}
		t.validator = validator
	})
}

func encodeOutput(out any) (string, error) {
	switch v := out.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	return string(data), nil
}

// CallFunc is the handler of an untyped tool.
type CallFunc func(ctx context.Context, args json.RawMessage) (string, error)

type funcTool struct {
	name        string
	description string
	params      json.RawMessage
	fn          CallFunc
}

// Func builds a tool from a raw JSON schema and a handler. A nil params
// accepts any object.
func Func(name, description string, params json.RawMessage, fn CallFunc) Tool {
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return &funcTool{name: name, description: description, params: params, fn: fn}
}

func (f *funcTool) Name() string { return f.name }

func (f *funcTool) Definition(context.Context, string) core.ToolDefinition {
	return core.ToolDefinition{Name: f.name, Description: f.description, Parameters: f.params}
}

func (f *funcTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	return f.fn(ctx, args)
}
