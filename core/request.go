package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// CompletionRequest is a single completion or stream call. Build a fresh request
// per round; providers treat it as read-only.
type CompletionRequest struct {
	Model            string            `json:"model,omitempty"`
	Preamble         string            `json:"preamble,omitempty"`
	ChatHistory      []Message         `json:"chat_history,omitempty"`
	Prompt           Message           `json:"prompt"`
	Documents        []ContextDocument `json:"documents,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        *int              `json:"max_tokens,omitempty"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice       ToolChoice        `json:"tool_choice,omitempty"`
	AdditionalParams map[string]any    `json:"additional_params,omitempty"`
}

// Messages returns the history followed by the prompt.
func (r CompletionRequest) Messages() []Message {
	out := make([]Message, 0, len(r.ChatHistory)+1)
	out = append(out, r.ChatHistory...)
	return append(out, r.Prompt)
}

// Validate reports malformed requests before they reach a provider.
func (r CompletionRequest) Validate() error {
	if r.Prompt.Role != User && r.Prompt.Role != Tool {
		return fmt.Errorf("prompt must be a user or tool message, got %q", r.Prompt.Role)
	}
	if err := r.Prompt.Validate(); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	if err := ValidateMessages(r.ChatHistory); err != nil {
		return fmt.Errorf("chat history: %w", err)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature %.2f outside [0, 2]", *r.Temperature)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", *r.MaxTokens)
	}
	seen := make(map[string]struct{}, len(r.Tools))
	for _, def := range r.Tools {
		if def.Name == "" {
			return errors.New("tool definition without name")
		}
		if _, dup := seen[def.Name]; dup {
			return fmt.Errorf("duplicate tool definition %q", def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return r.ToolChoice.validate(seen)
}

// Clone returns a copy whose slices and maps can be mutated independently.
func (r CompletionRequest) Clone() CompletionRequest {
	clone := r
	clone.ChatHistory = CloneMessages(r.ChatHistory)
	clone.Prompt = Message{Role: r.Prompt.Role, Content: append([]Part(nil), r.Prompt.Content...)}
	if r.Documents != nil {
		clone.Documents = append([]ContextDocument(nil), r.Documents...)
	}
	if r.Tools != nil {
		clone.Tools = append([]ToolDefinition(nil), r.Tools...)
	}
	if r.AdditionalParams != nil {
		clone.AdditionalParams = maps.Clone(r.AdditionalParams)
	}
	clone.ToolChoice.Names = append([]string(nil), r.ToolChoice.Names...)
	return clone
}

// OfferedTools returns the tools to advertise to the model. A specific choice
// narrows them to the named tools, so an adapter that can only force "any
// tool" still keeps the model within the allowed set.
func (r CompletionRequest) OfferedTools() []ToolDefinition {
	if r.ToolChoice.Mode != ToolChoiceSpecific {
		return r.Tools
	}
	out := make([]ToolDefinition, 0, len(r.ToolChoice.Names))
	for _, def := range r.Tools {
		if slices.Contains(r.ToolChoice.Names, def.Name) {
			out = append(out, def)
		}
	}
	return out
}

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ParametersMap decodes the JSON schema, defaulting to an empty object schema.
func (d ToolDefinition) ParametersMap() map[string]any {
	out := map[string]any{}
	if len(d.Parameters) > 0 {
		_ = json.Unmarshal(d.Parameters, &out)
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

// ToolChoiceMode enumerates how the provider should handle tool selection.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice selects tool usage. The zero value leaves the decision to the provider.
type ToolChoice struct {
	Mode  ToolChoiceMode `json:"mode,omitempty"`
	Names []string       `json:"names,omitempty"`
}

// SpecificTools forces the model to call one of the named tools.
func SpecificTools(names ...string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceSpecific, Names: names}
}

// IsZero reports whether no explicit choice was made.
func (c ToolChoice) IsZero() bool {
	return c.Mode == "" && len(c.Names) == 0
}

func (c ToolChoice) validate(tools map[string]struct{}) error {
	switch c.Mode {
	case "", ToolChoiceAuto, ToolChoiceNone:
		return nil
	case ToolChoiceRequired:
		if len(tools) == 0 {
			return errors.New("tool choice required without tools")
		}
		return nil
	case ToolChoiceSpecific:
		if len(c.Names) == 0 {
			return errors.New("specific tool choice needs at least one name")
		}
		for _, name := range c.Names {
			if _, ok := tools[name]; !ok {
				return fmt.Errorf("tool choice names unknown tool %q", name)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown tool choice %q", c.Mode)
	}
}

// ContextDocument is a piece of retrieved or static context attached to a request.
type ContextDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// String renders the document the way providers embed it in prompts.
func (d ContextDocument) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<file id: %s>\n", d.ID)
	if len(d.Metadata) > 0 {
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "<metadata %s: %s>\n", k, d.Metadata[k])
		}
	}
	b.WriteString(d.Text)
	b.WriteString("\n</file>\n")
	return b.String()
}

// DocumentsMessage renders documents as a synthetic user message, or reports false
// when there is nothing to attach.
func DocumentsMessage(docs []ContextDocument) (Message, bool) {
	if len(docs) == 0 {
		return Message{}, false
	}
	var b strings.Builder
	b.WriteString("<attachments>\n")
	for _, doc := range docs {
		b.WriteString(doc.String())
	}
	b.WriteString("</attachments>")
	return UserText(b.String()), true
}

// ProviderMessages is the message list providers send: documents, history, prompt.
func (r CompletionRequest) ProviderMessages() []Message {
	msgs := make([]Message, 0, len(r.ChatHistory)+2)
	if doc, ok := DocumentsMessage(r.Documents); ok {
		msgs = append(msgs, doc)
	}
	msgs = append(msgs, r.ChatHistory...)
	return append(msgs, r.Prompt)
}
