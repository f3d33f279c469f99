package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	Tool      Role = "tool"
)

// Message represents a single conversation turn. Tool results travel in their
// own messages with the Tool role, one per call.
type Message struct {
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
}

// PartType identifies the type of content stored in a Part.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeImage      PartType = "image"
	PartTypeAudio      PartType = "audio"
	PartTypeDocument   PartType = "document"
	PartTypeVideo      PartType = "video"
	PartTypeToolCall   PartType = "tool_call"
	PartTypeToolResult PartType = "tool_result"
	PartTypeReasoning  PartType = "reasoning"
)

// Part is the interface implemented by all message fragments.
type Part interface {
	Type() PartType
}

// Encoding describes how the Data of a media part is carried.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingURL    Encoding = "url"
	EncodingRaw    Encoding = "raw"
)

// Media is the payload shared by every binary user part.
type Media struct {
	Data      string   `json:"data"`
	Encoding  Encoding `json:"encoding"`
	MediaType string   `json:"media_type,omitempty"`
}

// Bytes materialises inline media. URL-encoded media must be fetched by the provider.
func (m Media) Bytes() ([]byte, error) {
	switch m.Encoding {
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(m.Data)
	case EncodingRaw:
		return []byte(m.Data), nil
	case EncodingURL:
		return nil, errors.New("url media has no inline bytes")
	default:
		return nil, fmt.Errorf("unknown media encoding %q", m.Encoding)
	}
}

// Base64 returns the payload base64 encoded regardless of the source encoding.
func (m Media) Base64() (string, error) {
	switch m.Encoding {
	case EncodingBase64:
		return m.Data, nil
	case EncodingRaw:
		return base64.StdEncoding.EncodeToString([]byte(m.Data)), nil
	default:
		return "", fmt.Errorf("base64 conversion unsupported for %s media", m.Encoding)
	}
}

func (m Media) validate() error {
	if m.Data == "" {
		return errors.New("media data is empty")
	}
	switch m.Encoding {
	case EncodingBase64, EncodingURL, EncodingRaw:
		return nil
	default:
		return fmt.Errorf("unknown media encoding %q", m.Encoding)
	}
}

// Text represents text content.
type Text struct {
	Text string `json:"text"`
}

func (Text) Type() PartType { return PartTypeText }

// Image references image content.
type Image struct {
	Media
	Detail string `json:"detail,omitempty"`
}

func (Image) Type() PartType { return PartTypeImage }

// Audio references audio content.
type Audio struct {
	Media
}

func (Audio) Type() PartType { return PartTypeAudio }

// Document references a user-supplied document such as a PDF or plain text file.
type Document struct {
	Media
	Name string `json:"name,omitempty"`
}

func (Document) Type() PartType { return PartTypeDocument }

// Video references video content.
type Video struct {
	Media
}

func (Video) Type() PartType { return PartTypeVideo }

// ToolCall records a model-initiated tool invocation. Arguments always hold a
// complete JSON value.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (ToolCall) Type() PartType { return PartTypeToolCall }

// ToolResult answers a ToolCall. Failed calls carry the error text with IsError set.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

func (ToolResult) Type() PartType { return PartTypeToolResult }

// Reasoning carries model reasoning. Signature is provider opaque and echoed back verbatim.
type Reasoning struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

func (Reasoning) Type() PartType { return PartTypeReasoning }

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, part := range m.Content {
		if t, ok := part.(Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls in message order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, part := range m.Content {
		if call, ok := part.(ToolCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// Validate checks that the message is non-empty and only holds parts its role allows.
func (m Message) Validate() error {
	if len(m.Content) == 0 {
		return fmt.Errorf("%s message has no content", m.Role)
	}
	for i, part := range m.Content {
		if part == nil {
			return fmt.Errorf("%s message part %d is nil", m.Role, i)
		}
		if err := validatePart(m.Role, part); err != nil {
			return fmt.Errorf("%s message part %d: %w", m.Role, i, err)
		}
	}
	return nil
}

func validatePart(role Role, part Part) error {
	switch role {
	case User:
		switch p := part.(type) {
		case Text:
			return nil
		case Image:
			return p.validate()
		case Audio:
			return p.validate()
		case Document:
			return p.validate()
		case Video:
			return p.validate()
		}
	case Assistant:
		switch p := part.(type) {
		case Text, Reasoning:
			return nil
		case ToolCall:
			if p.ID == "" || p.Name == "" {
				return errors.New("tool call requires id and name")
			}
			if len(p.Arguments) > 0 && !json.Valid(p.Arguments) {
				return fmt.Errorf("tool call %s has invalid arguments", p.ID)
			}
			return nil
		}
	case Tool:
		if p, ok := part.(ToolResult); ok {
			if p.CallID == "" {
				return errors.New("tool result requires a call id")
			}
			return nil
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	return fmt.Errorf("%s part not allowed", part.Type())
}

// ValidateMessages validates each message in order.
func ValidateMessages(messages []Message) error {
	for i, msg := range messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// MarshalJSON encodes parts as objects tagged with their type.
func (m Message) MarshalJSON() ([]byte, error) {
	content := make([]json.RawMessage, 0, len(m.Content))
	for _, part := range m.Content {
		raw, err := marshalPart(part)
		if err != nil {
			return nil, err
		}
		content = append(content, raw)
	}
	return json.Marshal(struct {
		Role    Role              `json:"role"`
		Content []json.RawMessage `json:"content"`
	}{Role: m.Role, Content: content})
}

// UnmarshalJSON decodes the tagged part objects written by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role              `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = make([]Part, 0, len(raw.Content))
	for i, item := range raw.Content {
		part, err := unmarshalPart(item)
		if err != nil {
			return fmt.Errorf("content %d: %w", i, err)
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

func marshalPart(part Part) (json.RawMessage, error) {
	body, err := json.Marshal(part)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(part.Type())
	return json.Marshal(fields)
}

func unmarshalPart(data json.RawMessage) (Part, error) {
	var head struct {
		Type PartType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case PartTypeText:
		return decodePart[Text](data)
	case PartTypeImage:
		return decodePart[Image](data)
	case PartTypeAudio:
		return decodePart[Audio](data)
	case PartTypeDocument:
		return decodePart[Document](data)
	case PartTypeVideo:
		return decodePart[Video](data)
	case PartTypeToolCall:
		return decodePart[ToolCall](data)
	case PartTypeToolResult:
		return decodePart[ToolResult](data)
	case PartTypeReasoning:
		return decodePart[Reasoning](data)
	default:
		return nil, fmt.Errorf("unknown part type %q", head.Type)
	}
}

func decodePart[P Part](data json.RawMessage) (Part, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
