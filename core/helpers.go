package core

import (
	"encoding/base64"
	"encoding/json"
)

// UserMessage creates a user message for the provided parts.
func UserMessage(parts ...Part) Message {
	clone := append([]Part(nil), parts...)
	return Message{Role: User, Content: clone}
}

// UserText creates a user message holding a single text part.
func UserText(text string) Message {
	return Message{Role: User, Content: []Part{Text{Text: text}}}
}

// AssistantMessage creates an assistant message for the provided parts.
func AssistantMessage(parts ...Part) Message {
	clone := append([]Part(nil), parts...)
	return Message{Role: Assistant, Content: clone}
}

// AssistantText creates an assistant message with plain text.
func AssistantText(text string) Message {
	return Message{Role: Assistant, Content: []Part{Text{Text: text}}}
}

// ToolResultMessage wraps a single tool result.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: Tool, Content: []Part{result}}
}

// TextPart is a convenience for constructing a text part.
func TextPart(text string) Text {
	return Text{Text: text}
}

// ImageBytes builds a base64 encoded Image part.
func ImageBytes(data []byte, mediaType string) Image {
	return Image{Media: Media{Data: base64.StdEncoding.EncodeToString(data), Encoding: EncodingBase64, MediaType: mediaType}}
}

// ImageURL builds a URL referenced Image part.
func ImageURL(url, mediaType string) Image {
	return Image{Media: Media{Data: url, Encoding: EncodingURL, MediaType: mediaType}}
}

// AudioBytes builds a base64 encoded Audio part.
func AudioBytes(data []byte, mediaType string) Audio {
	return Audio{Media: Media{Data: base64.StdEncoding.EncodeToString(data), Encoding: EncodingBase64, MediaType: mediaType}}
}

// DocumentText builds a raw text Document part.
func DocumentText(name, text string) Document {
	return Document{Media: Media{Data: text, Encoding: EncodingRaw, MediaType: "text/plain"}, Name: name}
}

// DocumentBytes builds a base64 encoded Document part, e.g. a PDF.
func DocumentBytes(name string, data []byte, mediaType string) Document {
	return Document{Media: Media{Data: base64.StdEncoding.EncodeToString(data), Encoding: EncodingBase64, MediaType: mediaType}, Name: name}
}

// VideoURL builds a URL referenced Video part.
func VideoURL(url, mediaType string) Video {
	return Video{Media: Media{Data: url, Encoding: EncodingURL, MediaType: mediaType}}
}

// NewToolCall builds a ToolCall, marshalling args unless they already are JSON bytes.
func NewToolCall(id, name string, args any) (ToolCall, error) {
	switch v := args.(type) {
	case json.RawMessage:
		return ToolCall{ID: id, Name: name, Arguments: v}, nil
	case nil:
		return ToolCall{ID: id, Name: name, Arguments: json.RawMessage("{}")}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return ToolCall{}, err
	}
	return ToolCall{ID: id, Name: name, Arguments: raw}, nil
}

// CloneMessages returns a copy of the slice; parts are values and shared safely.
func CloneMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = Message{Role: msg.Role, Content: append([]Part(nil), msg.Content...)}
	}
	return out
}
