package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/shillcollin/agentkit/schema"
)

// Validator checks JSON documents against a compiled schema.
type Validator struct {
	schema   *schema.Schema
	patterns map[*schema.Schema]*regexp.Regexp
}

// ValidationError locates the first violation in a document.
type ValidationError struct {
	// Path is a JSONPath-like location, "$" for the root.
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Reason
}

// Compile prepares s for validation. Patterns are compiled up front so a bad
// pattern fails here rather than on the first call.
func Compile(s *schema.Schema) (*Validator, error) {
	if s == nil {
		return nil, errors.New("jsonschema: nil schema")
	}
	v := &Validator{schema: s, patterns: map[*schema.Schema]*regexp.Regexp{}}
	if err := v.compile(s, "$"); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Validator) compile(s *schema.Schema, path string) error {
	if s == nil {
		return nil
	}
	switch s.Type {
	case "", "object", "array", "string", "integer", "number", "boolean", "null":
	default:
		return fmt.Errorf("jsonschema: %s: unsupported type %q", path, s.Type)
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("jsonschema: %s: pattern: %w", path, err)
		}
		v.patterns[s] = re
	}
	for name, prop := range s.Properties {
		if err := v.compile(prop, path+"."+name); err != nil {
			return err
		}
	}
	if err := v.compile(s.AdditionalProperties, path+".*"); err != nil {
		return err
	}
	return v.compile(s.Items, path+"[]")
}

// Validate decodes data and checks it against the schema.
func (v *Validator) Validate(data []byte) error {
	if v == nil {
		return errors.New("jsonschema: nil validator")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return errors.New("decode json: trailing data after document")
	}
	return v.check(doc, v.schema, "$")
}

func (v *Validator) check(value any, s *schema.Schema, path string) error {
	if s == nil || s.Type == "" {
		return nil
	}
	fail := func(format string, args ...any) error {
		return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}
	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fail("expected object, got %s", kindOf(value))
		}
		for _, key := range s.Required {
			if _, ok := obj[key]; !ok {
				return fail("missing required field %q", key)
			}
		}
		for key, val := range obj {
			prop, ok := s.Properties[key]
			if !ok {
				prop = s.AdditionalProperties
			}
			if err := v.check(val, prop, path+"."+key); err != nil {
				return err
			}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fail("expected array, got %s", kindOf(value))
		}
		if s.MinItems != nil && len(arr) < *s.MinItems {
			return fail("expected at least %d items, got %d", *s.MinItems, len(arr))
		}
		if s.MaxItems != nil && len(arr) > *s.MaxItems {
			return fail("expected at most %d items, got %d", *s.MaxItems, len(arr))
		}
		for i, elem := range arr {
			if err := v.check(elem, s.Items, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	case "string":
		str, ok := value.(string)
		if !ok {
			return fail("expected string, got %s", kindOf(value))
		}
		n := utf8.RuneCountInString(str)
		if s.MinLength != nil && n < *s.MinLength {
			return fail("string shorter than %d characters", *s.MinLength)
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			return fail("string longer than %d characters", *s.MaxLength)
		}
		if re := v.patterns[s]; re != nil && !re.MatchString(str) {
			return fail("%q does not match pattern %s", str, s.Pattern)
		}
		if len(s.Enum) > 0 && !inEnum(str, s.Enum) {
			return fail("%q is not one of %v", str, s.Enum)
		}
	case "integer", "number":
		num, ok := value.(json.Number)
		if !ok {
			return fail("expected %s, got %s", s.Type, kindOf(value))
		}
		f, err := num.Float64()
		if err != nil {
			return fail("invalid number %s", num)
		}
		if s.Type == "integer" && f != math.Trunc(f) {
			return fail("expected integer, got %s", num)
		}
		if s.Minimum != nil && f < *s.Minimum {
			return fail("%s is below the minimum %v", num, *s.Minimum)
		}
		if s.Maximum != nil && f > *s.Maximum {
			return fail("%s is above the maximum %v", num, *s.Maximum)
		}
		if len(s.Enum) > 0 && !inEnum(f, s.Enum) {
			return fail("%s is not one of %v", num, s.Enum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fail("expected boolean, got %s", kindOf(value))
		}
	case "null":
		if value != nil {
			return fail("expected null, got %s", kindOf(value))
		}
	}
	return nil
}

// inEnum compares numbers by value, whatever their Go type in the enum.
func inEnum(value any, enum []any) bool {
	for _, candidate := range enum {
		switch want := value.(type) {
		case string:
			if s, ok := candidate.(string); ok && s == want {
				return true
			}
		case float64:
			if f, ok := toFloat(candidate); ok && f == want {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// RepairJSON fixes the mistakes models commonly make in tool arguments: a
// markdown code fence around the document and trailing commas before a
// closing bracket. Valid input is returned trimmed and otherwise untouched.
func RepairJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(stripFence(bytes.TrimSpace(data)))
	if len(trimmed) == 0 {
		return nil, errors.New("empty json")
	}
	if json.Valid(trimmed) {
		return trimmed, nil
	}
	fixed := dropTrailingCommas(trimmed)
	if json.Valid(fixed) {
		return fixed, nil
	}
	return nil, errors.New("unable to repair json")
}

func stripFence(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("```")) || !bytes.HasSuffix(data, []byte("```")) || len(data) < 6 {
		return data
	}
	body := data[3 : len(data)-3]
	// drop the info string, e.g. ```json
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return body
}

// dropTrailingCommas removes commas followed only by whitespace and a
// closing bracket, leaving string contents alone.
func dropTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(data) && (data[j] == ' ' || data[j] == '\t' || data[j] == '\n' || data[j] == '\r') {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
