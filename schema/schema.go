// Package schema holds the JSON Schema subset used for tool parameters and
// extraction targets.
package schema

// Schema is a JSON Schema node. Only the keywords providers accept in tool
// parameter definitions are modelled.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	// AdditionalProperties constrains the values of map-shaped objects.
	AdditionalProperties *Schema `json:"additionalProperties,omitempty"`
	Items                *Schema `json:"items,omitempty"`

	Default   any      `json:"default,omitempty"`
	Enum      []any    `json:"enum,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	MinItems  *int     `json:"minItems,omitempty"`
	MaxItems  *int     `json:"maxItems,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Format    string   `json:"format,omitempty"`
}

// IsRequired reports whether name is listed in Required.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := *s
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.Clone()
		}
	}
	out.Required = append([]string(nil), s.Required...)
	out.AdditionalProperties = s.AdditionalProperties.Clone()
	out.Items = s.Items.Clone()
	out.Enum = append([]any(nil), s.Enum...)
	out.Minimum = clonePtr(s.Minimum)
	out.Maximum = clonePtr(s.Maximum)
	out.MinLength = clonePtr(s.MinLength)
	out.MaxLength = clonePtr(s.MaxLength)
	out.MinItems = clonePtr(s.MinItems)
	out.MaxItems = clonePtr(s.MaxItems)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
