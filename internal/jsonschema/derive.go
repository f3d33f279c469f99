// Package jsonschema derives tool parameter schemas from Go types and
// validates model-produced arguments against them.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shillcollin/agentkit/schema"
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	durationType   = reflect.TypeOf(time.Duration(0))
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
)

// Derive returns the schema of T. Field names follow encoding/json, and a
// field is required unless its json tag has omitempty or its jsonschema tag
// says optional. Constraints come from the description, enum, minimum,
// maximum, minLength, maxLength, minItems, maxItems, pattern, format and
// default tags.
func Derive[T any]() (*schema.Schema, error) {
	var zero T
	d := deriver{active: map[reflect.Type]bool{}}
	return d.derive(reflect.TypeOf(zero))
}

type deriver struct {
	// active holds the struct types on the current path.
	active map[reflect.Type]bool
}

func (d deriver) derive(t reflect.Type) (*schema.Schema, error) {
	if t == nil {
		return &schema.Schema{}, nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return &schema.Schema{Type: "string", Format: "date-time"}, nil
	case durationType:
		return &schema.Schema{Type: "integer", Description: "duration in nanoseconds"}, nil
	case rawMessageType:
		return &schema.Schema{}, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return &schema.Schema{Type: "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &schema.Schema{Type: "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return &schema.Schema{Type: "number"}, nil
	case reflect.String:
		return &schema.Schema{Type: "string"}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &schema.Schema{Type: "string", Format: "byte"}, nil
		}
		items, err := d.derive(t.Elem())
		if err != nil {
			return nil, err
		}
		out := &schema.Schema{Type: "array", Items: items}
		if t.Kind() == reflect.Array {
			n := t.Len()
			out.MinItems, out.MaxItems = &n, &n
		}
		return out, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key %s: only string keys are supported", t.Key())
		}
		values, err := d.derive(t.Elem())
		if err != nil {
			return nil, err
		}
		out := &schema.Schema{Type: "object"}
		if values.Type != "" {
			out.AdditionalProperties = values
		}
		return out, nil
	case reflect.Struct:
		return d.deriveStruct(t)
	case reflect.Interface:
		return &schema.Schema{}, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}
}

func (d deriver) deriveStruct(t reflect.Type) (*schema.Schema, error) {
	if d.active[t] {
		return nil, fmt.Errorf("recursive type %s is not supported", t)
	}
	d.active[t] = true
	defer delete(d.active, t)

	out := &schema.Schema{Type: "object", Properties: map[string]*schema.Schema{}, Required: []string{}}
	if err := d.addFields(out, t); err != nil {
		return nil, err
	}
	sort.Strings(out.Required)
	return out, nil
}

// addFields adds t's fields to out, flattening embedded structs the way
// encoding/json does.
func (d deriver) addFields(out *schema.Schema, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, opts := parseTag(field.Tag.Get("json"))
		if name == "-" && len(opts) == 0 {
			continue
		}
		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if d.active[ft] {
					return fmt.Errorf("recursive type %s is not supported", ft)
				}
				d.active[ft] = true
				err := d.addFields(out, ft)
				delete(d.active, ft)
				if err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}

		var (
			prop *schema.Schema
			err  error
		)
		if opts.contains("string") {
			prop = &schema.Schema{Type: "string"}
		} else if prop, err = d.derive(field.Type); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
		if err := applyFieldTags(prop, field.Tag); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
		out.Properties[name] = prop

		optional := opts.contains("omitempty") || opts.contains("omitzero") ||
			strings.Contains(field.Tag.Get("jsonschema"), "optional")
		if !optional && !out.IsRequired(name) {
			out.Required = append(out.Required, name)
		}
	}
	return nil
}

type tagOptions []string

func parseTag(tag string) (string, tagOptions) {
	name, rest, _ := strings.Cut(tag, ",")
	if rest == "" {
		return name, nil
	}
	return name, tagOptions(strings.Split(rest, ","))
}

func (o tagOptions) contains(opt string) bool {
	for _, v := range o {
		if v == opt {
			return true
		}
	}
	return false
}

func applyFieldTags(s *schema.Schema, tag reflect.StructTag) error {
	if desc := tag.Get("description"); desc != "" {
		s.Description = desc
	}
	if format := tag.Get("format"); format != "" {
		s.Format = format
	}
	if pattern := tag.Get("pattern"); pattern != "" {
		s.Pattern = pattern
	}
	if enum := tag.Get("enum"); enum != "" {
		for _, v := range strings.Split(enum, ",") {
			value, err := typedValue(s.Type, strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("enum: %w", err)
			}
			s.Enum = append(s.Enum, value)
		}
	}
	if def := tag.Get("default"); def != "" {
		value, err := typedValue(s.Type, def)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		s.Default = value
	}
	for key, dst := range map[string]**float64{"minimum": &s.Minimum, "maximum": &s.Maximum} {
		if v := tag.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = &f
		}
	}
	for key, dst := range map[string]**int{
		"minLength": &s.MinLength,
		"maxLength": &s.MaxLength,
		"minItems":  &s.MinItems,
		"maxItems":  &s.MaxItems,
	} {
		if v := tag.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = &n
		}
	}
	return nil
}

// typedValue converts a tag value to the JSON type of the schema.
func typedValue(typ, raw string) (any, error) {
	switch typ {
	case "integer":
		return strconv.ParseInt(raw, 10, 64)
	case "number":
		return strconv.ParseFloat(raw, 64)
	case "boolean":
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}
