package jsonschema

import (
	"errors"
	"testing"

	"github.com/shillcollin/agentkit/schema"
)

type order struct {
	ID       string         `json:"id" pattern:"^ord_[0-9]+$"`
	Priority int            `json:"priority" enum:"1,2,3"`
	Score    float64        `json:"score,omitempty" minimum:"0" maximum:"1"`
	Items    []lineItem     `json:"items" minItems:"1"`
	Notes    map[string]int `json:"notes,omitempty"`
	Rush     bool           `json:"rush,omitempty"`
}

type lineItem struct {
	SKU string `json:"sku" maxLength:"4"`
	Qty int    `json:"qty" minimum:"1"`
}

func TestValidator(t *testing.T) {
	s, err := Derive[order]()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	v, err := Compile(s)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	tests := []struct {
		name    string
		payload string
		path    string
	}{
		{"valid", `{"id":"ord_1","priority":2,"items":[{"sku":"ab","qty":1}],"notes":{"a":1},"extra":true}`, ""},
		{"integer written as float", `{"id":"ord_1","priority":2.0,"items":[{"sku":"ab","qty":1}]}`, ""},
		{"missing field", `{"id":"ord_1","items":[{"sku":"ab","qty":1}]}`, "$"},
		{"pattern", `{"id":"x","priority":1,"items":[{"sku":"ab","qty":1}]}`, "$.id"},
		{"enum", `{"id":"ord_1","priority":4,"items":[{"sku":"ab","qty":1}]}`, "$.priority"},
		{"fractional integer", `{"id":"ord_1","priority":1.5,"items":[{"sku":"ab","qty":1}]}`, "$.priority"},
		{"maximum", `{"id":"ord_1","priority":1,"score":2,"items":[{"sku":"ab","qty":1}]}`, "$.score"},
		{"min items", `{"id":"ord_1","priority":1,"items":[]}`, "$.items"},
		{"nested", `{"id":"ord_1","priority":1,"items":[{"sku":"ab","qty":1},{"sku":"abcde","qty":1}]}`, "$.items[1].sku"},
		{"map value", `{"id":"ord_1","priority":1,"items":[{"sku":"ab","qty":1}],"notes":{"a":"x"}}`, "$.notes.a"},
		{"boolean", `{"id":"ord_1","priority":1,"items":[{"sku":"ab","qty":1}],"rush":"yes"}`, "$.rush"},
		{"not an object", `[1,2]`, "$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.payload))
			if tt.path == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("path = %q, want %q (%v)", verr.Path, tt.path, verr)
			}
		})
	}

	if err := v.Validate([]byte(`{"id":`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := v.Validate([]byte(`{} {}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestCompileRejectsBadSchemas(t *testing.T) {
	if _, err := Compile(nil); err == nil {
		t.Fatalf("expected error for nil schema")
	}
	bad := &schema.Schema{Type: "object", Properties: map[string]*schema.Schema{
		"name": {Type: "string", Pattern: "("},
	}}
	if _, err := Compile(bad); err == nil {
		t.Fatalf("expected pattern compile error")
	}
	if _, err := Compile(&schema.Schema{Type: "tuple"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid", ` {"a":1} `, `{"a":1}`},
		{"trailing comma", "{\"title\":\"ok\",}\n", `{"title":"ok"}`},
		{"nested trailing commas", `{"a":[1,2,],"b":{"c":3,},}`, `{"a":[1,2],"b":{"c":3}}`},
		{"comma inside string kept", `{"a":"x, }",}`, `{"a":"x, }"}`},
		{"escaped quote", `{"a":"say \",\" ]",}`, `{"a":"say \",\" ]"}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RepairJSON([]byte(tt.in))
			if err != nil {
				t.Fatalf("RepairJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
	for _, in := range []string{"", "   ", `{"a":`, "not json"} {
		if _, err := RepairJSON([]byte(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
