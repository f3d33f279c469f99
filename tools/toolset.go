package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shillcollin/agentkit/core"
)

// ToolSet maps unique names to tools. It is read-only after construction and
// safe for concurrent use. A nil *ToolSet behaves as an empty set.
type ToolSet struct {
	tools map[string]Tool
	order []string
}

// NewToolSet builds a set from tools, rejecting empty and duplicate names.
func NewToolSet(tools ...Tool) (*ToolSet, error) {
	set := &ToolSet{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool == nil {
			return nil, fmt.Errorf("tools: nil tool")
		}
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tools: tool name required")
		}
		if _, exists := set.tools[name]; exists {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		set.tools[name] = tool
		set.order = append(set.order, name)
	}
	return set, nil
}

// MustToolSet is NewToolSet that panics on error.
func MustToolSet(tools ...Tool) *ToolSet {
	set, err := NewToolSet(tools...)
	if err != nil {
		panic(err)
	}
	return set
}

// Get returns the named tool.
func (s *ToolSet) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	tool, ok := s.tools[name]
	return tool, ok
}

// Names returns tool names in registration order.
func (s *ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of tools.
func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Tools returns the tools in registration order.
func (s *ToolSet) Tools() []Tool {
	if s == nil {
		return nil
	}
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

// Definitions describes every tool for a completion request.
func (s *ToolSet) Definitions(ctx context.Context, prompt string) []core.ToolDefinition {
	if s == nil {
		return nil
	}
	defs := make([]core.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		def := s.tools[name].Definition(ctx, prompt)
		if def.Name == "" {
			def.Name = name
		}
		defs = append(defs, def)
	}
	return defs
}

// Call invokes the named tool. Unknown names yield a ToolNotFound error and
// tool failures a ToolCallError.
func (s *ToolSet) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	tool, ok := s.Get(name)
	if !ok {
		return "", core.NewToolNotFound(name)
	}
	out, err := tool.Call(ctx, args)
	if err != nil {
		return "", core.NewToolCallError(name, err)
	}
	return out, nil
}

// Subset returns a set holding only the named tools that exist, sorted by
// their original registration order.
func (s *ToolSet) Subset(names ...string) *ToolSet {
	out := &ToolSet{tools: map[string]Tool{}}
	if s == nil {
		return out
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for _, name := range s.order {
		if want[name] {
			out.tools[name] = s.tools[name]
			out.order = append(out.order, name)
		}
	}
	return out
}

// Merge returns a set with the tools of s followed by those of other whose
// names are not already present.
func (s *ToolSet) Merge(other *ToolSet) *ToolSet {
	out := &ToolSet{tools: map[string]Tool{}}
	for _, set := range []*ToolSet{s, other} {
		for _, tool := range set.Tools() {
			name := tool.Name()
			if _, exists := out.tools[name]; exists {
				continue
			}
			out.tools[name] = tool
			out.order = append(out.order, name)
		}
	}
	return out
}
