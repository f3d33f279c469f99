package agentkit

import (
	"fmt"
	"strings"
)

// maxAliasDepth bounds alias chains such as "fast" -> "cheap" -> "groq/...".
const maxAliasDepth = 8

// DefaultAliases returns short names for commonly used models, for use with
// WithAliases. They are not installed unless requested.
func DefaultAliases() map[string]string {
	return map[string]string{
		"gpt-4o":      "openai/gpt-4o",
		"gpt-4o-mini": "openai/gpt-4o-mini",
		"sonnet":      "anthropic/claude-sonnet-4-5",
		"haiku":       "anthropic/claude-haiku-4-5",
		"flash":       "gemini/gemini-2.5-flash",
		"llama":       "groq/llama-3.3-70b-versatile",
		"grok":        "xai/grok-4",
	}
}

// SetAlias points alias at target, which is a "provider/model" reference or
// another alias. It fails when the alias contains a '/' or when the new
// entry would close a cycle.
func (c *Client) SetAlias(alias, target string) error {
	if alias == "" || strings.Contains(alias, "/") {
		return fmt.Errorf("agentkit: alias %q must be non-empty and contain no '/'", alias)
	}
	if target == "" {
		return fmt.Errorf("agentkit: alias %q has an empty target", alias)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.aliases[alias]
	c.aliases[alias] = target
	if _, err := c.resolveAlias(alias); err != nil {
		if had {
			c.aliases[alias] = prev
		} else {
			delete(c.aliases, alias)
		}
		return err
	}
	return nil
}

// GetAlias returns the direct target of alias.
func (c *Client) GetAlias(alias string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	target, ok := c.aliases[alias]
	return target, ok
}

// RemoveAlias deletes alias. Aliases pointing at it stop resolving.
func (c *Client) RemoveAlias(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.aliases, alias)
}

// Aliases returns a copy of the alias table.
func (c *Client) Aliases() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}

// resolveAlias follows ref through the alias table. A ref that is not an
// alias is returned unchanged. Callers hold c.mu.
func (c *Client) resolveAlias(ref string) (string, error) {
	start := ref
	for i := 0; i <= maxAliasDepth; i++ {
		target, ok := c.aliases[ref]
		if !ok {
			return ref, nil
		}
		if target == start {
			return "", &ModelError{Model: start, Err: fmt.Errorf("%w: alias cycle", ErrInvalidModel)}
		}
		ref = target
	}
	return "", &ModelError{Model: start, Err: fmt.Errorf("%w: alias chain longer than %d", ErrInvalidModel, maxAliasDepth)}
}
