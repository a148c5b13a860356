package client

import (
	"fmt"
	"sync"

	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/jsonschema"
)

// schemaCache holds the resolved input schema of every tool this client has
// seen in a ListTools result, keyed by tool name, so CallTool can validate
// arguments client-side before a round trip. Adapted from the teacher's
// schema_cache.go/reflection_validator.go, trimmed to the one direction a
// client needs: resolving a server-supplied schema, not generating one from
// a Go type.
type schemaCache struct {
	mu        sync.RWMutex
	byToolName map[string]*jsonschema.Resolved
}

func newSchemaCache() *schemaCache {
	return &schemaCache{byToolName: make(map[string]*jsonschema.Resolved)}
}

// populate replaces the cache with tools' schemas. A tool whose schema
// fails to parse or resolve is skipped (not cached) rather than failing the
// whole ListTools call: validation against it is simply unavailable, per
// SPEC_FULL's "additive and skipped when no cached schema exists" rule.
func (c *schemaCache) populate(tools []toolSchema) {
	next := make(map[string]*jsonschema.Resolved, len(tools))
	for _, t := range tools {
		if len(t.inputSchema) == 0 {
			continue
		}
		resolved, err := jsonschema.ParseAndResolve(t.inputSchema)
		if err != nil || resolved == nil {
			continue
		}
		next[t.name] = resolved
	}
	c.mu.Lock()
	c.byToolName = next
	c.mu.Unlock()
}

func (c *schemaCache) get(name string) (*jsonschema.Resolved, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byToolName[name]
	return r, ok
}

type toolSchema struct {
	name        string
	inputSchema json.RawMessage
}

// validateArguments checks raw (a CallToolParams.Arguments payload) against
// the cached schema for toolName, if any. It decodes into a generic map
// rather than a typed struct, matching the schema library's validation
// input shape for object schemas.
func (c *schemaCache) validateArguments(toolName string, raw json.RawMessage) error {
	resolved, ok := c.get(toolName)
	if !ok {
		return nil
	}
	var args any
	if len(raw) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("client: decoding arguments for %q: %w", toolName, err)
	}
	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("client: arguments for tool %q do not match its input schema: %w", toolName, err)
	}
	return nil
}
