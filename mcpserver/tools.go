package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/schemahub/registry-mcp-go/mcp"
)

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// NewTool constructs a StaticTool from a typed args struct A. The input
// schema is reflected from A, additionalProperties is false, and runtime
// decoding rejects unknown fields, so each tool's arguments are validated
// once at the boundary instead of being string-coerced per field in the
// handler.
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) StaticTool {
	desc := mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Arguments))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return Errorf("invalid arguments: %v", err), nil
			}
		}
		return fn(ctx, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects a Go type A into a jsonschema.Schema and
// down-converts it to the simplified mcp.ToolInputSchema.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	s := r.Reflect(new(A))

	// Only object schemas map to the MCP shape; anything else becomes an
	// empty strict object.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// toSchemaProperty recursively maps a jsonschema.Schema to the simplified
// MCP SchemaProperty.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolSet owns a threadsafe set of tool descriptors and handlers and serves
// the tools/list and tools/call operations over them.
type ToolSet struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
	pageSize int
}

// NewToolSet constructs a ToolSet with the given tool definitions. Duplicate
// names resolve last-write-wins.
func NewToolSet(defs ...StaticTool) *ToolSet {
	ts := &ToolSet{pageSize: 50}
	ts.Replace(defs...)
	return ts
}

// SetPageSize sets the pagination size used by List. Non-positive values are
// ignored.
func (ts *ToolSet) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	ts.mu.Lock()
	ts.pageSize = n
	ts.mu.Unlock()
}

// Replace atomically replaces the entire tool set.
func (ts *ToolSet) Replace(defs ...StaticTool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tools = make([]mcp.Tool, 0, len(defs))
	ts.handlers = make(map[string]ToolHandler, len(defs))
	for _, d := range defs {
		ts.tools = append(ts.tools, d.Descriptor)
		if d.Handler != nil {
			ts.handlers[d.Descriptor.Name] = d.Handler
		}
	}
}

// List returns one page of tool descriptors plus the cursor for the next
// page, if any. Cursors are opaque numeric offsets; an unparseable cursor
// restarts from the beginning.
func (ts *ToolSet) List(cursor *string) ([]mcp.Tool, *string) {
	ts.mu.RLock()
	all := make([]mcp.Tool, len(ts.tools))
	copy(all, ts.tools)
	pageSize := ts.pageSize
	ts.mu.RUnlock()

	start := parseCursor(cursor)
	if start < 0 || start > len(all) {
		start = 0
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	items := make([]mcp.Tool, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		next := strconv.Itoa(end)
		return items, &next
	}
	return items, nil
}

// Call dispatches a request to the named tool if present.
func (ts *ToolSet) Call(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid tool request: missing name")
	}
	ts.mu.RLock()
	h := ts.handlers[req.Name]
	ts.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("tool not found: %s", req.Name)
	}
	return h(ctx, req)
}

func parseCursor(cursor *string) int {
	if cursor == nil {
		return 0
	}
	n, err := strconv.Atoi(*cursor)
	if err != nil {
		return 0
	}
	return n
}

// TextResult builds a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// StructuredResult marshals v into both a pretty-printed text block and the
// structuredContent member.
func StructuredResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	res := TextResult(string(b))

	var m map[string]any
	if err := json.Unmarshal(b, &m); err == nil {
		res.StructuredContent = m
	}
	return res, nil
}

// Errorf returns an error CallToolResult with a single text block and
// IsError set.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
