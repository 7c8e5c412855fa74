// Package tools defines the shared [Tool] type used by the built-in MCP tool
// packages. Each sub-package exports a constructor function that returns a
// slice of [Tool] values ready for registration with the MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a built-in tool ready for registration with the MCP server.
type Tool struct {
	// Name is the tool name clients call it by.
	Name string

	// Description tells the client what the tool does.
	Description string

	// Parameters is the JSON Schema of the arguments object.
	Parameters map[string]any

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)

	// DeclaredMax is the p99 upper-bound latency in milliseconds. It is used
	// as a hard timeout during tool execution. Zero means no timeout.
	DeclaredMax int64
}

// Decode unmarshals JSON args into v, prefixing errors with the tool package
// name. Empty args decode as an empty object.
func Decode(pkg, args string, v any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("%s: failed to parse arguments: %w", pkg, err)
	}
	return nil
}

// Encode marshals a tool result.
func Encode(pkg string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode result: %w", pkg, err)
	}
	return string(b), nil
}
