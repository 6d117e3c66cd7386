// ABOUTME: Tool capability contract shared by the registry, dispatcher, and built-in tools
// ABOUTME: A tool is a name, a description, a JSON Schema for its arguments, and a handler

package tools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler runs one tool invocation. args is the JSON object supplied by the
// caller, already validated against the tool's input schema. The caller's
// identity, if any, is available through auth.FromContext(ctx).
//
// A string result is returned to clients verbatim; any other value is
// rendered as indented JSON.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool describes one callable operation.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// Descriptor is the discovery view of a tool. It never exposes the handler.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// Descriptor returns the discovery view of t.
func (t Tool) Descriptor() Descriptor {
	return Descriptor{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// ObjectSchema builds an object schema with the given properties and required names.
func ObjectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}
