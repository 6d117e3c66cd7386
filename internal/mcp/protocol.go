// ABOUTME: JSON-RPC 2.0 envelope and MCP result types exchanged on the wire
// ABOUTME: Shared by the JSON-RPC endpoint, the REST facade, and their tests

package mcp

import (
	"encoding/json"

	"github.com/2389/mcp-runtime/internal/tools"
)

// ProtocolVersion is the MCP revision advertised by initialize and discovery.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request. A request without an ID
// is a notification.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *JSONRPCRequest) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. ID is always present,
// null when the request ID could not be determined.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCP-specific types

// ServerInfo identifies this server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises the feature families this server answers.
type Capabilities struct {
	Tools     struct{} `json:"tools"`
	Resources struct{} `json:"resources"`
	Prompts   struct{} `json:"prompts"`
}

// InitializeResult is the result for initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ListToolsResult is the result for tools/list and the body of GET /mcp/tools.
type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// ListResourcesResult is the result for resources/list.
type ListResourcesResult struct {
	Resources []any `json:"resources"`
}

// ListPromptsResult is the result for prompts/list.
type ListPromptsResult struct {
	Prompts []any `json:"prompts"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// REST facade types

// RESTError is the error body of the REST facade and discovery endpoints.
type RESTError struct {
	Error RESTErrorBody `json:"error"`
}

// RESTErrorBody carries the HTTP status code and a human-readable message.
type RESTErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Path    string `json:"path,omitempty"`
}

// RESTCallRequest is the body of POST /mcp/tools/{name}.
type RESTCallRequest struct {
	Params json.RawMessage `json:"params,omitempty"`
}

// RESTCallResponse is the success body of POST /mcp/tools/{name}.
type RESTCallResponse struct {
	Result any `json:"result"`
}
