// Package mcp implements the Model Context Protocol server for tool access.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package exposes a fixed tools.Registry to MCP clients over JSON-RPC 2.0,
// alongside a small REST facade and public discovery endpoints.
//
// # Endpoints
//
//   - POST /                      JSON-RPC 2.0 (authenticated)
//   - POST /mcp/tools/{name}      direct tool execution, body {"params": {...}} (authenticated)
//   - GET  /mcp/tools             tool descriptors
//   - GET  /health                liveness
//   - GET  /.well-known/mcp.json  discovery document
//   - GET  /                      server metadata and tool summary
//
// Anything else answers 404 with {"error":{"code":404,"message":"Endpoint not found","path":...}}.
//
// # Authentication
//
// Authenticated endpoints run the auth.Authenticator chosen at startup:
//
//	Authorization: Bearer <jwt>
//
// Failures are rendered in the endpoint's own shape. The JSON-RPC endpoint
// answers HTTP 401 with a -32600 error and a null id; the REST facade
// answers HTTP 401 with {"error":{"code":401,...}}. No tool runs without
// a resolved caller.
//
// # Methods
//
// The method table is closed:
//
//   - initialize
//   - tools/list
//   - tools/call
//   - resources/list (always empty)
//   - prompts/list (always empty)
//
// Requests without an id are notifications. They are acknowledged with
// HTTP 202 and no body, and never reach a tool. notifications/initialized
// is acknowledged the same way even when it carries an id. Unknown methods
// return -32601 with HTTP 404.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "echo",
//	    "arguments": {"text": "hi"}
//	  },
//	  "id": 2
//	}
//
// A successful result is a single text block holding the tool's string
// result or its JSON rendering indented by two spaces. Tool failures map to
// JSON-RPC errors by class:
//
//   - INVALID_PARAMS (unknown tool, schema violation) → -32602
//   - FORBIDDEN (missing scope) → -32600
//   - anything else → -32603 "Tool execution failed: <message>"
package mcp
