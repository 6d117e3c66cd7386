// Package builtins provides the tools a fresh MCP server ships with.
//
// # Tools
//
// Offline:
//
//   - ping: liveness check returning "pong"
//   - echo: echoes text with its length
//   - datetime: current time in an IANA timezone
//   - json_parse: parse, describe, and extract from JSON documents
//   - csv_process: parse CSV with type inference, filtering, and column statistics
//
// Networked:
//
//   - cat_fact: catfact.ninja with an offline fallback
//   - weather: OpenWeatherMap current conditions and optional forecast
//   - usage: caller's limits and consumption from the Commands.com gateway
//
// # Registration
//
// Build a registry from every tool:
//
//	reg, err := tools.NewRegistry(opts, builtins.All(cfg)...)
//
// # Configuration
//
// Handlers read everything from Config; they never consult the process
// environment. Upstream calls share one http.Client and are bounded by
// Config.UpstreamTimeout as well as the caller's context.
//
// Networked tools degrade to structured payloads (available=false, or an
// "error" field) when an upstream is down, so a flaky dependency does not
// turn into a JSON-RPC error. Caller mistakes such as an unknown timezone or
// location are reported as INVALID_PARAMS.
package builtins
