// Package config handles configuration loading for the MCP server runtime.
//
// # Overview
//
// Configuration is built once at startup by Load and passed into each
// component's constructor. Handlers never read the process environment.
//
// Sources are layered in this order, later layers winning:
//
//  1. Built-in defaults (see Default)
//  2. An optional YAML or TOML file, chosen by extension
//  3. Environment variables
//
// # Environment Variable Expansion
//
// Configuration files can reference environment variables:
//
//	tools:
//	  weather_api_key: "${OPENWEATHER_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Environment Overrides
//
//	PORT                     server.port
//	MCP_ENV, NODE_ENV        server.environment (development, production, test, staging)
//	MCP_NAME                 server.name
//	MCP_VERSION              server.version
//	MCP_DESCRIPTION          server.description
//	CORS_ORIGINS             server.cors_origins (comma separated)
//	SKIP_AUTH                auth.skip_auth (honoured only in development)
//	COMMANDS_JWKS_URL        auth.jwks_url
//	COMMANDS_JWT_ISSUER      auth.issuer
//	COMMANDS_JWT_AUDIENCE    auth.audience (unset disables the audience check)
//	OPENWEATHER_API_KEY      tools.weather_api_key (WEATHER_API_KEY also accepted)
//	GATEWAY_URL              tools.gateway_url
//	COMMANDS_ORGANIZATION    tools.organization
//	LOG_LEVEL, LOG_FORMAT    logging.level, logging.format
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  key_cache_ttl: "10m"
//	  jwks_timeout: "5s"
//	tools:
//	  timeout: "30s"
//	  upstream_timeout: "5s"
package config
