// Package gateway assembles the MCP runtime and serves it over HTTP.
//
// # Wiring
//
// New turns a validated config.Config into a running stack:
//
//	config -> JWKSCache -> Verifier -> Authenticator
//	       -> builtins.All -> tools.Registry -> mcp.Server -> chi router
//
// When the development bypass is active (auth.skip_auth in the development
// environment) no key cache is built and every request runs as the fixed
// development identity.
//
// # Middleware
//
// Every request passes through, in order:
//
//   - RequestID and RealIP
//   - one structured access log line per request (headers are never logged)
//   - Recoverer
//   - X-Content-Type-Options, X-Frame-Options and Referrer-Policy headers
//   - CORS for the configured origins, with credentials
//   - the request body limit (server.max_body_bytes)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	err = gw.Run(ctx)
//
// Run blocks until ctx is canceled, then stops accepting connections and
// waits up to server.shutdown_grace for in-flight requests to finish.
package gateway
