// ABOUTME: Gateway wires configuration into the auth, tool, and MCP components
// ABOUTME: and owns the HTTP server lifecycle including graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/mcp-runtime/internal/auth"
	"github.com/2389/mcp-runtime/internal/builtins"
	"github.com/2389/mcp-runtime/internal/config"
	"github.com/2389/mcp-runtime/internal/mcp"
	"github.com/2389/mcp-runtime/internal/tools"
)

// Gateway serves the MCP runtime over HTTP.
type Gateway struct {
	config     *config.Config
	registry   *tools.Registry
	keys       *auth.JWKSCache
	mcpServer  *mcp.Server
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// Option customizes a Gateway during construction.
type Option func(*options)

type options struct {
	tools      []tools.Tool
	httpClient *http.Client
	now        func() time.Time
}

// WithTools replaces the built-in tool set.
func WithTools(t ...tools.Tool) Option {
	return func(o *options) { o.tools = t }
}

// WithHTTPClient sets the client used for key fetches and tool upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock overrides the time source used for tokens and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a new Gateway from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	gw := &Gateway{
		config: cfg,
		logger: logger.With("component", "gateway"),
	}

	authn, err := gw.buildAuthenticator(o, logger)
	if err != nil {
		return nil, err
	}

	toolset := o.tools
	if toolset == nil {
		toolset = builtins.All(builtins.Config{
			ServerName:      cfg.Server.Name,
			WeatherAPIKey:   cfg.Tools.WeatherAPIKey,
			GatewayURL:      cfg.Tools.GatewayURL,
			Organization:    cfg.Tools.Organization,
			UpstreamTimeout: cfg.Tools.UpstreamTimeout,
			HTTPClient:      o.httpClient,
			Now:             o.now,
			Logger:          logger.With("component", "builtins"),
		})
	}
	gw.registry, err = tools.NewRegistry(tools.Options{
		Timeout: cfg.Tools.Timeout,
		Logger:  logger.With("component", "tools"),
	}, toolset...)
	if err != nil {
		return nil, fmt.Errorf("creating tool registry: %w", err)
	}

	gw.mcpServer, err = mcp.NewServer(mcp.Config{
		Metadata: mcp.Metadata{
			Name:        cfg.Server.Name,
			Version:     cfg.Server.Version,
			Description: cfg.Server.Description,
		},
		Registry:      gw.registry,
		Authenticator: authn,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		Logger:        logger.With("component", "mcp"),
		Now:           o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw.router = gw.newRouter()
	gw.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           gw.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// buildAuthenticator selects the authentication strategy once for the process.
func (g *Gateway) buildAuthenticator(o options, logger *slog.Logger) (auth.Authenticator, error) {
	authOpts := auth.Options{
		DevBypass:     g.config.AuthDisabled(),
		ExposeReasons: g.config.IsDevelopment(),
		Logger:        logger.With("component", "auth"),
	}
	if authOpts.DevBypass {
		return auth.NewAuthenticator(authOpts, nil)
	}

	keys, err := auth.NewJWKSCache(auth.JWKSCacheConfig{
		URL:               g.config.Auth.JWKSURL,
		TTL:               g.config.Auth.KeyCacheTTL,
		Size:              g.config.Auth.KeyCacheSize,
		RequestsPerMinute: g.config.Auth.JWKSRequestsPerMinute,
		Timeout:           g.config.Auth.JWKSTimeout,
		HTTPClient:        o.httpClient,
		Logger:            logger.With("component", "keycache"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating key cache: %w", err)
	}
	g.keys = keys

	verifier, err := auth.NewVerifier(keys, auth.VerifierConfig{
		Issuer:   g.config.Auth.Issuer,
		Audience: g.config.Auth.Audience,
		Now:      o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}
	return auth.NewAuthenticator(authOpts, verifier)
}

// Handler returns the fully wrapped HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Registry returns the tool registry served by this gateway.
func (g *Gateway) Registry() *tools.Registry {
	return g.registry
}

// Run listens on the configured port and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway",
		"addr", ln.Addr().String(),
		"server", g.config.Server.Name,
		"environment", g.config.Server.Environment,
		"tools", g.registry.Len(),
		"auth_disabled", g.config.AuthDisabled(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context because the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	grace := g.config.Server.ShutdownGrace
	if grace <= 0 {
		grace = config.DefaultShutdownGrace
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}
