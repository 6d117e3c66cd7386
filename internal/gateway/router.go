// ABOUTME: HTTP router and middleware stack in front of the MCP server
// ABOUTME: Request IDs, access logging, panic recovery, security headers, CORS, body limits

package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/mcp-runtime/internal/mcp"
)

const corsMaxAge = 10 * time.Minute

func (g *Gateway) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(g.logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(g.corsHandler())
	maxBody := g.config.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = mcp.DefaultMaxBodyBytes
	}
	r.Use(middleware.RequestSize(maxBody))

	g.mcpServer.RegisterRoutes(r)
	return r
}

func (g *Gateway) corsHandler() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   g.config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int(corsMaxAge.Seconds()),
	}
	// Credentials cannot be combined with a wildcard origin.
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			opts.AllowCredentials = false
			break
		}
	}
	return cors.Handler(opts)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request. Headers are never logged so bearer
// tokens stay out of the logs.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				attrs := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote_addr", r.RemoteAddr,
				}
				level := slog.LevelInfo
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelWarn
				}
				logger.Log(r.Context(), level, "http request", attrs...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
