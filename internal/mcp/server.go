// ABOUTME: MCP server: JSON-RPC endpoint with a closed method table plus route wiring
// ABOUTME: Authenticates every non-discovery request before any tool can run

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/auth"
	"github.com/2389/mcp-runtime/internal/tools"
)

// DefaultMaxBodyBytes bounds request bodies when Config.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 10 << 20

// Metadata describes the deployment for discovery endpoints.
type Metadata struct {
	Name        string
	Version     string
	Description string
}

// Config holds configuration for the MCP server.
type Config struct {
	Metadata      Metadata
	Registry      *tools.Registry
	Authenticator auth.Authenticator
	MaxBodyBytes  int64
	Logger        *slog.Logger
	Now           func() time.Time
}

// methodFunc handles one JSON-RPC method. Returned errors are classified
// with apierr and rendered as JSON-RPC error objects.
type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server implements the MCP JSON-RPC endpoint, the REST facade, and the
// discovery endpoints.
type Server struct {
	meta          Metadata
	registry      *tools.Registry
	authn         auth.Authenticator
	maxBody       int64
	logger        *slog.Logger
	now           func() time.Time
	methods       map[string]methodFunc
	notifications map[string]bool
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Metadata.Name == "" {
		return nil, errors.New("server name is required")
	}

	s := &Server{
		meta:     cfg.Metadata,
		registry: cfg.Registry,
		authn:    cfg.Authenticator,
		maxBody:  cfg.MaxBodyBytes,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.methods = map[string]methodFunc{
		"initialize":     s.initialize,
		"tools/list":     s.toolsList,
		"tools/call":     s.toolsCall,
		"resources/list": s.resourcesList,
		"prompts/list":   s.promptsList,
	}
	s.notifications = map[string]bool{
		"notifications/initialized": true,
	}
	return s, nil
}

// RegisterRoutes mounts every endpoint on r. Discovery routes are public;
// the JSON-RPC endpoint and tool execution require authentication.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/.well-known/mcp.json", s.handleDiscovery)
	r.Get("/", s.handleRoot)
	r.Get("/mcp/tools", s.handleListTools)

	r.With(auth.Middleware(s.authn, s.writeRPCAuthError)).Post("/", s.handleRPC)
	r.With(auth.Middleware(s.authn, s.writeRESTAuthError)).Post("/mcp/tools/{name}", s.handleCallTool)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)
}

// Handler returns a standalone router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// handleRPC processes one JSON-RPC message sent via HTTP POST.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeBodyError(err, func(status int, msg string) {
			s.sendJSONRPCError(w, status, nil, apierr.JSONRPCInvalidRequest, msg)
		})
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.sendJSONRPCError(w, http.StatusBadRequest, nil, apierr.JSONRPCInvalidRequest, "Invalid Request - batch requests are not supported")
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, http.StatusBadRequest, nil, apierr.JSONRPCParseError, "Parse error")
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, http.StatusBadRequest, req.ID, apierr.JSONRPCInvalidRequest, `Invalid Request - jsonrpc must be "2.0"`)
		return
	}
	if req.Method == "" {
		s.sendJSONRPCError(w, http.StatusBadRequest, req.ID, apierr.JSONRPCInvalidRequest, "Invalid Request - method is required")
		return
	}

	logger := s.logger.With("method", req.Method)
	if claims := auth.FromContext(r.Context()); claims != nil {
		logger = logger.With("subject", claims.Subject)
	}

	// Known notification methods are acknowledged even when a client sends an id.
	if s.notifications[req.Method] {
		logger.Debug("accepted MCP notification")
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if req.IsNotification() {
		logger.Warn("ignored notification for unsupported method")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	logger.Debug("MCP request", "id", string(req.ID))

	handle, ok := s.methods[req.Method]
	if !ok {
		s.sendJSONRPCError(w, http.StatusNotFound, req.ID, apierr.JSONRPCMethodNotFound, "Method not found: "+req.Method)
		return
	}

	result, err := handle(r.Context(), req.Params)
	if err != nil {
		ae, ok := apierr.As(err)
		if !ok {
			ae = apierr.Internal("Internal error", err)
		}
		logger.Warn("MCP request failed", "code", ae.Code, "error", err)
		s.sendJSONRPCError(w, http.StatusOK, req.ID, ae.JSONRPCCode(), ae.Message)
		return
	}
	s.sendJSONRPCResult(w, req.ID, result)
}

func (s *Server) initialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	// Client metadata is informational; malformed params do not fail the handshake.
	_ = json.Unmarshal(params, &p)
	s.logger.InfoContext(ctx, "MCP client initialized",
		"client", p.ClientInfo.Name,
		"client_version", p.ClientInfo.Version,
		"requested_protocol", p.ProtocolVersion,
	)

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      s.serverInfo(),
	}, nil
}

func (s *Server) toolsList(context.Context, json.RawMessage) (any, error) {
	return ListToolsResult{Tools: s.registry.List()}, nil
}

func (s *Server) resourcesList(context.Context, json.RawMessage) (any, error) {
	return ListResourcesResult{Resources: []any{}}, nil
}

func (s *Server) promptsList(context.Context, json.RawMessage) (any, error) {
	return ListPromptsResult{Prompts: []any{}}, nil
}

func (s *Server) toolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p CallToolParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apierr.InvalidParams("Invalid params")
		}
	}
	if p.Name == "" {
		return nil, apierr.InvalidParams("Invalid params - tool name is required")
	}

	result, err := s.registry.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		ae, _ := apierr.As(err)
		if ae == nil || ae.Code == apierr.CodeInternal {
			msg := err.Error()
			if ae != nil {
				msg = ae.Message
			}
			return nil, apierr.Internal("Tool execution failed: "+msg, err)
		}
		return nil, ae
	}

	text, err := renderText(result)
	if err != nil {
		return nil, apierr.Internal("Tool execution failed: result is not serializable", err)
	}
	return CallToolResult{Content: []Content{{Type: "text", Text: text}}}, nil
}

// renderText returns string results verbatim and everything else as JSON
// indented by two spaces.
func renderText(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func (s *Server) serverInfo() ServerInfo {
	return ServerInfo{Name: s.meta.Name, Version: s.meta.Version}
}

// errBodyTooLarge marks a request body over the configured limit.
var errBodyTooLarge = errors.New("request body too large")

// readBody reads the whole request body, bounded by the server limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return body, nil
}

// writeBodyError reports a body read failure through the endpoint's error shape.
func (s *Server) writeBodyError(err error, send func(status int, msg string)) {
	if errors.Is(err, errBodyTooLarge) {
		send(http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	s.logger.Warn("failed to read request body", "error", err)
	send(http.StatusBadRequest, "Failed to read request body")
}

func (s *Server) writeRPCAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	s.sendJSONRPCError(w, http.StatusUnauthorized, nil, apierr.JSONRPCInvalidRequest, authMessage(err))
}

func (s *Server) writeRESTAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	s.sendRESTError(w, http.StatusUnauthorized, authMessage(err), nil)
}

func authMessage(err error) string {
	if ae, ok := apierr.As(err); ok && ae.Message != "" {
		return ae.Message
	}
	return "Authentication required"
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.writeJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendJSONRPCError sends a JSON-RPC error response with the given HTTP status.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	s.writeJSON(w, status, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
