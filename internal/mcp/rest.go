// ABOUTME: REST facade and public discovery endpoints of the MCP server
// ABOUTME: Health, well-known document, root info, tool listing, and direct tool execution

package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/auth"
)

// Discovery document constants.
const (
	Vendor  = "Commands.com"
	License = "MIT"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// DiscoveryDocument is served at /.well-known/mcp.json.
type DiscoveryDocument struct {
	SchemaVersion string       `json:"schemaVersion"`
	Vendor        string       `json:"vendor"`
	Name          string       `json:"name"`
	Version       string       `json:"version"`
	Description   string       `json:"description"`
	License       string       `json:"license"`
	Capabilities  Capabilities `json:"capabilities"`
	ServerInfo    ServerInfo   `json:"serverInfo"`
}

// HealthResponse is served at /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Server    string `json:"server"`
	Version   string `json:"version"`
}

// RootInfo is served at GET /.
type RootInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Endpoints   map[string]string `json:"endpoints"`
	Tools       []string          `json:"tools"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: s.now().UTC().Format(timestampLayout),
		Server:    s.meta.Name,
		Version:   s.meta.Version,
	})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, DiscoveryDocument{
		SchemaVersion: ProtocolVersion,
		Vendor:        Vendor,
		Name:          s.meta.Name,
		Version:       s.meta.Version,
		Description:   s.meta.Description,
		License:       License,
		ServerInfo:    s.serverInfo(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.registry.List()
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name + " - " + d.Description
	}

	s.writeJSON(w, http.StatusOK, RootInfo{
		Name:        s.meta.Name,
		Description: s.meta.Description,
		Version:     s.meta.Version,
		Endpoints: map[string]string{
			"health":    "/health",
			"discovery": "/.well-known/mcp.json",
			"tools":     "/mcp/tools",
			"execute":   "/mcp/tools/:toolName",
			"jsonrpc":   "POST /",
		},
		Tools: names,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, ListToolsResult{Tools: s.registry.List()})
}

// handleCallTool executes a tool directly and returns {result} without the
// JSON-RPC envelope.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := s.readBody(w, r)
	if err != nil {
		s.writeBodyError(err, func(status int, msg string) {
			s.sendRESTError(w, status, msg, nil)
		})
		return
	}

	var req RESTCallRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.sendRESTError(w, http.StatusBadRequest, "Invalid JSON body", nil)
			return
		}
	}

	if _, ok := s.registry.Find(name); !ok {
		s.sendRESTError(w, http.StatusNotFound, "Tool '"+name+"' not found", nil)
		return
	}

	logger := s.logger.With("tool_name", name)
	if claims := auth.FromContext(r.Context()); claims != nil {
		logger = logger.With("subject", claims.Subject)
	}
	logger.Debug("REST tool execution")

	result, err := s.registry.Call(r.Context(), name, req.Params)
	if err != nil {
		ae, ok := apierr.As(err)
		if !ok {
			ae = apierr.Internal(err.Error(), err)
		}
		switch ae.Code {
		case apierr.CodeInvalidParams, apierr.CodeForbidden:
			s.sendRESTError(w, ae.HTTPStatus(), ae.Message, nil)
		default:
			logger.Error("tool execution failed", "error", err)
			s.sendRESTError(w, http.StatusInternalServerError, "Internal server error", map[string]string{"tool": name})
		}
		return
	}

	s.writeJSON(w, http.StatusOK, RESTCallResponse{Result: result})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, RESTError{Error: RESTErrorBody{
		Code:    http.StatusNotFound,
		Message: "Endpoint not found",
		Path:    r.URL.RequestURI(),
	}})
}

func (s *Server) sendRESTError(w http.ResponseWriter, status int, message string, data any) {
	s.writeJSON(w, status, RESTError{Error: RESTErrorBody{
		Code:    status,
		Message: message,
		Data:    data,
	}})
}
