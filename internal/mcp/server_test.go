// ABOUTME: Tests for the JSON-RPC endpoint including auth, routing, and tool errors.
// ABOUTME: Runs against real signed tokens verified through an httptest JWKS server.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/auth"
	"github.com/2389/mcp-runtime/internal/auth/authtest"
	"github.com/2389/mcp-runtime/internal/builtins"
	"github.com/2389/mcp-runtime/internal/tools"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	handler http.Handler
	key     *authtest.Key
	jwks    *authtest.Server
	invoked atomic.Int32
}

type fixtureOptions struct {
	devBypass    bool
	toolTimeout  time.Duration
	maxBodyBytes int64
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture serves ping and echo from the built-in set plus test tools that
// exercise each failure class. Every handler bumps f.invoked.
func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	f := &fixture{key: authtest.NewRSA(t, "key-1")}
	f.jwks = authtest.NewServer(t, f.key)

	counted := func(fn tools.Handler) tools.Handler {
		return func(ctx context.Context, args json.RawMessage) (any, error) {
			f.invoked.Add(1)
			return fn(ctx, args)
		}
	}

	toolset := builtins.Basic(builtins.Config{
		ServerName: "test-server",
		Now:        func() time.Time { return fixedNow },
		Logger:     quietLogger(),
	})[:2]
	toolset = append(toolset,
		tools.Tool{Name: "whoami", Description: "Return the caller subject", Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return auth.FromContext(ctx).Subject, nil
		}},
		tools.Tool{Name: "boom", Description: "Always fails", Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New("upstream exploded")
		}},
		tools.Tool{Name: "panics", Description: "Always panics", Handler: func(context.Context, json.RawMessage) (any, error) {
			panic("kaboom")
		}},
		tools.Tool{Name: "picky", Description: "Rejects its input", Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, apierr.InvalidParams("Location not found: Atlantis")
		}},
		tools.Tool{Name: "secure", Description: "Requires read_assets", Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			if err := auth.RequireScope(auth.FromContext(ctx), "read_assets"); err != nil {
				return nil, err
			}
			return map[string]string{"secret": "42"}, nil
		}},
		tools.Tool{Name: "slow", Description: "Never finishes in time", Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	)
	for i := range toolset {
		toolset[i].Handler = counted(toolset[i].Handler)
	}

	timeout := opts.toolTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	registry, err := tools.NewRegistry(tools.Options{Timeout: timeout, Logger: quietLogger()}, toolset...)
	require.NoError(t, err)

	var verifier auth.TokenVerifier
	if !opts.devBypass {
		cache, err := auth.NewJWKSCache(auth.JWKSCacheConfig{
			URL:               f.jwks.JWKSURL(),
			TTL:               time.Minute,
			RequestsPerMinute: 10,
			Logger:            quietLogger(),
		})
		require.NoError(t, err)
		verifier, err = auth.NewVerifier(cache, auth.VerifierConfig{Issuer: authtest.Issuer})
		require.NoError(t, err)
	}
	authn, err := auth.NewAuthenticator(auth.Options{DevBypass: opts.devBypass, Logger: quietLogger()}, verifier)
	require.NoError(t, err)

	server, err := NewServer(Config{
		Metadata:      Metadata{Name: "test-server", Version: "1.2.3", Description: "Test MCP server"},
		Registry:      registry,
		Authenticator: authn,
		MaxBodyBytes:  opts.maxBodyBytes,
		Logger:        quietLogger(),
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	f.handler = server.Handler()
	return f
}

func (f *fixture) token(t *testing.T, extra map[string]any) string {
	t.Helper()
	claims := authtest.Claims("user-1", time.Hour)
	for k, v := range extra {
		claims[k] = v
	}
	return f.key.Sign(t, claims)
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *JSONRPCError   `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func (f *fixture) rpc(t *testing.T, token, body string) (*httptest.ResponseRecorder, rpcReply) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/", token, body)
	var reply rpcReply
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reply), rr.Body.String())
	}
	return rr, reply
}

func callResultText(t *testing.T, reply rpcReply) string {
	t.Helper()
	require.Nil(t, reply.Error)
	var result CallToolResult
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	return result.Content[0].Text
}

func TestRPC_ToolsList(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rr, reply := f.rpc(t, f.token(t, nil), `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "2.0", reply.JSONRPC)
	assert.JSONEq(t, `1`, string(reply.ID))
	require.Nil(t, reply.Error)

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &result))

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.InputSchema)
	}
	assert.Equal(t, []string{"ping", "echo", "whoami", "boom", "panics", "picky", "secure", "slow"}, names)
	assert.Zero(t, f.invoked.Load())
}

func TestRPC_ToolsListMatchesREST(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, reply := f.rpc(t, f.token(t, nil), `{"jsonrpc":"2.0","method":"tools/list","id":"a"}`)
	rest := f.do(t, http.MethodGet, "/mcp/tools", "", "")
	require.Equal(t, http.StatusOK, rest.Code)

	assert.JSONEq(t, string(reply.Result), rest.Body.String())
}

func TestRPC_ToolsCallEcho(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, reply := f.rpc(t, f.token(t, nil),
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}},"id":2}`)
	assert.JSONEq(t, `2`, string(reply.ID))

	want, err := json.MarshalIndent(builtins.EchoResult{
		Echo:      "hi",
		Length:    2,
		Timestamp: "2024-01-15T12:00:00.000Z",
	}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, string(want), callResultText(t, reply))
}

func TestRPC_ToolsCallStringResultVerbatim(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, reply := f.rpc(t, f.token(t, nil),
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"whoami"},"id":3}`)
	assert.Equal(t, "user-1", callResultText(t, reply))
}

func TestRPC_ToolsCallUnknownTool(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	for _, params := range []string{
		`{"name":"nope"}`,
		`{"name":"nope","arguments":{"x":1}}`,
		`{}`,
		`{"name":""}`,
	} {
		t.Run(params, func(t *testing.T) {
			rr, reply := f.rpc(t, f.token(t, nil),
				`{"jsonrpc":"2.0","method":"tools/call","params":`+params+`,"id":4}`)
			assert.Equal(t, http.StatusOK, rr.Code)
			require.NotNil(t, reply.Error)
			assert.Equal(t, apierr.JSONRPCInvalidParams, reply.Error.Code)
		})
	}

	_, reply := f.rpc(t, f.token(t, nil), `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nope"},"id":4}`)
	assert.Equal(t, "Tool not found: nope", reply.Error.Message)
	assert.Zero(t, f.invoked.Load())
}

func TestRPC_RejectsBadVersion(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	token := f.token(t, nil)

	for _, version := range []string{``, `"jsonrpc":"1.0",`, `"jsonrpc":2,`} {
		for _, method := range []string{"tools/call", "tools/list", "initialize", "bogus"} {
			body := `{` + version + `"method":"` + method + `","params":{"name":"echo","arguments":{"text":"x"}},"id":5}`
			t.Run(body, func(t *testing.T) {
				rr, reply := f.rpc(t, token, body)
				if version == `"jsonrpc":2,` {
					// A non-string version does not even decode.
					assert.Equal(t, http.StatusBadRequest, rr.Code)
					require.NotNil(t, reply.Error)
					assert.Equal(t, apierr.JSONRPCParseError, reply.Error.Code)
					return
				}
				assert.Equal(t, http.StatusBadRequest, rr.Code)
				require.NotNil(t, reply.Error)
				assert.Equal(t, apierr.JSONRPCInvalidRequest, reply.Error.Code)
				assert.JSONEq(t, `5`, string(reply.ID))
			})
		}
	}
	assert.Zero(t, f.invoked.Load())
}

func TestRPC_ParseErrors(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{"jsonrpc":`, apierr.JSONRPCParseError},
		{"empty body", ``, apierr.JSONRPCParseError},
		{"batch", `[{"jsonrpc":"2.0","method":"tools/list","id":1}]`, apierr.JSONRPCInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, apierr.JSONRPCInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, reply := f.rpc(t, f.token(t, nil), tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.code, reply.Error.Code)
		})
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rr, reply := f.rpc(t, f.token(t, nil), `{"jsonrpc":"2.0","method":"resources/read","id":6}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.NotNil(t, reply.Error)
	assert.Equal(t, apierr.JSONRPCMethodNotFound, reply.Error.Code)
	assert.Equal(t, "Method not found: resources/read", reply.Error.Message)
	assert.JSONEq(t, `6`, string(reply.ID))
}

func TestRPC_Notifications(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	token := f.token(t, nil)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"x"}}}`,
		`{"jsonrpc":"2.0","method":"tools/list","id":null}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized","id":7}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized","id":0}`,
	} {
		rr := f.do(t, http.MethodPost, "/", token, body)
		assert.Equal(t, http.StatusAccepted, rr.Code, body)
		assert.Zero(t, rr.Body.Len(), body)
	}
	assert.Zero(t, f.invoked.Load(), "notifications never invoke tools")
}

func TestRPC_Initialize(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, reply := f.rpc(t, f.token(t, nil),
		`{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"cli","version":"0.1"}},"id":0}`)
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `0`, string(reply.ID))
	assert.JSONEq(t, `{
		"protocolVersion": "2024-11-05",
		"capabilities": {"tools": {}, "resources": {}, "prompts": {}},
		"serverInfo": {"name": "test-server", "version": "1.2.3"}
	}`, string(reply.Result))
}

func TestRPC_EmptyCollections(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, reply := f.rpc(t, f.token(t, nil), `{"jsonrpc":"2.0","method":"resources/list","id":7}`)
	assert.JSONEq(t, `{"resources":[]}`, string(reply.Result))

	_, reply = f.rpc(t, f.token(t, nil), `{"jsonrpc":"2.0","method":"prompts/list","id":8}`)
	assert.JSONEq(t, `{"prompts":[]}`, string(reply.Result))
}

func TestRPC_ToolErrors(t *testing.T) {
	f := newFixture(t, fixtureOptions{toolTimeout: 50 * time.Millisecond})
	token := f.token(t, map[string]any{"scp": []string{"write_assets"}})

	tests := []struct {
		tool    string
		code    int
		message string
	}{
		{"boom", apierr.JSONRPCInternalError, "Tool execution failed: upstream exploded"},
		{"panics", apierr.JSONRPCInternalError, "Tool execution failed: tool panicked"},
		{"picky", apierr.JSONRPCInvalidParams, "Location not found: Atlantis"},
		{"secure", apierr.JSONRPCInvalidRequest, "missing required scope: read_assets"},
		{"slow", apierr.JSONRPCInternalError, "Tool execution failed: tool execution timed out"},
		{"echo", apierr.JSONRPCInvalidParams, ""},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			rr, reply := f.rpc(t, token, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"`+tt.tool+`","arguments":{}},"id":9}`)
			assert.Equal(t, http.StatusOK, rr.Code)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.code, reply.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, reply.Error.Message)
			}
		})
	}
}

func TestRPC_ToolFailureIsolated(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	token := f.token(t, nil)

	_, reply := f.rpc(t, token, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"panics"},"id":1}`)
	require.NotNil(t, reply.Error)

	_, reply = f.rpc(t, token, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"whoami"},"id":2}`)
	assert.Equal(t, "user-1", callResultText(t, reply))
}

func TestRPC_ScopeGrantsAccess(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	for _, extra := range []map[string]any{
		{"scp": []string{"read_assets"}},
		{"scope": "openid read_assets"},
	} {
		_, reply := f.rpc(t, f.token(t, extra), `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"secure"},"id":1}`)
		assert.JSONEq(t, `{"secret":"42"}`, callResultText(t, reply))
	}
}

func TestRPC_RequiresAuthentication(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	expired := f.key.Sign(t, authtest.Claims("user-1", -time.Minute))
	other := authtest.NewRSA(t, "key-1").Sign(t, authtest.Claims("user-1", time.Hour))

	tokens := map[string]string{
		"missing": "",
		"garbage": "not-a-jwt",
		"expired": expired,
		"forged":  other,
	}
	bodies := []string{
		`{"jsonrpc":"2.0","method":"tools/list","id":1}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"x"}},"id":1}`,
		`{"jsonrpc":"1.0"}`,
		`not json`,
		``,
	}

	for name, token := range tokens {
		for _, body := range bodies {
			rr, reply := f.rpc(t, token, body)
			assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", name, body)
			require.NotNil(t, reply.Error)
			assert.Equal(t, apierr.JSONRPCInvalidRequest, reply.Error.Code)
			assert.Equal(t, "null", string(reply.ID))
		}
	}

	_, reply := f.rpc(t, "", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, "Authentication required", reply.Error.Message)
	assert.Zero(t, f.invoked.Load())
}

func TestRPC_DevBypass(t *testing.T) {
	f := newFixture(t, fixtureOptions{devBypass: true})

	_, reply := f.rpc(t, "", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"whoami"},"id":1}`)
	assert.Equal(t, "dev-user", callResultText(t, reply))
	assert.Zero(t, f.jwks.Hits())
}

func TestRPC_BodyTooLarge(t *testing.T) {
	f := newFixture(t, fixtureOptions{maxBodyBytes: 64})

	body := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"text":"` +
		strings.Repeat("x", 128) + `"}},"id":1}`
	rr, reply := f.rpc(t, f.token(t, nil), body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.NotNil(t, reply.Error)
	assert.Equal(t, apierr.JSONRPCInvalidRequest, reply.Error.Code)
	assert.Zero(t, f.invoked.Load())
}

func TestRPC_ConcurrentCallsFetchKeysOnce(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	token := f.token(t, nil)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	const n = 8
	errs := make(chan error, n)
	for range n {
		go func() {
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/", bytes.NewBufferString(
				`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"whoami"},"id":1}`))
			if err != nil {
				errs <- err
				return
			}
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- errors.New(resp.Status)
				return
			}
			errs <- nil
		}()
	}
	for range n {
		assert.NoError(t, <-errs)
	}
	assert.EqualValues(t, 1, f.jwks.Hits())
	assert.EqualValues(t, n, f.invoked.Load())
}

func TestRenderText(t *testing.T) {
	text, err := renderText("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", text)

	text, err = renderText(map[string]string{"html": "<b>&</b>"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"html\": \"<b>&</b>\"\n}", text)

	_, err = renderText(func() {})
	assert.Error(t, err)
}

func TestNewServer_Validation(t *testing.T) {
	registry, err := tools.NewRegistry(tools.Options{})
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(auth.Options{DevBypass: true, Logger: quietLogger()}, nil)
	require.NoError(t, err)

	_, err = NewServer(Config{Metadata: Metadata{Name: "x"}, Authenticator: authn})
	assert.Error(t, err)
	_, err = NewServer(Config{Metadata: Metadata{Name: "x"}, Registry: registry})
	assert.Error(t, err)
	_, err = NewServer(Config{Registry: registry, Authenticator: authn})
	assert.Error(t, err)
}
