// ABOUTME: Built-in demonstration tools shipped with the MCP server runtime
// ABOUTME: Shared configuration, upstream HTTP helper, and argument decoding

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/tools"
)

// Default upstream endpoints.
const (
	DefaultCatFactURL = "https://catfact.ninja"
	DefaultWeatherURL = "https://api.openweathermap.org/data/2.5"
)

const (
	userAgent      = "mcp-runtime/1.0"
	maxUpstreamLen = 1 << 20

	// isoMillis matches the millisecond UTC timestamps clients already parse.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// Config carries everything the built-in tools need. Handlers never read the
// process environment.
type Config struct {
	ServerName      string
	WeatherAPIKey   string
	GatewayURL      string
	Organization    string
	UpstreamTimeout time.Duration

	// Overridable upstream base URLs.
	CatFactURL string
	WeatherURL string

	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *slog.Logger
}

type handlers struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func newHandlers(cfg Config) *handlers {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Second
	}
	if cfg.CatFactURL == "" {
		cfg.CatFactURL = DefaultCatFactURL
	}
	if cfg.WeatherURL == "" {
		cfg.WeatherURL = DefaultWeatherURL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.UpstreamTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &handlers{cfg: cfg, client: client, logger: logger}
}

// All returns every built-in tool in display order.
func All(cfg Config) []tools.Tool {
	h := newHandlers(cfg)
	return []tools.Tool{
		h.pingTool(),
		h.echoTool(),
		h.datetimeTool(),
		h.catFactTool(),
		h.weatherTool(),
		h.usageTool(),
		h.jsonParseTool(),
		h.csvProcessTool(),
	}
}

// Basic returns the tools that need no network access.
func Basic(cfg Config) []tools.Tool {
	h := newHandlers(cfg)
	return []tools.Tool{
		h.pingTool(),
		h.echoTool(),
		h.datetimeTool(),
	}
}

func (h *handlers) timestamp() string {
	return h.cfg.Now().UTC().Format(isoMillis)
}

// decodeArgs unmarshals tool arguments into T.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(args, &v); err != nil {
		return v, apierr.InvalidParamsf("invalid arguments: %v", err)
	}
	return v, nil
}

// upstreamResponse is a fully-read upstream reply.
type upstreamResponse struct {
	Status int
	Body   []byte
}

// get performs a bounded GET against an upstream service.
func (h *handlers) get(ctx context.Context, url string, header http.Header) (*upstreamResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.UpstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamLen))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &upstreamResponse{Status: resp.StatusCode, Body: body}, nil
}

func ptr[T any](v T) *T { return &v }

func defaultValue(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
