// ABOUTME: Offline tools: ping, echo, and datetime
// ABOUTME: Useful for checking connectivity and argument handling end to end

package builtins

import (
	"context"
	"encoding/json"
	"time"
	_ "time/tzdata" // zone data for minimal container images

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/tools"
)

func (h *handlers) pingTool() tools.Tool {
	return tools.Tool{
		Name:        "ping",
		Description: "Check that the server is responding",
		InputSchema: tools.ObjectSchema(nil),
		Handler:     h.Ping,
	}
}

func (h *handlers) echoTool() tools.Tool {
	return tools.Tool{
		Name:        "echo",
		Description: "Echo back the provided text",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"text": {
				Type:        "string",
				Description: "Text to echo back",
				MaxLength:   ptr(10000),
			},
		}, "text"),
		Handler: h.Echo,
	}
}

func (h *handlers) datetimeTool() tools.Tool {
	return tools.Tool{
		Name:        "datetime",
		Description: "Get the current date and time in a timezone",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"timezone": {
				Type:        "string",
				Description: "IANA timezone name, e.g. America/New_York",
				Default:     defaultValue("UTC"),
				MaxLength:   ptr(64),
			},
			"format": {
				Type:        "string",
				Description: "Output format",
				Enum:        []any{"iso", "unix", "human"},
				Default:     defaultValue("iso"),
			},
		}),
		Handler: h.Datetime,
	}
}

// Ping returns a pong with the server time.
func (h *handlers) Ping(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{
		"message":   "pong",
		"timestamp": h.timestamp(),
	}, nil
}

type echoArgs struct {
	Text string `json:"text"`
}

// EchoResult is the output of the echo tool.
type EchoResult struct {
	Echo      string `json:"echo"`
	Length    int    `json:"length"`
	Timestamp string `json:"timestamp"`
}

// Echo returns the input text with its length.
func (h *handlers) Echo(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[echoArgs](args)
	if err != nil {
		return nil, err
	}
	return EchoResult{
		Echo:      in.Text,
		Length:    len([]rune(in.Text)),
		Timestamp: h.timestamp(),
	}, nil
}

type datetimeArgs struct {
	Timezone string `json:"timezone"`
	Format   string `json:"format"`
}

// Datetime returns the current time rendered in the requested zone and format.
func (h *handlers) Datetime(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[datetimeArgs](args)
	if err != nil {
		return nil, err
	}
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if in.Format == "" {
		in.Format = "iso"
	}

	loc, err := time.LoadLocation(in.Timezone)
	if err != nil {
		return nil, apierr.InvalidParamsf("Unknown timezone: %s", in.Timezone)
	}

	now := h.cfg.Now().In(loc)

	var rendered any
	switch in.Format {
	case "unix":
		rendered = now.Unix()
	case "human":
		rendered = now.Format("Monday, January 2, 2006 3:04:05 PM MST")
	default:
		rendered = now.Format(time.RFC3339)
	}

	_, offset := now.Zone()
	return map[string]any{
		"datetime":       rendered,
		"timezone":       in.Timezone,
		"format":         in.Format,
		"utc_offset_sec": offset,
		"unix":           now.Unix(),
	}, nil
}
