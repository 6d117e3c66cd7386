// ABOUTME: usage tool reporting the caller's limits and consumption from the gateway
// ABOUTME: Forwards the caller's bearer token; never reads credentials from the environment

package builtins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/mcp-runtime/internal/auth"
	"github.com/2389/mcp-runtime/internal/tools"
)

// UpgradeURL is offered to free-tier callers.
const UpgradeURL = "https://commands.com/subscribe"

// ScopeReadAssets gates the usage tool when the caller's token carries scopes.
const ScopeReadAssets = "read_assets"

func (h *handlers) usageTool() tools.Tool {
	return tools.Tool{
		Name:        "usage",
		Description: "Get your current usage limits and consumption from Commands.com",
		InputSchema: tools.ObjectSchema(nil),
		Handler:     h.Usage,
	}
}

type usageLimits struct {
	Tier              string  `json:"tier"`
	TotalRequestLimit float64 `json:"total_request_limit"`
	TotalTokenLimit   float64 `json:"total_token_limit"`
}

type usageCounters struct {
	DailyRequests   float64 `json:"daily_requests"`
	DailyTokens     float64 `json:"daily_tokens"`
	MonthlyRequests float64 `json:"monthly_requests"`
	MonthlyTokens   float64 `json:"monthly_tokens"`
	TotalRequests   float64 `json:"total_requests"`
	TotalTokens     float64 `json:"total_tokens"`
}

type usageStats struct {
	IsOwner         bool            `json:"is_owner"`
	HasSubscription bool            `json:"has_subscription"`
	Limits          json.RawMessage `json:"limits"`
	Usage           *usageCounters  `json:"usage"`
}

// Usage fetches usage statistics for the calling identity.
func (h *handlers) Usage(ctx context.Context, _ json.RawMessage) (any, error) {
	claims := auth.FromContext(ctx)
	if claims == nil || claims.Token == "" {
		return map[string]any{
			"error":   "Authentication required",
			"message": "This tool requires Commands.com JWT authentication",
		}, nil
	}
	if len(claims.Scopes) > 0 {
		if err := auth.RequireScope(claims, ScopeReadAssets); err != nil {
			return nil, err
		}
	}

	if h.cfg.ServerName == "" || h.cfg.Organization == "" {
		return map[string]any{
			"error":   "Configuration required",
			"message": "Server name or organization not set. Configure server.name and tools.organization (MCP_NAME, COMMANDS_ORGANIZATION)",
		}, nil
	}

	endpoint := strings.TrimRight(h.cfg.GatewayURL, "/") + "/api/" +
		url.PathEscape(h.cfg.Organization) + "/" + url.PathEscape(h.cfg.ServerName) + "/usage-stats"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+claims.Token)

	resp, err := h.get(ctx, endpoint, header)
	if err != nil {
		h.logger.Warn("usage stats request failed", "error", err)
		return map[string]any{
			"error":   "Failed to fetch usage stats",
			"details": err.Error(),
		}, nil
	}
	if resp.Status < 200 || resp.Status > 299 {
		return map[string]any{
			"error":   "Failed to get usage stats",
			"details": string(resp.Body),
			"status":  resp.Status,
		}, nil
	}

	var stats usageStats
	if err := json.Unmarshal(resp.Body, &stats); err != nil {
		return map[string]any{
			"error":   "Failed to fetch usage stats",
			"details": "invalid response from gateway: " + err.Error(),
		}, nil
	}
	return shapeUsage(stats), nil
}

func shapeUsage(stats usageStats) map[string]any {
	var limits *usageLimits
	if len(stats.Limits) > 0 && string(stats.Limits) != "null" {
		limits = &usageLimits{}
		if err := json.Unmarshal(stats.Limits, limits); err != nil {
			limits = nil
		}
	}

	tier := "unknown"
	if limits != nil && limits.Tier != "" {
		tier = limits.Tier
	}

	result := map[string]any{
		"tier":             tier,
		"is_owner":         stats.IsOwner,
		"has_subscription": stats.HasSubscription,
	}
	if limits != nil {
		result["limits"] = stats.Limits
	}

	used := usageCounters{}
	if stats.Usage != nil {
		used = *stats.Usage
		result["current_usage"] = map[string]float64{
			"daily_requests":   used.DailyRequests,
			"daily_tokens":     used.DailyTokens,
			"monthly_requests": used.MonthlyRequests,
			"monthly_tokens":   used.MonthlyTokens,
			"total_requests":   used.TotalRequests,
			"total_tokens":     used.TotalTokens,
		}
	}

	if tier == "free" {
		if limits.TotalRequestLimit > 0 {
			result["remaining"] = map[string]float64{
				"total_requests": max(0, limits.TotalRequestLimit-used.TotalRequests),
				"total_tokens":   max(0, limits.TotalTokenLimit-used.TotalTokens),
			}
		}
		result["upgrade_available"] = true
		result["upgrade_url"] = UpgradeURL
	}
	return result
}
