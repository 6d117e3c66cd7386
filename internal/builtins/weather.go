// ABOUTME: weather tool backed by OpenWeatherMap current conditions and forecast
// ABOUTME: Missing keys and outages yield structured available=false payloads, not errors

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/tools"
)

func (h *handlers) weatherTool() tools.Tool {
	return tools.Tool{
		Name:        "weather",
		Description: "Get current weather information (requires API key configuration)",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"location": {
				Type:        "string",
				Description: "City name or coordinates (lat,lng)",
				MinLength:   ptr(2),
				MaxLength:   ptr(100),
			},
			"units": {
				Type:        "string",
				Description: "Temperature units",
				Enum:        []any{"metric", "imperial", "kelvin"},
				Default:     defaultValue("metric"),
			},
			"include_forecast": {
				Type:        "boolean",
				Description: "Include basic forecast information",
				Default:     defaultValue(false),
			},
		}, "location"),
		Handler: h.Weather,
	}
}

type weatherArgs struct {
	Location        string `json:"location"`
	Units           string `json:"units"`
	IncludeForecast bool   `json:"include_forecast"`
}

type owmCurrent struct {
	Name  string `json:"name"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Visibility int `json:"visibility"`
}

type owmForecast struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// Weather reports current conditions for a location.
func (h *handlers) Weather(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[weatherArgs](args)
	if err != nil {
		return nil, err
	}
	in.Location = strings.TrimSpace(in.Location)
	if len(in.Location) < 2 {
		return nil, apierr.InvalidParams("Location must be at least 2 characters long")
	}
	if in.Units == "" {
		in.Units = "metric"
	}

	requested := map[string]any{
		"location":         in.Location,
		"units":            in.Units,
		"include_forecast": in.IncludeForecast,
	}

	if h.cfg.WeatherAPIKey == "" {
		return map[string]any{
			"error":   "Weather API not configured",
			"message": "To use the weather tool, you need to:",
			"setup_instructions": []string{
				"1. Get a free API key from OpenWeatherMap.org",
				"2. Set OPENWEATHER_API_KEY in the server environment",
				"3. Restart your server",
			},
			"requested": requested,
			"timestamp": h.timestamp(),
			"available": false,
		}, nil
	}

	unavailable := func(reason string) map[string]any {
		return map[string]any{
			"error":      "Weather service unavailable",
			"message":    reason,
			"requested":  requested,
			"timestamp":  h.timestamp(),
			"available":  false,
			"suggestion": "Check your internet connection and API key configuration",
		}
	}

	resp, err := h.get(ctx, h.weatherURL("weather", in, nil), nil)
	if err != nil {
		h.logger.Warn("weather API request failed", "error", err)
		return unavailable(err.Error()), nil
	}

	switch {
	case resp.Status == http.StatusUnauthorized:
		return unavailable("Invalid API key. Check your OPENWEATHER_API_KEY."), nil
	case resp.Status == http.StatusNotFound:
		return nil, apierr.InvalidParamsf("Location %q not found. Try a different city name or coordinates.", in.Location)
	case resp.Status < 200 || resp.Status > 299:
		return unavailable(fmt.Sprintf("Weather API returned status %d", resp.Status)), nil
	}

	var cur owmCurrent
	if err := json.Unmarshal(resp.Body, &cur); err != nil {
		return unavailable("invalid response from weather API"), nil
	}

	current := map[string]any{
		"temperature": math.Round(cur.Main.Temp),
		"feels_like":  math.Round(cur.Main.FeelsLike),
		"humidity":    cur.Main.Humidity,
		"pressure":    cur.Main.Pressure,
		"wind": map[string]any{
			"speed":     cur.Wind.Speed,
			"direction": cur.Wind.Deg,
		},
		"visibility": cur.Visibility,
	}
	if len(cur.Weather) > 0 {
		current["description"] = cur.Weather[0].Description
		current["icon"] = cur.Weather[0].Icon
	}

	result := map[string]any{
		"location": map[string]any{
			"name":    cur.Name,
			"country": cur.Sys.Country,
			"coordinates": map[string]any{
				"lat": cur.Coord.Lat,
				"lng": cur.Coord.Lon,
			},
		},
		"current":   current,
		"units":     unitLabels(in.Units),
		"timestamp": h.timestamp(),
		"available": true,
	}

	if in.IncludeForecast {
		forecast, err := h.forecast(ctx, in)
		if err != nil {
			h.logger.Debug("forecast unavailable", "error", err)
			result["forecast_error"] = "Forecast data unavailable"
		} else {
			result["forecast"] = forecast
		}
	}

	return result, nil
}

func (h *handlers) forecast(ctx context.Context, in weatherArgs) ([]map[string]any, error) {
	resp, err := h.get(ctx, h.weatherURL("forecast", in, url.Values{"cnt": {"5"}}), nil)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, fmt.Errorf("forecast API returned status %d", resp.Status)
	}

	var fc owmForecast
	if err := json.Unmarshal(resp.Body, &fc); err != nil {
		return nil, fmt.Errorf("decoding forecast: %w", err)
	}

	out := make([]map[string]any, 0, len(fc.List))
	for _, item := range fc.List {
		entry := map[string]any{
			"datetime":    item.DtTxt,
			"temperature": math.Round(item.Main.Temp),
			"humidity":    item.Main.Humidity,
		}
		if len(item.Weather) > 0 {
			entry["description"] = item.Weather[0].Description
		}
		out = append(out, entry)
	}
	return out, nil
}

func (h *handlers) weatherURL(endpoint string, in weatherArgs, extra url.Values) string {
	q := url.Values{}
	q.Set("q", in.Location)
	q.Set("appid", h.cfg.WeatherAPIKey)
	// OpenWeatherMap calls kelvin "standard".
	if in.Units == "kelvin" {
		q.Set("units", "standard")
	} else {
		q.Set("units", in.Units)
	}
	for k, vs := range extra {
		q[k] = vs
	}
	return strings.TrimRight(h.cfg.WeatherURL, "/") + "/" + endpoint + "?" + q.Encode()
}

func unitLabels(units string) map[string]string {
	labels := map[string]string{
		"temperature": "°C",
		"wind_speed":  "m/s",
		"pressure":    "hPa",
		"visibility":  "meters",
	}
	switch units {
	case "imperial":
		labels["temperature"] = "°F"
		labels["wind_speed"] = "mph"
	case "kelvin":
		labels["temperature"] = "K"
	}
	return labels
}
