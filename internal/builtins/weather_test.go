// ABOUTME: Tests for the weather tool against a fake OpenWeatherMap
// ABOUTME: Checks query construction, unit labels, forecast, and degraded payloads

package builtins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-runtime/internal/apierr"
)

const currentWeatherBody = `{
	"name": "Paris",
	"coord": {"lat": 48.85, "lon": 2.35},
	"sys": {"country": "FR"},
	"main": {"temp": 11.6, "feels_like": 10.2, "humidity": 81, "pressure": 1012},
	"weather": [{"description": "light rain", "icon": "10d"}],
	"wind": {"speed": 4.1, "deg": 240},
	"visibility": 10000
}`

const forecastBody = `{"list": [
	{"dt_txt": "2024-01-15 15:00:00", "main": {"temp": 12.4, "humidity": 75}, "weather": [{"description": "overcast clouds"}]},
	{"dt_txt": "2024-01-15 18:00:00", "main": {"temp": 9.5, "humidity": 80}, "weather": [{"description": "clear sky"}]}
]}`

type fakeOWM struct {
	*httptest.Server
	mu       sync.Mutex
	queries  map[string]url.Values
	current  int
	forecast int
}

func newFakeOWM(t *testing.T, current, forecast int) *fakeOWM {
	t.Helper()
	f := &fakeOWM{queries: map[string]url.Values{}, current: current, forecast: forecast}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries[r.URL.Path] = r.URL.Query()
		f.mu.Unlock()

		switch r.URL.Path {
		case "/weather":
			w.WriteHeader(f.current)
			_, _ = w.Write([]byte(currentWeatherBody))
		case "/forecast":
			w.WriteHeader(f.forecast)
			_, _ = w.Write([]byte(forecastBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOWM) query(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[path]
}

func weatherHandlers(srvURL string) *handlers {
	cfg := testConfig()
	cfg.WeatherAPIKey = "owm-key"
	cfg.WeatherURL = srvURL
	return newHandlers(cfg)
}

func TestWeather_NotConfigured(t *testing.T) {
	h := newHandlers(testConfig())

	got := call(t, h.Weather, `{"location":"Paris"}`)
	assert.Equal(t, "Weather API not configured", got["error"])
	assert.Equal(t, false, got["available"])
	assert.NotEmpty(t, got["setup_instructions"])

	requested := got["requested"].(map[string]any)
	assert.Equal(t, "Paris", requested["location"])
	assert.Equal(t, "metric", requested["units"])
}

func TestWeather_Current(t *testing.T) {
	owm := newFakeOWM(t, http.StatusOK, http.StatusOK)
	h := weatherHandlers(owm.URL)

	got := call(t, h.Weather, `{"location":"Paris"}`)
	assert.Equal(t, true, got["available"])
	assert.NotContains(t, got, "forecast")

	location := got["location"].(map[string]any)
	assert.Equal(t, "Paris", location["name"])
	assert.Equal(t, "FR", location["country"])

	current := got["current"].(map[string]any)
	assert.EqualValues(t, 12, current["temperature"])
	assert.EqualValues(t, 10, current["feels_like"])
	assert.Equal(t, "light rain", current["description"])

	units := got["units"].(map[string]any)
	assert.Equal(t, "°C", units["temperature"])

	q := owm.query("/weather")
	assert.Equal(t, "Paris", q.Get("q"))
	assert.Equal(t, "owm-key", q.Get("appid"))
	assert.Equal(t, "metric", q.Get("units"))
}

func TestWeather_KelvinMapsToStandard(t *testing.T) {
	owm := newFakeOWM(t, http.StatusOK, http.StatusOK)
	h := weatherHandlers(owm.URL)

	got := call(t, h.Weather, `{"location":"Paris","units":"kelvin"}`)
	assert.Equal(t, "standard", owm.query("/weather").Get("units"))
	assert.Equal(t, "K", got["units"].(map[string]any)["temperature"])
}

func TestWeather_Forecast(t *testing.T) {
	owm := newFakeOWM(t, http.StatusOK, http.StatusOK)
	h := weatherHandlers(owm.URL)

	got := call(t, h.Weather, `{"location":"Paris","units":"imperial","include_forecast":true}`)
	forecast := got["forecast"].([]any)
	require.Len(t, forecast, 2)
	first := forecast[0].(map[string]any)
	assert.Equal(t, "2024-01-15 15:00:00", first["datetime"])
	assert.EqualValues(t, 12, first["temperature"])
	assert.Equal(t, "overcast clouds", first["description"])
	assert.Equal(t, "5", owm.query("/forecast").Get("cnt"))
	assert.Equal(t, "mph", got["units"].(map[string]any)["wind_speed"])
}

func TestWeather_ForecastFailureKeepsCurrent(t *testing.T) {
	owm := newFakeOWM(t, http.StatusOK, http.StatusBadGateway)
	h := weatherHandlers(owm.URL)

	got := call(t, h.Weather, `{"location":"Paris","include_forecast":true}`)
	assert.Equal(t, true, got["available"])
	assert.Equal(t, "Forecast data unavailable", got["forecast_error"])
	assert.NotContains(t, got, "forecast")
}

func TestWeather_LocationNotFound(t *testing.T) {
	owm := newFakeOWM(t, http.StatusNotFound, http.StatusOK)
	h := weatherHandlers(owm.URL)

	_, err := h.Weather(context.Background(), json.RawMessage(`{"location":"Atlantis"}`))
	assert.Equal(t, apierr.CodeInvalidParams, apierr.CodeOf(err))
	assert.Contains(t, err.Error(), `"Atlantis" not found`)
}

func TestWeather_DegradedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
	}{
		{"bad key", http.StatusUnauthorized, "Invalid API key. Check your OPENWEATHER_API_KEY."},
		{"server error", http.StatusServiceUnavailable, "Weather API returned status 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owm := newFakeOWM(t, tt.status, http.StatusOK)
			h := weatherHandlers(owm.URL)

			got := call(t, h.Weather, `{"location":"Paris"}`)
			assert.Equal(t, false, got["available"])
			assert.Equal(t, "Weather service unavailable", got["error"])
			assert.Equal(t, tt.message, got["message"])
		})
	}
}

func TestWeather_Unreachable(t *testing.T) {
	owm := newFakeOWM(t, http.StatusOK, http.StatusOK)
	owm.Close()
	h := weatherHandlers(owm.URL)

	got := call(t, h.Weather, `{"location":"Paris"}`)
	assert.Equal(t, false, got["available"])
}

func TestWeather_ShortLocation(t *testing.T) {
	h := weatherHandlers("http://127.0.0.1:0")
	_, err := h.Weather(context.Background(), json.RawMessage(`{"location":"  x "}`))
	assert.Equal(t, apierr.CodeInvalidParams, apierr.CodeOf(err))
}
