// ABOUTME: Configuration loading and parsing for the MCP server runtime
// ABOUTME: Defaults, optional YAML/TOML file with ${VAR} expansion, then environment overrides

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultPort                  = "3000"
	DefaultServerName            = "mcp-server"
	DefaultServerVersion         = "1.0.0"
	DefaultJWKSURL               = "https://api.commands.com/.well-known/jwks.json"
	DefaultIssuer                = "https://api.commands.com"
	DefaultGatewayURL            = "https://api.commands.com"
	DefaultKeyCacheTTL           = 10 * time.Minute
	DefaultKeyCacheSize          = 64
	DefaultJWKSRequestsPerMinute = 5
	DefaultJWKSTimeout           = 5 * time.Second
	DefaultToolTimeout           = 30 * time.Second
	DefaultUpstreamTimeout       = 5 * time.Second
	DefaultShutdownGrace         = 10 * time.Second
	DefaultMaxBodyBytes          = 10 << 20

	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// DefaultCORSOrigins are the browser origins allowed when none are configured.
var DefaultCORSOrigins = []string{"https://commands.com", "https://api.commands.com"}

// Config is the complete runtime configuration. It is built once by Load and
// handed to each component's constructor; nothing reads the environment after that.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Tools   ToolsConfig   `yaml:"tools" toml:"tools"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener and server identity settings
type ServerConfig struct {
	Port         string   `yaml:"port" toml:"port"`
	Name         string   `yaml:"name" toml:"name"`
	Version      string   `yaml:"version" toml:"version"`
	Description  string   `yaml:"description" toml:"description"`
	Environment  string   `yaml:"environment" toml:"environment"`
	CORSOrigins  []string `yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" toml:"max_body_bytes"`

	ShutdownGrace time.Duration `yaml:"-" toml:"-"`

	// Raw string values for file unmarshaling
	ShutdownGraceRaw string `yaml:"shutdown_grace" toml:"shutdown_grace"`
}

// AuthConfig holds bearer-token verification settings
type AuthConfig struct {
	JWKSURL               string `yaml:"jwks_url" toml:"jwks_url"`
	Issuer                string `yaml:"issuer" toml:"issuer"`
	Audience              string `yaml:"audience" toml:"audience"` // empty disables the audience check
	SkipAuth              bool   `yaml:"skip_auth" toml:"skip_auth"`
	KeyCacheSize          int    `yaml:"key_cache_size" toml:"key_cache_size"`
	JWKSRequestsPerMinute int    `yaml:"jwks_requests_per_minute" toml:"jwks_requests_per_minute"`

	KeyCacheTTL time.Duration `yaml:"-" toml:"-"`
	JWKSTimeout time.Duration `yaml:"-" toml:"-"`

	KeyCacheTTLRaw string `yaml:"key_cache_ttl" toml:"key_cache_ttl"`
	JWKSTimeoutRaw string `yaml:"jwks_timeout" toml:"jwks_timeout"`
}

// ToolsConfig holds settings consumed by tool invocation and the built-in tools
type ToolsConfig struct {
	WeatherAPIKey string `yaml:"weather_api_key" toml:"weather_api_key"`
	GatewayURL    string `yaml:"gateway_url" toml:"gateway_url"`
	Organization  string `yaml:"organization" toml:"organization"`

	Timeout         time.Duration `yaml:"-" toml:"-"`
	UpstreamTimeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw         string `yaml:"timeout" toml:"timeout"`
	UpstreamTimeoutRaw string `yaml:"upstream_timeout" toml:"upstream_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// IsDevelopment reports whether the deployment is explicitly marked non-production.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvironmentDevelopment
}

// AuthDisabled reports whether the development auth bypass is in effect.
// SkipAuth is ignored outside development mode.
func (c *Config) AuthDisabled() bool {
	return c.Auth.SkipAuth && c.IsDevelopment()
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          DefaultPort,
			Name:          DefaultServerName,
			Version:       DefaultServerVersion,
			Description:   "MCP server",
			Environment:   EnvironmentProduction,
			CORSOrigins:   append([]string(nil), DefaultCORSOrigins...),
			MaxBodyBytes:  DefaultMaxBodyBytes,
			ShutdownGrace: DefaultShutdownGrace,
		},
		Auth: AuthConfig{
			JWKSURL:               DefaultJWKSURL,
			Issuer:                DefaultIssuer,
			KeyCacheSize:          DefaultKeyCacheSize,
			JWKSRequestsPerMinute: DefaultJWKSRequestsPerMinute,
			KeyCacheTTL:           DefaultKeyCacheTTL,
			JWKSTimeout:           DefaultJWKSTimeout,
		},
		Tools: ToolsConfig{
			GatewayURL:      DefaultGatewayURL,
			Timeout:         DefaultToolTimeout,
			UpstreamTimeout: DefaultUpstreamTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. If path is non-empty the file is read first
// (.toml is decoded with BurntSushi/toml, anything else as YAML); environment
// variables then override individual fields. getenv defaults to os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg, getenv); err != nil {
			return nil, err
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config, getenv func(string) string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data), getenv)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string, getenv func(string) string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyEnv overlays the enumerated environment variables onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Name, "MCP_NAME")
	setString(&cfg.Server.Version, "MCP_VERSION")
	setString(&cfg.Server.Description, "MCP_DESCRIPTION")
	setString(&cfg.Server.Environment, "MCP_ENV", "NODE_ENV")
	setString(&cfg.Auth.JWKSURL, "COMMANDS_JWKS_URL")
	setString(&cfg.Auth.Issuer, "COMMANDS_JWT_ISSUER")
	setString(&cfg.Auth.Audience, "COMMANDS_JWT_AUDIENCE")
	setString(&cfg.Tools.WeatherAPIKey, "OPENWEATHER_API_KEY", "WEATHER_API_KEY")
	setString(&cfg.Tools.GatewayURL, "GATEWAY_URL")
	setString(&cfg.Tools.Organization, "COMMANDS_ORGANIZATION")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	if v := getenv("SKIP_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SKIP_AUTH %q: %w", v, err)
		}
		cfg.Auth.SkipAuth = b
	}

	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCSV(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"KEY_CACHE_TTL", &cfg.Auth.KeyCacheTTL},
		{"JWKS_TIMEOUT", &cfg.Auth.JWKSTimeout},
		{"TOOL_TIMEOUT", &cfg.Tools.Timeout},
		{"UPSTREAM_TIMEOUT", &cfg.Tools.UpstreamTimeout},
		{"SHUTDOWN_GRACE", &cfg.Server.ShutdownGrace},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if v := getenv("JWKS_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JWKS_REQUESTS_PER_MINUTE %q: %w", v, err)
		}
		cfg.Auth.JWKSRequestsPerMinute = n
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_grace", cfg.Server.ShutdownGraceRaw, &cfg.Server.ShutdownGrace},
		{"auth.key_cache_ttl", cfg.Auth.KeyCacheTTLRaw, &cfg.Auth.KeyCacheTTL},
		{"auth.jwks_timeout", cfg.Auth.JWKSTimeoutRaw, &cfg.Auth.JWKSTimeout},
		{"tools.timeout", cfg.Tools.TimeoutRaw, &cfg.Tools.Timeout},
		{"tools.upstream_timeout", cfg.Tools.UpstreamTimeoutRaw, &cfg.Tools.UpstreamTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port %q is not a valid port", c.Server.Port)
	}

	switch c.Server.Environment {
	case EnvironmentDevelopment, EnvironmentProduction, "test", "staging":
	default:
		return fmt.Errorf("server.environment %q is not recognized", c.Server.Environment)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if !c.AuthDisabled() {
		u, err := url.Parse(c.Auth.JWKSURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("auth.jwks_url %q must be an http(s) URL", c.Auth.JWKSURL)
		}
		if c.Auth.Issuer == "" {
			return fmt.Errorf("auth.issuer is required")
		}
	}

	if c.Auth.JWKSRequestsPerMinute <= 0 {
		return fmt.Errorf("auth.jwks_requests_per_minute must be positive")
	}
	if c.Auth.KeyCacheSize <= 0 {
		return fmt.Errorf("auth.key_cache_size must be positive")
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"auth.key_cache_ttl", c.Auth.KeyCacheTTL},
		{"auth.jwks_timeout", c.Auth.JWKSTimeout},
		{"tools.timeout", c.Tools.Timeout},
		{"tools.upstream_timeout", c.Tools.UpstreamTimeout},
		{"server.shutdown_grace", c.Server.ShutdownGrace},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
