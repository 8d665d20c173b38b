// Package config provides application configuration for the gateway.
//
// Configuration is loaded from environment variables with sensible
// defaults, following the same getEnv*/Validate pattern the rest of this
// codebase's teacher lineage uses. All timeouts and operational parameters
// are configurable; see spec §6.4 for the exact recognized option set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment mode, NODE_ENV in spec §6.4.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// SessionConfig holds Session Manager / Upstream Adapter timing knobs.
type SessionConfig struct {
	SessionDir           string
	ConnectTimeout       time.Duration // WHATSAPP_TIMEOUT
	QRTimeout            time.Duration // QR_TIMEOUT
	MaxReconnectAttempts int           // MAX_RECONNECT_ATTEMPTS
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	Window     time.Duration
	MaxRequest int
}

// UploadConfig holds multipart upload configuration for send-media.
type UploadConfig struct {
	MaxFileSizeBytes int64
	Dir              string
}

// AutoWebhookConfig describes an operator-wide sink auto-registered onto
// every newly created session, per spec §6.4 LOCAI_WEBHOOK_URL.
type AutoWebhookConfig struct {
	URL    string
	Secret string
}

// Config holds all gateway configuration.
type Config struct {
	Env     Environment
	Port    string
	Host    string
	BaseURL string

	JWTSecret      string
	APIKey         string
	RequireAuth    bool
	AllowedOrigins []string
	LogLevel       string

	BridgeURL string // UPSTREAM_BRIDGE_URL: ws(s):// endpoint of the chat-network bridge process

	Session     SessionConfig
	RateLimit   RateLimitConfig
	Upload      UploadConfig
	AutoWebhook AutoWebhookConfig
	CacheTTL    time.Duration
}

// Load reads configuration from environment variables and validates it.
// Invalid configuration terminates the process at start, per spec §6.4.
func Load() (*Config, error) {
	env := Environment(getEnv("NODE_ENV", "development"))

	cfg := &Config{
		Env:     env,
		Port:    getEnv("PORT", "8080"),
		Host:    getEnv("HOST", "0.0.0.0"),
		BaseURL: getEnv("BASE_URL", ""),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		APIKey:         getEnv("API_KEY", ""),
		RequireAuth:    getEnvBool("REQUIRE_AUTH", true),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		BridgeURL: getEnv("UPSTREAM_BRIDGE_URL", "ws://localhost:9090/bridge"),

		Session: SessionConfig{
			SessionDir:           getEnv("WHATSAPP_SESSION_DIR", "./data/sessions"),
			ConnectTimeout:       getEnvDuration("WHATSAPP_TIMEOUT", 60*time.Second),
			QRTimeout:            getEnvDuration("QR_TIMEOUT", 120*time.Second),
			MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		},
		RateLimit: RateLimitConfig{
			Window:     getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxRequest: getEnvInt("RATE_LIMIT_MAX", 60),
		},
		Upload: UploadConfig{
			MaxFileSizeBytes: getEnvInt64("MAX_FILE_SIZE", 10*1024*1024),
			Dir:              getEnv("UPLOAD_DIR", "./data/uploads"),
		},
		AutoWebhook: AutoWebhookConfig{
			URL:    getEnv("LOCAI_WEBHOOK_URL", ""),
			Secret: getEnv("LOCAI_WEBHOOK_SECRET", ""),
		},
		CacheTTL: getEnvDuration("CACHE_TTL", 300*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and
// internally consistent, per spec §6.4.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Session.SessionDir == "" {
		return fmt.Errorf("WHATSAPP_SESSION_DIR cannot be empty")
	}
	if c.RequireAuth {
		minSecret := 32
		if c.Env == EnvProduction {
			minSecret = 64
		}
		if c.JWTSecret != "" && len(c.JWTSecret) < minSecret {
			return fmt.Errorf("JWT_SECRET must be at least %d chars", minSecret)
		}
		if c.APIKey != "" && len(c.APIKey) < 16 {
			return fmt.Errorf("API_KEY must be at least 16 chars")
		}
		if c.JWTSecret == "" && c.APIKey == "" {
			return fmt.Errorf("REQUIRE_AUTH is set but neither JWT_SECRET nor API_KEY is configured")
		}
	}
	switch c.LogLevel {
	case "fatal", "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not recognized", c.LogLevel)
	}
	if c.Session.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func splitCSV(v string) []string {
	if v == "*" || v == "" {
		return []string{"*"}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	// Accept plain milliseconds (spec gives ms defaults) or a Go duration string.
	if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
