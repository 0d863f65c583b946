// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first when present
// (godotenv never overrides variables already set in the process), so
// local development needs no exported shell state while production keeps
// using real environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    int
	Env     string
	DBPath  string
	BaseURL string

	JWTSecret   string
	CORSOrigins []string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	Formatter FormatterConfig

	HighlightCacheSize int

	LogLevel  slog.Level
	LogFormat string
}

// FormatterConfig controls the container-backed Prettier formatter.
type FormatterConfig struct {
	Enabled  bool
	Image    string
	PoolSize int
	Timeout  time.Duration
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Load passes os.Getenv;
// tests pass a map.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	port, err := intVar(get, "PORT", 8080)
	if err != nil {
		return nil, err
	}
	poolSize, err := intVar(get, "FORMATTER_POOL_SIZE", 2)
	if err != nil {
		return nil, err
	}
	cacheSize, err := intVar(get, "HIGHLIGHT_CACHE_SIZE", 512)
	if err != nil {
		return nil, err
	}
	timeout, err := time.ParseDuration(get("FORMATTER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("config: FORMATTER_TIMEOUT: %w", err)
	}
	dockerFormatter, err := strconv.ParseBool(get("DOCKER_FORMATTER", "false"))
	if err != nil {
		return nil, fmt.Errorf("config: DOCKER_FORMATTER: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	baseURL := strings.TrimRight(get("BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/")

	cfg := &Config{
		Port:               port,
		Env:                get("APP_ENV", "production"),
		DBPath:             get("DB_PATH", "data/codeshare.db"),
		BaseURL:            baseURL,
		JWTSecret:          get("JWT_SECRET", ""),
		CORSOrigins:        splitList(get("CORS_ORIGINS", "")),
		GitHubClientID:     get("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: get("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  get("GITHUB_CALLBACK_URL", baseURL+"/auth/github/callback"),
		Formatter: FormatterConfig{
			Enabled:  dockerFormatter,
			Image:    get("FORMATTER_IMAGE", "codeshare/prettier:3-node22-alpine"),
			PoolSize: poolSize,
			Timeout:  timeout,
		},
		HighlightCacheSize: cacheSize,
		LogLevel:           level,
		LogFormat:          strings.ToLower(get("LOG_FORMAT", "text")),
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

func intVar(get func(string, string) string, key string, fallback int) (int, error) {
	raw := get(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid number %q", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
