package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "data/codeshare.db", cfg.DBPath)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHubCallbackURL)
	assert.False(t, cfg.GitHubEnabled())
	assert.Nil(t, cfg.CORSOrigins)
	assert.False(t, cfg.Formatter.Enabled)
	assert.Equal(t, 2, cfg.Formatter.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Formatter.Timeout)
	assert.Equal(t, 512, cfg.HighlightCacheSize)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":                 "3000",
		"APP_ENV":              "Development",
		"BASE_URL":             "https://codeshare.dev/",
		"CORS_ORIGINS":         "https://a.dev, https://b.dev ,,",
		"GITHUB_CLIENT_ID":     "id",
		"GITHUB_CLIENT_SECRET": "secret",
		"DOCKER_FORMATTER":     "true",
		"FORMATTER_POOL_SIZE":  "4",
		"FORMATTER_TIMEOUT":    "3s",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "JSON",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "https://codeshare.dev", cfg.BaseURL)
	assert.Equal(t, "https://codeshare.dev/auth/github/callback", cfg.GitHubCallbackURL)
	assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, cfg.CORSOrigins)
	assert.True(t, cfg.GitHubEnabled())
	assert.True(t, cfg.Formatter.Enabled)
	assert.Equal(t, 4, cfg.Formatter.PoolSize)
	assert.Equal(t, 3*time.Second, cfg.Formatter.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"PORT", "70000"},
		{"FORMATTER_POOL_SIZE", "two"},
		{"HIGHLIGHT_CACHE_SIZE", "1.5"},
		{"FORMATTER_TIMEOUT", "soon"},
		{"DOCKER_FORMATTER", "maybe"},
		{"LOG_LEVEL", "loud"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			_, err := FromEnv(envMap(map[string]string{tt.key: tt.value}))
			assert.Error(t, err)
		})
	}
}
