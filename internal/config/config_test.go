package config

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.ListenAddr)
	assert.Equal(t, "careerpath-auth.sqlite", cfg.Database.URL)
	assert.Equal(t, time.Hour, cfg.Tokens.IDTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.Tokens.RefreshTokenTTL)
	assert.Equal(t, "https://www.googleapis.com/oauth2/v2/userinfo", cfg.Google.UserInfoURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Tokens.JWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{
		"AUTH_LISTEN_ADDR": "127.0.0.1:9000",
		"CORS_ORIGINS":     "http://a.test,http://b.test",
		"ID_TOKEN_TTL":     "15m",
		"LOG_LEVEL":        "DEBUG",
		"LOG_FORMAT":       "console",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Tokens.IDTokenTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EmptyCORSOrigins(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{"CORS_ORIGINS": ""}))
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.CORSOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short secret", map[string]string{"JWT_SECRET": "too-short"}},
		{"tiny token ttl", map[string]string{"ID_TOKEN_TTL": "10s"}},
		{"refresh shorter than id token", map[string]string{"ID_TOKEN_TTL": "2h", "REFRESH_TOKEN_TTL": "1h"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"bad userinfo url", map[string]string{"GOOGLE_USERINFO_URL": "not a url"}},
		{"unparseable duration", map[string]string{"ID_TOKEN_TTL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(envconfig.MapLookuper(tt.env))
			assert.Error(t, err)
		})
	}
}
