package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeTempJSON(t, dir, "flag.json", map[string]any{
		"env":                             "prod",
		"endpoint_addr_http":              "www.example:9000",
		"endpoint_addr_grpc":              "",
		"database_dsn":                    "postgres://db",
		"run_migrations":                  false,
		"access_token_secret":             "a-secret",
		"refresh_token_secret":            "r-secret",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": "72h",
		"refresh_cookie_name":             "sid",
		"refresh_cookie_secure":           true,
		"refresh_cookie_samesite":         "strict",
		"request_timeout":                 "2s",
		"cors_allowed_origins":            []string{"https://app.example"},
		"redis_addr":                      "localhost:6379",
		"login_max_attempts":              3,
		"login_attempt_window":            "10m",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-config", path}))

		assert.Equal(t, "prod", cfg.Env)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, ":50051", cfg.EndpointAddrGRPC, "empty string keeps default")
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.False(t, cfg.RunMigrations)
		assert.Equal(t, "a-secret", cfg.AccessTokenSecret)
		assert.Equal(t, "r-secret", cfg.RefreshTokenSecret)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 72*time.Hour, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, "sid", cfg.RefreshCookieName)
		assert.True(t, cfg.RefreshCookieSecure)
		assert.Equal(t, "strict", cfg.RefreshCookieSameSite)
		assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
		assert.Equal(t, []string{"https://app.example"}, cfg.CORSAllowedOrigins)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, 3, cfg.LoginMaxAttempts)
		assert.Equal(t, 10*time.Minute, cfg.LoginAttemptWindow)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		cfg := &Config{
			EndpointAddrHTTP:            "defaults:1234",
			AccessTokenSecret:           "key",
			AccessTokenValidityDuration: 2 * time.Minute,
		}
		require.NoError(t, parseJson(cfg, []string{"-a", ":1"}))

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "key", cfg.AccessTokenSecret)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenValidityDuration)
	})

	t.Run("invalid JSON → error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		require.Error(t, parseJson(&Config{}, []string{"-c", bad}))
	})

	t.Run("missing file → error", func(t *testing.T) {
		require.Error(t, parseJson(&Config{}, []string{"-c", filepath.Join(dir, "nope.json")}))
	})
}
