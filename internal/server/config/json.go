package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authgateway/internal/flagx"
	"github.com/dmitrijs2005/authgateway/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted. Absent
// fields leave the corresponding Config value untouched.
type JsonConfig struct {
	Env                          string         `json:"env"`
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	RunMigrations                *bool          `json:"run_migrations"`
	AccessTokenSecret            string         `json:"access_token_secret"`
	RefreshTokenSecret           string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	RefreshCookieName            string         `json:"refresh_cookie_name"`
	RefreshCookiePath            string         `json:"refresh_cookie_path"`
	RefreshCookieDomain          string         `json:"refresh_cookie_domain"`
	RefreshCookieSecure          *bool          `json:"refresh_cookie_secure"`
	RefreshCookieSameSite        string         `json:"refresh_cookie_samesite"`
	RequestTimeout               timex.Duration `json:"request_timeout"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins"`
	RedisAddr                    string         `json:"redis_addr"`
	LoginMaxAttempts             int            `json:"login_max_attempts"`
	LoginAttemptWindow           timex.Duration `json:"login_attempt_window"`
}

// parseJson overlays values from the JSON file named by -c/-config in args.
// Without the flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Env, c.Env)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.RefreshCookieName, c.RefreshCookieName)
	setString(&config.RefreshCookiePath, c.RefreshCookiePath)
	setString(&config.RefreshCookieDomain, c.RefreshCookieDomain)
	setString(&config.RefreshCookieSameSite, c.RefreshCookieSameSite)
	setString(&config.RedisAddr, c.RedisAddr)

	if c.RunMigrations != nil {
		config.RunMigrations = *c.RunMigrations
	}
	if c.RefreshCookieSecure != nil {
		config.RefreshCookieSecure = *c.RefreshCookieSecure
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.RequestTimeout.Duration != 0 {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.LoginAttemptWindow.Duration != 0 {
		config.LoginAttemptWindow = c.LoginAttemptWindow.Duration
	}
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	if c.LoginMaxAttempts != 0 {
		config.LoginMaxAttempts = c.LoginMaxAttempts
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
