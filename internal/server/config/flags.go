package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/authgateway/internal/flagx"
)

var knownFlags = []string{
	"-a", "-g", "-d", "-e", "-t", "-r",
	"-access-secret", "--access-secret",
	"-refresh-secret", "--refresh-secret",
	"-redis", "--redis",
	"-cookie-secure", "--cookie-secure",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string               HTTP bind address (e.g. ":4000")
//	-g string               gRPC health bind address (empty disables it)
//	-d string               PostgreSQL DSN
//	-e string               environment: local, dev or prod
//	-t int                  access token validity, minutes
//	-r int                  refresh token validity, minutes
//	-access-secret string   access token HMAC secret
//	-refresh-secret string  refresh token HMAC secret
//	-redis string           Redis address for login throttling
//	-cookie-secure          mark the refresh cookie Secure
//
// Only these flags are looked at (see flagx.FilterArgs), so flags meant for
// other components do not cause parse errors here.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Env, "e", config.Env, "environment (local, dev, prod)")
	fs.StringVar(&config.AccessTokenSecret, "access-secret", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "refresh-secret", config.RefreshTokenSecret, "refresh token secret")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.BoolVar(&config.RefreshCookieSecure, "cookie-secure", config.RefreshCookieSecure, "secure refresh cookie")

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	// sub-minute values from JSON or env survive unless the flag is given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
		}
	})

	return nil
}
