// Package common contains shared constants and sentinel errors used across
// the gateway components.
package common

const (
	// AccessTokenHeaderName is the legacy request header carrying a raw access
	// token. Authorization: Bearer is preferred.
	AccessTokenHeaderName = "token"

	// RequestIDHeaderName carries the per-request correlation id.
	RequestIDHeaderName = "X-Request-Id"

	// DefaultRefreshCookieName is the session cookie holding the refresh token.
	DefaultRefreshCookieName = "jid"
)
