// Package auth mints and verifies access and refresh tokens. Each kind has
// its own HMAC secret.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/server/models"
)

type Claims struct {
	UserID       string
	TokenVersion int
	ExpiresAt    time.Time
}

// tokenClaims is the signed payload. TokenVersion is a pointer so that a
// missing claim can be told apart from version 0.
type tokenClaims struct {
	UserID       string `json:"userId"`
	TokenVersion *int   `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims check.
func (c *tokenClaims) Validate() error {
	if c.UserID == "" {
		return errors.New("missing userId")
	}
	if c.TokenVersion == nil || *c.TokenVersion < 0 {
		return errors.New("missing tokenVersion")
	}
	return nil
}

type Settings struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Option func(*Issuer)

// WithClock is for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer fails with *common.ConfigurationError on bad settings.
func NewIssuer(s Settings, opts ...Option) (*Issuer, error) {
	switch {
	case s.AccessSecret == "":
		return nil, &common.ConfigurationError{Field: "access_token_secret", Reason: "must be set"}
	case s.RefreshSecret == "":
		return nil, &common.ConfigurationError{Field: "refresh_token_secret", Reason: "must be set"}
	case s.AccessSecret == s.RefreshSecret:
		return nil, &common.ConfigurationError{Field: "refresh_token_secret", Reason: "must differ from access_token_secret"}
	case s.AccessTTL <= 0:
		return nil, &common.ConfigurationError{Field: "access_token_validity_duration", Reason: "must be positive"}
	case s.RefreshTTL <= 0:
		return nil, &common.ConfigurationError{Field: "refresh_token_validity_duration", Reason: "must be positive"}
	}

	i := &Issuer{
		accessSecret:  []byte(s.AccessSecret),
		refreshSecret: []byte(s.RefreshSecret),
		accessTTL:     s.AccessTTL,
		refreshTTL:    s.RefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Issuer) CreateAccessToken(user *models.User) (string, error) {
	token, _, err := i.sign(user, i.accessSecret, i.accessTTL)
	return token, err
}

// CreateRefreshToken also returns the token expiry.
func (i *Issuer) CreateRefreshToken(user *models.User) (string, time.Time, error) {
	return i.sign(user, i.refreshSecret, i.refreshTTL)
}

func (i *Issuer) sign(user *models.User, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)
	version := user.TokenVersion

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &tokenClaims{
		UserID:       user.ID,
		TokenVersion: &version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

func (i *Issuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.verify(token, i.accessSecret)
}

func (i *Issuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.verify(token, i.refreshSecret)
}

func (i *Issuer) verify(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, common.ErrInvalidToken
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return &Claims{
		UserID:       claims.UserID,
		TokenVersion: *claims.TokenVersion,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Reason gives the log/metric code for a refresh failure.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrInvalidToken):
		return "invalid"
	case errors.Is(err, common.ErrorNotFound):
		return "user_not_found"
	case errors.Is(err, common.ErrVersionMismatch):
		return "version_mismatch"
	default:
		return "internal"
	}
}
