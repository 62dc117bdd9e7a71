// Package services contains the gateway's business logic: the refresh token
// exchange and the account operations built around it.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/logging"
	"github.com/dmitrijs2005/authgateway/internal/server/auth"
	"github.com/dmitrijs2005/authgateway/internal/server/models"
)

type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// TokenIssuer is implemented by *auth.Issuer.
type TokenIssuer interface {
	CreateAccessToken(user *models.User) (string, error)
	CreateRefreshToken(user *models.User) (string, time.Time, error)
	VerifyRefreshToken(token string) (*auth.Claims, error)
}

type RefreshObserver interface {
	ObserveRefresh(outcome string)
}

// RefreshResult is zero on any failure.
type RefreshResult struct {
	OK               bool
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RefreshService struct {
	users  UserFinder
	tokens TokenIssuer
	obs    RefreshObserver
	log    logging.Logger
}

func NewRefreshService(users UserFinder, tokens TokenIssuer, obs RefreshObserver, log logging.Logger) *RefreshService {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &RefreshService{users: users, tokens: tokens, obs: obs, log: log}
}

// Refresh verifies token, checks it against the user's current token version
// and on success returns a rotated refresh token plus a new access token.
// The reason for a rejection is logged and counted but never returned.
func (s *RefreshService) Refresh(ctx context.Context, token string) RefreshResult {
	if token == "" {
		s.obs.ObserveRefresh("missing")
		return RefreshResult{}
	}

	claims, err := s.tokens.VerifyRefreshToken(token)
	if err != nil {
		return s.reject(ctx, err)
	}

	user, err := s.users.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return s.reject(ctx, err, "user_id", claims.UserID)
	}

	if user.TokenVersion != claims.TokenVersion {
		return s.reject(ctx, common.ErrVersionMismatch,
			"user_id", user.ID, "token_version", claims.TokenVersion, "current_version", user.TokenVersion)
	}

	refresh, expiresAt, err := s.tokens.CreateRefreshToken(user)
	if err != nil {
		return s.reject(ctx, err, "user_id", user.ID)
	}
	access, err := s.tokens.CreateAccessToken(user)
	if err != nil {
		return s.reject(ctx, err, "user_id", user.ID)
	}

	s.obs.ObserveRefresh("ok")
	s.log.Debug(ctx, "refresh token rotated", "user_id", user.ID)

	return RefreshResult{
		OK:               true,
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
	}
}

func (s *RefreshService) reject(ctx context.Context, err error, args ...any) RefreshResult {
	reason := auth.Reason(err)
	s.obs.ObserveRefresh(reason)

	args = append(args, "reason", reason)
	if reason == "internal" {
		s.log.Error(ctx, "refresh failed", append(args, "error", err)...)
	} else {
		s.log.Info(ctx, "refresh rejected", args...)
	}
	return RefreshResult{}
}

type nopObserver struct{}

func (nopObserver) ObserveRefresh(string) {}
func (nopObserver) ObserveLogin(string)   {}
func (nopObserver) ObserveRevocation()    {}
