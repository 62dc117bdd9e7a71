package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/dbx"
	"github.com/dmitrijs2005/authgateway/internal/logging"
	"github.com/dmitrijs2005/authgateway/internal/server/models"
	"github.com/dmitrijs2005/authgateway/internal/server/ratelimit"
	"github.com/dmitrijs2005/authgateway/internal/server/repositories/repomanager"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

type LoginLimiter interface {
	Check(ctx context.Context, email string) error
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type AccountObserver interface {
	ObserveLogin(outcome string)
	ObserveRevocation()
}

type Session struct {
	User             *models.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RegisterInput struct {
	Email     string  `validate:"required,email,max=254"`
	Password  string  `validate:"required,min=8,max=128"`
	FirstName string  `validate:"required,max=100"`
	LastName  string  `validate:"required,max=100"`
	Mobile    *string `validate:"omitempty,e164"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      TokenIssuer
	hasher      PasswordHasher
	limiter     LoginLimiter
	obs         AccountObserver
	log         logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	tokens TokenIssuer,
	hasher PasswordHasher,
	limiter LoginLimiter,
	obs AccountObserver,
	log logging.Logger,
) *UserService {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		limiter:     limiter,
		obs:         obs,
		log:         log,
	}
}

// Register creates a user with token version 0. Invalid input yields
// common.ErrValidation, a taken e-mail common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.log.Error(ctx, "password hash failed", "error", err)
		return nil, common.ErrorInternal
	}

	user := &models.User{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Mobile:       in.Mobile,
		PasswordHash: hash,
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		s.log.Error(ctx, "create user failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the credentials and issues a new session. Unknown e-mails and
// wrong passwords both yield common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	if err := s.limiter.Check(ctx, email); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			s.obs.ObserveLogin("rate_limited")
			return nil, common.ErrRateLimited
		}
		// throttling is best effort
		s.log.Warn(ctx, "login limiter unavailable", "error", err)
	}

	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "get user failed", "error", err)
			s.obs.ObserveLogin("error")
			return nil, common.ErrorInternal
		}
		// burn the same time as a real check so existence does not leak
		_, _ = s.hasher.Verify(password, s.fallbackHash())
		return nil, s.loginFailed(ctx, email)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "password verify failed", "user_id", user.ID, "error", err)
		s.obs.ObserveLogin("error")
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, s.loginFailed(ctx, email)
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.log.Warn(ctx, "login limiter reset failed", "error", err)
	}

	session, err := s.issueSession(user)
	if err != nil {
		s.log.Error(ctx, "issue tokens failed", "user_id", user.ID, "error", err)
		s.obs.ObserveLogin("error")
		return nil, common.ErrorInternal
	}

	s.obs.ObserveLogin("ok")
	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return session, nil
}

func (s *UserService) loginFailed(ctx context.Context, email string) error {
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.log.Warn(ctx, "login limiter unavailable", "error", err)
	}
	s.obs.ObserveLogin("unauthorized")
	return common.ErrorUnauthorized
}

func (s *UserService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.log.Error(ctx, "find user failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}
	return user, nil
}

// LogoutAll increments the user's token version, which invalidates every
// refresh token issued so far. It returns the new version.
func (s *UserService) LogoutAll(ctx context.Context, userID string) (int, error) {
	version, err := s.repomanager.Users(s.db).IncrementTokenVersion(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrorNotFound
		}
		s.log.Error(ctx, "increment token version failed", "user_id", userID, "error", err)
		return 0, common.ErrorInternal
	}

	s.obs.ObserveRevocation()
	s.log.Info(ctx, "all sessions revoked", "user_id", userID, "token_version", version)
	return version, nil
}

// ChangePassword replaces the password after checking the old one, bumps the
// token version in the same transaction and returns a session issued at the
// new version.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (*Session, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "password verify failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.log.Error(ctx, "password hash failed", "error", err)
		return nil, common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if err := repo.UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		version, err := repo.IncrementTokenVersion(ctx, userID)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		user.TokenVersion = version
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.log.Error(ctx, "change password failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}

	s.obs.ObserveRevocation()
	s.log.Info(ctx, "password changed", "user_id", userID, "token_version", user.TokenVersion)

	session, err := s.issueSession(user)
	if err != nil {
		s.log.Error(ctx, "issue tokens failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}
	return session, nil
}

func (s *UserService) issueSession(user *models.User) (*Session, error) {
	refresh, expiresAt, err := s.tokens.CreateRefreshToken(user)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.CreateAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:             user,
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
