package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/logging"
	"github.com/dmitrijs2005/authgateway/internal/server/models"
	"github.com/dmitrijs2005/authgateway/internal/server/services"
)

// Refresher exchanges refresh tokens. *services.RefreshService implements it.
type Refresher interface {
	Refresh(ctx context.Context, token string) services.RefreshResult
}

// Accounts is the account surface. *services.UserService implements it.
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	LogoutAll(ctx context.Context, userID string) (int, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (*services.Session, error)
}

type Handlers struct {
	refresher Refresher
	accounts  Accounts
	cookie    CookieConfig
	validate  *validator.Validate
	log       logging.Logger
}

func NewHandlers(refresher Refresher, accounts Accounts, cookie CookieConfig, log logging.Logger) *Handlers {
	if log == nil {
		log = logging.Nop()
	}
	return &Handlers{
		refresher: refresher,
		accounts:  accounts,
		cookie:    cookie,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

// HealthCheck answers GET /hc.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RefreshToken answers POST /refresh_token. The response is always 200 and
// carries no hint about why a token was rejected.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	res := h.refresher.Refresh(r.Context(), h.cookie.read(r))
	if !res.OK {
		writeJSON(w, http.StatusOK, RefreshResponse{OK: false, AccessToken: ""})
		return
	}

	h.cookie.set(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, RefreshResponse{OK: true, AccessToken: res.AccessToken})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterRequest
	if err := h.decodeValid(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Mobile:    in.Mobile,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse(u))
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if err := h.decodeValid(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookie.set(w, s.RefreshToken, s.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: s.AccessToken, User: userResponse(s.User)})
}

// Logout drops the refresh cookie on this client only.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// LogoutAll revokes every refresh token of the caller.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	v, err := h.accounts.LogoutAll(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, LogoutAllResponse{OK: true, TokenVersion: v})
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in ChangePasswordRequest
	if err := h.decodeValid(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	claims := claimsFrom(r.Context())
	s, err := h.accounts.ChangePassword(r.Context(), claims.UserID, in.OldPassword, in.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookie.set(w, s.RefreshToken, s.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: s.AccessToken, User: userResponse(s.User)})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	u, err := h.accounts.Me(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse(u))
}

// decodeValid decodes a JSON body strictly and validates it. Failures are
// reported as common.ErrValidation.
func (h *Handlers) decodeValid(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := h.validate.Struct(v); err != nil {
		logging.From(r.Context(), h.log).Debug(r.Context(), "request rejected", "error", err)
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
