// Package httpserver is the public HTTP surface of the gateway: the refresh
// token endpoint, the account endpoints, health and metrics.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/logging"
)

// Options are the parameters of NewRouter.
type Options struct {
	Logger         logging.Logger
	Observer       HTTPObserver
	Timeout        time.Duration
	AllowedOrigins []string
	Metrics        http.Handler
}

// NewRouter builds the chi router with middleware and routes.
func NewRouter(h *Handlers, verifier AccessVerifier, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	r := chi.NewRouter()

	// outer to inner
	r.Use(
		RequestID(),
		Logging(opts.Logger, opts.Observer),
		Recover(opts.Logger),
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", common.AccessTokenHeaderName, common.RequestIDHeaderName},
			ExposedHeaders:   []string{common.RequestIDHeaderName},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		Timeout(opts.Timeout),
	)

	r.Get("/hc", h.HealthCheck)
	r.Post("/refresh_token", h.RefreshToken)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAccessToken(verifier))
			r.Post("/logout_all", h.LogoutAll)
			r.Post("/change_password", h.ChangePassword)
		})
	})

	r.With(RequireAccessToken(verifier)).Get("/me", h.Me)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}
