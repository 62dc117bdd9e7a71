// Package server wires the gateway together: configuration, storage,
// services and the HTTP and gRPC servers, and runs them until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/authgateway/internal/cryptox"
	"github.com/dmitrijs2005/authgateway/internal/logging"
	"github.com/dmitrijs2005/authgateway/internal/server/auth"
	"github.com/dmitrijs2005/authgateway/internal/server/config"
	gs "github.com/dmitrijs2005/authgateway/internal/server/grpc"
	"github.com/dmitrijs2005/authgateway/internal/server/httpserver"
	"github.com/dmitrijs2005/authgateway/internal/server/metrics"
	"github.com/dmitrijs2005/authgateway/internal/server/ratelimit"
	"github.com/dmitrijs2005/authgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgateway/internal/server/services"
)

const startupTimeout = 10 * time.Second

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	httpServer *httpserver.Server
	grpcServer *gs.GRPCServer
}

// NewApp builds every component. Token configuration problems are returned
// as *common.ConfigurationError before any connection is opened.
func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.New(c.Env, logOut)

	issuer, err := auth.NewIssuer(auth.Settings{
		AccessSecret:  c.AccessTokenSecret,
		RefreshSecret: c.RefreshTokenSecret,
		AccessTTL:     c.AccessTokenValidityDuration,
		RefreshTTL:    c.RefreshTokenValidityDuration,
	})
	if err != nil {
		return nil, err
	}

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := db.PingContext(startCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if c.RunMigrations {
		if err := rm.RunMigrations(startCtx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}
		logger.Info(ctx, "migrations applied")
	}

	app := &App{config: c, logger: logger, db: db}

	var limiter services.LoginLimiter = ratelimit.Noop{}
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := app.redis.Ping(startCtx).Err(); err != nil {
			logger.Warn(ctx, "redis unreachable, login throttling degraded", "addr", c.RedisAddr, "error", err)
		}
		limiter = ratelimit.NewLoginLimiter(app.redis, c.LoginMaxAttempts, c.LoginAttemptWindow)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	reg.MustRegister(grpc_prometheus.DefaultServerMetrics)

	hasher := cryptox.NewPasswordHasher(cryptox.DefaultParams)

	refresh := services.NewRefreshService(rm.Users(db), issuer, m, logger.With("module", "refresh"))
	users := services.NewUserService(db, rm, issuer, hasher, limiter, m, logger.With("module", "users"))

	handlers := httpserver.NewHandlers(refresh, users, httpserver.CookieConfig{
		Name:     c.RefreshCookieName,
		Path:     c.RefreshCookiePath,
		Domain:   c.RefreshCookieDomain,
		Secure:   c.RefreshCookieSecure,
		SameSite: c.SameSite(),
	}, logger)

	router := httpserver.NewRouter(handlers, issuer, httpserver.Options{
		Logger:         logger,
		Observer:       m,
		Timeout:        c.RequestTimeout,
		AllowedOrigins: c.CORSAllowedOrigins,
		Metrics:        m.Handler(),
	})

	app.httpServer = httpserver.NewServer(c.EndpointAddrHTTP, router, logger.With("module", "http_server"))

	if c.EndpointAddrGRPC != "" {
		withReflection := c.Env == logging.EnvLocal || c.Env == logging.EnvDev
		app.grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db, withReflection)
	}

	return app, nil
}

// Run serves until SIGINT/SIGTERM/SIGQUIT or ctx cancellation, or until one
// of the servers fails. Connections are closed on return.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.close()

	app.logger.Info(ctx, "Starting app...", "env", app.config.Env)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.httpServer.Run(gctx)
	})

	if app.grpcServer != nil {
		g.Go(func() error {
			return app.grpcServer.Run(gctx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error(ctx, "server stopped with error", "error", err)
		return err
	}

	app.logger.Info(ctx, "app stopped")
	return nil
}

func (app *App) close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}
