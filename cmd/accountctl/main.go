// Command accountctl creates gateway users and revokes their sessions
// directly against the user store.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authgateway/internal/accountctl"
	"github.com/dmitrijs2005/authgateway/internal/cryptox"
	"github.com/dmitrijs2005/authgateway/internal/logging"
	"github.com/dmitrijs2005/authgateway/internal/server/auth"
	"github.com/dmitrijs2005/authgateway/internal/server/config"
	"github.com/dmitrijs2005/authgateway/internal/server/ratelimit"
	"github.com/dmitrijs2005/authgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgateway/internal/server/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, accountctl.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cmd, rest := accountctl.CommandArgs(args)
	if len(cmd) == 0 {
		return accountctl.ErrUsage
	}

	cfg, err := config.LoadConfig(rest)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Env, os.Stderr)

	issuer, err := auth.NewIssuer(auth.Settings{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenValidityDuration,
		RefreshTTL:    cfg.RefreshTokenValidityDuration,
	})
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if cfg.RunMigrations {
		if err := rm.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrations error: %w", err)
		}
	}

	users := services.NewUserService(db, rm, issuer,
		cryptox.NewPasswordHasher(cryptox.DefaultParams),
		ratelimit.Noop{}, nil, logger.With("module", "accountctl"))

	return accountctl.NewApp(users, os.Stdin, os.Stdout).Run(ctx, cmd)
}
