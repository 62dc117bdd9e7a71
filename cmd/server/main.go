package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/server"
	"github.com/dmitrijs2005/authgateway/internal/server/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		var cfgErr *common.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "refusing to start:", cfgErr)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}

	app, err := server.NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}

	return app.Run(ctx)
}
