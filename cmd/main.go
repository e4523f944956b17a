package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fletar/fletar-backend/internal/app"
	"github.com/fletar/fletar-backend/internal/pkg/envutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fletar: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if envutil.Bool("DB_AUTO_MIGRATE", true) {
		if err := a.Migrate(); err != nil {
			return err
		}
		if err := a.Seed(ctx); err != nil {
			return err
		}
	}

	if err := a.Run(ctx); err != nil {
		return err
	}
	a.Log.Info("Server stopped")
	return nil
}
