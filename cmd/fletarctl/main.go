package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fletar/fletar-backend/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "fletarctl",
	Short:         "Operational commands for the Fletar backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd, adminCmd, premiumCmd, notificationsCmd, camionesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fletarctl: %v\n", err)
		os.Exit(1)
	}
}

// withApp wires the full application for a one-off command. Background
// workers are not started.
func withApp(fn func(ctx context.Context, a *app.App) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}
}
