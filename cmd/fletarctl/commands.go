package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fletar/fletar-backend/internal/app"
	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		return a.Migrate()
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert missing modules and default settings from the catalog",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		return a.Seed(ctx)
	}),
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var (
	adminEmail    string
	adminPassword string
)

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator, or promote an existing user",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		u, created, err := ensureAdmin(ctx, a.Repos.User, a.Services.Auth, adminEmail, adminPassword)
		if err != nil {
			return err
		}
		verb := "promoted"
		if created {
			verb = "created"
		}
		fmt.Printf("admin %s %s (%s)\n", u.Email, verb, u.ID)
		return nil
	}),
}

var premiumCmd = &cobra.Command{
	Use:   "premium",
	Short: "Manage premium subscriptions",
}

var (
	premiumEmail  string
	premiumMonths int
)

var premiumGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Extend a user's premium plan by whole months",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		u, err := grantPremium(ctx, a.Repos.User, a.Services.Premium, premiumEmail, premiumMonths)
		if err != nil {
			return err
		}
		fmt.Printf("%s is premium until %s\n", u.Email, u.PremiumUntil.Format("2006-01-02"))
		return nil
	}),
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect the notification outbox",
}

var notificationsRetryDeadCmd = &cobra.Command{
	Use:   "retry-dead",
	Short: "Requeue every dead-lettered notification",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		n, err := a.Services.Notifications.RetryAllDead(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d notifications\n", n)
		return nil
	}),
}

var camionesCmd = &cobra.Command{
	Use:   "camiones",
	Short: "Maintain truck availability listings",
}

var camionesExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark listings whose availability window has passed as vencido",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		n, err := a.Services.Camiones.ExpireStale(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("expired %d camiones\n", n)
		return nil
	}),
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "administrator email")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "administrator password")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
	adminCmd.AddCommand(adminCreateCmd)

	premiumGrantCmd.Flags().StringVar(&premiumEmail, "email", "", "user email")
	premiumGrantCmd.Flags().IntVar(&premiumMonths, "months", 1, "months to add")
	_ = premiumGrantCmd.MarkFlagRequired("email")
	premiumCmd.AddCommand(premiumGrantCmd)

	notificationsCmd.AddCommand(notificationsRetryDeadCmd)
	camionesCmd.AddCommand(camionesExpireCmd)
}

// ensureAdmin reports whether a new account was created.
func ensureAdmin(ctx context.Context, userRepo repos.UserRepo, auth services.AuthService, email, password string) (*types.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, false, errors.New("a valid --email is required")
	}
	if len(password) < 8 {
		return nil, false, errors.New("--password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	dbc := dbctx.New(ctx)
	existing, err := userRepo.GetByEmail(dbc, email)
	if err != nil {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		if err := userRepo.UpdateFields(dbc, existing.ID, map[string]interface{}{
			"role":     types.RoleAdmin,
			"password": hash,
			"blocked":  false,
		}); err != nil {
			return nil, false, fmt.Errorf("promote user: %w", err)
		}
		existing.Role = types.RoleAdmin
		existing.Blocked = false
		return existing, false, nil
	}

	u := &types.User{
		Email:       email,
		Password:    hash,
		FirstName:   "Admin",
		LastName:    "Fletar",
		UserType:    types.UserTypeDador,
		Role:        types.RoleAdmin,
		NotifyEmail: true,
	}
	if _, err := userRepo.Create(dbc, []*types.User{u}); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return u, true, nil
}

func grantPremium(ctx context.Context, userRepo repos.UserRepo, premium services.PremiumService, email string, months int) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := userRepo.GetByEmail(dbctx.New(ctx), email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("no user with email %s", email)
	}
	return premium.Grant(ctx, u.ID, months)
}
