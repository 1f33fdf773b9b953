// Package seed bootstraps the administrator account.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/pizzeria/internal/config"
	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/identity"
	"github.com/bissquit/pizzeria/internal/pkg/ctxlog"
	"github.com/bissquit/pizzeria/internal/pkg/httputil"
)

// ErrWeakPassword is returned when the configured admin password would be
// rejected at registration.
var ErrWeakPassword = errors.New("seed.admin_password does not satisfy the password policy")

// AdminRegistrar creates administrator accounts.
type AdminRegistrar interface {
	RegisterAdmin(ctx context.Context, input identity.RegisterInput) (*domain.User, error)
}

// Admin creates the configured administrator, or grants admin to an existing
// account with the same email. Roles themselves are created by migrations.
func Admin(ctx context.Context, registrar AdminRegistrar, cfg config.SeedConfig) (*domain.User, error) {
	if cfg.AdminEmail == "" {
		return nil, errors.New("seed.admin_email is required")
	}
	if !httputil.ValidPassword(cfg.AdminPassword) || len(cfg.AdminPassword) < 8 || len(cfg.AdminPassword) > 32 {
		return nil, ErrWeakPassword
	}

	user, err := registrar.RegisterAdmin(ctx, identity.RegisterInput{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Phone:    cfg.AdminPhone,
		Address:  cfg.AdminAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("register admin: %w", err)
	}

	ctxlog.FromContext(ctx).Info("admin account ready", "user_id", user.ID, "email", user.Email)
	return user, nil
}
