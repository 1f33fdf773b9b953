package identity

import (
	"context"

	"github.com/bissquit/pizzeria/internal/domain"
)

// Repository defines the interface for user directory operations.
type Repository interface {
	// CreateUser inserts user and grants it role in a single transaction.
	CreateUser(ctx context.Context, user *domain.User, role domain.Role) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	AssignRole(ctx context.Context, userID int64, role domain.Role) error
}

// Authenticator issues and verifies access tokens.
type Authenticator interface {
	IssueToken(ctx context.Context, user *domain.User) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.Principal, error)
}
