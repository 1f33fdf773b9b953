// Package identity provides the user directory and credential verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

// Service implements identity business logic.
type Service struct {
	repo Repository
	auth Authenticator
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{
		repo: repo,
		auth: auth,
	}
}

// RegisterInput contains data for user registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
}

// LoginInput contains data for user login.
type LoginInput struct {
	Email    string
	Password string
}

// NormalizeEmail trims and case-folds email so lookups ignore case.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// Register creates a new user holding the default user role.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	return s.createUser(ctx, input, domain.RoleUser)
}

// RegisterAdmin creates a user holding both the user and admin roles.
// An existing account with the same email is reused and granted admin.
func (s *Service) RegisterAdmin(ctx context.Context, input RegisterInput) (*domain.User, error) {
	user, err := s.createUser(ctx, input, domain.RoleUser)
	if errors.Is(err, ErrEmailExists) {
		user, err = s.repo.GetUserByEmail(ctx, NormalizeEmail(input.Email))
	}
	if err != nil {
		return nil, err
	}

	if !user.HasRole(domain.RoleAdmin) {
		if err := s.repo.AssignRole(ctx, user.ID, domain.RoleAdmin); err != nil {
			return nil, fmt.Errorf("assign admin role: %w", err)
		}
		user.Roles = append(user.Roles, domain.RoleAdmin)
	}

	return user, nil
}

func (s *Service) createUser(ctx context.Context, input RegisterInput, role domain.Role) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:     strings.TrimSpace(input.Name),
		Email:    NormalizeEmail(input.Email),
		Password: string(hash),
		Phone:    strings.TrimSpace(input.Phone),
		Address:  strings.TrimSpace(input.Address),
	}

	if err := s.repo.CreateUser(ctx, user, role); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user registered", "user_id", user.ID, "role", role)

	return user, nil
}

// Login verifies credentials and issues an access token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, input LoginInput) (string, *domain.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.auth.IssueToken(ctx, user)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	return token, user, nil
}

// ValidateToken verifies an access token and returns its principal.
func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.Principal, error) {
	return s.auth.ValidateToken(ctx, token)
}

// ResolvePrincipal loads the directory user named by the token's email claim.
func (s *Service) ResolvePrincipal(ctx context.Context, principal *domain.Principal) (*domain.User, error) {
	if principal == nil || principal.Email == "" {
		return nil, ErrUnknownPrincipal
	}

	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(principal.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
}

// ListUsers returns every user in the directory.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
