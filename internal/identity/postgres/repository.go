// Package postgres provides PostgreSQL implementation of the user directory.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository implements identity.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts the user and its role membership atomically.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User, role domain.Role) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO users (name, email, password_hash, phone, address, remember_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.Password,
		user.Phone,
		user.Address,
		user.RememberToken,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isPgError(err, uniqueViolation) {
			return identity.ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if err := assignRole(ctx, tx, user.ID, role); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	user.Roles = []domain.Role{role}
	return nil
}

// AssignRole grants role to the user. Granting a held role is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID int64, role domain.Role) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := assignRole(ctx, tx, userID, role); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func assignRole(ctx context.Context, tx pgx.Tx, userID int64, role domain.Role) error {
	if !role.IsValid() {
		return identity.ErrRoleNotFound
	}

	var roleID int
	err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, string(role)).Scan(&roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.ErrRoleNotFound
		}
		return fmt.Errorf("get role: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, roleID)
	if err != nil {
		if isPgError(err, foreignKeyViolation) {
			return identity.ErrUserNotFound
		}
		return fmt.Errorf("insert user role: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user with its roles.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

// GetUserByEmail retrieves a user with its roles. The email must be normalized.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, "email = $1", email)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `
		SELECT id, name, email, password_hash, phone, address, remember_token, created_at
		FROM users
		WHERE ` + where

	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	roles, err := r.getUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func (r *Repository) getUserRoles(ctx context.Context, userID int64) ([]domain.Role, error) {
	query := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get user roles: %w", err)
	}
	defer rows.Close()

	roles := []domain.Role{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, domain.Role(name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// ListUsers retrieves all users ordered by id, each with its roles.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	query := `
		SELECT id, name, email, password_hash, phone, address, remember_token, created_at
		FROM users
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	index := make(map[int64]int)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Roles = []domain.Role{}
		index[user.ID] = len(users)
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	roleRows, err := r.db.Query(ctx, `
		SELECT ur.user_id, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		ORDER BY ur.user_id, r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var (
			userID int64
			name   string
		)
		if err := roleRows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		if i, ok := index[userID]; ok {
			users[i].Roles = append(users[i].Roles, domain.Role(name))
		}
	}
	if err := roleRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Password,
		&user.Phone,
		&user.Address,
		&user.RememberToken,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
