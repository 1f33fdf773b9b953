//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/identity"
	"github.com/bissquit/pizzeria/internal/testutil"
	"github.com/bissquit/pizzeria/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	if err := migrations.Up(container.ConnectionString); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	testPool, err = pgxpool.New(ctx, container.ConnectionString)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer testPool.Close()

	return m.Run()
}

func newUser() *domain.User {
	return &domain.User{
		Name:     "Test User",
		Email:    "user-" + uuid.NewString()[:8] + "@test.com",
		Password: "hash",
		Phone:    "5551234567",
		Address:  "42 Test Street",
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(testPool)
	ctx := context.Background()

	user := newUser()
	require.NoError(t, repo.CreateUser(ctx, user, domain.RoleUser))
	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, []domain.Role{domain.RoleUser}, user.Roles)

	byID, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)
	assert.Equal(t, "hash", byID.Password)
	assert.Equal(t, []domain.Role{domain.RoleUser}, byID.Roles)

	byEmail, err := repo.GetUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetUserByID(ctx, 999999999)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestRepository_DuplicateEmail(t *testing.T) {
	repo := NewRepository(testPool)
	ctx := context.Background()

	user := newUser()
	require.NoError(t, repo.CreateUser(ctx, user, domain.RoleUser))

	dup := newUser()
	dup.Email = user.Email
	assert.ErrorIs(t, repo.CreateUser(ctx, dup, domain.RoleUser), identity.ErrEmailExists)
}

func TestRepository_CreateWithUnknownRoleLeavesNoUser(t *testing.T) {
	repo := NewRepository(testPool)
	ctx := context.Background()

	user := newUser()
	err := repo.CreateUser(ctx, user, domain.Role("chef"))
	require.ErrorIs(t, err, identity.ErrRoleNotFound)

	_, err = repo.GetUserByEmail(ctx, user.Email)
	assert.ErrorIs(t, err, identity.ErrUserNotFound, "insert rolled back")
}

func TestRepository_AssignRole(t *testing.T) {
	repo := NewRepository(testPool)
	ctx := context.Background()

	user := newUser()
	require.NoError(t, repo.CreateUser(ctx, user, domain.RoleUser))

	require.NoError(t, repo.AssignRole(ctx, user.ID, domain.RoleAdmin))
	require.NoError(t, repo.AssignRole(ctx, user.ID, domain.RoleAdmin), "granting twice is a no-op")

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAdmin}, got.Roles)

	assert.ErrorIs(t, repo.AssignRole(ctx, 999999999, domain.RoleAdmin), identity.ErrUserNotFound)
	assert.ErrorIs(t, repo.AssignRole(ctx, user.ID, domain.Role("Admin")), identity.ErrRoleNotFound)
}

func TestRepository_ListUsers(t *testing.T) {
	repo := NewRepository(testPool)
	ctx := context.Background()

	admin := newUser()
	require.NoError(t, repo.CreateUser(ctx, admin, domain.RoleUser))
	require.NoError(t, repo.AssignRole(ctx, admin.ID, domain.RoleAdmin))

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)

	var found bool
	for _, u := range users {
		assert.NotNil(t, u.Roles)
		if u.ID == admin.ID {
			found = true
			assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleAdmin}, u.Roles)
		}
	}
	assert.True(t, found)
}
