//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bissquit/pizzeria/internal/app"
	"github.com/bissquit/pizzeria/internal/config"
	"github.com/bissquit/pizzeria/internal/identity"
	identitypostgres "github.com/bissquit/pizzeria/internal/identity/postgres"
	"github.com/bissquit/pizzeria/internal/orders"
	"github.com/bissquit/pizzeria/internal/seed"
	"github.com/bissquit/pizzeria/internal/testutil"
	"github.com/bissquit/pizzeria/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	openAPISpecPath = "../../api/openapi/openapi.yaml"

	adminEmail    = "admin@test.com"
	adminPassword = "123456789!@Abc"
)

var (
	// testServer runs with the strict bulk delete policy, partialServer with the partial one.
	testServer    *httptest.Server
	partialServer *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
)

// newTestClient returns an anonymous client validating responses against the contract.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClientWithValidator(testServer.URL, testValidator).For(t)
}

func newPartialClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClientWithValidator(partialServer.URL, testValidator).For(t)
}

func testConfig(pgURL, mongoURI, policy string) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Server.LoginRateLimit = 0
	cfg.Database.URL = pgURL
	cfg.Database.ConnectAttempts = 3
	cfg.Mongo.URI = mongoURI
	cfg.Mongo.ConnectAttempts = 3
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.JWT.SecretKey = "test-secret-key"
	cfg.JWT.ExpirationInMinutes = "15"
	cfg.Orders.DeleteManyPolicy = policy
	cfg.Seed.AdminEmail = adminEmail
	cfg.Seed.AdminPassword = adminPassword
	return cfg
}

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	mongoContainer, err := testutil.NewMongoContainer(ctx)
	if err != nil {
		log.Fatalf("start mongodb: %v", err)
	}
	defer func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mongodb: %v", err)
		}
	}()

	if err := migrations.Up(pgContainer.ConnectionString); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	strictCfg := testConfig(pgContainer.ConnectionString, mongoContainer.URI, orders.DeletePolicyStrict)
	strictApp, err := app.New(strictCfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	partialApp, err := app.New(testConfig(pgContainer.ConnectionString, mongoContainer.URI, orders.DeletePolicyPartial))
	if err != nil {
		log.Fatalf("create partial app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}
	defer testDB.Close()

	users := identity.NewService(identitypostgres.NewRepository(testDB), nil)
	if _, err := seed.Admin(ctx, users, strictCfg.Seed); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	testServer = httptest.NewServer(strictApp.Router())
	partialServer = httptest.NewServer(partialApp.Router())

	code := m.Run()

	testServer.Close()
	partialServer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, a := range []*app.App{strictApp, partialApp} {
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown app: %v", err)
		}
	}

	return code
}
