// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/pizzeria/api/openapi"
	"github.com/bissquit/pizzeria/internal/config"
	"github.com/bissquit/pizzeria/internal/identity"
	"github.com/bissquit/pizzeria/internal/identity/jwt"
	identitypostgres "github.com/bissquit/pizzeria/internal/identity/postgres"
	"github.com/bissquit/pizzeria/internal/orders"
	ordersmongo "github.com/bissquit/pizzeria/internal/orders/mongo"
	"github.com/bissquit/pizzeria/internal/pkg/ctxlog"
	"github.com/bissquit/pizzeria/internal/pkg/httputil"
	"github.com/bissquit/pizzeria/internal/pkg/metrics"
	"github.com/bissquit/pizzeria/internal/pkg/mongodb"
	"github.com/bissquit/pizzeria/internal/pkg/postgres"
	"github.com/bissquit/pizzeria/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/time/rate"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	mongo         *mongo.Client
	mongoDB       *mongo.Database
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance connected to PostgreSQL and MongoDB.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := ConnectPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}

	mongoCtx, mongoCancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout)
	defer mongoCancel()

	mongoClient, mongoDB, err := mongodb.Connect(mongoCtx, mongodb.Config{
		URI:             cfg.Mongo.URI,
		Database:        cfg.Mongo.Database,
		MaxPoolSize:     cfg.Mongo.MaxPoolSize,
		ConnectAttempts: cfg.Mongo.ConnectAttempts,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		mongo:         mongoClient,
		mongoDB:       mongoDB,
		metricsCancel: metricsCancel,
	}

	router, err := app.setupRouter(mongoCtx)
	if err != nil {
		app.closeStores()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	go app.collectDBMetrics(metricsCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// ConnectPostgres opens the user directory pool.
func ConnectPostgres(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if err := a.mongo.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect mongodb: %w", err))
	}
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) closeStores() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.mongo.Disconnect(ctx)
	a.db.Close()
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(httputil.LowercasePath)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", openAPIHandler)
	r.Get("/docs", docsHandler)

	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth, err := jwt.NewAuthenticator(jwt.Config{
		SecretKey:           a.config.JWT.SecretKey,
		Issuer:              a.config.JWT.Issuer,
		Audience:            a.config.JWT.Audience,
		ExpirationInMinutes: a.config.JWT.ExpirationInMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}
	a.logger.Info("token lifetime configured", "expiration", jwtAuth.Expiration())

	identityService := identity.NewService(identityRepo, jwtAuth)
	identityHandler := identity.NewHandler(identityService, loginLimiter(a.config.Server))

	ordersRepo := ordersmongo.NewRepository(a.mongoDB, a.config.Mongo.Collection)
	if err := ordersRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	ordersService := orders.NewService(ordersRepo, orders.Options{
		DeleteManyPolicy: a.config.Orders.DeleteManyPolicy,
	})
	ordersHandler := orders.NewHandler(ordersService, identityService)

	r.Route("/api", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			ordersHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

// loginLimiter returns nil when throttling is disabled.
func loginLimiter(cfg config.ServerConfig) func(http.Handler) http.Handler {
	if cfg.LoginRateLimit <= 0 {
		return nil
	}
	burst := max(cfg.LoginBurst, 1)
	return httputil.RateLimit(rate.NewLimiter(rate.Limit(cfg.LoginRateLimit), burst))
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	log := ctxlog.FromContext(r.Context())

	if err := a.db.Ping(ctx); err != nil {
		log.Error("readiness check failed", "store", "postgres", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if err := a.mongo.Ping(ctx, readpref.Primary()); err != nil {
		log.Error("readiness check failed", "store", "mongodb", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Order store unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func openAPIHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(openapi.Spec)
}

func docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Pizzeria API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
