package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bissquit/pizzeria/internal/app"
	"github.com/bissquit/pizzeria/internal/config"
	"github.com/bissquit/pizzeria/internal/identity"
	identitypostgres "github.com/bissquit/pizzeria/internal/identity/postgres"
	"github.com/bissquit/pizzeria/internal/seed"
	"github.com/bissquit/pizzeria/internal/version"
	"github.com/bissquit/pizzeria/migrations"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pizzeria",
		Short:         "Pizzeria ordering API",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to YAML config file")

	load := func(validate configCheck) (*config.Config, error) {
		return loadConfig(configPath, validate)
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newSeedCmd(load),
	)
	return root
}

// configCheck checks the part of the configuration a command depends on.
type configCheck func(*config.Config) error

type configLoader func(validate configCheck) (*config.Config, error)

func loadConfig(path string, validate configCheck) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	slog.SetDefault(app.NewLogger(cfg.Log))
	return cfg, nil
}

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load((*config.Config).Validate)
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Run()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return application.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the user directory schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := load((*config.Config).ValidateDatabase)
			if err != nil {
				return err
			}

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			switch direction {
			case "down":
				err = migrations.Down(cfg.Database.URL)
			default:
				err = migrations.Up(cfg.Database.URL)
			}
			if err != nil {
				return err
			}

			slog.Info("migrations applied", "direction", direction)
			return nil
		},
	}
}

func newSeedCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load((*config.Config).ValidateDatabase)
			if err != nil {
				return err
			}

			db, err := app.ConnectPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			service := identity.NewService(identitypostgres.NewRepository(db), nil)
			_, err = seed.Admin(cmd.Context(), service, cfg.Seed)
			return err
		},
	}
}
