package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/vendhub/vendhub-backend/internal/config"
	"github.com/vendhub/vendhub-backend/internal/handlers"
	"github.com/vendhub/vendhub-backend/internal/ingest"
	"github.com/vendhub/vendhub-backend/internal/logging"
	"github.com/vendhub/vendhub-backend/internal/middleware"
	"github.com/vendhub/vendhub-backend/internal/repository"
	"github.com/vendhub/vendhub-backend/internal/server"
	"github.com/vendhub/vendhub-backend/internal/service"
	"github.com/vendhub/vendhub-backend/internal/vendista"

	authpkg "github.com/vendhub/vendhub-backend/internal/auth"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vendhub",
		Short: "VendHub backend: Vendista transaction sync engine and API",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(serveCmd(), syncCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	return cfg, logger, nil
}

func runMigrations(cfg *config.Config, logger *logging.Logger) error {
	m, err := migrate.New(
		"file://"+cfg.Database.Postgres.Migrations,
		cfg.Database.Postgres.ConnString(),
	)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("database migrations applied")
	return nil
}

func buildSyncService(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*service.SyncService, repository.Repository, error) {
	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.Postgres.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	client := vendista.NewClient(vendista.Config{
		BaseURL: cfg.Vendista.BaseURL,
		Token:   cfg.Vendista.Token,
		Timeout: cfg.Vendista.Timeout,
	}, logger)

	pipeline := ingest.NewPipeline(repo, logger)
	syncSvc := service.NewSyncService(client, pipeline, repo, logger)
	syncSvc.SetDefaults(cfg.Vendista.ItemsPerPage, cfg.Vendista.OrderDesc)

	return syncSvc, repo, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			if err := runMigrations(cfg, logger); err != nil {
				return err
			}

			ctx := cmd.Context()
			syncSvc, repo, err := buildSyncService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			h := handlers.New(
				syncSvc,
				service.NewTransactionService(repo),
				service.NewTerminalService(repo),
				logger,
			)

			tokens := authpkg.NewTokenGenerator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			router := server.NewRouter(h, middleware.NewAuthMiddleware(tokens))

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting http server", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case sig := <-stop:
				logger.Info("shutting down", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var (
		periodStart  string
		periodEnd    string
		itemsPerPage int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			if err := runMigrations(cfg, logger); err != nil {
				return err
			}

			ctx := cmd.Context()
			syncSvc, repo, err := buildSyncService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			var params service.SyncParams
			if periodStart != "" {
				t, err := time.Parse("2006-01-02", periodStart)
				if err != nil {
					return fmt.Errorf("invalid --period-start: %w", err)
				}
				params.PeriodStart = &t
			}
			if periodEnd != "" {
				t, err := time.Parse("2006-01-02", periodEnd)
				if err != nil {
					return fmt.Errorf("invalid --period-end: %w", err)
				}
				params.PeriodEnd = &t
			}
			params.ItemsPerPage = itemsPerPage

			run, runErr := syncSvc.RunSync(ctx, params)
			if run != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&periodStart, "period-start", "", "period start (YYYY-MM-DD, default: first of current month)")
	cmd.Flags().StringVar(&periodEnd, "period-end", "", "period end (YYYY-MM-DD, default: today)")
	cmd.Flags().IntVar(&itemsPerPage, "items-per-page", 0, "page size (default: from config)")

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return runMigrations(cfg, logger)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			m, err := migrate.New(
				"file://"+cfg.Database.Postgres.Migrations,
				cfg.Database.Postgres.ConnString(),
			)
			if err != nil {
				return fmt.Errorf("init migrations: %w", err)
			}
			defer m.Close()

			if err := m.Steps(-1); err != nil {
				return fmt.Errorf("roll back migration: %w", err)
			}

			logger.Info("rolled back one migration")
			return nil
		},
	})

	return cmd
}
