package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/keyxmakerx/gatekeeper/internal/app"
	"github.com/keyxmakerx/gatekeeper/internal/config"
	"github.com/keyxmakerx/gatekeeper/internal/database"
	"github.com/keyxmakerx/gatekeeper/internal/plugins/auth"
)

// shutdownTimeout is how long in-flight requests get to finish on SIGTERM.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server on PORT using the credential store selected by
STORE_BACKEND. The mariadb backend applies pending migrations first.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return err
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open credential store",
			slog.String("backend", cfg.Store.Backend),
			slog.Any("error", err),
		)
		return err
	}
	defer backend.close()

	application, err := app.New(cfg, backend.store, backend.checks)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}

	if cfg.Bootstrap.Enabled() {
		if err := application.Auth.Bootstrap(ctx, cfg.Bootstrap.Username, cfg.Bootstrap.Email, cfg.Bootstrap.Digest); err != nil {
			return fmt.Errorf("seeding bootstrap account: %w", err)
		}
	}

	// Register all routes (operational and plugin).
	application.RegisterRoutes()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", slog.Any("error", err))
		return err
	}
	return <-errCh
}

// storeBackend is an opened credential store plus what the server needs to
// health-check and release it.
type storeBackend struct {
	store  auth.CredentialStore
	checks map[string]app.HealthCheck
	close  func()
}

// openStore connects the backend named by STORE_BACKEND.
func openStore(ctx context.Context, cfg *config.Config) (*storeBackend, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		slog.Warn("using in-memory credential store; accounts are lost on restart")
		return &storeBackend{store: auth.NewMemoryStore(), close: func() {}}, nil

	case config.StoreRedis:
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to Redis")
		return &storeBackend{
			store:  auth.NewRedisStore(rdb),
			checks: map[string]app.HealthCheck{"redis": redisCheck(rdb)},
			close:  func() { rdb.Close() },
		}, nil

	case config.StoreMariaDB:
		db, err := database.NewMariaDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to MariaDB")
		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
		return &storeBackend{
			store:  auth.NewMariaDBStore(db),
			checks: map[string]app.HealthCheck{"mariadb": db.PingContext},
			close:  func() { db.Close() },
		}, nil
	}

	return nil, errors.New("unknown store backend: " + cfg.Store.Backend)
}

func redisCheck(rdb *redis.Client) app.HealthCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
