// Package app wires configuration, the database, and the runtime
// modes together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/launchpad/internal/config"
	"github.com/wisbric/launchpad/internal/httpserver"
	"github.com/wisbric/launchpad/internal/platform"
	"github.com/wisbric/launchpad/internal/telemetry"
	"github.com/wisbric/launchpad/pkg/catalog"
	"github.com/wisbric/launchpad/pkg/deployment"
	"github.com/wisbric/launchpad/pkg/provision"
	"github.com/wisbric/launchpad/pkg/reconcile"
	"github.com/wisbric/launchpad/pkg/user"
)

// Setup connects to infrastructure shared by every mode: logger,
// database, migrations, metrics.
type Setup struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	DB      *sqlx.DB
	Metrics *prometheus.Registry
}

// NewSetup builds the logger from the given config, opens the database,
// applies migrations, and creates the metrics registry.
func NewSetup(ctx context.Context, cfg *config.Config) (*Setup, error) {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := platform.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := platform.Migrate(ctx, db, cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied", "driver", platform.DriverFor(cfg.DatabaseURL))

	return &Setup{
		Cfg:     cfg,
		Logger:  logger,
		DB:      db,
		Metrics: telemetry.NewMetricsRegistry(telemetry.All()...),
	}, nil
}

// Close releases the setup's resources.
func (s *Setup) Close() {
	_ = s.DB.Close()
}

// RunAPI serves the HTTP API until ctx is cancelled.
func RunAPI(ctx context.Context, s *Setup) error {
	srv := httpserver.NewServer(s.Logger, s.DB, s.Metrics, s.Cfg.MetricsPath)

	srv.APIRouter.Mount("/users", user.NewHandler(s.DB, s.Logger).Routes())
	srv.APIRouter.Mount("/products", catalog.NewHandler(s.DB, s.Logger).Routes())
	srv.APIRouter.Mount("/deployments", deployment.NewHandler(s.DB, s.Logger).Routes())

	httpSrv := &http.Server{
		Addr:         s.Cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("api server listening", "addr", s.Cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.Logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// RunWorker runs the reconcile worker pool until ctx is cancelled.
func RunWorker(ctx context.Context, s *Setup) error {
	prov := provision.NewCLIProvisioner(nil)
	s.Logger.Info("worker pool starting", "workers", s.Cfg.WorkerCount)
	return reconcile.RunPool(ctx, s.DB, prov, s.Logger, s.Cfg.WorkerCount)
}
