// Package pkfinderapp wires configuration, observability and the database
// connection into a single primary key discovery run.
package pkfinderapp

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"kairos-pkfinder/internal/config"
	"kairos-pkfinder/internal/logging"
	"kairos-pkfinder/internal/observability"
	"kairos-pkfinder/internal/pkfinder"
	"kairos-pkfinder/internal/report"
)

// App owns every resource acquired for a run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	runID  string

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.DiscoveryMetrics

	db       *sql.DB
	resolver pkfinder.Resolver

	cleanup      cleanupStack
	stateMu      sync.Mutex
	initialized  bool
	shutdownOnce sync.Once
}

// New creates an App. Call Init before Run.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewLogger(logging.Config{Level: "info", Format: "text"})
	}
	runID := uuid.NewString()
	return &App{
		cfg:    cfg,
		logger: logger.WithFields(slog.String("run_id", runID)),
		runID:  runID,
	}, nil
}

// RunID identifies this run in logs and in the rendered report.
func (a *App) RunID() string {
	return a.runID
}

// AttachLoggerProvider hands ownership of an OTLP logger provider to the app
// so it is flushed last on shutdown.
func (a *App) AttachLoggerProvider(lp *observability.LoggerProvider) {
	if lp == nil {
		return
	}
	a.loggerProvider = lp
	a.cleanup.push("logger provider", func(ctx context.Context) error {
		return lp.Shutdown(ctx, a.logger.Logger)
	})
}

// Run resolves every configured table and returns the report, in
// configuration order.
func (a *App) Run(ctx context.Context) (report.Report, error) {
	a.stateMu.Lock()
	ready := a.initialized
	a.stateMu.Unlock()
	if !ready {
		return report.Report{}, errors.New("app is not initialized")
	}

	targets := tableRefs(a.cfg.Discovery.Targets())
	a.logger.Info("resolving primary keys",
		slog.Int("tables", len(targets)),
		slog.Int("concurrency", a.cfg.Discovery.Concurrency),
	)

	results, err := Discover(ctx, a.db, a.resolver, targets, a.cfg.Discovery.Concurrency, a.logger)
	if err != nil {
		return report.Report{}, err
	}
	return report.Report{RunID: a.runID, Results: results}, nil
}

func tableRefs(targets []config.TableTarget) []pkfinder.TableRef {
	refs := make([]pkfinder.TableRef, len(targets))
	for i, t := range targets {
		refs[i] = pkfinder.TableRef{Schema: t.Schema, Table: t.Table}
	}
	return refs
}
