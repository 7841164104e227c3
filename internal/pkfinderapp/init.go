package pkfinderapp

import (
	"context"
	"errors"
	"log/slog"
)

// Init acquires observability providers and the database pool. Resources
// acquired before a failure are released before Init returns.
func (a *App) Init(ctx context.Context) (err error) {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return errors.New("app already initialized")
	}
	a.stateMu.Unlock()

	defer func() {
		if err != nil {
			a.cleanup.run(context.WithoutCancel(ctx), a.logger)
			a.cleanup = cleanupStack{}
		}
	}()

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return err
	}
	if meterProvider != nil {
		a.meterProvider = meterProvider
		a.metrics = metrics
		a.cleanup.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})
		if url := a.cfg.Observability.PushgatewayURL; url != "" {
			a.cleanup.push("metrics push", func(ctx context.Context) error {
				return meterProvider.Push(ctx, url, a.cfg.Observability.PushJob, pushGrouping(a.cfg.Discovery.Schema))
			})
		}
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	if tracerProvider != nil {
		a.tracerProvider = tracerProvider
		a.cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.cleanup.push("database", func(context.Context) error {
		return db.Close()
	})
	if dbStatsReg != nil {
		a.cleanup.push("db stats metrics", func(context.Context) error {
			return dbStatsReg.Unregister()
		})
	}

	if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return err
	}

	resolver, err := buildResolver(a.cfg, a.logger, a.metrics)
	if err != nil {
		return err
	}
	a.resolver = resolver

	a.stateMu.Lock()
	a.initialized = true
	a.stateMu.Unlock()

	a.logger.Info("initialized",
		slog.String("index_pattern", a.cfg.Discovery.IndexPattern),
		slog.Bool("metrics", a.metrics != nil),
		slog.Bool("tracing", a.tracerProvider != nil),
	)
	return nil
}

// pushGrouping labels pushed metrics by default schema so runs against
// different owners do not overwrite each other.
func pushGrouping(schema string) map[string]string {
	if schema == "" {
		return nil
	}
	return map[string]string{"schema": schema}
}
