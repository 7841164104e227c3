package pkfinderapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"kairos-pkfinder/internal/logging"
	"kairos-pkfinder/internal/pkfinder"
	"kairos-pkfinder/internal/report"
)

// Discover resolves targets with at most concurrency tables in flight. Each
// table is resolved on its own pooled connection. The first error cancels
// the remaining work and is returned.
func Discover(ctx context.Context, db *sql.DB, resolver pkfinder.Resolver, targets []pkfinder.TableRef, concurrency int, logger *logging.Logger) ([]report.Result, error) {
	results := make([]report.Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, ref := range targets {
		g.Go(func() error {
			conn, err := db.Conn(gctx)
			if err != nil {
				return fmt.Errorf("acquire connection for %s: %w", ref, err)
			}
			defer conn.Close()

			pk, err := resolver.Resolve(gctx, conn, ref)
			if err != nil {
				return err
			}
			results[i] = report.Result{Schema: ref.Schema, Table: ref.Table, PrimaryKey: pk}

			if pk == nil {
				logger.WithTable(ref.Schema, ref.Table).Warn("no primary key found")
			} else {
				logger.WithTable(ref.Schema, ref.Table).Info("primary key resolved",
					slog.Any("columns", pk.ColumnNames()),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
