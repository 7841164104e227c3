package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Resolve outcomes recorded on pkfinder.resolve.total.
const (
	OutcomeFound  = "found"
	OutcomeAbsent = "absent"
	OutcomeError  = "error"
)

// DiscoveryMetrics holds custom metrics for primary key discovery.
// A nil *DiscoveryMetrics is valid and records nothing.
type DiscoveryMetrics struct {
	resolveCounter  metric.Int64Counter
	durationHist    metric.Float64Histogram
	columnCounter   metric.Int64Counter
	sequenceFailure metric.Int64Counter
}

// InitDiscoveryMetrics initializes discovery metrics on the global meter provider.
func InitDiscoveryMetrics(logger *slog.Logger) (*DiscoveryMetrics, error) {
	meter := otel.Meter("kairos-pkfinder")

	resolveCounter, err := meter.Int64Counter(
		"pkfinder.resolve.total",
		metric.WithDescription("Total number of primary key resolutions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"pkfinder.resolve.duration",
		metric.WithDescription("Duration of primary key resolutions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve duration histogram: %w", err)
	}

	columnCounter, err := meter.Int64Counter(
		"pkfinder.columns.total",
		metric.WithDescription("Total number of classified key columns by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create column counter: %w", err)
	}

	sequenceFailure, err := meter.Int64Counter(
		"pkfinder.sequence_probe.failures.total",
		metric.WithDescription("Total number of sequence lookups that failed and fell through"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence probe failure counter: %w", err)
	}

	if logger != nil {
		logger.Debug("discovery metrics initialized")
	}
	return &DiscoveryMetrics{
		resolveCounter:  resolveCounter,
		durationHist:    durationHist,
		columnCounter:   columnCounter,
		sequenceFailure: sequenceFailure,
	}, nil
}

// RecordResolve records one resolution of a table.
func (m *DiscoveryMetrics) RecordResolve(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.resolveCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordColumn records one classified key column.
func (m *DiscoveryMetrics) RecordColumn(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.columnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSequenceProbeFailure records a sequence lookup that failed.
func (m *DiscoveryMetrics) RecordSequenceProbeFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.sequenceFailure.Add(ctx, 1)
}
