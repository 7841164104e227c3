// Package pkfinder discovers the primary key of a Kairos table from the system
// index catalog and classifies each key column as auto-generated,
// sequence-backed or plain.
package pkfinder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kairos-pkfinder/internal/dialect"
	"kairos-pkfinder/internal/observability"
	"kairos-pkfinder/internal/sqltype"
	"kairos-pkfinder/internal/sqlutil"
)

// DefaultIndexPattern is the LIKE pattern Kairos uses to name primary key
// constraint indexes.
const DefaultIndexPattern = "_cst_pk%"

// Resolver determines the primary key of a table.
// A nil key with a nil error means the table has no primary key.
type Resolver interface {
	Resolve(ctx context.Context, q dialect.Queryer, ref TableRef) (*PrimaryKey, error)
}

// TypeFallback maps a JDBC type code when the dialect cannot map a column.
type TypeFallback func(code int) (sqltype.ValueType, bool)

// Finder resolves primary keys through the Kairos sysindex catalog.
// It holds no per-call state and is safe for concurrent use.
type Finder struct {
	dialect      dialect.Dialect
	logger       *slog.Logger
	fallback     TypeFallback
	metrics      *observability.DiscoveryMetrics
	indexPattern string
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the logger used for warnings and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTypeFallback replaces the generic type code mapping.
func WithTypeFallback(fallback TypeFallback) Option {
	return func(f *Finder) {
		if fallback != nil {
			f.fallback = fallback
		}
	}
}

// WithMetrics records resolutions on the given metrics.
func WithMetrics(metrics *observability.DiscoveryMetrics) Option {
	return func(f *Finder) {
		f.metrics = metrics
	}
}

// WithIndexPattern overrides the index name LIKE pattern.
func WithIndexPattern(pattern string) Option {
	return func(f *Finder) {
		if pattern != "" {
			f.indexPattern = pattern
		}
	}
}

// NewFinder creates a Finder using the given dialect.
func NewFinder(d dialect.Dialect, opts ...Option) *Finder {
	f := &Finder{
		dialect:      d,
		logger:       slog.Default(),
		fallback:     sqltype.FromTypeCode,
		indexPattern: DefaultIndexPattern,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve implements Resolver.
func (f *Finder) Resolve(ctx context.Context, q dialect.Queryer, ref TableRef) (pk *PrimaryKey, err error) {
	ctx, span := startSpan(ctx, "pkfinder.resolve",
		attribute.String("db.schema", ref.Schema),
		attribute.String("db.table", ref.Table),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := observability.OutcomeFound
		switch {
		case err != nil:
			outcome = observability.OutcomeError
			recordSpanError(span, err)
		case pk == nil:
			outcome = observability.OutcomeAbsent
		}
		span.SetAttributes(attribute.String("pkfinder.outcome", outcome))
		f.metrics.RecordResolve(ctx, time.Since(start), outcome)
	}()

	if ref.Table == "" {
		return nil, &DiscoveryError{Op: OpValidate, Schema: ref.Schema, Err: errors.New("table name is required")}
	}

	names, err := f.scanKeyColumns(ctx, q, ref)
	if err != nil {
		return nil, &DiscoveryError{Op: OpIndexScan, Schema: ref.Schema, Table: ref.Table, Err: err}
	}

	columns := make([]KeyColumn, 0, len(names))
	for _, name := range names {
		col, err := f.classify(ctx, q, ref, name)
		if err != nil {
			return nil, err
		}
		f.metrics.RecordColumn(ctx, col.Kind.String())
		columns = append(columns, col)
	}

	if len(columns) == 0 {
		f.logger.Debug("no primary key index found",
			slog.String("schema", ref.Schema),
			slog.String("table", ref.Table),
		)
		return nil, nil
	}
	return &PrimaryKey{Table: ref.Table, Columns: columns}, nil
}

// scanKeyColumns reads the unique primary key index columns in catalog order.
// The cursor is fully drained and closed before any column is classified so
// the connection is free for the per-column queries.
func (f *Finder) scanKeyColumns(ctx context.Context, q dialect.Queryer, ref TableRef) ([]string, error) {
	ctx, span := startSpan(ctx, "pkfinder.index_scan",
		attribute.String("db.schema", ref.Schema),
		attribute.String("db.table", ref.Table),
	)
	defer span.End()

	query, args, err := sq.Select("fldname").
		From("sysindex").
		Where(sq.Eq{"tblname": ref.Table}).
		Where(sq.Eq{"tblowner": ref.Schema}).
		Where(sq.Like{"idxname": f.indexPattern}).
		Where(sq.Eq{"idxunique": 1}).
		PlaceholderFormat(f.dialect.Placeholder()).
		ToSql()
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var names []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if !name.Valid {
			f.logger.Debug("skipping index row without column name",
				slog.String("schema", ref.Schema),
				slog.String("table", ref.Table),
			)
			continue
		}
		names = append(names, name.String)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("pkfinder.key_columns", len(names)))
	return names, nil
}

// classify determines the value type and generation strategy of one key column.
// Strategies are tried in order: auto-increment, sequence, plain.
func (f *Finder) classify(ctx context.Context, q dialect.Queryer, ref TableRef, column string) (KeyColumn, error) {
	ctx, span := startSpan(ctx, "pkfinder.classify_column",
		attribute.String("db.table", ref.Table),
		attribute.String("db.column", column),
	)
	defer span.End()

	fail := func(op string, err error) (KeyColumn, error) {
		recordSpanError(span, err)
		return KeyColumn{}, &DiscoveryError{Op: op, Schema: ref.Schema, Table: ref.Table, Column: column, Err: err}
	}

	meta, err := f.dialect.ColumnMetadata(ctx, q, ref.Schema, ref.Table, column)
	if err != nil {
		return fail(OpColumnMetadata, err)
	}
	vt := f.resolveType(meta)

	auto, err := f.probeAutoIncrement(ctx, q, ref, column)
	if err != nil {
		return fail(OpAutoIncrementProbe, err)
	}
	if auto {
		span.SetAttributes(attribute.String("pkfinder.kind", KindAutoGenerated.String()))
		return AutoGeneratedColumn(column, vt), nil
	}

	sequence, err := f.lookupSequence(ctx, q, ref, column)
	var seqErr *SequenceLookupError
	switch {
	case errors.As(err, &seqErr):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(OpSequenceProbe, ctxErr)
		}
		f.logger.Warn("error determining sequence for column",
			slog.String("schema", ref.Schema),
			slog.String("table", ref.Table),
			slog.String("column", column),
			slog.String("error", seqErr.Err.Error()),
		)
		f.metrics.RecordSequenceProbeFailure(ctx)
	case err != nil:
		return fail(OpSequenceProbe, err)
	case sequence != "":
		span.SetAttributes(attribute.String("pkfinder.kind", KindSequence.String()))
		return SequenceColumn(column, vt, sequence), nil
	}

	span.SetAttributes(attribute.String("pkfinder.kind", KindPlain.String()))
	return PlainColumn(column, vt), nil
}

// resolveType maps a column through the dialect, then the generic type code
// table, and finally falls back to TypeAny with a warning.
func (f *Finder) resolveType(meta dialect.ColumnMeta) sqltype.ValueType {
	if vt, ok := f.dialect.MapType(meta); ok {
		return vt
	}
	if vt, ok := f.fallback(meta.DataType); ok {
		return vt
	}
	f.logger.Warn("no value type for sql type",
		slog.Int("data_type", meta.DataType),
		slog.String("type_name", meta.TypeName),
		slog.String("table", meta.Table),
		slog.String("column", meta.Name),
	)
	return sqltype.TypeAny
}

// probeAutoIncrement runs a query returning no rows and inspects the result
// column metadata for the auto-increment flag.
func (f *Finder) probeAutoIncrement(ctx context.Context, q dialect.Queryer, ref TableRef, column string) (bool, error) {
	query, args, err := sq.Select(f.dialect.QuoteIdentifier(column)).
		From(sqlutil.QualifiedName(f.dialect.QuoteIdentifier, ref.Schema, ref.Table)).
		Where("0=1").
		PlaceholderFormat(f.dialect.Placeholder()).
		ToSql()
	if err != nil {
		return false, err
	}

	f.logger.Debug("grabbing table pk metadata", slog.String("sql", query))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = rows.Close()
	}()

	types, err := rows.ColumnTypes()
	if err != nil {
		return false, err
	}
	if len(types) == 0 {
		return false, fmt.Errorf("probe query returned no columns")
	}
	return f.dialect.IsAutoIncrement(types[0]), nil
}

// lookupSequence asks the dialect for the sequence bound to a column.
// Dialect failures are returned as *SequenceLookupError.
func (f *Finder) lookupSequence(ctx context.Context, q dialect.Queryer, ref TableRef, column string) (string, error) {
	name, err := f.dialect.SequenceForColumn(ctx, q, ref.Schema, ref.Table, column)
	if err != nil {
		return "", &SequenceLookupError{Schema: ref.Schema, Table: ref.Table, Column: column, Err: err}
	}
	return name, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("kairos-pkfinder/pkfinder")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
