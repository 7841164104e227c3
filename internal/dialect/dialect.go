// Package dialect defines the vendor operations primary key discovery depends on:
// identifier quoting, column metadata lookup, type mapping, auto-increment
// detection and sequence lookup.
package dialect

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"kairos-pkfinder/internal/sqltype"
)

// ErrColumnNotFound is returned when the column catalog has no row for a column.
var ErrColumnNotFound = errors.New("column not found in catalog")

// Queryer provides query access to a single connection.
// *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ColumnMeta is one row of the column catalog.
type ColumnMeta struct {
	Schema   string
	Table    string
	Name     string
	TypeName string
	// DataType is the JDBC type code (java.sql.Types) of the column.
	DataType int
	// Default is the column default expression, empty when none.
	Default string
}

// Dialect is the vendor abstraction used while classifying key columns.
type Dialect interface {
	// QuoteIdentifier quotes a table, schema or column name for use in SQL text.
	QuoteIdentifier(name string) string
	// Placeholder returns the bind parameter format for catalog queries.
	Placeholder() sq.PlaceholderFormat
	// ColumnMetadata looks up the catalog row for one column.
	ColumnMetadata(ctx context.Context, q Queryer, schema, table, column string) (ColumnMeta, error)
	// MapType maps a catalog row to a value type. It reports false when the
	// vendor type is unknown so callers can fall back to the type code.
	MapType(meta ColumnMeta) (sqltype.ValueType, bool)
	// IsAutoIncrement reports whether a result column is database generated.
	IsAutoIncrement(col *sql.ColumnType) bool
	// SequenceForColumn returns the name of the sequence feeding the column,
	// or "" when there is none.
	SequenceForColumn(ctx context.Context, q Queryer, schema, table, column string) (string, error)
}
