package pkfinder

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos-pkfinder/internal/dialect"
	"kairos-pkfinder/internal/sqltype"
)

const (
	indexScanQuery  = "SELECT fldname FROM sysindex WHERE tblname = ? AND tblowner = ? AND idxname LIKE ? AND idxunique = ?"
	columnMetaQuery = "SELECT fldtype, fldtypename, flddefault FROM syscolumn WHERE tblowner = ? AND tblname = ? AND fldname = ?"
	columnDefQuery  = "SELECT flddefault FROM syscolumn WHERE tblowner = ? AND tblname = ? AND fldname = ?"
)

var orders = TableRef{Schema: "APP", Table: "ORDERS"}

func expectIndexScan(mock sqlmock.Sqlmock, ref TableRef, names ...any) {
	rows := sqlmock.NewRows([]string{"fldname"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(indexScanQuery)).
		WithArgs(ref.Table, ref.Schema, DefaultIndexPattern, 1).
		WillReturnRows(rows).
		RowsWillBeClosed()
}

func expectColumnMeta(mock sqlmock.Sqlmock, ref TableRef, column string, code int64, typeName string) {
	mock.ExpectQuery(regexp.QuoteMeta(columnMetaQuery)).
		WithArgs(ref.Schema, ref.Table, column).
		WillReturnRows(sqlmock.NewRows([]string{"fldtype", "fldtypename", "flddefault"}).
			AddRow(code, typeName, nil)).
		RowsWillBeClosed()
}

func expectProbe(mock sqlmock.Sqlmock, ref TableRef, column, dbType string) {
	query := `SELECT "` + column + `" FROM "` + ref.Schema + `"."` + ref.Table + `" WHERE 0=1`
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn(column).OfType(dbType, int64(0)),
		)).
		RowsWillBeClosed()
}

func expectDefault(mock sqlmock.Sqlmock, ref TableRef, column string, def any) {
	mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
		WithArgs(ref.Schema, ref.Table, column).
		WillReturnRows(sqlmock.NewRows([]string{"flddefault"}).AddRow(def)).
		RowsWillBeClosed()
}

func newTestFinder(t *testing.T, opts ...Option) (*Finder, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithLogger(logger)}, opts...)
	return NewFinder(dialect.NewKairos(), opts...), &buf
}

func TestFinder_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		want      *PrimaryKey
	}{
		{
			name: "composite key keeps catalog order",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectIndexScan(mock, orders, "CUST_ID", "LINE_NO")
				expectColumnMeta(mock, orders, "CUST_ID", 4, "INTEGER")
				expectProbe(mock, orders, "CUST_ID", "INTEGER")
				expectDefault(mock, orders, "CUST_ID", nil)
				expectColumnMeta(mock, orders, "LINE_NO", 5, "SMALLINT")
				expectProbe(mock, orders, "LINE_NO", "SMALLINT")
				expectDefault(mock, orders, "LINE_NO", "0")
			},
			want: &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
				PlainColumn("CUST_ID", sqltype.TypeInt),
				PlainColumn("LINE_NO", sqltype.TypeShort),
			}},
		},
		{
			name: "no primary key index",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectIndexScan(mock, orders)
			},
			want: nil,
		},
		{
			name: "auto-increment wins over sequence default",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectIndexScan(mock, orders, "ID")
				expectColumnMeta(mock, orders, "ID", 4, "SERIAL")
				expectProbe(mock, orders, "ID", "SERIAL")
			},
			want: &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
				AutoGeneratedColumn("ID", sqltype.TypeInt),
			}},
		},
		{
			name: "sequence backed column",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectIndexScan(mock, orders, "ID")
				expectColumnMeta(mock, orders, "ID", -5, "BIGINT")
				expectProbe(mock, orders, "ID", "BIGINT")
				expectDefault(mock, orders, "ID", "seq_foo.NEXTVAL")
			},
			want: &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
				SequenceColumn("ID", sqltype.TypeLong, "seq_foo"),
			}},
		},
		{
			name: "null index column is skipped",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectIndexScan(mock, orders, nil, "CODE")
				expectColumnMeta(mock, orders, "CODE", 12, "VARCHAR(20)")
				expectProbe(mock, orders, "CODE", "VARCHAR")
				expectDefault(mock, orders, "CODE", nil)
			},
			want: &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
				PlainColumn("CODE", sqltype.TypeString),
			}},
		},
		{
			name: "type code fallback when type name is unknown",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectIndexScan(mock, orders, "ID")
				expectColumnMeta(mock, orders, "ID", 4, "")
				expectProbe(mock, orders, "ID", "INTEGER")
				expectDefault(mock, orders, "ID", nil)
			},
			want: &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
				PlainColumn("ID", sqltype.TypeInt),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setupMock(mock)

			finder, _ := newTestFinder(t)
			got, err := finder.Resolve(context.Background(), db, orders)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFinder_Resolve_UnmappedTypeWarns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "SPAN")
	expectColumnMeta(mock, orders, "SPAN", 1111, "INTERVAL")
	expectProbe(mock, orders, "SPAN", "INTERVAL")
	expectDefault(mock, orders, "SPAN", nil)

	finder, logs := newTestFinder(t)
	pk, err := finder.Resolve(context.Background(), db, orders)
	require.NoError(t, err)
	require.NotNil(t, pk)

	col, ok := pk.Column("SPAN")
	require.True(t, ok)
	assert.Equal(t, sqltype.TypeAny, col.Type)
	assert.Contains(t, logs.String(), "no value type for sql type")
	assert.Contains(t, logs.String(), "type_name=INTERVAL")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_SequenceProbeFailureFallsBackToPlain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "ID")
	expectColumnMeta(mock, orders, "ID", 4, "INTEGER")
	expectProbe(mock, orders, "ID", "INTEGER")
	mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
		WillReturnError(errors.New("catalog unavailable"))

	finder, logs := newTestFinder(t)
	pk, err := finder.Resolve(context.Background(), db, orders)
	require.NoError(t, err)
	assert.Equal(t, &PrimaryKey{Table: "ORDERS", Columns: []KeyColumn{
		PlainColumn("ID", sqltype.TypeInt),
	}}, pk)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "error determining sequence for column")
	assert.Contains(t, logs.String(), "catalog unavailable")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_IndexScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(indexScanQuery)).WillReturnError(sql.ErrConnDone)

	finder, _ := newTestFinder(t)
	pk, err := finder.Resolve(context.Background(), db, orders)
	require.Error(t, err)
	assert.Nil(t, pk)
	assert.ErrorIs(t, err, ErrDiscovery)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	var discErr *DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, OpIndexScan, discErr.Op)
	assert.Equal(t, "ORDERS", discErr.Table)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_RowErrorClosesCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("network reset")
	mock.ExpectQuery(regexp.QuoteMeta(indexScanQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"fldname"}).
			AddRow("A").
			AddRow("B").
			RowError(1, boom)).
		RowsWillBeClosed()

	finder, _ := newTestFinder(t)
	_, err = finder.Resolve(context.Background(), db, orders)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_ColumnMetadataMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "ID")
	mock.ExpectQuery(regexp.QuoteMeta(columnMetaQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"fldtype", "fldtypename", "flddefault"})).
		RowsWillBeClosed()

	finder, _ := newTestFinder(t)
	_, err = finder.Resolve(context.Background(), db, orders)
	require.Error(t, err)
	assert.ErrorIs(t, err, dialect.ErrColumnNotFound)

	var discErr *DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, OpColumnMetadata, discErr.Op)
	assert.Equal(t, "ID", discErr.Column)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_ProbeError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "ID")
	expectColumnMeta(mock, orders, "ID", 4, "INTEGER")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "ID" FROM "APP"."ORDERS" WHERE 0=1`)).
		WillReturnError(errors.New("permission denied"))

	finder, _ := newTestFinder(t)
	_, err = finder.Resolve(context.Background(), db, orders)
	require.Error(t, err)

	var discErr *DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, OpAutoIncrementProbe, discErr.Op)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_SecondColumnFailureReturnsNoKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "CUST_ID", "LINE_NO")
	expectColumnMeta(mock, orders, "CUST_ID", 4, "INTEGER")
	expectProbe(mock, orders, "CUST_ID", "INTEGER")
	expectDefault(mock, orders, "CUST_ID", nil)
	expectColumnMeta(mock, orders, "LINE_NO", 5, "SMALLINT")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "LINE_NO" FROM "APP"."ORDERS" WHERE 0=1`)).
		WillReturnError(errors.New("connection reset"))

	finder, _ := newTestFinder(t)
	pk, err := finder.Resolve(context.Background(), db, orders)
	require.Error(t, err)
	assert.Nil(t, pk)

	var discErr *DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, OpAutoIncrementProbe, discErr.Op)
	assert.Equal(t, "LINE_NO", discErr.Column)
	// every earlier cursor carries RowsWillBeClosed
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_EmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	finder, _ := newTestFinder(t)
	_, err = finder.Resolve(context.Background(), db, TableRef{Schema: "APP"})
	require.Error(t, err)

	var discErr *DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, OpValidate, discErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_CustomIndexPattern(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(indexScanQuery)).
		WithArgs("ORDERS", "APP", "PK_%", 1).
		WillReturnRows(sqlmock.NewRows([]string{"fldname"})).
		RowsWillBeClosed()

	finder, _ := newTestFinder(t, WithIndexPattern("PK_%"))
	pk, err := finder.Resolve(context.Background(), db, orders)
	require.NoError(t, err)
	assert.Nil(t, pk)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_CustomTypeFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "ID")
	expectColumnMeta(mock, orders, "ID", 1111, "")
	expectProbe(mock, orders, "ID", "OTHER")
	expectDefault(mock, orders, "ID", nil)

	fallback := func(code int) (sqltype.ValueType, bool) {
		if code == sqltype.CodeOther {
			return sqltype.TypeString, true
		}
		return sqltype.TypeAny, false
	}
	finder, logs := newTestFinder(t, WithTypeFallback(fallback))
	pk, err := finder.Resolve(context.Background(), db, orders)
	require.NoError(t, err)
	assert.Equal(t, []KeyColumn{PlainColumn("ID", sqltype.TypeString)}, pk.Columns)
	assert.NotContains(t, logs.String(), "no value type for sql type")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// cancellingDialect cancels the resolve context while looking up a sequence.
type cancellingDialect struct {
	*dialect.Kairos
	cancel context.CancelFunc
}

func (d cancellingDialect) SequenceForColumn(ctx context.Context, _ dialect.Queryer, _, _, _ string) (string, error) {
	d.cancel()
	return "", ctx.Err()
}

func TestFinder_Resolve_CancelledDuringSequenceLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "ID")
	expectColumnMeta(mock, orders, "ID", 4, "INTEGER")
	expectProbe(mock, orders, "ID", "INTEGER")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finder := NewFinder(cancellingDialect{Kairos: dialect.NewKairos(), cancel: cancel})
	_, err = finder.Resolve(ctx, db, orders)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var discErr *DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, OpSequenceProbe, discErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinder_Resolve_OnConn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectIndexScan(mock, orders, "ID")
	expectColumnMeta(mock, orders, "ID", 4, "INT")
	expectProbe(mock, orders, "ID", "IDENTITY")

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	finder, _ := newTestFinder(t)
	pk, err := finder.Resolve(context.Background(), conn, orders)
	require.NoError(t, err)
	assert.True(t, pk.IsAutoGenerated())
	assert.NoError(t, mock.ExpectationsWereMet())
}
