package dialect

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos-pkfinder/internal/sqltype"
)

const (
	columnMetaQuery = "SELECT fldtype, fldtypename, flddefault FROM syscolumn WHERE tblowner = ? AND tblname = ? AND fldname = ?"
	columnDefQuery  = "SELECT flddefault FROM syscolumn WHERE tblowner = ? AND tblname = ? AND fldname = ?"
)

func TestKairos_ColumnMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"fldtype", "fldtypename", "flddefault"}).
		AddRow(int64(4), "INT ", nil)
	mock.ExpectQuery(regexp.QuoteMeta(columnMetaQuery)).
		WithArgs("APP", "ORDERS", "ID").
		WillReturnRows(rows).
		RowsWillBeClosed()

	meta, err := NewKairos().ColumnMetadata(context.Background(), db, "APP", "ORDERS", "ID")
	require.NoError(t, err)
	assert.Equal(t, ColumnMeta{
		Schema:   "APP",
		Table:    "ORDERS",
		Name:     "ID",
		TypeName: "INT",
		DataType: 4,
	}, meta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKairos_ColumnMetadata_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(columnMetaQuery)).
		WithArgs("APP", "ORDERS", "GONE").
		WillReturnRows(sqlmock.NewRows([]string{"fldtype", "fldtypename", "flddefault"})).
		RowsWillBeClosed()

	_, err = NewKairos().ColumnMetadata(context.Background(), db, "APP", "ORDERS", "GONE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	assert.Contains(t, err.Error(), "APP.ORDERS.GONE")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKairos_ColumnMetadata_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(columnMetaQuery)).WillReturnError(sql.ErrConnDone)

	_, err = NewKairos().ColumnMetadata(context.Background(), db, "APP", "ORDERS", "ID")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestKairos_MapType(t *testing.T) {
	k := NewKairos(WithTypeOverrides(map[string]sqltype.ValueType{"numeric": sqltype.TypeLong}))

	tests := []struct {
		typeName string
		want     sqltype.ValueType
		ok       bool
	}{
		{"INT", sqltype.TypeInt, true},
		{"serial", sqltype.TypeInt, true},
		{"BIGSERIAL", sqltype.TypeLong, true},
		{"VARCHAR(40)", sqltype.TypeString, true},
		{"NUMERIC(12,0)", sqltype.TypeLong, true},
		{"DECIMAL(10,2)", sqltype.TypeDecimal, true},
		{"VARBYTE", sqltype.TypeBytes, true},
		{"point", sqltype.TypeGeometry, true},
		{"MULTIPOLYGON", sqltype.TypeGeometry, true},
		{"DATETIME", sqltype.TypeTimestamp, true},
		{"INTERVAL", sqltype.TypeAny, false},
		{"", sqltype.TypeAny, false},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			got, ok := k.MapType(ColumnMeta{TypeName: tt.typeName})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKairos_IsAutoIncrement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("ID").OfType("SERIAL", int64(0)),
		sqlmock.NewColumn("CODE").OfType("VARCHAR", ""),
		sqlmock.NewColumn("SEQ").OfType("counter", int64(0)),
	)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	result, err := db.Query("SELECT ID, CODE, SEQ FROM T WHERE 0=1")
	require.NoError(t, err)
	defer result.Close()
	cols, err := result.ColumnTypes()
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.True(t, NewKairos().IsAutoIncrement(cols[0]))
	assert.False(t, NewKairos().IsAutoIncrement(cols[1]))
	assert.False(t, NewKairos().IsAutoIncrement(cols[2]))
	assert.True(t, NewKairos(WithAutoIncrementTypes("COUNTER")).IsAutoIncrement(cols[2]))
	assert.False(t, NewKairos(WithAutoIncrementTypes("COUNTER")).IsAutoIncrement(cols[0]))
	assert.False(t, NewKairos().IsAutoIncrement(nil))
}

func TestKairos_SequenceForColumn(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		want      string
		wantErr   bool
	}{
		{
			name: "default draws from sequence",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
					WithArgs("APP", "ORDERS", "ID").
					WillReturnRows(sqlmock.NewRows([]string{"flddefault"}).AddRow("seq_foo.NEXTVAL")).
					RowsWillBeClosed()
			},
			want: "seq_foo",
		},
		{
			name: "literal default",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"flddefault"}).AddRow("0")).
					RowsWillBeClosed()
			},
			want: "",
		},
		{
			name: "null default",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"flddefault"}).AddRow(nil)).
					RowsWillBeClosed()
			},
			want: "",
		},
		{
			name: "column missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"flddefault"})).
					RowsWillBeClosed()
			},
			want: "",
		},
		{
			name: "query fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(columnDefQuery)).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setupMock(mock)

			got, err := NewKairos().SequenceForColumn(context.Background(), db, "APP", "ORDERS", "ID")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSequenceFromDefault(t *testing.T) {
	tests := map[string]string{
		"seq_foo.nextval":                    "seq_foo",
		"SEQ_FOO.NEXTVAL":                    "SEQ_FOO",
		"APP.SEQ_ORDERS.NEXTVAL":             "APP.SEQ_ORDERS",
		`"App"."Order Seq".nextval`:          "App.Order Seq",
		`"sch"."a.b".NEXTVAL`:                `sch."a.b"`,
		`"a.b".nextval`:                      `"a.b"`,
		"nextval('\"sch\".\"a.b\"')":         `sch."a.b"`,
		" app . seq1 . nextval ":             "app.seq1",
		"nextval('seq_foo')":                 "seq_foo",
		"NEXTVAL('app.seq_foo'::regclass)":   "app.seq_foo",
		"0":                                  "",
		"'nextval'":                          "",
		"CURRENT_TIMESTAMP":                  "",
		"seq_foo.currval":                    "",
		"":                                   "",
		"seq_foo.nextvalue":                  "",
	}

	for expr, want := range tests {
		t.Run(expr, func(t *testing.T) {
			assert.Equal(t, want, SequenceFromDefault(expr))
		})
	}
}
