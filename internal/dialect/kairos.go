package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"kairos-pkfinder/internal/sqltype"
	"kairos-pkfinder/internal/sqlutil"
)

// DefaultAutoIncrementTypes lists the result column type names Kairos reports
// for database generated columns.
var DefaultAutoIncrementTypes = []string{"SERIAL", "BIGSERIAL", "IDENTITY", "AUTO_INCREMENT"}

// Kairos implements Dialect against the Kairos system catalog (syscolumn).
type Kairos struct {
	autoIncrement map[string]struct{}
	overrides     map[string]sqltype.ValueType
}

// KairosOption configures a Kairos dialect.
type KairosOption func(*Kairos)

// WithAutoIncrementTypes replaces the result column type names treated as auto-increment.
func WithAutoIncrementTypes(names ...string) KairosOption {
	return func(k *Kairos) {
		k.autoIncrement = make(map[string]struct{}, len(names))
		for _, name := range names {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name != "" {
				k.autoIncrement[name] = struct{}{}
			}
		}
	}
}

// WithTypeOverrides maps vendor type names (case-insensitive) to value types
// ahead of the built-in mapping.
func WithTypeOverrides(overrides map[string]sqltype.ValueType) KairosOption {
	return func(k *Kairos) {
		for name, vt := range overrides {
			k.overrides[strings.ToUpper(strings.TrimSpace(name))] = vt
		}
	}
}

// NewKairos creates a Kairos dialect.
func NewKairos(opts ...KairosOption) *Kairos {
	k := &Kairos{overrides: make(map[string]sqltype.ValueType)}
	WithAutoIncrementTypes(DefaultAutoIncrementTypes...)(k)
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// QuoteIdentifier implements Dialect.
func (k *Kairos) QuoteIdentifier(name string) string {
	return sqlutil.QuoteIdentifier(name)
}

// Placeholder implements Dialect.
func (k *Kairos) Placeholder() sq.PlaceholderFormat {
	return sq.Question
}

// ColumnMetadata implements Dialect by reading syscolumn.
func (k *Kairos) ColumnMetadata(ctx context.Context, q Queryer, schema, table, column string) (ColumnMeta, error) {
	query, args, err := k.columnQuery(schema, table, column, "fldtype", "fldtypename", "flddefault")
	if err != nil {
		return ColumnMeta{}, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return ColumnMeta{}, err
	}
	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ColumnMeta{}, err
		}
		return ColumnMeta{}, fmt.Errorf("%s.%s.%s: %w", schema, table, column, ErrColumnNotFound)
	}

	var dataType sql.NullInt64
	var typeName, columnDefault sql.NullString
	if err := rows.Scan(&dataType, &typeName, &columnDefault); err != nil {
		return ColumnMeta{}, err
	}

	meta := ColumnMeta{
		Schema:   schema,
		Table:    table,
		Name:     column,
		TypeName: strings.TrimSpace(typeName.String),
		DataType: int(dataType.Int64),
	}
	if columnDefault.Valid {
		meta.Default = strings.TrimSpace(columnDefault.String)
	}
	return meta, rows.Err()
}

func (k *Kairos) columnQuery(schema, table, column string, fields ...string) (string, []any, error) {
	return sq.Select(fields...).
		From("syscolumn").
		Where(sq.Eq{"tblowner": schema}).
		Where(sq.Eq{"tblname": table}).
		Where(sq.Eq{"fldname": column}).
		PlaceholderFormat(k.Placeholder()).
		ToSql()
}

// MapType implements Dialect. Overrides win, then Kairos specific names,
// then the ANSI names shared with other vendors.
func (k *Kairos) MapType(meta ColumnMeta) (sqltype.ValueType, bool) {
	name := meta.TypeName
	if idx := strings.Index(name, "("); idx != -1 {
		name = name[:idx]
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return sqltype.TypeAny, false
	}
	if vt, ok := k.overrides[name]; ok {
		return vt, true
	}

	switch name {
	case "SERIAL":
		return sqltype.TypeInt, true
	case "BIGSERIAL":
		return sqltype.TypeLong, true
	case "BYTE", "VARBYTE", "LONG VARBYTE":
		return sqltype.TypeBytes, true
	case "NTEXT", "LONG VARCHAR":
		return sqltype.TypeString, true
	case "POINT", "LINESTRING", "POLYGON", "MULTIPOINT",
		"MULTILINESTRING", "MULTIPOLYGON", "GEOMETRY", "GEOMETRYCOLLECTION":
		return sqltype.TypeGeometry, true
	}
	return sqltype.FromTypeName(name)
}

// IsAutoIncrement implements Dialect using the probe column's database type name.
// It only fires when the driver reports the serial type name (SERIAL, IDENTITY, ...)
// rather than the underlying integer type; see WithAutoIncrementTypes.
func (k *Kairos) IsAutoIncrement(col *sql.ColumnType) bool {
	if col == nil {
		return false
	}
	_, ok := k.autoIncrement[strings.ToUpper(strings.TrimSpace(col.DatabaseTypeName()))]
	return ok
}

// SequenceForColumn implements Dialect by reading the column default and
// extracting the sequence it draws from.
func (k *Kairos) SequenceForColumn(ctx context.Context, q Queryer, schema, table, column string) (string, error) {
	query, args, err := k.columnQuery(schema, table, column, "flddefault")
	if err != nil {
		return "", err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columnDefault sql.NullString
	if rows.Next() {
		if err := rows.Scan(&columnDefault); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if !columnDefault.Valid {
		return "", nil
	}
	return SequenceFromDefault(columnDefault.String), nil
}

var (
	// seq.NEXTVAL, schema.seq.NEXTVAL, "Seq".NEXTVAL
	dotNextvalPattern = regexp.MustCompile(`(?i)^\s*((?:"[^"]+"|[a-z_][\w$#]*)(?:\s*\.\s*(?:"[^"]+"|[a-z_][\w$#]*))?)\s*\.\s*nextval\b`)
	// NEXTVAL('seq'), nextval('schema.seq'::regclass)
	callNextvalPattern = regexp.MustCompile(`(?i)^\s*nextval\s*\(\s*'([^']+)'`)
	// one quoted or bare identifier of a dotted reference
	identifierPattern = regexp.MustCompile(`"[^"]+"|[^".\s]+`)
)

// SequenceFromDefault extracts the sequence name from a column default
// expression. It returns "" when the default does not draw from a sequence.
func SequenceFromDefault(expr string) string {
	var ref string
	if m := dotNextvalPattern.FindStringSubmatch(expr); m != nil {
		ref = m[1]
	} else if m := callNextvalPattern.FindStringSubmatch(expr); m != nil {
		ref = m[1]
	} else {
		return ""
	}

	parts := identifierPattern.FindAllString(ref, -1)
	for i, part := range parts {
		name := strings.Trim(part, `"`)
		// a dot inside a quoted name stays quoted so the qualifier is not ambiguous
		if strings.Contains(name, ".") {
			name = `"` + name + `"`
		}
		parts[i] = name
	}
	return strings.Join(parts, ".")
}
