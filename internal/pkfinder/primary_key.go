package pkfinder

import (
	"kairos-pkfinder/internal/sqltype"
)

// TableRef identifies a table by schema (owner) and name.
type TableRef struct {
	Schema string
	Table  string
}

func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Table
	}
	return r.Schema + "." + r.Table
}

// ColumnKind is how the database maintains a key column's value.
type ColumnKind int

const (
	// KindPlain columns have no generation strategy; callers supply values.
	KindPlain ColumnKind = iota
	// KindAutoGenerated columns are assigned by the database on insert.
	KindAutoGenerated
	// KindSequence columns draw values from a named sequence.
	KindSequence
)

func (k ColumnKind) String() string {
	switch k {
	case KindAutoGenerated:
		return "auto_generated"
	case KindSequence:
		return "sequence"
	default:
		return "plain"
	}
}

// MarshalText renders the kind by name in JSON and YAML reports.
func (k ColumnKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KeyColumn describes one primary key column.
type KeyColumn struct {
	Name string            `json:"name" yaml:"name"`
	Type sqltype.ValueType `json:"type" yaml:"type"`
	Kind ColumnKind        `json:"kind" yaml:"kind"`
	// SequenceName is set only for KindSequence.
	SequenceName string `json:"sequence,omitempty" yaml:"sequence,omitempty"`
}

// AutoGeneratedColumn returns a descriptor for a database assigned column.
func AutoGeneratedColumn(name string, vt sqltype.ValueType) KeyColumn {
	return KeyColumn{Name: name, Type: vt, Kind: KindAutoGenerated}
}

// SequenceColumn returns a descriptor for a column fed by the named sequence.
func SequenceColumn(name string, vt sqltype.ValueType, sequence string) KeyColumn {
	return KeyColumn{Name: name, Type: vt, Kind: KindSequence, SequenceName: sequence}
}

// PlainColumn returns a descriptor for a column without a generation strategy.
func PlainColumn(name string, vt sqltype.ValueType) KeyColumn {
	return KeyColumn{Name: name, Type: vt, Kind: KindPlain}
}

// PrimaryKey is the ordered set of key columns of a table.
// Column order is the order reported by the index catalog.
type PrimaryKey struct {
	Table   string      `json:"table" yaml:"table"`
	Columns []KeyColumn `json:"columns" yaml:"columns"`
}

// ColumnNames returns the key column names in key order.
func (pk *PrimaryKey) ColumnNames() []string {
	if pk == nil {
		return nil
	}
	names := make([]string, len(pk.Columns))
	for i, col := range pk.Columns {
		names[i] = col.Name
	}
	return names
}

// Column returns the key column with the given name.
func (pk *PrimaryKey) Column(name string) (KeyColumn, bool) {
	if pk == nil {
		return KeyColumn{}, false
	}
	for _, col := range pk.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return KeyColumn{}, false
}

// IsAutoGenerated reports whether every key column is assigned by the database,
// meaning inserts can omit the key entirely.
func (pk *PrimaryKey) IsAutoGenerated() bool {
	if pk == nil || len(pk.Columns) == 0 {
		return false
	}
	for _, col := range pk.Columns {
		if col.Kind != KindAutoGenerated {
			return false
		}
	}
	return true
}
