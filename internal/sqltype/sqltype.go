// Package sqltype provides a shared mapping from SQL data types to the value types
// carried by primary key column descriptors.
// Dialects map vendor type names first; the JDBC type code table here is the generic fallback.
package sqltype

import (
	"math/big"
	"reflect"
	"strings"
	"time"
)

// ValueType is the semantic type tag of a column value.
type ValueType int

const (
	// TypeAny is the untyped fallback used when no mapping is known.
	TypeAny ValueType = iota
	// TypeBool represents boolean and single-bit types.
	TypeBool
	// TypeShort represents 8 and 16 bit integers.
	TypeShort
	// TypeInt represents 32 bit integers.
	TypeInt
	// TypeLong represents 64 bit integers.
	TypeLong
	// TypeFloat represents single precision floating point.
	TypeFloat
	// TypeDouble represents double precision floating point.
	TypeDouble
	// TypeDecimal represents fixed-point numerics.
	TypeDecimal
	// TypeString represents character data.
	TypeString
	// TypeDate represents calendar dates.
	TypeDate
	// TypeTime represents time of day.
	TypeTime
	// TypeTimestamp represents date and time.
	TypeTimestamp
	// TypeBytes represents binary data.
	TypeBytes
	// TypeGeometry represents spatial values.
	TypeGeometry
)

// JDBC type codes (java.sql.Types) as reported in a catalog DATA_TYPE column.
const (
	CodeBit           = -7
	CodeTinyInt       = -6
	CodeSmallInt      = 5
	CodeInteger       = 4
	CodeBigInt        = -5
	CodeFloat         = 6
	CodeReal          = 7
	CodeDouble        = 8
	CodeNumeric       = 2
	CodeDecimal       = 3
	CodeChar          = 1
	CodeVarchar       = 12
	CodeLongVarchar   = -1
	CodeDate          = 91
	CodeTime          = 92
	CodeTimestamp     = 93
	CodeBinary        = -2
	CodeVarbinary     = -3
	CodeLongVarbinary = -4
	CodeOther         = 1111
	CodeBlob          = 2004
	CodeClob          = 2005
	CodeBoolean       = 16
	CodeNChar         = -15
	CodeNVarchar      = -9
	CodeLongNVarchar  = -16
	CodeNClob         = 2011
	CodeTimeTZ        = 2013
	CodeTimestampTZ   = 2014
)

var typeCodes = map[int]ValueType{
	CodeBit:           TypeBool,
	CodeBoolean:       TypeBool,
	CodeTinyInt:       TypeShort,
	CodeSmallInt:      TypeShort,
	CodeInteger:       TypeInt,
	CodeBigInt:        TypeLong,
	CodeReal:          TypeFloat,
	CodeFloat:         TypeDouble,
	CodeDouble:        TypeDouble,
	CodeNumeric:       TypeDecimal,
	CodeDecimal:       TypeDecimal,
	CodeChar:          TypeString,
	CodeVarchar:       TypeString,
	CodeLongVarchar:   TypeString,
	CodeNChar:         TypeString,
	CodeNVarchar:      TypeString,
	CodeLongNVarchar:  TypeString,
	CodeClob:          TypeString,
	CodeNClob:         TypeString,
	CodeDate:          TypeDate,
	CodeTime:          TypeTime,
	CodeTimeTZ:        TypeTime,
	CodeTimestamp:     TypeTimestamp,
	CodeTimestampTZ:   TypeTimestamp,
	CodeBinary:        TypeBytes,
	CodeVarbinary:     TypeBytes,
	CodeLongVarbinary: TypeBytes,
	CodeBlob:          TypeBytes,
}

// FromTypeCode maps a JDBC type code to a value type.
// CodeOther and unknown codes are reported as unmapped.
func FromTypeCode(code int) (ValueType, bool) {
	t, ok := typeCodes[code]
	return t, ok
}

// FromTypeName maps an ANSI SQL type name to a value type.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching.
func FromTypeName(sqlType string) (ValueType, bool) {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "BOOL", "BOOLEAN", "BIT":
		return TypeBool, true
	case "TINYINT", "SMALLINT":
		return TypeShort, true
	case "INT", "INTEGER":
		return TypeInt, true
	case "BIGINT":
		return TypeLong, true
	case "REAL":
		return TypeFloat, true
	case "FLOAT", "DOUBLE", "DOUBLE PRECISION":
		return TypeDouble, true
	case "DECIMAL", "NUMERIC":
		return TypeDecimal, true
	case "CHAR", "VARCHAR", "CHARACTER", "CHARACTER VARYING",
		"NCHAR", "NVARCHAR", "TEXT", "CLOB":
		return TypeString, true
	case "DATE":
		return TypeDate, true
	case "TIME":
		return TypeTime, true
	case "TIMESTAMP", "DATETIME":
		return TypeTimestamp, true
	case "BINARY", "VARBINARY", "BLOB":
		return TypeBytes, true
	default:
		return TypeAny, false
	}
}

// Parse returns the value type with the given name as produced by String.
// Matching is case-insensitive; unknown names report false.
func Parse(name string) (ValueType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t := TypeAny; t <= TypeGeometry; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return TypeAny, false
}

// String returns the lower-case name of the value type.
func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeTimestamp:
		return "timestamp"
	case TypeBytes:
		return "bytes"
	case TypeGeometry:
		return "geometry"
	default:
		return "any"
	}
}

// GoType returns the Go type a caller should scan values of this type into.
// Temporal types all scan into time.Time; geometry scans as raw bytes (WKB).
func (t ValueType) GoType() reflect.Type {
	switch t {
	case TypeBool:
		return reflect.TypeOf(false)
	case TypeShort:
		return reflect.TypeOf(int16(0))
	case TypeInt:
		return reflect.TypeOf(int32(0))
	case TypeLong:
		return reflect.TypeOf(int64(0))
	case TypeFloat:
		return reflect.TypeOf(float32(0))
	case TypeDouble:
		return reflect.TypeOf(float64(0))
	case TypeDecimal:
		return reflect.TypeOf((*big.Rat)(nil))
	case TypeString:
		return reflect.TypeOf("")
	case TypeDate, TypeTime, TypeTimestamp:
		return reflect.TypeOf(time.Time{})
	case TypeBytes, TypeGeometry:
		return reflect.TypeOf([]byte(nil))
	default:
		return reflect.TypeOf((*any)(nil)).Elem()
	}
}

// MarshalText renders the value type by name so reports carry readable tags.
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
