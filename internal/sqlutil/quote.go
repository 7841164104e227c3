// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with double quotes and escapes any double quotes within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// QualifiedName returns schema.table with both parts quoted.
// An empty schema yields just the quoted table.
func QualifiedName(quote func(string) string, schema, table string) string {
	if quote == nil {
		quote = QuoteIdentifier
	}
	if schema == "" {
		return quote(table)
	}
	return quote(schema) + "." + quote(table)
}
