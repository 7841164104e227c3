package sqlutil

import (
	"strings"
	"testing"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ORDERS", `"ORDERS"`},
		{"order_id", `"order_id"`},
		{"select", `"select"`},         // reserved word
		{"first name", `"first name"`}, // space in name
		{`a"b`, `"a""b"`},              // embedded quote
		{`"x"`, `"""x"""`},             // already quoted
		{"", `""`},                     // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestQualifiedName(t *testing.T) {
	if got := QualifiedName(nil, "APP", "ORDERS"); got != `"APP"."ORDERS"` {
		t.Errorf("QualifiedName = %q", got)
	}
	if got := QualifiedName(nil, "", "ORDERS"); got != `"ORDERS"` {
		t.Errorf("QualifiedName without schema = %q", got)
	}
	upper := func(s string) string { return strings.ToUpper(s) }
	if got := QualifiedName(upper, "app", "orders"); got != "APP.ORDERS" {
		t.Errorf("QualifiedName with custom quote = %q", got)
	}
}
