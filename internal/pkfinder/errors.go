package pkfinder

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// ErrDiscovery matches every failure that aborted a Resolve call.
	ErrDiscovery = errors.New("primary key discovery failed")
	// ErrSequenceLookup matches failures of the dialect sequence probe.
	ErrSequenceLookup = errors.New("sequence lookup failed")
)

// Discovery steps reported in DiscoveryError.Op.
const (
	OpValidate           = "validate"
	OpIndexScan          = "index scan"
	OpColumnMetadata     = "column metadata"
	OpAutoIncrementProbe = "auto-increment probe"
	OpSequenceProbe      = "sequence probe"
)

// DiscoveryError is a data access failure that aborted discovery for a table.
type DiscoveryError struct {
	Op     string // Step that failed
	Schema string
	Table  string
	Column string // Key column being classified, if any
	Err    error
}

func (e *DiscoveryError) Error() string {
	parts := []string{fmt.Sprintf("pkfinder: %s", e.Op)}

	if e.Schema != "" {
		parts = append(parts, fmt.Sprintf("schema=%s", e.Schema))
	}
	if e.Table != "" {
		parts = append(parts, fmt.Sprintf("table=%s", e.Table))
	}
	if e.Column != "" {
		parts = append(parts, fmt.Sprintf("column=%s", e.Column))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Is reports ErrDiscovery as matching any DiscoveryError.
func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery
}

// SequenceLookupError reports a failed sequence probe for one column.
// Resolve recovers from it by classifying the column without a sequence.
type SequenceLookupError struct {
	Schema string
	Table  string
	Column string
	Err    error
}

func (e *SequenceLookupError) Error() string {
	return fmt.Sprintf("sequence lookup for %s.%s.%s: %v", e.Schema, e.Table, e.Column, e.Err)
}

func (e *SequenceLookupError) Unwrap() error {
	return e.Err
}

// Is reports ErrSequenceLookup as matching any SequenceLookupError.
func (e *SequenceLookupError) Is(target error) bool {
	return target == ErrSequenceLookup
}
