// Package warehouse holds the vocabulary shared by the warehouse destinations.
package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,1023}$`)

// ValidateTable checks that name is usable as a table name in every destination.
// Table names are quoted in queries, never bound as parameters.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// Batch receives the records of a single load.
//
// Nothing is visible in the destination before Commit. Abort discards everything written.
type Batch interface {
	Write(ctx context.Context, rec map[string]any) error
	Commit(ctx context.Context) (int, error)
	Abort(ctx context.Context) error
}

// WriteMode is how a load treats the rows already in the destination table.
type WriteMode string

const (
	// Append adds the loaded rows to the table.
	Append WriteMode = "append"
	// Replace swaps the table content for the loaded rows.
	Replace WriteMode = "replace"
)

// ParseWriteMode returns the write mode named s.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case Append, Replace:
		return m, nil
	default:
		return "", fmt.Errorf("unknown write mode %q, expected %q or %q", s, Append, Replace)
	}
}

// Destination names a supported warehouse.
type Destination string

const (
	// BigQuery is the Google BigQuery warehouse.
	BigQuery Destination = "bigquery"
	// Postgres is a PostgreSQL database used as a local warehouse.
	Postgres Destination = "postgres"
)

// ParseDestination returns the destination named s.
func ParseDestination(s string) (Destination, error) {
	switch d := Destination(strings.ToLower(strings.TrimSpace(s))); d {
	case BigQuery, Postgres:
		return d, nil
	default:
		return "", fmt.Errorf("unknown destination %q, expected %q or %q", s, BigQuery, Postgres)
	}
}
