// Package transform normalizes raw API records into the shape stored in the warehouse.
//
// Every record gets the page level update date, the run ingestion timestamps and
// lowercase-with-underscores field names.
package transform

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Record is one flat grievance record, field name to scalar value.
type Record = map[string]any

// Fields stamped on every record.
const (
	FieldUpdatedAt    = "updated_at"
	FieldInsertedAt   = "inserted_at"
	FieldInsertedDate = "inserted_date"
)

// Layouts of the ingestion timestamps, both in UTC.
const (
	InsertedAtLayout   = "2006-01-02 15:04:05"
	InsertedDateLayout = "2006-01-02"
)

var (
	// acronymBoundary splits a run of capitals from a following capitalized word: HTTPStatus -> HTTP_Status.
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	// camelBoundary splits a lowercase letter or digit from a following capital: totalReceived -> total_Received.
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// SnakeCase converts a camelCase or PascalCase name to lowercase with underscores.
// Names already in snake case are returned unchanged.
func SnakeCase(name string) string {
	s := acronymBoundary.ReplaceAllString(name, "${1}_${2}")
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

// Standardize renames every key of a record map to snake case and returns a new map.
// Values that are not record maps are returned as is.
//
// Keys are visited in sorted order, so when two source keys collapse to the same
// name the value of the greatest source key wins.
func Standardize(item any) any {
	rec, ok := item.(Record)
	if !ok {
		return item
	}

	out := make(Record, len(rec))
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		out[SnakeCase(k)] = rec[k]
	}
	return out
}

// Stamp attaches the page update date and the run ingestion timestamps to rec in place.
func Stamp(rec Record, updatedDate any, insertedAt time.Time) {
	insertedAt = insertedAt.UTC()
	rec[FieldUpdatedAt] = updatedDate
	rec[FieldInsertedAt] = insertedAt.Format(InsertedAtLayout)
	rec[FieldInsertedDate] = insertedAt.Format(InsertedDateLayout)
}

// Apply runs the full record transform: key renaming, then stamping.
// The stamped fields always override source fields renaming to the same names.
func Apply(rec Record, updatedDate any, insertedAt time.Time) Record {
	out := Standardize(rec).(Record)
	Stamp(out, updatedDate, insertedAt)
	return out
}
