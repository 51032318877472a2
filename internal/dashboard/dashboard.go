// Package dashboard reads grievance snapshots from a warehouse and turns them into the dashboard views.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrNoData is returned when the warehouse table holds no rows.
	ErrNoData = errors.New("no data in warehouse")
	// ErrInvalidFilter is returned when a filter cannot be queried.
	ErrInvalidFilter = errors.New("invalid filter")
)

const (
	// DefaultWindow is how far back from the latest date the default filter starts.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultAirlineCount is how many airlines the default filter selects.
	DefaultAirlineCount = 5
)

// Warehouse runs the dashboard queries against a loaded grievance table.
//
// Every query binds its filter values as parameters.
type Warehouse interface {
	DateRange(ctx context.Context) (DateRange, error)
	Airlines(ctx context.Context) ([]string, error)
	Grievances(ctx context.Context, f Filter) ([]Row, error)
}

// DateRange is the span of ingestion dates present in the warehouse.
type DateRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Filter selects the rows of the Airline category loaded between Start and End, both inclusive.
//
// An empty Airlines list selects every airline.
type Filter struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Airlines []string  `json:"airlines"`
}

// Validate checks that the filter describes a non-empty date span.
func (f Filter) Validate() error {
	if f.Start.IsZero() || f.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidFilter)
	}
	if f.End.Before(f.Start) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidFilter,
			f.End.Format(time.DateOnly), f.Start.Format(time.DateOnly))
	}
	return nil
}

// Key returns a stable identifier of the filter, independent of the airline order.
func (f Filter) Key() string {
	airlines := slices.Clone(f.Airlines)
	slices.Sort(airlines)
	return fmt.Sprintf("%s|%s|%s", f.Start.Format(time.DateOnly), f.End.Format(time.DateOnly), strings.Join(airlines, "\x1f"))
}

// DefaultFilter returns the initial selection: the last DefaultWindow of data clamped to the
// first available date, and the first DefaultAirlineCount airlines.
func DefaultFilter(dr DateRange, airlines []string) Filter {
	start := dr.Max.Add(-DefaultWindow)
	if start.Before(dr.Min) {
		start = dr.Min
	}
	if len(airlines) > DefaultAirlineCount {
		airlines = airlines[:DefaultAirlineCount]
	}
	return Filter{
		Start:    start,
		End:      dr.Max,
		Airlines: slices.Clone(airlines),
	}
}
