package dashboard

import (
	"context"
	"errors"
	"log/slog"
)

// Result is the outcome of a dashboard load. A failed load has no rows and a user-facing Error.
// A successful load matching nothing sets Warning.
type Result struct {
	Filter  Filter `json:"filter"`
	Rows    []Row  `json:"-"`
	View    View   `json:"view"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Options is what the filter controls offer.
type Options struct {
	DateRange DateRange `json:"date_range"`
	Airlines  []string  `json:"airlines"`
	Default   Filter    `json:"default"`
}

// Service executes the dashboard queries and absorbs their failures.
type Service struct {
	wh  Warehouse
	log *slog.Logger
}

type serviceOptions struct {
	logger *slog.Logger
}

// ServiceOption represents an optional function to override Service default values.
type ServiceOption func(*serviceOptions)

// WithLogger sets the logger used by the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = l
	}
}

// NewService returns a service querying wh.
func NewService(wh Warehouse, args ...ServiceOption) *Service {
	opts := serviceOptions{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}
	return &Service{wh: wh, log: opts.logger}
}

// Options returns the selectable date bounds and airlines with the default filter.
func (s Service) Options(ctx context.Context) (Options, error) {
	dr, err := s.wh.DateRange(ctx)
	if err != nil {
		s.log.Error("Failed to fetch date range", "err", err)
		return Options{}, err
	}
	airlines, err := s.wh.Airlines(ctx)
	if err != nil {
		s.log.Error("Failed to fetch airlines", "err", err)
		return Options{}, err
	}
	return Options{
		DateRange: dr,
		Airlines:  airlines,
		Default:   DefaultFilter(dr, airlines),
	}, nil
}

// Load queries the rows matching f and builds their views.
//
// It never fails: an invalid filter or a query error yields an empty result carrying the message.
func (s Service) Load(ctx context.Context, f Filter, opts TableOptions) Result {
	res := Result{Filter: f}
	if err := f.Validate(); err != nil {
		res.Error = err.Error()
		res.View = Build(nil, opts)
		return res
	}

	rows, err := s.wh.Grievances(ctx, f)
	if err != nil {
		s.log.Error("Grievance query failed", "err", err, "start", f.Start, "end", f.End, "airlines", len(f.Airlines))
		res.Error = "Query failed: " + err.Error()
		if errors.Is(err, context.Canceled) {
			res.Error = "Query canceled"
		}
		rows = nil
	}
	if err == nil && len(rows) == 0 {
		res.Warning = "No data found for the selected criteria"
	}

	res.Rows = rows
	res.View = Build(rows, opts)
	return res
}
