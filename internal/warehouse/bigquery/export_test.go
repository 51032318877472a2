package bigquery

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/openaviation/grievance-insights/internal/dashboard"
	"github.com/openaviation/grievance-insights/internal/warehouse"
)

// LoadRequest describes one load job.
type LoadRequest = loadRequest

// WithLoadFunc replaces the load job runner.
func WithLoadFunc(load func(context.Context, LoadRequest) error) Options {
	return func(o *options) {
		o.load = load
	}
}

func (m *Manager) DateRangeQuery() string {
	return m.dateRangeQuery()
}

func (m *Manager) AirlinesQuery() (string, []bigquery.QueryParameter) {
	return m.airlinesQuery()
}

func (m *Manager) GrievancesQuery(f dashboard.Filter) (string, []bigquery.QueryParameter) {
	return m.grievancesQuery(f)
}

func ConfigureLoader(l *bigquery.Loader, mode warehouse.WriteMode) {
	configureLoader(l, mode)
}

var ToDate = toDate
