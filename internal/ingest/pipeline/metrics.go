package pipeline

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated by pipeline runs.
type Metrics struct {
	pages   *prometheus.CounterVec
	records *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_pages_fetched_total",
			Help: "Number of API pages fetched.",
		}, []string{"table"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_loaded_total",
			Help: "Number of records committed to the warehouse.",
		}, []string{"table"}),
	}

	for _, c := range []prometheus.Collector{m.pages, m.records} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register pipeline metrics: %v", err)
		}
	}
	return m, nil
}

func (m *Metrics) pageFetched(table string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(table).Inc()
}

func (m *Metrics) recordsLoaded(table string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(table).Add(float64(n))
}
