// Package metrics provides middleware for collecting metrics in the web service, to be interpreted by Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type label string

// LabelPath is the label used for the route in metrics.
const LabelPath label = "path"

// EndpointMiddleware collects HTTP request metrics per dashboard endpoint.
type EndpointMiddleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// NewEndpointMiddleware creates a new EndpointMiddleware with the provided registry.
func NewEndpointMiddleware(registry prometheus.Registerer) *EndpointMiddleware {
	return &EndpointMiddleware{
		// Warehouse queries dominate, so the buckets go up to about 40s.
		buckets:  prometheus.ExponentialBuckets(0.01, 2, 13),
		registry: registry,
	}
}

// Wrap instruments handler under handlerName. The path label is the matched route pattern.
func (m *EndpointMiddleware) Wrap(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code", string(LabelPath)}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_endpoint_requests_total",
			Help: "Tracks the number of HTTP requests to the endpoint.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_endpoint_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests to the endpoint.",
			Buckets: m.buckets,
		},
		labels,
	)
	inFlight := promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "http_endpoint_requests_in_flight",
			Help: "Number of requests being served by the endpoint.",
		},
	)

	pathLabel := promhttp.WithLabelFromCtx(string(LabelPath), pathLabelFromCtx)
	base := promhttp.InstrumentHandlerInFlight(inFlight,
		promhttp.InstrumentHandlerCounter(
			requestsTotal,
			promhttp.InstrumentHandlerDuration(
				requestDuration,
				HandlerApplyLabels(handler),
				pathLabel,
			),
			pathLabel,
		),
	)

	return base.ServeHTTP
}

func pathLabelFromCtx(ctx context.Context) string {
	if path, ok := ctx.Value(LabelPath).(string); ok {
		return path
	}
	return "unknown"
}

// ApplyLabels stores the route pattern, or the URL path outside a mux, in the request context.
func ApplyLabels(r *http.Request) {
	path := r.Pattern
	if path == "" {
		path = r.URL.Path
	}
	ctx := context.WithValue(r.Context(), LabelPath, path)
	*r = *r.WithContext(ctx)
}

// HandlerApplyLabels is a middleware helper function to apply labels to an HTTP handler.
func HandlerApplyLabels(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplyLabels(r)
		handler.ServeHTTP(w, r)
	})
}
