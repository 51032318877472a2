package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DateRangeTTL is how long the date bounds are reused.
	DateRangeTTL = time.Hour
	// AirlinesTTL is how long the airline list is reused.
	AirlinesTTL = time.Hour
	// GrievancesTTL is how long a grievance query result is reused.
	GrievancesTTL = 10 * time.Minute

	cacheSize = 128
	singleKey = "-"
)

// Cached is a Warehouse serving repeated queries from per-query TTL caches.
//
// Errors are never cached.
type Cached struct {
	wh Warehouse

	dateRange  *expirable.LRU[string, DateRange]
	airlines   *expirable.LRU[string, []string]
	grievances *expirable.LRU[string, []Row]

	log *slog.Logger
}

type cacheOptions struct {
	dateRangeTTL  time.Duration
	airlinesTTL   time.Duration
	grievancesTTL time.Duration
	logger        *slog.Logger
}

// CacheOption represents an optional function to override Cached default values.
type CacheOption func(*cacheOptions)

// WithTTLs overrides the time-to-live of each query kind. Zero keeps the default.
func WithTTLs(dateRange, airlines, grievances time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if dateRange > 0 {
			o.dateRangeTTL = dateRange
		}
		if airlines > 0 {
			o.airlinesTTL = airlines
		}
		if grievances > 0 {
			o.grievancesTTL = grievances
		}
	}
}

// WithCacheLogger sets the logger used by the cache.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = l
	}
}

// NewCached wraps wh with TTL caches.
func NewCached(wh Warehouse, args ...CacheOption) *Cached {
	opts := cacheOptions{
		dateRangeTTL:  DateRangeTTL,
		airlinesTTL:   AirlinesTTL,
		grievancesTTL: GrievancesTTL,
		logger:        slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Cached{
		wh:         wh,
		dateRange:  expirable.NewLRU[string, DateRange](1, nil, opts.dateRangeTTL),
		airlines:   expirable.NewLRU[string, []string](1, nil, opts.airlinesTTL),
		grievances: expirable.NewLRU[string, []Row](cacheSize, nil, opts.grievancesTTL),
		log:        opts.logger,
	}
}

// DateRange returns the cached date bounds, querying the warehouse once they expired.
func (c *Cached) DateRange(ctx context.Context) (DateRange, error) {
	return cached(ctx, c.log, c.dateRange, "date range", singleKey, c.wh.DateRange)
}

// Airlines returns the cached airline list, querying the warehouse once it expired.
func (c *Cached) Airlines(ctx context.Context) ([]string, error) {
	return cached(ctx, c.log, c.airlines, "airlines", singleKey, c.wh.Airlines)
}

// Grievances returns the cached rows for f, querying the warehouse once they expired.
func (c *Cached) Grievances(ctx context.Context, f Filter) ([]Row, error) {
	return cached(ctx, c.log, c.grievances, "grievances", f.Key(), func(ctx context.Context) ([]Row, error) {
		return c.wh.Grievances(ctx, f)
	})
}

// Purge drops every cached result.
func (c *Cached) Purge() {
	c.dateRange.Purge()
	c.airlines.Purge()
	c.grievances.Purge()
}

func cached[V any](ctx context.Context, log *slog.Logger, lru *expirable.LRU[string, V], kind, key string, query func(context.Context) (V, error)) (V, error) {
	if v, ok := lru.Get(key); ok {
		log.Debug("Cache hit", "query", kind)
		return v, nil
	}

	v, err := query(ctx)
	if err != nil {
		return v, err
	}
	lru.Add(key, v)
	log.Debug("Cache miss, result stored", "query", kind)
	return v, nil
}
