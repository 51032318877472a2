package postgres

import "context"

// DBPool is the pool interface used by the manager.
type DBPool = dbPool

// WithNewPool overrides the pool constructor.
func WithNewPool(newPool func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(o *options) {
		o.newPool = newPool
	}
}
