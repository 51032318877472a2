// Package handlers provides the HTTP handlers of the grievance dashboard.
package handlers

import (
	"context"

	"github.com/openaviation/grievance-insights/internal/dashboard"
)

// Dashboard is the query side used by the handlers.
type Dashboard interface {
	Options(ctx context.Context) (dashboard.Options, error)
	Load(ctx context.Context, f dashboard.Filter, opts dashboard.TableOptions) dashboard.Result
}
