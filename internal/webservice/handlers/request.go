package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openaviation/grievance-insights/internal/dashboard"
)

type ctxKey struct{}

// RequestIDHeader is the response header carrying the request identifier.
const RequestIDHeader = "X-Request-ID"

// WithRequestID tags every request with a fresh identifier, in its context and response headers.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestID returns the identifier set by WithRequestID, or an empty string.
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// errBadQuery marks query parameters that cannot be parsed.
var errBadQuery = errors.New("bad query")

// ParseQuery reads the filter and table options of a dashboard request.
//
// Missing dates and a missing airline parameter fall back to def. An airline parameter with
// only empty values selects every airline.
func ParseQuery(q url.Values, def dashboard.Filter) (dashboard.Filter, dashboard.TableOptions, error) {
	f := def
	var opts dashboard.TableOptions

	var err error
	if f.Start, err = parseDate(q, "start", def.Start); err != nil {
		return f, opts, err
	}
	if f.End, err = parseDate(q, "end", def.End); err != nil {
		return f, opts, err
	}

	if values, ok := q["airline"]; ok {
		f.Airlines = []string{}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				f.Airlines = append(f.Airlines, v)
			}
		}
	}

	if v := q.Get("only_active"); v != "" {
		if opts.OnlyActive, err = strconv.ParseBool(v); err != nil {
			return f, opts, fmt.Errorf("%w: only_active %q is not a boolean", errBadQuery, v)
		}
	}
	if v := q.Get("min_grievances"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, opts, fmt.Errorf("%w: min_grievances %q is not a non-negative integer", errBadQuery, v)
		}
		opts.MinGrievances = n
	}

	return f, opts, nil
}

// parseAutoRefresh reads the auto_refresh page parameter, on when absent.
//
// The last value wins, so a form can send a hidden false ahead of its checkbox.
func parseAutoRefresh(q url.Values) (bool, error) {
	values := q["auto_refresh"]
	if len(values) == 0 || values[len(values)-1] == "" {
		return true, nil
	}
	v := values[len(values)-1]
	on, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: auto_refresh %q is not a boolean", errBadQuery, v)
	}
	return on, nil
}

func parseDate(q url.Values, key string, def time.Time) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a YYYY-MM-DD date", errBadQuery, key, v)
	}
	return d, nil
}

// filterQuery encodes f back into query parameters, the inverse of ParseQuery.
func filterQuery(f dashboard.Filter, opts dashboard.TableOptions) url.Values {
	q := url.Values{}
	if !f.Start.IsZero() {
		q.Set("start", f.Start.Format(time.DateOnly))
	}
	if !f.End.IsZero() {
		q.Set("end", f.End.Format(time.DateOnly))
	}
	if len(f.Airlines) == 0 {
		q["airline"] = []string{""}
	}
	for _, a := range f.Airlines {
		q.Add("airline", a)
	}
	if opts.OnlyActive {
		q.Set("only_active", "true")
	}
	if opts.MinGrievances > 0 {
		q.Set("min_grievances", strconv.FormatInt(opts.MinGrievances, 10))
	}
	return q
}
