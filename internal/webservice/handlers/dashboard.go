package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openaviation/grievance-insights/internal/dashboard"
)

//go:embed templates
var templates embed.FS

// DefaultRefreshInterval is how often an auto-refreshing page reloads itself.
// It matches the lifetime of the cached grievance queries.
const DefaultRefreshInterval = dashboard.GrievancesTTL

// Handlers serves the dashboard page, its JSON API and the downloads.
type Handlers struct {
	dash    Dashboard
	log     *slog.Logger
	now     func() time.Time
	refresh time.Duration
}

type options struct {
	refresh time.Duration
}

// Option overrides a Handlers default.
type Option func(*options)

// WithRefreshInterval sets how often the page reloads when auto-refresh is on.
// Zero or a negative interval disables the auto-refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refresh = d
	}
}

// New returns the handlers reading from dash.
func New(dash Dashboard, log *slog.Logger, args ...Option) *Handlers {
	opts := options{refresh: DefaultRefreshInterval}
	for _, opt := range args {
		opt(&opts)
	}
	return &Handlers{dash: dash, log: log, now: time.Now, refresh: max(opts.refresh, 0)}
}

// load resolves the request filter against the warehouse options and runs the dashboard query.
// The returned status is the one to answer with when the result is not usable.
func (h *Handlers) load(r *http.Request) (dashboard.Options, dashboard.TableOptions, dashboard.Result, int) {
	log := h.log.With("req_id", RequestID(r))

	opts, err := h.dash.Options(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, dashboard.ErrNoData) {
			status = http.StatusNotFound
		}
		log.Warn("Dashboard options unavailable", "err", err)
		return opts, dashboard.TableOptions{}, dashboard.Result{Error: "No date range available: " + err.Error()}, status
	}

	f, tableOpts, err := ParseQuery(r.URL.Query(), opts.Default)
	if err != nil {
		log.Info("Rejected dashboard query", "query", r.URL.RawQuery, "err", err)
		return opts, tableOpts, dashboard.Result{Filter: f, Error: err.Error()}, http.StatusBadRequest
	}

	res := h.dash.Load(r.Context(), f, tableOpts)
	switch {
	case errors.Is(r.Context().Err(), context.Canceled):
		return opts, tableOpts, res, http.StatusServiceUnavailable
	case res.Error != "" && f.Validate() != nil:
		return opts, tableOpts, res, http.StatusBadRequest
	case res.Error != "":
		return opts, tableOpts, res, http.StatusBadGateway
	}
	log.Debug("Dashboard loaded", "rows", len(res.Rows), "start", f.Start, "end", f.End, "airlines", len(f.Airlines))
	return opts, tableOpts, res, http.StatusOK
}

// Page renders the HTML dashboard.
//
// Failed loads still render the page, with the error message in place of the views.
// The form is filled back with the request filter and table options. Unless auto_refresh
// is false, the page reloads itself every refresh interval.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	autoRefresh, refreshErr := parseAutoRefresh(r.URL.Query())
	opts, tableOpts, res, status := h.load(r)
	if status == http.StatusServiceUnavailable {
		return
	}
	if refreshErr != nil && res.Error == "" {
		h.log.Info("Rejected dashboard query", "req_id", RequestID(r), "query", r.URL.RawQuery, "err", refreshErr)
		res = dashboard.Result{Filter: res.Filter, Error: refreshErr.Error()}
		status = http.StatusBadRequest
	}

	data := pageData{
		Options:     opts,
		Result:      res,
		Table:       tableOpts,
		Selected:    make(map[string]bool, len(res.Filter.Airlines)),
		AutoRefresh: autoRefresh,
		Refresh:     h.refresh,
	}
	for _, a := range res.Filter.Airlines {
		data.Selected[a] = true
	}
	if top := res.View.TopAirlines(1); len(top) > 0 {
		data.AirlineMax = top[0].Received
	}
	if res.Error == "" {
		q := filterQuery(res.Filter, dashboard.TableOptions{}).Encode()
		data.CSVLink = "/export/csv?" + q
		data.ReportLink = "/export/report?" + q
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		h.log.Error("Failed to render dashboard page", "req_id", RequestID(r), "err", err)
	}
}

// API answers the dashboard result as JSON.
func (h *Handlers) API(w http.ResponseWriter, r *http.Request) {
	_, _, res, status := h.load(r)
	if status == http.StatusServiceUnavailable {
		return
	}
	h.writeJSON(w, r, status, res)
}

// DateRange answers the span of loaded ingestion dates as JSON.
func (h *Handlers) DateRange(w http.ResponseWriter, r *http.Request) {
	opts, err := h.dash.Options(r.Context())
	if err != nil {
		h.optionsError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, struct {
		dashboard.DateRange
		Default dashboard.Filter `json:"default"`
	}{opts.DateRange, opts.Default})
}

// Airlines answers the selectable airlines as JSON.
func (h *Handlers) Airlines(w http.ResponseWriter, r *http.Request) {
	opts, err := h.dash.Options(r.Context())
	if err != nil {
		h.optionsError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string][]string{"airlines": opts.Airlines})
}

func (h *Handlers) optionsError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, dashboard.ErrNoData) {
		status = http.StatusNotFound
	}
	h.log.Warn("Dashboard options unavailable", "req_id", RequestID(r), "err", err)
	h.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "req_id", RequestID(r), "err", err)
	}
}

type pageData struct {
	Options    dashboard.Options
	Result     dashboard.Result
	Table      dashboard.TableOptions
	Selected   map[string]bool
	AirlineMax int64
	CSVLink    string
	ReportLink string

	AutoRefresh bool
	Refresh     time.Duration
}

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"date":    dateOnly,
	"pct":     func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + "%" },
	"width":   barWidth,
	"seconds": func(d time.Duration) int64 { return int64(d / time.Second) },
	"every":   every,
}).ParseFS(templates, "templates/index.html"))

// every is the human readable form of a refresh interval: "10 min" or "45 s".
func every(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return strconv.FormatInt(int64(d/time.Minute), 10) + " min"
	}
	return strconv.FormatInt(int64(d/time.Second), 10) + " s"
}

func dateOnly(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// barWidth scales n to a bar of at most 300 pixels.
func barWidth(n, maxN int64) int64 {
	if maxN <= 0 {
		return 0
	}
	return n * 300 / maxN
}
