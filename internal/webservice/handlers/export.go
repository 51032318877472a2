package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/openaviation/grievance-insights/internal/dashboard"
)

// ExportCSV downloads the raw rows of the filtered period.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := h.exportResult(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := dashboard.WriteCSV(&buf, res.Rows); err != nil {
		h.log.Error("Failed to write CSV export", "req_id", RequestID(r), "err", err)
		http.Error(w, "Failed to build CSV", http.StatusInternalServerError)
		return
	}
	h.download(w, "text/csv; charset=utf-8", exportName("grievance_data", res.Filter, "csv"), buf.Bytes())
}

// ExportReport downloads the Markdown summary of the filtered period.
func (h *Handlers) ExportReport(w http.ResponseWriter, r *http.Request) {
	res, ok := h.exportResult(w, r)
	if !ok {
		return
	}

	report := dashboard.Report(res.View, res.Filter, h.now())
	h.download(w, "text/markdown; charset=utf-8", exportName("grievance_report", res.Filter, "md"), []byte(report))
}

func (h *Handlers) exportResult(w http.ResponseWriter, r *http.Request) (dashboard.Result, bool) {
	_, _, res, status := h.load(r)
	if status == http.StatusServiceUnavailable {
		return res, false
	}
	if res.Error != "" {
		http.Error(w, res.Error, status)
		return res, false
	}
	return res, true
}

func (h *Handlers) download(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func exportName(prefix string, f dashboard.Filter, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", prefix, f.Start.Format(time.DateOnly), f.End.Format(time.DateOnly), ext)
}
