package handlers

import "time"

// WithClock overrides the clock stamped in the downloaded reports.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}
