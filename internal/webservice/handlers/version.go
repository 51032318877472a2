package handlers

import (
	"net/http"

	"github.com/openaviation/grievance-insights/internal/common/constants"
)

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"version":"` + constants.Version + `"}`))
}
