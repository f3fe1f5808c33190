package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cloudintake/sentinel/internal/health"
)

// HealthStatusHandler serves the consolidated connection health snapshot
// consumed by dashboard views.
func HealthStatusHandler(tracker *health.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		prov := r.URL.Query().Get("provider")
		if userID == "" || prov == "" {
			http.Error(w, "user and provider query parameters are required", http.StatusBadRequest)
			return
		}

		snap, err := tracker.Snapshot(userID, prov)
		if err != nil {
			http.Error(w, "Failed to load health status: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}
