package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cloudintake/sentinel/internal/auth/token"
)

type disconnectRequest struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// DisconnectHandler removes a stored authorization on user request. Blocked
// uploads keep their error state; reconnecting later sweeps them back in.
func DisconnectHandler(tokens *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req disconnectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Provider == "" {
			http.Error(w, "user_id and provider are required", http.StatusBadRequest)
			return
		}

		if err := tokens.Disconnect(req.UserID, req.Provider); err != nil {
			http.Error(w, "Disconnect failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "disconnected"})
	}
}
