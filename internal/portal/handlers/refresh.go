package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloudintake/sentinel/internal/auth/token"
)

type refreshRequest struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// RefreshHandler forces a token validity check (and refresh if expired) for
// one connection, for operators poking at a sick account.
func RefreshHandler(tokens *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Provider == "" {
			http.Error(w, "user_id and provider are required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		_, err := tokens.EnsureValidToken(r.Context(), req.UserID, req.Provider)
		switch {
		case err == nil:
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case errors.Is(err, token.ErrNotConnected):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "provider not connected"})
		case errors.Is(err, token.ErrReauthRequired):
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "re-authorization required"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		}
	}
}
