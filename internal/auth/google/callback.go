package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/cloudintake/sentinel/internal/auth/token"
	"github.com/cloudintake/sentinel/internal/health"
	"github.com/cloudintake/sentinel/internal/orchestrator"
	"github.com/cloudintake/sentinel/internal/provider"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// ProviderID is the provider family the callback authorizes.
const ProviderID = "google_drive"

type callbackResponse struct {
	Success       bool   `json:"success"`
	Email         string `json:"email,omitempty"`
	RequeuedCount int    `json:"requeued_count"`
	Error         string `json:"error,omitempty"`
}

// HandleCallback finishes the OAuth flow: exchange the code, store the
// tokens, verify the connection with an operational probe, then run the
// reconnection sweep over uploads that were blocked on authentication.
func HandleCallback(tokens *token.Manager, tracker *health.Tracker, orch *orchestrator.Orchestrator, drive provider.StorageProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := consumeState(r.URL.Query().Get("state"))
		if !ok {
			writeCallbackError(w, http.StatusBadRequest, "invalid or expired state token")
			return
		}

		config := GetOAuthConfig(redirectURLFor(r))
		tok, err := config.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			writeCallbackError(w, http.StatusBadGateway, fmt.Sprintf("token exchange failed: %v", err))
			return
		}

		email, err := fetchEmail(r.Context(), tok.AccessToken)
		if err != nil {
			log.Printf("[OAuth] Could not fetch user info: %v", err)
		}

		if _, err := tokens.StoreAuthorization(userID, ProviderID, email, tok, Scopes); err != nil {
			writeCallbackError(w, http.StatusInternalServerError, fmt.Sprintf("store authorization: %v", err))
			return
		}

		// The sweep only runs once the new connection demonstrably
		// works; a failed probe leaves the blocked uploads untouched.
		if err := drive.Probe(r.Context(), tok.AccessToken); err != nil {
			writeCallbackError(w, http.StatusBadGateway, fmt.Sprintf("connection verification failed: %v", err))
			return
		}
		if _, err := tracker.RecordSuccess(userID, ProviderID); err != nil {
			log.Printf("[OAuth] Failed to record probe success: %v", err)
		}

		requeued, err := orch.Sweep(r.Context(), userID, ProviderID)
		if err != nil {
			// Sweep failures surface on the callback response; the
			// sweep is not retried.
			writeCallbackError(w, http.StatusInternalServerError, fmt.Sprintf("retry sweep failed: %v", err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(callbackResponse{
			Success:       true,
			Email:         email,
			RequeuedCount: requeued,
		})
	}
}

func writeCallbackError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(callbackResponse{Error: msg})
}

// fetchEmail resolves the account email for display on dashboards.
func fetchEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}
