package google

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// stateTTL bounds how long a consent redirect stays valid.
const stateTTL = 10 * time.Minute

type pendingState struct {
	userID    string
	createdAt time.Time
}

// stateStore maps CSRF state tokens to the portal user who initiated the
// flow, so the callback can attribute the authorization.
var (
	statesMu sync.Mutex
	states   = make(map[string]pendingState)
)

func newState(userID string) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)

	statesMu.Lock()
	defer statesMu.Unlock()
	for key, pending := range states {
		if time.Since(pending.createdAt) > stateTTL {
			delete(states, key)
		}
	}
	states[state] = pendingState{userID: userID, createdAt: time.Now()}
	return state
}

// consumeState returns the user for a state token and invalidates it.
func consumeState(state string) (string, bool) {
	statesMu.Lock()
	defer statesMu.Unlock()
	pending, ok := states[state]
	if !ok || time.Since(pending.createdAt) > stateTTL {
		delete(states, state)
		return "", false
	}
	delete(states, state)
	return pending.userID, true
}

// redirectURLFor derives the callback URL from the incoming request so the
// service works behind any host/proxy without static configuration.
func redirectURLFor(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/auth/google/callback", scheme, r.Host)
}

// HandleLogin starts the consent flow for the user named in the query.
// Offline access plus forced approval guarantees a refresh token even on
// re-authorization.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	config := GetOAuthConfig(redirectURLFor(r))
	url := config.AuthCodeURL(newState(userID),
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
