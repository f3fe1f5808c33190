package google

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStateStoreRoundTrip(t *testing.T) {
	state := newState("u1")
	if state == "" {
		t.Fatal("empty state token")
	}

	userID, ok := consumeState(state)
	if !ok || userID != "u1" {
		t.Fatalf("consumeState = %q/%v, want u1", userID, ok)
	}

	// Single-use: a replayed state must be rejected.
	if _, ok := consumeState(state); ok {
		t.Fatal("state token accepted twice")
	}
}

func TestStateStoreExpiry(t *testing.T) {
	state := newState("u1")

	statesMu.Lock()
	pending := states[state]
	pending.createdAt = time.Now().Add(-stateTTL - time.Minute)
	states[state] = pending
	statesMu.Unlock()

	if _, ok := consumeState(state); ok {
		t.Fatal("expired state token accepted")
	}
}

func TestHandleLoginRequiresUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()
	HandleLogin(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleLoginRedirectsToConsent(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")

	req := httptest.NewRequest(http.MethodGet, "https://portal.example.com/auth/google/login?user=u1", nil)
	w := httptest.NewRecorder()
	HandleLogin(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	location := w.Header().Get("Location")
	for _, want := range []string{
		"accounts.google.com",
		"access_type=offline",
		"client_id=client-id",
		"state=",
	} {
		if !strings.Contains(location, want) {
			t.Errorf("redirect %q missing %q", location, want)
		}
	}
	if !strings.Contains(location, "portal.example.com%2Fauth%2Fgoogle%2Fcallback") {
		t.Errorf("redirect %q does not carry the derived callback URL", location)
	}
}
