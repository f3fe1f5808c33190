// Package notify decides whether a user-facing alert fires for a health
// transition and renders its message. Delivery is fire-and-forget: transport
// errors are logged and swallowed so upload bookkeeping never depends on the
// mail relay.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/db/models"
)

// Event identifies the health transition being reported.
type Event string

const (
	EventSingleFailure     Event = "single_failure"
	EventEscalatedFailures Event = "escalated_failures"
	EventTokenExpiring     Event = "proactive_token_expiring"
	EventRecovered         Event = "connection_recovered"
)

// Message is the rendered notification payload handed to the transport.
type Message struct {
	Subject     string
	Greeting    string
	Body        string
	ActionLabel string
	ActionURL   string
}

// Transport delivers one message to one user. The mail relay behind it is an
// external collaborator.
type Transport interface {
	Send(ctx context.Context, userID string, msg Message) error
}

// LogTransport writes notifications to the process log. It stands in when no
// mail relay is configured and in tests.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, userID string, msg Message) error {
	log.Printf("[Notify] to=%s subject=%q action=%q", userID, msg.Subject, msg.ActionLabel)
	return nil
}

// Dispatcher throttles and delivers notifications. One outbound alert per
// (user, provider, event) within the TTL; a recovery clears every pending
// throttle entry for the pair so the next incident alerts immediately.
type Dispatcher struct {
	transport Transport
	ttl       time.Duration
	baseURL   string

	mu   sync.Mutex
	sent map[string]time.Time

	now func() time.Time
}

// NewDispatcher creates a dispatcher. baseURL is the portal root used to
// build reconnect/dashboard links.
func NewDispatcher(transport Transport, ttl time.Duration, baseURL string) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		ttl:       ttl,
		baseURL:   strings.TrimRight(baseURL, "/"),
		sent:      make(map[string]time.Time),
		now:       time.Now,
	}
}

func throttleKey(userID, prov string, event Event) string {
	return userID + "|" + prov + "|" + string(event)
}

// MaybeNotify fires a notification unless an identical one was sent within
// the throttle window. Returns true when a message was handed to the
// transport. The throttle check and the key write form one atomic test-and-set
// so concurrent workers failing the same pair cannot both send.
func (d *Dispatcher) MaybeNotify(ctx context.Context, userID, prov string, event Event, kind classify.Kind, rec *models.ConnectionHealth) bool {
	key := throttleKey(userID, prov, event)

	d.mu.Lock()
	if event == EventRecovered {
		d.clearPairLocked(userID, prov)
	} else if at, ok := d.sent[key]; ok && d.now().Sub(at) < d.ttl {
		d.mu.Unlock()
		return false
	}
	d.sent[key] = d.now()
	d.mu.Unlock()

	msg := d.render(userID, prov, event, kind, rec)

	if err := d.transport.Send(ctx, userID, msg); err != nil {
		// Swallowed on purpose: a mail outage must not become an
		// upload failure.
		log.Printf("[Notify] Delivery failed for %s/%s %s: %v", userID, prov, event, err)
	}
	return true
}

// clearPairLocked drops every throttle entry for the pair. Caller holds d.mu.
func (d *Dispatcher) clearPairLocked(userID, prov string) {
	prefix := userID + "|" + prov + "|"
	for key := range d.sent {
		if strings.HasPrefix(key, prefix) {
			delete(d.sent, key)
		}
	}
}

func (d *Dispatcher) render(userID, prov string, event Event, kind classify.Kind, rec *models.ConnectionHealth) Message {
	msg := Message{
		Greeting:    "Hello,",
		ActionLabel: "View Dashboard",
		ActionURL:   d.baseURL + "/dashboard",
	}

	reconnection := kind.Policy().RequiresReconnection
	if rec != nil && rec.RequiresReconnection {
		reconnection = true
	}
	if reconnection {
		msg.ActionLabel = "Reconnect Account"
		msg.ActionURL = fmt.Sprintf("%s/auth/google/login?user=%s", d.baseURL, userID)
	}

	switch event {
	case EventSingleFailure:
		msg.Subject = "Cloud Storage Connection Issue"
		msg.Body = kind.Policy().UserMessage
	case EventEscalatedFailures:
		failures := 0
		if rec != nil {
			failures = rec.ConsecutiveFailures
		}
		msg.Subject = "Cloud Storage Connection Issue: Multiple Uploads Failing"
		msg.Body = fmt.Sprintf("%d uploads in a row have failed to reach your cloud storage. %s", failures, kind.Policy().UserMessage)
	case EventTokenExpiring:
		msg.Subject = "Cloud Storage Connection Expiring Soon"
		msg.Body = "Your cloud storage authorization is about to expire. Reconnect now to avoid interrupted uploads."
		msg.ActionLabel = "Reconnect Account"
		msg.ActionURL = fmt.Sprintf("%s/auth/google/login?user=%s", d.baseURL, userID)
	case EventRecovered:
		msg.Subject = "Cloud Storage Connection Restored"
		msg.Body = "Your cloud storage connection is working again. Pending uploads have been queued."
	}

	return msg
}
