package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/db/models"
	"github.com/cloudintake/sentinel/internal/notify"
)

// StartHealthLoop launches the periodic connection check: refresh tokens
// nearing expiry, probe each connection, and fold the results into the
// health records. Stops when ctx is cancelled.
func (o *Orchestrator) StartHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.runHealthCheck(ctx)
			}
		}
	}()
	log.Printf("[Health] Check loop started (interval: %s)", o.cfg.CheckInterval)
}

// runHealthCheck walks every stored connection once.
func (o *Orchestrator) runHealthCheck(ctx context.Context) {
	accounts, err := o.tokens.AllAccounts()
	if err != nil {
		log.Printf("[Health] Failed to list accounts: %v", err)
		return
	}

	for _, account := range accounts {
		o.checkConnection(ctx, account)
	}
}

func (o *Orchestrator) checkConnection(ctx context.Context, account models.Account) {
	// Warn before the token goes dark, not after. The refresh below
	// usually makes this moot; the throttle keeps repeats quiet.
	if account.ExpiresAt.Sub(o.now()) < o.cfg.ProactiveExpiryWindow {
		rec, _ := o.tracker.Get(account.UserID, account.Provider)
		o.notifier.MaybeNotify(ctx, account.UserID, account.Provider, notify.EventTokenExpiring, classify.KindTokenExpired, rec)
	}

	accessToken, err := o.tokens.EnsureValidToken(ctx, account.UserID, account.Provider)
	if err != nil {
		// The manager already recorded the refresh outcome; nothing
		// operational to probe without a token.
		log.Printf("[Health] Token check failed for %s/%s: %v", account.UserID, account.Provider, err)
		return
	}

	prov, ok := o.providers[account.Provider]
	if !ok {
		return
	}

	if err := prov.Probe(ctx, accessToken); err != nil {
		kind := classifyError(ctx, err)
		if _, herr := o.tracker.RecordFailure(account.UserID, account.Provider, kind, faultMessage(err)); herr != nil {
			log.Printf("[Health] Failed to record probe failure: %v", herr)
		}
		log.Printf("[Health] Probe failed for %s/%s: %v", account.UserID, account.Provider, err)
		return
	}

	prev, _ := o.tracker.Get(account.UserID, account.Provider)
	rec, err := o.tracker.RecordSuccess(account.UserID, account.Provider)
	if err != nil {
		log.Printf("[Health] Failed to record probe success: %v", err)
		return
	}
	if prev != nil && prev.ConsolidatedStatus != models.ConsolidatedHealthy && !prev.RequiresReconnection {
		o.notifier.MaybeNotify(ctx, account.UserID, account.Provider, notify.EventRecovered, "", rec)
	}
}
