// Package health maintains the consolidated connection-health record per
// (user, provider) pair.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/db/models"
	"github.com/cloudintake/sentinel/internal/util"
)

// RefreshOutcome is the result of a token refresh attempt fed into the
// tracker by the token lifecycle manager.
type RefreshOutcome int

const (
	RefreshNotNeeded RefreshOutcome = iota
	RefreshSuccess
	RefreshTransientFailure
	RefreshPermanentFailure
)

// Snapshot is the read-only health view served to dashboards.
type Snapshot struct {
	Provider             string `json:"provider"`
	Status               string `json:"status"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	RequiresReconnection bool   `json:"requires_reconnection"`
	LastErrorType        string `json:"last_error_type,omitempty"`
	UserFriendlyMessage  string `json:"user_friendly_message,omitempty"`
	PendingUploadsCount  int64  `json:"pending_uploads_count"`
}

// Tracker owns all mutations of ConnectionHealth rows. Updates for one
// (user, provider) pair are serialized with a per-pair lock so concurrent
// workers cannot lose failure-counter increments; pairs never contend with
// each other.
type Tracker struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewTracker creates a tracker over the shared database.
func NewTracker(gdb *gorm.DB) *Tracker {
	return &Tracker{
		db:    gdb,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (t *Tracker) lockFor(userID, prov string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := userID + "|" + prov
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// loadOrCreate fetches the record for the pair, creating it in the default
// healthy state on first touch. Callers hold the pair lock.
func (t *Tracker) loadOrCreate(tx *gorm.DB, userID, prov string) (*models.ConnectionHealth, error) {
	var rec models.ConnectionHealth
	err := tx.Where("user_id = ? AND provider = ?", userID, prov).First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load health record: %w", err)
	}

	rec = models.ConnectionHealth{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Provider:           prov,
		Status:             models.StatusHealthy,
		ConsolidatedStatus: models.ConsolidatedHealthy,
	}
	if err := tx.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create health record: %w", err)
	}
	return &rec, nil
}

// consolidate derives the externally visible tri-state verdict.
// authentication_required wins whenever reconnection is pending; any other
// failure signal maps to connection_issues.
func consolidate(rec *models.ConnectionHealth) string {
	if rec.RequiresReconnection {
		return models.ConsolidatedAuthRequired
	}
	if rec.Status != models.StatusHealthy || rec.OperationalTestResult == models.ProbeFailed {
		return models.ConsolidatedConnectionIssues
	}
	return models.ConsolidatedHealthy
}

// RecordSuccess resets the pair to healthy after any fully successful
// operation (upload or refresh-plus-probe).
func (t *Tracker) RecordSuccess(userID, prov string) (*models.ConnectionHealth, error) {
	l := t.lockFor(userID, prov)
	l.Lock()
	defer l.Unlock()

	var out *models.ConnectionHealth
	err := t.db.Transaction(func(tx *gorm.DB) error {
		rec, err := t.loadOrCreate(tx, userID, prov)
		if err != nil {
			return err
		}

		now := t.now()
		rec.Status = models.StatusHealthy
		rec.ConsecutiveFailures = 0
		rec.TokenRefreshFailures = 0
		rec.RequiresReconnection = false
		rec.LastErrorType = ""
		rec.LastErrorMessage = ""
		rec.LastSuccessAt = &now
		rec.OperationalTestResult = models.ProbeSuccess
		rec.ConsolidatedStatus = consolidate(rec)

		out = rec
		return tx.Save(rec).Error
	})
	return out, err
}

// RecordFailure folds one classified provider failure into the record. The
// failure counter is monotonic across kinds until a success intervenes.
func (t *Tracker) RecordFailure(userID, prov string, kind classify.Kind, message string) (*models.ConnectionHealth, error) {
	l := t.lockFor(userID, prov)
	l.Lock()
	defer l.Unlock()

	var out *models.ConnectionHealth
	err := t.db.Transaction(func(tx *gorm.DB) error {
		rec, err := t.loadOrCreate(tx, userID, prov)
		if err != nil {
			return err
		}

		rec.ConsecutiveFailures++
		rec.LastErrorType = string(kind)
		rec.LastErrorMessage = util.TruncateLog(message, util.DefaultLogMaxLen)
		rec.OperationalTestResult = models.ProbeFailed

		policy := kind.Policy()
		if policy.RequiresReconnection {
			rec.RequiresReconnection = true
		}
		switch policy.Severity {
		case classify.SeverityUnhealthy:
			rec.Status = models.StatusUnhealthy
		case classify.SeverityDegraded:
			rec.Status = models.StatusDegraded
		}
		rec.ConsolidatedStatus = consolidate(rec)

		out = rec
		return tx.Save(rec).Error
	})
	return out, err
}

// RecordRefreshOutcome folds a token refresh result into the record.
// A successful refresh alone does not mark the pair healthy; the caller's
// operational probe or upload decides that.
func (t *Tracker) RecordRefreshOutcome(userID, prov string, outcome RefreshOutcome) (*models.ConnectionHealth, error) {
	if outcome == RefreshNotNeeded {
		return nil, nil
	}

	l := t.lockFor(userID, prov)
	l.Lock()
	defer l.Unlock()

	var out *models.ConnectionHealth
	err := t.db.Transaction(func(tx *gorm.DB) error {
		rec, err := t.loadOrCreate(tx, userID, prov)
		if err != nil {
			return err
		}

		now := t.now()
		rec.LastRefreshAttemptAt = &now

		switch outcome {
		case RefreshSuccess:
			rec.TokenRefreshFailures = 0
		case RefreshTransientFailure:
			rec.TokenRefreshFailures++
			if rec.Status == models.StatusHealthy {
				rec.Status = models.StatusDegraded
			}
		case RefreshPermanentFailure:
			rec.TokenRefreshFailures++
			rec.RequiresReconnection = true
			rec.Status = models.StatusUnhealthy
			rec.LastErrorType = string(classify.KindTokenExpired)
		}
		rec.ConsolidatedStatus = consolidate(rec)

		out = rec
		return tx.Save(rec).Error
	})
	return out, err
}

// Get returns the current record, or nil when the pair was never touched.
func (t *Tracker) Get(userID, prov string) (*models.ConnectionHealth, error) {
	var rec models.ConnectionHealth
	err := t.db.Where("user_id = ? AND provider = ?", userID, prov).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Snapshot builds the dashboard view, including the count of uploads still
// blocked or waiting for this pair.
func (t *Tracker) Snapshot(userID, prov string) (Snapshot, error) {
	snap := Snapshot{
		Provider: prov,
		Status:   models.ConsolidatedHealthy,
	}

	rec, err := t.Get(userID, prov)
	if err != nil {
		return snap, err
	}
	if rec != nil {
		snap.Status = rec.ConsolidatedStatus
		snap.ConsecutiveFailures = rec.ConsecutiveFailures
		snap.RequiresReconnection = rec.RequiresReconnection
		snap.LastErrorType = rec.LastErrorType
		if rec.LastErrorType != "" {
			snap.UserFriendlyMessage = classify.Kind(rec.LastErrorType).Policy().UserMessage
		}
	}

	var pending int64
	err = t.db.Model(&models.UploadTask{}).
		Where("user_id = ? AND provider = ? AND provider_file_id = ?", userID, prov, "").
		Count(&pending).Error
	if err != nil {
		return snap, err
	}
	snap.PendingUploadsCount = pending

	return snap, nil
}
