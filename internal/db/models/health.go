package models

import "time"

// Raw health signal recorded from the most recent check or upload.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Consolidated status values exposed to dashboards. Exactly one verdict per
// (user, provider) pair; authentication_required wins over everything else.
const (
	ConsolidatedHealthy          = "healthy"
	ConsolidatedConnectionIssues = "connection_issues"
	ConsolidatedAuthRequired     = "authentication_required"
)

// Operational probe outcomes.
const (
	ProbeSuccess = "success"
	ProbeFailed  = "failed"
)

// ConnectionHealth is the consolidated health record for one (user, provider)
// connection. It is upserted, never duplicated, and mutated only by the
// health tracker.
type ConnectionHealth struct {
	ID                    string `gorm:"primaryKey"` // UUID
	UserID                string `gorm:"uniqueIndex:idx_health_user_provider"`
	Provider              string `gorm:"uniqueIndex:idx_health_user_provider"`
	Status                string `gorm:"default:healthy"`
	ConsolidatedStatus    string `gorm:"default:healthy"`
	ConsecutiveFailures   int
	LastErrorType         string
	LastErrorMessage      string
	RequiresReconnection  bool
	LastSuccessAt         *time.Time
	LastRefreshAttemptAt  *time.Time
	TokenRefreshFailures  int
	OperationalTestResult string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
