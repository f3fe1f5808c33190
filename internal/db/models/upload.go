package models

import "time"

// UploadTask is one file pending transfer to the storage provider.
// A task with a non-empty ProviderFileID is terminal-success and is never
// touched by the retry machinery again.
type UploadTask struct {
	ID        string `gorm:"primaryKey"` // UUID
	UserID    string `gorm:"index:idx_upload_user_provider"`
	Provider  string `gorm:"index:idx_upload_user_provider"`
	FileName  string
	SizeBytes int64
	MimeType  string
	// SourcePath points at the staged file on local disk; the bytes
	// themselves are owned by the intake portal, not this subsystem.
	SourcePath string

	ProviderFileID string `gorm:"index"`

	// Error bookkeeping, cleared on success or requeue. ErrorType holds a
	// classify.Kind string; empty means the task is not currently blocked.
	ErrorType            string `gorm:"index"`
	ErrorMessage         string // rendered user-facing message
	ErrorDetail          string // technical detail for operators
	RequiresReconnection bool
	RetryRecommendedAt   *time.Time

	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Blocked reports whether the task is waiting on an unresolved failure.
func (t *UploadTask) Blocked() bool {
	return t.ProviderFileID == "" && t.ErrorType != ""
}
