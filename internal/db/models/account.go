package models

import "time"

// Account stores the OAuth tokens for one (user, provider) connection.
// Tokens are mutated only by the token lifecycle manager; the record is
// removed only on explicit disconnect.
type Account struct {
	ID           string `gorm:"primaryKey"` // UUID
	UserID       string `gorm:"uniqueIndex:idx_user_provider"`
	Provider     string `gorm:"uniqueIndex:idx_user_provider"` // e.g., "google_drive"
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
	Scopes       string // space-separated authorized scopes
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
