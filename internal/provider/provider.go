// Package provider defines the storage provider abstraction the recovery
// engine drives. Each provider is a typed implementation, not a string-keyed
// branch, so adding a provider family is a compile-time concern.
package provider

import (
	"context"
	"fmt"
	"io"
)

// UploadRequest describes one file to transfer.
type UploadRequest struct {
	FileName string
	MimeType string
	Size     int64
	Body     io.Reader
	// Folder is the provider-side destination folder ID, empty for root.
	Folder string
}

// Limits describes provider-side constraints checked before any network call.
type Limits struct {
	MaxUploadBytes int64
}

// StorageProvider is one remote storage backend for a user's files.
type StorageProvider interface {
	// ID identifies the provider family, e.g. "google_drive".
	ID() string
	// Upload transfers one file and returns the provider's file ID.
	Upload(ctx context.Context, accessToken string, req UploadRequest) (string, error)
	// Probe performs a cheap authenticated call to verify the connection
	// is operational.
	Probe(ctx context.Context, accessToken string) error
	// Limits returns the provider's upload constraints.
	Limits() Limits
}

// Fault is a provider failure normalized to the shape the classifier
// consumes: an HTTP-ish status code plus the provider's message. Transport
// errors carry StatusCode 0.
type Fault struct {
	StatusCode int
	Message    string
}

func (f *Fault) Error() string {
	if f.StatusCode == 0 {
		return f.Message
	}
	return fmt.Sprintf("provider error %d: %s", f.StatusCode, f.Message)
}
