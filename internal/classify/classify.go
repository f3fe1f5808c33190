// Package classify maps storage provider failures onto a closed set of error
// kinds. The policy attached to each kind is the single source of truth for
// retry and reconnection behavior; nothing downstream re-derives it.
package classify

import (
	"strings"

	"github.com/cloudintake/sentinel/internal/provider"
)

// Kind is the classification of a provider failure.
type Kind string

const (
	KindTokenExpired            Kind = "token_expired"
	KindInsufficientPermissions Kind = "insufficient_permissions"
	KindFolderAccessDenied      Kind = "folder_access_denied"
	KindAPIQuotaExceeded        Kind = "api_quota_exceeded"
	KindNetworkError            Kind = "network_error"
	KindFileTooLarge            Kind = "file_too_large"
	KindInvalidFileType         Kind = "invalid_file_type"
	KindUnknown                 Kind = "unknown"
)

// Severity grades how hard a kind hits the connection health signal.
type Severity int

const (
	SeverityNone Severity = iota // does not reflect on the connection itself
	SeverityDegraded
	SeverityUnhealthy
)

// Policy is the static behavior attached to a Kind.
type Policy struct {
	// Retryable kinds are released back to the queue automatically.
	Retryable bool
	// RequiresReconnection kinds cannot recover without the user
	// re-authorizing the provider.
	RequiresReconnection bool
	// UserMessage is the rendered message shown next to a blocked upload.
	UserMessage string
	// Severity drives the raw health signal.
	Severity Severity
}

var policies = map[Kind]Policy{
	KindTokenExpired: {
		Retryable:            false,
		RequiresReconnection: true,
		UserMessage:          "Your cloud storage connection has expired. Please reconnect your account to resume uploads.",
		Severity:             SeverityUnhealthy,
	},
	KindInsufficientPermissions: {
		Retryable:            false,
		RequiresReconnection: true,
		UserMessage:          "Your cloud storage account does not grant the permissions needed to upload files. Please reconnect and approve all requested access.",
		Severity:             SeverityUnhealthy,
	},
	KindFolderAccessDenied: {
		Retryable:            false,
		RequiresReconnection: false,
		UserMessage:          "The destination folder is no longer accessible. Check that it still exists and that your account can write to it.",
		Severity:             SeverityUnhealthy,
	},
	KindAPIQuotaExceeded: {
		Retryable:            true,
		RequiresReconnection: false,
		UserMessage:          "Your cloud storage provider is rate limiting uploads. We will retry automatically.",
		Severity:             SeverityDegraded,
	},
	KindNetworkError: {
		Retryable:            true,
		RequiresReconnection: false,
		UserMessage:          "We could not reach your cloud storage provider. We will retry automatically.",
		Severity:             SeverityDegraded,
	},
	KindFileTooLarge: {
		Retryable:            false,
		RequiresReconnection: false,
		UserMessage:          "This file exceeds the maximum upload size and cannot be sent to cloud storage.",
		Severity:             SeverityNone,
	},
	KindInvalidFileType: {
		Retryable:            false,
		RequiresReconnection: false,
		UserMessage:          "This file type is not allowed and cannot be sent to cloud storage.",
		Severity:             SeverityNone,
	},
	KindUnknown: {
		Retryable:            false,
		RequiresReconnection: false,
		UserMessage:          "An unexpected error occurred while uploading to cloud storage. Our team has been notified.",
		Severity:             SeverityDegraded,
	},
}

// Policy returns the static policy for the kind. Unknown kinds fall back to
// the KindUnknown policy.
func (k Kind) Policy() Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return policies[KindUnknown]
}

// Valid reports whether k is one of the closed set of kinds.
func (k Kind) Valid() bool {
	_, ok := policies[k]
	return ok
}

// ReconnectionFixable reports whether a fresh OAuth authorization can unblock
// an upload that failed with this kind. Size and file-type failures stay
// blocked no matter how many times the user reconnects.
func (k Kind) ReconnectionFixable() bool {
	return k == KindTokenExpired || k == KindInsufficientPermissions
}

// Classify maps an HTTP status plus provider message onto a Kind. Rules are
// ordered; the first match wins. All matching is case-insensitive substring
// search, so wording variations across provider API versions still land in
// the right bucket.
func Classify(status int, message string) Kind {
	msg := strings.ToLower(message)

	switch {
	case status == 401 || contains(msg, "expired", "revoked", "invalid_grant"):
		return KindTokenExpired
	case status == 403 && strings.Contains(msg, "folder"):
		return KindFolderAccessDenied
	case status == 403:
		return KindInsufficientPermissions
	case status == 429 || contains(msg, "rate limit", "quota"):
		return KindAPIQuotaExceeded
	case contains(msg, "curl", "connection", "timeout", "resolve host", "network"):
		return KindNetworkError
	default:
		return KindUnknown
	}
}

// FromFault classifies a normalized provider fault.
func FromFault(f *provider.Fault) Kind {
	if f == nil {
		return KindUnknown
	}
	return Classify(f.StatusCode, f.Message)
}

func contains(msg string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
