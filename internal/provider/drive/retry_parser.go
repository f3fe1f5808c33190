package drive

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// retryInfo is the structured error body Google APIs attach to 429 responses.
type retryInfo struct {
	Error struct {
		Details []struct {
			Type       string            `json:"@type"`
			Reason     string            `json:"reason"`
			Metadata   map[string]string `json:"metadata"`
			RetryDelay string            `json:"retryDelay"` // e.g. "3.5s"
		} `json:"details"`
	} `json:"error"`
}

// RetryDelayFromError extracts a retry duration from a rate-limited API
// error. It checks the standard Retry-After header first, then the
// Google-specific RetryInfo detail in the error body. Returns 0 when no hint
// is present so the caller can pick its own backoff.
func RetryDelayFromError(gerr *googleapi.Error) time.Duration {
	if gerr == nil {
		return 0
	}

	if retryAfter := gerr.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			return time.Until(t)
		}
	}

	if gerr.Body == "" {
		return 0
	}

	var info retryInfo
	if err := json.Unmarshal([]byte(gerr.Body), &info); err != nil {
		return 0
	}

	for _, detail := range info.Error.Details {
		if detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
		if delay, ok := detail.Metadata["retryDelay"]; ok {
			if d, err := time.ParseDuration(delay); err == nil {
				return d
			}
		}
	}

	return 0
}
