package util

import "fmt"

// DefaultLogMaxLen caps provider error messages stored on health records and
// tasks; the full response is available in the process log.
const DefaultLogMaxLen = 1024

// TruncateLog truncates long strings before they are persisted or logged.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
