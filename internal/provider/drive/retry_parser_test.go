package drive

import (
	"context"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestRetryDelayFromError(t *testing.T) {
	tests := []struct {
		name string
		err  *googleapi.Error
		want time.Duration
	}{
		{
			name: "nil error",
			err:  nil,
			want: 0,
		},
		{
			name: "retry-after seconds",
			err: &googleapi.Error{
				Code:   429,
				Header: http.Header{"Retry-After": []string{"30"}},
			},
			want: 30 * time.Second,
		},
		{
			name: "retry info detail",
			err: &googleapi.Error{
				Code: 429,
				Body: `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"3.5s"}]}}`,
			},
			want: 3500 * time.Millisecond,
		},
		{
			name: "retry delay in metadata",
			err: &googleapi.Error{
				Code: 429,
				Body: `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","metadata":{"retryDelay":"12s"}}]}}`,
			},
			want: 12 * time.Second,
		},
		{
			name: "header wins over body",
			err: &googleapi.Error{
				Code:   429,
				Header: http.Header{"Retry-After": []string{"5"}},
				Body:   `{"error":{"details":[{"retryDelay":"99s"}]}}`,
			},
			want: 5 * time.Second,
		},
		{
			name: "no hint",
			err:  &googleapi.Error{Code: 429, Body: `{"error":{"message":"Rate Limit Exceeded"}}`},
			want: 0,
		},
		{
			name: "malformed body",
			err:  &googleapi.Error{Code: 429, Body: "not json"},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryDelayFromError(tt.err); got != tt.want {
				t.Fatalf("RetryDelayFromError = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRateLimiterBackoffWindow(t *testing.T) {
	rl := NewRateLimiter()
	rl.RecordRateLimitError(50 * time.Millisecond)

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("wait returned after %s, expected to honor backoff window", elapsed)
	}
}

func TestRateLimiterWaitCancellable(t *testing.T) {
	rl := NewRateLimiter()
	rl.RecordRateLimitError(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("wait ignored context cancellation during backoff")
	}
}
