package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/db/models"
)

func blockedOn(kind classify.Kind) func(*models.UploadTask) {
	return func(task *models.UploadTask) {
		task.ErrorType = string(kind)
		task.ErrorMessage = kind.Policy().UserMessage
		task.RequiresReconnection = kind.Policy().RequiresReconnection
		task.Attempts = 1
	}
}

func TestSweepRequeuesReconnectionFixableOnly(t *testing.T) {
	f := newFixture(t)

	f.seedTask(t, "expired", blockedOn(classify.KindTokenExpired))
	f.seedTask(t, "perms", blockedOn(classify.KindInsufficientPermissions))
	f.seedTask(t, "oversize", blockedOn(classify.KindFileTooLarge))
	f.seedTask(t, "delivered", func(task *models.UploadTask) {
		blockedOn(classify.KindTokenExpired)(task)
		task.ProviderFileID = "drive-999"
	})

	var enqueued []string
	f.orch.SetEnqueue(func(taskID string) { enqueued = append(enqueued, taskID) })

	n, err := f.orch.Sweep(context.Background(), "u1", "google_drive")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("requeued %d tasks (%v), want 2", n, enqueued)
	}

	for _, id := range []string{"expired", "perms"} {
		task := f.task(t, id)
		if task.ErrorType != "" || task.RequiresReconnection {
			t.Errorf("task %s error state not cleared: %q/%v", id, task.ErrorType, task.RequiresReconnection)
		}
		if task.RetryRecommendedAt == nil {
			t.Errorf("task %s retry_recommended_at not stamped", id)
		}
	}

	if task := f.task(t, "oversize"); task.ErrorType != string(classify.KindFileTooLarge) {
		t.Errorf("oversize task touched by sweep: %q", task.ErrorType)
	}
}

func TestSweepHonorsCooldown(t *testing.T) {
	f := newFixture(t)

	recent := time.Now().Add(-2 * time.Minute)
	f.seedTask(t, "fresh", func(task *models.UploadTask) {
		blockedOn(classify.KindTokenExpired)(task)
		task.RetryRecommendedAt = &recent
	})
	stale := time.Now().Add(-10 * time.Minute)
	f.seedTask(t, "stale", func(task *models.UploadTask) {
		blockedOn(classify.KindTokenExpired)(task)
		task.RetryRecommendedAt = &stale
	})

	var enqueued []string
	f.orch.SetEnqueue(func(taskID string) { enqueued = append(enqueued, taskID) })

	n, err := f.orch.Sweep(context.Background(), "u1", "google_drive")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || len(enqueued) != 1 || enqueued[0] != "stale" {
		t.Fatalf("requeued %d (%v), want only the stale task", n, enqueued)
	}
}

func TestSweepScopedToPair(t *testing.T) {
	f := newFixture(t)

	f.seedTask(t, "mine", blockedOn(classify.KindTokenExpired))
	f.seedTask(t, "other-user", func(task *models.UploadTask) {
		blockedOn(classify.KindTokenExpired)(task)
		task.UserID = "u2"
	})

	n, err := f.orch.Sweep(context.Background(), "u1", "google_drive")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d, want 1", n)
	}
	if task := f.task(t, "other-user"); task.ErrorType == "" {
		t.Error("sweep crossed into another user's tasks")
	}
}

func TestBulkRetryIgnoresKindAndCooldown(t *testing.T) {
	f := newFixture(t)

	recent := time.Now().Add(-time.Minute)
	f.seedTask(t, "expired", func(task *models.UploadTask) {
		blockedOn(classify.KindTokenExpired)(task)
		task.RetryRecommendedAt = &recent
	})
	f.seedTask(t, "oversize", blockedOn(classify.KindFileTooLarge))
	f.seedTask(t, "quota", blockedOn(classify.KindAPIQuotaExceeded))
	f.seedTask(t, "delivered", func(task *models.UploadTask) {
		task.ProviderFileID = "drive-777"
	})

	var enqueued []string
	f.orch.SetEnqueue(func(taskID string) { enqueued = append(enqueued, taskID) })

	n, err := f.orch.BulkRetry(context.Background(), "u1", "google_drive")
	if err != nil {
		t.Fatalf("bulk retry: %v", err)
	}
	if n != 3 {
		t.Fatalf("requeued %d (%v), want every blocked task", n, enqueued)
	}
}
