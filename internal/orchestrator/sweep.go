package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/db/models"
)

// Sweep requeues uploads blocked on reconnection-fixable errors after a
// fresh OAuth authorization. Tasks retried within the cooldown window are
// skipped so a concurrent retry is not duplicated. Returns the number of
// tasks requeued.
func (o *Orchestrator) Sweep(ctx context.Context, userID, prov string) (int, error) {
	fixable := []string{
		string(classify.KindTokenExpired),
		string(classify.KindInsufficientPermissions),
	}

	var tasks []models.UploadTask
	err := o.db.Where("user_id = ? AND provider = ? AND provider_file_id = ? AND error_type IN ?",
		userID, prov, "", fixable).Find(&tasks).Error
	if err != nil {
		return 0, fmt.Errorf("select blocked tasks: %w", err)
	}

	return o.requeueTasks(ctx, tasks, true)
}

// BulkRetry is the user-triggered override: every blocked task for the pair
// is requeued regardless of error kind or cooldown. Non-retryable failures
// will simply re-classify on the next attempt.
func (o *Orchestrator) BulkRetry(ctx context.Context, userID, prov string) (int, error) {
	var tasks []models.UploadTask
	err := o.db.Where("user_id = ? AND provider = ? AND provider_file_id = ? AND error_type <> ?",
		userID, prov, "", "").Find(&tasks).Error
	if err != nil {
		return 0, fmt.Errorf("select blocked tasks: %w", err)
	}

	return o.requeueTasks(ctx, tasks, false)
}

func (o *Orchestrator) requeueTasks(_ context.Context, tasks []models.UploadTask, honorCooldown bool) (int, error) {
	now := o.now()
	cutoff := now.Add(-o.cfg.SweepCooldown)

	requeued := 0
	for i := range tasks {
		task := &tasks[i]

		if honorCooldown && task.RetryRecommendedAt != nil && task.RetryRecommendedAt.After(cutoff) {
			continue
		}

		o.clearTaskError(task)
		stamp := now
		task.RetryRecommendedAt = &stamp
		if err := o.db.Save(task).Error; err != nil {
			return requeued, fmt.Errorf("requeue task %s: %w", task.ID, err)
		}

		o.enqueue(task.ID)
		requeued++
	}

	if requeued > 0 {
		log.Printf("[Orchestrator] Requeued %d blocked uploads", requeued)
	}
	return requeued, nil
}
