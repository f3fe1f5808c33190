// Package orchestrator drives upload attempts end to end: token checks,
// pre-flight validation, the provider call, failure classification, health
// bookkeeping, notifications, and the typed requeue decision.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/cloudintake/sentinel/internal/auth/token"
	"github.com/cloudintake/sentinel/internal/classify"
	"github.com/cloudintake/sentinel/internal/config"
	"github.com/cloudintake/sentinel/internal/db/models"
	"github.com/cloudintake/sentinel/internal/health"
	"github.com/cloudintake/sentinel/internal/logging"
	"github.com/cloudintake/sentinel/internal/notify"
	"github.com/cloudintake/sentinel/internal/provider"
	"github.com/cloudintake/sentinel/internal/queue"
	"github.com/cloudintake/sentinel/internal/util"
)

// Orchestrator executes upload tasks pulled from the queue. It is safe for
// concurrent use by multiple workers.
type Orchestrator struct {
	db        *gorm.DB
	tokens    *token.Manager
	tracker   *health.Tracker
	notifier  *notify.Dispatcher
	providers map[string]provider.StorageProvider
	cfg       config.Config

	// enqueue re-submits a task ID to the queue; wired by main, replaced
	// in tests.
	enqueue func(taskID string)

	// open stages the file bytes for upload; os.Open in production.
	open func(path string) (io.ReadCloser, error)

	now func() time.Time
}

// New creates an orchestrator. Providers are registered by family ID.
func New(gdb *gorm.DB, tokens *token.Manager, tracker *health.Tracker, notifier *notify.Dispatcher, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		db:        gdb,
		tokens:    tokens,
		tracker:   tracker,
		notifier:  notifier,
		providers: make(map[string]provider.StorageProvider),
		cfg:       cfg,
		enqueue:   func(string) {},
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
		now: time.Now,
	}
}

// RegisterProvider adds a storage backend.
func (o *Orchestrator) RegisterProvider(p provider.StorageProvider) {
	o.providers[p.ID()] = p
}

// SetEnqueue wires the queue submission hook.
func (o *Orchestrator) SetEnqueue(fn func(taskID string)) {
	o.enqueue = fn
}

// Process runs one attempt for the task and returns the requeue decision.
// Provider and token errors never escape as raw errors; they are converted
// to classified task state.
func (o *Orchestrator) Process(ctx context.Context, taskID string) queue.Decision {
	var task models.UploadTask
	if err := o.db.Where("id = ?", taskID).First(&task).Error; err != nil {
		log.Printf("[Orchestrator] Task %s not loadable: %v", taskID, err)
		return queue.Terminal()
	}

	// Terminal-success tasks are never touched again, even if something
	// requeued them by mistake.
	if task.ProviderFileID != "" {
		return queue.Terminal()
	}

	prov, ok := o.providers[task.Provider]
	if !ok {
		log.Printf("[Orchestrator] Task %s references unknown provider %q", taskID, task.Provider)
		o.markBlocked(&task, classify.KindUnknown, "unknown storage provider "+task.Provider)
		return queue.Terminal()
	}

	// Pre-flight validation happens before any network call and does not
	// reflect on connection health.
	if kind := o.validate(&task, prov); kind != "" {
		o.markBlocked(&task, kind, "rejected before upload")
		return queue.Terminal()
	}

	accessToken, err := o.tokens.EnsureValidToken(ctx, task.UserID, task.Provider)
	if err != nil {
		return o.handleTokenFailure(ctx, &task, err)
	}

	body, err := o.open(task.SourcePath)
	if err != nil {
		o.markBlocked(&task, classify.KindUnknown, "staged file unavailable: "+err.Error())
		return queue.Terminal()
	}
	defer body.Close()

	fileID, err := prov.Upload(ctx, accessToken, provider.UploadRequest{
		FileName: task.FileName,
		MimeType: task.MimeType,
		Size:     task.SizeBytes,
		Body:     body,
	})
	if err != nil {
		return o.handleUploadFailure(ctx, &task, err)
	}

	return o.handleSuccess(ctx, &task, fileID)
}

// validate returns a blocking kind for files that can never upload, or ""
// when the task may proceed.
func (o *Orchestrator) validate(task *models.UploadTask, prov provider.StorageProvider) classify.Kind {
	if limits := prov.Limits(); limits.MaxUploadBytes > 0 && task.SizeBytes > limits.MaxUploadBytes {
		return classify.KindFileTooLarge
	}
	if o.cfg.ExtensionBlocked(task.FileName) {
		return classify.KindInvalidFileType
	}
	return ""
}

func (o *Orchestrator) handleSuccess(ctx context.Context, task *models.UploadTask, fileID string) queue.Decision {
	prev, _ := o.tracker.Get(task.UserID, task.Provider)

	task.ProviderFileID = fileID
	task.Attempts++
	o.clearTaskError(task)
	if err := o.db.Save(task).Error; err != nil {
		log.Printf("[Orchestrator] Failed to persist success for task %s: %v", task.ID, err)
	}

	rec, err := o.tracker.RecordSuccess(task.UserID, task.Provider)
	if err != nil {
		log.Printf("[Orchestrator] Failed to record success for %s/%s: %v", task.UserID, task.Provider, err)
	}

	if prev != nil && prev.ConsolidatedStatus != models.ConsolidatedHealthy {
		o.notifier.MaybeNotify(ctx, task.UserID, task.Provider, notify.EventRecovered, "", rec)
	}

	log.Printf("[Orchestrator] [%s] Task %s uploaded as %s (attempt %d)", logging.GetRequestID(ctx), task.ID, fileID, task.Attempts)
	return queue.Terminal()
}

// handleTokenFailure maps token lifecycle errors onto task state. A pending
// re-authorization makes retrying pointless, so the task parks until the
// reconnection sweep picks it up.
func (o *Orchestrator) handleTokenFailure(ctx context.Context, task *models.UploadTask, err error) queue.Decision {
	if errors.Is(err, token.ErrReauthRequired) || errors.Is(err, token.ErrNotConnected) {
		o.markBlocked(task, classify.KindTokenExpired, err.Error())
		rec, _ := o.tracker.Get(task.UserID, task.Provider)
		o.notifyFailure(ctx, task, classify.KindTokenExpired, rec)
		return queue.Terminal()
	}

	// Transient refresh failure: counts as one task failure and retries
	// on the queue's backoff.
	kind := classify.Classify(0, err.Error())
	if !kind.Policy().Retryable {
		kind = classify.KindNetworkError
	}
	o.markBlocked(task, kind, err.Error())
	rec, herr := o.tracker.RecordFailure(task.UserID, task.Provider, kind, err.Error())
	if herr != nil {
		log.Printf("[Orchestrator] Failed to record failure for %s/%s: %v", task.UserID, task.Provider, herr)
	}
	o.notifyFailure(ctx, task, kind, rec)
	return queue.RequeueAfter(o.backoff(task.Attempts))
}

func (o *Orchestrator) handleUploadFailure(ctx context.Context, task *models.UploadTask, err error) queue.Decision {
	kind := classifyError(ctx, err)
	fault := faultMessage(err)
	log.Printf("[Orchestrator] [%s] Task %s failed as %s: %s", logging.GetRequestID(ctx), task.ID, kind, fault)

	o.markBlocked(task, kind, fault)

	rec, herr := o.tracker.RecordFailure(task.UserID, task.Provider, kind, fault)
	if herr != nil {
		log.Printf("[Orchestrator] Failed to record failure for %s/%s: %v", task.UserID, task.Provider, herr)
	}

	o.notifyFailure(ctx, task, kind, rec)

	if kind.Policy().Retryable {
		return queue.RequeueAfter(o.backoff(task.Attempts))
	}
	return queue.Terminal()
}

// notifyFailure fires the single or escalated alert depending on the shared
// failure counter. Dispatch throttling keeps repeats quiet.
func (o *Orchestrator) notifyFailure(ctx context.Context, task *models.UploadTask, kind classify.Kind, rec *models.ConnectionHealth) {
	event := notify.EventSingleFailure
	if rec != nil && rec.ConsecutiveFailures >= o.cfg.EscalationThreshold {
		event = notify.EventEscalatedFailures
	}
	o.notifier.MaybeNotify(ctx, task.UserID, task.Provider, event, kind, rec)
}

// markBlocked persists the classified failure on the task. The stored
// message is the rendered user-facing text, never a raw error string.
func (o *Orchestrator) markBlocked(task *models.UploadTask, kind classify.Kind, detail string) {
	policy := kind.Policy()
	task.Attempts++
	task.ErrorType = string(kind)
	task.ErrorMessage = policy.UserMessage
	task.ErrorDetail = util.TruncateLog(detail, util.DefaultLogMaxLen)
	task.RequiresReconnection = policy.RequiresReconnection
	if err := o.db.Save(task).Error; err != nil {
		log.Printf("[Orchestrator] Failed to persist failure for task %s: %v", task.ID, err)
	}
}

func (o *Orchestrator) clearTaskError(task *models.UploadTask) {
	task.ErrorType = ""
	task.ErrorMessage = ""
	task.ErrorDetail = ""
	task.RequiresReconnection = false
	task.RetryRecommendedAt = nil
}

// backoff grows exponentially with the attempt count, bounded by config.
func (o *Orchestrator) backoff(attempts int) time.Duration {
	delay := o.cfg.RetryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= o.cfg.RetryMaxDelay {
			return o.cfg.RetryMaxDelay
		}
	}
	return delay
}

// classifyError maps a provider call error onto a Kind. Worker timeouts are
// network-class failures for retry purposes.
func classifyError(ctx context.Context, err error) classify.Kind {
	var fault *provider.Fault
	if errors.As(err, &fault) {
		return classify.FromFault(fault)
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return classify.KindNetworkError
	}
	return classify.Classify(0, err.Error())
}

func faultMessage(err error) string {
	var fault *provider.Fault
	if errors.As(err, &fault) {
		return fault.Message
	}
	return err.Error()
}
