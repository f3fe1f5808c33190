// Package queue runs upload tasks on a worker pool with support for delayed
// requeue. Retry is an explicit decision returned by the handler, never an
// exception-driven framework behavior.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cloudintake/sentinel/internal/logging"
)

// Decision tells the queue what to do with a task after an attempt.
type Decision struct {
	Requeue bool
	Delay   time.Duration
}

// Terminal leaves the task where it is; nothing is scheduled.
func Terminal() Decision { return Decision{} }

// RequeueAfter schedules another attempt after the delay.
func RequeueAfter(delay time.Duration) Decision {
	return Decision{Requeue: true, Delay: delay}
}

// Handler processes one task attempt. The context carries the per-task
// execution deadline.
type Handler func(ctx context.Context, taskID string) Decision

// Queue is a bounded in-memory task queue. Tasks are identified by ID; their
// state lives in the database, so a dropped in-flight ID is recoverable by a
// sweep or manual retry.
type Queue struct {
	tasks       chan string
	taskTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates a queue with the given buffer capacity and per-task timeout.
func New(capacity int, taskTimeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		tasks:       make(chan string, capacity),
		taskTimeout: taskTimeout,
		ctx:         ctx,
		cancel:      cancel,
		timers:      make(map[*time.Timer]struct{}),
	}
}

// Enqueue submits a task for immediate processing. Returns false when the
// queue is full or shut down.
func (q *Queue) Enqueue(taskID string) bool {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return false
	}

	select {
	case q.tasks <- taskID:
		return true
	default:
		log.Printf("[Queue] Full, dropping task %s (recoverable via retry sweep)", taskID)
		return false
	}
}

// EnqueueAfter schedules a task after the delay. A zero delay enqueues
// immediately.
func (q *Queue) EnqueueAfter(taskID string, delay time.Duration) {
	if delay <= 0 {
		q.Enqueue(taskID)
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.Enqueue(taskID)
	})
	q.timers[timer] = struct{}{}
	q.mu.Unlock()
}

// Start launches the worker pool. Each task attempt runs under the
// configured timeout; the handler's decision drives any requeue.
func (q *Queue) Start(workers int, handler Handler) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(handler)
	}
	log.Printf("[Queue] Started %d workers (task timeout: %s)", workers, q.taskTimeout)
}

func (q *Queue) worker(handler Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case taskID := <-q.tasks:
			q.run(handler, taskID)
		}
	}
}

// run executes one attempt. The task context derives from Background, not
// q.ctx: shutdown stops the workers from picking up new tasks but never
// aborts an attempt mid-flight.
func (q *Queue) run(handler Handler, taskID string) {
	ctx := logging.WithRequestID(context.Background(), logging.GenerateRequestID())
	var cancel context.CancelFunc
	if q.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.taskTimeout)
		defer cancel()
	}

	decision := handler(ctx, taskID)
	if decision.Requeue {
		q.EnqueueAfter(taskID, decision.Delay)
	}
}

// Close stops the workers and cancels pending delayed tasks. In-flight
// attempts run to completion or timeout; there is no mid-flight cancel.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
