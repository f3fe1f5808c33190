package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDecisionHelpers(t *testing.T) {
	if d := Terminal(); d.Requeue {
		t.Fatal("Terminal() requeues")
	}
	if d := RequeueAfter(15 * time.Second); !d.Requeue || d.Delay != 15*time.Second {
		t.Fatalf("RequeueAfter = %+v", d)
	}
}

func TestWorkersProcessTasks(t *testing.T) {
	q := New(16, time.Second)
	defer q.Close()

	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 3)

	q.Start(2, func(_ context.Context, taskID string) Decision {
		mu.Lock()
		seen[taskID]++
		mu.Unlock()
		done <- struct{}{}
		return Terminal()
	})

	for _, id := range []string{"a", "b", "c"} {
		if !q.Enqueue(id) {
			t.Fatalf("enqueue %s rejected", id)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for workers")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"a", "b", "c"} {
		if seen[id] != 1 {
			t.Errorf("task %s processed %d times, want 1", id, seen[id])
		}
	}
}

func TestRequeueDecisionReschedules(t *testing.T) {
	q := New(16, time.Second)
	defer q.Close()

	attempts := make(chan int, 4)
	var count int
	var mu sync.Mutex

	q.Start(1, func(_ context.Context, _ string) Decision {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		attempts <- n
		if n < 3 {
			return RequeueAfter(10 * time.Millisecond)
		}
		return Terminal()
	})

	q.Enqueue("t1")

	for want := 1; want <= 3; want++ {
		select {
		case got := <-attempts:
			if got != want {
				t.Fatalf("attempt %d, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for attempt %d", want)
		}
	}

	// No further attempts after the terminal decision.
	select {
	case got := <-attempts:
		t.Fatalf("unexpected attempt %d after terminal decision", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerContextCarriesTimeout(t *testing.T) {
	q := New(4, 50*time.Millisecond)
	defer q.Close()

	deadlines := make(chan bool, 1)
	q.Start(1, func(ctx context.Context, _ string) Decision {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return Terminal()
	})

	q.Enqueue("t1")
	select {
	case ok := <-deadlines:
		if !ok {
			t.Fatal("handler context has no deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

func TestCloseDoesNotAbortInFlightAttempt(t *testing.T) {
	q := New(4, time.Minute)

	started := make(chan struct{})
	proceed := make(chan struct{})
	ctxErr := make(chan error, 1)

	q.Start(1, func(ctx context.Context, _ string) Decision {
		close(started)
		<-proceed
		ctxErr <- ctx.Err()
		return Terminal()
	})

	q.Enqueue("t1")
	<-started

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	// Give the shutdown time to cancel the worker context, then let the
	// attempt finish.
	time.Sleep(50 * time.Millisecond)
	close(proceed)

	select {
	case err := <-ctxErr:
		if err != nil {
			t.Fatalf("in-flight attempt saw cancelled context: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the attempt to finish")
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Close")
	}
}

func TestEnqueueAfterClosedQueue(t *testing.T) {
	q := New(4, time.Second)
	q.Start(1, func(context.Context, string) Decision { return Terminal() })
	q.Close()

	if q.Enqueue("t1") {
		t.Fatal("enqueue accepted after close")
	}
	// Must not panic or leak a timer.
	q.EnqueueAfter("t2", time.Minute)
	q.Close() // idempotent
}

func TestFullQueueRejects(t *testing.T) {
	q := New(1, time.Second)
	defer q.Close()
	// No workers started: the buffer fills.
	if !q.Enqueue("t1") {
		t.Fatal("first enqueue rejected")
	}
	if q.Enqueue("t2") {
		t.Fatal("enqueue accepted beyond capacity")
	}
}
