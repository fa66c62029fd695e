package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingHandler struct {
	mu       sync.Mutex
	calls    []Job
	failures int // fail the first N deliveries
	done     chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, job Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, job)
	if h.failures > 0 {
		h.failures--
		return errors.New("transient failure")
	}
	if h.done != nil {
		close(h.done)
		h.done = nil
	}
	return nil
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func TestQueueDeliversJob(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{})}
	q := NewQueue(h, zap.NewNop(), Options{})
	q.Start(context.Background())
	defer q.Stop()

	if !q.Enqueue(GraduationJob{TokenID: "tok-1"}) {
		t.Fatal("enqueue failed on empty queue")
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not delivered")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	gj, ok := h.calls[0].(GraduationJob)
	if !ok || gj.TokenID != "tok-1" {
		t.Fatalf("unexpected job delivered: %#v", h.calls[0])
	}
}

func TestQueueRetriesWithBackoff(t *testing.T) {
	h := &recordingHandler{failures: 2, done: make(chan struct{})}
	q := NewQueue(h, zap.NewNop(), Options{MaxRetries: 3, BaseDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(GraduationJob{TokenID: "tok-2"})

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}

	if got := h.callCount(); got != 3 {
		t.Fatalf("expected 3 delivery attempts, got %d", got)
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	h := &recordingHandler{failures: 10}
	q := NewQueue(h, zap.NewNop(), Options{MaxRetries: 1, BaseDelay: time.Millisecond})
	q.Start(context.Background())

	q.Enqueue(GraduationJob{TokenID: "tok-3"})

	deadline := time.Now().Add(2 * time.Second)
	for h.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	q.Stop()

	if got := h.callCount(); got != 2 {
		t.Fatalf("expected 2 attempts (initial + 1 retry), got %d", got)
	}
}

func TestQueueEnqueueFullBuffer(t *testing.T) {
	h := &recordingHandler{}
	q := NewQueue(h, zap.NewNop(), Options{BufferSize: 1})
	// Not started: nothing drains the buffer.

	if !q.Enqueue(GraduationJob{TokenID: "a"}) {
		t.Fatal("first enqueue should fit the buffer")
	}
	if q.Enqueue(GraduationJob{TokenID: "b"}) {
		t.Fatal("second enqueue should be rejected")
	}
}
