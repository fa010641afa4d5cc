package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type delivery struct {
	agentID uuid.UUID
	payload Payload
}

// Queue is an in-process notifier: a bounded buffer drained by a fixed set of
// worker goroutines. When the buffer is full the notification is dropped.
type Queue struct {
	deliverer Deliverer
	timeout   time.Duration
	log       *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan delivery
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines. Call Close to stop them.
func NewQueue(d Deliverer, size, workers int, timeout time.Duration, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{
		deliverer: d,
		timeout:   timeout,
		log:       log,
		ch:        make(chan delivery, size),
	}
	for range workers {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *Queue) Notify(_ context.Context, agentID uuid.UUID, event Event, data map[string]any) {
	d := delivery{
		agentID: agentID,
		payload: Payload{Event: event, Timestamp: time.Now().UTC(), Data: data},
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- d:
	default:
		q.log.Warn("webhook queue full, dropping notification", "agent_id", agentID, "event", event)
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for d := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.deliverer.Deliver(ctx, d.agentID, d.payload); err != nil {
			q.log.Warn("webhook delivery failed", "agent_id", d.agentID, "event", d.payload.Event, "error", err)
		}
		cancel()
	}
}

// Close stops accepting notifications, drains what is buffered and waits for the
// workers to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

var _ Notifier = (*Queue)(nil)
