package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// WebhookArgs is a durable webhook delivery queued in River.
type WebhookArgs struct {
	AgentID   uuid.UUID      `json:"agent_id"`
	Event     Event          `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (WebhookArgs) Kind() string { return "webhook_delivery" }

func (WebhookArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// InsertWebhookFunc enqueues a delivery. Provided by main as a closure over river.Client.Insert.
type InsertWebhookFunc func(ctx context.Context, args WebhookArgs) error

// RiverNotifier queues every notification as a River job so deliveries survive
// restarts and are retried with backoff.
type RiverNotifier struct {
	insert InsertWebhookFunc
	log    *slog.Logger
}

func NewRiverNotifier(insert InsertWebhookFunc, log *slog.Logger) *RiverNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &RiverNotifier{insert: insert, log: log}
}

func (n *RiverNotifier) Notify(ctx context.Context, agentID uuid.UUID, event Event, data map[string]any) {
	args := WebhookArgs{AgentID: agentID, Event: event, Timestamp: time.Now().UTC(), Data: data}
	// The caller's request context may end right after the response is written.
	if err := n.insert(context.WithoutCancel(ctx), args); err != nil {
		n.log.Error("enqueue webhook", "agent_id", agentID, "event", event, "error", err)
	}
}

var _ Notifier = (*RiverNotifier)(nil)

type WebhookWorker struct {
	river.WorkerDefaults[WebhookArgs]
	deliverer Deliverer
}

func NewWebhookWorker(d Deliverer) *WebhookWorker {
	return &WebhookWorker{deliverer: d}
}

// Work returns the delivery error so River retries the job.
func (w *WebhookWorker) Work(ctx context.Context, job *river.Job[WebhookArgs]) error {
	args := job.Args
	p := Payload{Event: args.Event, Timestamp: args.Timestamp, Data: args.Data}
	if err := w.deliverer.Deliver(ctx, args.AgentID, p); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", args.Event, args.AgentID, err)
	}
	return nil
}
