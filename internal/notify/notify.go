// Package notify delivers agent webhooks. Services call Notify after their store
// transaction commits; Notify only enqueues and never reports delivery failures back.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/models"
)

type Event string

const (
	JobRequested   Event = "job.requested"
	JobAccepted    Event = "job.accepted"
	JobDelivered   Event = "job.delivered"
	JobCompleted   Event = "job.completed"
	JobCancelled   Event = "job.cancelled"
	ReviewReceived Event = "review.received"
)

// EventHeader names the event on every webhook request.
const EventHeader = "X-Shellmarket-Event"

type Notifier interface {
	Notify(ctx context.Context, agentID uuid.UUID, event Event, data map[string]any)
}

// Payload is the webhook request body.
type Payload struct {
	Event     Event          `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Deliverer sends one payload to an agent.
type Deliverer interface {
	Deliver(ctx context.Context, agentID uuid.UUID, p Payload) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, Event, map[string]any) {}

// JobEvent notifies the participant who cares about event: the provider for
// requests, completions and cancellations, the requester otherwise.
func JobEvent(ctx context.Context, n Notifier, job *models.Job, event Event) {
	data := map[string]any{
		"jobId":       job.ID,
		"amount":      job.Amount,
		"status":      job.Status,
		"description": job.Description,
		"deliverable": job.Deliverable,
	}
	switch event {
	case JobRequested, JobCompleted, JobCancelled:
		data["requesterId"] = job.RequesterID
		n.Notify(ctx, job.ProviderID, event, data)
	case JobAccepted, JobDelivered:
		data["providerId"] = job.ProviderID
		n.Notify(ctx, job.RequesterID, event, data)
	}
}
