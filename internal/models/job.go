package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job. Transitions are owned by the jobs package.
type JobStatus string

const (
	JobStatusRequested JobStatus = "requested"
	JobStatusAccepted  JobStatus = "accepted"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus returns the status named by s, or false if s is not a known status.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch st := JobStatus(s); st {
	case JobStatusRequested, JobStatusAccepted, JobStatusDelivered, JobStatusCompleted, JobStatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// Escrowed reports whether the job amount is held in escrow in this state.
func (s JobStatus) Escrowed() bool {
	return s == JobStatusRequested || s == JobStatusAccepted || s == JobStatusDelivered
}

type Job struct {
	ID          uuid.UUID  `json:"id"`
	ServiceID   *uuid.UUID `json:"serviceId,omitempty"`
	RequesterID uuid.UUID  `json:"requesterId"`
	ProviderID  uuid.UUID  `json:"providerId"`
	Amount      int64      `json:"amount"`
	Description *string    `json:"description,omitempty"`
	Deliverable *string    `json:"deliverable,omitempty"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobFilter narrows job listings. Zero values match everything.
type JobFilter struct {
	RequesterID *uuid.UUID
	ProviderID  *uuid.UUID
	Status      *JobStatus
}
