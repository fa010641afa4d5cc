package jobs

import (
	"time"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/models"
)

// transitions lists the legal moves out of each status. Terminal statuses have none.
var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusRequested: {models.JobStatusAccepted, models.JobStatusCancelled},
	models.JobStatusAccepted:  {models.JobStatusDelivered},
	models.JobStatusDelivered: {models.JobStatusCompleted},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to models.JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition is the only code that changes a job's status.
func transition(job *models.Job, to models.JobStatus, now time.Time) error {
	if !CanTransition(job.Status, to) {
		return apperr.InvalidStatusTransition(string(job.Status), string(to))
	}
	job.Status = to
	job.UpdatedAt = now
	if to == models.JobStatusCompleted {
		job.CompletedAt = &now
	}
	return nil
}
