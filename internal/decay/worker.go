package decay

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
)

const DefaultInterval = 24 * time.Hour

// Args schedules one decay pass.
type Args struct{}

func (Args) Kind() string { return "reputation_decay" }

func (Args) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

type Worker struct {
	river.WorkerDefaults[Args]
	svc *Service
}

func NewWorker(svc *Service) *Worker {
	return &Worker{svc: svc}
}

func (w *Worker) Work(ctx context.Context, _ *river.Job[Args]) error {
	if _, err := w.svc.Apply(ctx); err != nil {
		return fmt.Errorf("apply reputation decay: %w", err)
	}
	return nil
}

// PeriodicJob runs a decay pass every interval, DefaultInterval if interval is not positive.
func PeriodicJob(interval time.Duration) *river.PeriodicJob {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return Args{}, nil
		},
		&river.PeriodicJobOpts{},
	)
}
