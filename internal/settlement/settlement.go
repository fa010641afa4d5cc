// Package settlement mirrors escrow movements to an external settlement backend,
// such as an on-chain USDC escrow contract. The shell ledger stays authoritative: the
// jobs service calls a Mirror only after its own transaction commits and a mirror
// failure is logged, never rolled back into the ledger.
package settlement

import (
	"context"
	"log/slog"

	"github.com/inaiurai/shellmarket/internal/models"
)

type Mirror interface {
	// Lock mirrors the escrow hold taken when a job is created.
	Lock(ctx context.Context, job *models.Job) error
	// Release mirrors payment to the provider on completion.
	Release(ctx context.Context, job *models.Job, payout, fee int64) error
	// Refund mirrors the return of escrow to the requester on cancellation.
	Refund(ctx context.Context, job *models.Job) error
}

// Noop is the default Mirror when no external backend is configured.
type Noop struct{}

func (Noop) Lock(context.Context, *models.Job) error                  { return nil }
func (Noop) Release(context.Context, *models.Job, int64, int64) error { return nil }
func (Noop) Refund(context.Context, *models.Job) error                { return nil }

// Logging records every mirrored movement at debug level and forwards it to Next.
type Logging struct {
	Next Mirror
	Log  *slog.Logger
}

func (l Logging) Lock(ctx context.Context, job *models.Job) error {
	l.Log.DebugContext(ctx, "settlement lock", "job_id", job.ID, "amount", job.Amount)
	return l.Next.Lock(ctx, job)
}

func (l Logging) Release(ctx context.Context, job *models.Job, payout, fee int64) error {
	l.Log.DebugContext(ctx, "settlement release", "job_id", job.ID, "payout", payout, "fee", fee)
	return l.Next.Release(ctx, job, payout, fee)
}

func (l Logging) Refund(ctx context.Context, job *models.Job) error {
	l.Log.DebugContext(ctx, "settlement refund", "job_id", job.ID, "amount", job.Amount)
	return l.Next.Refund(ctx, job)
}

var (
	_ Mirror = Noop{}
	_ Mirror = Logging{}
)
