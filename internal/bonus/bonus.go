// Package bonus pays the one-time incentives triggered by job completion: activity
// mining for the platform's first jobs and the referral bonus on a referred agent's
// first job as provider.
package bonus

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

const (
	// ActivityMiningThreshold is how many completed jobs, platform-wide, earn the bonus.
	ActivityMiningThreshold = 10
	ActivityMiningAmount    int64 = 5
	ReferralAmount          int64 = 10
)

type ActivityMining struct {
	Requester int64 `json:"requester"`
	Provider  int64 `json:"provider"`
}

type Referral struct {
	Amount     int64     `json:"amount"`
	ReferrerID uuid.UUID `json:"referrerId"`
}

// ActivityMiningRemaining is how many more completions will earn the bonus.
func ActivityMiningRemaining(completedJobs int) int {
	return max(0, ActivityMiningThreshold-completedJobs)
}

type Engine struct {
	ledger *ledger.Ledger
}

func NewEngine(l *ledger.Ledger) *Engine {
	return &Engine{ledger: l}
}

// ActivityMining credits both parties of job when fewer than ActivityMiningThreshold
// jobs had completed before it. completedBefore must not yet count job.
func (e *Engine) ActivityMining(ctx context.Context, tx store.Tx, job *models.Job, completedBefore int) (*ActivityMining, error) {
	if completedBefore >= ActivityMiningThreshold {
		return nil, nil
	}
	desc := fmt.Sprintf("Activity mining bonus (job #%d)", completedBefore+1)
	for _, id := range []uuid.UUID{job.RequesterID, job.ProviderID} {
		if _, err := e.ledger.Credit(ctx, tx, ledger.Entry{
			AgentID:     id,
			Amount:      ActivityMiningAmount,
			Type:        models.TxActivityMiningBonus,
			JobID:       &job.ID,
			Description: desc,
		}); err != nil {
			return nil, fmt.Errorf("activity mining bonus: %w", err)
		}
	}
	return &ActivityMining{Requester: ActivityMiningAmount, Provider: ActivityMiningAmount}, nil
}

// Referral pays the referral bonus to provider and its referrer if this is the
// provider's first completed job and the bonus was never paid. provider must be read
// before its completed-job counter is incremented.
func (e *Engine) Referral(ctx context.Context, tx store.Tx, provider *models.Agent, jobID uuid.UUID) (*Referral, error) {
	if provider.JobsCompleted != 0 || provider.ReferredBy == nil || provider.ReferralBonusPaid {
		return nil, nil
	}
	marked, err := tx.MarkReferralBonusPaid(ctx, provider.ID, e.ledger.Now())
	if err != nil {
		return nil, fmt.Errorf("mark referral bonus paid: %w", err)
	}
	if !marked {
		return nil, nil
	}

	referrerID := *provider.ReferredBy
	if _, err := e.ledger.Credit(ctx, tx, ledger.Entry{
		AgentID:     provider.ID,
		Amount:      ReferralAmount,
		Type:        models.TxReferralBonusNew,
		JobID:       &jobID,
		Description: "Referral bonus for completing first job",
	}); err != nil {
		return nil, fmt.Errorf("referral bonus: %w", err)
	}
	if _, err := e.ledger.Credit(ctx, tx, ledger.Entry{
		AgentID:     referrerID,
		Amount:      ReferralAmount,
		Type:        models.TxReferralBonusReferrer,
		JobID:       &jobID,
		Description: fmt.Sprintf("Referral bonus: %s completed first job", provider.Name),
	}); err != nil {
		return nil, fmt.Errorf("referrer bonus: %w", err)
	}
	return &Referral{Amount: ReferralAmount, ReferrerID: referrerID}, nil
}
