// Package jobs owns the job lifecycle. Each transition runs in one store transaction
// together with the escrow, payout, fee and bonus movements it triggers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/auth"
	"github.com/inaiurai/shellmarket/internal/bonus"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/metrics"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/notify"
	"github.com/inaiurai/shellmarket/internal/settlement"
	"github.com/inaiurai/shellmarket/internal/store"
)

type CreateInput struct {
	ServiceID   *uuid.UUID
	RequesterID uuid.UUID
	ProviderID  uuid.UUID
	Amount      int64
	Description *string
}

type Payout struct {
	Provider int64 `json:"provider"`
	Fee      int64 `json:"fee"`
}

type EconomyStats struct {
	TotalCompletedJobs      int `json:"totalCompletedJobs"`
	ActivityMiningRemaining int `json:"activityMiningRemaining"`
}

// Completion is the result of completing a job.
type Completion struct {
	Job                 *models.Job           `json:"job"`
	Payout              Payout                `json:"payout"`
	ActivityMiningBonus *bonus.ActivityMining `json:"activityMiningBonus,omitempty"`
	ReferralBonus       *bonus.Referral       `json:"referralBonus,omitempty"`
	EconomyStats        EconomyStats          `json:"economyStats"`
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, f models.JobFilter) ([]*models.Job, error)
	Accept(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Deliver(ctx context.Context, id uuid.UUID, deliverable *string) (*models.Job, error)
	Complete(ctx context.Context, id uuid.UUID) (*Completion, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type service struct {
	store    store.Store
	ledger   *ledger.Ledger
	bonus    *bonus.Engine
	notifier notify.Notifier
	mirror   settlement.Mirror
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewService wires the job state machine. notifier and mirror may be nil.
func NewService(st store.Store, l *ledger.Ledger, n notify.Notifier, m settlement.Mirror, met *metrics.Metrics, log *slog.Logger) Service {
	if n == nil {
		n = notify.Nop{}
	}
	if m == nil {
		m = settlement.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{
		store:    st,
		ledger:   l,
		bonus:    bonus.NewEngine(l),
		notifier: n,
		mirror:   m,
		metrics:  met,
		log:      log,
	}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, in CreateInput) (*models.Job, error) {
	if in.RequesterID == in.ProviderID {
		return nil, apperr.SelfHire()
	}
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount", "amount must be a positive integer")
	}
	if err := auth.RequireActor(ctx, in.RequesterID, "NOT_JOB_REQUESTER", "only the requester can create this job"); err != nil {
		return nil, err
	}

	var job *models.Job
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		requester, err := getAgent(ctx, tx, in.RequesterID)
		if err != nil {
			return err
		}
		if _, err := getAgent(ctx, tx, in.ProviderID); err != nil {
			return err
		}
		if in.ServiceID != nil {
			if err := checkService(ctx, tx, *in.ServiceID, in.ProviderID); err != nil {
				return err
			}
		}
		if requester.Balance < in.Amount {
			return apperr.InsufficientBalance(in.Amount, requester.Balance)
		}

		now := s.ledger.Now()
		job = &models.Job{
			ID:          uuid.New(),
			ServiceID:   in.ServiceID,
			RequesterID: in.RequesterID,
			ProviderID:  in.ProviderID,
			Amount:      in.Amount,
			Description: in.Description,
			Status:      models.JobStatusRequested,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertJob(ctx, job); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if _, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			AgentID:     in.RequesterID,
			Amount:      in.Amount,
			Type:        models.TxEscrowLock,
			JobID:       &job.ID,
			Description: "Escrow for job",
		}); err != nil {
			return err
		}
		if err := tx.IncrementCounters(ctx, in.RequesterID, models.AgentCounters{JobsRequested: 1}, now); err != nil {
			return fmt.Errorf("increment jobs requested: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("job created", "job_id", job.ID, "requester_id", job.RequesterID, "provider_id", job.ProviderID, "amount", job.Amount)
	s.metrics.JobTransition(ctx, string(job.Status))
	notify.JobEvent(ctx, s.notifier, job, notify.JobRequested)
	if err := s.mirror.Lock(ctx, job); err != nil {
		s.log.Warn("settlement mirror lock failed", "job_id", job.ID, "error", err)
	}
	return job, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job *models.Job
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		job, err = getJob(ctx, tx, id)
		return err
	})
	return job, err
}

func (s *service) List(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	var list []*models.Job
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.ListJobs(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return list, nil
}

func (s *service) Accept(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.move(ctx, id, models.JobStatusAccepted, nil)
	if err != nil {
		return nil, err
	}
	notify.JobEvent(ctx, s.notifier, job, notify.JobAccepted)
	return job, nil
}

func (s *service) Deliver(ctx context.Context, id uuid.UUID, deliverable *string) (*models.Job, error) {
	job, err := s.move(ctx, id, models.JobStatusDelivered, func(j *models.Job) { j.Deliverable = deliverable })
	if err != nil {
		return nil, err
	}
	notify.JobEvent(ctx, s.notifier, job, notify.JobDelivered)
	return job, nil
}

// move applies a transition with no balance effect. Both accept and deliver are the
// provider's moves.
func (s *service) move(ctx context.Context, id uuid.UUID, to models.JobStatus, edit func(*models.Job)) (*models.Job, error) {
	var job *models.Job
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if job, err = getJob(ctx, tx, id); err != nil {
			return err
		}
		if err := auth.RequireActor(ctx, job.ProviderID, "NOT_JOB_PROVIDER", "only the provider can "+verb(to)+" this job"); err != nil {
			return err
		}
		if err := transition(job, to, s.ledger.Now()); err != nil {
			return err
		}
		if edit != nil {
			edit(job)
		}
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("job "+string(to), "job_id", job.ID)
	s.metrics.JobTransition(ctx, string(to))
	return job, nil
}

func (s *service) Complete(ctx context.Context, id uuid.UUID) (*Completion, error) {
	var res *Completion
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := auth.RequireActor(ctx, job.RequesterID, "NOT_JOB_REQUESTER", "only the requester can complete this job"); err != nil {
			return err
		}
		now := s.ledger.Now()
		if err := transition(job, models.JobStatusCompleted, now); err != nil {
			return err
		}
		// Read before any counter moves: referral eligibility needs the old jobsCompleted.
		provider, err := getAgent(ctx, tx, job.ProviderID)
		if err != nil {
			return err
		}
		stats, err := tx.PlatformStats(ctx)
		if err != nil {
			return fmt.Errorf("read platform stats: %w", err)
		}

		payout, fee := ledger.Fee(job.Amount)
		if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			AgentID:     job.ProviderID,
			Amount:      payout,
			Type:        models.TxPayment,
			JobID:       &job.ID,
			Description: "Payment for job " + job.ID.String(),
		}); err != nil {
			return err
		}
		if _, err := s.ledger.CollectFee(ctx, tx, fee, job.ID); err != nil {
			return err
		}

		mining, err := s.bonus.ActivityMining(ctx, tx, job, stats.CompletedJobs)
		if err != nil {
			return err
		}
		referral, err := s.bonus.Referral(ctx, tx, provider, job.ID)
		if err != nil {
			return err
		}

		if err := tx.IncrementCounters(ctx, job.ProviderID, models.AgentCounters{JobsCompleted: 1}, now); err != nil {
			return fmt.Errorf("increment jobs completed: %w", err)
		}
		if err := tx.IncrementCompletedJobs(ctx); err != nil {
			return fmt.Errorf("increment platform completed jobs: %w", err)
		}
		if err := tx.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		total := stats.CompletedJobs + 1
		res = &Completion{
			Job:                 job,
			Payout:              Payout{Provider: payout, Fee: fee},
			ActivityMiningBonus: mining,
			ReferralBonus:       referral,
			EconomyStats: EconomyStats{
				TotalCompletedJobs:      total,
				ActivityMiningRemaining: bonus.ActivityMiningRemaining(total),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	job := res.Job
	s.log.Info("job completed", "job_id", job.ID, "payout", res.Payout.Provider, "fee", res.Payout.Fee,
		"activity_mining", res.ActivityMiningBonus != nil, "referral_bonus", res.ReferralBonus != nil)
	s.metrics.JobTransition(ctx, string(job.Status))
	s.metrics.FeeCollected(ctx, res.Payout.Fee)
	if res.ActivityMiningBonus != nil {
		s.metrics.BonusPaid(ctx, string(models.TxActivityMiningBonus), res.ActivityMiningBonus.Requester+res.ActivityMiningBonus.Provider)
	}
	if res.ReferralBonus != nil {
		s.metrics.BonusPaid(ctx, "referral_bonus", 2*res.ReferralBonus.Amount)
	}
	notify.JobEvent(ctx, s.notifier, job, notify.JobCompleted)
	if err := s.mirror.Release(ctx, job, res.Payout.Provider, res.Payout.Fee); err != nil {
		s.log.Warn("settlement mirror release failed", "job_id", job.ID, "error", err)
	}
	return res, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job *models.Job
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if job, err = getJob(ctx, tx, id); err != nil {
			return err
		}
		if err := auth.RequireActor(ctx, job.RequesterID, "NOT_JOB_REQUESTER", "only the requester can cancel this job"); err != nil {
			return err
		}
		if err := transition(job, models.JobStatusCancelled, s.ledger.Now()); err != nil {
			return err
		}
		if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			AgentID:     job.RequesterID,
			Amount:      job.Amount,
			Type:        models.TxEscrowRelease,
			JobID:       &job.ID,
			Description: "Refund for cancelled job",
		}); err != nil {
			return err
		}
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("job cancelled", "job_id", job.ID, "refund", job.Amount)
	s.metrics.JobTransition(ctx, string(job.Status))
	notify.JobEvent(ctx, s.notifier, job, notify.JobCancelled)
	if err := s.mirror.Refund(ctx, job); err != nil {
		s.log.Warn("settlement mirror refund failed", "job_id", job.ID, "error", err)
	}
	return job, nil
}

func getJob(ctx context.Context, tx store.Tx, id uuid.UUID) (*models.Job, error) {
	job, err := tx.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("job")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func getAgent(ctx context.Context, tx store.Tx, id uuid.UUID) (*models.Agent, error) {
	a, err := tx.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("agent")
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func checkService(ctx context.Context, tx store.Tx, serviceID, providerID uuid.UUID) error {
	svc, err := tx.GetService(ctx, serviceID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("service")
	}
	if err != nil {
		return fmt.Errorf("get service: %w", err)
	}
	if !svc.IsActive {
		return apperr.ValidationCode("SERVICE_INACTIVE", "service is not active", map[string]any{"serviceId": serviceID})
	}
	if svc.ProviderID != providerID {
		return apperr.ValidationCode("SERVICE_PROVIDER_MISMATCH", "service is not offered by this provider",
			map[string]any{"serviceId": serviceID, "providerId": providerID})
	}
	return nil
}

func verb(to models.JobStatus) string {
	switch to {
	case models.JobStatusAccepted:
		return "accept"
	case models.JobStatusDelivered:
		return "deliver"
	}
	return string(to)
}
