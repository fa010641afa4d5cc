// Package decay lowers the reputation of agents that have stopped completing jobs.
// After ThresholdDays without a completed job as provider an agent loses RatePerWeek
// for every further full week, never dropping below Floor.
package decay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/metrics"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

const (
	Floor         = 3.0
	ThresholdDays = 30
	RatePerWeek   = 0.01
)

// Amount is the decay owed after daysInactive days without a completed job.
func Amount(daysInactive int) float64 {
	if daysInactive <= ThresholdDays {
		return 0
	}
	weeks := (daysInactive - ThresholdDays) / 7
	// Dividing by the exact constant 100 keeps whole-week decays such as 0.09 exact.
	return float64(weeks) / (1 / RatePerWeek)
}

// Compute returns the decayed score and how much was actually taken off. It never
// raises a score and never lowers one below Floor.
func Compute(score float64, daysInactive int) (newScore, applied float64) {
	d := Amount(daysInactive)
	if d <= 0 || score <= Floor {
		return score, 0
	}
	newScore = max(Floor, score-d)
	return newScore, score - newScore
}

// DaysInactive counts whole days between ref and now.
func DaysInactive(ref, now time.Time) int {
	if now.Before(ref) {
		return 0
	}
	return int(now.Sub(ref) / (24 * time.Hour))
}

type Result struct {
	AgentID       uuid.UUID `json:"agentId"`
	AgentName     string    `json:"agentName"`
	PreviousScore float64   `json:"previousScore"`
	NewScore      float64   `json:"newScore"`
	DecayApplied  float64   `json:"decayApplied"`
	DaysInactive  int       `json:"daysInactive"`
}

type Summary struct {
	ProcessedAt       time.Time `json:"processedAt"`
	Applied           bool      `json:"applied"`
	AgentsChecked     int       `json:"agentsChecked"`
	AgentsDecayed     int       `json:"agentsDecayed"`
	TotalDecayApplied float64   `json:"totalDecayApplied"`
	Results           []Result  `json:"results"`
}

type AgentStatus struct {
	AgentID        uuid.UUID `json:"agentId"`
	CurrentScore   float64   `json:"currentScore"`
	DaysInactive   int       `json:"daysInactive"`
	PendingDecay   float64   `json:"pendingDecay"`
	ProjectedScore float64   `json:"projectedScore"`
	AtFloor        bool      `json:"atFloor"`
}

type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	log     *slog.Logger

	// mu keeps apply passes from overlapping within this process.
	mu sync.Mutex
}

func NewService(st store.Store, l *ledger.Ledger, met *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, ledger: l, metrics: met, log: log}
}

// Preview computes what Apply would do right now without changing anything.
func (s *Service) Preview(ctx context.Context) (*Summary, error) {
	var sum *Summary
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		sum, err = s.plan(ctx, tx, s.ledger.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// Apply lowers every eligible score and writes a zero-amount reputation_decay row
// per affected agent, all in one transaction.
func (s *Service) Apply(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum *Summary
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		now := s.ledger.Now()
		var err error
		if sum, err = s.plan(ctx, tx, now); err != nil {
			return err
		}
		for _, r := range sum.Results {
			if err := tx.SetReputation(ctx, r.AgentID, r.NewScore, now); err != nil {
				return fmt.Errorf("set reputation for %s: %w", r.AgentID, err)
			}
			desc := fmt.Sprintf("Reputation decay: %.2f -> %.2f (%d days inactive)", r.PreviousScore, r.NewScore, r.DaysInactive)
			if _, err := s.ledger.Note(ctx, tx, r.AgentID, models.TxReputationDecay, desc); err != nil {
				return err
			}
		}
		sum.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reputation decay applied", "agents_checked", sum.AgentsChecked, "agents_decayed", sum.AgentsDecayed,
		"total_decay", sum.TotalDecayApplied)
	s.metrics.AgentsDecayed(ctx, sum.AgentsDecayed)
	return sum, nil
}

// AgentStatus reports one agent's inactivity and the decay a pass would apply.
func (s *Service) AgentStatus(ctx context.Context, id uuid.UUID) (*AgentStatus, error) {
	var st *AgentStatus
	err := s.store.View(ctx, func(tx store.Tx) error {
		a, err := tx.GetAgent(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("agent")
		}
		if err != nil {
			return fmt.Errorf("get agent: %w", err)
		}
		days, err := daysInactive(ctx, tx, a, s.ledger.Now())
		if err != nil {
			return err
		}
		projected, _ := Compute(a.ReputationScore, days)
		st = &AgentStatus{
			AgentID:        a.ID,
			CurrentScore:   a.ReputationScore,
			DaysInactive:   days,
			PendingDecay:   Amount(days),
			ProjectedScore: projected,
			AtFloor:        a.ReputationScore <= Floor,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) plan(ctx context.Context, tx store.Tx, now time.Time) (*Summary, error) {
	agents, err := tx.ListAgentsAboveScore(ctx, Floor)
	if err != nil {
		return nil, fmt.Errorf("list agents above floor: %w", err)
	}
	sum := &Summary{ProcessedAt: now, AgentsChecked: len(agents), Results: []Result{}}
	for _, a := range agents {
		days, err := daysInactive(ctx, tx, a, now)
		if err != nil {
			return nil, err
		}
		newScore, applied := Compute(a.ReputationScore, days)
		if applied <= 0 {
			continue
		}
		sum.Results = append(sum.Results, Result{
			AgentID:       a.ID,
			AgentName:     a.Name,
			PreviousScore: a.ReputationScore,
			NewScore:      newScore,
			DecayApplied:  applied,
			DaysInactive:  days,
		})
		sum.TotalDecayApplied += applied
	}
	sum.AgentsDecayed = len(sum.Results)
	return sum, nil
}

// daysInactive measures from the agent's last completed job as provider, or from
// registration if it has none.
func daysInactive(ctx context.Context, tx store.Tx, a *models.Agent, now time.Time) (int, error) {
	last, err := tx.LastCompletedAt(ctx, a.ID)
	if err != nil {
		return 0, fmt.Errorf("last completed job for %s: %w", a.ID, err)
	}
	ref := a.CreatedAt
	if last != nil {
		ref = *last
	}
	return DaysInactive(ref, now), nil
}
