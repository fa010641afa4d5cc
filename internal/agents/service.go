// Package agents is the agent directory: registration with the starter grant and
// referral link, profile reads and updates, and balance and ledger views.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/auth"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type RegisterInput struct {
	Name       string
	ExternalID *string
	Bio        *string
	WebhookURL *string
	ReferredBy *uuid.UUID
}

// Registration is a newly registered agent. Token is set when token issuing is enabled.
type Registration struct {
	Agent     *models.Agent `json:"agent"`
	Token     string        `json:"token,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

type BalanceView struct {
	AgentID uuid.UUID `json:"agentId"`
	Balance int64     `json:"balance"`
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*Registration, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Agent, error)
	List(ctx context.Context, page store.Page) ([]*models.Agent, error)
	Update(ctx context.Context, id uuid.UUID, u store.AgentUpdate) (*models.Agent, error)
	Referrals(ctx context.Context, id uuid.UUID, page store.Page) ([]*models.Agent, error)
	Balance(ctx context.Context, id uuid.UUID) (*BalanceView, error)
	Transactions(ctx context.Context, id uuid.UUID) ([]*models.Transaction, error)
}

// TokenIssuer signs access tokens for newly registered agents. *auth.Issuer is the
// production implementation.
type TokenIssuer interface {
	Issue(agentID uuid.UUID, name string) (string, time.Time, error)
}

var _ TokenIssuer = (*auth.Issuer)(nil)

type service struct {
	store  store.Store
	ledger *ledger.Ledger
	issuer TokenIssuer
	log    *slog.Logger
}

// NewService builds the directory. issuer may be nil, in which case registration
// returns no token.
func NewService(st store.Store, l *ledger.Ledger, issuer TokenIssuer, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: st, ledger: l, issuer: issuer, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name", "name is required")
	}

	var (
		agent *models.Agent
		reg   = &Registration{}
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if in.ExternalID != nil {
			existing, err := tx.GetAgentByExternalID(ctx, *in.ExternalID)
			switch {
			case err == nil:
				return alreadyExists(existing.ID)
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("get agent by external id: %w", err)
			}
		}

		referredBy := in.ReferredBy
		if referredBy != nil {
			_, err := tx.GetAgent(ctx, *referredBy)
			switch {
			case errors.Is(err, store.ErrNotFound):
				s.log.Warn("ignoring unknown referrer", "referred_by", *referredBy)
				referredBy = nil
			case err != nil:
				return fmt.Errorf("get referrer: %w", err)
			}
		}

		now := s.ledger.Now()
		agent = &models.Agent{
			ID:         uuid.New(),
			Name:       name,
			ExternalID: in.ExternalID,
			Bio:        in.Bio,
			WebhookURL: in.WebhookURL,
			ReferredBy: referredBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertAgent(ctx, agent); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return alreadyExists(uuid.Nil)
			}
			return fmt.Errorf("insert agent: %w", err)
		}
		if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			AgentID:     agent.ID,
			Amount:      models.StarterGrant,
			Type:        models.TxStarterGrant,
			Description: "Welcome! Starter grant of 10 shells",
		}); err != nil {
			return err
		}
		agent.Balance = models.StarterGrant
		if referredBy != nil {
			if err := tx.IncrementCounters(ctx, *referredBy, models.AgentCounters{ReferralsMade: 1}, now); err != nil {
				return fmt.Errorf("increment referrals made: %w", err)
			}
		}
		// A token failure rolls the registration back.
		if s.issuer != nil {
			tok, exp, err := s.issuer.Issue(agent.ID, agent.Name)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			reg.Token, reg.ExpiresAt = tok, &exp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("agent registered", "agent_id", agent.ID, "referred", agent.ReferredBy != nil)
	reg.Agent = agent
	return reg, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var a *models.Agent
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		a, err = getAgent(ctx, tx, id)
		return err
	})
	return a, err
}

func (s *service) GetByExternalID(ctx context.Context, externalID string) (*models.Agent, error) {
	var a *models.Agent
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		a, err = tx.GetAgentByExternalID(ctx, externalID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("agent")
		}
		return err
	})
	return a, err
}

func (s *service) List(ctx context.Context, page store.Page) ([]*models.Agent, error) {
	var list []*models.Agent
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.ListAgents(ctx, clampPage(page))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return list, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, u store.AgentUpdate) (*models.Agent, error) {
	if err := auth.RequireActor(ctx, id, "NOT_AGENT_OWNER", "agents can only update their own profile"); err != nil {
		return nil, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, apperr.Validation("name", "name must not be empty")
		}
		u.Name = &name
	}

	var a *models.Agent
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		a, err = tx.UpdateAgent(ctx, id, u, s.ledger.Now())
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("agent")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("agent updated", "agent_id", id)
	return a, nil
}

func (s *service) Referrals(ctx context.Context, id uuid.UUID, page store.Page) ([]*models.Agent, error) {
	var list []*models.Agent
	err := s.store.View(ctx, func(tx store.Tx) error {
		if _, err := getAgent(ctx, tx, id); err != nil {
			return err
		}
		var err error
		list, err = tx.ListReferrals(ctx, id, clampPage(page))
		return err
	})
	return list, err
}

func (s *service) Balance(ctx context.Context, id uuid.UUID) (*BalanceView, error) {
	var bal int64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		bal, err = ledger.Balance(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BalanceView{AgentID: id, Balance: bal}, nil
}

func (s *service) Transactions(ctx context.Context, id uuid.UUID) ([]*models.Transaction, error) {
	var list []*models.Transaction
	err := s.store.View(ctx, func(tx store.Tx) error {
		if _, err := getAgent(ctx, tx, id); err != nil {
			return err
		}
		var err error
		list, err = tx.ListTransactions(ctx, id)
		return err
	})
	return list, err
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

func alreadyExists(existing uuid.UUID) error {
	details := map[string]any{}
	if existing != uuid.Nil {
		details["agentId"] = existing
	}
	return apperr.Conflict("AGENT_ALREADY_EXISTS", "an agent with this externalId already exists", details)
}

func clampPage(p store.Page) store.Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	p.Limit = min(p.Limit, MaxPageSize)
	p.Offset = max(p.Offset, 0)
	return p
}
