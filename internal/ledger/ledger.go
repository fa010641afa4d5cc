// Package ledger moves shells. Every balance change goes through Credit or Debit,
// which apply the change and append the matching audit row inside the caller's
// store transaction, so neither can be observed without the other.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

// FeePercent is the share of a completed job's amount kept by the platform.
const FeePercent = 5

// Fee splits amount into the provider payout and the platform fee. The fee is
// amount*5% rounded half up, so payout+fee == amount always.
func Fee(amount int64) (payout, fee int64) {
	fee = (amount*FeePercent + 50) / 100
	return amount - fee, fee
}

// Entry describes one balance-affecting event.
type Entry struct {
	AgentID     uuid.UUID
	Amount      int64
	Type        models.TxType
	JobID       *uuid.UUID
	Description string
}

type Ledger struct {
	now func() time.Time
}

func New() *Ledger {
	return &Ledger{now: time.Now}
}

// WithClock returns a Ledger stamping rows with now. Tests use it to pin time.
func WithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

// Now is the clock the ledger stamps rows with.
func (l *Ledger) Now() time.Time { return l.now().UTC() }

// Credit adds e.Amount to the agent balance and records it.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, e Entry) (*models.Transaction, error) {
	if e.Amount < 0 {
		return nil, fmt.Errorf("credit %s: negative amount %d", e.Type, e.Amount)
	}
	return l.apply(ctx, tx, e, e.Amount)
}

// Debit subtracts e.Amount from the agent balance and records a negative row. It
// fails with InsufficientBalance, changing nothing, if the balance is too low.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, e Entry) (*models.Transaction, error) {
	if e.Amount < 0 {
		return nil, fmt.Errorf("debit %s: negative amount %d", e.Type, e.Amount)
	}
	return l.apply(ctx, tx, e, -e.Amount)
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, e Entry, delta int64) (*models.Transaction, error) {
	now := l.Now()
	available, err := tx.AdjustBalance(ctx, e.AgentID, delta, now)
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return nil, apperr.InsufficientBalance(e.Amount, available)
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("agent")
	case err != nil:
		return nil, fmt.Errorf("adjust balance: %w", err)
	}

	agentID := e.AgentID
	rec := &models.Transaction{
		ID:          uuid.New(),
		AgentID:     &agentID,
		Type:        e.Type,
		Amount:      delta,
		JobID:       e.JobID,
		Description: e.Description,
		CreatedAt:   now,
	}
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert %s transaction: %w", e.Type, err)
	}
	return rec, nil
}

// Note appends a zero-amount audit row for an event that does not move shells.
func (l *Ledger) Note(ctx context.Context, tx store.Tx, agentID uuid.UUID, typ models.TxType, description string) (*models.Transaction, error) {
	rec := &models.Transaction{
		ID:          uuid.New(),
		AgentID:     &agentID,
		Type:        typ,
		Description: description,
		CreatedAt:   l.Now(),
	}
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("agent")
		}
		return nil, fmt.Errorf("insert %s transaction: %w", typ, err)
	}
	return rec, nil
}

// CollectFee moves fee into the platform sink and records a platform_fee row with no
// agent. A zero fee records nothing and returns nil.
func (l *Ledger) CollectFee(ctx context.Context, tx store.Tx, fee int64, jobID uuid.UUID) (*models.Transaction, error) {
	if fee == 0 {
		return nil, nil
	}
	if err := tx.AddPlatformFee(ctx, fee); err != nil {
		return nil, fmt.Errorf("add platform fee: %w", err)
	}
	rec := &models.Transaction{
		ID:          uuid.New(),
		Type:        models.TxPlatformFee,
		Amount:      fee,
		JobID:       &jobID,
		Description: fmt.Sprintf("Platform fee (%d%%) to the Tide Pool", FeePercent),
		CreatedAt:   l.Now(),
	}
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert platform_fee transaction: %w", err)
	}
	return rec, nil
}

// Balance returns the agent's live balance.
func Balance(ctx context.Context, tx store.Tx, agentID uuid.UUID) (int64, error) {
	a, err := tx.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperr.NotFound("agent")
	}
	if err != nil {
		return 0, fmt.Errorf("get agent: %w", err)
	}
	return a.Balance, nil
}

// Audit compares an agent's balance with the sum of its transaction rows.
type Audit struct {
	AgentID      uuid.UUID `json:"agentId"`
	Balance      int64     `json:"balance"`
	LoggedTotal  int64     `json:"loggedTotal"`
	Transactions int       `json:"transactions"`
}

// Consistent reports whether the log accounts for the whole balance.
func (a Audit) Consistent() bool { return a.Balance == a.LoggedTotal }

func Reconcile(ctx context.Context, tx store.Tx, agentID uuid.UUID) (Audit, error) {
	bal, err := Balance(ctx, tx, agentID)
	if err != nil {
		return Audit{}, err
	}
	rows, err := tx.ListTransactions(ctx, agentID)
	if err != nil {
		return Audit{}, fmt.Errorf("list transactions: %w", err)
	}
	a := Audit{AgentID: agentID, Balance: bal, Transactions: len(rows)}
	for _, r := range rows {
		a.LoggedTotal += r.Amount
	}
	return a, nil
}
