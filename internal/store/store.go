// Package store defines the persistence boundary of the ledger. A Store hands out
// transactions; every mutation of balances, jobs, reviews and the audit log happens
// through a Tx and commits or rolls back as one unit.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicate           = errors.New("duplicate")
	ErrReadOnly            = errors.New("write in read-only transaction")
)

// Store is the single owner of ledger state.
type Store interface {
	// InTx runs fn in a serialized read-write transaction. If fn returns an error
	// nothing it did is kept.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// AgentUpdate carries optional profile fields; nil leaves the column unchanged.
type AgentUpdate struct {
	Name       *string
	Bio        *string
	WebhookURL *string
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

type Tx interface {
	InsertAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentByExternalID(ctx context.Context, externalID string) (*models.Agent, error)
	ListAgents(ctx context.Context, page Page) ([]*models.Agent, error)
	ListReferrals(ctx context.Context, referrerID uuid.UUID, page Page) ([]*models.Agent, error)
	// ListAgentsAboveScore returns agents whose reputation is strictly greater than floor.
	ListAgentsAboveScore(ctx context.Context, floor float64) ([]*models.Agent, error)
	UpdateAgent(ctx context.Context, id uuid.UUID, u AgentUpdate, now time.Time) (*models.Agent, error)
	// AdjustBalance adds delta to the agent balance and returns the new balance. It
	// fails with ErrInsufficientBalance, changing nothing, if the result would be negative.
	AdjustBalance(ctx context.Context, id uuid.UUID, delta int64, now time.Time) (int64, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, c models.AgentCounters, now time.Time) error
	// MarkReferralBonusPaid sets the one-way flag and reports whether this call set it.
	MarkReferralBonusPaid(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	SetReputation(ctx context.Context, id uuid.UUID, score float64, now time.Time) error

	InsertTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, agentID uuid.UUID) ([]*models.Transaction, error)

	PlatformStats(ctx context.Context) (models.PlatformStats, error)
	AddPlatformFee(ctx context.Context, amount int64) error
	IncrementCompletedJobs(ctx context.Context) error

	InsertJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job) error
	ListJobs(ctx context.Context, f models.JobFilter) ([]*models.Job, error)
	// LastCompletedAt returns the latest completion time of a job the agent provided, or nil.
	LastCompletedAt(ctx context.Context, providerID uuid.UUID) (*time.Time, error)

	InsertService(ctx context.Context, s *models.Service) error
	GetService(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListServices(ctx context.Context, f models.ServiceFilter) ([]*models.Service, error)
	SetServiceActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error
	// CategorySummaries lists every category with an active listing, most providers first.
	CategorySummaries(ctx context.Context) ([]models.CategorySummary, error)
	// CategoryProviders returns the providers with an active listing in category, in
	// registration order. It is empty when the category has no active listings.
	CategoryProviders(ctx context.Context, category string) ([]models.CategoryProvider, error)

	// InsertReview fails with ErrDuplicate if the reviewer already reviewed the job.
	InsertReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id uuid.UUID) (*models.Review, error)
	HasReviewed(ctx context.Context, jobID, reviewerID uuid.UUID) (bool, error)
	ListReviews(ctx context.Context, f models.ReviewFilter) ([]*models.Review, error)
	// RatingSummary returns the mean rating and count of reviews about an agent.
	RatingSummary(ctx context.Context, revieweeID uuid.UUID) (avg float64, count int, err error)
}
