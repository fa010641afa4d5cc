// Package reviews records post-job ratings and keeps each agent's reputation score
// equal to the mean rating it has received.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/auth"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/notify"
	"github.com/inaiurai/shellmarket/internal/store"
)

type CreateInput struct {
	JobID      uuid.UUID
	ReviewerID uuid.UUID
	RevieweeID uuid.UUID
	// Rating is a float so non-integer input can be reported as InvalidRating.
	Rating  float64
	Comment *string
}

type Reputation struct {
	AverageRating float64 `json:"averageRating"`
	TotalReviews  int     `json:"totalReviews"`
}

// Listing is a filtered page of reviews. AverageRating is set when the listing is
// filtered by reviewee and that agent has reviews.
type Listing struct {
	Reviews       []*models.Review `json:"reviews"`
	Count         int              `json:"count"`
	AverageRating *float64         `json:"averageRating,omitempty"`
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*models.Review, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Review, error)
	List(ctx context.Context, f models.ReviewFilter, page store.Page) (*Listing, error)
	Reputation(ctx context.Context, agentID uuid.UUID) (*Reputation, error)
	// Recompute sets the agent's reputation score to its mean rating, or 0 with no reviews.
	Recompute(ctx context.Context, agentID uuid.UUID) (float64, error)
}

type service struct {
	store    store.Store
	ledger   *ledger.Ledger
	notifier notify.Notifier
	log      *slog.Logger
}

func NewService(st store.Store, l *ledger.Ledger, n notify.Notifier, log *slog.Logger) Service {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{store: st, ledger: l, notifier: n, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, in CreateInput) (*models.Review, error) {
	if in.Rating != math.Trunc(in.Rating) || in.Rating < models.MinRating || in.Rating > models.MaxRating {
		return nil, apperr.InvalidRating(in.Rating)
	}

	var rev *models.Review
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJob(ctx, in.JobID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("job")
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		if job.Status != models.JobStatusCompleted {
			return apperr.ValidationCode("JOB_NOT_COMPLETED", "only completed jobs can be reviewed",
				map[string]any{"status": job.Status})
		}
		if in.ReviewerID != job.RequesterID && in.ReviewerID != job.ProviderID {
			return apperr.Forbidden("NOT_JOB_PARTICIPANT", "only job participants can leave reviews")
		}
		if err := auth.RequireActor(ctx, in.ReviewerID, "NOT_REVIEWER", "reviews can only be left as yourself"); err != nil {
			return err
		}
		if in.RevieweeID == in.ReviewerID {
			return apperr.ValidationCode("SELF_REVIEW", "cannot review yourself", nil)
		}
		if in.RevieweeID != job.RequesterID && in.RevieweeID != job.ProviderID {
			return apperr.ValidationCode("INVALID_REVIEWEE", "reviewee must be the other job participant", nil)
		}
		done, err := tx.HasReviewed(ctx, in.JobID, in.ReviewerID)
		if err != nil {
			return fmt.Errorf("check existing review: %w", err)
		}
		if done {
			return apperr.DuplicateReview()
		}

		now := s.ledger.Now()
		rev = &models.Review{
			ID:         uuid.New(),
			JobID:      in.JobID,
			ReviewerID: in.ReviewerID,
			RevieweeID: in.RevieweeID,
			Rating:     int(in.Rating),
			Comment:    in.Comment,
			CreatedAt:  now,
		}
		if err := tx.InsertReview(ctx, rev); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.DuplicateReview()
			}
			return fmt.Errorf("insert review: %w", err)
		}
		_, err = recompute(ctx, tx, in.RevieweeID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("review created", "review_id", rev.ID, "job_id", rev.JobID, "reviewee_id", rev.RevieweeID, "rating", rev.Rating)
	s.notifier.Notify(ctx, rev.RevieweeID, notify.ReviewReceived, map[string]any{
		"reviewId":   rev.ID,
		"jobId":      rev.JobID,
		"reviewerId": rev.ReviewerID,
		"rating":     rev.Rating,
		"comment":    rev.Comment,
	})
	return rev, nil
}

func (s *service) Recompute(ctx context.Context, agentID uuid.UUID) (float64, error) {
	var score float64
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		score, err = recompute(ctx, tx, agentID, s.ledger.Now())
		return err
	})
	return score, err
}

func recompute(ctx context.Context, tx store.Tx, agentID uuid.UUID, now time.Time) (float64, error) {
	avg, _, err := tx.RatingSummary(ctx, agentID)
	if err != nil {
		return 0, fmt.Errorf("rating summary: %w", err)
	}
	if err := tx.SetReputation(ctx, agentID, avg, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apperr.NotFound("agent")
		}
		return 0, fmt.Errorf("set reputation: %w", err)
	}
	return avg, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var rev *models.Review
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		rev, err = tx.GetReview(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("review")
		}
		return err
	})
	return rev, err
}

func (s *service) List(ctx context.Context, f models.ReviewFilter, page store.Page) (*Listing, error) {
	out := &Listing{Reviews: []*models.Review{}}
	err := s.store.View(ctx, func(tx store.Tx) error {
		all, err := tx.ListReviews(ctx, f)
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		out.Reviews = window(all, page)
		out.Count = len(out.Reviews)
		if f.RevieweeID != nil {
			avg, n, err := tx.RatingSummary(ctx, *f.RevieweeID)
			if err != nil {
				return fmt.Errorf("rating summary: %w", err)
			}
			if n > 0 {
				out.AverageRating = &avg
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Reputation(ctx context.Context, agentID uuid.UUID) (*Reputation, error) {
	var rep Reputation
	err := s.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAgent(ctx, agentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("agent")
			}
			return fmt.Errorf("get agent: %w", err)
		}
		var err error
		rep.AverageRating, rep.TotalReviews, err = tx.RatingSummary(ctx, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// window applies a page to an already filtered listing.
func window(all []*models.Review, p store.Page) []*models.Review {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset >= len(all) {
		return []*models.Review{}
	}
	end := len(all)
	if p.Limit < end-p.Offset {
		end = p.Offset + p.Limit
	}
	return all[p.Offset:end]
}
