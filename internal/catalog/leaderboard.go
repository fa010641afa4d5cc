package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

const (
	// MinJobsForLeaderboard is the lifetime completed job count a provider needs to be ranked.
	MinJobsForLeaderboard   = 5
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 50
)

type Metric string

const (
	MetricReputation Metric = "reputation"
	MetricJobs       Metric = "jobs"
	MetricEarnings   Metric = "earnings"
)

var Metrics = []Metric{MetricReputation, MetricJobs, MetricEarnings}

// ParseMetric maps an empty string to MetricReputation.
func ParseMetric(s string) (Metric, error) {
	if s == "" {
		return MetricReputation, nil
	}
	m := Metric(s)
	if !slices.Contains(Metrics, m) {
		return "", apperr.ValidationCode("INVALID_METRIC", "metric must be one of reputation, jobs, earnings",
			map[string]any{"metric": s, "valid": Metrics})
	}
	return m, nil
}

type CategoryIndex struct {
	Categories      []models.CategorySummary `json:"categories"`
	Metrics         []Metric                 `json:"metrics"`
	MinJobsRequired int                      `json:"minJobsRequired"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

type Leader struct {
	Rank                  int       `json:"rank"`
	AgentID               uuid.UUID `json:"agentId"`
	Name                  string    `json:"name"`
	Value                 float64   `json:"value"`
	ReputationScore       float64   `json:"reputationScore"`
	TotalJobsCompleted    int       `json:"totalJobsCompleted"`
	CategoryJobsCompleted int       `json:"categoryJobsCompleted"`
	CategoryEarnings      int64     `json:"categoryEarnings"`
}

type Board struct {
	Category           string    `json:"category"`
	Metric             Metric    `json:"metric"`
	MinJobsRequired    int       `json:"minJobsRequired"`
	QualifiedProviders int       `json:"qualifiedProviders"`
	Leaders            []Leader  `json:"leaders"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type StandingStats struct {
	ReputationScore       float64 `json:"reputationScore"`
	TotalJobsCompleted    int     `json:"totalJobsCompleted"`
	CategoryJobsCompleted int     `json:"categoryJobsCompleted"`
	CategoryEarnings      int64   `json:"categoryEarnings"`
}

// Standing is one agent's position in a category. Rank is nil until the agent qualifies.
type Standing struct {
	Category            string        `json:"category"`
	Metric              Metric        `json:"metric"`
	AgentID             uuid.UUID     `json:"agentId"`
	Name                string        `json:"name"`
	Qualifies           bool          `json:"qualifies"`
	Rank                *int          `json:"rank"`
	JobsNeededToQualify int           `json:"jobsNeededToQualify"`
	Stats               StandingStats `json:"stats"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Leaderboard ranks the providers listed in each category.
type Leaderboard interface {
	Categories(ctx context.Context) (*CategoryIndex, error)
	Board(ctx context.Context, category string, metric Metric, limit int) (*Board, error)
	Standing(ctx context.Context, category string, agentID uuid.UUID, metric Metric) (*Standing, error)
}

type leaderboard struct {
	store  store.Store
	ledger *ledger.Ledger
}

func NewLeaderboard(st store.Store, l *ledger.Ledger) Leaderboard {
	return &leaderboard{store: st, ledger: l}
}

var _ Leaderboard = (*leaderboard)(nil)

func (b *leaderboard) Categories(ctx context.Context) (*CategoryIndex, error) {
	var cats []models.CategorySummary
	err := b.store.View(ctx, func(tx store.Tx) error {
		var err error
		cats, err = tx.CategorySummaries(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("category summaries: %w", err)
	}
	if cats == nil {
		cats = []models.CategorySummary{}
	}
	return &CategoryIndex{
		Categories:      cats,
		Metrics:         Metrics,
		MinJobsRequired: MinJobsForLeaderboard,
		UpdatedAt:       b.ledger.Now(),
	}, nil
}

func (b *leaderboard) Board(ctx context.Context, category string, metric Metric, limit int) (*Board, error) {
	category = strings.ToLower(category)
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, MaxLeaderboardLimit)

	providers, err := b.providers(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		e := apperr.NotFound("category")
		e.Details = map[string]any{"category": category}
		return nil, e
	}

	qualified := slices.DeleteFunc(providers, func(p models.CategoryProvider) bool {
		return p.TotalJobsCompleted < MinJobsForLeaderboard
	})
	rankBy(qualified, metric)

	board := &Board{
		Category:           category,
		Metric:             metric,
		MinJobsRequired:    MinJobsForLeaderboard,
		QualifiedProviders: len(qualified),
		Leaders:            make([]Leader, 0, min(limit, len(qualified))),
		UpdatedAt:          b.ledger.Now(),
	}
	for i, p := range qualified[:min(limit, len(qualified))] {
		board.Leaders = append(board.Leaders, Leader{
			Rank:                  i + 1,
			AgentID:               p.AgentID,
			Name:                  p.Name,
			Value:                 value(p, metric),
			ReputationScore:       round2(p.ReputationScore),
			TotalJobsCompleted:    p.TotalJobsCompleted,
			CategoryJobsCompleted: p.CategoryJobsCompleted,
			CategoryEarnings:      p.CategoryEarnings,
		})
	}
	return board, nil
}

func (b *leaderboard) Standing(ctx context.Context, category string, agentID uuid.UUID, metric Metric) (*Standing, error) {
	category = strings.ToLower(category)
	var providers []models.CategoryProvider
	err := b.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAgent(ctx, agentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("agent")
			}
			return fmt.Errorf("get agent: %w", err)
		}
		var err error
		providers, err = tx.CategoryProviders(ctx, category)
		if err != nil {
			return fmt.Errorf("category providers: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i := slices.IndexFunc(providers, func(p models.CategoryProvider) bool { return p.AgentID == agentID })
	if i < 0 {
		return nil, apperr.ValidationCode("NOT_IN_CATEGORY", "agent has no active services in this category",
			map[string]any{"category": category})
	}
	me := providers[i]

	st := &Standing{
		Category:  category,
		Metric:    metric,
		AgentID:   me.AgentID,
		Name:      me.Name,
		Qualifies: me.TotalJobsCompleted >= MinJobsForLeaderboard,
		Stats: StandingStats{
			ReputationScore:       round2(me.ReputationScore),
			TotalJobsCompleted:    me.TotalJobsCompleted,
			CategoryJobsCompleted: me.CategoryJobsCompleted,
			CategoryEarnings:      me.CategoryEarnings,
		},
		UpdatedAt: b.ledger.Now(),
	}
	if !st.Qualifies {
		st.JobsNeededToQualify = MinJobsForLeaderboard - me.TotalJobsCompleted
		return st, nil
	}
	rank := 1
	mine := rawValue(me, metric)
	for _, p := range providers {
		if p.AgentID != agentID && p.TotalJobsCompleted >= MinJobsForLeaderboard && rawValue(p, metric) > mine {
			rank++
		}
	}
	st.Rank = &rank
	return st, nil
}

func (b *leaderboard) providers(ctx context.Context, category string) ([]models.CategoryProvider, error) {
	var out []models.CategoryProvider
	err := b.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.CategoryProviders(ctx, category)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("category providers: %w", err)
	}
	return out, nil
}

// rankBy orders providers best first. Ties on the metric fall back to reputation, or
// to category jobs when the metric is reputation itself.
func rankBy(ps []models.CategoryProvider, metric Metric) {
	slices.SortStableFunc(ps, func(a, b models.CategoryProvider) int {
		if c := cmpDesc(rawValue(a, metric), rawValue(b, metric)); c != 0 {
			return c
		}
		if metric == MetricReputation {
			return cmpDesc(float64(a.CategoryJobsCompleted), float64(b.CategoryJobsCompleted))
		}
		return cmpDesc(a.ReputationScore, b.ReputationScore)
	})
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func rawValue(p models.CategoryProvider, metric Metric) float64 {
	switch metric {
	case MetricJobs:
		return float64(p.CategoryJobsCompleted)
	case MetricEarnings:
		return float64(p.CategoryEarnings)
	}
	return p.ReputationScore
}

func value(p models.CategoryProvider, metric Metric) float64 {
	if metric == MetricReputation {
		return round2(p.ReputationScore)
	}
	return rawValue(p, metric)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
