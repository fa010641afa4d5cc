package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

// ============================================================
// Agents
// ============================================================

func (t *tx) InsertAgent(_ context.Context, a *models.Agent) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.agents[a.ID]; ok {
		return store.ErrDuplicate
	}
	if a.ExternalID != nil {
		if _, ok := t.st.externalIDs[*a.ExternalID]; ok {
			return store.ErrDuplicate
		}
		t.st.externalIDs[*a.ExternalID] = a.ID
	}
	t.st.agents[a.ID] = *a
	t.st.agentOrder = append(t.st.agentOrder, a.ID)
	return nil
}

func (t *tx) GetAgent(_ context.Context, id uuid.UUID) (*models.Agent, error) {
	a, ok := t.st.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *tx) GetAgentByExternalID(ctx context.Context, externalID string) (*models.Agent, error) {
	id, ok := t.st.externalIDs[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.GetAgent(ctx, id)
}

func (t *tx) ListAgents(_ context.Context, page store.Page) ([]*models.Agent, error) {
	out := make([]*models.Agent, 0, len(t.st.agentOrder))
	for i := len(t.st.agentOrder) - 1; i >= 0; i-- {
		a := t.st.agents[t.st.agentOrder[i]]
		out = append(out, &a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReputationScore != out[j].ReputationScore {
			return out[i].ReputationScore > out[j].ReputationScore
		}
		return out[i].JobsCompleted > out[j].JobsCompleted
	})
	return paginate(out, page), nil
}

func (t *tx) ListReferrals(_ context.Context, referrerID uuid.UUID, page store.Page) ([]*models.Agent, error) {
	var out []*models.Agent
	for i := len(t.st.agentOrder) - 1; i >= 0; i-- {
		a := t.st.agents[t.st.agentOrder[i]]
		if a.ReferredBy != nil && *a.ReferredBy == referrerID {
			out = append(out, &a)
		}
	}
	return paginate(out, page), nil
}

func (t *tx) ListAgentsAboveScore(_ context.Context, floor float64) ([]*models.Agent, error) {
	var out []*models.Agent
	for _, id := range t.st.agentOrder {
		a := t.st.agents[id]
		if a.ReputationScore > floor {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (t *tx) UpdateAgent(_ context.Context, id uuid.UUID, u store.AgentUpdate, now time.Time) (*models.Agent, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	a, ok := t.st.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Bio != nil {
		a.Bio = u.Bio
	}
	if u.WebhookURL != nil {
		a.WebhookURL = u.WebhookURL
	}
	a.UpdatedAt = now
	t.st.agents[id] = a
	return &a, nil
}

func (t *tx) AdjustBalance(_ context.Context, id uuid.UUID, delta int64, now time.Time) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	a, ok := t.st.agents[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if a.Balance+delta < 0 {
		return a.Balance, store.ErrInsufficientBalance
	}
	a.Balance += delta
	a.UpdatedAt = now
	t.st.agents[id] = a
	return a.Balance, nil
}

func (t *tx) IncrementCounters(_ context.Context, id uuid.UUID, c models.AgentCounters, now time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.st.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.JobsCompleted += c.JobsCompleted
	a.JobsRequested += c.JobsRequested
	a.ReferralsMade += c.ReferralsMade
	a.UpdatedAt = now
	t.st.agents[id] = a
	return nil
}

func (t *tx) MarkReferralBonusPaid(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	a, ok := t.st.agents[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if a.ReferralBonusPaid {
		return false, nil
	}
	a.ReferralBonusPaid = true
	a.UpdatedAt = now
	t.st.agents[id] = a
	return true, nil
}

func (t *tx) SetReputation(_ context.Context, id uuid.UUID, score float64, now time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.st.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.ReputationScore = score
	a.UpdatedAt = now
	t.st.agents[id] = a
	return nil
}

// ============================================================
// Transactions and platform ledger
// ============================================================

func (t *tx) InsertTransaction(_ context.Context, rec *models.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if rec.AgentID != nil {
		if _, ok := t.st.agents[*rec.AgentID]; !ok {
			return store.ErrNotFound
		}
	}
	t.st.txs = append(t.st.txs, *rec)
	return nil
}

func (t *tx) ListTransactions(_ context.Context, agentID uuid.UUID) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for i := len(t.st.txs) - 1; i >= 0; i-- {
		rec := t.st.txs[i]
		if rec.AgentID != nil && *rec.AgentID == agentID {
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (t *tx) PlatformStats(context.Context) (models.PlatformStats, error) {
	return t.st.platform, nil
}

func (t *tx) AddPlatformFee(_ context.Context, amount int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.platform.FeePool += amount
	return nil
}

func (t *tx) IncrementCompletedJobs(context.Context) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.platform.CompletedJobs++
	return nil
}

// ============================================================
// Jobs
// ============================================================

func (t *tx) InsertJob(_ context.Context, j *models.Job) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.jobs[j.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.jobs[j.ID] = *j
	t.st.jobOrder = append(t.st.jobOrder, j.ID)
	return nil
}

func (t *tx) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := t.st.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (t *tx) UpdateJob(_ context.Context, j *models.Job) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.jobs[j.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.jobs[j.ID] = *j
	return nil
}

func (t *tx) ListJobs(_ context.Context, f models.JobFilter) ([]*models.Job, error) {
	var out []*models.Job
	for i := len(t.st.jobOrder) - 1; i >= 0; i-- {
		j := t.st.jobs[t.st.jobOrder[i]]
		if f.RequesterID != nil && j.RequesterID != *f.RequesterID {
			continue
		}
		if f.ProviderID != nil && j.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		out = append(out, &j)
	}
	return out, nil
}

func (t *tx) LastCompletedAt(_ context.Context, providerID uuid.UUID) (*time.Time, error) {
	var last *time.Time
	for _, j := range t.st.jobs {
		if j.ProviderID != providerID || j.Status != models.JobStatusCompleted || j.CompletedAt == nil {
			continue
		}
		if last == nil || j.CompletedAt.After(*last) {
			at := *j.CompletedAt
			last = &at
		}
	}
	return last, nil
}

// ============================================================
// Services
// ============================================================

func (t *tx) InsertService(_ context.Context, s *models.Service) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.agents[s.ProviderID]; !ok {
		return store.ErrNotFound
	}
	t.st.services[s.ID] = *s
	t.st.serviceOrder = append(t.st.serviceOrder, s.ID)
	return nil
}

func (t *tx) GetService(_ context.Context, id uuid.UUID) (*models.Service, error) {
	s, ok := t.st.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (t *tx) ListServices(_ context.Context, f models.ServiceFilter) ([]*models.Service, error) {
	var out []*models.Service
	for i := len(t.st.serviceOrder) - 1; i >= 0; i-- {
		s := t.st.services[t.st.serviceOrder[i]]
		if !s.IsActive {
			continue
		}
		if f.ProviderID != nil && s.ProviderID != *f.ProviderID {
			continue
		}
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}

func (t *tx) SetServiceActive(_ context.Context, id uuid.UUID, active bool, now time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	s, ok := t.st.services[id]
	if !ok {
		return store.ErrNotFound
	}
	s.IsActive = active
	s.UpdatedAt = now
	t.st.services[id] = s
	return nil
}

// ============================================================
// Category leaderboards
// ============================================================

func (t *tx) CategorySummaries(context.Context) ([]models.CategorySummary, error) {
	providers := make(map[string]map[uuid.UUID]struct{})
	for _, id := range t.st.serviceOrder {
		s := t.st.services[id]
		if !s.IsActive {
			continue
		}
		if providers[s.Category] == nil {
			providers[s.Category] = make(map[uuid.UUID]struct{})
		}
		providers[s.Category][s.ProviderID] = struct{}{}
	}
	completed := make(map[uuid.UUID]int)
	for _, j := range t.st.jobs {
		if j.Status == models.JobStatusCompleted {
			completed[j.ProviderID]++
		}
	}

	out := make([]models.CategorySummary, 0, len(providers))
	for cat, ids := range providers {
		sum := models.CategorySummary{Name: cat, Providers: len(ids)}
		for id := range ids {
			sum.TotalCompletedJobs += completed[id]
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Providers != out[k].Providers {
			return out[i].Providers > out[k].Providers
		}
		return out[i].Name < out[k].Name
	})
	return out, nil
}

func (t *tx) CategoryProviders(_ context.Context, category string) ([]models.CategoryProvider, error) {
	listed := make(map[uuid.UUID]bool)
	for _, s := range t.st.services {
		if s.IsActive && s.Category == category {
			listed[s.ProviderID] = true
		}
	}
	if len(listed) == 0 {
		return nil, nil
	}

	inCategory := make(map[uuid.UUID]bool)
	jobs := make(map[uuid.UUID]int)
	for _, j := range t.st.jobs {
		if j.Status != models.JobStatusCompleted || j.ServiceID == nil {
			continue
		}
		if s, ok := t.st.services[*j.ServiceID]; ok && s.Category == category {
			inCategory[j.ID] = true
			jobs[j.ProviderID]++
		}
	}
	earnings := make(map[uuid.UUID]int64)
	for _, rec := range t.st.txs {
		if rec.Type == models.TxPayment && rec.AgentID != nil && rec.JobID != nil && inCategory[*rec.JobID] {
			earnings[*rec.AgentID] += rec.Amount
		}
	}

	var out []models.CategoryProvider
	for _, id := range t.st.agentOrder {
		if !listed[id] {
			continue
		}
		a := t.st.agents[id]
		out = append(out, models.CategoryProvider{
			AgentID:               a.ID,
			Name:                  a.Name,
			ReputationScore:       a.ReputationScore,
			TotalJobsCompleted:    a.JobsCompleted,
			CategoryJobsCompleted: jobs[id],
			CategoryEarnings:      earnings[id],
		})
	}
	return out, nil
}

// ============================================================
// Reviews
// ============================================================

func (t *tx) InsertReview(_ context.Context, r *models.Review) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := [2]uuid.UUID{r.JobID, r.ReviewerID}
	if _, ok := t.st.reviewKeys[key]; ok {
		return store.ErrDuplicate
	}
	t.st.reviewKeys[key] = struct{}{}
	t.st.reviews[r.ID] = *r
	t.st.reviewOrder = append(t.st.reviewOrder, r.ID)
	return nil
}

func (t *tx) GetReview(_ context.Context, id uuid.UUID) (*models.Review, error) {
	r, ok := t.st.reviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (t *tx) HasReviewed(_ context.Context, jobID, reviewerID uuid.UUID) (bool, error) {
	_, ok := t.st.reviewKeys[[2]uuid.UUID{jobID, reviewerID}]
	return ok, nil
}

func (t *tx) ListReviews(_ context.Context, f models.ReviewFilter) ([]*models.Review, error) {
	var out []*models.Review
	for i := len(t.st.reviewOrder) - 1; i >= 0; i-- {
		r := t.st.reviews[t.st.reviewOrder[i]]
		if f.RevieweeID != nil && r.RevieweeID != *f.RevieweeID {
			continue
		}
		if f.ReviewerID != nil && r.ReviewerID != *f.ReviewerID {
			continue
		}
		if f.JobID != nil && r.JobID != *f.JobID {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

func (t *tx) RatingSummary(_ context.Context, revieweeID uuid.UUID) (float64, int, error) {
	var sum, n int
	for _, r := range t.st.reviews {
		if r.RevieweeID == revieweeID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

func paginate[T any](items []T, page store.Page) []T {
	if page.Offset > 0 {
		if page.Offset >= len(items) {
			return nil
		}
		items = items[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

var _ store.Tx = (*tx)(nil)
