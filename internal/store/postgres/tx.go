package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

type tx struct {
	tx pgx.Tx
}

const agentColumns = `id, name, external_id, bio, webhook_url, balance, reputation_score, jobs_completed, jobs_requested, referred_by, referral_bonus_paid, referrals_made, created_at, updated_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.Name, &a.ExternalID, &a.Bio, &a.WebhookURL, &a.Balance, &a.ReputationScore,
		&a.JobsCompleted, &a.JobsRequested, &a.ReferredBy, &a.ReferralBonusPaid, &a.ReferralsMade, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (t *tx) queryAgents(ctx context.Context, sql string, args ...any) ([]*models.Agent, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, mapErr(rows.Err())
}

// ============================================================
// Agents
// ============================================================

func (t *tx) InsertAgent(ctx context.Context, a *models.Agent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.Name, a.ExternalID, a.Bio, a.WebhookURL, a.Balance, a.ReputationScore,
		a.JobsCompleted, a.JobsRequested, a.ReferredBy, a.ReferralBonusPaid, a.ReferralsMade, a.CreatedAt, a.UpdatedAt)
	return mapErr(err)
}

func (t *tx) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return scanAgent(t.tx.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

func (t *tx) GetAgentByExternalID(ctx context.Context, externalID string) (*models.Agent, error) {
	return scanAgent(t.tx.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE external_id = $1`, externalID))
}

func (t *tx) ListAgents(ctx context.Context, page store.Page) ([]*models.Agent, error) {
	return t.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agents
		ORDER BY reputation_score DESC, jobs_completed DESC, seq DESC
		LIMIT $1 OFFSET $2
	`, limitArg(page.Limit), page.Offset)
}

func (t *tx) ListReferrals(ctx context.Context, referrerID uuid.UUID, page store.Page) ([]*models.Agent, error) {
	return t.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agents WHERE referred_by = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limitArg(page.Limit), page.Offset)
}

func (t *tx) ListAgentsAboveScore(ctx context.Context, floor float64) ([]*models.Agent, error) {
	return t.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE reputation_score > $1 ORDER BY seq`, floor)
}

func (t *tx) UpdateAgent(ctx context.Context, id uuid.UUID, u store.AgentUpdate, now time.Time) (*models.Agent, error) {
	return scanAgent(t.tx.QueryRow(ctx, `
		UPDATE agents SET
			name = COALESCE($2, name),
			bio = COALESCE($3, bio),
			webhook_url = COALESCE($4, webhook_url),
			updated_at = $5
		WHERE id = $1
		RETURNING `+agentColumns,
		id, u.Name, u.Bio, u.WebhookURL, now))
}

// AdjustBalance uses a conditional update so a debit never drives the balance negative.
func (t *tx) AdjustBalance(ctx context.Context, id uuid.UUID, delta int64, now time.Time) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE agents SET balance = balance + $2, updated_at = $3
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance
	`, id, delta, now).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if err := mapErr(err); err != store.ErrNotFound {
		return 0, err
	}
	// No row updated: either the agent is missing or the balance is too low.
	if err := t.tx.QueryRow(ctx, `SELECT balance FROM agents WHERE id = $1`, id).Scan(&balance); err != nil {
		return 0, mapErr(err)
	}
	return balance, store.ErrInsufficientBalance
}

func (t *tx) IncrementCounters(ctx context.Context, id uuid.UUID, c models.AgentCounters, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE agents SET
			jobs_completed = jobs_completed + $2,
			jobs_requested = jobs_requested + $3,
			referrals_made = referrals_made + $4,
			updated_at = $5
		WHERE id = $1
	`, id, c.JobsCompleted, c.JobsRequested, c.ReferralsMade, now)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) MarkReferralBonusPaid(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE agents SET referral_bonus_paid = TRUE, updated_at = $2
		WHERE id = $1 AND referral_bonus_paid = FALSE
	`, id, now)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) SetReputation(ctx context.Context, id uuid.UUID, score float64, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE agents SET reputation_score = $2, updated_at = $3 WHERE id = $1`, id, score, now)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ============================================================
// Transactions and platform ledger
// ============================================================

func (t *tx) InsertTransaction(ctx context.Context, rec *models.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transactions (id, agent_id, type, amount, job_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.AgentID, string(rec.Type), rec.Amount, rec.JobID, rec.Description, rec.CreatedAt)
	return mapErr(err)
}

func (t *tx) ListTransactions(ctx context.Context, agentID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, agent_id, type, amount, job_id, description, created_at
		FROM transactions WHERE agent_id = $1 ORDER BY seq DESC
	`, agentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var rec models.Transaction
		var typ string
		if err := rows.Scan(&rec.ID, &rec.AgentID, &typ, &rec.Amount, &rec.JobID, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		rec.Type = models.TxType(typ)
		list = append(list, &rec)
	}
	return list, mapErr(rows.Err())
}

func (t *tx) PlatformStats(ctx context.Context) (models.PlatformStats, error) {
	var st models.PlatformStats
	err := t.tx.QueryRow(ctx, `SELECT fee_pool, completed_jobs FROM platform_ledger WHERE id = 1`).Scan(&st.FeePool, &st.CompletedJobs)
	return st, mapErr(err)
}

func (t *tx) AddPlatformFee(ctx context.Context, amount int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE platform_ledger SET fee_pool = fee_pool + $1 WHERE id = 1`, amount)
	return mapErr(err)
}

func (t *tx) IncrementCompletedJobs(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `UPDATE platform_ledger SET completed_jobs = completed_jobs + 1 WHERE id = 1`)
	return mapErr(err)
}

// ============================================================
// Jobs
// ============================================================

const jobColumns = `id, service_id, requester_id, provider_id, amount, description, deliverable, status, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var status string
	err := row.Scan(&j.ID, &j.ServiceID, &j.RequesterID, &j.ProviderID, &j.Amount, &j.Description, &j.Deliverable,
		&status, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}

func (t *tx) InsertJob(ctx context.Context, j *models.Job) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, j.ID, j.ServiceID, j.RequesterID, j.ProviderID, j.Amount, j.Description, j.Deliverable,
		string(j.Status), j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	return mapErr(err)
}

// GetJob needs no row lock: write transactions already hold the global write lock.
func (t *tx) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(t.tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (t *tx) UpdateJob(ctx context.Context, j *models.Job) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE jobs SET status = $2, deliverable = $3, updated_at = $4, completed_at = $5
		WHERE id = $1
	`, j.ID, string(j.Status), j.Deliverable, j.UpdatedAt, j.CompletedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) ListJobs(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	var where []string
	var args []any
	if f.RequesterID != nil {
		args = append(args, *f.RequesterID)
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	sql := `SELECT ` + jobColumns + ` FROM jobs` + whereClause(where) + ` ORDER BY seq DESC`

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, mapErr(rows.Err())
}

func (t *tx) LastCompletedAt(ctx context.Context, providerID uuid.UUID) (*time.Time, error) {
	var last *time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT MAX(completed_at) FROM jobs WHERE provider_id = $1 AND status = 'completed'
	`, providerID).Scan(&last)
	return last, mapErr(err)
}

// ============================================================
// Services
// ============================================================

const serviceColumns = `id, provider_id, title, description, category, base_price, is_active, created_at, updated_at`

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.ProviderID, &s.Title, &s.Description, &s.Category, &s.BasePrice, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (t *tx) InsertService(ctx context.Context, s *models.Service) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.ProviderID, s.Title, s.Description, s.Category, s.BasePrice, s.IsActive, s.CreatedAt, s.UpdatedAt)
	return mapErr(err)
}

func (t *tx) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return scanService(t.tx.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

func (t *tx) ListServices(ctx context.Context, f models.ServiceFilter) ([]*models.Service, error) {
	where := []string{"is_active = TRUE"}
	var args []any
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	rows, err := t.tx.Query(ctx, `SELECT `+serviceColumns+` FROM services`+whereClause(where)+` ORDER BY seq DESC`, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, mapErr(rows.Err())
}

func (t *tx) SetServiceActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE services SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, now)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ============================================================
// Category leaderboards
// ============================================================

func (t *tx) CategorySummaries(ctx context.Context) ([]models.CategorySummary, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT s.category, COUNT(DISTINCT s.provider_id), COUNT(DISTINCT j.id)
		FROM services s
		LEFT JOIN jobs j ON j.provider_id = s.provider_id AND j.status = 'completed'
		WHERE s.is_active = TRUE
		GROUP BY s.category
		ORDER BY 2 DESC, s.category
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []models.CategorySummary
	for rows.Next() {
		var c models.CategorySummary
		if err := rows.Scan(&c.Name, &c.Providers, &c.TotalCompletedJobs); err != nil {
			return nil, mapErr(err)
		}
		list = append(list, c)
	}
	return list, mapErr(rows.Err())
}

func (t *tx) CategoryProviders(ctx context.Context, category string) ([]models.CategoryProvider, error) {
	rows, err := t.tx.Query(ctx, `
		WITH listed AS (
			SELECT DISTINCT provider_id FROM services WHERE category = $1 AND is_active = TRUE
		), done AS (
			SELECT j.id, j.provider_id
			FROM jobs j JOIN services s ON s.id = j.service_id
			WHERE s.category = $1 AND j.status = 'completed'
		)
		SELECT a.id, a.name, a.reputation_score, a.jobs_completed,
			(SELECT COUNT(*) FROM done d WHERE d.provider_id = a.id),
			(SELECT COALESCE(SUM(tr.amount), 0)::bigint
			   FROM transactions tr JOIN done d ON d.id = tr.job_id
			  WHERE tr.agent_id = a.id AND tr.type = 'payment')
		FROM agents a JOIN listed l ON l.provider_id = a.id
		ORDER BY a.seq
	`, category)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []models.CategoryProvider
	for rows.Next() {
		var p models.CategoryProvider
		if err := rows.Scan(&p.AgentID, &p.Name, &p.ReputationScore, &p.TotalJobsCompleted,
			&p.CategoryJobsCompleted, &p.CategoryEarnings); err != nil {
			return nil, mapErr(err)
		}
		list = append(list, p)
	}
	return list, mapErr(rows.Err())
}

// ============================================================
// Reviews
// ============================================================

const reviewColumns = `id, job_id, reviewer_id, reviewee_id, rating, comment, created_at`

func scanReview(row pgx.Row) (*models.Review, error) {
	var r models.Review
	if err := row.Scan(&r.ID, &r.JobID, &r.ReviewerID, &r.RevieweeID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (t *tx) InsertReview(ctx context.Context, r *models.Review) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.JobID, r.ReviewerID, r.RevieweeID, r.Rating, r.Comment, r.CreatedAt)
	return mapErr(err)
}

func (t *tx) GetReview(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	return scanReview(t.tx.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
}

func (t *tx) HasReviewed(ctx context.Context, jobID, reviewerID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reviews WHERE job_id = $1 AND reviewer_id = $2)
	`, jobID, reviewerID).Scan(&exists)
	return exists, mapErr(err)
}

func (t *tx) ListReviews(ctx context.Context, f models.ReviewFilter) ([]*models.Review, error) {
	var where []string
	var args []any
	if f.RevieweeID != nil {
		args = append(args, *f.RevieweeID)
		where = append(where, fmt.Sprintf("reviewee_id = $%d", len(args)))
	}
	if f.ReviewerID != nil {
		args = append(args, *f.ReviewerID)
		where = append(where, fmt.Sprintf("reviewer_id = $%d", len(args)))
	}
	if f.JobID != nil {
		args = append(args, *f.JobID)
		where = append(where, fmt.Sprintf("job_id = $%d", len(args)))
	}
	rows, err := t.tx.Query(ctx, `SELECT `+reviewColumns+` FROM reviews`+whereClause(where)+` ORDER BY seq DESC`, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var list []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, mapErr(rows.Err())
}

func (t *tx) RatingSummary(ctx context.Context, revieweeID uuid.UUID) (float64, int, error) {
	var avg float64
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*) FROM reviews WHERE reviewee_id = $1
	`, revieweeID).Scan(&avg, &n)
	return avg, n, mapErr(err)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// limitArg maps an unset limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

var _ store.Tx = (*tx)(nil)
