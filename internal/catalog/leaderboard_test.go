package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/store/memory"
)

var boardNow = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

type market struct {
	board            Leaderboard
	ada, bo, cy, dee uuid.UUID
}

// newMarket seeds three coding providers and one writer. ada and bo qualify for
// ranking; cy has too few completed jobs. bo has earned 28 shells over two coding
// jobs, ada 9 over one.
func newMarket(t *testing.T) *market {
	t.Helper()
	st := memory.New()
	m := &market{ada: uuid.New(), bo: uuid.New(), cy: uuid.New(), dee: uuid.New()}
	requester := uuid.New()
	ctx := context.Background()

	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		agents := []models.Agent{
			{ID: m.ada, Name: "ada", ReputationScore: 4.8, JobsCompleted: 6},
			{ID: m.bo, Name: "bo", ReputationScore: 4.2, JobsCompleted: 9},
			{ID: m.cy, Name: "cy", ReputationScore: 5, JobsCompleted: 2},
			{ID: m.dee, Name: "dee", ReputationScore: 3, JobsCompleted: 7},
			{ID: requester, Name: "client"},
		}
		for i := range agents {
			if err := tx.InsertAgent(ctx, &agents[i]); err != nil {
				return err
			}
		}

		listing := func(provider uuid.UUID, category string, active bool) uuid.UUID {
			id := uuid.New()
			require.NoError(t, tx.InsertService(ctx, &models.Service{
				ID: id, ProviderID: provider, Title: category, Category: category, BasePrice: 1, IsActive: active,
			}))
			return id
		}
		adaCoding := listing(m.ada, "coding", true)
		boCoding := listing(m.bo, "coding", true)
		listing(m.cy, "coding", true)
		listing(m.dee, "writing", true)
		listing(m.dee, "data", false)

		job := func(provider uuid.UUID, service *uuid.UUID, amount int64, status models.JobStatus) {
			j := &models.Job{ID: uuid.New(), ServiceID: service, RequesterID: requester, ProviderID: provider, Amount: amount, Status: status}
			require.NoError(t, tx.InsertJob(ctx, j))
			if status != models.JobStatusCompleted {
				return
			}
			payout, _ := ledger.Fee(amount)
			require.NoError(t, tx.InsertTransaction(ctx, &models.Transaction{
				ID: uuid.New(), AgentID: &provider, Type: models.TxPayment, Amount: payout, JobID: &j.ID,
			}))
		}
		job(m.ada, &adaCoding, 10, models.JobStatusCompleted)
		job(m.ada, nil, 10, models.JobStatusCompleted)
		job(m.bo, &boCoding, 20, models.JobStatusCompleted)
		job(m.bo, &boCoding, 10, models.JobStatusCompleted)
		job(m.bo, &boCoding, 50, models.JobStatusDelivered)
		return nil
	}))

	m.board = NewLeaderboard(st, ledger.WithClock(func() time.Time { return boardNow }))
	return m
}

func names(b *Board) []string {
	var out []string
	for _, l := range b.Leaders {
		out = append(out, l.Name)
	}
	return out
}

func TestCategories(t *testing.T) {
	m := newMarket(t)

	idx, err := m.board.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.CategorySummary{
		{Name: "coding", Providers: 3, TotalCompletedJobs: 4},
		{Name: "writing", Providers: 1, TotalCompletedJobs: 0},
	}, idx.Categories)
	assert.Equal(t, Metrics, idx.Metrics)
	assert.Equal(t, MinJobsForLeaderboard, idx.MinJobsRequired)
	assert.Equal(t, boardNow, idx.UpdatedAt)
}

func TestBoardByMetric(t *testing.T) {
	m := newMarket(t)

	tests := []struct {
		metric Metric
		want   []string
		values []float64
	}{
		{MetricReputation, []string{"ada", "bo"}, []float64{4.8, 4.2}},
		{MetricJobs, []string{"bo", "ada"}, []float64{2, 1}},
		{MetricEarnings, []string{"bo", "ada"}, []float64{28, 9}},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			b, err := m.board.Board(context.Background(), "CODING", tt.metric, 0)
			require.NoError(t, err)
			assert.Equal(t, "coding", b.Category)
			assert.Equal(t, 2, b.QualifiedProviders)
			assert.Equal(t, tt.want, names(b))
			for i, l := range b.Leaders {
				assert.Equal(t, i+1, l.Rank)
				assert.Equal(t, tt.values[i], l.Value)
			}
		})
	}
}

func TestBoardLimitAndMissingCategory(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()

	b, err := m.board.Board(ctx, "coding", MetricEarnings, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bo"}, names(b))
	assert.Equal(t, 2, b.QualifiedProviders)

	b, err = m.board.Board(ctx, "coding", MetricEarnings, 1000)
	require.NoError(t, err)
	assert.Len(t, b.Leaders, 2)

	b, err = m.board.Board(ctx, "writing", MetricReputation, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dee"}, names(b))

	for _, category := range []string{"gardening", "data"} {
		_, err = m.board.Board(ctx, category, MetricReputation, 0)
		assert.ErrorIs(t, err, apperr.NotFound("category"), category)
	}
}

func TestStanding(t *testing.T) {
	m := newMarket(t)
	ctx := context.Background()

	st, err := m.board.Standing(ctx, "coding", m.bo, MetricReputation)
	require.NoError(t, err)
	require.NotNil(t, st.Rank)
	assert.Equal(t, 2, *st.Rank)
	assert.True(t, st.Qualifies)
	assert.Equal(t, StandingStats{ReputationScore: 4.2, TotalJobsCompleted: 9, CategoryJobsCompleted: 2, CategoryEarnings: 28}, st.Stats)

	st, err = m.board.Standing(ctx, "coding", m.bo, MetricJobs)
	require.NoError(t, err)
	assert.Equal(t, 1, *st.Rank)

	st, err = m.board.Standing(ctx, "coding", m.cy, MetricReputation)
	require.NoError(t, err)
	assert.False(t, st.Qualifies)
	assert.Nil(t, st.Rank)
	assert.Equal(t, 3, st.JobsNeededToQualify)

	_, err = m.board.Standing(ctx, "coding", m.dee, MetricReputation)
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindValidation, Code: "NOT_IN_CATEGORY"})

	_, err = m.board.Standing(ctx, "coding", uuid.New(), MetricReputation)
	assert.ErrorIs(t, err, apperr.NotFound("agent"))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricReputation, m)

	m, err = ParseMetric("earnings")
	require.NoError(t, err)
	assert.Equal(t, MetricEarnings, m)

	_, err = ParseMetric("speed")
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindValidation, Code: "INVALID_METRIC"})
}

func TestLeaderboardHandler(t *testing.T) {
	m := newMarket(t)
	mux := http.NewServeMux()
	NewLeaderboardHandler(m.board, nil).Routes(mux)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/leaderboards")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"coding"`)

	rec = get("/leaderboards/coding?metric=earnings&limit=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, []string{"bo"}, names(&b))

	rec = get("/leaderboards/coding?metric=speed")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_METRIC")

	rec = get("/leaderboards/coding?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get("/leaderboards/gardening")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "CATEGORY_NOT_FOUND")

	rec = get("/leaderboards/coding/me/" + m.bo.String() + "?metric=jobs")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"rank":1`)

	rec = get("/leaderboards/coding/me/not-a-uuid")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
