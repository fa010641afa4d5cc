package bonus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/store/memory"
)

func setup(t *testing.T) (*memory.Store, *Engine) {
	t.Helper()
	l := ledger.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	return memory.New(), NewEngine(l)
}

func insertAgent(t *testing.T, st store.Store, a *models.Agent) {
	t.Helper()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertAgent(context.Background(), a)
	}))
}

func agent(t *testing.T, st store.Store, id uuid.UUID) *models.Agent {
	t.Helper()
	var a *models.Agent
	require.NoError(t, st.View(context.Background(), func(tx store.Tx) error {
		var err error
		a, err = tx.GetAgent(context.Background(), id)
		return err
	}))
	return a
}

func TestActivityMiningBoundary(t *testing.T) {
	tests := []struct {
		name            string
		completedBefore int
		wantBonus       bool
	}{
		{"first job", 0, true},
		{"tenth job", 9, true},
		{"eleventh job", 10, false},
		{"long after", 250, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, e := setup(t)
			req := &models.Agent{Name: "req"}
			prov := &models.Agent{Name: "prov"}
			insertAgent(t, st, req)
			insertAgent(t, st, prov)
			job := &models.Job{ID: uuid.New(), RequesterID: req.ID, ProviderID: prov.ID}

			var got *ActivityMining
			require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
				var err error
				got, err = e.ActivityMining(context.Background(), tx, job, tt.completedBefore)
				return err
			}))

			if !tt.wantBonus {
				assert.Nil(t, got)
				assert.Zero(t, agent(t, st, req.ID).Balance)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, ActivityMiningAmount, got.Requester)
			assert.Equal(t, ActivityMiningAmount, got.Provider)
			assert.Equal(t, ActivityMiningAmount, agent(t, st, req.ID).Balance)
			assert.Equal(t, ActivityMiningAmount, agent(t, st, prov.ID).Balance)
		})
	}
}

func TestActivityMiningRemaining(t *testing.T) {
	assert.Equal(t, 10, ActivityMiningRemaining(0))
	assert.Equal(t, 1, ActivityMiningRemaining(9))
	assert.Equal(t, 0, ActivityMiningRemaining(10))
	assert.Equal(t, 0, ActivityMiningRemaining(42))
}

func TestReferralPaidOnce(t *testing.T) {
	st, e := setup(t)
	referrer := &models.Agent{Name: "referrer"}
	insertAgent(t, st, referrer)
	newbie := &models.Agent{Name: "newbie", ReferredBy: &referrer.ID}
	insertAgent(t, st, newbie)

	pay := func() *Referral {
		var got *Referral
		require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
			p, err := tx.GetAgent(context.Background(), newbie.ID)
			if err != nil {
				return err
			}
			got, err = e.Referral(context.Background(), tx, p, uuid.New())
			return err
		}))
		return got
	}

	first := pay()
	require.NotNil(t, first)
	assert.Equal(t, referrer.ID, first.ReferrerID)
	assert.Equal(t, ReferralAmount, first.Amount)

	assert.Nil(t, pay(), "second call must not pay again")

	assert.Equal(t, ReferralAmount, agent(t, st, newbie.ID).Balance)
	assert.Equal(t, ReferralAmount, agent(t, st, referrer.ID).Balance)
	assert.True(t, agent(t, st, newbie.ID).ReferralBonusPaid)
}

func TestReferralIneligible(t *testing.T) {
	referrer := uuid.New()
	tests := []struct {
		name  string
		agent models.Agent
	}{
		{"no referrer", models.Agent{}},
		{"already completed a job", models.Agent{ReferredBy: &referrer, JobsCompleted: 1}},
		{"already paid", models.Agent{ReferredBy: &referrer, ReferralBonusPaid: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, e := setup(t)
			a := tt.agent
			var got *Referral
			require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
				var err error
				got, err = e.Referral(context.Background(), tx, &a, uuid.New())
				return err
			}))
			assert.Nil(t, got)
		})
	}
}
