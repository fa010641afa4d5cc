package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/auth"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/store/memory"
	"github.com/inaiurai/shellmarket/internal/validate"
)

var fixedNow = time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T, issuer TokenIssuer) Service {
	t.Helper()
	return NewService(memory.New(), ledger.WithClock(func() time.Time { return fixedNow }), issuer, nil)
}

func ptr[T any](v T) *T { return &v }

func TestRegisterGrantsStarterShells(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Name: "  scribe  ", Bio: ptr("writes things")})
	require.NoError(t, err)
	assert.Equal(t, "scribe", reg.Agent.Name)
	assert.Equal(t, models.StarterGrant, reg.Agent.Balance)
	assert.Empty(t, reg.Token)

	bal, err := svc.Balance(ctx, reg.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StarterGrant, bal.Balance)

	txs, err := svc.Transactions(ctx, reg.Agent.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxStarterGrant, txs[0].Type)
	assert.Equal(t, models.StarterGrant, txs[0].Amount)
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(t, nil)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterDuplicateExternalID(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterInput{Name: "a", ExternalID: ptr("moltbook:42")})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "b", ExternalID: ptr("moltbook:42")})
	require.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindConflict, Code: "AGENT_ALREADY_EXISTS"})

	got, err := svc.GetByExternalID(ctx, "moltbook:42")
	require.NoError(t, err)
	assert.Equal(t, first.Agent.ID, got.ID)

	_, err = svc.GetByExternalID(ctx, "moltbook:43")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegisterReferral(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	referrer, err := svc.Register(ctx, RegisterInput{Name: "referrer"})
	require.NoError(t, err)
	referred, err := svc.Register(ctx, RegisterInput{Name: "new", ReferredBy: &referrer.Agent.ID})
	require.NoError(t, err)
	require.NotNil(t, referred.Agent.ReferredBy)
	assert.Equal(t, referrer.Agent.ID, *referred.Agent.ReferredBy)

	got, err := svc.Get(ctx, referrer.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReferralsMade)

	list, err := svc.Referrals(ctx, referrer.Agent.ID, store.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, referred.Agent.ID, list[0].ID)
}

func TestRegisterIgnoresUnknownReferrer(t *testing.T) {
	svc := newService(t, nil)

	reg, err := svc.Register(context.Background(), RegisterInput{Name: "new", ReferredBy: ptr(uuid.New())})
	require.NoError(t, err)
	assert.Nil(t, reg.Agent.ReferredBy)
}

func TestRegisterIssuesToken(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	svc := newService(t, issuer)

	reg, err := svc.Register(context.Background(), RegisterInput{Name: "tokened"})
	require.NoError(t, err)
	require.NotEmpty(t, reg.Token)
	require.NotNil(t, reg.ExpiresAt)

	id, err := issuer.Validate(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.Agent.ID, id)
}

type failingIssuer struct{}

func (failingIssuer) Issue(uuid.UUID, string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signer offline")
}

func TestRegisterRollsBackWhenTokenFails(t *testing.T) {
	svc := newService(t, failingIssuer{})
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "unlucky", ExternalID: ptr("ext-unlucky")})
	require.Error(t, err)

	_, err = svc.GetByExternalID(ctx, "ext-unlucky")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	all, err := svc.List(ctx, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdate(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterInput{Name: "old"})
	require.NoError(t, err)
	other, err := svc.Register(ctx, RegisterInput{Name: "other"})
	require.NoError(t, err)

	a, err := svc.Update(ctx, reg.Agent.ID, store.AgentUpdate{Name: ptr("new"), WebhookURL: ptr("https://hooks.example.com/a")})
	require.NoError(t, err)
	assert.Equal(t, "new", a.Name)
	assert.Equal(t, "https://hooks.example.com/a", *a.WebhookURL)

	_, err = svc.Update(auth.WithActor(ctx, other.Agent.ID), reg.Agent.ID, store.AgentUpdate{Bio: ptr("hijack")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Update(ctx, reg.Agent.ID, store.AgentUpdate{Name: ptr(" ")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Update(ctx, uuid.New(), store.AgentUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListOrdersByReputation(t *testing.T) {
	st := memory.New()
	svc := NewService(st, ledger.WithClock(func() time.Time { return fixedNow }), nil, nil)
	ctx := context.Background()

	low, err := svc.Register(ctx, RegisterInput{Name: "low"})
	require.NoError(t, err)
	high, err := svc.Register(ctx, RegisterInput{Name: "high"})
	require.NoError(t, err)
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SetReputation(ctx, high.Agent.ID, 4.5, fixedNow); err != nil {
			return err
		}
		return tx.SetReputation(ctx, low.Agent.ID, 2, fixedNow)
	}))

	list, err := svc.List(ctx, store.Page{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, high.Agent.ID, list[0].ID)

	list, err = svc.List(ctx, store.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, low.Agent.ID, list[0].ID)
}

func TestClampPage(t *testing.T) {
	assert.Equal(t, store.Page{Limit: DefaultPageSize}, clampPage(store.Page{}))
	assert.Equal(t, store.Page{Limit: MaxPageSize, Offset: 3}, clampPage(store.Page{Limit: 10_000, Offset: 3}))
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func TestHandler(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(newService(t, nil), validate.MustNew(), nil).Routes(mux)

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodPost, "/agents", `{"name":"scout","externalId":"ext-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	id := reg.Agent.ID

	rec = call(http.MethodPost, "/agents", `{"name":"again","externalId":"ext-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(http.MethodPost, "/agents", `{"bio":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(http.MethodGet, "/agents/"+id.String()+"/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"agentId":%q,"balance":10}`, id), rec.Body.String())

	rec = call(http.MethodPatch, "/agents/"+id.String(), `{"bio":"scouts things"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(http.MethodPatch, "/agents/"+id.String(), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(http.MethodGet, "/agents?externalId=ext-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found []models.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "scouts things", *found[0].Bio)

	rec = call(http.MethodGet, "/agents?externalId=missing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = call(http.MethodGet, "/agents/"+uuid.New().String()+"/transactions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(http.MethodGet, "/agents?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
