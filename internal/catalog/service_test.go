package catalog

import (
	"context"
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

func setup(t *testing.T) (Service, uuid.UUID) {
	t.Helper()
	st := memory.New()
	id := uuid.New()
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertAgent(context.Background(), &models.Agent{ID: id, Name: "provider"})
	}))
	l := ledger.WithClock(func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) })
	return NewService(st, l, nil), id
}

func TestCreateAndList(t *testing.T) {
	svc, provider := setup(t)
	ctx := context.Background()

	s1, err := svc.Create(ctx, CreateInput{ProviderID: provider, Title: " Code review ", Category: "Coding", BasePrice: 4})
	require.NoError(t, err)
	assert.Equal(t, "Code review", s1.Title)
	assert.Equal(t, "coding", s1.Category)
	assert.True(t, s1.IsActive)

	s2, err := svc.Create(ctx, CreateInput{ProviderID: provider, Title: "Anything", BasePrice: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultCategory, s2.Category)

	all, err := svc.List(ctx, models.ServiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	coding, err := svc.List(ctx, models.ServiceFilter{Category: "coding"})
	require.NoError(t, err)
	require.Len(t, coding, 1)
	assert.Equal(t, s1.ID, coding[0].ID)

	got, err := svc.Get(ctx, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, s2.Title, got.Title)
}

func TestCreateValidation(t *testing.T) {
	svc, provider := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ProviderID: provider, Title: "  ", BasePrice: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{ProviderID: provider, Title: "x", BasePrice: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{ProviderID: provider, Title: "x", Category: "gardening", BasePrice: 1})
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindValidation, Code: "INVALID_CATEGORY"})

	_, err = svc.Create(ctx, CreateInput{ProviderID: uuid.New(), Title: "x", BasePrice: 1})
	assert.ErrorIs(t, err, apperr.NotFound("agent"))

	_, err = svc.Create(auth.WithActor(ctx, uuid.New()), CreateInput{ProviderID: provider, Title: "x", BasePrice: 1})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeactivate(t *testing.T) {
	svc, provider := setup(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, CreateInput{ProviderID: provider, Title: "x", BasePrice: 1})
	require.NoError(t, err)

	_, err = svc.Deactivate(auth.WithActor(ctx, uuid.New()), s.ID)
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindForbidden, Code: "NOT_SERVICE_OWNER"})

	off, err := svc.Deactivate(auth.WithActor(ctx, provider), s.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	list, err := svc.List(ctx, models.ServiceFilter{ProviderID: &provider})
	require.NoError(t, err)
	assert.Empty(t, list)

	// Still readable directly.
	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.Deactivate(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.NotFound("service"))
}

func TestHandler(t *testing.T) {
	svc, provider := setup(t)
	mux := http.NewServeMux()
	NewHandler(svc, validate.MustNew(), nil).Routes(mux)

	rec := httptest.NewRecorder()
	body := fmt.Sprintf(`{"providerId":%q,"title":"Summaries","category":"writing","basePrice":3}`, provider)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/services", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/services", strings.NewReader(`{"title":"no provider","basePrice":3}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services?category=writing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Summaries"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/services/"+uuid.New().String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
