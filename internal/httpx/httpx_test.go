package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/shellmarket/internal/apperr"
)

func TestQueryHelpers(t *testing.T) {
	id := uuid.New()
	r := httptest.NewRequest(http.MethodGet, "/jobs?providerId="+id.String()+"&limit=5&bad=x", nil)

	got, err := QueryUUID(r, "providerId")
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	missing, err := QueryUUID(r, "requesterId")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = QueryUUID(r, "bad")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	n, err := QueryInt(r, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = QueryInt(r, "offset", 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = QueryInt(r, "bad", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPathUUID(t *testing.T) {
	mux := http.NewServeMux()
	var gotErr error
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, gotErr = PathUUID(r, "id", "job")
	})
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil))

	assert.ErrorIs(t, gotErr, apperr.ErrNotFound)
}
