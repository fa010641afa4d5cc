package jobs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/validate"
)

func newTestServer(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	mux := http.NewServeMux()
	NewHandler(f.svc, validate.MustNew(), nil).Routes(mux)
	return f, mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b.Error.Code
}

func TestHandlerLifecycle(t *testing.T) {
	f, h := newTestServer(t)
	a := f.agent(t, 10, nil)
	b := f.agent(t, 10, nil)

	rec := do(t, h, http.MethodPost, "/jobs", fmt.Sprintf(`{"requesterId":%q,"providerId":%q,"amount":10,"description":"translate"}`, a, b))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusRequested, job.Status)

	rec = do(t, h, http.MethodPatch, "/jobs/"+job.ID.String()+"/accept", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, "/jobs/"+job.ID.String()+"/deliver", `{"deliverable":"done"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, "/jobs/"+job.ID.String()+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Job                 models.Job       `json:"job"`
		Payout              Payout           `json:"payout"`
		ActivityMiningBonus *json.RawMessage `json:"activityMiningBonus"`
		EconomyStats        EconomyStats     `json:"economyStats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, models.JobStatusCompleted, res.Job.Status)
	assert.Equal(t, Payout{Provider: 9, Fee: 1}, res.Payout)
	assert.NotNil(t, res.ActivityMiningBonus)
	assert.Equal(t, 1, res.EconomyStats.TotalCompletedJobs)

	rec = do(t, h, http.MethodGet, "/jobs/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.NotNil(t, job.Deliverable)
	assert.Equal(t, "done", *job.Deliverable)
}

func TestHandlerErrors(t *testing.T) {
	f, h := newTestServer(t)
	a := f.agent(t, 10, nil)
	b := f.agent(t, 10, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"self hire", http.MethodPost, "/jobs", fmt.Sprintf(`{"requesterId":%q,"providerId":%q,"amount":1}`, a, a), http.StatusBadRequest, "SELF_HIRE"},
		{"insufficient balance", http.MethodPost, "/jobs", fmt.Sprintf(`{"requesterId":%q,"providerId":%q,"amount":11}`, a, b), http.StatusBadRequest, "INSUFFICIENT_BALANCE"},
		{"unknown provider", http.MethodPost, "/jobs", fmt.Sprintf(`{"requesterId":%q,"providerId":%q,"amount":1}`, a, uuid.New()), http.StatusNotFound, "AGENT_NOT_FOUND"},
		{"missing amount", http.MethodPost, "/jobs", fmt.Sprintf(`{"requesterId":%q,"providerId":%q}`, a, b), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"fractional amount", http.MethodPost, "/jobs", fmt.Sprintf(`{"requesterId":%q,"providerId":%q,"amount":1.5}`, a, b), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", http.MethodPost, "/jobs", `{"requesterId":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown job", http.MethodGet, "/jobs/" + uuid.New().String(), "", http.StatusNotFound, "JOB_NOT_FOUND"},
		{"bad job id", http.MethodPatch, "/jobs/xyz/accept", "", http.StatusNotFound, "JOB_NOT_FOUND"},
		{"bad status filter", http.MethodGet, "/jobs?status=paid", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad requester filter", http.MethodGet, "/jobs?requesterId=nope", "", http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestHandlerInvalidTransition(t *testing.T) {
	f, h := newTestServer(t)
	a := f.agent(t, 10, nil)
	b := f.agent(t, 10, nil)
	job := f.runToDelivered(t, a, b, 3)

	rec := do(t, h, http.MethodPatch, "/jobs/"+job.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_STATUS_TRANSITION", body.Error.Code)
	assert.Equal(t, "delivered", body.Error.Details["currentStatus"])
	assert.Equal(t, "cancelled", body.Error.Details["attemptedStatus"])
}

func TestHandlerListEmpty(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
