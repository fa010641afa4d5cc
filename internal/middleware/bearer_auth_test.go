package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/auth"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubValidator struct {
	agent uuid.UUID
	err   error
}

func (s *stubValidator) Validate(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, errors.New("empty token")
	}
	return s.agent, s.err
}

// okHandler writes 200 and the actor ID (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if actor, ok := auth.ActorFromCtx(r.Context()); ok {
		w.Write([]byte(actor.String()))
	}
})

func serve(h http.Handler, method, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestBearerAuth_ValidToken(t *testing.T) {
	agent := uuid.New()
	mw := BearerAuth(&stubValidator{agent: agent}, Options{})(okHandler)

	rec := serve(mw, http.MethodPatch, "/jobs/x/accept", "Bearer good-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != agent.String() {
		t.Errorf("expected actor %s in body, got %q", agent, body)
	}
}

func TestBearerAuth_MalformedHeader(t *testing.T) {
	mw := BearerAuth(&stubValidator{agent: uuid.New()}, Options{})(okHandler)

	cases := []struct {
		name   string
		header string
	}{
		{"empty bearer", "Bearer "},
		{"wrong scheme", "Basic abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(mw, http.MethodGet, "/jobs", tc.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	mw := BearerAuth(&stubValidator{err: auth.ErrInvalidToken}, Options{})(okHandler)

	rec := serve(mw, http.MethodGet, "/jobs", "Bearer expired-token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBearerAuth_Anonymous(t *testing.T) {
	optional := BearerAuth(&stubValidator{}, Options{})(okHandler)
	required := BearerAuth(&stubValidator{}, Options{
		RequireOnWrite: true,
		Open:           []string{"POST /agents"},
	})(okHandler)

	cases := []struct {
		name   string
		h      http.Handler
		method string
		path   string
		want   int
	}{
		{"optional write", optional, http.MethodPost, "/jobs", http.StatusOK},
		{"required read", required, http.MethodGet, "/jobs", http.StatusOK},
		{"required write", required, http.MethodPost, "/jobs", http.StatusUnauthorized},
		{"required open route", required, http.MethodPost, "/agents", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(tc.h, tc.method, tc.path, "")
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
			if rec.Code == http.StatusOK && rec.Body.Len() != 0 {
				t.Errorf("anonymous request should carry no actor, got %q", rec.Body.String())
			}
		})
	}
}
