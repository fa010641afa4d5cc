package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/auth"
)

// TokenValidator resolves a bearer token to the agent it was issued for.
type TokenValidator interface {
	Validate(token string) (uuid.UUID, error)
}

// Options controls BearerAuth.
type Options struct {
	// RequireOnWrite rejects mutating requests that carry no token.
	RequireOnWrite bool
	// Open lists "METHOD /path" routes that never need a token, such as registration.
	Open []string
	Log  *slog.Logger
}

// BearerAuth authenticates requests with an agent token in the Authorization header.
// A token that is present must be valid. On success the agent ID is set as the
// request's actor; services then check ownership against it.
func BearerAuth(v TokenValidator, opts Options) func(http.Handler) http.Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	open := make(map[string]bool, len(opts.Open))
	for _, route := range opts.Open {
		open[route] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, present := extractBearer(r)
			if !present {
				if opts.RequireOnWrite && isWrite(r.Method) && !open[r.Method+" "+r.URL.Path] {
					apperr.Write(w, log, apperr.Unauthorized("missing or malformed Authorization header"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			agentID, err := v.Validate(raw)
			if err != nil {
				log.Debug("rejected bearer token", "error", err)
				apperr.Write(w, log, apperr.Unauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), agentID)))
		})
	}
}

// extractBearer reports whether an Authorization header was sent and returns its
// bearer token. A header with another scheme or an empty token yields "" and true.
func extractBearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:]), true
	}
	return "", true
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
