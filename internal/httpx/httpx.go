// Package httpx holds the small helpers every HTTP handler shares.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PathUUID parses the named path value. A malformed ID cannot name an existing
// resource, so it is reported as NotFound for resource.
func PathUUID(r *http.Request, name, resource string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.NotFound(resource)
	}
	return id, nil
}

// QueryUUID parses an optional query parameter. It returns nil when the parameter is absent.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(name, name+" must be a UUID")
	}
	return &id, nil
}

// QueryInt parses an optional non-negative integer parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name, name+" must be a non-negative integer")
	}
	return n, nil
}
