package router

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/bonus"
	"github.com/inaiurai/shellmarket/internal/httpx"
	"github.com/inaiurai/shellmarket/internal/middleware"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

// Routable is implemented by every package handler.
type Routable interface {
	Routes(mux *http.ServeMux)
}

type Options struct {
	// Tokens validates agent tokens. Nil disables authentication entirely.
	Tokens      middleware.TokenValidator
	RequireAuth bool
	Log         *slog.Logger
}

type PlatformStatsResponse struct {
	FeePool                 int64 `json:"feePool"`
	CompletedJobs           int   `json:"completedJobs"`
	ActivityMiningRemaining int   `json:"activityMiningRemaining"`
}

// New returns the API handler: every handler's routes plus platform stats and a
// health check, behind bearer authentication when Tokens is set.
func New(st store.Store, opts Options, handlers ...Routable) http.Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	for _, h := range handlers {
		h.Routes(mux)
	}
	mux.HandleFunc("GET /platform/stats", platformStats(st, log))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.Tokens == nil {
		return mux
	}
	return middleware.BearerAuth(opts.Tokens, middleware.Options{
		RequireOnWrite: opts.RequireAuth,
		Open:           []string{"POST /agents"},
		Log:            log,
	})(mux)
}

func platformStats(st store.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ps models.PlatformStats
		err := st.View(r.Context(), func(tx store.Tx) error {
			var err error
			ps, err = tx.PlatformStats(r.Context())
			return err
		})
		if err != nil {
			apperr.Write(w, log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, PlatformStatsResponse{
			FeePool:                 ps.FeePool,
			CompletedJobs:           ps.CompletedJobs,
			ActivityMiningRemaining: bonus.ActivityMiningRemaining(ps.CompletedJobs),
		})
	}
}
