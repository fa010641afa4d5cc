package main

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/shellmarket/internal/agents"
	"github.com/inaiurai/shellmarket/internal/auth"
	"github.com/inaiurai/shellmarket/internal/catalog"
	"github.com/inaiurai/shellmarket/internal/config"
	"github.com/inaiurai/shellmarket/internal/decay"
	"github.com/inaiurai/shellmarket/internal/jobs"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/metrics"
	"github.com/inaiurai/shellmarket/internal/notify"
	"github.com/inaiurai/shellmarket/internal/reviews"
	"github.com/inaiurai/shellmarket/internal/router"
	"github.com/inaiurai/shellmarket/internal/settlement"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/validate"
)

// build wires every service onto st and returns the API handler.
// Middleware chain: BearerAuth (when JWT_SECRET is set) -> ServeMux -> handler.
func build(
	cfg config.Config,
	st store.Store,
	l *ledger.Ledger,
	decaySvc *decay.Service,
	notifier notify.Notifier,
	logger *slog.Logger,
) http.Handler {
	v := validate.MustNew()
	met := metrics.Global()
	mirror := settlement.Logging{Next: settlement.Noop{}, Log: logger}

	var issuer agents.TokenIssuer
	opts := router.Options{RequireAuth: cfg.RequireAuth, Log: logger}
	if cfg.JWTSecret != "" {
		iss := auth.NewIssuer(cfg.JWTSecret, 0)
		issuer, opts.Tokens = iss, iss
	} else {
		logger.Warn("JWT_SECRET not set; agent tokens are disabled and every route is anonymous")
	}

	agentsSvc := agents.NewService(st, l, issuer, logger)
	catalogSvc := catalog.NewService(st, l, logger)
	jobsSvc := jobs.NewService(st, l, notifier, mirror, met, logger)
	reviewsSvc := reviews.NewService(st, l, notifier, logger)

	return router.New(st, opts,
		agents.NewHandler(agentsSvc, v, logger),
		catalog.NewHandler(catalogSvc, v, logger),
		catalog.NewLeaderboardHandler(catalog.NewLeaderboard(st, l), logger),
		jobs.NewHandler(jobsSvc, v, logger),
		reviews.NewHandler(reviewsSvc, v, logger),
		decay.NewHandler(decaySvc, logger),
	)
}
