package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/inaiurai/shellmarket/internal/config"
	"github.com/inaiurai/shellmarket/internal/decay"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/metrics"
	"github.com/inaiurai/shellmarket/internal/notify"
	"github.com/inaiurai/shellmarket/internal/store"
	"github.com/inaiurai/shellmarket/internal/store/memory"
	"github.com/inaiurai/shellmarket/internal/store/postgres"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := metrics.Setup(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	defer shutdownMetrics(context.Background())

	var (
		st       store.Store
		notifier notify.Notifier
		startBg  func(context.Context) error
		stopBg   func(context.Context) error
	)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
			return err
		}
		defer pg.Close()
		logger.Info("Connected to PostgreSQL database successfully!")

		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pg.Pool()), nil)
		if err != nil {
			return err
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			logger.Error("River migrate up failed", "error", err)
			return err
		}
		logger.Info("Ledger and River migrations applied")
		st = pg

		l := ledger.New()
		decaySvc := decay.NewService(st, l, metrics.Global(), logger)

		workers := river.NewWorkers()
		river.AddWorker(workers, notify.NewWebhookWorker(notify.NewSender(st, cfg.WebhookTimeout)))
		river.AddWorker(workers, decay.NewWorker(decaySvc))

		riverClient, err := river.NewClient(riverpgxv5.New(pg.Pool()), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 10},
			},
			Workers:      workers,
			PeriodicJobs: []*river.PeriodicJob{decay.PeriodicJob(cfg.DecayInterval)},
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		notifier = notify.NewRiverNotifier(func(ctx context.Context, args notify.WebhookArgs) error {
			_, err := riverClient.Insert(ctx, args, nil)
			return err
		}, logger)

		h := build(cfg, st, l, decaySvc, notifier, logger)
		startBg = riverClient.Start
		stopBg = riverClient.Stop
		return serve(ctx, cfg, h, logger, startBg, stopBg)

	case config.DriverMemory:
		mem := memory.New()
		defer mem.Close()
		st = mem
		logger.Warn("Using in-memory ledger; all state is lost on exit")

		queue := notify.NewQueue(notify.NewSender(st, cfg.WebhookTimeout), cfg.WebhookQueue, cfg.WebhookWorkers, cfg.WebhookTimeout, logger)
		notifier = queue
		l := ledger.New()
		decaySvc := decay.NewService(st, l, metrics.Global(), logger)
		h := build(cfg, st, l, decaySvc, notifier, logger)

		tickerDone := make(chan struct{})
		bgCtx, cancelBg := context.WithCancel(context.Background())
		startBg = func(context.Context) error {
			go runDecayTicker(bgCtx, decaySvc, cfg.DecayInterval, logger, tickerDone)
			return nil
		}
		stopBg = func(context.Context) error {
			cancelBg()
			<-tickerDone
			queue.Close()
			return nil
		}
		return serve(ctx, cfg, h, logger, startBg, stopBg)
	}
	return errors.New("unknown store driver " + cfg.StoreDriver)
}

func serve(ctx context.Context, cfg config.Config, h http.Handler, logger *slog.Logger,
	startBg, stopBg func(context.Context) error,
) error {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(h)

	if err := startBg(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case serveErr = <-errCh:
		logger.Error("HTTP server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}
	if err := stopBg(shutdownCtx); err != nil {
		logger.Error("Background workers shutdown", "error", err)
	}
	return serveErr
}

// runDecayTicker drives periodic decay when no job queue is available.
func runDecayTicker(ctx context.Context, svc *decay.Service, interval time.Duration, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := svc.Apply(ctx); err != nil {
				logger.Error("Scheduled reputation decay failed", "error", err)
			}
		}
	}
}
