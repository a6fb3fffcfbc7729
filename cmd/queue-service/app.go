package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/billable/jobqueue/internal/billing"
	"github.com/billable/jobqueue/internal/config"
	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/forward"
	"github.com/billable/jobqueue/pkg/queue"
	"github.com/billable/jobqueue/pkg/schedule"
	"github.com/billable/jobqueue/pkg/storage"
	"github.com/billable/jobqueue/pkg/worker"
)

// app wires the queue for one process. On the primary every operation runs
// against the local database; on a replica writes go to the primary.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	registry  *forward.Registry
	forwarder *forward.Forwarder
	queue     *queue.Queue
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	jobs := storage.NewGormStorage(db)
	invoices := billing.NewStore(db)

	reg := forward.NewRegistry()
	storage.RegisterCommands(reg, jobs)
	billing.RegisterCommands(reg, invoices)

	primary := cfg.IsPrimary()
	var remote forward.Writer
	if !primary {
		remote = forward.NewClient(cfg.BaseURL, cfg.ServiceToken,
			forward.WithTimeout(cfg.ForwardTimeout),
			forward.WithClientLogger(logger),
		)
	}
	fw := forward.NewForwarder(reg, remote, primary, forward.WithForwarderLogger(logger))

	var js core.Storage = jobs
	if primary {
		if err := jobs.Migrate(ctx); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("migrate jobs: %w", err)
		}
		if err := invoices.Migrate(ctx); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("migrate billing: %w", err)
		}
	} else {
		js = storage.NewForwardedStorage(fw)
	}

	q := queue.New(js, queue.NewRegistry())
	q.SetLogger(logger)

	deps := billing.Deps{Writer: fw, From: cfg.SMTPFrom, Logger: logger}
	sender, err := billing.NewSMTPSender(billing.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLS:      cfg.SMTPTLS,
	})
	if err != nil {
		logger.Warn("email delivery disabled", "error", err)
	} else {
		deps.Sender = sender
	}
	billing.Register(q.Registry(), deps)

	logger.Info("queue ready", "primary", primary, "database", cfg.DatabasePath, "job_types", q.Registry().Types())
	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		registry:  reg,
		forwarder: fw,
		queue:     q,
	}, nil
}

func (a *app) Close() {
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// router serves the health check and, on the primary, the write endpoint.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	if a.forwarder.IsPrimary() {
		forward.NewHandler(a.registry, a.cfg.ServiceToken, forward.WithHandlerLogger(a.logger)).Mount(r)
	}
	return r
}

func (a *app) newWorker() *worker.Worker {
	return worker.NewWorker(a.queue,
		worker.PollInterval(a.cfg.PollInterval),
		worker.MaxConcurrent(a.cfg.MaxConcurrent),
		worker.WithBackoff(worker.Exponential{Base: a.cfg.BackoffBase, Max: a.cfg.BackoffMax}),
		worker.WithLogger(a.logger),
	)
}

// maintenance runs the retention cleanup on its schedule.
func (a *app) maintenance() (*schedule.Runner, error) {
	sched, err := schedule.ParseCron(a.cfg.CleanupSchedule)
	if err != nil {
		return nil, err
	}
	r := schedule.NewRunner(schedule.WithLogger(a.logger))
	r.Add("cleanup", sched, func(ctx context.Context) error {
		n, err := a.queue.Cleanup(ctx, a.cfg.CleanupRetention)
		if err != nil {
			return err
		}
		a.logger.Info("old jobs removed", "deleted", n, "retention", a.cfg.CleanupRetention)
		return nil
	})
	return r, nil
}

// startBackground starts the embedded worker when enabled and, on the
// primary, the maintenance runner. Both are built before either starts, so a
// setup error leaves nothing running. wait blocks until both have stopped.
func (a *app) startBackground(ctx context.Context) (wait func(), err error) {
	var runner *schedule.Runner
	if a.forwarder.IsPrimary() {
		if runner, err = a.maintenance(); err != nil {
			return nil, err
		}
	}

	var wg sync.WaitGroup
	if a.cfg.RunWorker {
		w := a.newWorker()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("worker stopped", "error", err)
			}
		}()
	}
	if runner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runner.Run(ctx)
		}()
	}
	return wg.Wait, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
