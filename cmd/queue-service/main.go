// Command queue-service runs the background job queue.
//
// Subcommands:
//
//	serve    HTTP server (health check, write endpoint on the primary), embedded worker and cleanup
//	worker   standalone worker, forwarding writes when not the primary
//	enqueue  add a job from the shell
//	cleanup  remove old finished jobs once
//	stats    print job counts per status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/billable/jobqueue/internal/config"
	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/queue"
)

func main() {
	root := &cobra.Command{
		Use:           "queue-service",
		Short:         "Background job queue with single-writer forwarding",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		serveCmd(),
		workerCmd(),
		enqueueCmd(),
		cleanupCmd(),
		statsCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the configuration, installs the logger and wires the queue.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	return newApp(ctx, cfg, logger)
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server with the embedded worker",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	wait, err := a.startBackground(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.cfg.ForwardTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("server started", "addr", a.cfg.ListenAddr, "primary", a.forwarder.IsPrimary())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		wait()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		stop()
	}

	a.logger.Info("shutting down", "timeout", a.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	// The worker finishes in-flight jobs; their final writes may still need
	// the write endpoint, so the server outlives it.
	drained := make(chan struct{})
	go func() {
		wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		a.logger.Warn("in-flight jobs did not finish before the shutdown timeout")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// ── worker ────────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the standalone worker (no HTTP server)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			w := a.newWorker()
			a.logger.Info("worker started", "worker_id", w.ID(), "primary", a.forwarder.IsPrimary())
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// ── enqueue ───────────────────────────────────────────────────────────────────

func enqueueCmd() *cobra.Command {
	var maxAttempts int

	cmd := &cobra.Command{
		Use:   "enqueue <type> [json]",
		Short: "Add a job to the queue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := json.RawMessage("{}")
			if len(args) == 2 {
				payload = json.RawMessage(args[1])
			}

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.queue.Enqueue(cmd.Context(), args[0], payload, queue.MaxAttempts(maxAttempts))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", core.DefaultMaxAttempts, "dispatch attempts before the job fails")
	return cmd
}

// ── cleanup ───────────────────────────────────────────────────────────────────

func cleanupCmd() *cobra.Command {
	var (
		retention     time.Duration
		includeFailed bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove finished jobs older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if retention <= 0 {
				retention = a.cfg.CleanupRetention
			}
			statuses := []core.JobStatus{core.StatusCompleted}
			if includeFailed {
				statuses = append(statuses, core.StatusFailed)
			}

			n, err := a.queue.Cleanup(cmd.Context(), retention, statuses...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d jobs\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "keep jobs newer than this (default CLEANUP_RETENTION)")
	cmd.Flags().BoolVar(&includeFailed, "include-failed", false, "also remove failed jobs")
	return cmd
}

// ── stats ─────────────────────────────────────────────────────────────────────

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print job counts per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.queue.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), s)
		},
	}
}

func printStats(w io.Writer, s *core.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT")
	fmt.Fprintf(tw, "pending\t%d\n", s.Pending)
	fmt.Fprintf(tw, "processing\t%d\n", s.Processing)
	fmt.Fprintf(tw, "completed\t%d\n", s.Completed)
	fmt.Fprintf(tw, "failed\t%d\n", s.Failed)
	fmt.Fprintf(tw, "total\t%d\n", s.Total)
	return tw.Flush()
}
