package jobctx

import (
	"context"
	"log/slog"
	"testing"

	"github.com/billable/jobqueue/pkg/core"
	intctx "github.com/billable/jobqueue/pkg/internal/context"
)

func TestJobFromContext(t *testing.T) {
	t.Run("returns job when set in context", func(t *testing.T) {
		job := &core.Job{ID: "test-job-123", Type: "upsert-invoice-pdf"}
		ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: job})

		result := JobFromContext(ctx)
		if result == nil {
			t.Fatal("expected job, got nil")
		}
		if result.ID != "test-job-123" {
			t.Errorf("expected job ID %q, got %q", "test-job-123", result.ID)
		}
	})

	t.Run("returns nil when not set in context", func(t *testing.T) {
		if result := JobFromContext(context.Background()); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})

	t.Run("returns nil when job context is nil", func(t *testing.T) {
		ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: nil})
		if result := JobFromContext(ctx); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestJobIDFromContext(t *testing.T) {
	ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: &core.Job{ID: "abc"}})
	if got := JobIDFromContext(ctx); got != "abc" {
		t.Errorf("expected %q, got %q", "abc", got)
	}
	if got := JobIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestAttempt(t *testing.T) {
	tests := []struct {
		name        string
		job         *core.Job
		attempt     int
		lastAttempt bool
	}{
		{"outside handler", nil, 0, false},
		{"first of three", &core.Job{Attempts: 1, MaxAttempts: 3}, 1, false},
		{"last of three", &core.Job{Attempts: 3, MaxAttempts: 3}, 3, true},
		{"single attempt", &core.Job{Attempts: 1, MaxAttempts: 1}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.job != nil {
				ctx = intctx.WithJobContext(ctx, &intctx.JobContext{Job: tt.job})
			}
			if got := Attempt(ctx); got != tt.attempt {
				t.Errorf("Attempt() = %d, want %d", got, tt.attempt)
			}
			if got := IsLastAttempt(ctx); got != tt.lastAttempt {
				t.Errorf("IsLastAttempt() = %v, want %v", got, tt.lastAttempt)
			}
		})
	}
}

func TestWorkerIDAndLogger(t *testing.T) {
	if got := WorkerID(context.Background()); got != "" {
		t.Errorf("expected empty worker id, got %q", got)
	}
	if Logger(context.Background()) != slog.Default() {
		t.Error("expected default logger outside a handler")
	}

	l := slog.Default().With("job_id", "j1")
	ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{
		Job:      &core.Job{ID: "j1"},
		WorkerID: "worker-7",
		Logger:   l,
	})
	if got := WorkerID(ctx); got != "worker-7" {
		t.Errorf("expected %q, got %q", "worker-7", got)
	}
	if Logger(ctx) != l {
		t.Error("expected the job logger")
	}
}
