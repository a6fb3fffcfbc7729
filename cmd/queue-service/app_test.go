package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billable/jobqueue/internal/billing"
	"github.com/billable/jobqueue/internal/config"
	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/forward"
)

const testToken = "test-token"

func testConfig(t *testing.T, dbPath string, primary bool) *config.Config {
	t.Helper()
	return &config.Config{
		DatabasePath:      dbPath,
		IsPrimaryOverride: &primary,
		ServiceToken:      testToken,
		ForwardTimeout:    5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		MaxConcurrent:     2,
		BackoffBase:       time.Millisecond,
		BackoffMax:        10 * time.Millisecond,
		CleanupSchedule:   "@daily",
		CleanupRetention:  time.Hour,
		SMTPHost:          "localhost",
		SMTPPort:          1025,
		LogLevel:          "error",
		LogFormat:         "text",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestApp_PrimaryRouter(t *testing.T) {
	a := newTestApp(t, testConfig(t, filepath.Join(t.TempDir(), "q.db"), true))
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"model":"job","operation":"stats","args":{}}`
	resp, err = http.Post(srv.URL+forward.Path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+forward.Path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_ReplicaHasNoWriteEndpoint(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "q.db")
	newTestApp(t, testConfig(t, dbPath, true)) // migrates

	cfg := testConfig(t, dbPath, false)
	cfg.BaseURL = "http://127.0.0.1:1"
	a := newTestApp(t, cfg)

	srv := httptest.NewServer(a.router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+forward.Path, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApp_RegistersBillingHandlers(t *testing.T) {
	a := newTestApp(t, testConfig(t, filepath.Join(t.TempDir(), "q.db"), true))

	_, ok := a.queue.Registry().Resolve(billing.JobUpsertInvoicePDF)
	assert.True(t, ok)
	_, ok = a.queue.Registry().Resolve(billing.JobSendInvoiceEmail)
	assert.True(t, ok)
}

func TestApp_StartBackgroundRunsWorkerUntilCancelled(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "q.db"), true)
	cfg.RunWorker = true
	a := newTestApp(t, cfg)
	a.queue.Register("noop", func(context.Context, json.RawMessage) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	wait, err := a.startBackground(ctx)
	require.NoError(t, err)

	id, err := a.queue.Enqueue(context.Background(), "noop", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := a.queue.Get(context.Background(), id)
		return err == nil && j != nil && j.Status == core.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	stopped := make(chan struct{})
	go func() {
		wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("background goroutines did not stop")
	}
}

func TestApp_StartBackgroundStartsNothingOnSetupError(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "q.db"), true)
	cfg.RunWorker = true
	cfg.CleanupSchedule = "not a schedule"
	a := newTestApp(t, cfg)

	var calls atomic.Int32
	a.queue.Register("noop", func(context.Context, json.RawMessage) error {
		calls.Add(1)
		return nil
	})
	id, err := a.queue.Enqueue(context.Background(), "noop", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait, err := a.startBackground(ctx)
	require.Error(t, err)
	assert.Nil(t, wait)

	// Several poll intervals pass without the worker picking the job up.
	time.Sleep(10 * cfg.PollInterval)
	assert.Zero(t, calls.Load())
	j, err := a.queue.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, core.StatusPending, j.Status)
}

func TestApp_ReplicaForwardsWritesToPrimary(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "q.db")
	primary := newTestApp(t, testConfig(t, dbPath, true))
	srv := httptest.NewServer(primary.router())
	defer srv.Close()

	cfg := testConfig(t, dbPath, false)
	cfg.BaseURL = srv.URL
	replica := newTestApp(t, cfg)
	ctx := context.Background()

	id, err := replica.queue.Enqueue(ctx, "no-such-handler", map[string]string{"hello": "world"})
	require.NoError(t, err)

	job, err := primary.queue.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, core.StatusPending, job.Status)

	// The replica's worker claims through the primary and fails the job
	// terminally because no handler exists for it.
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = replica.newWorker().Start(wctx)
	}()

	require.Eventually(t, func() bool {
		j, err := primary.queue.Get(ctx, id)
		return err == nil && j != nil && j.Status == core.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	job, err = primary.queue.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "no handler registered for job type: no-such-handler")
}

func TestApp_ReplicaWithWrongTokenCannotWrite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "q.db")
	primary := newTestApp(t, testConfig(t, dbPath, true))
	srv := httptest.NewServer(primary.router())
	defer srv.Close()

	cfg := testConfig(t, dbPath, false)
	cfg.BaseURL = srv.URL
	cfg.ServiceToken = "wrong"
	replica := newTestApp(t, cfg)

	_, err := replica.queue.Enqueue(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, forward.ErrUnauthorized)

	stats, err := primary.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, &core.Stats{Total: 6, Pending: 1, Processing: 2, Completed: 3}))

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Regexp(t, `completed\s+3`, out)
	assert.Regexp(t, `total\s+6`, out)
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn", LogFormat: "text"}
	l := newLogger(cfg)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))
}
