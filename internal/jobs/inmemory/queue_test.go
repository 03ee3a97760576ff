package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/vendor-insights/internal/jobs"
)

func newTestQueue(store jobs.JobStore) *Queue {
	q := NewQueue(10, 2, store)
	q.backoff = func(int) time.Duration { return time.Millisecond }
	return q
}

// waitForStatus polls the store until the job reaches want or the deadline passes.
func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ComputeMetricsJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state %+v", jobID, want, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.ComputeMetricsJob)
		if !ok {
			return jobs.Permanent(errors.New("unexpected job type"))
		}
		j.RunIDs = append(j.RunIDs, "run-1")
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ComputeMetricsJob{Source: "bigquery"}
	if err := q.PublishComputeMetrics(ctx, job); err != nil {
		t.Fatalf("PublishComputeMetrics() error = %v", err)
	}
	if job.JobID == "" || job.MaxRetries != jobs.DefaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if len(done.RunIDs) != 1 || done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("completed job = %+v", done)
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := q.PublishComputeMetrics(ctx, &jobs.ComputeMetricsJob{}); err == nil {
		t.Error("publishing to a stopped queue should fail")
	}
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer q.Close()

	var attempts int32
	handler := func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("warehouse busy")
		}
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.ComputeMetricsJob{}
	if err := q.PublishComputeMetrics(ctx, job); err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 2 || done.Error != "" {
		t.Errorf("RetryCount = %d, Error = %q; want 2 and empty", done.RetryCount, done.Error)
	}
}

func TestQueue_FailureModes(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		maxRetries   int
		wantAttempts int32
		wantRetries  int
	}{
		{name: "permanent error is not retried", err: jobs.Permanent(errors.New("no activity")), maxRetries: 3, wantAttempts: 1},
		{name: "retries exhausted", err: errors.New("timeout"), maxRetries: 2, wantAttempts: 3, wantRetries: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			q := newTestQueue(store)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			defer q.Close()

			var attempts int32
			if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
				atomic.AddInt32(&attempts, 1)
				return tt.err
			}); err != nil {
				t.Fatal(err)
			}

			job := &jobs.ComputeMetricsJob{MaxRetries: tt.maxRetries}
			if err := q.PublishComputeMetrics(ctx, job); err != nil {
				t.Fatal(err)
			}

			failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if failed.RetryCount != tt.wantRetries || failed.Error == "" {
				t.Errorf("failed job = %+v", failed)
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad request")
	err := jobs.Permanent(base)
	if !errors.Is(err, jobs.ErrPermanent) || !errors.Is(err, base) {
		t.Errorf("Permanent(%v) does not match both the cause and ErrPermanent", base)
	}
	if err.Error() != "bad request" {
		t.Errorf("Error() = %q", err.Error())
	}
	if jobs.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
