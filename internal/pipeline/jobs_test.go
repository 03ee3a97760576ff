package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/ingest"
	"github.com/dvloznov/vendor-insights/internal/jobs"
	"github.com/dvloznov/vendor-insights/internal/pipeline"
)

func TestJobHandler_RecordsRunAndReports(t *testing.T) {
	var gotSource string
	results := &MockResultWriter{}
	handler := pipeline.NewJobHandler(func(ctx context.Context, source string) (pipeline.Deps, error) {
		gotSource = source
		return pipeline.Deps{
			Transactions: &MockTransactionSource{
				LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
					return sixMonths(), nil
				},
			},
			Results: results,
			Storage: &MockStorageService{},
			Bucket:  "reports-bucket",
			Now:     fixedNow,
		}, nil
	})

	job := &jobs.ComputeMetricsJob{
		JobID:  "job-1",
		AsOf:   month(2024, time.June),
		Source: pipeline.SourcePostgres,
		Export: true,
	}
	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	if gotSource != pipeline.SourcePostgres {
		t.Errorf("resolved source = %q", gotSource)
	}
	if len(job.RunIDs) != 1 || job.RunIDs[0] != "run-1" {
		t.Errorf("RunIDs = %v, want [run-1]", job.RunIDs)
	}
	if len(job.Reports) == 0 {
		t.Error("expected report URIs on the job")
	}
	if !results.Succeeded {
		t.Error("run not marked succeeded")
	}
}

func TestJobHandler_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		resolveErr    error
		loadErr       error
		records       []domain.TransactionRecord
		wantPermanent bool
		wantRunID     bool
	}{
		{name: "unknown source", resolveErr: errors.New("unknown source"), wantPermanent: true},
		{name: "no activity", records: nil, wantPermanent: true, wantRunID: true},
		{name: "missing column", loadErr: &ingest.MissingColumnError{Column: "vendor_pan"}, wantPermanent: true, wantRunID: true},
		{name: "transient warehouse error", loadErr: errors.New("503 backend error"), wantPermanent: false, wantRunID: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := pipeline.NewJobHandler(func(ctx context.Context, source string) (pipeline.Deps, error) {
				if tt.resolveErr != nil {
					return pipeline.Deps{}, tt.resolveErr
				}
				return pipeline.Deps{
					Transactions: &MockTransactionSource{
						LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
							return tt.records, tt.loadErr
						},
					},
					Results: &MockResultWriter{},
					Now:     fixedNow,
				}, nil
			})

			job := &jobs.ComputeMetricsJob{JobID: "job-1", Source: pipeline.SourceBigQuery}
			err := handler(context.Background(), job)
			if err == nil {
				t.Fatal("handler() error = nil, want error")
			}
			if got := errors.Is(err, jobs.ErrPermanent); got != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v (err %v)", got, tt.wantPermanent, err)
			}
			if got := len(job.RunIDs) == 1; got != tt.wantRunID {
				t.Errorf("RunIDs = %v, want run recorded = %v", job.RunIDs, tt.wantRunID)
			}
		})
	}
}

func TestJobHandler_RejectsUnknownJobType(t *testing.T) {
	handler := pipeline.NewJobHandler(func(ctx context.Context, source string) (pipeline.Deps, error) {
		t.Fatal("resolver should not be called")
		return pipeline.Deps{}, nil
	})

	err := handler(context.Background(), fakeJob{})
	if !errors.Is(err, jobs.ErrPermanent) {
		t.Errorf("error = %v, want permanent", err)
	}
}

type fakeJob struct{}

func (fakeJob) GetID() string             { return "fake" }
func (fakeJob) GetType() jobs.JobType     { return "fake" }
func (fakeJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }
