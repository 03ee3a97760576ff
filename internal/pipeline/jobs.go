package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/vendor-insights/internal/ingest"
	"github.com/dvloznov/vendor-insights/internal/jobs"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/revshare"
)

// DepsResolver returns the collaborators for a run reading from source.
type DepsResolver func(ctx context.Context, source string) (Deps, error)

// NewJobHandler returns a jobs.JobHandler that executes compute-metrics
// jobs. Failures a retry cannot fix are marked permanent.
func NewJobHandler(resolve DepsResolver) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.ComputeMetricsJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", j.JobID).
			Str("source", j.Source).
			Logger()
		ctx = logger.WithContext(ctx, log)

		deps, err := resolve(ctx, j.Source)
		if err != nil {
			return jobs.Permanent(fmt.Errorf("resolving source %q: %w", j.Source, err))
		}

		state, err := RunMetrics(ctx, RequestFromJob(j), deps)
		if state != nil && state.RunID != "" {
			j.RunIDs = append(j.RunIDs, state.RunID)
		}
		if err != nil {
			if permanent(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		j.Reports = state.Reports
		return nil
	}
}

// RequestFromJob converts a queued job into a run request.
func RequestFromJob(j *jobs.ComputeMetricsJob) Request {
	return Request{
		AsOf:    j.AsOf,
		From:    j.From,
		Source:  j.Source,
		History: j.History,
		Enrich:  j.Enrich,
		Export:  j.Export,
		Narrate: j.Narrate,
	}
}

// permanent reports whether rerunning the same request would fail the same way.
func permanent(err error) bool {
	return errors.Is(err, ErrNoActivity) ||
		errors.Is(err, ingest.ErrMissingColumn) ||
		errors.Is(err, revshare.ErrInvalidRule) ||
		errors.Is(err, revshare.ErrDuplicateBuyer)
}
