package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// maxErrorMessageLen bounds error_message so a long wrapped chain fits the column.
const maxErrorMessageLen = 2000

// StartMetricRunWithClient inserts a new row into metric_runs with
// status=RUNNING and returns the generated run_id.
func StartMetricRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, asOf civil.Date, source string) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			as_of,
			source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@as_of,
			@source,
			@started_ts,
			@status
		)
	`, ds.Table(metricRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "as_of", Value: bigquery.NullDate{Date: asOf, Valid: asOf.IsValid()}},
		{Name: "source", Value: source},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: RunStatusRunning},
	}

	if err := runAndWait(ctx, q); err != nil {
		return "", fmt.Errorf("StartMetricRun: %w", err)
	}

	return runID, nil
}

// MarkMetricRunFailedWithClient sets status=FAILED, finished_ts and
// error_message. Failures are logged rather than returned since the caller
// is already handling the run's own error.
func MarkMetricRunFailedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLen {
			errMsg = errMsg[:maxErrorMessageLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, ds.Table(metricRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkMetricRunFailed: update failed")
	}
}

// MarkMetricRunSucceededWithClient sets status=SUCCESS and finished_ts, clears error_message.
func MarkMetricRunSucceededWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = ""
		WHERE run_id = @run_id
	`, ds.Table(metricRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkMetricRunSucceeded: %w", err)
	}

	return nil
}

// ListMetricRunsWithClient returns the most recent runs, newest first.
func ListMetricRunsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]*MetricRunRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			as_of,
			source,
			started_ts,
			finished_ts,
			status,
			error_message
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, ds.Table(metricRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListMetricRuns: query read: %w", err)
	}

	var rows []*MetricRunRow
	for {
		var r MetricRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListMetricRuns: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
