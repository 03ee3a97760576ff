package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteRunWithClient deletes a run's results and then the run itself, so a
// partially written run can be re-executed cleanly.
func DeleteRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string) error {
	// Results first, metric_runs last: a failure midway leaves the run
	// visible for another attempt.
	for _, table := range []string{
		vendorCategoriesTable,
		vendorSummariesTable,
		companyEnrichmentTable,
		industryBenchmarksTable,
		metricRunsTable,
	} {
		if err := deleteRunRows(ctx, client, ds, table, runID); err != nil {
			return fmt.Errorf("DeleteRun: deleting from %s: %w", table, err)
		}
	}

	return nil
}

func deleteRunRows(ctx context.Context, client *bigquery.Client, ds Dataset, table, runID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE run_id = @run_id
	`, ds.Table(table)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
	}

	return runAndWait(ctx, q)
}
