package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// Table names inside the dataset.
const (
	vendorMonthlyTable      = "vendor_monthly"
	financedInvoicesTable   = "financed_invoices"
	companySnapshotsTable   = "company_snapshots"
	metricRunsTable         = "metric_runs"
	vendorCategoriesTable   = "vendor_categories"
	vendorSummariesTable    = "vendor_summaries"
	companyEnrichmentTable  = "company_enrichment"
	industryBenchmarksTable = "industry_benchmarks"
)

// insertBatchSize keeps streaming inserts under the per-request row limit.
const insertBatchSize = 500

// Dataset locates the warehouse tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, backquoted name of a table.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// runAndWait executes a DML or DDL query and waits for it to finish.
func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

// putBatches streams rows into table in chunks of insertBatchSize.
func putBatches[T any](ctx context.Context, client *bigquery.Client, ds Dataset, table string, rows []T) error {
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(table).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("inserting rows %d-%d into %s: %w", start, end, table, err)
		}
	}
	return nil
}
