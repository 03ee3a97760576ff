package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
)

// Re-export interfaces and rows from the shared package so callers need one import.
type (
	SourceRepository = bq.SourceRepository
	ResultRepository = bq.ResultRepository
	CategoryFilter   = bq.CategoryFilter

	VendorMonthRow       = bq.VendorMonthRow
	FinancedInvoiceRow   = bq.FinancedInvoiceRow
	CompanySnapshotRow   = bq.CompanySnapshotRow
	MetricRunRow         = bq.MetricRunRow
	VendorCategoryRow    = bq.VendorCategoryRow
	VendorSummaryRow     = bq.VendorSummaryRow
	CompanyEnrichmentRow = bq.CompanyEnrichmentRow
	MetricDeviationRow   = bq.MetricDeviationRow
	IndustryBenchmarkRow = bq.IndustryBenchmarkRow
)

// Run statuses.
const (
	RunStatusRunning = bq.RunStatusRunning
	RunStatusSuccess = bq.RunStatusSuccess
	RunStatusFailed  = bq.RunStatusFailed
)

// Repository is the concrete implementation of SourceRepository and
// ResultRepository. It holds a shared BigQuery client to avoid creating a
// new connection for each operation.
type Repository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewRepository creates a repository with its own BigQuery client.
func NewRepository(ctx context.Context, ds Dataset) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{
		client: client,
		ds:     ds,
	}, nil
}

// NewRepositoryWithClient wraps an existing client. Close will close it.
func NewRepositoryWithClient(client *bigquery.Client, ds Dataset) *Repository {
	return &Repository{client: client, ds: ds}
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client exposes the shared client for callers such as migrations.
func (r *Repository) Client() *bigquery.Client {
	return r.client
}

// ListVendorMonths delegates to ListVendorMonthsWithClient with the shared client.
func (r *Repository) ListVendorMonths(ctx context.Context, from, to civil.Date) ([]*VendorMonthRow, error) {
	return ListVendorMonthsWithClient(ctx, r.client, r.ds, from, to)
}

// ListFinancedInvoices delegates to ListFinancedInvoicesWithClient with the shared client.
func (r *Repository) ListFinancedInvoices(ctx context.Context, from, to civil.Date) ([]*FinancedInvoiceRow, error) {
	return ListFinancedInvoicesWithClient(ctx, r.client, r.ds, from, to)
}

// ListCompanySnapshots delegates to ListCompanySnapshotsWithClient with the shared client.
func (r *Repository) ListCompanySnapshots(ctx context.Context) ([]*CompanySnapshotRow, error) {
	return ListCompanySnapshotsWithClient(ctx, r.client, r.ds)
}

// StartMetricRun delegates to StartMetricRunWithClient with the shared client.
func (r *Repository) StartMetricRun(ctx context.Context, asOf civil.Date, source string) (string, error) {
	return StartMetricRunWithClient(ctx, r.client, r.ds, asOf, source)
}

// MarkMetricRunFailed delegates to MarkMetricRunFailedWithClient with the shared client.
func (r *Repository) MarkMetricRunFailed(ctx context.Context, runID string, runErr error) {
	MarkMetricRunFailedWithClient(ctx, r.client, r.ds, runID, runErr)
}

// MarkMetricRunSucceeded delegates to MarkMetricRunSucceededWithClient with the shared client.
func (r *Repository) MarkMetricRunSucceeded(ctx context.Context, runID string) error {
	return MarkMetricRunSucceededWithClient(ctx, r.client, r.ds, runID)
}

// InsertVendorCategories delegates to InsertVendorCategoriesWithClient with the shared client.
func (r *Repository) InsertVendorCategories(ctx context.Context, rows []*VendorCategoryRow) error {
	return InsertVendorCategoriesWithClient(ctx, r.client, r.ds, rows)
}

// InsertVendorSummaries delegates to InsertVendorSummariesWithClient with the shared client.
func (r *Repository) InsertVendorSummaries(ctx context.Context, rows []*VendorSummaryRow) error {
	return InsertVendorSummariesWithClient(ctx, r.client, r.ds, rows)
}

// InsertCompanyEnrichment delegates to InsertCompanyEnrichmentWithClient with the shared client.
func (r *Repository) InsertCompanyEnrichment(ctx context.Context, rows []*CompanyEnrichmentRow) error {
	return InsertCompanyEnrichmentWithClient(ctx, r.client, r.ds, rows)
}

// InsertIndustryBenchmarks delegates to InsertIndustryBenchmarksWithClient with the shared client.
func (r *Repository) InsertIndustryBenchmarks(ctx context.Context, rows []*IndustryBenchmarkRow) error {
	return InsertIndustryBenchmarksWithClient(ctx, r.client, r.ds, rows)
}

// ListVendorCategories delegates to ListVendorCategoriesWithClient with the shared client.
func (r *Repository) ListVendorCategories(ctx context.Context, filter CategoryFilter) ([]*VendorCategoryRow, error) {
	return ListVendorCategoriesWithClient(ctx, r.client, r.ds, filter)
}

// ListMetricRuns delegates to ListMetricRunsWithClient with the shared client.
func (r *Repository) ListMetricRuns(ctx context.Context, limit int) ([]*MetricRunRow, error) {
	return ListMetricRunsWithClient(ctx, r.client, r.ds, limit)
}

// DeleteRun delegates to DeleteRunWithClient with the shared client.
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	return DeleteRunWithClient(ctx, r.client, r.ds, runID)
}

var (
	_ SourceRepository = (*Repository)(nil)
	_ ResultRepository = (*Repository)(nil)
)
