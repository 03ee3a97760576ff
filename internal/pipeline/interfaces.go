package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/gcs"
	"github.com/dvloznov/vendor-insights/internal/insights"
)

// TransactionSource provides vendor activity for a month range.
type TransactionSource interface {
	// LoadTransactions returns consolidated vendor-buyer-month records with
	// from <= month <= to.
	LoadTransactions(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error)

	// LoadInvoices returns financed invoices activated with from <= month <= to.
	LoadInvoices(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error)
}

// CompanySource provides company financial snapshots.
type CompanySource interface {
	LoadCompanies(ctx context.Context) ([]domain.CompanySnapshot, error)
}

// ResultWriter records run bookkeeping and results. It is the write half of
// bq.ResultRepository.
type ResultWriter interface {
	StartMetricRun(ctx context.Context, asOf civil.Date, source string) (string, error)
	MarkMetricRunFailed(ctx context.Context, runID string, runErr error)
	MarkMetricRunSucceeded(ctx context.Context, runID string) error
	InsertVendorCategories(ctx context.Context, rows []*bq.VendorCategoryRow) error
	InsertVendorSummaries(ctx context.Context, rows []*bq.VendorSummaryRow) error
	InsertCompanyEnrichment(ctx context.Context, rows []*bq.CompanyEnrichmentRow) error
	InsertIndustryBenchmarks(ctx context.Context, rows []*bq.IndustryBenchmarkRow) error
}

// StorageService is the subset of gcs.StorageService the pipeline uses.
type StorageService = gcs.StorageService

// Narrator writes a brief over a run digest.
type Narrator interface {
	Narrate(ctx context.Context, d insights.Digest) (*insights.Narrative, error)
}

var _ ResultWriter = (bq.ResultRepository)(nil)
