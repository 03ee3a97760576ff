package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/gcs"
	"github.com/dvloznov/vendor-insights/internal/ingest"
)

// WarehouseSource adapts a bq.SourceRepository to TransactionSource and
// CompanySource.
type WarehouseSource struct {
	repo bq.SourceRepository
}

// NewWarehouseSource wraps repo.
func NewWarehouseSource(repo bq.SourceRepository) *WarehouseSource {
	return &WarehouseSource{repo: repo}
}

// LoadTransactions implements TransactionSource.
func (s *WarehouseSource) LoadTransactions(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
	rows, err := s.repo.ListVendorMonths(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("LoadTransactions: %w", err)
	}
	out := make([]domain.TransactionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToRecord())
	}
	return domain.Consolidate(out), nil
}

// LoadInvoices implements TransactionSource.
func (s *WarehouseSource) LoadInvoices(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error) {
	rows, err := s.repo.ListFinancedInvoices(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("LoadInvoices: %w", err)
	}
	out := make([]domain.FinancedInvoice, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToInvoice())
	}
	return out, nil
}

// LoadCompanies implements CompanySource.
func (s *WarehouseSource) LoadCompanies(ctx context.Context) ([]domain.CompanySnapshot, error) {
	rows, err := s.repo.ListCompanySnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadCompanies: %w", err)
	}
	out := make([]domain.CompanySnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToSnapshot())
	}
	return out, nil
}

// CSVSource reads extracts from local files or gs:// URIs. An empty path
// yields no rows; only TransactionsPath is required for a run.
type CSVSource struct {
	TransactionsPath string
	InvoicesPath     string
	CompaniesPath    string

	// Storage fetches gs:// paths. It may be nil when every path is local.
	Storage StorageService
}

// LoadTransactions implements TransactionSource. Rows outside from..to are
// dropped; zero bounds are open.
func (s *CSVSource) LoadTransactions(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
	if s.TransactionsPath == "" {
		return nil, fmt.Errorf("LoadTransactions: no transactions file configured")
	}
	data, err := s.open(ctx, s.TransactionsPath)
	if err != nil {
		return nil, fmt.Errorf("LoadTransactions: %w", err)
	}
	records, err := ingest.ReadTransactions(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("LoadTransactions: %s: %w", s.TransactionsPath, err)
	}

	kept := records[:0]
	for _, r := range records {
		if inRange(r.Month, from, to) {
			kept = append(kept, r)
		}
	}
	return domain.Consolidate(kept), nil
}

// LoadInvoices implements TransactionSource.
func (s *CSVSource) LoadInvoices(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error) {
	if s.InvoicesPath == "" {
		return nil, nil
	}
	data, err := s.open(ctx, s.InvoicesPath)
	if err != nil {
		return nil, fmt.Errorf("LoadInvoices: %w", err)
	}
	invoices, err := ingest.ReadInvoices(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("LoadInvoices: %s: %w", s.InvoicesPath, err)
	}

	kept := invoices[:0]
	for _, inv := range invoices {
		if inRange(inv.Month, from, to) {
			kept = append(kept, inv)
		}
	}
	return kept, nil
}

// LoadCompanies implements CompanySource.
func (s *CSVSource) LoadCompanies(ctx context.Context) ([]domain.CompanySnapshot, error) {
	if s.CompaniesPath == "" {
		return nil, nil
	}
	data, err := s.open(ctx, s.CompaniesPath)
	if err != nil {
		return nil, fmt.Errorf("LoadCompanies: %w", err)
	}
	companies, err := ingest.ReadCompanies(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("LoadCompanies: %s: %w", s.CompaniesPath, err)
	}
	return companies, nil
}

func (s *CSVSource) open(ctx context.Context, path string) ([]byte, error) {
	if gcs.IsURI(path) {
		if s.Storage == nil {
			return nil, fmt.Errorf("no storage client for %s", path)
		}
		return s.Storage.FetchFromGCS(ctx, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %q: %w", path, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func inRange(month, from, to civil.Date) bool {
	month = civil.Date{Year: month.Year, Month: month.Month, Day: 1}
	if from.IsValid() && month.Before(from) {
		return false
	}
	if to.IsValid() && month.After(to) {
		return false
	}
	return true
}

var (
	_ TransactionSource = (*WarehouseSource)(nil)
	_ CompanySource     = (*WarehouseSource)(nil)
	_ TransactionSource = (*CSVSource)(nil)
	_ CompanySource     = (*CSVSource)(nil)
)
