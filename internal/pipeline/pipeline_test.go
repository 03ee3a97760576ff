package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/insights"
	"github.com/dvloznov/vendor-insights/internal/pipeline"
)

// MockTransactionSource is a mock implementation of TransactionSource for testing.
type MockTransactionSource struct {
	LoadTransactionsFunc func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error)
	LoadInvoicesFunc     func(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error)
}

func (m *MockTransactionSource) LoadTransactions(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
	return m.LoadTransactionsFunc(ctx, from, to)
}

func (m *MockTransactionSource) LoadInvoices(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error) {
	if m.LoadInvoicesFunc != nil {
		return m.LoadInvoicesFunc(ctx, from, to)
	}
	return nil, nil
}

// MockCompanySource is a mock implementation of CompanySource for testing.
type MockCompanySource struct {
	LoadCompaniesFunc func(ctx context.Context) ([]domain.CompanySnapshot, error)
}

func (m *MockCompanySource) LoadCompanies(ctx context.Context) ([]domain.CompanySnapshot, error) {
	return m.LoadCompaniesFunc(ctx)
}

// MockResultWriter records every call made by the pipeline.
type MockResultWriter struct {
	StartMetricRunFunc func(ctx context.Context, asOf civil.Date, source string) (string, error)
	InsertErr          error

	Failed     error
	Succeeded  bool
	Categories []*bq.VendorCategoryRow
	Summaries  []*bq.VendorSummaryRow
	Companies  []*bq.CompanyEnrichmentRow
	Industries []*bq.IndustryBenchmarkRow
}

func (m *MockResultWriter) StartMetricRun(ctx context.Context, asOf civil.Date, source string) (string, error) {
	if m.StartMetricRunFunc != nil {
		return m.StartMetricRunFunc(ctx, asOf, source)
	}
	return "run-1", nil
}

func (m *MockResultWriter) MarkMetricRunFailed(ctx context.Context, runID string, runErr error) {
	m.Failed = runErr
}

func (m *MockResultWriter) MarkMetricRunSucceeded(ctx context.Context, runID string) error {
	m.Succeeded = true
	return nil
}

func (m *MockResultWriter) InsertVendorCategories(ctx context.Context, rows []*bq.VendorCategoryRow) error {
	m.Categories = append(m.Categories, rows...)
	return m.InsertErr
}

func (m *MockResultWriter) InsertVendorSummaries(ctx context.Context, rows []*bq.VendorSummaryRow) error {
	m.Summaries = append(m.Summaries, rows...)
	return nil
}

func (m *MockResultWriter) InsertCompanyEnrichment(ctx context.Context, rows []*bq.CompanyEnrichmentRow) error {
	m.Companies = append(m.Companies, rows...)
	return nil
}

func (m *MockResultWriter) InsertIndustryBenchmarks(ctx context.Context, rows []*bq.IndustryBenchmarkRow) error {
	m.Industries = append(m.Industries, rows...)
	return nil
}

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	Uploaded map[string][]byte
}

func (m *MockStorageService) UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error) {
	if m.Uploaded == nil {
		m.Uploaded = make(map[string][]byte)
	}
	uri := "gs://" + bucketName + "/" + objectName
	m.Uploaded[uri] = data
	return uri, nil
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

// MockNarrator is a mock implementation of Narrator for testing.
type MockNarrator struct {
	NarrateFunc func(ctx context.Context, d insights.Digest) (*insights.Narrative, error)
}

func (m *MockNarrator) Narrate(ctx context.Context, d insights.Digest) (*insights.Narrative, error) {
	return m.NarrateFunc(ctx, d)
}

func month(y int, m time.Month) civil.Date {
	return civil.Date{Year: y, Month: m, Day: 1}
}

// sixMonths returns January to June 2024 of steady activity for one
// vendor and buyer 586, which earns a flat 9.5% of the discount.
func sixMonths() []domain.TransactionRecord {
	var out []domain.TransactionRecord
	for m := time.January; m <= time.June; m++ {
		apr := 12.0
		out = append(out, domain.TransactionRecord{
			VendorID:         "AAAPL1234C",
			VendorName:       "Acme Steel",
			BuyerID:          586,
			BuyerName:        "Big Buyer Ltd",
			Month:            month(2024, m),
			Intake:           1_000_000,
			Conversion:       500_000,
			CreditPeriodDays: 60,
			DaysAdvanced:     40,
			MaxDaysAdvanced:  55,
			Discount:         10_000,
			APR:              &apr,
			Eligible:         true,
		})
	}
	return out
}

func fixedNow() time.Time {
	return time.Date(2024, time.July, 3, 9, 0, 0, 0, time.UTC)
}

func TestRunMetrics_EndToEnd(t *testing.T) {
	var gotFrom, gotTo civil.Date
	source := &MockTransactionSource{
		LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
			gotFrom, gotTo = from, to
			return sixMonths(), nil
		},
		LoadInvoicesFunc: func(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error) {
			return []domain.FinancedInvoice{
				{VendorID: "AAAPL1234C", BuyerID: 586, Month: month(2024, time.June), Amount: 500_000, EffectiveDiscount: 10_000},
				{VendorID: "UNKNOWN", BuyerID: 586, Month: month(2024, time.June), Amount: 1, EffectiveDiscount: 1},
			}, nil
		},
	}
	results := &MockResultWriter{}
	storage := &MockStorageService{}

	state, err := pipeline.RunMetrics(context.Background(), pipeline.Request{
		AsOf:          month(2024, time.June),
		HistoryMonths: 12,
		Source:        pipeline.SourceBigQuery,
		Export:        true,
	}, pipeline.Deps{
		Transactions: source,
		Results:      results,
		Storage:      storage,
		Bucket:       "reports-bucket",
		ReportPrefix: "runs",
		Now:          fixedNow,
	})
	if err != nil {
		t.Fatalf("RunMetrics() error = %v", err)
	}

	if gotFrom != month(2023, time.July) || gotTo != month(2024, time.June) {
		t.Errorf("source range = %s..%s, want 2023-07-01..2024-06-01", gotFrom, gotTo)
	}
	if state.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", state.RunID)
	}
	if state.Period.String() != "FY25 Q1" {
		t.Errorf("Period = %s, want FY25 Q1", state.Period)
	}
	if len(state.Orphans) != 1 {
		t.Errorf("Orphans = %d, want 1", len(state.Orphans))
	}
	for _, r := range state.Records {
		want := 0.0
		if r.Month == month(2024, time.June) {
			want = 950
		}
		if r.RevenueShare != want {
			t.Errorf("%s RevenueShare = %v, want %v", r.Month, r.RevenueShare, want)
		}
	}

	if !results.Succeeded || results.Failed != nil {
		t.Errorf("run bookkeeping: succeeded=%v failed=%v", results.Succeeded, results.Failed)
	}

	var vendorLevel, buyerLevel int
	for _, row := range results.Categories {
		if row.RunID != "run-1" || !row.CreatedTS.Equal(fixedNow()) {
			t.Fatalf("category row not stamped with run and clock: %+v", row)
		}
		switch row.Level {
		case "vendor":
			vendorLevel++
			if row.BuyerID.Valid {
				t.Errorf("vendor-level row has buyer %v", row.BuyerID)
			}
		case "vendor_buyer":
			buyerLevel++
			if !row.BuyerID.Valid || row.BuyerID.Int64 != 586 {
				t.Errorf("buyer-level row has buyer %v", row.BuyerID)
			}
		}
	}
	if vendorLevel == 0 || vendorLevel != buyerLevel {
		t.Errorf("category rows: vendor=%d buyer=%d, want equal and non-zero", vendorLevel, buyerLevel)
	}

	if len(state.Summaries) != 1 {
		t.Fatalf("Summaries = %d, want 1", len(state.Summaries))
	}
	if len(results.Summaries) != len(state.Summaries[0].Windows) {
		t.Errorf("summary rows = %d, want one per window (%d)", len(results.Summaries), len(state.Summaries[0].Windows))
	}
	six := results.Summaries[0]
	if six.WindowMonths != 6 || six.IntakeLacs != 60 || six.ConversionLacs != 30 {
		t.Errorf("6M summary = %d months, %v/%v lacs, want 6, 60/30", six.WindowMonths, six.IntakeLacs, six.ConversionLacs)
	}

	for _, name := range []string{pipeline.ReportVendorSummary, pipeline.ReportQuarterPivot} {
		uri := "gs://reports-bucket/runs/run-1/" + name
		if _, ok := storage.Uploaded[uri]; !ok {
			t.Errorf("report %s not uploaded; got %v", uri, state.Reports)
		}
	}
	if len(results.Companies) != 0 {
		t.Error("enrichment rows written without Enrich")
	}
}

func TestRunMetrics_LatestMonthWhenAsOfUnset(t *testing.T) {
	source := &MockTransactionSource{
		LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
			if to != month(2024, time.July) {
				t.Errorf("to = %s, want current month", to)
			}
			return sixMonths(), nil
		},
	}

	state, err := pipeline.RunMetrics(context.Background(), pipeline.Request{}, pipeline.Deps{
		Transactions: source,
		Now:          fixedNow,
	})
	if err != nil {
		t.Fatalf("RunMetrics() error = %v", err)
	}
	if state.AsOf != month(2024, time.June) {
		t.Errorf("AsOf = %s, want latest data month 2024-06-01", state.AsOf)
	}
	if state.RunID == "" {
		t.Error("a run without a result store should still get an ID")
	}
	if state.Records[5].RevenueShare != 950 {
		t.Errorf("monthly approximation = %v, want 950", state.Records[5].RevenueShare)
	}
}

func TestRunMetrics_FailuresMarkRunFailed(t *testing.T) {
	tests := []struct {
		name     string
		source   *MockTransactionSource
		results  *MockResultWriter
		wantStep string
		wantIs   error
	}{
		{
			name: "source error",
			source: &MockTransactionSource{
				LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
					return nil, errors.New("warehouse unavailable")
				},
			},
			results:  &MockResultWriter{},
			wantStep: "pipeline step 2 (extract)",
		},
		{
			name: "no activity",
			source: &MockTransactionSource{
				LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
					return nil, nil
				},
			},
			results:  &MockResultWriter{},
			wantStep: "pipeline step 2 (extract)",
			wantIs:   pipeline.ErrNoActivity,
		},
		{
			name: "insert error",
			source: &MockTransactionSource{
				LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
					return sixMonths(), nil
				},
			},
			results:  &MockResultWriter{InsertErr: errors.New("quota exceeded")},
			wantStep: "(persist)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.RunMetrics(context.Background(), pipeline.Request{AsOf: month(2024, time.June)}, pipeline.Deps{
				Transactions: tt.source,
				Results:      tt.results,
				Now:          fixedNow,
			})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantStep) {
				t.Errorf("error = %v, want step %q", err, tt.wantStep)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantIs)
			}
			if tt.results.Failed == nil || tt.results.Succeeded {
				t.Errorf("run should be marked failed, got failed=%v succeeded=%v", tt.results.Failed, tt.results.Succeeded)
			}
		})
	}
}

func TestRunMetrics_StartFailureDoesNotMark(t *testing.T) {
	results := &MockResultWriter{
		StartMetricRunFunc: func(ctx context.Context, asOf civil.Date, source string) (string, error) {
			return "", errors.New("permission denied")
		},
	}
	_, err := pipeline.RunMetrics(context.Background(), pipeline.Request{}, pipeline.Deps{
		Transactions: &MockTransactionSource{},
		Results:      results,
	})
	if err == nil || !strings.Contains(err.Error(), "step 1 (start_run)") {
		t.Fatalf("error = %v, want start_run failure", err)
	}
	if results.Failed != nil {
		t.Error("a run that never started should not be marked failed")
	}
}

func TestRunMetrics_EnrichAndNarrate(t *testing.T) {
	cash, borrow := 500.0, 100.0
	companies := &MockCompanySource{
		LoadCompaniesFunc: func(ctx context.Context) ([]domain.CompanySnapshot, error) {
			return []domain.CompanySnapshot{
				{PAN: "AAAPL1234C", Name: "Acme Steel", Month: month(2024, time.June), Industry: "Steel", Cash: &cash, ShortTermBorrowings: &borrow},
			}, nil
		},
	}
	results := &MockResultWriter{}
	storage := &MockStorageService{}

	tests := []struct {
		name          string
		narrateErr    error
		wantNarrative bool
	}{
		{name: "narrative written", wantNarrative: true},
		{name: "model failure is not fatal", narrateErr: errors.New("model overloaded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*results = MockResultWriter{}
			storage.Uploaded = nil
			narrator := &MockNarrator{
				NarrateFunc: func(ctx context.Context, d insights.Digest) (*insights.Narrative, error) {
					if d.Vendors != 1 {
						t.Errorf("digest vendors = %d, want 1", d.Vendors)
					}
					if tt.narrateErr != nil {
						return nil, tt.narrateErr
					}
					return &insights.Narrative{Headline: "Acme steady"}, nil
				},
			}

			state, err := pipeline.RunMetrics(context.Background(), pipeline.Request{
				AsOf: month(2024, time.June), Enrich: true, Export: true, Narrate: true,
			}, pipeline.Deps{
				Transactions: &MockTransactionSource{
					LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
						return sixMonths(), nil
					},
				},
				Companies: companies,
				Results:   results,
				Storage:   storage,
				Narrator:  narrator,
				Bucket:    "b",
				Now:       fixedNow,
			})
			if err != nil {
				t.Fatalf("RunMetrics() error = %v", err)
			}
			if len(results.Companies) != 1 || results.Companies[0].CashRichStatus != "Cash-Rich" {
				t.Errorf("company rows = %+v", results.Companies)
			}
			if len(results.Industries) != 1 || results.Industries[0].Industry != "Steel" {
				t.Errorf("industry rows = %+v", results.Industries)
			}
			_, uploaded := storage.Uploaded["gs://b/run-1/"+pipeline.ReportNarrative]
			if uploaded != tt.wantNarrative || (state.Narrative != nil) != tt.wantNarrative {
				t.Errorf("narrative uploaded=%v state=%v, want %v", uploaded, state.Narrative, tt.wantNarrative)
			}
			if _, ok := storage.Uploaded["gs://b/run-1/"+pipeline.ReportCompanyEnrichment]; !ok {
				t.Error("enrichment report not uploaded")
			}
		})
	}
}

func TestPipeline_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := pipeline.RunMetrics(ctx, pipeline.Request{}, pipeline.Deps{
		Transactions: &MockTransactionSource{
			LoadTransactionsFunc: func(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
				called = true
				return nil, nil
			},
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("source should not be called after cancellation")
	}
}
