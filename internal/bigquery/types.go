package bigquery

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
)

// SourceRepository reads the warehouse tables metrics are computed from.
type SourceRepository interface {
	// ListVendorMonths returns vendor-buyer-month activity with from <= month <= to.
	ListVendorMonths(ctx context.Context, from, to civil.Date) ([]*VendorMonthRow, error)

	// ListFinancedInvoices returns invoices activated with from <= month <= to.
	ListFinancedInvoices(ctx context.Context, from, to civil.Date) ([]*FinancedInvoiceRow, error)

	// ListCompanySnapshots returns every company financial snapshot.
	ListCompanySnapshots(ctx context.Context) ([]*CompanySnapshotRow, error)
}

// ResultRepository persists run bookkeeping and computed results.
type ResultRepository interface {
	// StartMetricRun inserts a run with status=RUNNING and returns the run_id.
	StartMetricRun(ctx context.Context, asOf civil.Date, source string) (string, error)

	// MarkMetricRunFailed sets status=FAILED, finished_ts and error_message for a run.
	MarkMetricRunFailed(ctx context.Context, runID string, runErr error)

	// MarkMetricRunSucceeded sets status=SUCCESS and finished_ts for a run.
	MarkMetricRunSucceeded(ctx context.Context, runID string) error

	// InsertVendorCategories inserts a batch of category labels.
	InsertVendorCategories(ctx context.Context, rows []*VendorCategoryRow) error

	// InsertVendorSummaries inserts a batch of vendor summary rows.
	InsertVendorSummaries(ctx context.Context, rows []*VendorSummaryRow) error

	// InsertCompanyEnrichment inserts a batch of company enrichment rows.
	InsertCompanyEnrichment(ctx context.Context, rows []*CompanyEnrichmentRow) error

	// InsertIndustryBenchmarks inserts a batch of industry mean rows.
	InsertIndustryBenchmarks(ctx context.Context, rows []*IndustryBenchmarkRow) error

	// ListVendorCategories returns labels of one run, the latest successful
	// run when the filter names none.
	ListVendorCategories(ctx context.Context, filter CategoryFilter) ([]*VendorCategoryRow, error)

	// ListMetricRuns returns the most recent runs, newest first.
	ListMetricRuns(ctx context.Context, limit int) ([]*MetricRunRow, error)

	// DeleteRun removes a run and every result row written under it.
	DeleteRun(ctx context.Context, runID string) error
}

// CategoryFilter narrows ListVendorCategories.
type CategoryFilter struct {
	RunID        string
	VendorID     string
	WindowMonths int
	Limit        int
}

// Run statuses written to metric_runs.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// VendorMonthRow is one vendor-buyer-month of activity in vendor_monthly.
type VendorMonthRow struct {
	VendorID   string     `bigquery:"vendor_id"`
	VendorName string     `bigquery:"vendor_name"`
	BuyerID    int64      `bigquery:"buyer_id"`
	BuyerName  string     `bigquery:"buyer_name"`
	Month      civil.Date `bigquery:"month"`

	Intake     float64 `bigquery:"intake"`
	Conversion float64 `bigquery:"conversion"`

	CreditPeriodDays bigquery.NullFloat64 `bigquery:"credit_period_days"`
	DaysAdvanced     bigquery.NullFloat64 `bigquery:"days_advanced"`
	MaxDaysAdvanced  bigquery.NullFloat64 `bigquery:"max_days_advanced"`
	Discount         bigquery.NullFloat64 `bigquery:"discount"`
	PlatformFee      bigquery.NullFloat64 `bigquery:"platform_fee"`
	APR              bigquery.NullFloat64 `bigquery:"apr"`
	Eligible         bigquery.NullBool    `bigquery:"eligible"`
}

// ToRecord converts the row into a normalized domain record.
func (r *VendorMonthRow) ToRecord() domain.TransactionRecord {
	rec := domain.TransactionRecord{
		VendorID:         r.VendorID,
		VendorName:       r.VendorName,
		BuyerID:          r.BuyerID,
		BuyerName:        r.BuyerName,
		Month:            r.Month,
		Intake:           r.Intake,
		Conversion:       r.Conversion,
		CreditPeriodDays: r.CreditPeriodDays.Float64,
		DaysAdvanced:     r.DaysAdvanced.Float64,
		MaxDaysAdvanced:  r.MaxDaysAdvanced.Float64,
		Discount:         r.Discount.Float64,
		PlatformFee:      r.PlatformFee.Float64,
		APR:              nullFloat(r.APR),
		Eligible:         r.Eligible.Valid && r.Eligible.Bool,
	}
	rec.Normalize()
	return rec
}

// FinancedInvoiceRow is one financed invoice in financed_invoices.
type FinancedInvoiceRow struct {
	VendorID string     `bigquery:"vendor_id"`
	BuyerID  int64      `bigquery:"buyer_id"`
	Month    civil.Date `bigquery:"month"`

	Amount            float64              `bigquery:"amount"`
	EffectiveDiscount bigquery.NullFloat64 `bigquery:"effective_discount"`
	DiscountRate      bigquery.NullFloat64 `bigquery:"discount_rate"`
	APR               bigquery.NullFloat64 `bigquery:"apr"`
	DaysAdvanced      bigquery.NullFloat64 `bigquery:"days_advanced"`

	DueDate          bigquery.NullDate `bigquery:"due_date"`
	EstimatedDueDate bigquery.NullDate `bigquery:"estimated_due_date"`
	ClearanceDate    bigquery.NullDate `bigquery:"clearance_date"`
}

// ToInvoice converts the row into a domain invoice. A missing discount rate
// is derived from the discount over the amount.
func (r *FinancedInvoiceRow) ToInvoice() domain.FinancedInvoice {
	inv := domain.FinancedInvoice{
		VendorID:          r.VendorID,
		BuyerID:           r.BuyerID,
		Month:             civil.Date{Year: r.Month.Year, Month: r.Month.Month, Day: 1},
		Amount:            r.Amount,
		EffectiveDiscount: r.EffectiveDiscount.Float64,
		DiscountRate:      r.DiscountRate.Float64,
		APR:               nullFloat(r.APR),
		DaysAdvanced:      r.DaysAdvanced.Float64,
		DueDate:           nullDate(r.DueDate),
		EstimatedDueDate:  nullDate(r.EstimatedDueDate),
		ClearanceDate:     nullDate(r.ClearanceDate),
	}
	if !r.DiscountRate.Valid && inv.Amount > 0 {
		inv.DiscountRate = inv.EffectiveDiscount / inv.Amount * 100
	}
	return inv
}

// CompanySnapshotRow is one company financial snapshot in company_snapshots.
type CompanySnapshotRow struct {
	PAN   string     `bigquery:"pan"`
	Name  string     `bigquery:"name"`
	Month civil.Date `bigquery:"month"`

	Intake bigquery.NullFloat64 `bigquery:"intake"`

	Cash                 bigquery.NullFloat64 `bigquery:"cash"`
	Investments          bigquery.NullFloat64 `bigquery:"investments"`
	ShortTermBorrowings  bigquery.NullFloat64 `bigquery:"short_term_borrowings"`
	LongTermBorrowings   bigquery.NullFloat64 `bigquery:"long_term_borrowings"`
	RevenueGrowthPercent bigquery.NullFloat64 `bigquery:"revenue_growth_percent"`
	CreditRating         bigquery.NullString  `bigquery:"credit_rating"`
	FinanceCostPercent   bigquery.NullFloat64 `bigquery:"finance_cost_percent"`
	AnnualRevenue        bigquery.NullFloat64 `bigquery:"annual_revenue"`
	TurnoverRange        bigquery.NullString  `bigquery:"turnover_range"`
	Industry             bigquery.NullString  `bigquery:"industry"`

	CurrentRatio   bigquery.NullFloat64 `bigquery:"current_ratio"`
	ReceivableDays bigquery.NullFloat64 `bigquery:"receivable_days"`
	InventoryDays  bigquery.NullFloat64 `bigquery:"inventory_days"`
	PayableDays    bigquery.NullFloat64 `bigquery:"payable_days"`
}

// ToSnapshot converts the row into a domain snapshot.
func (r *CompanySnapshotRow) ToSnapshot() domain.CompanySnapshot {
	return domain.CompanySnapshot{
		PAN:                  r.PAN,
		Name:                 r.Name,
		Month:                r.Month,
		Intake:               nullFloat(r.Intake),
		Cash:                 nullFloat(r.Cash),
		Investments:          nullFloat(r.Investments),
		ShortTermBorrowings:  nullFloat(r.ShortTermBorrowings),
		LongTermBorrowings:   nullFloat(r.LongTermBorrowings),
		RevenueGrowthPercent: nullFloat(r.RevenueGrowthPercent),
		CreditRating:         r.CreditRating.StringVal,
		FinanceCostPercent:   nullFloat(r.FinanceCostPercent),
		AnnualRevenue:        nullFloat(r.AnnualRevenue),
		TurnoverRange:        r.TurnoverRange.StringVal,
		Industry:             r.Industry.StringVal,
		CurrentRatio:         nullFloat(r.CurrentRatio),
		ReceivableDays:       nullFloat(r.ReceivableDays),
		InventoryDays:        nullFloat(r.InventoryDays),
		PayableDays:          nullFloat(r.PayableDays),
	}
}

// MetricRunRow represents a metric run record in BigQuery.
type MetricRunRow struct {
	RunID  string            `bigquery:"run_id" json:"run_id"`
	AsOf   bigquery.NullDate `bigquery:"as_of" json:"as_of"`
	Source string            `bigquery:"source" json:"source"`

	StartedTS  time.Time              `bigquery:"started_ts" json:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts" json:"finished_ts"`

	Status       string `bigquery:"status" json:"status"`
	ErrorMessage string `bigquery:"error_message" json:"error_message,omitempty"`
}

// VendorCategoryRow is one label in vendor_categories. BuyerID is null for
// vendor-level partitions.
type VendorCategoryRow struct {
	RunID      string              `bigquery:"run_id" json:"run_id"`
	VendorID   string              `bigquery:"vendor_id" json:"vendor_id"`
	VendorName string              `bigquery:"vendor_name" json:"vendor_name"`
	BuyerID    bigquery.NullInt64  `bigquery:"buyer_id" json:"buyer_id"`
	BuyerName  bigquery.NullString `bigquery:"buyer_name" json:"buyer_name"`
	Level      string              `bigquery:"level" json:"level"`

	AsOf         civil.Date `bigquery:"as_of" json:"as_of"`
	FiscalPeriod string     `bigquery:"fiscal_period" json:"fiscal_period"`
	WindowMonths int64      `bigquery:"window_months" json:"window_months"`

	IntakeTier     bigquery.NullString `bigquery:"intake_tier" json:"intake_tier"`
	ConversionTier bigquery.NullString `bigquery:"conversion_tier" json:"conversion_tier"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// VendorSummaryRow is one vendor and window in vendor_summaries. Amounts are in lacs.
type VendorSummaryRow struct {
	RunID        string     `bigquery:"run_id"`
	VendorID     string     `bigquery:"vendor_id"`
	VendorName   string     `bigquery:"vendor_name"`
	AsOf         civil.Date `bigquery:"as_of"`
	FiscalPeriod string     `bigquery:"fiscal_period"`
	WindowMonths int64      `bigquery:"window_months"`

	IntakeBuyers     []string `bigquery:"intake_buyers"`
	ConversionBuyers []string `bigquery:"conversion_buyers"`

	IntakeCount              int64   `bigquery:"intake_count"`
	IntakeLacs               float64 `bigquery:"intake_lacs"`
	IntakeMonthlyAvgLacs     float64 `bigquery:"intake_monthly_avg_lacs"`
	ConversionCount          int64   `bigquery:"conversion_count"`
	ConversionLacs           float64 `bigquery:"conversion_lacs"`
	ConversionMonthlyAvgLacs float64 `bigquery:"conversion_monthly_avg_lacs"`
	DiscountMonthlyAvgLacs   float64 `bigquery:"discount_monthly_avg_lacs"`
	RevenueMonthlyAvgLacs    float64 `bigquery:"revenue_monthly_avg_lacs"`
	AccelerationPercent      float64 `bigquery:"acceleration_percent"`

	CreditPeriodDays float64 `bigquery:"credit_period_days"`
	MaxDays          float64 `bigquery:"max_days"`
	ActualDays       float64 `bigquery:"actual_days"`
	APR              float64 `bigquery:"apr"`

	IntakeTier     bigquery.NullString `bigquery:"intake_tier"`
	ConversionTier bigquery.NullString `bigquery:"conversion_tier"`

	FirstIntake     bigquery.NullDate `bigquery:"first_intake"`
	LastIntake      bigquery.NullDate `bigquery:"last_intake"`
	FirstConversion bigquery.NullDate `bigquery:"first_conversion"`
	LastConversion  bigquery.NullDate `bigquery:"last_conversion"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// CompanyEnrichmentRow is one company in company_enrichment.
type CompanyEnrichmentRow struct {
	RunID    string     `bigquery:"run_id"`
	PAN      string     `bigquery:"pan"`
	Name     string     `bigquery:"name"`
	Industry string     `bigquery:"industry"`
	Month    civil.Date `bigquery:"month"`

	CashRichStatus         string  `bigquery:"cash_rich_status"`
	IndicativeRate         string  `bigquery:"indicative_rate"`
	FiscalYear             string  `bigquery:"fiscal_year"`
	ExtrapolatedIntakeLacs float64 `bigquery:"extrapolated_intake_lacs"`

	DependencyPercent bigquery.NullFloat64 `bigquery:"dependency_percent"`
	DependencySlab    string               `bigquery:"dependency_slab"`

	Deviations []*MetricDeviationRow `bigquery:"deviations"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// MetricDeviationRow is a repeated record inside CompanyEnrichmentRow.
type MetricDeviationRow struct {
	Metric      string               `bigquery:"metric"`
	Value       bigquery.NullFloat64 `bigquery:"value"`
	Mean        bigquery.NullFloat64 `bigquery:"mean"`
	Percent     bigquery.NullFloat64 `bigquery:"percent"`
	Performance bigquery.NullString  `bigquery:"performance"`
}

// IndustryBenchmarkRow is one industry's metric means in industry_benchmarks.
type IndustryBenchmarkRow struct {
	RunID     string `bigquery:"run_id"`
	Industry  string `bigquery:"industry"`
	Companies int64  `bigquery:"companies"`

	CurrentRatio   bigquery.NullFloat64 `bigquery:"avg_current_ratio"`
	ReceivableDays bigquery.NullFloat64 `bigquery:"avg_receivable_days"`
	InventoryDays  bigquery.NullFloat64 `bigquery:"avg_inventory_days"`
	PayableDays    bigquery.NullFloat64 `bigquery:"avg_payable_days"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

func nullFloat(v bigquery.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullDate(v bigquery.NullDate) civil.Date {
	if !v.Valid {
		return civil.Date{}
	}
	return v.Date
}
