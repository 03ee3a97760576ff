package pipeline

// Source names recorded on a run.
const (
	SourceBigQuery = "bigquery"
	SourcePostgres = "postgres"
	SourceCSV      = "csv"
)

// DefaultHistoryMonths is how far back a run reads when the request gives
// no start month. It covers the widest window plus the churn look-back.
const DefaultHistoryMonths = 60

// Report object names written under <prefix>/<run_id>/.
const (
	ReportVendorSummary      = "vendor_summary.csv"
	ReportQuarterPivot       = "quarter_pivot.csv"
	ReportCompanyEnrichment  = "company_enrichment.csv"
	ReportIndustryBenchmarks = "industry_benchmarks.csv"
	ReportNarrative          = "narrative.json"
)
