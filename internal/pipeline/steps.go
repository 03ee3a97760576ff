package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/benchmark"
	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/insights"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/report"
	"github.com/dvloznov/vendor-insights/internal/revshare"
	"github.com/dvloznov/vendor-insights/internal/window"
	"github.com/google/uuid"
)

// ErrNoActivity is returned when the source has no records in the range.
var ErrNoActivity = errors.New("no vendor activity in range")

// PipelineStep represents a single step in a metrics run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request Request
	RunID   string

	// AsOf is the month the run is evaluated at; Period is its fiscal quarter.
	AsOf   civil.Date
	Period fiscal.Period
	From   civil.Date

	Records   []domain.TransactionRecord
	Invoices  []domain.FinancedInvoice
	Orphans   []domain.FinancedInvoice
	Companies []domain.CompanySnapshot

	VendorSeries    []window.Series
	BuyerSeries     []window.Series
	VendorSnapshots []window.Snapshot
	BuyerSnapshots  []window.Snapshot

	Labels     []category.Label
	Summaries  []report.VendorSummary
	Enrichment *benchmark.Result
	Narrative  *insights.Narrative

	// Reports lists the gs:// URIs written by the export step.
	Reports []string
}

// sizes returns every window size the policy labels, smallest first.
func sizes(p category.Policy) []int {
	var out []int
	seen := make(map[int]bool)
	for _, s := range window.DefaultSizes {
		if contains(p.IntakeWindows, s) || contains(p.ConversionWindows, s) {
			out = append(out, s)
			seen[s] = true
		}
	}
	for _, s := range append(append([]int{}, p.IntakeWindows...), p.ConversionWindows...) {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Step 1: StartRunStep records the run as RUNNING.
type StartRunStep struct {
	Results ResultWriter
}

func (s *StartRunStep) Name() string { return "start_run" }

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.RunID != "" {
		return nil
	}
	if s.Results == nil {
		state.RunID = uuid.NewString()
		return nil
	}
	runID, err := s.Results.StartMetricRun(ctx, state.Request.AsOf, state.Request.Source)
	if err != nil {
		return err
	}
	state.RunID = runID
	return nil
}

// Step 2: ExtractStep loads activity, invoices and, when enrichment is
// requested, company snapshots.
type ExtractStep struct {
	Transactions TransactionSource
	Companies    CompanySource
	Now          func() time.Time
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.ForRun(ctx, state.RunID, state.Request.AsOf.String())

	to := state.Request.AsOf
	if !to.IsValid() {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		to = civil.DateOf(now())
	}
	to = fiscal.MonthStart(to)

	from := state.Request.From
	if !from.IsValid() {
		months := state.Request.HistoryMonths
		if months <= 0 {
			months = DefaultHistoryMonths
		}
		from = fiscal.AddMonths(to, -(months - 1))
	}
	from = fiscal.MonthStart(from)
	if to.Before(from) {
		return fmt.Errorf("extract: as-of %s is before start %s", to, from)
	}

	records, err := s.Transactions.LoadTransactions(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("extract: %s..%s: %w", from, to, ErrNoActivity)
	}
	invoices, err := s.Transactions.LoadInvoices(ctx, from, to)
	if err != nil {
		return err
	}

	state.From = from
	state.Records = records
	state.Invoices = invoices
	state.AsOf = to
	if !state.Request.AsOf.IsValid() {
		state.AsOf = latestMonth(records)
	}
	p, ok := fiscal.PeriodOf(state.AsOf)
	if !ok {
		return fmt.Errorf("extract: no fiscal period for %s", state.AsOf)
	}
	state.Period = p

	if state.Request.Enrich && s.Companies != nil {
		companies, err := s.Companies.LoadCompanies(ctx)
		if err != nil {
			return err
		}
		state.Companies = companies
	}

	log.Info().
		Int("records", len(records)).
		Int("invoices", len(invoices)).
		Int("companies", len(state.Companies)).
		Str("from", from.String()).
		Str("period", p.String()).
		Msg("Extracted source data")
	return nil
}

func latestMonth(records []domain.TransactionRecord) civil.Date {
	var latest civil.Date
	for _, r := range records {
		if r.Month.After(latest) {
			latest = r.Month
		}
	}
	return latest
}

// Step 3: AttributeStep writes the revenue share onto every record. With
// invoice rows it sums per invoice; otherwise it approximates from the
// monthly aggregate.
type AttributeStep struct {
	Rules *revshare.Table
}

func (s *AttributeStep) Name() string { return "attribute" }

func (s *AttributeStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.ForRun(ctx, state.RunID, state.AsOf.String())
	rules := s.Rules
	if rules == nil {
		rules = revshare.DefaultTable()
	}

	if len(state.Invoices) > 0 {
		state.Orphans = rules.Attribute(state.Records, state.Invoices)
		if len(state.Orphans) > 0 {
			log.Warn().Int("orphans", len(state.Orphans)).Msg("Financed invoices without a matching vendor month")
		}
		return nil
	}

	for i := range state.Records {
		state.Records[i].RevenueShare = rules.AttributeMonthly(state.Records[i])
	}
	log.Debug().Msg("No invoice rows; revenue share approximated from monthly totals")
	return nil
}

// Step 4: AggregateStep builds vendor and vendor-buyer series and their
// window snapshots.
type AggregateStep struct {
	Policy category.Policy
}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	sz := sizes(s.Policy)
	state.VendorSeries = window.Partition(state.Records, window.VendorLevel)
	state.BuyerSeries = window.Partition(state.Records, window.BuyerLevel)

	if state.Request.History {
		state.VendorSnapshots = window.ScanAll(state.VendorSeries, sz)
		state.BuyerSnapshots = window.ScanAll(state.BuyerSeries, sz)
	} else {
		state.VendorSnapshots = window.AtAll(state.VendorSeries, state.AsOf, sz)
		state.BuyerSnapshots = window.AtAll(state.BuyerSeries, state.AsOf, sz)
	}

	l := logger.ForRun(ctx, state.RunID, state.AsOf.String())
	l.Info().
		Int("vendors", len(state.VendorSeries)).
		Int("vendor_buyers", len(state.BuyerSeries)).
		Int("snapshots", len(state.VendorSnapshots)+len(state.BuyerSnapshots)).
		Msg("Aggregated windows")
	return nil
}

// Step 5: CategorizeStep labels every snapshot.
type CategorizeStep struct {
	Policy category.Policy
}

func (s *CategorizeStep) Name() string { return "categorize" }

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Policy.Validate(); err != nil {
		return err
	}
	snaps := append(append([]window.Snapshot{}, state.VendorSnapshots...), state.BuyerSnapshots...)
	if state.Request.History {
		state.Labels = category.CategorizeEach(snaps, s.Policy)
	} else {
		state.Labels = category.Categorize(snaps, state.Period, s.Policy)
	}
	return nil
}

// Step 6: SummarizeStep builds one summary row per vendor snapshot.
type SummarizeStep struct {
	Policy category.Policy
}

func (s *SummarizeStep) Name() string { return "summarize" }

func (s *SummarizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Summaries = report.Summarize(state.Records, state.VendorSnapshots, state.Labels, sizes(s.Policy))
	return nil
}

// Step 7: EnrichStep benchmarks company snapshots. It is a no-op when no
// companies were loaded.
type EnrichStep struct{}

func (s *EnrichStep) Name() string { return "enrich" }

func (s *EnrichStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Companies) == 0 {
		return nil
	}
	res, err := benchmark.Enrich(state.Companies)
	if err != nil {
		return err
	}
	state.Enrichment = &res
	return nil
}

// Step 8: PersistStep writes labels, summaries and enrichment rows.
type PersistStep struct {
	Results ResultWriter
	Now     func() time.Time
}

func (s *PersistStep) Name() string { return "persist" }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Results == nil {
		return nil
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	if err := s.Results.InsertVendorCategories(ctx, transformLabels(state.RunID, state.Labels, now)); err != nil {
		return err
	}
	if err := s.Results.InsertVendorSummaries(ctx, transformSummaries(state.RunID, state.Summaries, now)); err != nil {
		return err
	}
	if state.Enrichment != nil {
		if err := s.Results.InsertCompanyEnrichment(ctx, transformCompanies(state.RunID, state.Enrichment.Companies, now)); err != nil {
			return err
		}
		if err := s.Results.InsertIndustryBenchmarks(ctx, transformIndustries(state.RunID, state.Enrichment.Industries, now)); err != nil {
			return err
		}
	}
	return nil
}

// Step 9: NarrateStep asks the model for a brief. A model failure is logged
// and the run carries on without one.
type NarrateStep struct {
	Narrator Narrator
	Window   int
}

func (s *NarrateStep) Name() string { return "narrate" }

func (s *NarrateStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Narrator == nil || !state.Request.Narrate {
		return nil
	}
	digest := insights.BuildDigest(state.RunID, state.Summaries, s.Window)
	n, err := s.Narrator.Narrate(ctx, digest)
	if err != nil {
		l := logger.ForRun(ctx, state.RunID, state.AsOf.String())
		l.Warn().Err(err).Msg("Narrative skipped")
		return nil
	}
	state.Narrative = n
	return nil
}

// Step 10: ExportStep uploads CSV reports to <bucket>/<prefix>/<run_id>/.
type ExportStep struct {
	Storage StorageService
	Bucket  string
	Prefix  string
}

func (s *ExportStep) Name() string { return "export" }

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Storage == nil || s.Bucket == "" || !state.Request.Export {
		return nil
	}
	files, err := renderReports(state)
	if err != nil {
		return err
	}
	for _, f := range files {
		object := path.Join(s.Prefix, state.RunID, f.name)
		uri, err := s.Storage.UploadBytes(ctx, s.Bucket, object, f.data, f.contentType)
		if err != nil {
			return fmt.Errorf("export %s: %w", f.name, err)
		}
		state.Reports = append(state.Reports, uri)
	}
	l := logger.ForRun(ctx, state.RunID, state.AsOf.String())
	l.Info().Strs("reports", state.Reports).Msg("Exported reports")
	return nil
}

type reportFile struct {
	name        string
	contentType string
	data        []byte
}

// renderReports renders every report the state has data for.
func renderReports(state *PipelineState) ([]reportFile, error) {
	const csvType = "text/csv"
	var files []reportFile

	var buf bytes.Buffer
	if err := report.WriteSummaries(&buf, state.Summaries); err != nil {
		return nil, err
	}
	files = append(files, reportFile{ReportVendorSummary, csvType, append([]byte(nil), buf.Bytes()...)})

	buf.Reset()
	if err := report.WritePivot(&buf, report.PivotQuarters(state.VendorSeries)); err != nil {
		return nil, err
	}
	files = append(files, reportFile{ReportQuarterPivot, csvType, append([]byte(nil), buf.Bytes()...)})

	if state.Enrichment != nil {
		buf.Reset()
		if err := report.WriteEnrichment(&buf, state.Enrichment.Companies); err != nil {
			return nil, err
		}
		files = append(files, reportFile{ReportCompanyEnrichment, csvType, append([]byte(nil), buf.Bytes()...)})

		buf.Reset()
		if err := report.WriteBenchmarks(&buf, state.Enrichment.Industries); err != nil {
			return nil, err
		}
		files = append(files, reportFile{ReportIndustryBenchmarks, csvType, append([]byte(nil), buf.Bytes()...)})
	}

	if state.Narrative != nil {
		data, err := json.MarshalIndent(state.Narrative, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal narrative: %w", err)
		}
		files = append(files, reportFile{ReportNarrative, "application/json", data})
	}
	return files, nil
}

// Step 11: MarkSuccessStep marks the run as SUCCESS.
type MarkSuccessStep struct {
	Results ResultWriter
}

func (s *MarkSuccessStep) Name() string { return "mark_success" }

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Results == nil {
		return nil
	}
	return s.Results.MarkMetricRunSucceeded(ctx, state.RunID)
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}
