package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/api/middleware"
	"github.com/dvloznov/vendor-insights/internal/benchmark"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/gcs"
	"github.com/dvloznov/vendor-insights/internal/ingest"
	"github.com/dvloznov/vendor-insights/internal/jobs"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/pipeline"
	"github.com/dvloznov/vendor-insights/internal/report"
	"github.com/dvloznov/vendor-insights/internal/revshare"
	"github.com/rs/zerolog"
)

// maxUploadBytes bounds CSV bodies posted to /api/enrich.
const maxUploadBytes = 32 << 20

// RunStore lists and purges metric runs.
type RunStore interface {
	ListMetricRuns(ctx context.Context, limit int) ([]*bq.MetricRunRow, error)
	DeleteRun(ctx context.Context, runID string) error
}

// CategoryStore lists persisted vendor labels.
type CategoryStore interface {
	ListVendorCategories(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error)
}

// RunsHandler handles metric run endpoints.
type RunsHandler struct {
	store         RunStore
	publisher     jobs.Publisher
	defaultSource string
	maxRetries    int
	log           zerolog.Logger
}

// NewRunsHandler creates a new runs handler. Runs requested without a
// source read from defaultSource.
func NewRunsHandler(store RunStore, publisher jobs.Publisher, defaultSource string, maxRetries int, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store:         store,
		publisher:     publisher,
		defaultSource: defaultSource,
		maxRetries:    maxRetries,
		log:           log,
	}
}

type createRunRequest struct {
	AsOf    string `json:"as_of"`
	From    string `json:"from"`
	Source  string `json:"source"`
	History bool   `json:"history"`
	Enrich  bool   `json:"enrich"`
	Export  bool   `json:"export"`
	Narrate bool   `json:"narrate"`
}

// CreateRun handles POST /api/runs
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job := &jobs.ComputeMetricsJob{
		Source:     req.Source,
		History:    req.History,
		Enrich:     req.Enrich,
		Export:     req.Export,
		Narrate:    req.Narrate,
		MaxRetries: h.maxRetries,
	}
	if job.Source == "" {
		job.Source = h.defaultSource
	}
	switch job.Source {
	case pipeline.SourceBigQuery, pipeline.SourcePostgres, pipeline.SourceCSV:
	default:
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown source %q", job.Source))
		return
	}

	var err error
	if job.AsOf, err = optionalMonth(req.AsOf); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid as_of, expected YYYY-MM or YYYY-MM-DD")
		return
	}
	if job.From, err = optionalMonth(req.From); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid from, expected YYYY-MM or YYYY-MM-DD")
		return
	}
	if job.AsOf.IsValid() && job.From.IsValid() && job.AsOf.Before(job.From) {
		middleware.WriteError(w, http.StatusBadRequest, "as_of must not be before from")
		return
	}

	ctx := r.Context()
	if err := h.publisher.PublishComputeMetrics(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue metrics job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue metrics job")
		return
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("job_id", job.JobID).
		Str("source", job.Source).
		Str("as_of", job.AsOf.String()).
		Msg("Metrics job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"source": job.Source,
		"status": string(job.Status),
	})
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, ok := intParam(r, "limit"); ok && v > 0 {
		limit = v
	}

	runs, err := h.store.ListMetricRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*bq.MetricRunRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// DeleteRun handles DELETE /api/runs/{id}
func (h *RunsHandler) DeleteRun(w http.ResponseWriter, r *http.Request, runID string) {
	if err := h.store.DeleteRun(r.Context(), runID); err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to delete run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}

	h.log.Info().Str("run_id", runID).Msg("Run deleted")
	w.WriteHeader(http.StatusNoContent)
}

// VendorsHandler handles vendor label endpoints.
type VendorsHandler struct {
	repo CategoryStore
	log  zerolog.Logger
}

// NewVendorsHandler creates a new vendors handler.
func NewVendorsHandler(repo CategoryStore, log zerolog.Logger) *VendorsHandler {
	return &VendorsHandler{
		repo: repo,
		log:  log,
	}
}

// ListVendors handles GET /api/vendors
func (h *VendorsHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := bq.CategoryFilter{
		RunID:    query.Get("run_id"),
		VendorID: strings.ToUpper(strings.TrimSpace(query.Get("vendor_id"))),
	}
	if v, ok := intParam(r, "window"); ok {
		filter.WindowMonths = v
	}
	if v, ok := intParam(r, "limit"); ok {
		filter.Limit = v
	}

	labels, err := h.repo.ListVendorCategories(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list vendor categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list vendor categories")
		return
	}
	if labels == nil {
		labels = []*bq.VendorCategoryRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vendors": labels,
		"count":   len(labels),
	})
}

// AnalysisHandler serves the stateless calculators: fiscal labels,
// revenue share of one invoice and company enrichment.
type AnalysisHandler struct {
	rules   *revshare.Table
	storage gcs.StorageService
	log     zerolog.Logger
}

// NewAnalysisHandler creates a new analysis handler. storage may be nil,
// in which case enrichment accepts uploaded CSV only.
func NewAnalysisHandler(rules *revshare.Table, storage gcs.StorageService, log zerolog.Logger) *AnalysisHandler {
	if rules == nil {
		rules = revshare.DefaultTable()
	}
	return &AnalysisHandler{
		rules:   rules,
		storage: storage,
		log:     log,
	}
}

// Fiscal handles GET /api/fiscal?date=
func (h *AnalysisHandler) Fiscal(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		middleware.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}
	d, err := fiscal.Parse(raw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM or YYYY-MM-DD")
		return
	}
	p, ok := fiscal.PeriodOf(d)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Date has no fiscal period")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"date":               d.String(),
		"fiscal_year":        p.YearLabel(),
		"quarter":            fmt.Sprintf("Q%d", p.Quarter),
		"period":             p.String(),
		"year_start":         p.Start().String(),
		"months_to_year_end": fiscal.MonthsToYearEnd(d),
	})
}

type revenueShareRequest struct {
	VendorID          string     `json:"vendor_id"`
	BuyerID           int64      `json:"buyer_id"`
	Amount            float64    `json:"amount"`
	EffectiveDiscount float64    `json:"effective_discount"`
	DiscountRate      *float64   `json:"discount_rate"`
	APR               *float64   `json:"apr"`
	DaysAdvanced      float64    `json:"days_advanced"`
	DueDate           civil.Date `json:"due_date"`
	EstimatedDueDate  civil.Date `json:"estimated_due_date"`
	ClearanceDate     civil.Date `json:"clearance_date"`
}

// RevenueShare handles POST /api/revenue-share. Amounts are in rupees.
func (h *AnalysisHandler) RevenueShare(w http.ResponseWriter, r *http.Request) {
	var req revenueShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BuyerID == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}
	if req.Amount < 0 || req.EffectiveDiscount < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "amount and effective_discount must not be negative")
		return
	}

	inv := domain.FinancedInvoice{
		VendorID:          req.VendorID,
		BuyerID:           req.BuyerID,
		Amount:            req.Amount,
		EffectiveDiscount: req.EffectiveDiscount,
		APR:               req.APR,
		DaysAdvanced:      req.DaysAdvanced,
		DueDate:           req.DueDate,
		EstimatedDueDate:  req.EstimatedDueDate,
		ClearanceDate:     req.ClearanceDate,
	}
	switch {
	case req.DiscountRate != nil:
		inv.DiscountRate = *req.DiscountRate
	case inv.Amount > 0:
		inv.DiscountRate = inv.EffectiveDiscount / inv.Amount * 100
	}

	resp := map[string]interface{}{
		"buyer_id":      req.BuyerID,
		"matched":       false,
		"revenue_share": h.rules.Compute(inv),
	}
	if rule, ok := h.rules.Rule(req.BuyerID); ok {
		resp["matched"] = true
		resp["rule"] = rule.Name
		resp["kind"] = string(rule.Kind)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

type companyView struct {
	PAN                    string          `json:"pan"`
	Name                   string          `json:"name"`
	Industry               string          `json:"industry"`
	Month                  string          `json:"month"`
	CashRichStatus         string          `json:"cash_rich_status"`
	IndicativeRate         string          `json:"indicative_rate"`
	FiscalYear             string          `json:"fiscal_year"`
	ExtrapolatedIntakeLacs float64         `json:"extrapolated_intake_lacs"`
	DependencyPercent      *float64        `json:"dependency_percent"`
	DependencySlab         string          `json:"dependency_slab"`
	Deviations             []deviationView `json:"deviations"`
}

type deviationView struct {
	Metric      string   `json:"metric"`
	Value       float64  `json:"value"`
	Mean        float64  `json:"mean"`
	Percent     *float64 `json:"percent"`
	Performance string   `json:"performance"`
}

type industryView struct {
	Industry  string             `json:"industry"`
	Companies int                `json:"companies"`
	Means     map[string]float64 `json:"means"`
}

// Enrich handles POST /api/enrich. The body is either a company snapshot
// CSV or JSON {"gcs_uri": "gs://..."} naming one.
func (h *AnalysisHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, status, msg := h.readSnapshots(ctx, r)
	if status != 0 {
		middleware.WriteError(w, status, msg)
		return
	}

	snapshots, err := ingest.ReadCompanies(bytes.NewReader(data))
	if err != nil {
		var missing *ingest.MissingColumnError
		if errors.As(err, &missing) {
			middleware.WriteError(w, http.StatusBadRequest, missing.Error())
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid company CSV")
		return
	}

	result, err := benchmark.Enrich(snapshots)
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	companies := make([]companyView, 0, len(result.Companies))
	for _, c := range result.Companies {
		companies = append(companies, toCompanyView(c))
	}
	industries := make([]industryView, 0, len(result.Industries))
	for _, ind := range result.Industries {
		means := make(map[string]float64, len(ind.Means))
		for m, v := range ind.Means {
			means[string(m)] = report.Round2(v)
		}
		industries = append(industries, industryView{Industry: ind.Name, Companies: ind.Companies, Means: means})
	}

	l := logger.FromContext(ctx)
	l.Info().
		Int("snapshots", len(snapshots)).
		Int("companies", len(companies)).
		Msg("Enriched companies")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"companies":  companies,
		"industries": industries,
	})
}

// readSnapshots returns the CSV payload, or a non-zero status and message.
func (h *AnalysisHandler) readSnapshots(ctx context.Context, r *http.Request) ([]byte, int, string) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			GCSURI string `json:"gcs_uri"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, "Invalid request body"
		}
		if !gcs.IsURI(req.GCSURI) {
			return nil, http.StatusBadRequest, "gcs_uri must be a gs:// URI"
		}
		if h.storage == nil {
			return nil, http.StatusServiceUnavailable, "Cloud Storage is not configured"
		}
		data, err := h.storage.FetchFromGCS(ctx, req.GCSURI)
		if err != nil {
			h.log.Error().Err(err).Str("gcs_uri", req.GCSURI).Msg("Failed to fetch snapshot file")
			return nil, http.StatusBadGateway, "Failed to fetch snapshot file"
		}
		return data, 0, ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		return nil, http.StatusBadRequest, "Failed to read request body"
	}
	if len(data) > maxUploadBytes {
		return nil, http.StatusRequestEntityTooLarge, "Upload too large"
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, http.StatusBadRequest, "Empty upload"
	}
	return data, 0, ""
}

func toCompanyView(c benchmark.Company) companyView {
	v := companyView{
		PAN:                    c.PAN,
		Name:                   c.Name,
		Industry:               c.Industry,
		CashRichStatus:         c.Status(),
		IndicativeRate:         c.Rate.String(),
		FiscalYear:             c.FiscalYear,
		ExtrapolatedIntakeLacs: report.Lacs(c.ExtrapolatedIntake),
		DependencySlab:         c.Slab,
		Deviations:             make([]deviationView, 0, len(c.Deviations)),
	}
	if c.Month.IsValid() {
		v.Month = c.Month.String()
	}
	if c.DependencyKnown {
		d := report.Round2(c.Dependency)
		v.DependencyPercent = &d
	}
	for _, d := range c.Deviations {
		dv := deviationView{
			Metric:      string(d.Metric),
			Value:       d.Value,
			Mean:        report.Round2(d.Mean),
			Performance: d.Performance,
		}
		if d.Defined {
			p := report.Round2(d.Percent)
			dv.Percent = &p
		}
		v.Deviations = append(v.Deviations, dv)
	}
	return v
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Source: query.Get("source"),
		Status: jobs.JobStatus(query.Get("status")),
	}
	if limit, ok := intParam(r, "limit"); ok {
		filter.Limit = limit
	}
	if offset, ok := intParam(r, "offset"); ok {
		filter.Offset = offset
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

func intParam(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func optionalMonth(s string) (civil.Date, error) {
	if strings.TrimSpace(s) == "" {
		return civil.Date{}, nil
	}
	d, err := fiscal.Parse(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, err
	}
	return fiscal.MonthStart(d), nil
}
