// Package pipeline runs a metrics computation end to end: extract, revenue
// attribution, window aggregation, categorization, summaries, enrichment,
// persistence and report export.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/revshare"
)

// Request describes one run.
type Request struct {
	// AsOf is the evaluation month. Zero means the latest month with data.
	AsOf civil.Date `json:"as_of"`
	// From is the first month read. Zero means HistoryMonths before AsOf.
	From          civil.Date `json:"from"`
	HistoryMonths int        `json:"history_months,omitempty"`

	// Source names where the data came from, recorded on the run.
	Source string `json:"source"`

	// History labels every month of every series instead of AsOf only.
	History bool `json:"history"`
	Enrich  bool `json:"enrich"`
	Export  bool `json:"export"`
	Narrate bool `json:"narrate"`
}

// Deps holds the collaborators of a run. Only Transactions is required;
// a nil Results skips bookkeeping and persistence, a nil Storage skips export.
type Deps struct {
	Transactions TransactionSource
	Companies    CompanySource
	Results      ResultWriter
	Storage      StorageService
	Narrator     Narrator

	Rules  *revshare.Table
	Policy category.Policy

	Bucket       string
	ReportPrefix string

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// NewMetricsPipeline creates the standard run pipeline.
func NewMetricsPipeline(deps Deps) *Pipeline {
	return NewPipeline(
		&StartRunStep{Results: deps.Results},
		&ExtractStep{Transactions: deps.Transactions, Companies: deps.Companies, Now: deps.Now},
		&AttributeStep{Rules: deps.Rules},
		&AggregateStep{Policy: deps.Policy},
		&CategorizeStep{Policy: deps.Policy},
		&SummarizeStep{Policy: deps.Policy},
		&EnrichStep{},
		&PersistStep{Results: deps.Results, Now: deps.Now},
		&NarrateStep{Narrator: deps.Narrator},
		&ExportStep{Storage: deps.Storage, Bucket: deps.Bucket, Prefix: deps.ReportPrefix},
		&MarkSuccessStep{Results: deps.Results},
	)
}

// RunMetrics executes a run and returns its final state. Once a run ID has
// been issued, any failure marks the run FAILED before returning.
func RunMetrics(ctx context.Context, req Request, deps Deps) (*PipelineState, error) {
	if deps.Transactions == nil {
		return nil, fmt.Errorf("RunMetrics: no transaction source")
	}
	if deps.Policy.Intake == nil {
		deps.Policy = category.DefaultPolicy()
	}

	state := &PipelineState{Request: req}
	start := time.Now()
	err := NewMetricsPipeline(deps).Execute(ctx, state)

	log := logger.ForRun(ctx, state.RunID, state.AsOf.String())
	if err != nil {
		if state.RunID != "" && deps.Results != nil {
			deps.Results.MarkMetricRunFailed(context.WithoutCancel(ctx), state.RunID, err)
		}
		log.Error().Err(err).Msg("Metrics run failed")
		return state, err
	}

	log.Info().
		Int("labels", len(state.Labels)).
		Int("summaries", len(state.Summaries)).
		Dur("duration", time.Since(start)).
		Msg("Metrics run finished")
	return state, nil
}
