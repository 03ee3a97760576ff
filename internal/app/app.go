// Package app wires configured clients into pipeline dependencies for the
// service entry points.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/config"
	"github.com/dvloznov/vendor-insights/internal/gcsuploader"
	infraBQ "github.com/dvloznov/vendor-insights/internal/infra/bigquery"
	"github.com/dvloznov/vendor-insights/internal/infra/postgres"
	"github.com/dvloznov/vendor-insights/internal/insights"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/pipeline"
	"github.com/dvloznov/vendor-insights/internal/revshare"
)

// Services holds the long-lived clients a process shares across runs.
type Services struct {
	Config   config.Config
	Repo     *infraBQ.Repository
	Storage  *gcsuploader.GCSStorageService
	Rules    *revshare.Table
	Policy   category.Policy
	Narrator pipeline.Narrator

	mu sync.Mutex
	pg *postgres.Source
}

// Open creates the warehouse and storage clients, loads the revenue-share
// table and policy, and the narrator when insights are enabled. The
// Postgres pool is opened on first use.
func Open(ctx context.Context, cfg config.Config) (*Services, error) {
	log := logger.FromContext(ctx)

	rules, err := revshare.LoadTableFile(cfg.RevShare.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	policy, err := cfg.Policy.CategoryPolicy()
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{ProjectID: cfg.GCP.ProjectID, DatasetID: cfg.GCP.Dataset})
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	s := &Services{
		Config: cfg,
		Repo:   repo,
		Rules:  rules,
		Policy: policy,
	}

	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cloud Storage unavailable, report export and gs:// extracts disabled")
	} else {
		s.Storage = storage
	}

	if cfg.Insights.Enabled {
		gen, err := insights.NewGeminiGenerator(ctx, cfg.Insights.Model)
		if err != nil {
			log.Warn().Err(err).Msg("Narrative model unavailable, narratives disabled")
		} else {
			s.Narrator = insights.NewNarrator(gen)
		}
	}

	log.Info().
		Str("project", cfg.GCP.ProjectID).
		Str("dataset", cfg.GCP.Dataset).
		Str("default_source", cfg.Source).
		Int("revshare_rules", len(rules.Rules())).
		Bool("narratives", s.Narrator != nil).
		Msg("Services ready")
	return s, nil
}

// Resolve implements pipeline.DepsResolver.
func (s *Services) Resolve(ctx context.Context, source string) (pipeline.Deps, error) {
	if source == "" {
		source = s.Config.Source
	}

	deps := pipeline.Deps{
		Rules:        s.Rules,
		Policy:       s.Policy,
		Narrator:     s.Narrator,
		Bucket:       s.Config.GCP.Bucket,
		ReportPrefix: s.Config.GCP.ReportPrefix,
	}
	if s.Repo != nil {
		deps.Results = s.Repo
	}
	if s.Storage != nil {
		deps.Storage = s.Storage
	}

	switch source {
	case config.SourceBigQuery:
		if s.Repo == nil {
			return pipeline.Deps{}, fmt.Errorf("Resolve: warehouse not configured")
		}
		wh := pipeline.NewWarehouseSource(s.Repo)
		deps.Transactions = wh
		deps.Companies = wh

	case config.SourcePostgres:
		pg, err := s.postgres(ctx)
		if err != nil {
			return pipeline.Deps{}, fmt.Errorf("Resolve: %w", err)
		}
		deps.Transactions = pg
		// Company financials only live in the warehouse.
		if s.Repo != nil {
			deps.Companies = pipeline.NewWarehouseSource(s.Repo)
		}

	case config.SourceCSV:
		if s.Config.CSV.Transactions == "" {
			return pipeline.Deps{}, fmt.Errorf("Resolve: csv.transactions is not configured")
		}
		src := &pipeline.CSVSource{
			TransactionsPath: s.Config.CSV.Transactions,
			InvoicesPath:     s.Config.CSV.Invoices,
			CompaniesPath:    s.Config.CSV.Companies,
		}
		if s.Storage != nil {
			src.Storage = s.Storage
		}
		deps.Transactions = src
		deps.Companies = src

	default:
		return pipeline.Deps{}, fmt.Errorf("Resolve: unknown source %q", source)
	}
	return deps, nil
}

func (s *Services) postgres(ctx context.Context) (*postgres.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pg != nil {
		return s.pg, nil
	}
	pg, err := postgres.NewSource(context.WithoutCancel(ctx), s.Config.Postgres.DSN(), s.Config.Postgres.MaxConns)
	if err != nil {
		return nil, err
	}
	s.pg = pg
	return pg, nil
}

// Close releases every client.
func (s *Services) Close() {
	s.mu.Lock()
	if s.pg != nil {
		s.pg.Close()
	}
	s.mu.Unlock()
	if s.Storage != nil {
		_ = s.Storage.Close()
	}
	if s.Repo != nil {
		_ = s.Repo.Close()
	}
}
