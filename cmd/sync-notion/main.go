package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/config"
	infraBQ "github.com/dvloznov/vendor-insights/internal/infra/bigquery"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/notionsync"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	runID := flag.String("run-id", "", "Metric run to publish (default: latest successful run)")
	vendorID := flag.String("vendor", "", "Only sync labels of this vendor PAN")
	window := flag.Int("window", 0, "Only sync labels of this window in months")
	notionToken := flag.String("notion-token", cfg.Notion.Token, "Notion API token (or NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", cfg.Notion.DatabaseID, "Notion database ID (or NOTION_DATABASE_ID)")
	batchSize := flag.Int("batch-size", cfg.Notion.BatchSize, "Labels processed between progress logs")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{ProjectID: cfg.GCP.ProjectID, DatasetID: cfg.GCP.Dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	filter := bq.CategoryFilter{
		RunID:        *runID,
		VendorID:     strings.ToUpper(strings.TrimSpace(*vendorID)),
		WindowMonths: *window,
	}
	opts := notionsync.Options{BatchSize: *batchSize, DryRun: *dryRun}

	res, err := notionsync.SyncVendorCategories(ctx, repo, notionsync.NewNotionClient(*notionToken), *notionDBID, filter, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n", res.Created, res.Updated, res.Deleted, res.Failed)
}
