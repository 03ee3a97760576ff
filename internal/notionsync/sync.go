package notionsync

import (
	"context"
	"fmt"

	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize is the default number of labels processed between progress logs.
	BatchSize = 100
)

// Options tune a sync.
type Options struct {
	BatchSize int
	DryRun    bool
}

// Result counts what a sync did, or would have done in dry-run mode.
type Result struct {
	Created int
	Updated int
	Deleted int
	Failed  int
}

// SyncVendorCategories mirrors vendor labels from the warehouse into a
// Notion database. Pages are matched on their Key property:
//  1. Queries all existing Notion pages
//  2. Archives stale pages (no key, duplicate key, or a key not in the label set)
//  3. Updates matched pages and creates the rest
//
// Stale pages are only archived when the filter selects a whole run, since a
// narrowed read cannot tell stale labels from filtered-out ones.
func SyncVendorCategories(ctx context.Context, src CategorySource, notionClient NotionService, notionDBID string, filter bq.CategoryFilter, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)
	if opts.BatchSize <= 0 {
		opts.BatchSize = BatchSize
	}
	prune := filter.VendorID == "" && filter.WindowMonths == 0 && filter.Limit == 0

	log.Info().
		Str("run_id", filter.RunID).
		Str("vendor_id", filter.VendorID).
		Int("window_months", filter.WindowMonths).
		Bool("prune", prune).
		Bool("dry_run", opts.DryRun).
		Msg("Starting vendor label sync to Notion")

	rows, err := src.ListVendorCategories(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("SyncVendorCategories: query labels: %w", err)
	}
	log.Info().Int("label_count", len(rows)).Msg("Retrieved vendor labels from BigQuery")

	valid := make(map[string]bool, len(rows))
	for _, row := range rows {
		valid[LabelKey(row)] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncVendorCategories: %w", err)
	}
	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	res := &Result{}
	existing := make(map[string]string, len(notionPages))
	var stale []notionapi.Page
	for _, page := range notionPages {
		key := extractLabelKey(page)
		_, dup := existing[key]
		switch {
		case key == "" || dup || !valid[key]:
			stale = append(stale, page)
		default:
			existing[key] = string(page.ID)
		}
	}

	if prune {
		for _, page := range stale {
			key := extractLabelKey(page)
			if opts.DryRun {
				log.Info().
					Str("key", key).
					Str("page_id", string(page.ID)).
					Msg("[DRY RUN] Would archive stale Notion page")
				res.Deleted++
				continue
			}
			if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
				log.Warn().
					Err(err).
					Str("key", key).
					Str("page_id", string(page.ID)).
					Msg("Failed to archive stale Notion page")
				res.Failed++
				continue
			}
			res.Deleted++
		}
		if res.Deleted > 0 {
			log.Info().Int("deleted", res.Deleted).Msg("Archived stale vendor labels in Notion")
		}
	}

	for i := 0; i < len(rows); i += opts.BatchSize {
		end := i + opts.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		log.Info().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, row := range rows[i:end] {
			syncLabel(ctx, notionClient, notionDBID, row, existing, opts.DryRun, res)
		}
	}

	log.Info().
		Int("deleted", res.Deleted).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int("total", len(rows)).
		Msg("Vendor label sync completed")

	return res, nil
}

func syncLabel(ctx context.Context, notionClient NotionService, notionDBID string, row *bq.VendorCategoryRow, existing map[string]string, dryRun bool, res *Result) {
	log := logger.FromContext(ctx)
	key := LabelKey(row)
	pageID, found := existing[key]

	if dryRun {
		if found {
			log.Info().Str("key", key).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
			res.Updated++
		} else {
			log.Info().Str("key", key).Msg("[DRY RUN] Would create Notion page")
			res.Created++
		}
		return
	}

	props := VendorCategoryToNotionProperties(row)
	if found {
		if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
			log.Warn().Err(err).Str("key", key).Str("page_id", pageID).Msg("Failed to update Notion page")
			res.Failed++
			return
		}
		res.Updated++
		return
	}

	page, err := notionClient.CreatePage(ctx, notionDBID, props)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to create Notion page")
		res.Failed++
		return
	}
	// Later rows with the same key update this page instead of duplicating it.
	existing[key] = string(page.ID)
	log.Debug().Str("key", key).Str("page_id", string(page.ID)).Msg("Created Notion page")
	res.Created++
}

// queryAllNotionPages follows the query cursor until every page is read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
