package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertVendorCategoriesWithClient inserts category labels into vendor_categories.
func InsertVendorCategoriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*VendorCategoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := putBatches(ctx, client, ds, vendorCategoriesTable, rows); err != nil {
		return fmt.Errorf("InsertVendorCategories: %w", err)
	}
	return nil
}

// InsertVendorSummariesWithClient inserts summary rows into vendor_summaries.
func InsertVendorSummariesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*VendorSummaryRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := putBatches(ctx, client, ds, vendorSummariesTable, rows); err != nil {
		return fmt.Errorf("InsertVendorSummaries: %w", err)
	}
	return nil
}

// InsertCompanyEnrichmentWithClient inserts enrichment rows into company_enrichment.
func InsertCompanyEnrichmentWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*CompanyEnrichmentRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := putBatches(ctx, client, ds, companyEnrichmentTable, rows); err != nil {
		return fmt.Errorf("InsertCompanyEnrichment: %w", err)
	}
	return nil
}

// InsertIndustryBenchmarksWithClient inserts industry means into industry_benchmarks.
func InsertIndustryBenchmarksWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*IndustryBenchmarkRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := putBatches(ctx, client, ds, industryBenchmarksTable, rows); err != nil {
		return fmt.Errorf("InsertIndustryBenchmarks: %w", err)
	}
	return nil
}

// ListVendorCategoriesWithClient returns the labels of filter.RunID, or of
// the latest successful run when no run is named.
func ListVendorCategoriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter CategoryFilter) ([]*VendorCategoryRow, error) {
	var (
		where  []string
		params []bigquery.QueryParameter
	)

	if filter.RunID != "" {
		where = append(where, "c.run_id = @run_id")
		params = append(params, bigquery.QueryParameter{Name: "run_id", Value: filter.RunID})
	} else {
		where = append(where, fmt.Sprintf(`c.run_id = (
			SELECT run_id FROM %s
			WHERE status = @status
			ORDER BY started_ts DESC
			LIMIT 1
		)`, ds.Table(metricRunsTable)))
		params = append(params, bigquery.QueryParameter{Name: "status", Value: RunStatusSuccess})
	}
	if filter.VendorID != "" {
		where = append(where, "c.vendor_id = @vendor_id")
		params = append(params, bigquery.QueryParameter{Name: "vendor_id", Value: filter.VendorID})
	}
	if filter.WindowMonths > 0 {
		where = append(where, "c.window_months = @window_months")
		params = append(params, bigquery.QueryParameter{Name: "window_months", Value: filter.WindowMonths})
	}

	limit := ""
	if filter.Limit > 0 {
		limit = "LIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			c.run_id,
			c.vendor_id,
			c.vendor_name,
			c.buyer_id,
			c.buyer_name,
			c.level,
			c.as_of,
			c.fiscal_period,
			c.window_months,
			c.intake_tier,
			c.conversion_tier,
			c.created_ts
		FROM %s c
		WHERE %s
		ORDER BY c.vendor_id, c.buyer_id, c.as_of, c.window_months
		%s
	`, ds.Table(vendorCategoriesTable), strings.Join(where, "\n\t\t  AND "), limit))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListVendorCategories: query read: %w", err)
	}

	var rows []*VendorCategoryRow
	for {
		var r VendorCategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListVendorCategories: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
