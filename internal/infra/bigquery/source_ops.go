package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// ListVendorMonthsWithClient returns vendor-buyer-month rows with
// from <= month <= to, ordered by vendor, buyer and month.
func ListVendorMonthsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, from, to civil.Date) ([]*VendorMonthRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			vendor_id,
			vendor_name,
			buyer_id,
			buyer_name,
			DATE_TRUNC(month, MONTH) AS month,
			intake,
			conversion,
			credit_period_days,
			days_advanced,
			max_days_advanced,
			discount,
			platform_fee,
			apr,
			eligible
		FROM %s
		WHERE month >= @from
		  AND month <= @to
		ORDER BY vendor_id, buyer_id, month
	`, ds.Table(vendorMonthlyTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from", Value: from},
		{Name: "to", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListVendorMonths: query read: %w", err)
	}

	var rows []*VendorMonthRow
	for {
		var r VendorMonthRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListVendorMonths: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// ListFinancedInvoicesWithClient returns invoices activated with from <= month <= to.
func ListFinancedInvoicesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, from, to civil.Date) ([]*FinancedInvoiceRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			vendor_id,
			buyer_id,
			DATE_TRUNC(month, MONTH) AS month,
			amount,
			effective_discount,
			discount_rate,
			apr,
			days_advanced,
			due_date,
			estimated_due_date,
			clearance_date
		FROM %s
		WHERE month >= @from
		  AND month <= @to
	`, ds.Table(financedInvoicesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "from", Value: from},
		{Name: "to", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListFinancedInvoices: query read: %w", err)
	}

	var rows []*FinancedInvoiceRow
	for {
		var r FinancedInvoiceRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListFinancedInvoices: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// ListCompanySnapshotsWithClient returns every company snapshot, newest month first.
func ListCompanySnapshotsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*CompanySnapshotRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			pan,
			name,
			month,
			intake,
			cash,
			investments,
			short_term_borrowings,
			long_term_borrowings,
			revenue_growth_percent,
			credit_rating,
			finance_cost_percent,
			annual_revenue,
			turnover_range,
			industry,
			current_ratio,
			receivable_days,
			inventory_days,
			payable_days
		FROM %s
		ORDER BY pan, month DESC
	`, ds.Table(companySnapshotsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCompanySnapshots: query read: %w", err)
	}

	var rows []*CompanySnapshotRow
	for {
		var r CompanySnapshotRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCompanySnapshots: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
