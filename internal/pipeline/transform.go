package pipeline

import (
	"time"

	bigquerylib "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/benchmark"
	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/report"
	"github.com/dvloznov/vendor-insights/internal/window"
)

// transformLabels converts category labels into vendor_categories rows.
func transformLabels(runID string, labels []category.Label, now time.Time) []*bq.VendorCategoryRow {
	rows := make([]*bq.VendorCategoryRow, 0, len(labels))
	for _, l := range labels {
		level := window.VendorLevel
		if l.Key.BuyerID != 0 {
			level = window.BuyerLevel
		}
		rows = append(rows, &bq.VendorCategoryRow{
			RunID:          runID,
			VendorID:       l.Key.VendorID,
			VendorName:     l.VendorName,
			BuyerID:        bigquerylib.NullInt64{Int64: l.Key.BuyerID, Valid: l.Key.BuyerID != 0},
			BuyerName:      nullString(l.BuyerName),
			Level:          level.String(),
			AsOf:           l.AsOf,
			FiscalPeriod:   periodLabel(l.AsOf),
			WindowMonths:   int64(l.Window),
			IntakeTier:     nullString(string(l.Intake)),
			ConversionTier: nullString(string(l.Conversion)),
			CreatedTS:      now,
		})
	}
	return rows
}

// transformSummaries converts vendor summaries into vendor_summaries rows,
// one per vendor, as-of month and window.
func transformSummaries(runID string, summaries []report.VendorSummary, now time.Time) []*bq.VendorSummaryRow {
	var rows []*bq.VendorSummaryRow
	for _, s := range summaries {
		for _, w := range s.Windows {
			rows = append(rows, &bq.VendorSummaryRow{
				RunID:        runID,
				VendorID:     s.VendorID,
				VendorName:   s.VendorName,
				AsOf:         s.AsOf,
				FiscalPeriod: s.Period,
				WindowMonths: int64(w.Size),

				IntakeBuyers:     s.IntakeBuyers,
				ConversionBuyers: s.ConversionBuyers,

				IntakeCount:              int64(w.IntakeCount),
				IntakeLacs:               w.IntakeLacs,
				IntakeMonthlyAvgLacs:     w.IntakeMonthlyAvgLacs,
				ConversionCount:          int64(w.ConversionCount),
				ConversionLacs:           w.ConversionLacs,
				ConversionMonthlyAvgLacs: w.ConversionMonthlyAvgLacs,
				DiscountMonthlyAvgLacs:   w.DiscountMonthlyAvgLacs,
				RevenueMonthlyAvgLacs:    w.RevenueMonthlyAvgLacs,
				AccelerationPercent:      w.AccelerationPercent,

				CreditPeriodDays: w.CreditPeriod,
				MaxDays:          w.MaxDays,
				ActualDays:       w.ActualDays,
				APR:              w.APR,

				IntakeTier:     nullString(string(w.IntakeTier)),
				ConversionTier: nullString(string(w.ConversionTier)),

				FirstIntake:     nullDate(s.FirstIntake),
				LastIntake:      nullDate(s.LastIntake),
				FirstConversion: nullDate(s.FirstConversion),
				LastConversion:  nullDate(s.LastConversion),

				CreatedTS: now,
			})
		}
	}
	return rows
}

// transformCompanies converts enriched companies into company_enrichment rows.
func transformCompanies(runID string, companies []benchmark.Company, now time.Time) []*bq.CompanyEnrichmentRow {
	rows := make([]*bq.CompanyEnrichmentRow, 0, len(companies))
	for _, c := range companies {
		row := &bq.CompanyEnrichmentRow{
			RunID:                  runID,
			PAN:                    c.PAN,
			Name:                   c.Name,
			Industry:               c.Industry,
			Month:                  c.Month,
			CashRichStatus:         c.Status(),
			IndicativeRate:         c.Rate.String(),
			FiscalYear:             c.FiscalYear,
			ExtrapolatedIntakeLacs: report.Lacs(c.ExtrapolatedIntake),
			DependencyPercent:      bigquerylib.NullFloat64{Float64: report.Round2(c.Dependency), Valid: c.DependencyKnown},
			DependencySlab:         c.Slab,
			CreatedTS:              now,
		}
		for _, d := range c.Deviations {
			row.Deviations = append(row.Deviations, &bq.MetricDeviationRow{
				Metric:      string(d.Metric),
				Value:       bigquerylib.NullFloat64{Float64: d.Value, Valid: d.Defined},
				Mean:        bigquerylib.NullFloat64{Float64: d.Mean, Valid: d.Defined},
				Percent:     bigquerylib.NullFloat64{Float64: report.Round2(d.Percent), Valid: d.Defined},
				Performance: nullString(d.Performance),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// transformIndustries converts industry means into industry_benchmarks rows.
func transformIndustries(runID string, industries []benchmark.Industry, now time.Time) []*bq.IndustryBenchmarkRow {
	rows := make([]*bq.IndustryBenchmarkRow, 0, len(industries))
	for _, ind := range industries {
		rows = append(rows, &bq.IndustryBenchmarkRow{
			RunID:          runID,
			Industry:       ind.Name,
			Companies:      int64(ind.Companies),
			CurrentRatio:   mean(ind, benchmark.CurrentRatio),
			ReceivableDays: mean(ind, benchmark.ReceivableDays),
			InventoryDays:  mean(ind, benchmark.InventoryDays),
			PayableDays:    mean(ind, benchmark.PayableDays),
			CreatedTS:      now,
		})
	}
	return rows
}

func mean(ind benchmark.Industry, m benchmark.Metric) bigquerylib.NullFloat64 {
	v, ok := ind.Mean(m)
	return bigquerylib.NullFloat64{Float64: report.Round2(v), Valid: ok}
}

func nullString(s string) bigquerylib.NullString {
	return bigquerylib.NullString{StringVal: s, Valid: s != ""}
}

func nullDate(d civil.Date) bigquerylib.NullDate {
	return bigquerylib.NullDate{Date: d, Valid: d.IsValid() && d.Year > 0}
}

func periodLabel(d civil.Date) string {
	if p, ok := fiscal.PeriodOf(d); ok {
		return p.String()
	}
	return ""
}
