// Package report shapes computed metrics into presentation rows: the vendor
// summary, the fiscal-quarter pivot and the enrichment table. Amounts leave
// this package in lacs, rounded to two decimals.
package report

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/window"
	"github.com/shopspring/decimal"
)

// WindowSummary is the presentation of one trailing window.
type WindowSummary struct {
	Size int

	IntakeCount     int
	ConversionCount int

	IntakeLacs               float64
	IntakeMonthlyAvgLacs     float64
	ConversionLacs           float64
	ConversionMonthlyAvgLacs float64
	DiscountMonthlyAvgLacs   float64
	RevenueMonthlyAvgLacs    float64

	AccelerationPercent float64
	CreditPeriod        float64
	MaxDays             float64
	ActualDays          float64
	APR                 float64

	IntakeTier     category.IntakeTier
	ConversionTier category.ConversionTier
}

// VendorSummary is one vendor's row as of a month.
type VendorSummary struct {
	VendorID   string
	VendorName string
	AsOf       civil.Date
	Period     string

	IntakeBuyers     []string
	ConversionBuyers []string

	Windows []WindowSummary

	FirstIntake     civil.Date
	LastIntake      civil.Date
	FirstConversion civil.Date
	LastConversion  civil.Date
}

// Window returns the summary for size, if present.
func (v VendorSummary) Window(size int) (WindowSummary, bool) {
	for _, w := range v.Windows {
		if w.Size == size {
			return w, true
		}
	}
	return WindowSummary{}, false
}

// Summarize builds one row per vendor snapshot. records supply the buyer
// lists, which cover the largest of sizes ending at the snapshot month.
// labels are matched to snapshots by partition and window.
func Summarize(records []domain.TransactionRecord, snapshots []window.Snapshot, labels []category.Label, sizes []int) []VendorSummary {
	if len(sizes) == 0 {
		sizes = []int{window.SixMonths, window.TwelveMonths}
	}
	widest := 0
	for _, s := range sizes {
		if s > widest {
			widest = s
		}
	}

	byVendor := make(map[string][]domain.TransactionRecord)
	for _, r := range records {
		byVendor[r.VendorID] = append(byVendor[r.VendorID], r)
	}
	type labelKey struct {
		key  window.PartitionKey
		asOf civil.Date
		size int
	}
	tiers := make(map[labelKey]category.Label, len(labels))
	for _, l := range labels {
		tiers[labelKey{l.Key, l.AsOf, l.Window}] = l
	}

	out := make([]VendorSummary, 0, len(snapshots))
	for _, snap := range snapshots {
		row := VendorSummary{
			VendorID:        snap.Key.VendorID,
			VendorName:      snap.VendorName,
			AsOf:            snap.AsOf,
			FirstIntake:     snap.History.FirstIntake,
			LastIntake:      snap.History.LastIntake,
			FirstConversion: snap.History.FirstConversion,
			LastConversion:  snap.History.LastConversion,
		}
		if p, ok := fiscal.PeriodOf(snap.AsOf); ok {
			row.Period = p.String()
		}
		row.IntakeBuyers, row.ConversionBuyers = buyers(byVendor[snap.Key.VendorID], snap.AsOf, widest)

		for _, size := range sizes {
			ws := summarizeWindow(snap.Window(size))
			if l, ok := tiers[labelKey{snap.Key, snap.AsOf, size}]; ok {
				ws.IntakeTier = l.Intake
				ws.ConversionTier = l.Conversion
			}
			row.Windows = append(row.Windows, ws)
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VendorID != out[j].VendorID {
			return out[i].VendorID < out[j].VendorID
		}
		return out[i].AsOf.Before(out[j].AsOf)
	})
	return out
}

func summarizeWindow(st window.Stats) WindowSummary {
	return WindowSummary{
		Size:                     st.Size,
		IntakeCount:              st.IntakeMonths,
		ConversionCount:          st.ConversionMonths,
		IntakeLacs:               Lacs(st.Intake),
		IntakeMonthlyAvgLacs:     Lacs(st.MonthlyAverage(st.Intake)),
		ConversionLacs:           Lacs(st.Conversion),
		ConversionMonthlyAvgLacs: Lacs(st.MonthlyAverage(st.Conversion)),
		DiscountMonthlyAvgLacs:   Lacs(st.MonthlyAverage(st.Discount)),
		RevenueMonthlyAvgLacs:    Lacs(st.MonthlyAverage(st.Revenue())),
		AccelerationPercent:      Round2(st.AccelerationRate() * 100),
		CreditPeriod:             Round2(st.WeightedCreditPeriod()),
		MaxDays:                  Round2(st.WeightedMaxDays()),
		ActualDays:               Round2(st.WeightedDaysAdvanced()),
		APR:                      Round2(st.WeightedAPR()),
	}
}

// buyers lists distinct buyer names with intake and with conversion in the
// size months ending at asOf.
func buyers(records []domain.TransactionRecord, asOf civil.Date, size int) (intake, conversion []string) {
	earliest := fiscal.AddMonths(asOf, -(size - 1))
	seenIntake := make(map[string]bool)
	seenConversion := make(map[string]bool)

	for _, r := range records {
		if r.Month.Before(earliest) || r.Month.After(asOf) {
			continue
		}
		name := r.BuyerName
		if name == "" {
			continue
		}
		if r.Intake > 0 && !seenIntake[name] {
			seenIntake[name] = true
			intake = append(intake, name)
		}
		if r.Conversion > 0 && !seenConversion[name] {
			seenConversion[name] = true
			conversion = append(conversion, name)
		}
	}
	sort.Strings(intake)
	sort.Strings(conversion)
	return intake, conversion
}

// Lacs converts base units to lacs rounded to two decimals.
func Lacs(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Div(decimal.NewFromInt(domain.Lac)).Round(2).Float64()
	return f
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
