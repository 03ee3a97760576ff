package category

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/window"
)

// Label is the pair of tiers assigned to one partition for one window.
// Either tier is empty when the window is not configured for that axis.
type Label struct {
	Key        window.PartitionKey
	VendorName string
	BuyerName  string
	AsOf       civil.Date
	Window     int
	Intake     IntakeTier
	Conversion ConversionTier
}

// IntakeTierFor grades a snapshot's intake regularity over one window.
func IntakeTierFor(snap window.Snapshot, size int, asOf fiscal.Period, p Policy) IntakeTier {
	h := snap.History
	if !h.HasIntake() {
		return IntakeNone
	}
	if first, ok := fiscal.PeriodOf(h.FirstIntake); ok && first == asOf {
		return IntakeNew
	}

	count := snap.Window(size).IntakeMonths
	th := p.Intake[size]
	switch {
	case th.Regular > 0 && count >= th.Regular:
		return IntakeRegular
	case th.Medium > 0 && count >= th.Medium:
		return IntakeMedium
	case count >= 1:
		return IntakeLow
	default:
		return IntakeNone
	}
}

// ConversionTierFor grades how a snapshot's intake turns into financed
// volume. Rules are applied in order: never converted, new, churned, at
// risk, then the ratio bands of the window.
func ConversionTierFor(snap window.Snapshot, size int, asOf fiscal.Period, p Policy) ConversionTier {
	h := snap.History
	month := fiscal.MonthStart(snap.AsOf)

	if !h.HasConversion() {
		if !h.HasIntake() {
			return ConversionNotTransacted
		}
		if fiscal.MonthsBetween(h.LastIntake, month) <= p.NewIntakeMonths {
			return ConversionNeverNewIntake
		}
		return ConversionNeverOldIntake
	}

	if first, ok := fiscal.PeriodOf(h.FirstConversion); ok && first == asOf {
		return ConversionNew
	}

	if h.RecentWithoutConversion(p.ChurnDryMonths) {
		if fiscal.MonthsBetween(h.LastConversion, month) > p.ChurnMonths {
			return ConversionChurnedLong
		}
		return ConversionChurnedRecent
	}
	if h.RecentWithoutConversion(p.AtRiskDryMonths) {
		return ConversionAtRisk
	}

	rate := snap.Window(size).AccelerationRate()
	switch {
	case rate >= p.HighRatio:
		return ConversionHigh
	case rate >= p.MediumRatio:
		return ConversionMedium
	case rate > 0:
		return ConversionLow
	default:
		return ConversionNotTransacted
	}
}

// Categorize labels every snapshot for each configured window. asOf is the
// fiscal period the run is evaluated against, normally the period of the
// latest month in the dataset.
func Categorize(snapshots []window.Snapshot, asOf fiscal.Period, p Policy) []Label {
	sizes := windowSizes(p)
	out := make([]Label, 0, len(snapshots)*len(sizes))

	for _, snap := range snapshots {
		for _, size := range sizes {
			l := Label{
				Key:        snap.Key,
				VendorName: snap.VendorName,
				BuyerName:  snap.BuyerName,
				AsOf:       snap.AsOf,
				Window:     size,
			}
			if contains(p.IntakeWindows, size) {
				l.Intake = IntakeTierFor(snap, size, asOf, p)
			}
			if contains(p.ConversionWindows, size) {
				l.Conversion = ConversionTierFor(snap, size, asOf, p)
			}
			out = append(out, l)
		}
	}
	return out
}

// ByWindow indexes labels of one partition by window size.
func ByWindow(labels []Label) map[window.PartitionKey]map[int]Label {
	out := make(map[window.PartitionKey]map[int]Label)
	for _, l := range labels {
		m, ok := out[l.Key]
		if !ok {
			m = make(map[int]Label)
			out[l.Key] = m
		}
		m[l.Window] = l
	}
	return out
}

func windowSizes(p Policy) []int {
	var sizes []int
	for _, s := range append(append([]int{}, p.IntakeWindows...), p.ConversionWindows...) {
		if !contains(sizes, s) {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

func contains(sizes []int, size int) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}

// CategorizeEach labels every snapshot against the fiscal period of its own
// as-of month, which is what a month-by-month history needs.
func CategorizeEach(snapshots []window.Snapshot, p Policy) []Label {
	var out []Label
	for _, snap := range snapshots {
		period, ok := fiscal.PeriodOf(snap.AsOf)
		if !ok {
			continue
		}
		out = append(out, Categorize([]window.Snapshot{snap}, period, p)...)
	}
	return out
}
