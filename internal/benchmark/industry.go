package benchmark

import (
	"sort"
	"strings"

	"github.com/dvloznov/vendor-insights/internal/domain"
)

// Metric names a working-capital ratio compared against the industry.
type Metric string

const (
	CurrentRatio   Metric = "current_ratio"
	ReceivableDays Metric = "receivable_days"
	InventoryDays  Metric = "inventory_days"
	PayableDays    Metric = "payable_days"
)

// Metrics lists every benchmarked ratio in report order.
var Metrics = []Metric{CurrentRatio, ReceivableDays, InventoryDays, PayableDays}

// Performance grades of a deviation.
const (
	Good    = "Good"
	Average = "Average"
	Bad     = "Bad"
)

// MetricValue returns the snapshot's value for m, or nil when absent.
func MetricValue(s domain.CompanySnapshot, m Metric) *float64 {
	switch m {
	case CurrentRatio:
		return s.CurrentRatio
	case ReceivableDays:
		return s.ReceivableDays
	case InventoryDays:
		return s.InventoryDays
	case PayableDays:
		return s.PayableDays
	}
	return nil
}

// Industry holds the mean of each metric across the companies of one
// industry. A metric no company reported is absent from Means.
type Industry struct {
	Name      string
	Companies int
	Means     map[Metric]float64
}

// Mean returns the industry mean for m.
func (i Industry) Mean(m Metric) (float64, bool) {
	v, ok := i.Means[m]
	return v, ok
}

// IndustryBenchmarks averages each metric per industry, skipping missing
// values. Snapshots without an industry are ignored. The result is sorted
// by industry name.
func IndustryBenchmarks(snapshots []domain.CompanySnapshot) []Industry {
	type acc struct {
		companies int
		sums      map[Metric]float64
		counts    map[Metric]int
	}
	byName := make(map[string]*acc)

	for _, s := range snapshots {
		name := strings.TrimSpace(s.Industry)
		if name == "" {
			continue
		}
		a, ok := byName[name]
		if !ok {
			a = &acc{sums: make(map[Metric]float64), counts: make(map[Metric]int)}
			byName[name] = a
		}
		a.companies++
		for _, m := range Metrics {
			if v := MetricValue(s, m); v != nil {
				a.sums[m] += *v
				a.counts[m]++
			}
		}
	}

	out := make([]Industry, 0, len(byName))
	for name, a := range byName {
		ind := Industry{Name: name, Companies: a.companies, Means: make(map[Metric]float64)}
		for m, n := range a.counts {
			ind.Means[m] = a.sums[m] / float64(n)
		}
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Deviation is the absolute distance from the mean as a percentage of it.
// It is undefined when the mean is zero.
func Deviation(value, mean float64) (float64, bool) {
	if mean == 0 {
		return 0, false
	}
	d := (value - mean) / mean * 100
	if d < 0 {
		d = -d
	}
	return d, true
}

// Performance grades a deviation percentage.
func Performance(deviation float64) string {
	switch {
	case deviation <= 20:
		return Good
	case deviation <= 50:
		return Average
	default:
		return Bad
	}
}
