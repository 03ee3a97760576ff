package report

import (
	"sort"

	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/window"
)

// QuarterCell holds one partition's totals for one fiscal quarter, in lacs.
type QuarterCell struct {
	IntakeLacs     float64
	ConversionLacs float64
}

// QuarterRow is one partition across fiscal quarters.
type QuarterRow struct {
	Key        window.PartitionKey
	VendorName string
	BuyerName  string
	Cells      map[fiscal.Period]QuarterCell
}

// First returns the earliest quarter with positive value of the selected
// amount, and false when there is none.
func (r QuarterRow) First(periods []fiscal.Period, conversion bool) (fiscal.Period, bool) {
	for _, p := range periods {
		if r.positive(p, conversion) {
			return p, true
		}
	}
	return fiscal.Period{}, false
}

// Last is First scanning from the newest quarter.
func (r QuarterRow) Last(periods []fiscal.Period, conversion bool) (fiscal.Period, bool) {
	for i := len(periods) - 1; i >= 0; i-- {
		if r.positive(periods[i], conversion) {
			return periods[i], true
		}
	}
	return fiscal.Period{}, false
}

func (r QuarterRow) positive(p fiscal.Period, conversion bool) bool {
	c := r.Cells[p]
	if conversion {
		return c.ConversionLacs > 0
	}
	return c.IntakeLacs > 0
}

// QuarterPivot lays intake and conversion out by fiscal quarter.
type QuarterPivot struct {
	Periods []fiscal.Period
	Rows    []QuarterRow
}

// PivotQuarters sums each series into fiscal quarters. Periods lists every
// quarter seen in any series, oldest first.
func PivotQuarters(series []window.Series) QuarterPivot {
	seen := make(map[fiscal.Period]bool)
	var pivot QuarterPivot

	for _, s := range series {
		raw := make(map[fiscal.Period]QuarterCell)
		for _, p := range s.Points {
			period, ok := fiscal.PeriodOf(p.Month)
			if !ok {
				continue
			}
			c := raw[period]
			c.IntakeLacs += p.Intake
			c.ConversionLacs += p.Conversion
			raw[period] = c
			seen[period] = true
		}

		row := QuarterRow{Key: s.Key, VendorName: s.VendorName, BuyerName: s.BuyerName, Cells: make(map[fiscal.Period]QuarterCell, len(raw))}
		for period, c := range raw {
			row.Cells[period] = QuarterCell{IntakeLacs: Lacs(c.IntakeLacs), ConversionLacs: Lacs(c.ConversionLacs)}
		}
		pivot.Rows = append(pivot.Rows, row)
	}

	for p := range seen {
		pivot.Periods = append(pivot.Periods, p)
	}
	sort.Slice(pivot.Periods, func(i, j int) bool { return pivot.Periods[i].Less(pivot.Periods[j]) })
	return pivot
}
