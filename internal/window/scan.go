package window

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
)

// Scan walks a series once and returns a snapshot for every month present
// in it. Windows are re-summed from their points in month order, the same
// order At uses, so both give bit-identical sums for the same month.
func Scan(s Series, sizes []int) []Snapshot {
	if len(s.Points) == 0 {
		return nil
	}
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}

	first := s.Points[0].Month
	lo := make([]int, len(sizes))
	var hist History

	out := make([]Snapshot, 0, len(s.Points))
	for i, p := range s.Points {
		hist.observe(p)
		snap := newSnapshot(s, p.Month, len(sizes))

		for k, size := range sizes {
			earliest := fiscal.AddMonths(p.Month, -(size - 1))
			for s.Points[lo[k]].Month.Before(earliest) {
				lo[k]++
			}

			st := Stats{Size: size}
			for _, q := range s.Points[lo[k] : i+1] {
				st.add(q)
			}
			st.Span = span(first, p.Month, size)
			snap.Windows[size] = st
		}

		snap.History = hist
		out = append(out, snap)
	}
	return out
}

// At returns the snapshot of s as of the given month, which need not be a
// month with activity. Months after asOf are ignored.
func At(s Series, asOf civil.Date, sizes []int) Snapshot {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	asOf = fiscal.MonthStart(asOf)
	snap := newSnapshot(s, asOf, len(sizes))

	for _, p := range s.Points {
		if p.Month.After(asOf) {
			break
		}
		snap.History.observe(p)
	}

	for _, size := range sizes {
		st := Stats{Size: size}
		earliest := fiscal.AddMonths(asOf, -(size - 1))
		for _, p := range s.Points {
			if p.Month.Before(earliest) || p.Month.After(asOf) {
				continue
			}
			st.add(p)
		}
		if len(s.Points) > 0 && !s.Points[0].Month.After(asOf) {
			st.Span = span(s.Points[0].Month, asOf, size)
		}
		snap.Windows[size] = st
	}
	return snap
}

// ScanAll scans every series.
func ScanAll(series []Series, sizes []int) []Snapshot {
	var out []Snapshot
	for _, s := range series {
		out = append(out, Scan(s, sizes)...)
	}
	return out
}

// AtAll evaluates every series as of the same month.
func AtAll(series []Series, asOf civil.Date, sizes []int) []Snapshot {
	out := make([]Snapshot, 0, len(series))
	for _, s := range series {
		out = append(out, At(s, asOf, sizes))
	}
	return out
}

// LatestMonth returns the newest month across all series.
func LatestMonth(series []Series) (civil.Date, bool) {
	var latest civil.Date
	found := false
	for _, s := range series {
		if n := len(s.Points); n > 0 {
			m := s.Points[n-1].Month
			if !found || m.After(latest) {
				latest = m
				found = true
			}
		}
	}
	return latest, found
}

func newSnapshot(s Series, asOf civil.Date, n int) Snapshot {
	return Snapshot{
		Key:        s.Key,
		VendorName: s.VendorName,
		BuyerName:  s.BuyerName,
		AsOf:       asOf,
		Windows:    make(map[int]Stats, n),
	}
}

func span(first, asOf civil.Date, size int) int {
	covered := fiscal.MonthsBetween(first, asOf) + 1
	if covered > size {
		return size
	}
	return covered
}
