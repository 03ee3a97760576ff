// Package window computes trailing-window statistics over monthly vendor
// activity. A window of N months ending at an as-of month covers that month
// and the N-1 calendar months before it.
package window

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
)

// Standard window sizes in months.
const (
	SixMonths      = 6
	TwelveMonths   = 12
	EighteenMonths = 18
)

// DefaultSizes are the windows computed when none are configured.
var DefaultSizes = []int{SixMonths, TwelveMonths, EighteenMonths}

// Level selects how records are grouped into series.
type Level int

const (
	// VendorLevel sums a vendor's activity across buyers.
	VendorLevel Level = iota
	// BuyerLevel keeps one series per vendor and buyer.
	BuyerLevel
)

func (l Level) String() string {
	if l == BuyerLevel {
		return "vendor_buyer"
	}
	return "vendor"
}

// PartitionKey identifies a series. BuyerID is 0 at vendor level.
type PartitionKey struct {
	VendorID string
	BuyerID  int64
}

// Point is one month of activity in a series. Weighted fields hold the
// metric multiplied by intake so they can be summed across months.
type Point struct {
	Month        civil.Date
	Intake       float64
	Conversion   float64
	Discount     float64
	PlatformFee  float64
	RevenueShare float64

	CreditPeriodWeighted float64
	MaxDaysWeighted      float64
	DaysAdvancedWeighted float64
	APRWeighted          float64
}

// Series is the month-ordered activity of one partition.
type Series struct {
	Key        PartitionKey
	VendorName string
	BuyerName  string
	Points     []Point
}

// Partition groups consolidated records into series at the given level.
// Series are ordered by key and points by month.
func Partition(records []domain.TransactionRecord, level Level) []Series {
	type monthKey struct {
		key   PartitionKey
		month civil.Date
	}

	byKey := make(map[PartitionKey]*Series)
	points := make(map[monthKey]*Point)
	var keys []PartitionKey

	for _, rec := range records {
		key := PartitionKey{VendorID: rec.VendorID}
		if level == BuyerLevel {
			key.BuyerID = rec.BuyerID
		}

		s, ok := byKey[key]
		if !ok {
			s = &Series{Key: key}
			byKey[key] = s
			keys = append(keys, key)
		}
		if s.VendorName == "" {
			s.VendorName = rec.VendorName
		}
		if level == BuyerLevel && s.BuyerName == "" {
			s.BuyerName = rec.BuyerName
		}

		month := civil.Date{Year: rec.Month.Year, Month: rec.Month.Month, Day: 1}
		mk := monthKey{key: key, month: month}
		p, ok := points[mk]
		if !ok {
			p = &Point{Month: month}
			points[mk] = p
		}
		p.add(rec)
	}

	for mk, p := range points {
		s := byKey[mk.key]
		s.Points = append(s.Points, *p)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].VendorID != keys[j].VendorID {
			return keys[i].VendorID < keys[j].VendorID
		}
		return keys[i].BuyerID < keys[j].BuyerID
	})

	out := make([]Series, 0, len(keys))
	for _, k := range keys {
		s := byKey[k]
		sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Month.Before(s.Points[j].Month) })
		out = append(out, *s)
	}
	return out
}

func (p *Point) add(rec domain.TransactionRecord) {
	p.Intake += rec.Intake
	p.Conversion += rec.Conversion
	p.Discount += rec.Discount
	p.PlatformFee += rec.PlatformFee
	p.RevenueShare += rec.RevenueShare

	p.CreditPeriodWeighted += rec.CreditPeriodDays * rec.Intake
	p.MaxDaysWeighted += rec.MaxDaysAdvanced * rec.Intake
	p.DaysAdvancedWeighted += rec.DaysAdvanced * rec.Intake
	if rec.APR != nil {
		p.APRWeighted += *rec.APR * rec.Intake
	}
}
