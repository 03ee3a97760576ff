package domain

import (
	"sort"

	"cloud.google.com/go/civil"
)

// TransactionRecord is one vendor-buyer-month of invoice activity.
// Intake is the value of invoices uploaded (top of funnel), Conversion the
// value actually financed (bottom of funnel). All amounts are base currency units.
type TransactionRecord struct {
	VendorID   string // PAN
	VendorName string
	BuyerID    int64
	BuyerName  string
	Month      civil.Date // always the first day of the month

	Intake     float64
	Conversion float64

	CreditPeriodDays float64  // intake-weighted days between invoice date and due date
	DaysAdvanced     float64  // conversion-weighted days paid early
	MaxDaysAdvanced  float64  // intake-weighted maximum possible days early
	Discount         float64  // effective discount earned on financed invoices
	PlatformFee      float64
	APR              *float64 // nil when nothing was financed
	Eligible         bool

	// RevenueShare is derived by the attribution step, never read from the source.
	RevenueShare float64
}

// Key identifies the vendor-buyer-month a record belongs to.
type Key struct {
	VendorID string
	BuyerID  int64
	Month    civil.Date
}

// Key returns the record's consolidation key.
func (r *TransactionRecord) Key() Key {
	return Key{VendorID: r.VendorID, BuyerID: r.BuyerID, Month: r.Month}
}

// Normalize truncates the month to its first day and clamps negative amounts to zero.
func (r *TransactionRecord) Normalize() {
	r.Month = civil.Date{Year: r.Month.Year, Month: r.Month.Month, Day: 1}
	r.Intake = nonNegative(r.Intake)
	r.Conversion = nonNegative(r.Conversion)
	r.Discount = nonNegative(r.Discount)
	r.PlatformFee = nonNegative(r.PlatformFee)
	r.CreditPeriodDays = nonNegative(r.CreditPeriodDays)
	r.DaysAdvanced = nonNegative(r.DaysAdvanced)
	r.MaxDaysAdvanced = nonNegative(r.MaxDaysAdvanced)
	if r.Conversion == 0 {
		r.APR = nil
	}
}

// EffectiveDiscountRate is the discount as a percentage of intake, 0 without intake.
func (r *TransactionRecord) EffectiveDiscountRate() float64 {
	if r.Intake == 0 {
		return 0
	}
	return r.Discount / r.Intake * 100
}

// PlatformFeeRate is the platform fee as a percentage of intake, 0 without intake.
func (r *TransactionRecord) PlatformFeeRate() float64 {
	if r.Intake == 0 {
		return 0
	}
	return r.PlatformFee / r.Intake * 100
}

// Revenue is platform fee plus attributed buyer revenue share.
func (r *TransactionRecord) Revenue() float64 {
	return r.PlatformFee + r.RevenueShare
}

// Consolidate normalizes records and merges duplicates so that at most one
// record exists per (vendor, buyer, month). Amounts are summed; day counts
// and APR are re-weighted by the amount they were weighted by. The result is
// sorted by vendor, buyer and month.
func Consolidate(records []TransactionRecord) []TransactionRecord {
	index := make(map[Key]int, len(records))
	out := make([]TransactionRecord, 0, len(records))

	for _, rec := range records {
		rec.Normalize()
		i, seen := index[rec.Key()]
		if !seen {
			index[rec.Key()] = len(out)
			out = append(out, rec)
			continue
		}
		out[i] = merge(out[i], rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].VendorID != out[j].VendorID {
			return out[i].VendorID < out[j].VendorID
		}
		if out[i].BuyerID != out[j].BuyerID {
			return out[i].BuyerID < out[j].BuyerID
		}
		return out[i].Month.Before(out[j].Month)
	})
	return out
}

func merge(a, b TransactionRecord) TransactionRecord {
	m := a
	if m.VendorName == "" {
		m.VendorName = b.VendorName
	}
	if m.BuyerName == "" {
		m.BuyerName = b.BuyerName
	}

	m.Intake = a.Intake + b.Intake
	m.Conversion = a.Conversion + b.Conversion
	m.Discount = a.Discount + b.Discount
	m.PlatformFee = a.PlatformFee + b.PlatformFee
	m.RevenueShare = a.RevenueShare + b.RevenueShare
	m.Eligible = a.Eligible || b.Eligible

	m.CreditPeriodDays = weighted(a.CreditPeriodDays, a.Intake, b.CreditPeriodDays, b.Intake)
	m.MaxDaysAdvanced = weighted(a.MaxDaysAdvanced, a.Intake, b.MaxDaysAdvanced, b.Intake)
	m.DaysAdvanced = weighted(a.DaysAdvanced, a.Conversion, b.DaysAdvanced, b.Conversion)

	switch {
	case a.APR != nil && b.APR != nil:
		apr := weighted(*a.APR, a.Conversion, *b.APR, b.Conversion)
		m.APR = &apr
	case b.APR != nil:
		apr := *b.APR
		m.APR = &apr
	}
	return m
}

func weighted(x, wx, y, wy float64) float64 {
	if wx+wy == 0 {
		return (x + y) / 2
	}
	return (x*wx + y*wy) / (wx + wy)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
