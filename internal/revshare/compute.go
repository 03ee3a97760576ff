package revshare

import (
	"math"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
)

// Compute returns the revenue share earned on inv. Buyers without a rule
// earn 0; the result is never negative and never NaN.
func (t *Table) Compute(inv domain.FinancedInvoice) float64 {
	rule, ok := t.Rule(inv.BuyerID)
	if !ok {
		return 0
	}
	return floor(rule.evaluate(inv))
}

// Attribute sums Compute per (vendor, buyer, month) and writes the totals
// onto the matching records. Invoices without a matching record are
// returned so the caller can report them.
func (t *Table) Attribute(records []domain.TransactionRecord, invoices []domain.FinancedInvoice) []domain.FinancedInvoice {
	index := make(map[domain.Key]int, len(records))
	for i := range records {
		records[i].RevenueShare = 0
		index[records[i].Key()] = i
	}

	var orphans []domain.FinancedInvoice
	for _, inv := range invoices {
		key := domain.Key{VendorID: inv.VendorID, BuyerID: inv.BuyerID, Month: civil.Date{Year: inv.Month.Year, Month: inv.Month.Month, Day: 1}}
		i, ok := index[key]
		if !ok {
			orphans = append(orphans, inv)
			continue
		}
		records[i].RevenueShare += t.Compute(inv)
	}
	return orphans
}

// AttributeMonthly approximates the share from a monthly aggregate when no
// invoice-level rows are available: the financed amount stands in for the
// invoice amount and the discount rate is taken over it.
func (t *Table) AttributeMonthly(rec domain.TransactionRecord) float64 {
	inv := domain.FinancedInvoice{
		VendorID:          rec.VendorID,
		BuyerID:           rec.BuyerID,
		Month:             rec.Month,
		Amount:            rec.Conversion,
		EffectiveDiscount: rec.Discount,
		APR:               rec.APR,
		DaysAdvanced:      rec.DaysAdvanced,
	}
	if rec.Conversion > 0 {
		inv.DiscountRate = rec.Discount / rec.Conversion * 100
	}
	return t.Compute(inv)
}

func (r *Rule) evaluate(inv domain.FinancedInvoice) float64 {
	switch r.Kind {
	case FlatPercent:
		return inv.EffectiveDiscount * r.Share

	case RateTimesAmount:
		return inv.DiscountRate / 100 * inv.Amount * r.Share

	case Spread:
		if inv.APR == nil {
			return 0
		}
		return spreadValue(*inv.APR, r.Base, inv) * r.Share

	case TieredSpread:
		if inv.APR == nil {
			return 0
		}
		return spreadValue(*inv.APR, r.Base, inv) * r.tierShare(inv.Amount)

	case DiscountSpread:
		if inv.APR == nil {
			return 0
		}
		return inv.EffectiveDiscount * (*inv.APR - r.Base) / 100 * r.Share

	case DateRatio:
		return inv.EffectiveDiscount * dateRatio(inv) * r.Share

	case Conditional:
		// An unknown APR fails the comparison, as NULL does in a CASE.
		if inv.APR != nil && r.When.holds(*inv.APR) {
			return r.Then.evaluate(inv)
		}
		return r.Else.evaluate(inv)
	}
	return 0
}

func (r *Rule) tierShare(amount float64) float64 {
	lower, upper := float64(LowerBreakpoint), float64(UpperBreakpoint)
	if len(r.Breakpoints) == 2 {
		lower, upper = r.Breakpoints[0], r.Breakpoints[1]
	}
	switch {
	case amount < lower:
		return r.Tiers[0]
	case amount <= upper:
		return r.Tiers[1]
	default:
		return r.Tiers[2]
	}
}

func (c *Condition) holds(apr float64) bool {
	v := apr * c.Factor
	if c.Op == "<" {
		return v < c.Threshold
	}
	return v > c.Threshold
}

func spreadValue(apr, base float64, inv domain.FinancedInvoice) float64 {
	return (apr - base) * inv.Amount * inv.DaysAdvanced / 36500
}

// dateRatio is 0 when any date is missing or the denominator is zero.
func dateRatio(inv domain.FinancedInvoice) float64 {
	if !set(inv.DueDate) || !set(inv.EstimatedDueDate) || !set(inv.ClearanceDate) {
		return 0
	}
	den := inv.EstimatedDueDate.DaysSince(inv.ClearanceDate)
	if den == 0 {
		return 0
	}
	return float64(inv.EstimatedDueDate.DaysSince(inv.DueDate)) / float64(den)
}

func set(d civil.Date) bool {
	return d.Year > 0 && d.IsValid()
}

func floor(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
