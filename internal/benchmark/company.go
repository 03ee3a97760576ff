// Package benchmark enriches company financial snapshots with cash-richness,
// an indicative borrowing rate, supplier dependency and deviation from
// industry working-capital benchmarks.
package benchmark

import (
	"regexp"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/shopspring/decimal"
)

const (
	CashRichLabel    = "Cash-Rich"
	NonCashRichLabel = "Non-Cash-Rich"

	// NotAvailable marks an indicative rate outside the reliable band.
	NotAvailable = "DATA NA"
)

// Bounds of the indicative rate considered reliable, in percent.
const (
	MinIndicativeRate = 7.0
	MaxIndicativeRate = 14.0
)

// CashRich reports whether liquid assets exceed twice short-term
// borrowings while revenue grows below 15%, or the company is rated AA or
// better. Missing or zero borrowings leave the ratio undefined.
func CashRich(s domain.CompanySnapshot) bool {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s.CreditRating)), "AA") {
		return true
	}
	if s.ShortTermBorrowings == nil || *s.ShortTermBorrowings == 0 {
		return false
	}
	liquid := value(s.Cash) + value(s.Investments)
	return liquid / *s.ShortTermBorrowings > 2 && value(s.RevenueGrowthPercent) < 15
}

// CashRichStatus returns the display label for CashRich.
func CashRichStatus(s domain.CompanySnapshot) string {
	if CashRich(s) {
		return CashRichLabel
	}
	return NonCashRichLabel
}

// Rate is an indicative interest rate in percent. Available is false when
// the rate could not be computed or fell outside the reliable band.
type Rate struct {
	Value     float64
	Available bool
}

func (r Rate) String() string {
	if !r.Available {
		return NotAvailable
	}
	return strconv.FormatFloat(r.Value, 'f', 2, 64)
}

// IndicativeRate estimates the borrowing rate as finance cost over total debt.
func IndicativeRate(s domain.CompanySnapshot) Rate {
	if s.FinanceCostPercent == nil || s.AnnualRevenue == nil {
		return Rate{}
	}
	debt := value(s.ShortTermBorrowings) + value(s.LongTermBorrowings)
	if debt == 0 {
		return Rate{}
	}
	raw := (*s.FinanceCostPercent / 100 * *s.AnnualRevenue) / debt * 100
	rate := round2(raw)
	if rate < MinIndicativeRate || rate > MaxIndicativeRate {
		return Rate{Value: rate}
	}
	return Rate{Value: rate, Available: true}
}

// MonthlyValue is one month of an observed amount.
type MonthlyValue struct {
	Month civil.Date
	Value float64
}

// ExtrapolateYear scales year-to-date values to a full fiscal year: the
// observed sum plus the monthly mean for every month left until March,
// counted from the latest observed month.
func ExtrapolateYear(values []MonthlyValue) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	latest := values[0].Month
	for _, v := range values {
		sum += v.Value
		if v.Month.After(latest) {
			latest = v.Month
		}
	}
	mean := sum / float64(len(values))
	return sum + mean*float64(fiscal.MonthsToYearEnd(latest))
}

var turnoverNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseTurnoverRange reads a turnover bucket such as "Rs 250 Cr to 500 Cr"
// (midpoint) or "Rs 2000 Cr and above" (floor). Buckets are in crores and
// the result is in base units.
func ParseTurnoverRange(text string) (float64, bool) {
	t := strings.ToLower(strings.ReplaceAll(text, ",", ""))
	nums := turnoverNumber.FindAllString(t, -1)

	switch {
	case strings.Contains(t, " to ") && len(nums) == 2:
		lo, err1 := strconv.ParseFloat(nums[0], 64)
		hi, err2 := strconv.ParseFloat(nums[1], 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return domain.FromCrores((lo + hi) / 2), true
	case strings.Contains(t, "and above") && len(nums) >= 1:
		lo, err := strconv.ParseFloat(nums[0], 64)
		if err != nil {
			return 0, false
		}
		return domain.FromCrores(lo), true
	}
	return 0, false
}

// AnnualRevenue returns the reported revenue, falling back to the turnover bucket.
func AnnualRevenue(s domain.CompanySnapshot) (float64, bool) {
	if s.AnnualRevenue != nil {
		return *s.AnnualRevenue, true
	}
	return ParseTurnoverRange(s.TurnoverRange)
}

// DependencyPercent is annual intake as a percentage of annual revenue.
func DependencyPercent(intake, revenue float64) (float64, bool) {
	if revenue <= 0 {
		return 0, false
	}
	return intake / revenue * 100, true
}

// Slab bands a dependency percentage. Bands include their lower bound.
func Slab(percent float64) string {
	switch {
	case percent < 0:
		return ""
	case percent < 25:
		return "<25"
	case percent < 50:
		return "25-50"
	case percent < 75:
		return "50-75"
	case percent < 100:
		return "75-100"
	default:
		return ">100"
	}
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
