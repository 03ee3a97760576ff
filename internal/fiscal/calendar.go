// Package fiscal maps calendar dates to Indian fiscal periods. The fiscal
// year runs April to March and is named after the calendar year it ends in.
package fiscal

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// FirstMonth is the month a fiscal year starts in.
const FirstMonth = time.April

// Period is a fiscal year and quarter. The zero value is invalid.
type Period struct {
	Year    int // full fiscal year, 2025 for FY25
	Quarter int // 1..4
}

// PeriodOf returns the fiscal period containing d. ok is false for zero or
// invalid dates.
func PeriodOf(d civil.Date) (p Period, ok bool) {
	if !valid(d) {
		return Period{}, false
	}
	year := d.Year
	if d.Month >= FirstMonth {
		year++
	}
	// Apr-Jun Q1 ... Jan-Mar Q4
	offset := (int(d.Month) - int(FirstMonth) + 12) % 12
	return Period{Year: year, Quarter: offset/3 + 1}, true
}

// YearLabel returns "FYyy" for d, or "" when d is not a valid date.
func YearLabel(d civil.Date) string {
	p, ok := PeriodOf(d)
	if !ok {
		return ""
	}
	return p.YearLabel()
}

// QuarterLabel returns "Q1".."Q4" for d, or "" when d is not a valid date.
func QuarterLabel(d civil.Date) string {
	p, ok := PeriodOf(d)
	if !ok {
		return ""
	}
	return fmt.Sprintf("Q%d", p.Quarter)
}

// YearLabel returns "FYyy".
func (p Period) YearLabel() string {
	if !p.Valid() {
		return ""
	}
	return fmt.Sprintf("FY%02d", p.Year%100)
}

// String returns "FYyy Qn".
func (p Period) String() string {
	if !p.Valid() {
		return ""
	}
	return fmt.Sprintf("%s Q%d", p.YearLabel(), p.Quarter)
}

// Valid reports whether p names a real period.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Quarter >= 1 && p.Quarter <= 4
}

// Less orders periods chronologically.
func (p Period) Less(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Quarter < o.Quarter
}

// Start returns the first day of the period.
func (p Period) Start() civil.Date {
	month := int(FirstMonth) + (p.Quarter-1)*3
	year := p.Year - 1
	if month > 12 {
		month -= 12
		year++
	}
	return civil.Date{Year: year, Month: time.Month(month), Day: 1}
}

// MonthStart truncates d to the first day of its month.
func MonthStart(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// AddMonths shifts the month of d by n, keeping day 1.
func AddMonths(d civil.Date, n int) civil.Date {
	idx := monthIndex(d) + n
	return civil.Date{Year: idx / 12, Month: time.Month(idx%12 + 1), Day: 1}
}

// MonthsBetween returns the number of whole calendar months from a to b.
// It is negative when b is before a.
func MonthsBetween(a, b civil.Date) int {
	return monthIndex(b) - monthIndex(a)
}

// MonthsToYearEnd returns how many months follow d's month in its fiscal
// year: 11 for April, 0 for March.
func MonthsToYearEnd(d civil.Date) int {
	if !valid(d) {
		return 0
	}
	offset := (int(d.Month) - int(FirstMonth) + 12) % 12
	return 11 - offset
}

// Parse reads a YYYY-MM-DD or YYYY-MM date.
func Parse(s string) (civil.Date, error) {
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("Parse: %q is not YYYY-MM-DD or YYYY-MM: %w", s, err)
	}
	return civil.DateOf(t), nil
}

func monthIndex(d civil.Date) int {
	return d.Year*12 + int(d.Month) - 1
}

func valid(d civil.Date) bool {
	return d.Year > 0 && d.IsValid()
}
