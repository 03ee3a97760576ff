package window

import "cloud.google.com/go/civil"

// Stats are the sums and counts of one window.
type Stats struct {
	Size int // nominal window length in months
	Span int // months covered since the series began, at most Size

	Intake       float64
	Conversion   float64
	Discount     float64
	PlatformFee  float64
	RevenueShare float64

	IntakeMonths     int // months in the window with positive intake
	ConversionMonths int // months in the window with positive conversion

	creditPeriodWeighted float64
	maxDaysWeighted      float64
	daysAdvancedWeighted float64
	aprWeighted          float64
}

// AccelerationRate is conversion over intake, 0 when there is no intake.
func (s Stats) AccelerationRate() float64 {
	return ratio(s.Conversion, s.Intake)
}

// Revenue is platform fee plus buyer revenue share.
func (s Stats) Revenue() float64 {
	return s.PlatformFee + s.RevenueShare
}

// MonthlyAverage divides v by the months actually covered.
func (s Stats) MonthlyAverage(v float64) float64 {
	return ratio(v, float64(s.Span))
}

// WeightedCreditPeriod is the intake-weighted credit period in days.
func (s Stats) WeightedCreditPeriod() float64 { return ratio(s.creditPeriodWeighted, s.Intake) }

// WeightedMaxDays is the intake-weighted maximum days that could be advanced.
func (s Stats) WeightedMaxDays() float64 { return ratio(s.maxDaysWeighted, s.Intake) }

// WeightedDaysAdvanced is the intake-weighted days actually advanced.
func (s Stats) WeightedDaysAdvanced() float64 { return ratio(s.daysAdvancedWeighted, s.Intake) }

// WeightedAPR is the intake-weighted APR.
func (s Stats) WeightedAPR() float64 { return ratio(s.aprWeighted, s.Intake) }

func (s *Stats) add(p Point) {
	s.Intake += p.Intake
	s.Conversion += p.Conversion
	s.Discount += p.Discount
	s.PlatformFee += p.PlatformFee
	s.RevenueShare += p.RevenueShare
	s.creditPeriodWeighted += p.CreditPeriodWeighted
	s.maxDaysWeighted += p.MaxDaysWeighted
	s.daysAdvancedWeighted += p.DaysAdvancedWeighted
	s.aprWeighted += p.APRWeighted

	if p.Intake > 0 {
		s.IntakeMonths++
	}
	if p.Conversion > 0 {
		s.ConversionMonths++
	}
}

// RecentMonth is an intake-positive month and whether anything converted in it.
type RecentMonth struct {
	Month     civil.Date
	Converted bool
}

// History holds markers over every month up to and including the as-of
// month. Zero dates mean the event never happened.
type History struct {
	FirstIntake     civil.Date
	LastIntake      civil.Date
	FirstConversion civil.Date
	LastConversion  civil.Date

	// RecentIntake lists up to three most recent intake-positive months, newest first.
	RecentIntake []RecentMonth
}

// HasIntake reports whether the partition ever had positive intake.
func (h History) HasIntake() bool { return h.FirstIntake.Year > 0 }

// HasConversion reports whether the partition ever converted.
func (h History) HasConversion() bool { return h.FirstConversion.Year > 0 }

// RecentWithoutConversion reports whether the n most recent intake-positive
// months exist and none of them converted.
func (h History) RecentWithoutConversion(n int) bool {
	if n <= 0 || len(h.RecentIntake) < n {
		return false
	}
	for _, m := range h.RecentIntake[:n] {
		if m.Converted {
			return false
		}
	}
	return true
}

const recentDepth = 3

func (h *History) observe(p Point) {
	if p.Intake > 0 {
		if !h.HasIntake() {
			h.FirstIntake = p.Month
		}
		h.LastIntake = p.Month

		recent := append([]RecentMonth{{Month: p.Month, Converted: p.Conversion > 0}}, h.RecentIntake...)
		if len(recent) > recentDepth {
			recent = recent[:recentDepth]
		}
		h.RecentIntake = recent
	}
	if p.Conversion > 0 {
		if !h.HasConversion() {
			h.FirstConversion = p.Month
		}
		h.LastConversion = p.Month
	}
}

// Snapshot is the state of a series as of one month.
type Snapshot struct {
	Key        PartitionKey
	VendorName string
	BuyerName  string
	AsOf       civil.Date
	Windows    map[int]Stats
	History    History
}

// Window returns the stats for size, or zero stats when it was not computed.
func (s Snapshot) Window(size int) Stats {
	if st, ok := s.Windows[size]; ok {
		return st
	}
	return Stats{Size: size}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
