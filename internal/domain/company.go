package domain

import "cloud.google.com/go/civil"

// CompanySnapshot holds a vendor's financial profile next to one month of
// intake. Every numeric field is optional; nil means the value was absent.
type CompanySnapshot struct {
	PAN   string
	Name  string
	Month civil.Date

	Intake *float64

	Cash                 *float64
	Investments          *float64
	ShortTermBorrowings  *float64
	LongTermBorrowings   *float64
	RevenueGrowthPercent *float64
	CreditRating         string
	FinanceCostPercent   *float64 // finance cost as a percent of sales
	AnnualRevenue        *float64
	TurnoverRange        string // bucket text such as "Rs 250 Cr to 500 Cr"
	Industry             string

	CurrentRatio   *float64
	ReceivableDays *float64
	InventoryDays  *float64
	PayableDays    *float64
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
