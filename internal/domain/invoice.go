package domain

import "cloud.google.com/go/civil"

// FinancedInvoice is a single invoice financed under an early payment request.
// It carries the inputs the buyer revenue-share rules are evaluated on.
type FinancedInvoice struct {
	VendorID string
	BuyerID  int64
	Month    civil.Date // month the payment request was activated

	Amount            float64  // invoice amount
	EffectiveDiscount float64  // discount earned on this invoice
	DiscountRate      float64  // effective discount rate in percent
	APR               *float64 // annualised rate in percent
	DaysAdvanced      float64

	DueDate          civil.Date
	EstimatedDueDate civil.Date
	ClearanceDate    civil.Date // date the buyer is expected to clear
}
