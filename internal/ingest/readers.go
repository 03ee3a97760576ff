package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
)

// Canonical column names.
const (
	ColMonth            = "month"
	ColVendorID         = "pan"
	ColVendorName       = "vendor name"
	ColBuyerID          = "buyer id"
	ColBuyerName        = "buyer name"
	ColIntake           = "intake"
	ColConversion       = "conversion"
	ColCreditPeriod     = "credit period"
	ColDaysAdvanced     = "days advanced"
	ColMaxDaysAdvanced  = "max days advanced"
	ColDiscount         = "discount"
	ColPlatformFee      = "platform fee"
	ColAPR              = "apr"
	ColEligible         = "eligible"
	ColAmount           = "amount"
	ColDiscountRate     = "discount rate"
	ColDueDate          = "due date"
	ColEstimatedDueDate = "estimated due date"
	ColClearanceDate    = "clearance date"
	ColIndustry         = "industry"
)

var transactionColumns = []column{
	{aliases: []string{ColMonth}, required: true},
	{aliases: []string{ColVendorID, "vendor pan", "vendor id"}, required: true},
	{aliases: []string{ColVendorName, "supplier name", "vendor legal name"}, required: true},
	{aliases: []string{ColBuyerID}, required: true},
	{aliases: []string{ColBuyerName, "buyer legal name"}, required: true},
	{aliases: []string{ColIntake, "tofu"}, lacs: []string{"tofu (in lacs)", "intake (in lacs)"}, required: true},
	{aliases: []string{ColConversion, "bofu"}, lacs: []string{"bofu (in lacs)", "conversion (in lacs)"}, required: true},
	{aliases: []string{ColCreditPeriod, "credit period days"}, required: true},
	{aliases: []string{ColDaysAdvanced}, required: true},
	{aliases: []string{ColMaxDaysAdvanced}},
	{aliases: []string{ColDiscount, "effective discount", "ed"}, lacs: []string{"ed (in lacs)"}, required: true},
	{aliases: []string{ColPlatformFee}, lacs: []string{"platform fee (in lacs)"}, required: true},
	{aliases: []string{ColAPR}, required: true},
	{aliases: []string{ColEligible, "eligibility"}, required: true},
}

// ReadTransactions parses a vendor-buyer-month extract. Rows are normalized
// but not consolidated.
func ReadTransactions(r io.Reader) ([]domain.TransactionRecord, error) {
	t, err := newTable(r, transactionColumns)
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", err)
	}

	var out []domain.TransactionRecord
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadTransactions: line %d: %w", t.line, err)
		}

		tx, err := t.transaction(rec)
		if err != nil {
			return nil, fmt.Errorf("ReadTransactions: %w", err)
		}
		tx.Normalize()
		out = append(out, tx)
	}
	return out, nil
}

func (t *table) transaction(rec []string) (domain.TransactionRecord, error) {
	var (
		tx  domain.TransactionRecord
		err error
	)
	if tx.Month, err = t.date(rec, ColMonth, true); err != nil {
		return tx, err
	}
	tx.VendorID = strings.ToUpper(t.str(rec, ColVendorID))
	if tx.VendorID == "" {
		return tx, fmt.Errorf("line %d: column %q is empty", t.line, ColVendorID)
	}
	tx.VendorName = t.str(rec, ColVendorName)
	if tx.BuyerID, err = t.id(rec, ColBuyerID); err != nil {
		return tx, err
	}
	tx.BuyerName = t.str(rec, ColBuyerName)

	amounts := []struct {
		col string
		dst *float64
	}{
		{ColIntake, &tx.Intake},
		{ColConversion, &tx.Conversion},
		{ColCreditPeriod, &tx.CreditPeriodDays},
		{ColDaysAdvanced, &tx.DaysAdvanced},
		{ColMaxDaysAdvanced, &tx.MaxDaysAdvanced},
		{ColDiscount, &tx.Discount},
		{ColPlatformFee, &tx.PlatformFee},
	}
	for _, a := range amounts {
		if *a.dst, err = t.amount(rec, a.col); err != nil {
			return tx, err
		}
	}
	if tx.APR, err = t.number(rec, ColAPR); err != nil {
		return tx, err
	}
	tx.Eligible = t.flag(rec, ColEligible)
	return tx, nil
}

var invoiceColumns = []column{
	{aliases: []string{ColMonth, "activated on"}, required: true},
	{aliases: []string{ColVendorID, "vendor pan", "vendor id"}, required: true},
	{aliases: []string{ColBuyerID}, required: true},
	{aliases: []string{ColAmount, "invoice amount"}, required: true},
	{aliases: []string{ColDiscount, "effective discount", "ed"}, required: true},
	{aliases: []string{ColDiscountRate, "effective discount rate"}},
	{aliases: []string{ColAPR}},
	{aliases: []string{ColDaysAdvanced}},
	{aliases: []string{ColDueDate}},
	{aliases: []string{ColEstimatedDueDate}},
	{aliases: []string{ColClearanceDate, "buyer clearance date"}},
}

// ReadInvoices parses a financed-invoice extract used for revenue
// attribution. A missing discount rate is derived from discount and amount.
func ReadInvoices(r io.Reader) ([]domain.FinancedInvoice, error) {
	t, err := newTable(r, invoiceColumns)
	if err != nil {
		return nil, fmt.Errorf("ReadInvoices: %w", err)
	}

	var out []domain.FinancedInvoice
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadInvoices: line %d: %w", t.line, err)
		}

		inv, err := t.invoice(rec)
		if err != nil {
			return nil, fmt.Errorf("ReadInvoices: %w", err)
		}
		out = append(out, inv)
	}
	return out, nil
}

func (t *table) invoice(rec []string) (domain.FinancedInvoice, error) {
	var (
		inv domain.FinancedInvoice
		err error
	)
	if inv.Month, err = t.date(rec, ColMonth, true); err != nil {
		return inv, err
	}
	inv.Month.Day = 1
	inv.VendorID = strings.ToUpper(t.str(rec, ColVendorID))
	if inv.BuyerID, err = t.id(rec, ColBuyerID); err != nil {
		return inv, err
	}
	if inv.Amount, err = t.amount(rec, ColAmount); err != nil {
		return inv, err
	}
	if inv.EffectiveDiscount, err = t.amount(rec, ColDiscount); err != nil {
		return inv, err
	}
	if inv.DaysAdvanced, err = t.amount(rec, ColDaysAdvanced); err != nil {
		return inv, err
	}
	if inv.APR, err = t.number(rec, ColAPR); err != nil {
		return inv, err
	}

	rate, err := t.number(rec, ColDiscountRate)
	if err != nil {
		return inv, err
	}
	switch {
	case rate != nil:
		inv.DiscountRate = *rate
	case inv.Amount > 0:
		inv.DiscountRate = inv.EffectiveDiscount / inv.Amount * 100
	}

	for _, d := range []struct {
		col string
		dst *civil.Date
	}{
		{ColDueDate, &inv.DueDate},
		{ColEstimatedDueDate, &inv.EstimatedDueDate},
		{ColClearanceDate, &inv.ClearanceDate},
	} {
		if *d.dst, err = t.date(rec, d.col, false); err != nil {
			return inv, err
		}
	}
	return inv, nil
}

var companyColumns = []column{
	{aliases: []string{ColVendorID, "vendor pan"}, required: true},
	{aliases: []string{"name", "supplier name", ColVendorName, "company name"}},
	{aliases: []string{ColMonth}, required: true},
	{aliases: []string{ColIntake, "tofu"}, lacs: []string{"tofu (in lacs)", "intake (in lacs)"}},
	{aliases: []string{"cash", "cash and cash equivalents"}},
	{aliases: []string{"investments", "current investments"}},
	{aliases: []string{"short term borrowings"}},
	{aliases: []string{"long term borrowings"}},
	{aliases: []string{"revenue growth", "revenue growth in %"}},
	{aliases: []string{"credit rating", "latest credit ratings", "rating"}},
	{aliases: []string{"finance cost", "finance cost (% of sales)"}},
	{
		aliases: []string{"annual revenue"},
		lacs:    []string{"annual revenue (in lacs)"},
		crores:  []string{"annual revenue (in cr)", "annual revenue (in crores)", "revenue (in cr)"},
	},
	{aliases: []string{"turnover range"}},
	{aliases: []string{ColIndustry, "nature of business"}},
	{aliases: []string{"current ratio"}},
	{aliases: []string{"receivable days", "receivables days"}},
	{aliases: []string{"inventory days"}},
	{aliases: []string{"payable days"}},
}

// ReadCompanies parses a company financial snapshot extract. Every
// financial field is optional, but the industry column must exist for
// benchmarks to be computed.
func ReadCompanies(r io.Reader) ([]domain.CompanySnapshot, error) {
	t, err := newTable(r, companyColumns)
	if err != nil {
		return nil, fmt.Errorf("ReadCompanies: %w", err)
	}
	if !t.has(ColIndustry) {
		return nil, fmt.Errorf("ReadCompanies: %w", &MissingColumnError{Column: ColIndustry})
	}

	var out []domain.CompanySnapshot
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCompanies: line %d: %w", t.line, err)
		}

		s, err := t.company(rec)
		if err != nil {
			return nil, fmt.Errorf("ReadCompanies: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (t *table) company(rec []string) (domain.CompanySnapshot, error) {
	s := domain.CompanySnapshot{
		PAN:           strings.ToUpper(t.str(rec, ColVendorID)),
		Name:          t.str(rec, "name"),
		CreditRating:  t.str(rec, "credit rating"),
		TurnoverRange: t.str(rec, "turnover range"),
		Industry:      t.str(rec, ColIndustry),
	}
	var err error
	if s.Month, err = t.date(rec, ColMonth, true); err != nil {
		return s, err
	}
	s.Month.Day = 1

	for _, f := range []struct {
		col string
		dst **float64
	}{
		{ColIntake, &s.Intake},
		{"cash", &s.Cash},
		{"investments", &s.Investments},
		{"short term borrowings", &s.ShortTermBorrowings},
		{"long term borrowings", &s.LongTermBorrowings},
		{"revenue growth", &s.RevenueGrowthPercent},
		{"finance cost", &s.FinanceCostPercent},
		{"annual revenue", &s.AnnualRevenue},
		{"current ratio", &s.CurrentRatio},
		{"receivable days", &s.ReceivableDays},
		{"inventory days", &s.InventoryDays},
		{"payable days", &s.PayableDays},
	} {
		if *f.dst, err = t.number(rec, f.col); err != nil {
			return s, err
		}
	}
	return s, nil
}
