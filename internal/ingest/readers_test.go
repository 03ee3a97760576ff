package ingest

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

const transactionsCSV = `Month,PAN,Supplier Name,Buyer ID,Buyer Name,TOFU (in lacs),BOFU (in lacs),Credit Period,Days Advanced,Effective Discount,Platform Fee,APR,Eligible
2024-04-15,aaapl1234c,Acme Pvt Ltd,448,Big Buyer,"1,000.5",2,45,30,1200,300,12.5,true

2024-05-01 00:00:00,AAAPL1234C,Acme Pvt Ltd,448.0,Big Buyer,1,0,40,0,0,0,NA,false
`

func TestReadTransactions(t *testing.T) {
	recs, err := ReadTransactions(strings.NewReader(transactionsCSV))
	if err != nil {
		t.Fatalf("ReadTransactions() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("ReadTransactions() returned %d rows, want 2", len(recs))
	}

	first := recs[0]
	if first.VendorID != "AAAPL1234C" {
		t.Errorf("VendorID = %q, want upper-cased PAN", first.VendorID)
	}
	if first.Month != (civil.Date{Year: 2024, Month: time.April, Day: 1}) {
		t.Errorf("Month = %v, want 2024-04-01", first.Month)
	}
	if first.Intake != 100_050_000 {
		t.Errorf("Intake = %v, want 100050000 (lacs converted)", first.Intake)
	}
	if first.Conversion != 200_000 {
		t.Errorf("Conversion = %v, want 200000", first.Conversion)
	}
	if first.APR == nil || *first.APR != 12.5 {
		t.Errorf("APR = %v, want 12.5", first.APR)
	}
	if !first.Eligible || first.BuyerID != 448 {
		t.Errorf("Eligible/BuyerID = %v/%d", first.Eligible, first.BuyerID)
	}

	second := recs[1]
	if second.APR != nil {
		t.Errorf("APR = %v, want nil for NA", *second.APR)
	}
	if second.Month.Month != time.May {
		t.Errorf("timestamp month = %v, want May", second.Month)
	}
}

func TestReadTransactions_MissingColumn(t *testing.T) {
	csv := "Month,PAN,Supplier Name,Buyer ID,Buyer Name,TOFU,Credit Period,Days Advanced,Discount,Platform Fee,APR,Eligible\n"
	_, err := ReadTransactions(strings.NewReader(csv))

	var mc *MissingColumnError
	if !errors.As(err, &mc) {
		t.Fatalf("error = %v, want MissingColumnError", err)
	}
	if mc.Column != ColConversion {
		t.Errorf("Column = %q, want %q", mc.Column, ColConversion)
	}
	if !errors.Is(err, ErrMissingColumn) {
		t.Error("errors.Is(err, ErrMissingColumn) = false")
	}
}

func TestReadTransactions_BadValues(t *testing.T) {
	header := "month,pan,vendor name,buyer id,buyer name,intake,conversion,credit period,days advanced,discount,platform fee,apr,eligible\n"
	tests := []struct {
		name string
		row  string
		want string
	}{
		{"bad amount", "2024-04-01,P,V,1,B,abc,0,0,0,0,0,,y", `"intake"`},
		{"bad buyer", "2024-04-01,P,V,x1,B,1,0,0,0,0,0,,y", `"buyer id"`},
		{"bad month", "April,P,V,1,B,1,0,0,0,0,0,,y", `"month"`},
		{"empty pan", "2024-04-01,,V,1,B,1,0,0,0,0,0,,y", `"pan"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTransactions(strings.NewReader(header + tt.row + "\n"))
			if err == nil {
				t.Fatal("ReadTransactions() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) || !strings.Contains(err.Error(), "line 2") {
				t.Errorf("error = %q, want mention of %s on line 2", err, tt.want)
			}
		})
	}
}

func TestReadTransactions_Empty(t *testing.T) {
	if _, err := ReadTransactions(strings.NewReader("")); err == nil {
		t.Error("ReadTransactions(empty) error = nil")
	}
}

func TestReadInvoices(t *testing.T) {
	csv := `Activated On,PAN,Buyer ID,Invoice Amount,Effective Discount,APR,Days Advanced,Due Date,Estimated Due Date,Clearance Date
2024-06-12,P1,2795,100000,500,11,30,2024-07-31,2024-08-10,2024-08-05
2024-06-20,P1,11,200000,1000,,,,,
`
	invs, err := ReadInvoices(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadInvoices() error = %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("ReadInvoices() returned %d rows, want 2", len(invs))
	}
	if invs[0].Month != (civil.Date{Year: 2024, Month: time.June, Day: 1}) {
		t.Errorf("Month = %v, want 2024-06-01", invs[0].Month)
	}
	if math.Abs(invs[0].DiscountRate-0.5) > 1e-9 {
		t.Errorf("derived DiscountRate = %v, want 0.5", invs[0].DiscountRate)
	}
	if invs[0].ClearanceDate != (civil.Date{Year: 2024, Month: time.August, Day: 5}) {
		t.Errorf("ClearanceDate = %v", invs[0].ClearanceDate)
	}
	if invs[1].APR != nil || invs[1].DueDate.IsValid() {
		t.Errorf("blank optional fields should stay unset: %+v", invs[1])
	}
}

func TestReadCompanies(t *testing.T) {
	csv := `PAN,Supplier Name,Month,TOFU (in lacs),Cash and Cash Equivalents,Current investments,Short term borrowings,Revenue growth in %,Latest Credit Ratings,Nature of Business,Receivables Days
p1,Acme,2024-04-01,10,200,100,100,10%,AA+,Steel,45
p1,Acme,2024-05-01,,,,,,,Steel,
`
	snaps, err := ReadCompanies(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadCompanies() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("ReadCompanies() returned %d rows, want 2", len(snaps))
	}
	s := snaps[0]
	if s.PAN != "P1" || s.Name != "Acme" || s.Industry != "Steel" || s.CreditRating != "AA+" {
		t.Errorf("identity fields = %+v", s)
	}
	if s.Intake == nil || *s.Intake != 1_000_000 {
		t.Errorf("Intake = %v, want 1000000", s.Intake)
	}
	if s.RevenueGrowthPercent == nil || *s.RevenueGrowthPercent != 10 {
		t.Errorf("RevenueGrowthPercent = %v, want 10", s.RevenueGrowthPercent)
	}
	if s.ReceivableDays == nil || *s.ReceivableDays != 45 {
		t.Errorf("ReceivableDays = %v, want 45", s.ReceivableDays)
	}
	if snaps[1].Cash != nil || snaps[1].Intake != nil {
		t.Error("blank cells should be nil")
	}
}

func TestReadCompanies_AnnualRevenueUnits(t *testing.T) {
	tests := []struct {
		header string
		want   float64
	}{
		{"Annual Revenue", 12.5},
		{"Annual Revenue (in lacs)", 1_250_000},
		{"Annual Revenue (in Cr)", 125_000_000},
		{"Revenue (in Cr)", 125_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			csv := "PAN,Month,Industry," + tt.header + "\nP1,2024-04-01,Steel,12.5\n"
			snaps, err := ReadCompanies(strings.NewReader(csv))
			if err != nil {
				t.Fatalf("ReadCompanies() error = %v", err)
			}
			if got := snaps[0].AnnualRevenue; got == nil || *got != tt.want {
				t.Errorf("AnnualRevenue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadCompanies_RequiresIndustry(t *testing.T) {
	_, err := ReadCompanies(strings.NewReader("PAN,Month\nP1,2024-04-01\n"))
	var mc *MissingColumnError
	if !errors.As(err, &mc) || mc.Column != ColIndustry {
		t.Fatalf("error = %v, want missing industry column", err)
	}
}
