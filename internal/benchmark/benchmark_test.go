package benchmark

import (
	"errors"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/ingest"
)

var f = domain.Float

func month(y int, m time.Month) civil.Date {
	return civil.Date{Year: y, Month: m, Day: 1}
}

func TestCashRich(t *testing.T) {
	tests := []struct {
		name string
		s    domain.CompanySnapshot
		want bool
	}{
		{
			name: "liquid and slow growing",
			s:    domain.CompanySnapshot{Cash: f(200), Investments: f(100), ShortTermBorrowings: f(100), RevenueGrowthPercent: f(10)},
			want: true,
		},
		{
			name: "fast growing",
			s:    domain.CompanySnapshot{Cash: f(300), ShortTermBorrowings: f(100), RevenueGrowthPercent: f(15)},
			want: false,
		},
		{
			name: "ratio exactly two",
			s:    domain.CompanySnapshot{Cash: f(200), ShortTermBorrowings: f(100)},
			want: false,
		},
		{
			name: "zero borrowings",
			s:    domain.CompanySnapshot{Cash: f(200), ShortTermBorrowings: f(0)},
			want: false,
		},
		{
			name: "missing borrowings",
			s:    domain.CompanySnapshot{Cash: f(200)},
			want: false,
		},
		{
			name: "missing growth counts as zero",
			s:    domain.CompanySnapshot{Cash: f(300), ShortTermBorrowings: f(100)},
			want: true,
		},
		{
			name: "AA rating lower case",
			s:    domain.CompanySnapshot{CreditRating: " aa-"},
			want: true,
		},
		{
			name: "A rating",
			s:    domain.CompanySnapshot{CreditRating: "A+"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CashRich(tt.s); got != tt.want {
				t.Errorf("CashRich() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := CashRichStatus(tests[0].s); got != CashRichLabel {
		t.Errorf("CashRichStatus() = %q, want %q", got, CashRichLabel)
	}
}

func TestIndicativeRate(t *testing.T) {
	tests := []struct {
		name      string
		s         domain.CompanySnapshot
		want      string
		available bool
	}{
		{
			name:      "within band",
			s:         domain.CompanySnapshot{FinanceCostPercent: f(2), AnnualRevenue: f(1000), ShortTermBorrowings: f(150), LongTermBorrowings: f(50)},
			want:      "10.00",
			available: true,
		},
		{
			name:      "rounded to two places",
			s:         domain.CompanySnapshot{FinanceCostPercent: f(1), AnnualRevenue: f(1000), ShortTermBorrowings: f(123)},
			want:      "8.13",
			available: true,
		},
		{
			name: "above band",
			s:    domain.CompanySnapshot{FinanceCostPercent: f(5), AnnualRevenue: f(1000), ShortTermBorrowings: f(100)},
			want: NotAvailable,
		},
		{
			name: "no debt",
			s:    domain.CompanySnapshot{FinanceCostPercent: f(5), AnnualRevenue: f(1000)},
			want: NotAvailable,
		},
		{
			name: "missing finance cost",
			s:    domain.CompanySnapshot{AnnualRevenue: f(1000), ShortTermBorrowings: f(100)},
			want: NotAvailable,
		},
		{
			name:      "lower bound inclusive",
			s:         domain.CompanySnapshot{FinanceCostPercent: f(0.7), AnnualRevenue: f(1000), LongTermBorrowings: f(100)},
			want:      "7.00",
			available: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := IndicativeRate(tt.s)
			if r.String() != tt.want || r.Available != tt.available {
				t.Errorf("IndicativeRate() = %q (available %v), want %q (available %v)", r.String(), r.Available, tt.want, tt.available)
			}
		})
	}
}

func TestExtrapolateYear(t *testing.T) {
	values := []MonthlyValue{
		{Month: month(2024, 4), Value: 10},
		{Month: month(2024, 5), Value: 20},
		{Month: month(2024, 6), Value: 30},
	}
	// 60 observed plus 9 remaining months at the mean of 20.
	if got := ExtrapolateYear(values); got != 240 {
		t.Errorf("ExtrapolateYear() = %v, want 240", got)
	}
	if got := ExtrapolateYear([]MonthlyValue{{Month: month(2025, 3), Value: 7}}); got != 7 {
		t.Errorf("ExtrapolateYear(March) = %v, want 7", got)
	}
	if got := ExtrapolateYear(nil); got != 0 {
		t.Errorf("ExtrapolateYear(nil) = %v, want 0", got)
	}
}

func TestParseTurnoverRange(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"Rs 250 Cr to 500 Cr", domain.FromCrores(375), true},
		{"Rs 2,000 Cr and above", domain.FromCrores(2000), true},
		{"rs 1.5 cr to 2.5 cr", domain.FromCrores(2), true},
		{"Below Rs 5 Cr", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTurnoverRange(tt.in)
			if ok != tt.ok || math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ParseTurnoverRange(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAnnualRevenue_FallsBackToTurnover(t *testing.T) {
	got, ok := AnnualRevenue(domain.CompanySnapshot{TurnoverRange: "Rs 100 Cr to 200 Cr"})
	if !ok || got != domain.FromCrores(150) {
		t.Errorf("AnnualRevenue() = %v, %v", got, ok)
	}
	got, ok = AnnualRevenue(domain.CompanySnapshot{AnnualRevenue: f(42), TurnoverRange: "Rs 100 Cr to 200 Cr"})
	if !ok || got != 42 {
		t.Errorf("AnnualRevenue() = %v, %v; want reported value", got, ok)
	}
}

func TestDependencyAndSlab(t *testing.T) {
	revenue := domain.FromCrores(10)
	intake := domain.FromCrores(4)
	p, ok := DependencyPercent(intake, revenue)
	if !ok || p != intake/revenue*100 {
		t.Fatalf("DependencyPercent() = %v, %v", p, ok)
	}
	if Slab(p) != "25-50" {
		t.Errorf("Slab(%v) = %q, want 25-50", p, Slab(p))
	}
	if _, ok := DependencyPercent(1, 0); ok {
		t.Error("DependencyPercent with zero revenue should be undefined")
	}

	slabs := map[float64]string{0: "<25", 24.99: "<25", 25: "25-50", 50: "50-75", 75: "75-100", 99.9: "75-100", 100: ">100", 340: ">100"}
	for in, want := range slabs {
		if got := Slab(in); got != want {
			t.Errorf("Slab(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestDeviationAndPerformance(t *testing.T) {
	d, ok := Deviation(60, 50)
	if !ok || math.Abs(d-20) > 1e-9 {
		t.Errorf("Deviation(60, 50) = %v, %v", d, ok)
	}
	d, _ = Deviation(40, 50)
	if math.Abs(d-20) > 1e-9 {
		t.Errorf("Deviation(40, 50) = %v, want 20", d)
	}
	if _, ok := Deviation(10, 0); ok {
		t.Error("Deviation with zero mean should be undefined")
	}

	grades := map[float64]string{0: Good, 20: Good, 20.01: Average, 50: Average, 50.5: Bad}
	for in, want := range grades {
		if got := Performance(in); got != want {
			t.Errorf("Performance(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestIndustryBenchmarks(t *testing.T) {
	got := IndustryBenchmarks([]domain.CompanySnapshot{
		{PAN: "A", Industry: "Steel", CurrentRatio: f(1), ReceivableDays: f(30)},
		{PAN: "B", Industry: "Steel", CurrentRatio: f(3)},
		{PAN: "C", Industry: "Auto", PayableDays: f(60)},
		{PAN: "D"},
	})
	if len(got) != 2 || got[0].Name != "Auto" || got[1].Name != "Steel" {
		t.Fatalf("IndustryBenchmarks() = %+v", got)
	}
	steel := got[1]
	if steel.Companies != 2 {
		t.Errorf("Companies = %d, want 2", steel.Companies)
	}
	if m, _ := steel.Mean(CurrentRatio); m != 2 {
		t.Errorf("current ratio mean = %v, want 2", m)
	}
	if m, _ := steel.Mean(ReceivableDays); m != 30 {
		t.Errorf("receivable mean = %v, want 30 (missing values skipped)", m)
	}
	if _, ok := steel.Mean(PayableDays); ok {
		t.Error("payable mean should be absent")
	}
}

func TestEnrich(t *testing.T) {
	snaps := []domain.CompanySnapshot{
		{PAN: "p1", Name: "Acme", Industry: "Steel", Month: month(2024, 4), Intake: f(domain.FromCrores(1)),
			Cash: f(300), ShortTermBorrowings: f(100), RevenueGrowthPercent: f(10), CurrentRatio: f(1)},
		{PAN: "P1", Month: month(2024, 5), Intake: f(domain.FromCrores(1)), TurnoverRange: "Rs 20 Cr to 40 Cr"},
		{PAN: "P1", Month: month(2023, 5), Intake: f(domain.FromCrores(50))},
		{PAN: "P2", Name: "Beta", Industry: "Steel", Month: month(2024, 5), CurrentRatio: f(3)},
	}

	res, err := Enrich(snaps)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(res.Companies) != 2 || len(res.Industries) != 1 {
		t.Fatalf("Enrich() = %d companies, %d industries", len(res.Companies), len(res.Industries))
	}

	acme := res.Companies[0]
	if acme.PAN != "P1" || acme.Name != "Acme" || acme.Industry != "Steel" {
		t.Errorf("identity = %+v", acme)
	}
	if acme.Month != month(2024, 5) {
		t.Errorf("Month = %v, want latest snapshot", acme.Month)
	}
	if !acme.CashRich || acme.Status() != CashRichLabel {
		t.Error("expected cash-rich from older snapshot's financials")
	}
	if acme.FiscalYear != "FY25" {
		t.Errorf("FiscalYear = %q, want FY25", acme.FiscalYear)
	}
	// Two observed crores plus ten remaining months at one crore each.
	if acme.ExtrapolatedIntake != domain.FromCrores(12) {
		t.Errorf("ExtrapolatedIntake = %v, want 12 crores", acme.ExtrapolatedIntake)
	}
	if !acme.DependencyKnown || math.Abs(acme.Dependency-40) > 1e-9 || acme.Slab != "25-50" {
		t.Errorf("dependency = %v (%v) slab %q, want 40 in 25-50", acme.Dependency, acme.DependencyKnown, acme.Slab)
	}
	if acme.Rate.Available {
		t.Error("rate should be unavailable without finance cost")
	}

	dev := acme.Deviations[0]
	if dev.Metric != CurrentRatio || !dev.Defined || dev.Mean != 2 || dev.Performance != Average {
		t.Errorf("current ratio deviation = %+v, want 50%% from mean 2 graded Average", dev)
	}
	if acme.Deviations[1].Defined {
		t.Error("receivable days deviation should be undefined")
	}
}

func TestEnrich_MissingIndustry(t *testing.T) {
	_, err := Enrich([]domain.CompanySnapshot{{PAN: "P1", Month: month(2024, 4)}})
	if !errors.Is(err, ingest.ErrMissingColumn) {
		t.Fatalf("Enrich() error = %v, want ErrMissingColumn", err)
	}
}
