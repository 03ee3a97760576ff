package benchmark

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/ingest"
)

// MetricDeviation compares one company metric with its industry mean.
type MetricDeviation struct {
	Metric      Metric
	Value       float64
	Mean        float64
	Percent     float64
	Defined     bool // false when the value or the mean is missing or the mean is zero
	Performance string
}

// Company is the enrichment of one company, taken from its latest snapshot.
type Company struct {
	PAN      string
	Name     string
	Industry string
	Month    civil.Date

	CashRich bool
	Rate     Rate

	FiscalYear         string
	ExtrapolatedIntake float64
	Revenue            float64
	RevenueKnown       bool
	Dependency         float64
	DependencyKnown    bool
	Slab               string

	Deviations []MetricDeviation
}

// Status returns the cash-richness label.
func (c Company) Status() string {
	if c.CashRich {
		return CashRichLabel
	}
	return NonCashRichLabel
}

// Result is the per-company enrichment plus the industry table it was
// benchmarked against.
type Result struct {
	Companies  []Company
	Industries []Industry
}

// Enrich groups snapshots by PAN and enriches each company. Industry means
// use one snapshot per company. The only error is a dataset with no
// industry classification at all.
func Enrich(snapshots []domain.CompanySnapshot) (Result, error) {
	if len(snapshots) == 0 {
		return Result{}, nil
	}
	if !anyIndustry(snapshots) {
		return Result{}, &ingest.MissingColumnError{Column: "industry"}
	}

	groups := groupByPAN(snapshots)
	pans := make([]string, 0, len(groups))
	for pan := range groups {
		pans = append(pans, pan)
	}
	sort.Strings(pans)

	latest := make([]domain.CompanySnapshot, 0, len(pans))
	for _, pan := range pans {
		latest = append(latest, consolidate(groups[pan]))
	}

	industries := IndustryBenchmarks(latest)
	byName := make(map[string]Industry, len(industries))
	for _, ind := range industries {
		byName[ind.Name] = ind
	}

	res := Result{Industries: industries}
	for i, pan := range pans {
		res.Companies = append(res.Companies, enrichCompany(latest[i], groups[pan], byName))
	}
	return res, nil
}

func enrichCompany(s domain.CompanySnapshot, history []domain.CompanySnapshot, industries map[string]Industry) Company {
	c := Company{
		PAN:      s.PAN,
		Name:     s.Name,
		Industry: strings.TrimSpace(s.Industry),
		Month:    s.Month,
		CashRich: CashRich(s),
		Rate:     IndicativeRate(s),
	}

	if intake, fy, ok := yearIntake(history); ok {
		c.FiscalYear = fy
		c.ExtrapolatedIntake = ExtrapolateYear(intake)
	}
	c.Revenue, c.RevenueKnown = AnnualRevenue(s)
	if c.RevenueKnown && c.FiscalYear != "" {
		c.Dependency, c.DependencyKnown = DependencyPercent(c.ExtrapolatedIntake, c.Revenue)
		if c.DependencyKnown {
			c.Slab = Slab(c.Dependency)
		}
	}

	ind, hasIndustry := industries[c.Industry]
	for _, m := range Metrics {
		d := MetricDeviation{Metric: m}
		v := MetricValue(s, m)
		if v != nil {
			d.Value = *v
		}
		if mean, ok := ind.Mean(m); hasIndustry && ok {
			d.Mean = mean
			if v != nil {
				d.Percent, d.Defined = Deviation(*v, mean)
			}
		}
		if d.Defined {
			d.Performance = Performance(d.Percent)
		}
		c.Deviations = append(c.Deviations, d)
	}
	return c
}

// yearIntake returns the monthly intake of the latest fiscal year with any
// intake reported.
func yearIntake(history []domain.CompanySnapshot) ([]MonthlyValue, string, bool) {
	var latest civil.Date
	found := false
	for _, s := range history {
		if s.Intake == nil {
			continue
		}
		if !found || s.Month.After(latest) {
			latest = s.Month
			found = true
		}
	}
	if !found {
		return nil, "", false
	}

	fy := fiscal.YearLabel(latest)
	byMonth := make(map[civil.Date]float64)
	for _, s := range history {
		if s.Intake == nil || fiscal.YearLabel(s.Month) != fy {
			continue
		}
		byMonth[fiscal.MonthStart(s.Month)] += *s.Intake
	}

	values := make([]MonthlyValue, 0, len(byMonth))
	for m, v := range byMonth {
		values = append(values, MonthlyValue{Month: m, Value: v})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Month.Before(values[j].Month) })
	return values, fy, true
}

func groupByPAN(snapshots []domain.CompanySnapshot) map[string][]domain.CompanySnapshot {
	out := make(map[string][]domain.CompanySnapshot)
	for _, s := range snapshots {
		pan := strings.ToUpper(strings.TrimSpace(s.PAN))
		out[pan] = append(out[pan], s)
	}
	return out
}

// consolidate returns the latest snapshot with gaps filled from older ones.
func consolidate(history []domain.CompanySnapshot) domain.CompanySnapshot {
	ordered := append([]domain.CompanySnapshot(nil), history...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Month.After(ordered[j].Month) })

	out := ordered[0]
	for _, s := range ordered[1:] {
		fillString(&out.Name, s.Name)
		fillString(&out.Industry, s.Industry)
		fillString(&out.CreditRating, s.CreditRating)
		fillString(&out.TurnoverRange, s.TurnoverRange)
		for _, f := range []struct{ dst, src **float64 }{
			{&out.Cash, &s.Cash},
			{&out.Investments, &s.Investments},
			{&out.ShortTermBorrowings, &s.ShortTermBorrowings},
			{&out.LongTermBorrowings, &s.LongTermBorrowings},
			{&out.RevenueGrowthPercent, &s.RevenueGrowthPercent},
			{&out.FinanceCostPercent, &s.FinanceCostPercent},
			{&out.AnnualRevenue, &s.AnnualRevenue},
			{&out.CurrentRatio, &s.CurrentRatio},
			{&out.ReceivableDays, &s.ReceivableDays},
			{&out.InventoryDays, &s.InventoryDays},
			{&out.PayableDays, &s.PayableDays},
		} {
			if *f.dst == nil {
				*f.dst = *f.src
			}
		}
	}
	return out
}

func fillString(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = src
	}
}

func anyIndustry(snapshots []domain.CompanySnapshot) bool {
	for _, s := range snapshots {
		if strings.TrimSpace(s.Industry) != "" {
			return true
		}
	}
	return false
}
