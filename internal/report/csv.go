package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/benchmark"
)

// WriteSummaries renders vendor summaries with one column group per window.
func WriteSummaries(w io.Writer, rows []VendorSummary) error {
	cw := csv.NewWriter(w)

	var sizes []int
	if len(rows) > 0 {
		for _, ws := range rows[0].Windows {
			sizes = append(sizes, ws.Size)
		}
	}

	header := []string{"PAN", "Vendor Name", "As Of", "Fiscal Period",
		"Number of Buyers (Intake)", "List of Buyers (Intake)",
		"Number of Buyers (Conversion)", "List of Buyers (Conversion)"}
	for _, size := range sizes {
		sfx := fmt.Sprintf(" (%dM)", size)
		for _, col := range []string{
			"Intake Count", "Intake Amount", "Intake Monthly Avg",
			"Conversion Count", "Conversion Amount", "Conversion Monthly Avg",
			"Discount Monthly Avg", "Revenue Monthly Avg", "Acceleration",
			"Wtd Avg Credit Period", "Wtd Avg Max Days", "Wtd Avg Actual Days", "Wtd Avg APR",
			"Intake Category", "Conversion Category",
		} {
			header = append(header, col+sfx)
		}
	}
	header = append(header, "First Intake Month", "Last Intake Month", "First Conversion Month", "Last Conversion Month")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteSummaries: header: %w", err)
	}

	for _, r := range rows {
		rec := []string{r.VendorID, r.VendorName, date(r.AsOf), r.Period,
			strconv.Itoa(len(r.IntakeBuyers)), strings.Join(r.IntakeBuyers, ", "),
			strconv.Itoa(len(r.ConversionBuyers)), strings.Join(r.ConversionBuyers, ", ")}
		for _, size := range sizes {
			ws, _ := r.Window(size)
			rec = append(rec,
				strconv.Itoa(ws.IntakeCount), num(ws.IntakeLacs), num(ws.IntakeMonthlyAvgLacs),
				strconv.Itoa(ws.ConversionCount), num(ws.ConversionLacs), num(ws.ConversionMonthlyAvgLacs),
				num(ws.DiscountMonthlyAvgLacs), num(ws.RevenueMonthlyAvgLacs), num(ws.AccelerationPercent),
				num(ws.CreditPeriod), num(ws.MaxDays), num(ws.ActualDays), num(ws.APR),
				string(ws.IntakeTier), string(ws.ConversionTier),
			)
		}
		rec = append(rec, date(r.FirstIntake), date(r.LastIntake), date(r.FirstConversion), date(r.LastConversion))
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("WriteSummaries: vendor %s: %w", r.VendorID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteSummaries: flush: %w", err)
	}
	return nil
}

// WritePivot renders the quarter pivot with intake and conversion columns
// per quarter, followed by first and last quarter markers.
func WritePivot(w io.Writer, p QuarterPivot) error {
	cw := csv.NewWriter(w)

	header := []string{"PAN", "Vendor Name", "Buyer ID", "Buyer Name"}
	for _, period := range p.Periods {
		header = append(header, "Intake__"+period.String(), "Conversion__"+period.String())
	}
	header = append(header, "First Intake Quarter", "Last Intake Quarter", "First Conversion Quarter", "Last Conversion Quarter")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WritePivot: header: %w", err)
	}

	for _, row := range p.Rows {
		buyer := ""
		if row.Key.BuyerID != 0 {
			buyer = strconv.FormatInt(row.Key.BuyerID, 10)
		}
		rec := []string{row.Key.VendorID, row.VendorName, buyer, row.BuyerName}
		for _, period := range p.Periods {
			c := row.Cells[period]
			rec = append(rec, num(c.IntakeLacs), num(c.ConversionLacs))
		}
		for _, marker := range []struct {
			conversion bool
			last       bool
		}{{false, false}, {false, true}, {true, false}, {true, true}} {
			find := row.First
			if marker.last {
				find = row.Last
			}
			q, ok := find(p.Periods, marker.conversion)
			if ok {
				rec = append(rec, q.String())
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("WritePivot: %s: %w", row.Key.VendorID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WritePivot: flush: %w", err)
	}
	return nil
}

// WriteEnrichment renders the per-company enrichment table.
func WriteEnrichment(w io.Writer, companies []benchmark.Company) error {
	cw := csv.NewWriter(w)

	header := []string{"PAN", "Name", "Industry", "Month", "Cash-Rich Status", "Indicative Interest Rate (%)",
		"Fiscal Year", "Extrapolated Intake (Lacs)", "Dependency %", "Dependency Slab"}
	for _, m := range benchmark.Metrics {
		header = append(header, string(m)+" Deviation %", string(m)+" Performance")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteEnrichment: header: %w", err)
	}

	for _, c := range companies {
		dep := ""
		if c.DependencyKnown {
			dep = num(Round2(c.Dependency))
		}
		rec := []string{c.PAN, c.Name, c.Industry, date(c.Month), c.Status(), c.Rate.String(),
			c.FiscalYear, num(Lacs(c.ExtrapolatedIntake)), dep, c.Slab}
		for _, d := range c.Deviations {
			if d.Defined {
				rec = append(rec, num(Round2(d.Percent)), d.Performance)
			} else {
				rec = append(rec, "", "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("WriteEnrichment: %s: %w", c.PAN, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteEnrichment: flush: %w", err)
	}
	return nil
}

// WriteBenchmarks renders the industry mean table.
func WriteBenchmarks(w io.Writer, industries []benchmark.Industry) error {
	cw := csv.NewWriter(w)

	header := []string{"Industry", "Companies"}
	for _, m := range benchmark.Metrics {
		header = append(header, "Avg "+string(m))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteBenchmarks: header: %w", err)
	}
	for _, ind := range industries {
		rec := []string{ind.Name, strconv.Itoa(ind.Companies)}
		for _, m := range benchmark.Metrics {
			if v, ok := ind.Mean(m); ok {
				rec = append(rec, num(Round2(v)))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("WriteBenchmarks: %s: %w", ind.Name, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteBenchmarks: flush: %w", err)
	}
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func date(d civil.Date) string {
	if !d.IsValid() || d.Year == 0 {
		return ""
	}
	return d.String()
}
