// Package postgres reads vendor activity straight from the lending
// platform's transactional database.
package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// statementTimeout bounds the extract; the full history scan is slow but
// must not hang a run forever.
const statementTimeout = "15min"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source runs the extract queries against a pgx pool.
type Source struct {
	pool *pgxpool.Pool
	q    querier
}

// NewSource opens a pool for dsn. maxConns <= 0 keeps the pgx default.
func NewSource(ctx context.Context, dsn string, maxConns int32) (*Source, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSource: parsing database config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = statementTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewSource: creating pool: %w", err)
	}
	return &Source{pool: pool, q: pool}, nil
}

// Close closes the pool.
func (s *Source) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type vendorMonthRow struct {
	VendorID         string    `db:"vendor_id"`
	VendorName       *string   `db:"vendor_name"`
	BuyerID          int64     `db:"buyer_id"`
	BuyerName        *string   `db:"buyer_name"`
	Month            time.Time `db:"month"`
	Intake           float64   `db:"intake"`
	Conversion       float64   `db:"conversion"`
	CreditPeriodDays *float64  `db:"credit_period_days"`
	DaysAdvanced     *float64  `db:"days_advanced"`
	MaxDaysAdvanced  *float64  `db:"max_days_advanced"`
	Discount         *float64  `db:"discount"`
	PlatformFee      *float64  `db:"platform_fee"`
	APR              *float64  `db:"apr"`
}

func (r vendorMonthRow) record() domain.TransactionRecord {
	rec := domain.TransactionRecord{
		VendorID:         r.VendorID,
		VendorName:       str(r.VendorName),
		BuyerID:          r.BuyerID,
		BuyerName:        str(r.BuyerName),
		Month:            civil.DateOf(r.Month),
		Intake:           r.Intake,
		Conversion:       r.Conversion,
		CreditPeriodDays: num(r.CreditPeriodDays),
		DaysAdvanced:     num(r.DaysAdvanced),
		MaxDaysAdvanced:  num(r.MaxDaysAdvanced),
		Discount:         num(r.Discount),
		PlatformFee:      num(r.PlatformFee),
		APR:              r.APR,
		Eligible:         true,
	}
	rec.Normalize()
	return rec
}

// LoadTransactions returns vendor-buyer-month activity with from <= month <= to.
func (s *Source) LoadTransactions(ctx context.Context, from, to civil.Date) ([]domain.TransactionRecord, error) {
	rows, err := s.q.Query(ctx, vendorMonthsQuery, from.In(time.UTC), to.In(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("LoadTransactions: query: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByName[vendorMonthRow])
	if err != nil {
		return nil, fmt.Errorf("LoadTransactions: scanning rows: %w", err)
	}

	out := make([]domain.TransactionRecord, 0, len(scanned))
	for _, r := range scanned {
		out = append(out, r.record())
	}
	return domain.Consolidate(out), nil
}

type financedInvoiceRow struct {
	VendorID          string     `db:"vendor_id"`
	BuyerID           int64      `db:"buyer_id"`
	Month             time.Time  `db:"month"`
	Amount            float64    `db:"amount"`
	EffectiveDiscount *float64   `db:"effective_discount"`
	DiscountRate      *float64   `db:"discount_rate"`
	APR               *float64   `db:"apr"`
	DaysAdvanced      *float64   `db:"days_advanced"`
	DueDate           *time.Time `db:"due_date"`
	EstimatedDueDate  *time.Time `db:"estimated_due_date"`
	ClearanceDate     *time.Time `db:"clearance_date"`
}

func (r financedInvoiceRow) invoice() domain.FinancedInvoice {
	inv := domain.FinancedInvoice{
		VendorID:          r.VendorID,
		BuyerID:           r.BuyerID,
		Month:             civil.DateOf(r.Month),
		Amount:            r.Amount,
		EffectiveDiscount: num(r.EffectiveDiscount),
		APR:               r.APR,
		DaysAdvanced:      num(r.DaysAdvanced),
		DueDate:           date(r.DueDate),
		EstimatedDueDate:  date(r.EstimatedDueDate),
		ClearanceDate:     date(r.ClearanceDate),
	}
	switch {
	case r.DiscountRate != nil:
		inv.DiscountRate = *r.DiscountRate
	case inv.Amount > 0:
		inv.DiscountRate = inv.EffectiveDiscount / inv.Amount * 100
	}
	return inv
}

// LoadInvoices returns invoices activated with from <= month <= to.
func (s *Source) LoadInvoices(ctx context.Context, from, to civil.Date) ([]domain.FinancedInvoice, error) {
	rows, err := s.q.Query(ctx, financedInvoicesQuery, from.In(time.UTC), to.In(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("LoadInvoices: query: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByName[financedInvoiceRow])
	if err != nil {
		return nil, fmt.Errorf("LoadInvoices: scanning rows: %w", err)
	}

	out := make([]domain.FinancedInvoice, 0, len(scanned))
	for _, r := range scanned {
		out = append(out, r.invoice())
	}
	return out, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func date(p *time.Time) civil.Date {
	if p == nil {
		return civil.Date{}
	}
	return civil.DateOf(*p)
}
