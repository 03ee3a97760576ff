// Package revshare attributes a buyer-specific revenue share to financed
// invoices. Each buyer is bound to at most one rule; buyers without a rule
// earn nothing.
package revshare

import (
	"errors"
	"fmt"
	"sort"
)

// Kind selects the formula a rule evaluates.
type Kind string

const (
	// FlatPercent: discount × share.
	FlatPercent Kind = "flat_percent"
	// RateTimesAmount: discount rate / 100 × amount × share.
	RateTimesAmount Kind = "rate_times_amount"
	// Spread: (APR − base) × amount × days / 36500 × share.
	Spread Kind = "spread"
	// TieredSpread: like Spread with the share stepped by invoice amount.
	TieredSpread Kind = "tiered_spread"
	// DiscountSpread: discount × (APR − base) / 100 × share.
	DiscountSpread Kind = "discount_spread"
	// DateRatio: discount × (estimated due − due) / (estimated due − clearance) × share.
	DateRatio Kind = "date_ratio"
	// Conditional picks Then or Else by comparing a scaled APR with a threshold.
	Conditional Kind = "conditional"
)

// Default tier breakpoints on invoice amount for TieredSpread.
const (
	LowerBreakpoint = 150_000_000
	UpperBreakpoint = 250_000_000
)

var (
	// ErrDuplicateBuyer is returned when a buyer is bound to more than one rule.
	ErrDuplicateBuyer = errors.New("buyer bound to more than one rule")
	// ErrInvalidRule is returned for rules whose parameters cannot be evaluated.
	ErrInvalidRule = errors.New("invalid rule")
)

// Condition compares APR × Factor against Threshold using Op ("<" or ">").
type Condition struct {
	Factor    float64 `yaml:"factor"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
}

// Rule binds a set of buyers to one formula.
type Rule struct {
	Name     string  `yaml:"name"`
	BuyerIDs []int64 `yaml:"buyer_ids"`
	Kind     Kind    `yaml:"kind"`

	Share float64 `yaml:"share"`
	Base  float64 `yaml:"base"`

	// TieredSpread: Tiers[0] below the lower breakpoint, Tiers[1] up to and
	// including the upper one, Tiers[2] above.
	Tiers       []float64 `yaml:"tiers,omitempty"`
	Breakpoints []float64 `yaml:"breakpoints,omitempty"`

	When *Condition `yaml:"when,omitempty"`
	Then *Rule      `yaml:"then,omitempty"`
	Else *Rule      `yaml:"else,omitempty"`
}

// Validate checks that the rule's parameters fit its kind.
func (r *Rule) Validate() error {
	switch r.Kind {
	case FlatPercent, RateTimesAmount, Spread, DiscountSpread, DateRatio:
		return nil
	case TieredSpread:
		if len(r.Tiers) != 3 {
			return fmt.Errorf("%w: %s: tiered spread needs 3 tiers, got %d", ErrInvalidRule, r.Name, len(r.Tiers))
		}
		if len(r.Breakpoints) != 0 && len(r.Breakpoints) != 2 {
			return fmt.Errorf("%w: %s: tiered spread needs 2 breakpoints, got %d", ErrInvalidRule, r.Name, len(r.Breakpoints))
		}
		return nil
	case Conditional:
		if r.When == nil || r.Then == nil || r.Else == nil {
			return fmt.Errorf("%w: %s: conditional needs when, then and else", ErrInvalidRule, r.Name)
		}
		if r.When.Op != "<" && r.When.Op != ">" {
			return fmt.Errorf("%w: %s: unsupported operator %q", ErrInvalidRule, r.Name, r.When.Op)
		}
		for _, branch := range []*Rule{r.Then, r.Else} {
			if branch.Kind == Conditional {
				return fmt.Errorf("%w: %s: nested conditionals are not supported", ErrInvalidRule, r.Name)
			}
			if err := branch.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRule, r.Name, r.Kind)
	}
}

// Table maps buyer IDs to their rule.
type Table struct {
	rules   []Rule
	byBuyer map[int64]int
}

// NewTable validates rules and indexes them by buyer.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{
		rules:   make([]Rule, 0, len(rules)),
		byBuyer: make(map[int64]int),
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("NewTable: %w", err)
		}
		idx := len(t.rules)
		for _, id := range r.BuyerIDs {
			if prev, ok := t.byBuyer[id]; ok {
				return nil, fmt.Errorf("NewTable: buyer %d in %q and %q: %w", id, t.rules[prev].Name, r.Name, ErrDuplicateBuyer)
			}
			t.byBuyer[id] = idx
		}
		t.rules = append(t.rules, r)
	}
	return t, nil
}

// Rule returns the rule bound to buyerID.
func (t *Table) Rule(buyerID int64) (Rule, bool) {
	idx, ok := t.byBuyer[buyerID]
	if !ok {
		return Rule{}, false
	}
	return t.rules[idx], true
}

// Rules returns the table's rules in declaration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// BuyerIDs returns every buyer with a rule, ascending.
func (t *Table) BuyerIDs() []int64 {
	ids := make([]int64, 0, len(t.byBuyer))
	for id := range t.byBuyer {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
