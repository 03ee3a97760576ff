// Package category assigns intake and conversion tiers to window snapshots.
// Labels are evaluated against an explicit as-of fiscal period so that runs
// over different months are comparable.
package category

import (
	"fmt"

	"github.com/dvloznov/vendor-insights/internal/window"
)

// IntakeTier grades how regularly a partition uploads invoices.
type IntakeTier string

const (
	IntakeNew     IntakeTier = "New"
	IntakeRegular IntakeTier = "Regular"
	IntakeMedium  IntakeTier = "Medium"
	IntakeLow     IntakeTier = "Low"
	IntakeNone    IntakeTier = "None"
)

// ConversionTier grades how much uploaded volume is financed.
type ConversionTier string

const (
	ConversionNew            ConversionTier = "New"
	ConversionHigh           ConversionTier = "High"
	ConversionMedium         ConversionTier = "Medium"
	ConversionLow            ConversionTier = "Low"
	ConversionAtRisk         ConversionTier = "At Risk"
	ConversionChurnedRecent  ConversionTier = "Churned <1yr"
	ConversionChurnedLong    ConversionTier = "Churned >1yr"
	ConversionNotTransacted  ConversionTier = "Not Transacted"
	ConversionNeverNewIntake ConversionTier = "Not Transacted - New Intake"
	ConversionNeverOldIntake ConversionTier = "Not Transacted - Old Intake"
)

// IntakeThresholds are the positive-month counts a window needs for a tier.
type IntakeThresholds struct {
	Regular int `mapstructure:"regular" json:"regular"`
	Medium  int `mapstructure:"medium" json:"medium"`
}

// Policy holds every tunable of the categorization rules.
type Policy struct {
	// Intake thresholds keyed by window size in months.
	Intake map[int]IntakeThresholds

	// IntakeWindows and ConversionWindows list the sizes labelled.
	IntakeWindows     []int
	ConversionWindows []int

	// Acceleration-rate bands for conversion tiers.
	HighRatio   float64
	MediumRatio float64

	// NewIntakeMonths is how recent the latest intake must be for a
	// never-converted partition to count as new.
	NewIntakeMonths int
	// ChurnMonths separates recent from long churn.
	ChurnMonths int
	// ChurnDryMonths and AtRiskDryMonths are how many of the most recent
	// intake months must lack conversion to trigger each tier.
	ChurnDryMonths  int
	AtRiskDryMonths int
}

// DefaultPolicy returns the reference thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Intake: map[int]IntakeThresholds{
			window.SixMonths:      {Regular: 5, Medium: 3},
			window.TwelveMonths:   {Regular: 9, Medium: 5},
			window.EighteenMonths: {Regular: 13, Medium: 7},
		},
		IntakeWindows:     []int{window.SixMonths, window.TwelveMonths, window.EighteenMonths},
		ConversionWindows: []int{window.SixMonths, window.TwelveMonths},
		HighRatio:         0.8,
		MediumRatio:       0.5,
		NewIntakeMonths:   8,
		ChurnMonths:       12,
		ChurnDryMonths:    3,
		AtRiskDryMonths:   2,
	}
}

// Validate rejects policies that would produce inconsistent tiers.
func (p Policy) Validate() error {
	for _, size := range p.IntakeWindows {
		th, ok := p.Intake[size]
		if !ok {
			return fmt.Errorf("Validate: no intake thresholds for %d-month window", size)
		}
		if th.Medium < 1 || th.Regular < th.Medium {
			return fmt.Errorf("Validate: %d-month thresholds must satisfy 1 <= medium <= regular, got %d/%d", size, th.Medium, th.Regular)
		}
		if th.Regular > size {
			return fmt.Errorf("Validate: %d-month regular threshold %d exceeds window", size, th.Regular)
		}
	}
	if p.MediumRatio <= 0 || p.HighRatio < p.MediumRatio {
		return fmt.Errorf("Validate: ratio bands must satisfy 0 < medium <= high, got %v/%v", p.MediumRatio, p.HighRatio)
	}
	if p.AtRiskDryMonths < 1 || p.ChurnDryMonths < p.AtRiskDryMonths {
		return fmt.Errorf("Validate: dry-month counts must satisfy 1 <= at-risk <= churn, got %d/%d", p.AtRiskDryMonths, p.ChurnDryMonths)
	}
	if p.ChurnDryMonths > 3 {
		return fmt.Errorf("Validate: churn dry months %d exceeds tracked history of 3", p.ChurnDryMonths)
	}
	return nil
}
