package domain

// Amounts are held in base currency units internally. Lacs and crores only
// appear at ingestion and in reports.
const (
	Lac   = 100_000
	Crore = 10_000_000
)

// FromLacs converts an amount in lacs to base units.
func FromLacs(v float64) float64 { return v * Lac }

// ToLacs converts an amount in base units to lacs.
func ToLacs(v float64) float64 { return v / Lac }

// FromCrores converts an amount in crores to base units.
func FromCrores(v float64) float64 { return v * Crore }
