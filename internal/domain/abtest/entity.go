// Package abtest models A/B tests, their variants and aggregated results
package abtest

import (
	"time"
)

// Variant is one arm of a test. Weight is a relative proportion; weights
// across a test need not sum to 100.
type Variant struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Test defines an experiment over a set of weighted variants
type Test struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Variants        []Variant `json:"variants"`
	ConfidenceLevel float64   `json:"confidence_level"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// ControlVariant returns the first variant, which serves as the baseline
// for significance comparisons
func (t *Test) ControlVariant() (Variant, bool) {
	if len(t.Variants) == 0 {
		return Variant{}, false
	}
	return t.Variants[0], true
}

// TotalWeight sums variant weights, substituting an equal share for
// variants that leave Weight unset
func (t *Test) TotalWeight() float64 {
	var total float64
	for _, v := range t.Variants {
		if v.Weight > 0 {
			total += v.Weight
		} else {
			total += 1
		}
	}
	return total
}

// VariantCounts aggregates raw impressions and conversions for one variant
type VariantCounts struct {
	VariantID   string `json:"variant_id"`
	Impressions int64  `json:"impressions"`
	Conversions int64  `json:"conversions"`
}

// Rate returns the conversion rate, zero when there are no impressions
func (c VariantCounts) Rate() float64 {
	if c.Impressions == 0 {
		return 0
	}
	return float64(c.Conversions) / float64(c.Impressions)
}

// VariantResult is a variant's counts plus derived statistics against control
type VariantResult struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"name"`
	Impressions    int64   `json:"impressions"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	ZScore         float64 `json:"z_score"`
	PValue         float64 `json:"p_value"`
	Confidence     float64 `json:"confidence"`
	Winner         bool    `json:"winner"`
}

// Result is the full analysis of a test at a point in time
type Result struct {
	TestID      string          `json:"test_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Variants    []VariantResult `json:"variants"`
	HasWinner   bool            `json:"has_winner"`
	WinnerID    string          `json:"winner_id,omitempty"`
}
