// Package funnel models ordered stage sequences and the drop-off analysis
// computed over them
package funnel

// Stage is one named step of a funnel with the user count that reached it
type Stage struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// DropOffSeverity buckets how alarming a stage-to-stage drop-off is
type DropOffSeverity string

// Drop-off severity levels
const (
	SeverityLow      DropOffSeverity = "low"
	SeverityMedium   DropOffSeverity = "medium"
	SeverityHigh     DropOffSeverity = "high"
	SeverityCritical DropOffSeverity = "critical"
)

// StageTransition is the analysis of one adjacent stage pair
type StageTransition struct {
	FromStage   string          `json:"from_stage"`
	ToStage     string          `json:"to_stage"`
	FromCount   int64           `json:"from_count"`
	ToCount     int64           `json:"to_count"`
	DropOffRate float64         `json:"drop_off_rate"`
	Severity    DropOffSeverity `json:"severity"`
	Suggestion  string          `json:"suggestion"`
}

// Analysis is the full funnel report
type Analysis struct {
	Stages                []Stage           `json:"stages"`
	Transitions           []StageTransition `json:"transitions"`
	OverallConversionRate float64           `json:"overall_conversion_rate"`
	CriticalDropOffs      []StageTransition `json:"critical_drop_offs"`
}

// TrendDirection labels how a stage's conversion moved between two analyses
type TrendDirection string

// Trend directions for funnel comparisons
const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// StageDelta is the stage-by-stage diff between two funnel analyses
type StageDelta struct {
	Stage        string         `json:"stage"`
	BaselineRate float64        `json:"baseline_rate"`
	CurrentRate  float64        `json:"current_rate"`
	Change       float64        `json:"change"`
	Trend        TrendDirection `json:"trend"`
}

// Comparison diffs two funnel analyses
type Comparison struct {
	Deltas              []StageDelta `json:"deltas"`
	OverallChange       float64      `json:"overall_change"`
	NewCriticalDropOffs []string     `json:"new_critical_drop_offs"`
	ResolvedDropOffs    []string     `json:"resolved_drop_offs"`
}

// SeverityForRate buckets a drop-off rate
func SeverityForRate(rate float64) DropOffSeverity {
	switch {
	case rate >= 0.5:
		return SeverityCritical
	case rate >= 0.3:
		return SeverityHigh
	case rate >= 0.15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
