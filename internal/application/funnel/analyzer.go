// Package funnel computes conversion and drop-off analysis over ordered
// stage sequences. Everything here is pure and deterministic.
package funnel

import (
	"math"

	funneldomain "github.com/tablewise/insights/internal/domain/funnel"
	"github.com/tablewise/insights/internal/ports/inbound"
)

var _ inbound.FunnelAnalyzer = (*Analyzer)(nil)

// swingThreshold is the conversion change, in percentage points, that flags
// a stage as improving or declining between two analyses
const swingThreshold = 5.0

// Analyzer computes funnel reports
type Analyzer struct{}

// NewAnalyzer creates a funnel analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze computes drop-off rates and severity for each adjacent stage pair.
// Counts are expected monotonically non-increasing but that is not enforced;
// a growing stage simply reports zero drop-off.
func (a *Analyzer) Analyze(stages []funneldomain.Stage) funneldomain.Analysis {
	analysis := funneldomain.Analysis{Stages: stages}
	if len(stages) == 0 {
		return analysis
	}

	for i := 1; i < len(stages); i++ {
		prev, next := stages[i-1], stages[i]
		transition := funneldomain.StageTransition{
			FromStage: prev.Name,
			ToStage:   next.Name,
			FromCount: prev.Count,
			ToCount:   next.Count,
		}
		if prev.Count > 0 {
			rate := float64(prev.Count-next.Count) / float64(prev.Count)
			if rate < 0 {
				rate = 0
			}
			transition.DropOffRate = rate
		}
		transition.Severity = funneldomain.SeverityForRate(transition.DropOffRate)
		transition.Suggestion = suggestionFor(prev.Name, next.Name)
		analysis.Transitions = append(analysis.Transitions, transition)

		if transition.Severity == funneldomain.SeverityCritical {
			analysis.CriticalDropOffs = append(analysis.CriticalDropOffs, transition)
		}
	}

	if first := stages[0].Count; first > 0 {
		analysis.OverallConversionRate = float64(stages[len(stages)-1].Count) / float64(first) * 100
	}
	return analysis
}

// Compare diffs two analyses stage-by-stage, matching stages by name.
// Conversion swings over five points are flagged as improving or declining.
func (a *Analyzer) Compare(baseline, current funneldomain.Analysis) funneldomain.Comparison {
	comparison := funneldomain.Comparison{
		OverallChange: current.OverallConversionRate - baseline.OverallConversionRate,
	}

	baseRates := transitionRates(baseline)
	for _, tr := range current.Transitions {
		currentRate := (1 - tr.DropOffRate) * 100
		delta := funneldomain.StageDelta{
			Stage:       tr.ToStage,
			CurrentRate: currentRate,
			Trend:       funneldomain.TrendStable,
		}
		if baseRate, ok := baseRates[tr.ToStage]; ok {
			delta.BaselineRate = baseRate
			delta.Change = currentRate - baseRate
			switch {
			case delta.Change > swingThreshold:
				delta.Trend = funneldomain.TrendImproving
			case delta.Change < -swingThreshold:
				delta.Trend = funneldomain.TrendDeclining
			}
		}
		comparison.Deltas = append(comparison.Deltas, delta)
	}

	baseCritical := criticalKeys(baseline)
	currentCritical := criticalKeys(current)
	for key := range currentCritical {
		if _, ok := baseCritical[key]; !ok {
			comparison.NewCriticalDropOffs = append(comparison.NewCriticalDropOffs, key)
		}
	}
	for key := range baseCritical {
		if _, ok := currentCritical[key]; !ok {
			comparison.ResolvedDropOffs = append(comparison.ResolvedDropOffs, key)
		}
	}
	return comparison
}

// ConversionConsistent verifies the invariant that per-stage conversions
// recombine into the overall rate, within floating tolerance
func ConversionConsistent(analysis funneldomain.Analysis) bool {
	if len(analysis.Stages) == 0 || analysis.Stages[0].Count == 0 {
		return true
	}
	first := float64(analysis.Stages[0].Count)
	last := float64(analysis.Stages[len(analysis.Stages)-1].Count)
	return math.Abs(last/first-analysis.OverallConversionRate/100) < 1e-9
}

func transitionRates(analysis funneldomain.Analysis) map[string]float64 {
	rates := make(map[string]float64, len(analysis.Transitions))
	for _, tr := range analysis.Transitions {
		rates[tr.ToStage] = (1 - tr.DropOffRate) * 100
	}
	return rates
}

func criticalKeys(analysis funneldomain.Analysis) map[string]struct{} {
	keys := make(map[string]struct{}, len(analysis.CriticalDropOffs))
	for _, tr := range analysis.CriticalDropOffs {
		keys[tr.FromStage+"_to_"+tr.ToStage] = struct{}{}
	}
	return keys
}
