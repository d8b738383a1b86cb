package abtest

import "math"

// TwoProportionZTest computes the Z-statistic for the difference between
// two conversion proportions under the pooled null hypothesis. Returns 0
// when either arm has no impressions or the pooled variance collapses.
func TwoProportionZTest(aConv, aImpr, bConv, bImpr int64) float64 {
	if aImpr == 0 || bImpr == 0 {
		return 0
	}
	pA := float64(aConv) / float64(aImpr)
	pB := float64(bConv) / float64(bImpr)

	pooled := float64(aConv+bConv) / float64(aImpr+bImpr)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aImpr) + 1/float64(bImpr)))
	if se == 0 {
		return 0
	}
	return (pA - pB) / se
}

// TwoTailedPValue converts a Z-score to a two-tailed p-value
func TwoTailedPValue(z float64) float64 {
	return 2 * (1 - NormalCDF(math.Abs(z)))
}

// NormalCDF approximates the standard normal cumulative distribution
// function using Abramowitz and Stegun formula 7.1.26
func NormalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

// Sample size constants. These are fixed for 95% confidence / 80% power;
// MinimumSampleSize accepts confidence and power arguments but the original
// formula never used them, and that behavior is preserved intentionally.
const (
	zAlpha = 1.96
	zBeta  = 0.84
)

// minimumSampleSize applies the standard two-proportion power analysis
// formula per variant arm
func minimumSampleSize(baselineRate, minimumDetectableEffect float64) int64 {
	if minimumDetectableEffect == 0 {
		return 0
	}
	p1 := baselineRate
	p2 := baselineRate + minimumDetectableEffect

	numerator := math.Pow(zAlpha+zBeta, 2) * (p1*(1-p1) + p2*(1-p2))
	denominator := math.Pow(p2-p1, 2)
	return int64(math.Ceil(numerator / denominator))
}
