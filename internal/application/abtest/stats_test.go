package abtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-6)
	assert.InDelta(t, 0.8413, NormalCDF(1), 1e-3)
	assert.InDelta(t, 0.975, NormalCDF(1.96), 1e-3)
	assert.InDelta(t, 0.025, NormalCDF(-1.96), 1e-3)
	assert.InDelta(t, 1.0, NormalCDF(6), 1e-6)
}

func TestTwoProportionZTest(t *testing.T) {
	// 20% vs 10% over 100 impressions each: pooled p = 0.15,
	// se = sqrt(0.15*0.85*0.02), z ~= 1.98
	z := TwoProportionZTest(20, 100, 10, 100)
	assert.InDelta(t, 1.98, z, 0.01)

	// Symmetric in sign
	assert.InDelta(t, -z, TwoProportionZTest(10, 100, 20, 100), 1e-9)

	// Identical proportions score zero
	assert.Zero(t, TwoProportionZTest(10, 100, 10, 100))
}

func TestTwoProportionZTestDegenerateInputs(t *testing.T) {
	assert.Zero(t, TwoProportionZTest(0, 0, 10, 100))
	assert.Zero(t, TwoProportionZTest(10, 100, 0, 0))
	// All conversions: pooled variance collapses
	assert.Zero(t, TwoProportionZTest(100, 100, 100, 100))
	assert.Zero(t, TwoProportionZTest(0, 100, 0, 100))
}

func TestTwoTailedPValue(t *testing.T) {
	assert.InDelta(t, 1.0, TwoTailedPValue(0), 1e-6)
	assert.InDelta(t, 0.05, TwoTailedPValue(1.96), 2e-3)
	// Sign does not matter
	assert.InDelta(t, TwoTailedPValue(2.5), TwoTailedPValue(-2.5), 1e-9)
}

func TestMinimumSampleSize(t *testing.T) {
	// (1.96+0.84)^2 * (0.1*0.9 + 0.12*0.88) / 0.02^2, rounded up
	assert.Equal(t, int64(3834), minimumSampleSize(0.10, 0.02))
	assert.Zero(t, minimumSampleSize(0.10, 0))

	// Larger detectable effects need fewer samples
	assert.Less(t, minimumSampleSize(0.10, 0.05), minimumSampleSize(0.10, 0.02))
}
