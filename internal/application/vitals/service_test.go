package vitals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordRatesAgainstThresholds(t *testing.T) {
	c := NewCollector(zap.NewNop())
	now := time.Now()

	tests := []struct {
		metric string
		value  float64
		rating Rating
	}{
		{MetricLCP, 2000, RatingGood},
		{MetricLCP, 2500, RatingGood},
		{MetricLCP, 3000, RatingNeedsImprovement},
		{MetricLCP, 4000, RatingNeedsImprovement},
		{MetricLCP, 4500, RatingPoor},
		{MetricCLS, 0.05, RatingGood},
		{MetricCLS, 0.2, RatingNeedsImprovement},
		{MetricCLS, 0.3, RatingPoor},
		{MetricINP, 150, RatingGood},
		{MetricINP, 600, RatingPoor},
		{MetricTTFB, 500, RatingGood},
		{"custom_metric", 123, RatingUnknown},
	}
	for _, tt := range tests {
		m := c.Record(tt.metric, "/home", tt.value, now)
		assert.Equal(t, tt.rating, m.Rating, "%s=%v", tt.metric, tt.value)
	}
}

func TestSummarize(t *testing.T) {
	c := NewCollector(zap.NewNop())
	now := time.Now()

	c.Record(MetricLCP, "/home", 2000, now)
	c.Record(MetricLCP, "/home", 3000, now)
	c.Record(MetricLCP, "/checkout", 5000, now)

	summaries := c.Summarize()
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, MetricLCP, s.Metric)
	assert.Equal(t, 3, s.Samples)
	assert.InDelta(t, 10000.0/3, s.Average, 1e-9)
	assert.InDelta(t, 1.0/3, s.GoodRate, 1e-9)
	assert.InDelta(t, 1.0/3, s.PoorRate, 1e-9)
}

func TestSampleBufferCapEvictsOldest(t *testing.T) {
	c := NewCollector(zap.NewNop())
	now := time.Now()

	for i := 0; i < maxSamples+50; i++ {
		c.Record(MetricCLS, "/home", 0.01, now)
	}

	summaries := c.Summarize()
	require.Len(t, summaries, 1)
	assert.Equal(t, maxSamples, summaries[0].Samples)
}
