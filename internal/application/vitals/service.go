// Package vitals collects web-vitals style performance measurements posted
// by capture agents and buckets them against Google's thresholds
package vitals

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metric names accepted on ingest
const (
	MetricLCP  = "lcp"
	MetricCLS  = "cls"
	MetricINP  = "inp"
	MetricFCP  = "fcp"
	MetricTTFB = "ttfb"
)

// Rating buckets a measurement
type Rating string

// Measurement ratings
const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs_improvement"
	RatingPoor             Rating = "poor"
	RatingUnknown          Rating = "unknown"
)

// Threshold holds the good/poor cut points for one metric
type Threshold struct {
	Good float64
	Poor float64
}

// DefaultThresholds returns Google's Core Web Vitals thresholds.
// LCP/INP/FCP/TTFB in milliseconds, CLS unitless.
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		MetricLCP:  {Good: 2500, Poor: 4000},
		MetricCLS:  {Good: 0.1, Poor: 0.25},
		MetricINP:  {Good: 200, Poor: 500},
		MetricFCP:  {Good: 1800, Poor: 3000},
		MetricTTFB: {Good: 800, Poor: 1800},
	}
}

// maxSamples caps the per-metric sample buffer, FIFO eviction
const maxSamples = 500

// Measurement is one reported vital
type Measurement struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Page      string    `json:"page"`
	Rating    Rating    `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates one metric's samples
type Summary struct {
	Metric   string  `json:"metric"`
	Samples  int     `json:"samples"`
	Average  float64 `json:"average"`
	GoodRate float64 `json:"good_rate"`
	PoorRate float64 `json:"poor_rate"`
}

// Collector accumulates measurements per tenant
type Collector struct {
	thresholds map[string]Threshold
	logger     *zap.Logger

	mu      sync.Mutex
	samples map[string][]Measurement
}

// NewCollector creates a vitals collector with the default thresholds
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{
		thresholds: DefaultThresholds(),
		logger:     logger.Named("vitals"),
		samples:    make(map[string][]Measurement),
	}
}

// Record buckets and stores a measurement. Unknown metric names are kept
// with an unknown rating rather than rejected; collection is best-effort.
func (c *Collector) Record(metric, page string, value float64, at time.Time) Measurement {
	m := Measurement{
		Metric:    metric,
		Value:     value,
		Page:      page,
		Rating:    c.rate(metric, value),
		Timestamp: at,
	}

	c.mu.Lock()
	buf := append(c.samples[metric], m)
	if len(buf) > maxSamples {
		buf = buf[len(buf)-maxSamples:]
	}
	c.samples[metric] = buf
	c.mu.Unlock()

	if m.Rating == RatingPoor {
		c.logger.Debug("Poor vital recorded",
			zap.String("metric", metric),
			zap.Float64("value", value),
			zap.String("page", page),
		)
	}
	return m
}

// Summarize aggregates all recorded metrics
func (c *Collector) Summarize() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Summary, 0, len(c.samples))
	for metric, samples := range c.samples {
		if len(samples) == 0 {
			continue
		}
		s := Summary{Metric: metric, Samples: len(samples)}
		var total float64
		var good, poor int
		for _, m := range samples {
			total += m.Value
			switch m.Rating {
			case RatingGood:
				good++
			case RatingPoor:
				poor++
			}
		}
		s.Average = total / float64(len(samples))
		s.GoodRate = float64(good) / float64(len(samples))
		s.PoorRate = float64(poor) / float64(len(samples))
		out = append(out, s)
	}
	return out
}

func (c *Collector) rate(metric string, value float64) Rating {
	t, ok := c.thresholds[metric]
	if !ok {
		return RatingUnknown
	}
	switch {
	case value <= t.Good:
		return RatingGood
	case value > t.Poor:
		return RatingPoor
	default:
		return RatingNeedsImprovement
	}
}
