// Package healthcheck runs dependency probes for readiness reporting.
// Checks execute in parallel with a shared timeout; one failing dependency
// degrades the report instead of failing it outright unless marked critical.
package healthcheck

import (
	"context"
	"sync"
	"time"
)

// Status is the health of a check or the whole report
type Status string

// Health statuses
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultTimeout bounds a single run of all checks
const DefaultTimeout = 5 * time.Second

// CheckResult is the outcome of one probe
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Critical  bool          `json:"critical"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Report aggregates all check results
type Report struct {
	Status   Status        `json:"status"`
	Checks   []CheckResult `json:"checks"`
	Duration time.Duration `json:"duration"`
}

// PingFunc probes one dependency
type PingFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	ping     PingFunc
}

// Registry holds the registered checks
type Registry struct {
	timeout time.Duration

	mu     sync.Mutex
	checks []check
}

// NewRegistry creates a check registry with the default timeout
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultTimeout}
}

// Register adds a probe. Critical checks make the whole report unhealthy on
// failure; non-critical ones only degrade it.
func (r *Registry) Register(name string, critical bool, ping PingFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check{name: name, critical: critical, ping: ping})
}

// Run executes every check in parallel and aggregates the report
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.Lock()
	checks := make([]check, len(r.checks))
	copy(checks, r.checks)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := Report{
		Status:   StatusHealthy,
		Checks:   results,
		Duration: time.Since(start),
	}
	for _, res := range results {
		if res.Status != StatusUnhealthy {
			continue
		}
		if res.Critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

func runCheck(ctx context.Context, c check) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Critical:  c.critical,
		CheckedAt: start,
	}
	if err := c.ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}
