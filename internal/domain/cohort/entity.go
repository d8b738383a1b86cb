// Package cohort models criteria-defined user groups used for comparative
// behavior analysis. A cohort's definition is immutable after creation;
// its membership is not.
package cohort

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Operator compares a user property against a criteria value
type Operator string

// Property comparison operators
const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// UserProfile is the per-user metadata criteria are evaluated against
type UserProfile struct {
	UserID     string                 `json:"user_id"`
	SignupDate time.Time              `json:"signup_date"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Criteria is the closed union of cohort membership rules
type Criteria interface {
	// Matches reports whether the profile satisfies the rule. Behavior
	// criteria need journey data and are evaluated by the analyzer instead.
	Matches(profile UserProfile) bool
	Describe() string
}

// SignupDateCriteria matches users who signed up within [Start, End]
type SignupDateCriteria struct {
	Start time.Time
	End   time.Time
}

// Matches implements Criteria
func (c SignupDateCriteria) Matches(profile UserProfile) bool {
	if profile.SignupDate.IsZero() {
		return false
	}
	return !profile.SignupDate.Before(c.Start) && !profile.SignupDate.After(c.End)
}

// Describe implements Criteria
func (c SignupDateCriteria) Describe() string {
	return fmt.Sprintf("signup between %s and %s", c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"))
}

// PropertyCriteria matches users by a property comparison
type PropertyCriteria struct {
	Key   string
	Op    Operator
	Value interface{}
}

// Matches implements Criteria
func (c PropertyCriteria) Matches(profile UserProfile) bool {
	raw, ok := profile.Properties[c.Key]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEquals:
		return fmt.Sprintf("%v", raw) == fmt.Sprintf("%v", c.Value)
	case OpContains:
		return strings.Contains(fmt.Sprintf("%v", raw), fmt.Sprintf("%v", c.Value))
	case OpGreaterThan:
		a, aok := toFloat(raw)
		b, bok := toFloat(c.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(raw)
		b, bok := toFloat(c.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

// Describe implements Criteria
func (c PropertyCriteria) Describe() string {
	return fmt.Sprintf("property %s %s %v", c.Key, c.Op, c.Value)
}

// BehaviorCriteria matches users who visited a path at least MinOccurrences
// times across their tracked journeys. Evaluated by the analyzer, which owns
// the journey history; Matches alone cannot decide it.
type BehaviorCriteria struct {
	Path           string
	MinOccurrences int
}

// Matches implements Criteria; always false without journey context
func (c BehaviorCriteria) Matches(profile UserProfile) bool { return false }

// Describe implements Criteria
func (c BehaviorCriteria) Describe() string {
	return fmt.Sprintf("visited %s at least %d times", c.Path, c.MinOccurrences)
}

// CustomCriteria wraps a caller-supplied predicate
type CustomCriteria struct {
	Name      string
	Predicate func(profile UserProfile) bool
}

// Matches implements Criteria
func (c CustomCriteria) Matches(profile UserProfile) bool {
	if c.Predicate == nil {
		return false
	}
	return c.Predicate(profile)
}

// Describe implements Criteria
func (c CustomCriteria) Describe() string {
	if c.Name == "" {
		return "custom predicate"
	}
	return c.Name
}

// Cohort is a named, criteria-defined user group. Membership carries its
// own lock; metric scans read it while assignment writes it.
type Cohort struct {
	ID        string
	Name      string
	Criteria  Criteria
	CreatedAt time.Time

	mu    sync.RWMutex
	users map[string]struct{}
}

// New creates a cohort with an immutable definition and empty membership
func New(id, name string, criteria Criteria, at time.Time) *Cohort {
	return &Cohort{
		ID:        id,
		Name:      name,
		Criteria:  criteria,
		CreatedAt: at,
		users:     make(map[string]struct{}),
	}
}

// AddUser adds a member; adding twice is a no-op
func (c *Cohort) AddUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[userID] = struct{}{}
}

// RemoveUser drops a member
func (c *Cohort) RemoveUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
}

// HasUser reports membership
func (c *Cohort) HasUser(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.users[userID]
	return ok
}

// Users returns a copy of the member IDs in unspecified order
func (c *Cohort) Users() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.users))
	for id := range c.users {
		out = append(out, id)
	}
	return out
}

// Size returns the member count
func (c *Cohort) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
