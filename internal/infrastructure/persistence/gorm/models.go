// Package gorm provides the GORM persistence models and repositories for
// the analytics archive
package gorm

import (
	"time"
)

// FrictionEventModel archives a classified friction event. Detail holds the
// classifier payload as JSON.
type FrictionEventModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TenantID  string    `gorm:"index:idx_friction_tenant_time;size:64;not null"`
	SessionID string    `gorm:"index;size:64"`
	Type      string    `gorm:"size:32;not null"`
	Severity  string    `gorm:"size:16;not null"`
	ElementID string    `gorm:"size:128"`
	Element   string    `gorm:"type:text"`
	Detail    string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index:idx_friction_tenant_time"`
	CreatedAt time.Time
}

// TableName overrides the table name
func (FrictionEventModel) TableName() string { return "friction_events" }

// ABTestModel archives a test definition
type ABTestModel struct {
	ID              string `gorm:"primaryKey;size:128"` // tenantID:testID
	TenantID        string `gorm:"index;size:64;not null"`
	TestID          string `gorm:"size:64;not null"`
	Name            string `gorm:"size:255"`
	ConfidenceLevel float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName overrides the table name
func (ABTestModel) TableName() string { return "ab_tests" }

// ABVariantCounterModel holds per-variant impression/conversion counters
type ABVariantCounterModel struct {
	ID          string `gorm:"primaryKey;size:192"` // tenantID:testID:variantID
	TenantID    string `gorm:"index;size:64;not null"`
	TestID      string `gorm:"index;size:64;not null"`
	VariantID   string `gorm:"size:64;not null"`
	Impressions int64
	Conversions int64
	UpdatedAt   time.Time
}

// TableName overrides the table name
func (ABVariantCounterModel) TableName() string { return "ab_variant_counters" }
