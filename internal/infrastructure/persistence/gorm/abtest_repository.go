package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tablewise/insights/internal/domain/abtest"
)

// ABTestRepository implements outbound.ABTestRepository over GORM
type ABTestRepository struct {
	db *gorm.DB
}

// NewABTestRepository creates an A/B test archive repository
func NewABTestRepository(db *gorm.DB) *ABTestRepository {
	return &ABTestRepository{db: db}
}

// SaveTest upserts a test definition
func (r *ABTestRepository) SaveTest(ctx context.Context, tenantID, testID, name string, confidenceLevel float64) error {
	model := ABTestModel{
		ID:              tenantID + ":" + testID,
		TenantID:        tenantID,
		TestID:          testID,
		Name:            name,
		ConfidenceLevel: confidenceLevel,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "confidence_level", "updated_at"}),
		}).
		Create(&model).Error
}

// RecordImpression atomically increments a variant's impression counter
func (r *ABTestRepository) RecordImpression(ctx context.Context, tenantID, testID, variantID string) error {
	return r.increment(ctx, tenantID, testID, variantID, "impressions")
}

// RecordConversion atomically increments a variant's conversion counter
func (r *ABTestRepository) RecordConversion(ctx context.Context, tenantID, testID, variantID string) error {
	return r.increment(ctx, tenantID, testID, variantID, "conversions")
}

func (r *ABTestRepository) increment(ctx context.Context, tenantID, testID, variantID, column string) error {
	model := ABVariantCounterModel{
		ID:        counterID(tenantID, testID, variantID),
		TenantID:  tenantID,
		TestID:    testID,
		VariantID: variantID,
	}
	switch column {
	case "impressions":
		model.Impressions = 1
	case "conversions":
		model.Conversions = 1
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				column: gorm.Expr(column+" + ?", 1),
			}),
		}).
		Create(&model).Error
}

// VariantCounts returns the aggregated counters for a test's variants
func (r *ABTestRepository) VariantCounts(ctx context.Context, tenantID, testID string) ([]abtest.VariantCounts, error) {
	var models []ABVariantCounterModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND test_id = ?", tenantID, testID).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	counts := make([]abtest.VariantCounts, 0, len(models))
	for _, m := range models {
		counts = append(counts, abtest.VariantCounts{
			VariantID:   m.VariantID,
			Impressions: m.Impressions,
			Conversions: m.Conversions,
		})
	}
	return counts, nil
}

func counterID(tenantID, testID, variantID string) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, testID, variantID)
}
