// Package abtest implements variant assignment and significance analysis
// for A/B tests. Assignment is deterministic per (test, user); significance
// uses a two-proportion Z-test against the control variant.
package abtest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	abtestdomain "github.com/tablewise/insights/internal/domain/abtest"
	"github.com/tablewise/insights/internal/ports/inbound"
	"github.com/tablewise/insights/internal/ports/outbound"
	apperrors "github.com/tablewise/insights/pkg/errors"
)

var _ inbound.ABTestService = (*Service)(nil)

// AssignmentKeyPrefix namespaces persisted variant assignments
const AssignmentKeyPrefix = "ab_test"

// DefaultConfidenceLevel is used when a test does not set its own
const DefaultConfidenceLevel = 0.95

// Service manages A/B tests for one tenant
type Service struct {
	tenantID string
	store    outbound.StateStore
	repo     outbound.ABTestRepository
	logger   *zap.Logger

	mu    sync.RWMutex
	tests map[string]*abtestdomain.Test
	now   func() time.Time
	rand  *rand.Rand
}

// NewService creates an A/B test service. store persists per-user variant
// assignments so repeat visits stay in the same arm; repo archives counters.
func NewService(tenantID string, store outbound.StateStore, repo outbound.ABTestRepository, logger *zap.Logger) *Service {
	return &Service{
		tenantID: tenantID,
		store:    store,
		repo:     repo,
		logger:   logger.Named("abtest"),
		tests:    make(map[string]*abtestdomain.Test),
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateTest registers a test definition
func (s *Service) CreateTest(ctx context.Context, test abtestdomain.Test) error {
	if test.ID == "" || len(test.Variants) == 0 {
		return apperrors.NewValidationError("test requires an id and at least one variant")
	}
	if test.ConfidenceLevel == 0 {
		test.ConfidenceLevel = DefaultConfidenceLevel
	}
	test.Active = true
	test.CreatedAt = s.now()

	s.mu.Lock()
	s.tests[test.ID] = &test
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveTest(ctx, s.tenantID, test.ID, test.Name, test.ConfidenceLevel); err != nil {
			s.logger.Warn("Test archive write failed", zap.Error(err))
		}
	}
	s.logger.Info("A/B test created",
		zap.String("test_id", test.ID),
		zap.Int("variants", len(test.Variants)),
	)
	return nil
}

// AssignVariant picks a variant for the user. With a userID the choice is a
// deterministic hash, stable across calls; anonymous users get a random
// draw. Assignments are persisted and reused on later calls.
func (s *Service) AssignVariant(ctx context.Context, testID, userID string) (abtestdomain.Variant, error) {
	s.mu.RLock()
	test, ok := s.tests[testID]
	s.mu.RUnlock()
	if !ok {
		return abtestdomain.Variant{}, apperrors.NewTestNotFoundError(testID)
	}

	if userID != "" {
		if v, ok := s.storedAssignment(ctx, test, userID); ok {
			return v, nil
		}
	}

	var position float64
	if userID != "" {
		position = hashToUnit(testID + ":" + userID)
	} else {
		s.mu.Lock()
		position = s.rand.Float64()
		s.mu.Unlock()
	}

	variant := pickByWeight(test, position)
	if userID != "" {
		s.saveAssignment(ctx, testID, userID, variant.ID)
	}
	return variant, nil
}

// pickByWeight walks cumulative weight buckets. Variants without a weight
// get an equal share of the unweighted remainder.
func pickByWeight(test *abtestdomain.Test, position float64) abtestdomain.Variant {
	total := test.TotalWeight()
	target := position * total

	var cumulative float64
	for _, v := range test.Variants {
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		cumulative += w
		if target < cumulative {
			return v
		}
	}
	return test.Variants[len(test.Variants)-1]
}

// hashToUnit maps a string to [0, 1) via a 32-bit rolling hash
func hashToUnit(s string) float64 {
	var h int32
	for _, c := range s {
		h = h*31 + int32(c)
	}
	if h < 0 {
		h = -h
	}
	return float64(h) / float64(1<<31)
}

// RecordImpression counts a variant exposure
func (s *Service) RecordImpression(ctx context.Context, testID, variantID string) error {
	if err := s.requireTest(testID); err != nil {
		return err
	}
	if s.repo == nil {
		return nil
	}
	if err := s.repo.RecordImpression(ctx, s.tenantID, testID, variantID); err != nil {
		s.logger.Warn("Impression write failed", zap.Error(err))
	}
	return nil
}

// RecordConversion counts a variant conversion
func (s *Service) RecordConversion(ctx context.Context, testID, variantID string) error {
	if err := s.requireTest(testID); err != nil {
		return err
	}
	if s.repo == nil {
		return nil
	}
	if err := s.repo.RecordConversion(ctx, s.tenantID, testID, variantID); err != nil {
		s.logger.Warn("Conversion write failed", zap.Error(err))
	}
	return nil
}

// CompareVariants computes significance for every challenger against the
// control (first) variant. A challenger wins only when its confidence meets
// the test's level and its rate beats the current best.
func (s *Service) CompareVariants(ctx context.Context, testID string) (abtestdomain.Result, error) {
	s.mu.RLock()
	test, ok := s.tests[testID]
	s.mu.RUnlock()
	if !ok {
		return abtestdomain.Result{}, apperrors.NewTestNotFoundError(testID)
	}

	counts := make(map[string]abtestdomain.VariantCounts, len(test.Variants))
	if s.repo != nil {
		stored, err := s.repo.VariantCounts(ctx, s.tenantID, testID)
		if err != nil {
			return abtestdomain.Result{}, apperrors.NewStorageError("load variant counts", err)
		}
		for _, c := range stored {
			counts[c.VariantID] = c
		}
	}
	return s.analyze(test, counts), nil
}

// AnalyzeCounts runs the comparison over caller-supplied counts, used when
// results are aggregated outside the archive
func (s *Service) AnalyzeCounts(testID string, supplied []abtestdomain.VariantCounts) (abtestdomain.Result, error) {
	s.mu.RLock()
	test, ok := s.tests[testID]
	s.mu.RUnlock()
	if !ok {
		return abtestdomain.Result{}, apperrors.NewTestNotFoundError(testID)
	}
	counts := make(map[string]abtestdomain.VariantCounts, len(supplied))
	for _, c := range supplied {
		counts[c.VariantID] = c
	}
	return s.analyze(test, counts), nil
}

func (s *Service) analyze(test *abtestdomain.Test, counts map[string]abtestdomain.VariantCounts) abtestdomain.Result {
	result := abtestdomain.Result{
		TestID:      test.ID,
		GeneratedAt: s.now(),
	}
	control, ok := test.ControlVariant()
	if !ok {
		return result
	}
	controlCounts := counts[control.ID]

	bestRate := controlCounts.Rate()
	winnerIdx := -1

	for i, v := range test.Variants {
		c := counts[v.ID]
		vr := abtestdomain.VariantResult{
			VariantID:      v.ID,
			Name:           v.Name,
			Impressions:    c.Impressions,
			Conversions:    c.Conversions,
			ConversionRate: c.Rate(),
		}
		if v.ID != control.ID {
			z := TwoProportionZTest(c.Conversions, c.Impressions, controlCounts.Conversions, controlCounts.Impressions)
			p := TwoTailedPValue(z)
			vr.ZScore = z
			vr.PValue = p
			vr.Confidence = 1 - p

			if vr.Confidence >= test.ConfidenceLevel && vr.ConversionRate > bestRate {
				bestRate = vr.ConversionRate
				winnerIdx = i
			}
		}
		result.Variants = append(result.Variants, vr)
	}

	if winnerIdx >= 0 {
		result.Variants[winnerIdx].Winner = true
		result.HasWinner = true
		result.WinnerID = result.Variants[winnerIdx].VariantID
	}
	return result
}

// MinimumSampleSize returns the per-variant sample size for detecting the
// given effect. The confidence and power arguments are accepted for API
// compatibility but the calculation is fixed at 95%/80%; see stats.go.
func (s *Service) MinimumSampleSize(baselineRate, minimumDetectableEffect, confidenceLevel, power float64) int64 {
	_ = confidenceLevel
	_ = power
	return minimumSampleSize(baselineRate, minimumDetectableEffect)
}

func (s *Service) requireTest(testID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tests[testID]; !ok {
		return apperrors.NewTestNotFoundError(testID)
	}
	return nil
}

func (s *Service) assignmentKey(testID, userID string) string {
	return AssignmentKeyPrefix + ":" + s.tenantID + ":" + testID + ":" + userID
}

func (s *Service) storedAssignment(ctx context.Context, test *abtestdomain.Test, userID string) (abtestdomain.Variant, bool) {
	if s.store == nil {
		return abtestdomain.Variant{}, false
	}
	raw, err := s.store.Load(ctx, s.assignmentKey(test.ID, userID))
	if err != nil {
		var notFound outbound.ErrKeyNotFound
		if !errors.As(err, &notFound) {
			s.logger.Debug("Assignment load failed", zap.Error(err))
		}
		return abtestdomain.Variant{}, false
	}
	variantID := string(raw)
	for _, v := range test.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	// Stale assignment pointing at a removed variant; reassign
	return abtestdomain.Variant{}, false
}

func (s *Service) saveAssignment(ctx context.Context, testID, userID, variantID string) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, s.assignmentKey(testID, userID), []byte(variantID)); err != nil {
		s.logger.Debug("Assignment save failed", zap.Error(err))
	}
}
