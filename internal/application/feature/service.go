// Package feature tracks first use of product features per user, emitting
// a one-time analytics event the first time a user touches a feature
package feature

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/ports/outbound"
)

// StateKeyPrefix namespaces first-use flags in the state store
const StateKeyPrefix = "feature_first_use"

// Tracker records feature first-use flags
type Tracker struct {
	tenantID string
	store    outbound.StateStore
	sinks    []outbound.AnalyticsSink
	logger   *zap.Logger
}

// NewTracker creates a feature-use tracker
func NewTracker(tenantID string, store outbound.StateStore, sinks []outbound.AnalyticsSink, logger *zap.Logger) *Tracker {
	return &Tracker{
		tenantID: tenantID,
		store:    store,
		sinks:    sinks,
		logger:   logger.Named("feature"),
	}
}

// TrackUse marks a feature as used and reports whether this was the first
// use. The first use additionally fires a feature_first_use event to the
// analytics sinks, fire-and-forget.
func (t *Tracker) TrackUse(ctx context.Context, featureName, userID string) bool {
	key := StateKeyPrefix + ":" + t.tenantID + ":" + featureName + ":" + userID

	if _, err := t.store.Load(ctx, key); err == nil {
		return false
	} else {
		var notFound outbound.ErrKeyNotFound
		if !errors.As(err, &notFound) {
			t.logger.Debug("Feature flag load failed", zap.Error(err))
			return false
		}
	}

	if err := t.store.Save(ctx, key, []byte("true")); err != nil {
		t.logger.Debug("Feature flag save failed", zap.Error(err))
	}

	for _, sink := range t.sinks {
		if err := sink.TrackEvent(ctx, "feature_first_use", map[string]interface{}{
			"feature": featureName,
			"user_id": userID,
		}); err != nil {
			t.logger.Debug("Feature sink rejected event", zap.Error(err))
		}
	}
	return true
}
