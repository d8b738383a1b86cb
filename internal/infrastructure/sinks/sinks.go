// Package sinks provides the outbound analytics and session-replay sink
// adapters. The engine treats sinks as no-op-tolerant: calls are never
// awaited by callers and failures never propagate past a log line.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/domain/interaction"
)

// LogSink writes analytics events to the structured log. It stands in for
// the external analytics provider in development and as a durable fallback
// when no provider is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logging analytics sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("analytics-sink")}
}

// TrackEvent implements outbound.AnalyticsSink
func (s *LogSink) TrackEvent(ctx context.Context, name string, properties map[string]interface{}) error {
	s.logger.Info("Analytics event",
		zap.String("event", name),
		zap.Any("properties", properties),
	)
	return nil
}

// NoopReplaySink discards replay tags; used when no session-replay
// provider is configured
type NoopReplaySink struct{}

// NewNoopReplaySink creates a no-op replay sink
func NewNoopReplaySink() *NoopReplaySink { return &NoopReplaySink{} }

// TagRecording implements outbound.ReplaySink
func (NoopReplaySink) TagRecording(ctx context.Context, sessionID, tag string) error { return nil }

// TrackInteraction implements outbound.ReplaySink
func (NoopReplaySink) TrackInteraction(ctx context.Context, sessionID string, record interaction.Record) error {
	return nil
}
