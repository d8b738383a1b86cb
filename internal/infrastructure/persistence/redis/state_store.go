// Package redis provides the Redis-backed state store for multi-node
// deployments. Snapshots are plain string values with a TTL; writes are
// last-write-wins, matching the engine's persistence contract.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/infrastructure/config"
	"github.com/tablewise/insights/internal/ports/outbound"
)

const keyPrefix = "insights:state:"

// StateStore implements outbound.StateStore over Redis
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStateStore connects to Redis and verifies the connection
func NewStateStore(cfg config.RedisConfig, logger *zap.Logger) (*StateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}

	logger.Info("Connected to Redis state store",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Duration("snapshot_ttl", ttl),
	)
	return &StateStore{client: client, ttl: ttl, logger: logger.Named("redis")}, nil
}

// Load retrieves a value
func (s *StateStore) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, outbound.ErrKeyNotFound{Key: key}
		}
		return nil, err
	}
	return value, nil
}

// Save stores a value wholesale with the snapshot TTL
func (s *StateStore) Save(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, keyPrefix+key, value, s.ttl).Err()
}

// Delete removes a key
func (s *StateStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

// Close releases the client
func (s *StateStore) Close() error {
	return s.client.Close()
}
