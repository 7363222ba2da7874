package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBackend stores artifacts as JSON strings and keeps insertion
// order in a sorted set scored by a monotonically increasing sequence.
type RedisBackend struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisBackend wraps an existing client. keyPrefix namespaces every
// key, e.g. "crewflow:project-a:".
func NewRedisBackend(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "crewflow:"
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix + "artifact:",
		logger:    logger.With(zap.String("component", "artifact_redis_backend")),
	}
}

// dataKey returns the Redis key for an artifact
func (b *RedisBackend) dataKey(id string) string {
	return b.keyPrefix + "data:" + id
}

// orderKey returns the Redis key for the insertion-order index
func (b *RedisBackend) orderKey() string {
	return b.keyPrefix + "order"
}

// seqKey returns the Redis key for the sequence counter
func (b *RedisBackend) seqKey() string {
	return b.keyPrefix + "seq"
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Save writes the artifact; the first save of an id assigns its position.
func (b *RedisBackend) Save(ctx context.Context, a *Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	_, err = b.client.ZScore(ctx, b.orderKey(), a.ID).Result()
	isNew := errors.Is(err, redis.Nil)
	if err != nil && !isNew {
		return fmt.Errorf("failed to read artifact order: %w", err)
	}

	var seq int64
	if isNew {
		seq, err = b.client.Incr(ctx, b.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate artifact sequence: %w", err)
		}
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.dataKey(a.ID), data, 0)
		if isNew {
			pipe.ZAdd(ctx, b.orderKey(), redis.Z{Score: float64(seq), Member: a.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// LoadAll returns artifacts in insertion order. Missing or corrupt
// values are logged and skipped.
func (b *RedisBackend) LoadAll(ctx context.Context) ([]*Artifact, error) {
	ids, err := b.client.ZRange(ctx, b.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.dataKey(id)
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	out := make([]*Artifact, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			b.logger.Warn("skipping missing artifact", zap.String("artifact_id", ids[i]))
			continue
		}
		var a Artifact
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			b.logger.Warn("skipping corrupt artifact", zap.String("artifact_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

// Clear removes every artifact key, the order index and the sequence.
func (b *RedisBackend) Clear(ctx context.Context) error {
	ids, err := b.client.ZRange(ctx, b.orderKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	keys := make([]string, 0, len(ids)+2)
	for _, id := range ids {
		keys = append(keys, b.dataKey(id))
	}
	keys = append(keys, b.orderKey(), b.seqKey())
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}
	return nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
