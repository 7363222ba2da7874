package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/crewflow/workflow"
)

// RedisStateStore is a Redis-based implementation of StateStore.
// Snapshots are stored as strings, with a sorted set of ids scored by
// update time.
type RedisStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

// NewRedisStateStore connects to Redis using config
func NewRedisStateStore(config StoreConfig) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisStateStoreWithClient(client, config.Redis.KeyPrefix)
	store.owned = true
	return store, nil
}

// NewRedisStateStoreWithClient uses an existing client. Close leaves the
// client open.
func NewRedisStateStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = "crewflow:"
	}
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix + "workflow:",
	}
}

// Close closes the store
func (s *RedisStateStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// dataKey returns the Redis key for a workflow snapshot
func (s *RedisStateStore) dataKey(id string) string {
	return s.keyPrefix + "data:" + id
}

// indexKey returns the Redis key for the workflow index
func (s *RedisStateStore) indexKey() string {
	return s.keyPrefix + "all"
}

// SaveWorkflow persists a snapshot
func (s *RedisStateStore) SaveWorkflow(ctx context.Context, id string, def *workflow.Definition) error {
	if err := validateSave(id, def); err != nil {
		return err
	}
	now := time.Now().UTC()
	data, err := json.Marshal(&record{ID: id, Definition: def, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", id, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.dataKey(id), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: id})
		return nil
	})
	return err
}

func (s *RedisStateStore) get(ctx context.Context, id string) (*record, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", id, err)
	}
	if rec.Definition == nil {
		return nil, fmt.Errorf("workflow %s has no definition", id)
	}
	return &rec, nil
}

// LoadWorkflow retrieves a snapshot by id
func (s *RedisStateStore) LoadWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Definition, nil
}

// ListWorkflows lists stored workflows ordered by id
func (s *RedisStateStore) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	out := make([]WorkflowSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, rec.summary())
	}
	return out, nil
}

// DeleteWorkflow removes a snapshot
func (s *RedisStateStore) DeleteWorkflow(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.dataKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
