package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists workflow state in Redis.
//
// Layout (prefix defaults to "hitlgraph:"):
//   - <prefix>run:<runID>:steps  hash, field = step number, value = StepRecord JSON
//   - <prefix>run:<runID>:index  sorted set of step numbers
//   - <prefix>checkpoint:<cpID>  Checkpoint JSON
//
// A non-zero TTL is applied to every key on write, so abandoned runs expire
// on their own.
type RedisStore[S any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore[S any](opts RedisOptions) (*RedisStore[S], error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return connectRedis[S](client, opts.KeyPrefix, opts.TTL)
}

// connectRedis pings client and wraps it. The client is closed on failure.
func connectRedis[S any](client *redis.Client, prefix string, ttl time.Duration) (*RedisStore[S], error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient[S](client, prefix, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership of client and closes it in Close.
func NewRedisStoreFromClient[S any](client *redis.Client, prefix string, ttl time.Duration) *RedisStore[S] {
	if prefix == "" {
		prefix = "hitlgraph:"
	}
	return &RedisStore[S]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore[S]) stepsKey(runID string) string {
	return r.prefix + "run:" + runID + ":steps"
}

func (r *RedisStore[S]) indexKey(runID string) string {
	return r.prefix + "run:" + runID + ":index"
}

func (r *RedisStore[S]) checkpointKey(cpID string) string {
	return r.prefix + "checkpoint:" + cpID
}

// SaveStep implements Store.
func (r *RedisStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(StepRecord[S]{Step: step, NodeID: nodeID, State: state})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	member := strconv.Itoa(step)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.stepsKey(runID), member, data)
	pipe.ZAdd(ctx, r.indexKey(runID), redis.Z{Score: float64(step), Member: member})
	if r.ttl > 0 {
		pipe.Expire(ctx, r.stepsKey(runID), r.ttl)
		pipe.Expire(ctx, r.indexKey(runID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (r *RedisStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	var zero S

	latest, err := r.client.ZRevRange(ctx, r.indexKey(runID), 0, 0).Result()
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	if len(latest) == 0 {
		return zero, 0, ErrNotFound
	}

	data, err := r.client.HGet(ctx, r.stepsKey(runID), latest[0]).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	var rec StepRecord[S]
	if err := json.Unmarshal(data, &rec); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return rec.State, rec.Step, nil
}

// SaveCheckpoint implements Store.
func (r *RedisStore[S]) SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error {
	data, err := json.Marshal(Checkpoint[S]{ID: cpID, State: state, Step: step})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := r.client.Set(ctx, r.checkpointKey(cpID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (r *RedisStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error) {
	var zero S

	data, err := r.client.Get(ctx, r.checkpointKey(cpID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal(data, &cp); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return cp.State, cp.Step, nil
}

// Ping checks the connection.
func (r *RedisStore[S]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisStore[S]) Close() error {
	return r.client.Close()
}
