// Package idempotency caches finished HTTP responses under the client's
// Idempotency-Key so a retried request is served the original body without
// re-entering a handler. Durability of the actual mutation lives in the
// ledger's unique transaction key; this cache only short-circuits the
// round trip, so losing it is safe.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
)

const redisKeyPrefix = "idempotency"

// Record is one cached response.
type Record struct {
	Key         string `json:"key"`
	RequestHash string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

type Store struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewStore(redis redis.Cmdable, ttl time.Duration) *Store {
	return &Store{redis: redis, ttl: ttl}
}

// Lookup returns the cached response for key. A hit whose request hash does
// not match the incoming request is a key-reuse conflict, not a replay.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	val, err := s.redis.Get(ctx, redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		zap.L().Warn("corrupt idempotency cache entry", zap.String("key", key), zap.Error(err))
		return nil, ErrNotFound
	}
	if rec.RequestHash != requestHash {
		return nil, ErrHashMismatch
	}
	return &rec, nil
}

// Save caches a finished response. Failures are logged, never propagated:
// the mutation already committed.
func (s *Store) Save(ctx context.Context, rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		zap.L().Warn("marshal idempotency record", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("cache idempotency record", zap.String("key", rec.Key), zap.Error(err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
