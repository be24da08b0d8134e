package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

// IdempotencyStore remembers the outcome of a write keyed by a client
// supplied Idempotency-Key. A key is either locked (request in flight) or
// holds the stored response body.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, payload []byte) error {
	return s.rdb.Set(ctx, key, idemResPrefix+string(payload), s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if rest, ok := strings.CutPrefix(v, idemResPrefix); ok {
		return []byte(rest), true, nil
	}

	return nil, false, nil
}

// Release drops the lock so the client can retry after a failed attempt.
// A stored result is never released.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	if v != idemLock {
		return nil
	}

	return s.rdb.Del(ctx, key).Err()
}
