package redisrepo

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store adapts a Redis client to cache.Store.
type Store struct {
	rdb *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{rdb: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return b, true, nil
}

func (s *Store) Set(
	ctx context.Context,
	key string,
	val []byte,
	ttl time.Duration,
) error {
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return s.rdb.Del(ctx, keys...).Err()
}
