package cache

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the raw key/value capability the resolvers cache through.
// A missing key is reported as ok=false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Cache layers JSON encoding and stampede protection over a Store.
// Read and decode failures are treated as misses: an absent entry is always
// safe because callers fall through to recomputation.
type Cache struct {
	store Store
	sf    singleflight.Group
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.store.Del(ctx, keys...)
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T

	b, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false
	}

	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false
	}

	return out, true
}

func SetJSON(
	ctx context.Context,
	c *Cache,
	key string,
	val any,
	ttl time.Duration,
) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.store.Set(ctx, key, b, ttl)
}

// GetOrSetJSON returns the cached value for key or loads, stores and returns it.
// Concurrent misses on the same key share a single loader call.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok := GetJSON[T](ctx, c, key); ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		if v2, ok2 := GetJSON[T](ctx, c, key); ok2 {
			return v2, nil
		}
		v3, err3 := loader(ctx)
		if err3 != nil {
			return nil, err3
		}
		_ = SetJSON(ctx, c, key, v3, ttl)
		return v3, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, errors.New("type assertion failed")
	}

	return v, nil
}
