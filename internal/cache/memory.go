package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kirinyoku/classbook/internal/clock"
)

type memoryEntry struct {
	val       []byte
	expiresAt time.Time
}

// Memory is an in-process Store with per-entry TTL. It backs tests and runs
// as the fallback when Redis is disabled.
type Memory struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]memoryEntry
}

func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.System{}
	}

	return &Memory{
		clock: clk,
		items: make(map[string]memoryEntry),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}

	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}

	out := make([]byte, len(e.val))
	copy(out, e.val)

	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.items[key] = e

	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
	}

	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
