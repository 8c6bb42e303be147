package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxSize bounds the in-process cache when nothing else is configured.
const DefaultMaxSize = 5000

// Memory is a size-bounded LRU. Each entry expires after the ttl it was set
// with; maxTTL caps every ttl and drives the background sweep.
type Memory struct {
	lru    *expirable.LRU[string, item]
	maxTTL time.Duration
	now    func() time.Time
}

func NewMemory(maxSize int, maxTTL time.Duration) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxTTL <= 0 {
		maxTTL = DefaultTTL
	}

	return &Memory{
		lru:    expirable.NewLRU[string, item](maxSize, nil, maxTTL),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	it, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}

	if it.expired(m.now()) {
		m.lru.Remove(key)
		return nil, false, nil
	}

	return it.Entry, true, nil
}

func (m *Memory) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 || ttl > m.maxTTL {
		ttl = m.maxTTL
	}

	m.lru.Add(key, item{Entry: entry, ExpiresAt: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Len() int {
	return m.lru.Len()
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
