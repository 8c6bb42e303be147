package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Skyluker4/invidious-stripped-down/internal/log"
)

var logger = log.NewFieldedLogger(&log.Fields{
	"component": "cache",
})

// Tiered puts a Memory store in front of a slower shared store.
type Tiered struct {
	near *Memory
	far  *Remote
}

func NewTiered(near *Memory, far *Remote) *Tiered {
	return &Tiered{near: near, far: far}
}

// Get reads the near tier first. A far tier failure reads as a miss so that
// an unreachable backend degrades to in-process caching.
func (t *Tiered) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if entry, ok, _ := t.near.Get(ctx, key); ok {
		return entry, true, nil
	}

	it, ok, err := t.far.getItem(key)
	if err != nil {
		logger.WithError(err).WithField("key", key).Warn("far cache tier unavailable")
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}

	// Promoted entries keep the deadline the far tier holds.
	if remaining := it.ExpiresAt.Sub(t.near.now()); remaining > 0 {
		_ = t.near.Set(ctx, key, it.Entry, remaining)
	}
	return it.Entry, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	_ = t.near.Set(ctx, key, entry, ttl)
	return t.far.Set(ctx, key, entry, ttl)
}

func (t *Tiered) Close() error {
	return errors.Join(t.near.Close(), t.far.Close())
}
