// Package cache stores trimmed video info records for a bounded time.
package cache

import (
	"context"
	"time"

	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

// DefaultTTL is how long a resolution stays valid.
const DefaultTTL = time.Hour

// Entry is the persisted projection of a video info. Entries must not be
// modified once stored, readers share them.
type Entry struct {
	PlayabilityStatus upstream.PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     *upstream.StreamingData    `json:"streamingData,omitempty"`
}

// Trim keeps the parts of info worth caching.
func Trim(info *upstream.VideoInfo) *Entry {
	return &Entry{
		PlayabilityStatus: info.PlayabilityStatus,
		StreamingData:     info.StreamingData,
	}
}

// VideoInfo expands the entry back into a video info for videoID.
func (e *Entry) VideoInfo(videoID string) *upstream.VideoInfo {
	return &upstream.VideoInfo{
		VideoID:           videoID,
		PlayabilityStatus: e.PlayabilityStatus,
		StreamingData:     e.StreamingData,
	}
}

// Key namespaces videoID by shape, e.g. "abc123-dash".
func Key(videoID, shape string) string {
	return videoID + "-" + shape
}

// Store is a key/value store with per-entry expiry. Implementations are safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Close() error
}

type item struct {
	Entry     *Entry    `json:"entry"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (it item) expired(now time.Time) bool {
	return !now.Before(it.ExpiresAt)
}
