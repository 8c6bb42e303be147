package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/philippgille/gokv/syncmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

func playable(url string) *Entry {
	return &Entry{
		PlayabilityStatus: upstream.PlayabilityStatus{Status: upstream.StatusOK},
		StreamingData: &upstream.StreamingData{
			Formats: []upstream.Format{{Itag: 22, MimeType: "video/mp4", URL: url}},
		},
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "abc123-dash", Key("abc123", "dash"))
	assert.NotEqual(t, Key("abc123", "dash"), Key("abc123", "latest"))
}

func TestTrimAndExpand(t *testing.T) {
	info := &upstream.VideoInfo{
		VideoID:           "abc123",
		Title:             "dropped",
		PlayabilityStatus: upstream.PlayabilityStatus{Status: upstream.StatusOK},
		StreamingData:     &upstream.StreamingData{HLSManifestURL: "https://origin/hls"},
	}

	entry := Trim(info)
	assert.Equal(t, info.PlayabilityStatus, entry.PlayabilityStatus)
	assert.Same(t, info.StreamingData, entry.StreamingData)

	back := entry.VideoInfo("abc123")
	assert.Equal(t, "abc123", back.VideoID)
	assert.Empty(t, back.Title)
	assert.Equal(t, "https://origin/hls", back.StreamingData.HLSManifestURL)
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, time.Hour)
	defer m.Close()

	_, ok, err := m.Get(ctx, "abc123-dash")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := playable("https://origin/x")
	require.NoError(t, m.Set(ctx, "abc123-dash", entry, DefaultTTL))

	got, ok, err := m.Get(ctx, "abc123-dash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, entry, got)

	_, ok, _ = m.Get(ctx, "abc123-latest")
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Now()}
	m := NewMemory(10, time.Hour)
	m.now = c.Now
	defer m.Close()

	require.NoError(t, m.Set(ctx, "short", playable("a"), time.Minute))
	require.NoError(t, m.Set(ctx, "long", playable("b"), time.Hour))

	c.Advance(2 * time.Minute)

	_, ok, _ := m.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "long")
	assert.True(t, ok)

	c.Advance(time.Hour)
	_, ok, _ = m.Get(ctx, "long")
	assert.False(t, ok)
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Hour)
	defer m.Close()

	require.NoError(t, m.Set(ctx, "a", playable("a"), 0))
	require.NoError(t, m.Set(ctx, "b", playable("b"), 0))

	// Touch a so that b becomes the eviction candidate.
	_, ok, _ := m.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, m.Set(ctx, "c", playable("c"), 0))
	assert.Equal(t, 2, m.Len())

	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(50, time.Hour)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("video%d-dash", (i+j)%64)
				_ = m.Set(ctx, key, playable(key), 0)
				_, _, _ = m.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), 50)
}

func TestRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Now()}
	r := NewRemote(syncmap.NewStore(syncmap.DefaultOptions))
	r.now = c.Now
	defer r.Close()

	require.NoError(t, r.Set(ctx, "abc123-latest", playable("https://origin/x"), time.Minute))

	got, ok, err := r.Get(ctx, "abc123-latest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://origin/x", got.StreamingData.Formats[0].URL)

	c.Advance(time.Minute)
	_, ok, err = r.Get(ctx, "abc123-latest")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenRemoteLevelDB(t *testing.T) {
	ctx := context.Background()
	r, err := OpenRemote("leveldb://" + filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer r.Close()

	negative := &Entry{PlayabilityStatus: upstream.PlayabilityStatus{Status: "Not OK", Reason: "Video unavailable: abc123"}}
	require.NoError(t, r.Set(ctx, "abc123-dash", negative, DefaultTTL))

	got, ok, err := r.Get(ctx, "abc123-dash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, negative.PlayabilityStatus, got.PlayabilityStatus)
	assert.Nil(t, got.StreamingData)
}

func TestOpenRemoteRejectsUnknownScheme(t *testing.T) {
	_, err := OpenRemote("memcached://localhost:11211")
	assert.ErrorIs(t, err, ErrUnsupportedAddress)

	_, err = OpenRemote("leveldb://")
	assert.ErrorIs(t, err, ErrUnsupportedAddress)

	_, err = OpenRemote("redis://localhost:6379/notanumber")
	assert.Error(t, err)
}

type brokenStore struct{}

func (brokenStore) Set(string, interface{}) error         { return errors.New("down") }
func (brokenStore) Get(string, interface{}) (bool, error) { return false, errors.New("down") }
func (brokenStore) Delete(string) error                   { return errors.New("down") }
func (brokenStore) Close() error                          { return nil }

func TestTieredPromotesFarHits(t *testing.T) {
	ctx := context.Background()
	near := NewMemory(10, time.Hour)
	far := NewRemote(syncmap.NewStore(syncmap.DefaultOptions))
	tiered := NewTiered(near, far)
	defer tiered.Close()

	require.NoError(t, far.Set(ctx, "abc123-dash", playable("https://origin/x"), time.Hour))

	_, ok, _ := near.Get(ctx, "abc123-dash")
	require.False(t, ok)

	got, ok, err := tiered.Get(ctx, "abc123-dash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://origin/x", got.StreamingData.Formats[0].URL)

	_, ok, _ = near.Get(ctx, "abc123-dash")
	assert.True(t, ok)
}

func TestTieredSurvivesFarFailure(t *testing.T) {
	ctx := context.Background()
	near := NewMemory(10, time.Hour)
	tiered := NewTiered(near, NewRemote(brokenStore{}))
	defer tiered.Close()

	_, ok, err := tiered.Get(ctx, "abc123-dash")
	require.NoError(t, err)
	assert.False(t, ok)

	err = tiered.Set(ctx, "abc123-dash", playable("https://origin/x"), time.Hour)
	assert.Error(t, err)

	// The near tier was still written.
	_, ok, err = tiered.Get(ctx, "abc123-dash")
	require.NoError(t, err)
	assert.True(t, ok)
}
