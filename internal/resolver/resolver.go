// Package resolver turns a video id into playable stream metadata, walking
// the client fallback plan and caching every final answer.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Skyluker4/invidious-stripped-down/internal/cache"
	"github.com/Skyluker4/invidious-stripped-down/internal/log"
	"github.com/Skyluker4/invidious-stripped-down/internal/shaper"
	"github.com/Skyluker4/invidious-stripped-down/internal/stats"
	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

// NegativeStatus marks the placeholder written when the first client fails.
const NegativeStatus = "Not OK"

// UnplayableError reports a video whose final playability status is not OK.
type UnplayableError struct {
	VideoID string
	Reason  string
}

func (e *UnplayableError) Error() string {
	return "The video can't be played: " + e.VideoID + " due to reason: " + e.Reason
}

// Playable returns an *UnplayableError unless info can be played.
func Playable(info *upstream.VideoInfo) error {
	if info.PlayabilityStatus.Playable() {
		return nil
	}
	return &UnplayableError{VideoID: info.VideoID, Reason: info.PlayabilityStatus.Reason}
}

// Shaper post-processes a fresh resolution for its shape.
type Shaper interface {
	Apply(ctx context.Context, shape shaper.Shape, info *upstream.VideoInfo) error
}

type Resolver struct {
	session upstream.Session
	store   cache.Store
	shaper  Shaper
	stats   *stats.Stats
	ttl     time.Duration

	group singleflight.Group
}

var logger = log.NewFieldedLogger(&log.Fields{
	"component": "resolver",
})

// New wires a resolver. A zero ttl means cache.DefaultTTL, st may be nil.
func New(session upstream.Session, store cache.Store, sh Shaper, st *stats.Stats, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Resolver{
		session: session,
		store:   store,
		shaper:  sh,
		stats:   st,
		ttl:     ttl,
	}
}

// Resolve returns the video info for videoID in the given shape. A cached
// entry is returned as is. Otherwise the fallback plan runs, the result is
// shaped, and its trimmed projection is cached whether playable or not.
//
// An unplayable video is not an error, callers check the playability status.
// Concurrent cold lookups of one key share a single resolution.
func (r *Resolver) Resolve(ctx context.Context, videoID string, shape shaper.Shape) (*upstream.VideoInfo, error) {
	key := cache.Key(videoID, shape.String())

	if entry, ok := r.lookup(ctx, key, shape); ok {
		return entry.VideoInfo(videoID), nil
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		// The result is cached for everyone, one caller going away must not
		// abort it for the others.
		return r.resolve(context.WithoutCancel(ctx), videoID, shape, key)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		logger.WithFields(log.Fields{"videoId": videoID, "shape": shape}).Debug("joined in-flight resolution")
	}

	return v.(*upstream.VideoInfo), nil
}

func (r *Resolver) lookup(ctx context.Context, key string, shape shaper.Shape) (*cache.Entry, bool) {
	entry, ok, err := r.store.Get(ctx, key)
	if err != nil {
		logger.WithError(err).WithField("key", key).Warn("cache lookup failed")
	}
	r.stats.CacheLookup(shape.String(), ok)
	return entry, ok
}

func (r *Resolver) resolve(ctx context.Context, videoID string, shape shaper.Shape, key string) (*upstream.VideoInfo, error) {
	fields := logger.WithFields(log.Fields{"videoId": videoID, "shape": shape})

	info, err := r.fallback(ctx, videoID, key, fields)
	if err != nil {
		return nil, err
	}

	if info.StreamingData != nil {
		if err := r.shaper.Apply(ctx, shape, info); err != nil {
			return nil, err
		}
	}

	if err := r.store.Set(ctx, key, cache.Trim(info), r.ttlFor(info)); err != nil {
		fields.WithError(err).Warn("unable to cache resolution")
	}

	fields.WithField("status", info.PlayabilityStatus.Status).Info("resolved video info")
	return info, nil
}

// fallback walks the plan and returns the authoritative answer.
func (r *Resolver) fallback(ctx context.Context, videoID, key string, fields *logrus.Entry) (*upstream.VideoInfo, error) {
	var (
		info    *upstream.VideoInfo
		lastErr error
		current = notTried
	)

	for _, s := range plan {
		if s.runsOn != current {
			continue
		}

		got, err := r.session.BasicInfo(ctx, videoID, s.client)
		if err == nil && got == nil {
			err = errors.New("empty answer")
		}
		outcome := next(got, err)
		r.record(s.client, got, err)

		attempt := fields.WithFields(log.Fields{"client": s.client, "outcome": outcome})
		if err != nil {
			attempt.WithError(err).Warn("upstream call failed")
			lastErr = err

			if current == notTried {
				r.writeNegative(ctx, videoID, key, fields)
			}
		} else {
			attempt.Debug("upstream answered")
			info = got
		}

		current = outcome
	}

	if info == nil {
		if lastErr == nil {
			lastErr = errors.New("no client answered")
		}
		return nil, fmt.Errorf("resolve %s: %w", videoID, lastErr)
	}

	if info.VideoID == "" {
		info.VideoID = videoID
	}
	return info, nil
}

// writeNegative records the first client's failure so that a failing id is
// not hammered while the remaining clients are tried. The final write of
// the resolution replaces it.
func (r *Resolver) writeNegative(ctx context.Context, videoID, key string, fields *logrus.Entry) {
	negative := &cache.Entry{
		PlayabilityStatus: upstream.PlayabilityStatus{
			Status: NegativeStatus,
			Reason: "Video unavailable: " + videoID,
		},
	}
	if err := r.store.Set(ctx, key, negative, r.ttl); err != nil {
		fields.WithError(err).Warn("unable to cache negative result")
	}
}

func (r *Resolver) record(client upstream.Client, info *upstream.VideoInfo, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !info.PlayabilityStatus.Playable():
		outcome = "unplayable"
	}
	r.stats.UpstreamCall(client.String(), outcome)
}
