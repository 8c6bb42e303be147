package resolver

import (
	"net/url"
	"strconv"
	"time"

	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

// expiryMargin is kept between an entry's expiry and its links' expiry.
const expiryMargin = time.Minute

// linkExpiry returns the earliest expire parameter among the media URLs.
func linkExpiry(data *upstream.StreamingData) (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)

	for _, formats := range [][]upstream.Format{data.Formats, data.AdaptiveFormats} {
		for _, f := range formats {
			at, ok := parseExpire(f.URL)
			if !ok {
				continue
			}
			if !found || at.Before(earliest) {
				earliest, found = at, true
			}
		}
	}

	return earliest, found
}

func parseExpire(rawURL string) (time.Time, bool) {
	if rawURL == "" {
		return time.Time{}, false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}

	sec, err := strconv.ParseInt(parsed.Query().Get("expire"), 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(sec, 0), true
}

// ttlFor shortens the configured ttl so that an entry never outlives the
// signed links it carries. Links about to expire are left to the full ttl,
// the origin refreshes them on the next miss anyway.
func (r *Resolver) ttlFor(info *upstream.VideoInfo) time.Duration {
	if info.StreamingData == nil {
		return r.ttl
	}

	at, ok := linkExpiry(info.StreamingData)
	if !ok {
		return r.ttl
	}

	until := time.Until(at)
	if until > 2*expiryMargin && until-expiryMargin < r.ttl {
		return until - expiryMargin
	}
	return r.ttl
}
