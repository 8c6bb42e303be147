// Package shaper post-processes resolved video info into the form each API
// flow serves: a DASH document, or progressive formats with direct URLs.
package shaper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Skyluker4/invidious-stripped-down/internal/dash"
	"github.com/Skyluker4/invidious-stripped-down/internal/log"
	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

// Shape selects the post-processing policy and the cache namespace.
type Shape string

const (
	ShapeDash   Shape = "dash"
	ShapeLatest Shape = "latest"
)

func (s Shape) String() string {
	return string(s)
}

// Decipherer resolves signature-bearing formats.
type Decipherer interface {
	Decipher(ctx context.Context, videoID string, f upstream.Format) (string, error)
}

var logger = log.NewFieldedLogger(&log.Fields{
	"component": "shaper",
})

type Shaper struct {
	decipherer Decipherer
	host       string
}

// New returns a shaper rewriting media hosts to host.
func New(decipherer Decipherer, host string) *Shaper {
	return &Shaper{decipherer: decipherer, host: host}
}

// Apply runs the policy for shape on info, in place.
func (s *Shaper) Apply(ctx context.Context, shape Shape, info *upstream.VideoInfo) error {
	if info.StreamingData == nil {
		return nil
	}

	switch shape {
	case ShapeDash:
		return s.Dash(ctx, info)
	case ShapeLatest:
		s.Latest(ctx, info)
		return nil
	}

	return fmt.Errorf("unknown shape %q", shape)
}

// Dash narrows the adaptive formats to mp4 audio and video, the only ones the
// manifest can describe, resolves their URLs and renders the document.
func (s *Shaper) Dash(ctx context.Context, info *upstream.VideoInfo) error {
	data := info.StreamingData
	data.AdaptiveFormats = FilterMP4(data.AdaptiveFormats)
	s.decipher(ctx, info.VideoID, data.AdaptiveFormats)

	doc, err := dash.Render(info, func(u *url.URL) *url.URL {
		return RewriteHost(u, s.host)
	})
	if err != nil {
		return fmt.Errorf("render dash for %s: %w", info.VideoID, err)
	}

	data.DashDocument = doc
	return nil
}

// Latest resolves every cipher-bearing progressive format to a direct URL.
// Adaptive formats are left as upstream returned them. A format that fails
// to decipher keeps an empty URL.
func (s *Shaper) Latest(ctx context.Context, info *upstream.VideoInfo) {
	s.decipher(ctx, info.VideoID, info.StreamingData.Formats)
}

// decipher fills in the URL of every cipher-only format, in place.
func (s *Shaper) decipher(ctx context.Context, videoID string, formats []upstream.Format) {
	for i := range formats {
		if formats[i].URL != "" || formats[i].Cipher == "" {
			continue
		}

		resolved, err := s.decipherer.Decipher(ctx, videoID, formats[i])
		if err != nil {
			logger.WithError(err).WithFields(log.Fields{
				"videoId": videoID,
				"itag":    formats[i].Itag,
			}).Warn("unable to decipher format")
			continue
		}

		formats[i].URL = resolved
	}
}

// FilterMP4 keeps the formats whose mime type is audio/mp4 or video/mp4.
func FilterMP4(formats []upstream.Format) []upstream.Format {
	kept := make([]upstream.Format, 0, len(formats))
	for _, f := range formats {
		if strings.Contains(f.MimeType, "audio/mp4") || strings.Contains(f.MimeType, "video/mp4") {
			kept = append(kept, f)
		}
	}
	return kept
}

// RewriteHost returns a copy of u pointing at host.
func RewriteHost(u *url.URL, host string) *url.URL {
	rewritten := *u
	rewritten.Host = host
	return &rewritten
}
