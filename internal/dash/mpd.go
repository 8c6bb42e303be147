// Package dash renders an on-demand MPEG-DASH manifest for the adaptive
// formats of a video.
package dash

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

const (
	ContentType = "application/dash+xml"

	schema           = "urn:mpeg:dash:schema:mpd:2011"
	profileOnDemand  = "urn:mpeg:dash:profile:isoff-on-demand:2011"
	audioChannelsURI = "urn:mpeg:dash:23003:3:audio_channel_configuration:2011"
)

type mpd struct {
	XMLName                   xml.Name `xml:"MPD"`
	Xmlns                     string   `xml:"xmlns,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	Type                      string   `xml:"type,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr,omitempty"`
	Period                    period   `xml:"Period"`
}

type period struct {
	ID             string          `xml:"id,attr"`
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	ID                  int              `xml:"id,attr"`
	MimeType            string           `xml:"mimeType,attr"`
	SubsegmentAlignment bool             `xml:"subsegmentAlignment,attr"`
	StartWithSAP        int              `xml:"startWithSAP,attr"`
	Representations     []representation `xml:"Representation"`
}

type representation struct {
	ID                        string                     `xml:"id,attr"`
	Codecs                    string                     `xml:"codecs,attr,omitempty"`
	Bandwidth                 int                        `xml:"bandwidth,attr"`
	Width                     int                        `xml:"width,attr,omitempty"`
	Height                    int                        `xml:"height,attr,omitempty"`
	FrameRate                 int                        `xml:"frameRate,attr,omitempty"`
	AudioSamplingRate         string                     `xml:"audioSamplingRate,attr,omitempty"`
	AudioChannelConfiguration *audioChannelConfiguration `xml:"AudioChannelConfiguration,omitempty"`
	BaseURL                   string                     `xml:"BaseURL"`
	SegmentBase               *segmentBase               `xml:"SegmentBase,omitempty"`
}

type audioChannelConfiguration struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       int    `xml:"value,attr"`
}

type segmentBase struct {
	IndexRange     string          `xml:"indexRange,attr"`
	Initialization *initialization `xml:"Initialization,omitempty"`
}

type initialization struct {
	Range string `xml:"range,attr"`
}

// Render builds the manifest for the adaptive formats of info. Every media
// URL goes through rewrite before it is written, formats without a URL are
// left out. Adaptation sets group formats by container and codec family in
// the order they first appear.
func Render(info *upstream.VideoInfo, rewrite func(*url.URL) *url.URL) (string, error) {
	if info.StreamingData == nil {
		return "", fmt.Errorf("video %s has no streaming data", info.VideoID)
	}

	doc := mpd{
		Xmlns:         schema,
		Profiles:      profileOnDemand,
		Type:          "static",
		MinBufferTime: "PT1.500S",
		Period:        period{ID: "0"},
	}

	sets := make(map[string]int)
	longest := info.Duration
	for _, f := range info.StreamingData.AdaptiveFormats {
		if f.URL == "" {
			continue
		}

		u, err := url.Parse(f.URL)
		if err != nil {
			return "", fmt.Errorf("itag %d: %w", f.Itag, err)
		}
		if rewrite != nil {
			u = rewrite(u)
		}

		key := f.Container() + "|" + codecFamily(f.Codecs())
		idx, ok := sets[key]
		if !ok {
			idx = len(doc.Period.AdaptationSets)
			sets[key] = idx
			doc.Period.AdaptationSets = append(doc.Period.AdaptationSets, adaptationSet{
				ID:                  idx,
				MimeType:            f.Container(),
				SubsegmentAlignment: true,
				StartWithSAP:        1,
			})
		}

		doc.Period.AdaptationSets[idx].Representations = append(doc.Period.AdaptationSets[idx].Representations, newRepresentation(f, u))

		if ms, err := strconv.ParseInt(f.ApproxDurationMs, 10, 64); err == nil {
			if d := time.Duration(ms) * time.Millisecond; d > longest {
				longest = d
			}
		}
	}

	if longest > 0 {
		doc.MediaPresentationDuration = fmt.Sprintf("PT%.3fS", longest.Seconds())
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal mpd: %w", err)
	}

	return xml.Header + string(out), nil
}

func newRepresentation(f upstream.Format, u *url.URL) representation {
	r := representation{
		ID:        strconv.Itoa(f.Itag),
		Codecs:    f.Codecs(),
		Bandwidth: f.Bitrate,
		BaseURL:   u.String(),
	}

	if f.IsAudio() {
		r.AudioSamplingRate = f.AudioSampleRate
		if f.AudioChannels > 0 {
			r.AudioChannelConfiguration = &audioChannelConfiguration{
				SchemeIDURI: audioChannelsURI,
				Value:       f.AudioChannels,
			}
		}
	} else {
		r.Width = f.Width
		r.Height = f.Height
		r.FrameRate = f.FPS
	}

	if index := f.IndexRange.String(); index != "" {
		r.SegmentBase = &segmentBase{IndexRange: index}
		if initRange := f.InitRange.String(); initRange != "" {
			r.SegmentBase.Initialization = &initialization{Range: initRange}
		}
	}

	return r
}

// codecFamily reduces "avc1.640028" to "avc1".
func codecFamily(codecs string) string {
	family, _, _ := strings.Cut(codecs, ".")
	return family
}
