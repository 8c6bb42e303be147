// Package upstream is the boundary to the video platform playback API: typed
// video info records and the client identities used to fetch them.
package upstream

import (
	"strings"
	"time"
)

// StatusOK is the only playability status that carries usable streaming data.
const StatusOK = "OK"

type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (p PlayabilityStatus) Playable() bool {
	return p.Status == StatusOK
}

type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r *Range) String() string {
	if r == nil || r.Start == "" || r.End == "" {
		return ""
	}
	return r.Start + "-" + r.End
}

type Format struct {
	Itag             int    `json:"itag"`
	MimeType         string `json:"mimeType"`
	URL              string `json:"url,omitempty"`
	Cipher           string `json:"signatureCipher,omitempty"`
	Bitrate          int    `json:"bitrate,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	FPS              int    `json:"fps,omitempty"`
	QualityLabel     string `json:"qualityLabel,omitempty"`
	AudioSampleRate  string `json:"audioSampleRate,omitempty"`
	AudioChannels    int    `json:"audioChannels,omitempty"`
	ContentLength    int64  `json:"contentLength,omitempty"`
	ApproxDurationMs string `json:"approxDurationMs,omitempty"`
	InitRange        *Range `json:"initRange,omitempty"`
	IndexRange       *Range `json:"indexRange,omitempty"`
}

// IsAudio reports whether the format carries an audio-only stream.
func (f Format) IsAudio() bool {
	return strings.HasPrefix(f.MimeType, "audio/")
}

// Container returns the mime type without its codecs parameter,
// e.g. "video/mp4" for `video/mp4; codecs="avc1.4d401e"`.
func (f Format) Container() string {
	mime, _, _ := strings.Cut(f.MimeType, ";")
	return strings.TrimSpace(mime)
}

// Codecs returns the codecs parameter of the mime type, unquoted.
func (f Format) Codecs() string {
	_, params, found := strings.Cut(f.MimeType, ";")
	if !found {
		return ""
	}
	_, codecs, found := strings.Cut(params, "codecs=")
	if !found {
		return ""
	}
	return strings.Trim(strings.TrimSpace(codecs), `"`)
}

type StreamingData struct {
	Formats          []Format `json:"formats"`
	AdaptiveFormats  []Format `json:"adaptiveFormats"`
	HLSManifestURL   string   `json:"hlsManifestUrl,omitempty"`
	DASHManifestURL  string   `json:"dashManifestUrl,omitempty"`
	ExpiresInSeconds string   `json:"expiresInSeconds,omitempty"`

	// DashDocument is filled in by the dash shaper and persisted with the entry.
	DashDocument string `json:"dashDocument,omitempty"`
}

// FindItag returns the first format in Formats ++ AdaptiveFormats with the
// given itag. Upstream orders formats by quality, so the first match wins.
func (s *StreamingData) FindItag(itag int) (Format, bool) {
	if s == nil {
		return Format{}, false
	}
	for _, list := range [][]Format{s.Formats, s.AdaptiveFormats} {
		for _, f := range list {
			if f.Itag == itag {
				return f, true
			}
		}
	}
	return Format{}, false
}

type VideoInfo struct {
	VideoID           string            `json:"videoId"`
	Title             string            `json:"title,omitempty"`
	Duration          time.Duration     `json:"duration,omitempty"`
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	StreamingData     *StreamingData    `json:"streamingData,omitempty"`
}

// Unplayable builds the info returned for a video the platform refuses to play.
func Unplayable(videoID, status, reason string) *VideoInfo {
	return &VideoInfo{
		VideoID:           videoID,
		PlayabilityStatus: PlayabilityStatus{Status: status, Reason: reason},
	}
}
