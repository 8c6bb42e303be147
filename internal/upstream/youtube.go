package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kkdai/youtube/v2"
)

var ErrNoCipher = errors.New("format carries neither url nor cipher")

// YouTube implements Session on top of github.com/kkdai/youtube/v2.
type YouTube struct {
	httpClient *http.Client

	// The library reads its client identity from a package variable, every
	// call that depends on it runs under mu.
	mu     sync.Mutex
	player *youtube.Client
}

func NewYouTube(httpClient *http.Client) *YouTube {
	return &YouTube{
		httpClient: httpClient,
		player:     &youtube.Client{HTTPClient: httpClient},
	}
}

func (u *YouTube) BasicInfo(ctx context.Context, videoID string, client Client) (*VideoInfo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	saved := youtube.DefaultClient
	defer func() { youtube.DefaultClient = saved }()
	client.use()

	// A fresh library client binds to the identity installed above.
	yt := &youtube.Client{HTTPClient: u.httpClient}
	video, err := yt.GetVideoContext(ctx, videoID)
	if err != nil {
		if info, ok := unplayableFromError(videoID, err); ok {
			return info, nil
		}
		return nil, fmt.Errorf("%s client: %w", client, err)
	}

	info := fromVideo(video)
	info.VideoID = videoID
	return info, nil
}

func (u *YouTube) Decipher(ctx context.Context, videoID string, f Format) (string, error) {
	if f.URL != "" {
		return f.URL, nil
	}
	if f.Cipher == "" {
		return "", ErrNoCipher
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	saved := youtube.DefaultClient
	defer func() { youtube.DefaultClient = saved }()
	ClientWeb.use()

	return u.player.GetStreamURLContext(ctx, &youtube.Video{ID: videoID}, &youtube.Format{
		ItagNo:   f.Itag,
		MimeType: f.MimeType,
		Cipher:   f.Cipher,
	})
}

// unplayableFromError turns the library's playability errors into a
// non-OK status. Anything else is a failed call.
func unplayableFromError(videoID string, err error) (*VideoInfo, bool) {
	var statusErr *youtube.ErrPlayabiltyStatus
	switch {
	case errors.As(err, &statusErr):
		reason := statusErr.Reason
		if reason == "" {
			reason = strings.ToLower(statusErr.Status)
		}
		return Unplayable(videoID, statusErr.Status, reason), true
	case errors.Is(err, youtube.ErrLoginRequired):
		return Unplayable(videoID, "LOGIN_REQUIRED", err.Error()), true
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return Unplayable(videoID, "UNPLAYABLE", err.Error()), true
	}
	return nil, false
}

func fromVideo(video *youtube.Video) *VideoInfo {
	data := &StreamingData{
		HLSManifestURL:  video.HLSManifestURL,
		DASHManifestURL: video.DASHManifestURL,
	}

	// The library merges progressive and adaptive formats into one list.
	// Progressive formats are the muxed ones: video with audio channels.
	for _, yf := range video.Formats {
		f := fromFormat(yf)
		if strings.HasPrefix(f.MimeType, "video/") && f.AudioChannels > 0 {
			data.Formats = append(data.Formats, f)
		} else {
			data.AdaptiveFormats = append(data.AdaptiveFormats, f)
		}
	}

	return &VideoInfo{
		VideoID:           video.ID,
		Title:             video.Title,
		Duration:          video.Duration,
		PlayabilityStatus: PlayabilityStatus{Status: StatusOK},
		StreamingData:     data,
	}
}

func fromFormat(yf youtube.Format) Format {
	f := Format{
		Itag:             yf.ItagNo,
		MimeType:         yf.MimeType,
		URL:              yf.URL,
		Cipher:           yf.Cipher,
		Bitrate:          yf.Bitrate,
		Width:            yf.Width,
		Height:           yf.Height,
		FPS:              yf.FPS,
		QualityLabel:     yf.QualityLabel,
		AudioSampleRate:  yf.AudioSampleRate,
		AudioChannels:    yf.AudioChannels,
		ContentLength:    yf.ContentLength,
		ApproxDurationMs: yf.ApproxDurationMs,
	}

	// The library declares the ranges as anonymous structs.
	if yf.InitRange != nil {
		f.InitRange = &Range{Start: yf.InitRange.Start, End: yf.InitRange.End}
	}
	if yf.IndexRange != nil {
		f.IndexRange = &Range{Start: yf.IndexRange.Start, End: yf.IndexRange.End}
	}

	return f
}
