package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/Skyluker4/invidious-stripped-down/internal/dash"
	"github.com/Skyluker4/invidious-stripped-down/internal/resolver"
	"github.com/Skyluker4/invidious-stripped-down/internal/shaper"
	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

const (
	hlsContentType = "application/x-mpegURL"
	missingParams  = "Please specify the itag and video ID"
)

var (
	ErrMissingVideoID = errors.New("video id not found")
	ErrNoItag         = errors.New("no itag found")
	ErrNoURL          = errors.New("no url")
	ErrNoHLS          = errors.New("no hls manifest")
	ErrNoStreams      = errors.New("no streaming data")
)

var wordRegex = regexp.MustCompile(`\w+`)

// describe turns a handler error into the response body.
func describe(err error) string {
	switch {
	case errors.Is(err, ErrMissingVideoID):
		return "Video ID not found."
	case errors.Is(err, ErrNoItag):
		return "No itag found."
	}
	return err.Error()
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestLogger(r.Context()).WithError(err).WithField("path", r.URL.Path).Warn("request failed")

	// Playlist routes answer with their own content type, errors included.
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, describe(err)+"\n")
}

// playable resolves videoID in shape and checks it can be served.
func (s *Server) playable(ctx context.Context, videoID string, shape shaper.Shape) (*upstream.VideoInfo, error) {
	info, err := s.resolver.Resolve(ctx, videoID, shape)
	if err != nil {
		return nil, err
	}
	if err := resolver.Playable(info); err != nil {
		return nil, err
	}
	if info.StreamingData == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoStreams, videoID)
	}
	return info, nil
}

func (s *Server) handleDash(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")

	info, err := s.playable(r.Context(), videoID, shaper.ShapeDash)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	doc := info.StreamingData.DashDocument
	etag := `"` + strconv.FormatUint(xxh3.HashString(doc), 16) + `"`

	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", dash.ContentType)
	io.WriteString(w, doc)
}

// variantVideoID takes the id from the path segment following /id/, falling
// back to the id query parameter.
func variantVideoID(r *http.Request) (string, error) {
	if _, rest, found := strings.Cut(r.URL.Path, "/id/"); found {
		segment, _, _ := strings.Cut(rest, "/")
		if id := wordRegex.FindString(segment); id != "" {
			return id, nil
		}
	}

	if id := r.URL.Query().Get("id"); id != "" {
		return id, nil
	}

	return "", ErrMissingVideoID
}

func (s *Server) handleHLSVariant(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", hlsContentType)

	videoID, err := variantVideoID(r)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	info, err := s.playable(r.Context(), videoID, shaper.ShapeLatest)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	if info.StreamingData.HLSManifestURL == "" {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("%w for %s", ErrNoHLS, videoID))
		return
	}

	manifest, err := url.Parse(info.StreamingData.HLSManifestURL)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("parse hls manifest url: %w", err))
		return
	}

	status, body, err := s.fetch(r.Context(), "hls_variant", manifest.Path)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	if status == http.StatusOK {
		body = strings.ReplaceAll(body, s.originHost, s.hostProxy)
	}

	w.WriteHeader(status)
	io.WriteString(w, body)
}

func (s *Server) handleHLSPlaylist(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", hlsContentType)

	status, body, err := s.fetch(r.Context(), "hls_playlist", r.URL.EscapedPath())
	if err != nil {
		s.fail(w, r, http.StatusBadGateway, err)
		return
	}

	// Playlists also reference the bare domain and its subdomains.
	if status == http.StatusOK {
		body = strings.ReplaceAll(body, strings.TrimPrefix(s.originHost, "www."), s.hostProxy)
	}

	w.WriteHeader(status)
	io.WriteString(w, body)
}

func (s *Server) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("id")
	itagParam := r.URL.Query().Get("itag")

	if videoID == "" || itagParam == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, missingParams)
		return
	}

	info, err := s.playable(r.Context(), videoID, shaper.ShapeLatest)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	itag, err := strconv.Atoi(itagParam)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("%w: %q", ErrNoItag, itagParam))
		return
	}

	format, ok := info.StreamingData.FindItag(itag)
	if !ok {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("%w: %d", ErrNoItag, itag))
		return
	}

	if format.URL == "" {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("%w, the video can't be played: %s", ErrNoURL, videoID))
		return
	}

	target, err := url.Parse(format.URL)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("parse format url: %w", err))
		return
	}

	http.Redirect(w, r, shaper.RewriteHost(target, s.hostProxy).String(), http.StatusFound)
}

// fetch gets path from the origin and returns its status and body.
func (s *Server) fetch(ctx context.Context, route, path string) (int, string, error) {
	start := time.Now()
	defer func() {
		s.stats.Passthrough(route, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.originBase+path, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build origin request: %w", err)
	}

	// A retried request can come back with both the last response and the
	// errors of the earlier attempts.
	resp, err := s.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return 0, "", fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read %s: %w", path, err)
	}

	return resp.StatusCode, string(body), nil
}
