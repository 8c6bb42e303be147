// Package server exposes the manifest proxy routes over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"
	"golang.org/x/sync/errgroup"

	"github.com/Skyluker4/invidious-stripped-down/internal/log"
	"github.com/Skyluker4/invidious-stripped-down/internal/shaper"
	"github.com/Skyluker4/invidious-stripped-down/internal/stats"
	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

const shutdownTimeout = 10 * time.Second

var logger = log.NewFieldedLogger(&log.Fields{
	"component": "server",
})

// Resolver hands out video info for a shape.
type Resolver interface {
	Resolve(ctx context.Context, videoID string, shape shaper.Shape) (*upstream.VideoInfo, error)
}

type Options struct {
	// HostProxy replaces the origin host in every emitted URL and document.
	HostProxy string
	// OriginHost is the host playlists are served from and rewritten away.
	OriginHost string
	// OriginBase is where playlists are fetched, "https://" + OriginHost
	// when empty.
	OriginBase string

	Timeout    time.Duration
	RetryCount int
	Backoff    time.Duration

	// HTTPClient performs the origin fetches, the default client when nil.
	HTTPClient heimdall.Doer
}

type Server struct {
	resolver Resolver
	stats    *stats.Stats
	client   *httpclient.Client

	hostProxy  string
	originHost string
	originBase string
}

// New returns a server answering from res. st may be nil.
func New(res Resolver, st *stats.Stats, opts Options) *Server {
	if opts.OriginHost == "" {
		opts.OriginHost = "www.youtube.com"
	}
	if opts.OriginBase == "" {
		opts.OriginBase = "https://" + opts.OriginHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}

	retrier := heimdall.NewRetrier(heimdall.NewConstantBackoff(opts.Backoff, opts.Backoff/4))

	clientOptions := []httpclient.Option{
		httpclient.WithHTTPTimeout(opts.Timeout),
		httpclient.WithRetrier(retrier),
		httpclient.WithRetryCount(opts.RetryCount),
	}
	if opts.HTTPClient != nil {
		clientOptions = append(clientOptions, httpclient.WithHTTPClient(opts.HTTPClient))
	}

	return &Server{
		resolver:   res,
		stats:      st,
		client:     httpclient.NewClient(clientOptions...),
		hostProxy:  opts.HostProxy,
		originHost: opts.OriginHost,
		originBase: strings.TrimSuffix(opts.OriginBase, "/"),
	}
}

// Handler returns the proxy routes wrapped in their middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/manifest/dash/id/{videoId}", s.instrument("dash", s.handleDash))
	mux.Handle("GET /api/manifest/hls_variant/", s.instrument("hls_variant", s.handleHLSVariant))
	mux.Handle("GET /api/manifest/hls_playlist/", s.instrument("hls_playlist", s.handleHLSPlaylist))
	mux.Handle("GET /latest_version", s.instrument("latest_version", s.handleLatestVersion))

	return corsMiddleware(requestMiddleware(mux))
}

// Run serves the proxy on addr, and the metrics on metricsAddr when set,
// until ctx is done. The listeners are then shut down gracefully.
func (s *Server) Run(ctx context.Context, addr, metricsAddr string) error {
	servers := []*http.Server{{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", s.stats.Handler())
		servers = append(servers, &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			logger.WithField("address", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
