package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Skyluker4/invidious-stripped-down/internal/cache"
	"github.com/Skyluker4/invidious-stripped-down/internal/config"
	"github.com/Skyluker4/invidious-stripped-down/internal/log"
	"github.com/Skyluker4/invidious-stripped-down/internal/netutil"
	"github.com/Skyluker4/invidious-stripped-down/internal/resolver"
	"github.com/Skyluker4/invidious-stripped-down/internal/server"
	"github.com/Skyluker4/invidious-stripped-down/internal/shaper"
	"github.com/Skyluker4/invidious-stripped-down/internal/stats"
	"github.com/Skyluker4/invidious-stripped-down/internal/upstream"
)

const (
	metricsPrefix      = "manifest_proxy_"
	passthroughRetries = 2
)

var logger = log.NewFieldedLogger(&log.Fields{
	"component": "cmd",
})

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "manifest-proxy",
		Short: "Caching proxy for video playback manifests",
		Long: `manifest-proxy resolves playback metadata for a video, caches it, and
serves DASH manifests, HLS playlists and direct media redirects with every
media URL pointed at HOST_PROXY.

Every flag can also be set through its environment variable, e.g.
--host-proxy and HOST_PROXY.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			return serve(cmd.Context(), cfg)
		},
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	config.RegisterFlags(rootCmd.Flags())

	return rootCmd
}

// Run executes the root command until SIGINT or SIGTERM.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := log.Setup(cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}

	httpClient := netutil.NewHTTPClient(cfg.Order, cfg.UpstreamTimeout)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("unable to close cache")
		}
	}()

	st := stats.New(metricsPrefix)
	session := upstream.NewYouTube(httpClient)
	res := resolver.New(session, store, shaper.New(session, cfg.HostProxy), st, cfg.CacheTTL)

	srv := server.New(res, st, server.Options{
		HostProxy:  cfg.HostProxy,
		OriginHost: cfg.OriginHost,
		Timeout:    cfg.UpstreamTimeout,
		RetryCount: passthroughRetries,
		HTTPClient: httpClient,
	})

	logger.WithFields(log.Fields{
		"address":   cfg.ListenAddress(),
		"hostProxy": cfg.HostProxy,
		"dnsOrder":  cfg.Order,
		"cacheTTL":  cfg.CacheTTL,
	}).Info("started proxy server")

	if err := srv.Run(ctx, cfg.ListenAddress(), cfg.MetricsAddress); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("proxy server stopped")
	return nil
}

// openStore keeps entries in memory, in front of the external backend when
// one is configured.
func openStore(cfg *config.Config) (cache.Store, error) {
	near := cache.NewMemory(cfg.KeyvMaxSize, cfg.CacheTTL)
	if cfg.KeyvAddress == "" {
		return near, nil
	}

	far, err := cache.OpenRemote(cfg.KeyvAddress)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", cfg.KeyvAddress, err)
	}

	return cache.NewTiered(near, far), nil
}
