// Package config reads the process configuration from the environment, with
// command line flags taking precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Skyluker4/invidious-stripped-down/internal/cache"
	"github.com/Skyluker4/invidious-stripped-down/internal/netutil"
)

var ErrMissingHostProxy = errors.New("HOST_PROXY is required")

type Config struct {
	HostProxy       string        `mapstructure:"host-proxy"`
	KeyvMaxSize     int           `mapstructure:"keyv-max-size"`
	KeyvAddress     string        `mapstructure:"keyv-address"`
	BindAddress     string        `mapstructure:"bind-address"`
	BindPort        string        `mapstructure:"bind-port"`
	DNSOrder        string        `mapstructure:"dns-order"`
	CacheTTL        time.Duration `mapstructure:"cache-ttl"`
	OriginHost      string        `mapstructure:"origin-host"`
	UpstreamTimeout time.Duration `mapstructure:"upstream-timeout"`
	LogLevel        string        `mapstructure:"log-level"`
	LogJSON         bool          `mapstructure:"log-json"`
	MetricsAddress  string        `mapstructure:"metrics-address"`

	Order netutil.Order `mapstructure:"-"`
}

// RegisterFlags declares every setting on fs with its default value. The
// matching environment variable is the upper-cased flag name with dashes
// turned into underscores, e.g. --host-proxy and HOST_PROXY.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host-proxy", "", "Hostname substituted for the origin media host in every emitted URL.")
	fs.Int("keyv-max-size", cache.DefaultMaxSize, "Maximum number of cached entries held in memory.")
	fs.String("keyv-address", "", "External cache backend, redis://host:port/db or leveldb:///path. Empty keeps the cache in memory.")
	fs.String("bind-address", "0.0.0.0", "Address to listen on.")
	fs.String("bind-port", "3000", "Port to listen on.")
	fs.String("dns-order", string(netutil.OrderVerbatim), "Address family order for outbound connections (verbatim, ipv4first, ipv6first).")
	fs.Duration("cache-ttl", cache.DefaultTTL, "How long a resolution stays cached.")
	fs.String("origin-host", "www.youtube.com", "Origin host playlist passthrough requests are sent to.")
	fs.Duration("upstream-timeout", 30*time.Second, "Timeout of a single outbound request.")
	fs.String("log-level", "info", "Log level (debug, info, warn, error).")
	fs.Bool("log-json", false, "Output logs in JSON.")
	fs.String("metrics-address", "", "Address of the Prometheus metrics listener, disabled when empty.")
}

// Load resolves the settings declared on fs against the environment and
// validates them.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.HostProxy == "" {
		return ErrMissingHostProxy
	}
	if !govalidator.IsHost(c.HostProxy) && !govalidator.IsDialString(c.HostProxy) {
		return fmt.Errorf("HOST_PROXY %q is not a host", c.HostProxy)
	}
	if !govalidator.IsHost(c.OriginHost) {
		return fmt.Errorf("ORIGIN_HOST %q is not a host", c.OriginHost)
	}
	if !govalidator.IsHost(c.BindAddress) {
		return fmt.Errorf("BIND_ADDRESS %q is not a host", c.BindAddress)
	}
	if !govalidator.IsPort(c.BindPort) {
		return fmt.Errorf("BIND_PORT %q is not a port", c.BindPort)
	}
	if c.KeyvMaxSize <= 0 {
		return fmt.Errorf("KEYV_MAX_SIZE must be positive, got %d", c.KeyvMaxSize)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}

	order, err := netutil.ParseOrder(c.DNSOrder)
	if err != nil {
		return fmt.Errorf("DNS_ORDER: %w", err)
	}
	c.Order = order

	return nil
}

// ListenAddress is the host:port the proxy listens on.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, c.BindPort)
}
