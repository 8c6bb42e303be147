// Package stats exposes the proxy's prometheus metrics. A nil *Stats is valid
// and records nothing.
package stats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Stats struct {
	registry *prometheus.Registry

	upstreamCalls *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	responses     *prometheus.CounterVec
	passthrough   *prometheus.HistogramVec

	// Upstream calls over the last minute, published as a gauge.
	upstreamRate *ratecounter.RateCounter
}

func New(prefix string) *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		upstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: prefix + "upstream_calls_total", Help: "Calls to the playback API by client identity and outcome"},
			[]string{"client", "outcome"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: prefix + "cache_lookups_total", Help: "Video info cache lookups by shape and result"},
			[]string{"shape", "result"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: prefix + "http_responses_total", Help: "HTTP responses by route and status class"},
			[]string{"route", "class"},
		),
		passthrough: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: prefix + "passthrough_seconds", Help: "Origin playlist fetch time", Buckets: prometheus.ExponentialBucketsRange(0.01, 10, 12)},
			[]string{"route"},
		),
		upstreamRate: ratecounter.NewRateCounter(time.Minute),
	}

	s.registry.MustRegister(
		s.upstreamCalls,
		s.cacheLookups,
		s.responses,
		s.passthrough,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: prefix + "upstream_calls_per_minute", Help: "Calls to the playback API over the last minute"},
			func() float64 { return float64(s.upstreamRate.Rate()) },
		),
	)

	return s
}

func (s *Stats) UpstreamCall(client, outcome string) {
	if s == nil {
		return
	}
	s.upstreamCalls.WithLabelValues(client, outcome).Inc()
	s.upstreamRate.Incr(1)
}

func (s *Stats) CacheLookup(shape string, hit bool) {
	if s == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	s.cacheLookups.WithLabelValues(shape, result).Inc()
}

func (s *Stats) Response(route string, status int) {
	if s == nil {
		return
	}
	s.responses.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
}

func (s *Stats) Passthrough(route string, took time.Duration) {
	if s == nil {
		return
	}
	s.passthrough.WithLabelValues(route).Observe(took.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (s *Stats) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
