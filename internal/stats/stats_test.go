package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	s := New("test_")

	s.UpstreamCall("ANDROID", "ok")
	s.UpstreamCall("ANDROID", "error")
	s.UpstreamCall("WEB", "ok")
	s.CacheLookup("dash", true)
	s.CacheLookup("dash", false)
	s.CacheLookup("dash", false)
	s.Response("latest_version", http.StatusFound)
	s.Response("latest_version", http.StatusBadRequest)
	s.Passthrough("hls_playlist", 30*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.upstreamCalls.WithLabelValues("ANDROID", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.upstreamCalls.WithLabelValues("WEB", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.cacheLookups.WithLabelValues("dash", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.responses.WithLabelValues("latest_version", "3xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.responses.WithLabelValues("latest_version", "4xx")))
	assert.Equal(t, int64(3), s.upstreamRate.Rate())
}

func TestHandlerExposesMetrics(t *testing.T) {
	s := New("test_")
	s.CacheLookup("latest", true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_cache_lookups_total{result="hit",shape="latest"} 1`)
	assert.Contains(t, string(body), "test_upstream_calls_per_minute")
}

func TestNilStatsIsNoop(t *testing.T) {
	var s *Stats
	assert.NotPanics(t, func() {
		s.UpstreamCall("WEB", "ok")
		s.CacheLookup("dash", true)
		s.Response("dash", http.StatusOK)
		s.Passthrough("hls_variant", time.Second)
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
