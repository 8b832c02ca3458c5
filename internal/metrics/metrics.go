// Package metrics exposes Prometheus collectors for the curator service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stage labels.
const (
	StageFetch    = "fetch"
	StageSnapshot = "snapshot"
	StageExtract  = "extract"
	StageCurate   = "curate"
	StageParse    = "parse"
	StagePersist  = "persist"
)

var (
	crawlsTotal                *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	insightsCreatedTotal       prometheus.Counter
	insightsDroppedTotal       prometheus.Counter
	activeCrawls               prometheus.Gauge
	fetchPagesTotal            *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	retriesTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors on the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_crawls_total",
				Help: "Finished crawls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_stage_duration_seconds",
				Help:    "Duration of each crawl pipeline stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		insightsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "curator_insights_created_total",
				Help: "Insights persisted.",
			},
		)

		insightsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "curator_insights_dropped_total",
				Help: "Malformed or unpersistable insight candidates skipped.",
			},
		)

		activeCrawls = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "curator_active_crawls",
				Help: "Number of crawls currently running.",
			},
		)

		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_fetch_pages_total",
				Help: "Pages fetched, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_retries_total",
				Help: "Stage retries, labeled by stage.",
			},
			[]string{"stage"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCrawl counts a finished crawl under its terminal status.
func ObserveCrawl(outcome string) {
	Init()
	crawlsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// AddInsights records persisted and skipped insight counts.
func AddInsights(created, dropped int) {
	Init()
	if created > 0 {
		insightsCreatedTotal.Add(float64(created))
	}
	if dropped > 0 {
		insightsDroppedTotal.Add(float64(dropped))
	}
}

// IncActiveCrawls increments the active crawl gauge.
func IncActiveCrawls() {
	Init()
	activeCrawls.Inc()
}

// DecActiveCrawls decrements the active crawl gauge.
func DecActiveCrawls() {
	Init()
	activeCrawls.Dec()
}

// ObserveFetch counts a fetched page and its size.
func ObserveFetch(rawURL string, statusCode int, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchPagesTotal.WithLabelValues(site, strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveRetry counts a retried stage attempt.
func ObserveRetry(stage string) {
	Init()
	retriesTotal.WithLabelValues(stage).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
