// Package metrics exposes Prometheus collectors for the crawl, graph and rank stages.
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

var (
	crawlerPagesTotal           *prometheus.CounterVec
	crawlerBytesTotal           *prometheus.CounterVec
	crawlerFetchDurationSeconds *prometheus.HistogramVec
	crawlerFrontierDepth        prometheus.Gauge
	crawlerInFlightFetches      prometheus.Gauge
	crawlerVisitedURLs          prometheus.Gauge
	crawlerPublishFailuresTotal prometheus.Counter
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	graphNodes                  prometheus.Gauge
	graphEdges                  prometheus.Gauge
	graphSkippedRecordsTotal    prometheus.Counter
	rankIterations              prometheus.Gauge
	rankConverged               prometheus.Gauge
	rankDelta                   prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of dispatched pages, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		crawlerFrontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_depth",
				Help: "Number of URLs waiting in the frontier.",
			},
		)

		crawlerInFlightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_in_flight_tasks",
				Help: "Number of dispatched URLs whose completion has not been handled yet.",
			},
		)

		crawlerVisitedURLs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_visited_urls",
				Help: "Number of URLs dispatched during the current run.",
			},
		)

		crawlerPublishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_publish_failures_total",
				Help: "Total number of record notifications that could not be published.",
			},
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

		graphNodes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "graph_nodes",
				Help: "Number of nodes in the last built link graph.",
			},
		)

		graphEdges = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "graph_edges",
				Help: "Number of edges in the last built link graph.",
			},
		)

		graphSkippedRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "graph_skipped_records_total",
				Help: "Total number of crawl records skipped because they could not be read.",
			},
		)

		rankIterations = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rank_iterations",
				Help: "Iterations performed by the last rank solve.",
			},
		)

		rankConverged = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rank_converged",
				Help: "1 if the last rank solve converged, 0 otherwise.",
			},
		)

		rankDelta = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rank_final_delta",
				Help: "L2 distance between the last two iterates of the last rank solve.",
			},
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
	return promhttp.Handler()
}

// ObserveCrawl counts one handled page.
func ObserveCrawl(site, outcome string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveFetchDuration records how long a single fetch took.
func ObserveFetchDuration(site string, duration time.Duration) {
	crawlerFetchDurationSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// SetFrontierDepth records the number of queued URLs.
func SetFrontierDepth(n int) {
	crawlerFrontierDepth.Set(float64(n))
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	crawlerInFlightFetches.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	crawlerInFlightFetches.Dec()
}

// SetVisited records the size of the visited set.
func SetVisited(n int) {
	crawlerVisitedURLs.Set(float64(n))
}

// ObservePublishFailure counts a notification that was not delivered.
func ObservePublishFailure() {
	crawlerPublishFailuresTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveGraph records the size of a freshly built graph.
func ObserveGraph(nodes, edges, skipped int) {
	graphNodes.Set(float64(nodes))
	graphEdges.Set(float64(edges))
	graphSkippedRecordsTotal.Add(float64(skipped))
}

// ObserveRank records the outcome of a rank solve.
func ObserveRank(iterations int, converged bool, delta float64) {
	rankIterations.Set(float64(iterations))
	if converged {
		rankConverged.Set(1)
	} else {
		rankConverged.Set(0)
	}
	rankDelta.Set(delta)
}
