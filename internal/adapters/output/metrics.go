// Package output exposes the defense pipeline's counters to Prometheus.
package output

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewarden/gatewarden/internal/domain"
)

// PrometheusMetrics implements ports.PipelineObserver on a Prometheus
// registry. Request totals are read from the internal DefenseMetrics so the
// health endpoint and /metrics always agree.
type PrometheusMetrics struct {
	requestsTotal      prometheus.CounterFunc
	rejectionsTotal    *prometheus.CounterVec
	bansTotal          *prometheus.CounterVec
	activeBans         prometheus.Gauge
	inspectionDuration prometheus.Histogram
	memoryUsage        prometheus.GaugeFunc
}

func NewPrometheusMetrics(namespace string, internal *domain.DefenseMetrics) *PrometheusMetrics {
	if namespace == "" {
		namespace = "gatewarden"
	}

	m := &PrometheusMetrics{}

	m.requestsTotal = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of requests inspected",
	}, func() float64 {
		if internal != nil {
			return float64(internal.TotalRequests())
		}
		return 0
	})

	m.rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Total rejected requests by detector",
	}, []string{"detector"})

	m.bansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bans_total",
		Help:      "Total bans issued by reason",
	}, []string{"reason"})

	m.activeBans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_bans",
		Help:      "Number of currently live ban records",
	})

	m.inspectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inspection_duration_seconds",
		Help:      "Time spent running the detector chain per request",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
	})

	m.memoryUsage = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current memory usage in bytes",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc)
	})

	return m
}

func (m *PrometheusMetrics) RequestInspected(elapsed time.Duration) {
	m.inspectionDuration.Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) RequestRejected(detector string) {
	m.rejectionsTotal.WithLabelValues(detector).Inc()
}

func (m *PrometheusMetrics) BanIssued(reason string) {
	// honeypot reasons carry the probed path; keep the label low-cardinality
	if base, _, found := strings.Cut(reason, ":"); found {
		reason = base
	}
	m.bansTotal.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) ActiveBans(count int64) {
	m.activeBans.Set(float64(count))
}

// Handler returns the scrape endpoint handler for the default registry.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.Handler()
}
