package apiclient

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request counts and latencies per method, resource and
// status class.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the client collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crudboard",
			Subsystem: "api_client",
			Name:      "requests_total",
			Help:      "Requests issued to the remote API.",
		}, []string{"method", "resource", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crudboard",
			Subsystem: "api_client",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests issued to the remote API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "resource"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(method, path, status string, latency time.Duration) {
	if m == nil {
		return
	}
	resource := resourceLabel(path)
	m.requests.WithLabelValues(method, resource, status).Inc()
	m.duration.WithLabelValues(method, resource).Observe(latency.Seconds())
}

// resourceLabel keeps label cardinality bounded by using only the first path
// segment ("users/42" -> "users").
func resourceLabel(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(path, "/?"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}
