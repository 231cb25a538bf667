package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstream",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msgstream",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstream",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frame operations by direction and outcome code.",
		},
		[]string{"node", "direction", "code"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstream",
			Subsystem: "stream",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes moved by successful frame operations.",
		},
		[]string{"node", "direction"},
	)
	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstream",
			Subsystem: "stream",
			Name:      "connections_total",
			Help:      "Stream connections by close reason code.",
		},
		[]string{"node", "code"},
	)
	activeConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "msgstream",
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Currently open stream connections.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, frames, frameBytes, connections, activeConnections)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one Send or Receive outcome. code is an error code name.
func RecordFrame(node, direction, code string, payloadBytes int) {
	RegisterMetrics()
	frames.WithLabelValues(node, direction, code).Inc()
	if payloadBytes > 0 {
		frameBytes.WithLabelValues(node, direction).Add(float64(payloadBytes))
	}
}

func ConnectionOpened(node string) {
	RegisterMetrics()
	activeConnections.WithLabelValues(node).Inc()
}

// ConnectionClosed records why a connection ended, by error code name.
func ConnectionClosed(node, code string) {
	RegisterMetrics()
	activeConnections.WithLabelValues(node).Dec()
	connections.WithLabelValues(node, code).Inc()
}
