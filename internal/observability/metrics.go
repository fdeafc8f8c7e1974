package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nodectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nodectl",
			Subsystem: "transport",
			Name:      "sessions_active",
			Help:      "Client sessions currently established.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Frames read from or written to client sessions.",
		},
		[]string{"direction"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "transport",
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped before reaching a session.",
		},
		[]string{"reason"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodectl",
			Subsystem: "core",
			Name:      "dispatch_total",
			Help:      "Signal dispatches by outcome.",
		},
		[]string{"signal", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nodectl",
			Subsystem: "core",
			Name:      "dispatch_duration_seconds",
			Help:      "Signal dispatch duration in seconds, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"signal"},
	)
	treeNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nodectl",
			Subsystem: "core",
			Name:      "tree_nodes",
			Help:      "Nodes indexed in the component tree.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionsActive,
			framesTotal,
			framesDropped,
			dispatchTotal,
			dispatchDuration,
			treeNodes,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func SetSessionsActive(n int) {
	RegisterMetrics()
	sessionsActive.Set(float64(n))
}

func RecordFrameIn() {
	RegisterMetrics()
	framesTotal.WithLabelValues("in").Inc()
}

func RecordFrameOut() {
	RegisterMetrics()
	framesTotal.WithLabelValues("out").Inc()
}

// RecordFrameDropped counts a frame that never reached its session.
// Reasons: unknown_session, closed_session, queue_full, encode.
func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

// RecordDispatch records one signal dispatch; outcome is "ok" or the error kind.
func RecordDispatch(signal, outcome string, duration time.Duration) {
	RegisterMetrics()
	dispatchTotal.WithLabelValues(signal, outcome).Inc()
	dispatchDuration.WithLabelValues(signal).Observe(duration.Seconds())
}

func SetTreeNodes(n int) {
	RegisterMetrics()
	treeNodes.Set(float64(n))
}
