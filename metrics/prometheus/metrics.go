// Package prometheus provides Prometheus metrics exporters for the streaming runtime.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mediarun"

var (
	// sessionsActive is a gauge of currently open sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open sessions",
		},
	)

	// sessionDuration is a histogram of total session lifetime.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of session lifetime in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"status"}, // status: success, error
	)

	// nodeDuration is a histogram of per-node Process call duration.
	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Histogram of node Process call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)

	// nodeInvocationsTotal is a counter of node Process calls.
	nodeInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_invocations_total",
			Help:      "Total number of node Process invocations",
		},
		[]string{"node_type", "status"}, // status: success, error
	)

	// nodeOutputsTotal is a counter of chunks a node produced.
	nodeOutputsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_outputs_total",
			Help:      "Total number of output chunks produced by a node type",
		},
		[]string{"node_type"},
	)

	// queueSaturatedTotal is a counter of queue-full backpressure events.
	queueSaturatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_saturated_total",
			Help:      "Total number of times a node's inbound queue hit capacity",
		},
		[]string{"node_id"},
	)

	// chunksRoutedTotal is a counter of chunks routed between nodes.
	chunksRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_routed_total",
			Help:      "Total number of chunks routed from one node to another",
		},
		[]string{"from_node", "to_node"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionDuration,
		nodeDuration,
		nodeInvocationsTotal,
		nodeOutputsTotal,
		queueSaturatedTotal,
		chunksRoutedTotal,
	}
)

// RecordSessionOpened records a session start.
func RecordSessionOpened() {
	sessionsActive.Inc()
}

// RecordSessionClosed records a session ending, successfully or not.
func RecordSessionClosed(status string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordNodeInvocation records one node Process call.
func RecordNodeInvocation(nodeType, status string, durationSeconds float64) {
	nodeDuration.WithLabelValues(nodeType).Observe(durationSeconds)
	nodeInvocationsTotal.WithLabelValues(nodeType, status).Inc()
}

// RecordNodeOutputs records the number of chunks a node produced.
func RecordNodeOutputs(nodeType string, count int) {
	if count > 0 {
		nodeOutputsTotal.WithLabelValues(nodeType).Add(float64(count))
	}
}

// RecordQueueSaturated records a node's inbound queue hitting capacity.
func RecordQueueSaturated(nodeID string) {
	queueSaturatedTotal.WithLabelValues(nodeID).Inc()
}

// RecordChunkRouted records a chunk routed from one node to another.
func RecordChunkRouted(fromNode, toNode string) {
	chunksRoutedTotal.WithLabelValues(fromNode, toNode).Inc()
}
