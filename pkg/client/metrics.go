package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus metrics of one client.
type metrics struct {
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	actionsSent      prometheus.Counter
	actionsFailed    prometheus.Counter
	rejects          prometheus.Counter
	rollbacks        *prometheus.CounterVec
	rolledBack       prometheus.Counter
	previewDepth     prometheus.Gauge
	decodeErrors     *prometheus.CounterVec
	requestDuration  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from the server by type",
		}, []string{"type"}),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages sent to the server by type",
		}, []string{"type"}),

		actionsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_sent_total",
			Help:      "Recorded actions sent to the server",
		}),

		actionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_failed_total",
			Help:      "Actions aborted locally because their callback failed",
		}),

		rejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_received_total",
			Help:      "Actions rejected by the server",
		}),

		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Rollbacks of locally applied changes by reason",
		}, []string{"reason"}),

		rolledBack: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rolled_back_changes_total",
			Help:      "Changes undone by rollbacks",
		}),

		previewDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preview_queue_depth",
			Help:      "Changes applied locally and waiting for the server",
		}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound messages or changes that could not be decoded",
		}, []string{"stage"}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Round trip time of service requests",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
