package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type deliveryResult string

const (
	resultSent   deliveryResult = "sent"
	resultRetry  deliveryResult = "retry"
	resultFailed deliveryResult = "failed"
)

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "incidenttracker",
			Subsystem: "notifications",
			Name:      "queue_items",
			Help:      "Notification queue items by status",
		},
		[]string{"status"},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incidenttracker",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "incidenttracker",
			Subsystem: "notifications",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent rendering and sending one notification",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	claimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "incidenttracker",
			Subsystem: "notifications",
			Name:      "claimed_total",
			Help:      "Queue items claimed by the worker",
		},
	)
)

func observeDelivery(channel ChannelType, result deliveryResult, took time.Duration) {
	deliveries.WithLabelValues(string(channel), string(result)).Inc()
	deliveryDuration.WithLabelValues(string(channel)).Observe(took.Seconds())
}

func observeClaimed(n int) {
	claimed.Add(float64(n))
}

// RecordQueueStats publishes queue depth gauges.
func RecordQueueStats(stats *QueueStats) {
	for status, n := range map[QueueStatus]int64{
		QueueStatusPending:    stats.Pending,
		QueueStatusProcessing: stats.Processing,
		QueueStatusSent:       stats.Sent,
		QueueStatusFailed:     stats.Failed,
	} {
		queueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}
