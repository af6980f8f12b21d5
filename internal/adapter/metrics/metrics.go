package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RUMMetrics holds all Prometheus metrics for the RUM pipeline.
type RUMMetrics struct {
	EventsTotal       *prometheus.CounterVec
	LogsSent          prometheus.Counter
	LogsFailed        prometheus.Counter
	LogsDropped       *prometheus.CounterVec
	RetryQueueSize    prometheus.Gauge
	RetriesTotal      prometheus.Counter
	AppKeyCacheHits   prometheus.Counter
	AppKeyCacheMisses prometheus.Counter
}

// NewRUMMetrics initializes the metrics and registers them with reg. A nil reg
// registers with the default registry.
func NewRUMMetrics(reg prometheus.Registerer) *RUMMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &RUMMetrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Total number of captured events by type and sampling decision.",
		}, []string{"type", "decision"}), // decision: reported, sampled_out, invalid
		LogsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "delivery",
			Name:      "logs_sent_total",
			Help:      "Total number of log records accepted by the backend.",
		}),
		LogsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "delivery",
			Name:      "logs_failed_total",
			Help:      "Total number of failed send attempts.",
		}),
		LogsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "delivery",
			Name:      "logs_dropped_total",
			Help:      "Total number of log records dropped without delivery.",
		}, []string{"reason"}), // reason: oversize, max_retries, filter_error
		RetryQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rumtrack",
			Subsystem: "delivery",
			Name:      "retry_queue_size",
			Help:      "Number of log payloads waiting in the retry queue.",
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "delivery",
			Name:      "retries_total",
			Help:      "Total number of resend attempts made by retry passes.",
		}),
		AppKeyCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "auth",
			Name:      "app_key_cache_hits_total",
			Help:      "Total number of app key cache hits.",
		}),
		AppKeyCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rumtrack",
			Subsystem: "auth",
			Name:      "app_key_cache_misses_total",
			Help:      "Total number of app key cache misses.",
		}),
	}
}
