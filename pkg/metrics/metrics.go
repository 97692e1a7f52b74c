package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "fanout"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	// Config error kinds
	ConfigErrorEntityNotSet   = "entity_not_set"
	ConfigErrorNoBrokerSet    = "no_broker_set"
	ConfigErrorLogLevelNotSet = "log_level_not_set"
	ConfigErrorClient         = "client"

	// Kafka error severities
	SeverityFatal    = "fatal"
	SeverityNonFatal = "non_fatal"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple producer instances.
type Labels struct {
	Service       string // Logical producer name (e.g., "orders-fanout")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Service != "" {
		labels["service"] = l.Service
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Fan-out
	produceCalls     *prometheus.CounterVec   // by status
	produceDuration  *prometheus.HistogramVec // by status
	topicPublishes   *prometheus.CounterVec   // by topic, status
	registeredTopics prometheus.Gauge

	// Setup
	configErrors *prometheus.CounterVec // by kind

	// Notifications
	notifications *prometheus.CounterVec // by origin

	// Kafka client
	deliveryReports  *prometheus.CounterVec // by status
	queueFullRetries prometheus.Counter
	kafkaErrors      *prometheus.CounterVec // by severity (fatal/non_fatal)
	unknownEvents    prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., service), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		produceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "produce_calls_total",
			Help:      "Total number of fan-out produce calls by status",
		}, []string{"status"}),
		produceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "produce_duration_seconds",
			Help:      "Duration of fan-out produce calls across all topics",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"status"}),
		topicPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "topic_publishes_total",
			Help:      "Total number of per-topic publish attempts by topic and status",
		}, []string{"topic", "status"}),
		registeredTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registered_topics",
			Help:      "Number of topics in the fan-out list",
		}),
		configErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "config_errors_total",
			Help:      "Total number of rejected configuration calls by kind",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_total",
			Help:      "Total number of post-publish notifications by origin",
		}, []string{"origin"}),
		deliveryReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "delivery_reports_total",
			Help:      "Total number of delivery reports received by status",
		}, []string{"status"}),
		queueFullRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_full_retries_total",
			Help:      "Total number of produce retries caused by a full local queue",
		}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "kafka_errors_total",
			Help:      "Total number of Kafka client errors by severity",
		}, []string{"severity"}),
		unknownEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unknown_events_total",
			Help:      "Total number of unexpected Kafka producer events",
		}),
	}

	err := errors.Join(
		reg.Register(m.produceCalls),
		reg.Register(m.produceDuration),
		reg.Register(m.topicPublishes),
		reg.Register(m.registeredTopics),
		reg.Register(m.configErrors),
		reg.Register(m.notifications),
		reg.Register(m.deliveryReports),
		reg.Register(m.queueFullRetries),
		reg.Register(m.kafkaErrors),
		reg.Register(m.unknownEvents),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveProduce records the outcome and duration of one fan-out call.
func (m *Metrics) ObserveProduce(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.produceCalls.WithLabelValues(status).Inc()
	m.produceDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncTopicPublish records one per-topic publish attempt.
func (m *Metrics) IncTopicPublish(topic, status string) {
	if m == nil {
		return
	}
	m.topicPublishes.WithLabelValues(topic, status).Inc()
}

// SetRegisteredTopics sets the fan-out list size.
func (m *Metrics) SetRegisteredTopics(n int) {
	if m == nil {
		return
	}
	m.registeredTopics.Set(float64(n))
}

// IncConfigError records a rejected configuration call.
func (m *Metrics) IncConfigError(kind string) {
	if m == nil {
		return
	}
	m.configErrors.WithLabelValues(kind).Inc()
}

// IncNotification records a notification delivered for origin.
func (m *Metrics) IncNotification(origin string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(origin).Inc()
}

// RecordDeliveryReport records a delivery report. Pass nil for success.
func (m *Metrics) RecordDeliveryReport(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.deliveryReports.WithLabelValues(status).Inc()
}

// IncQueueFullRetry records a retry after a full local queue.
func (m *Metrics) IncQueueFullRetry() {
	if m == nil {
		return
	}
	m.queueFullRetries.Inc()
}

// IncKafkaError records a Kafka client error event.
func (m *Metrics) IncKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := SeverityNonFatal
	if fatal {
		severity = SeverityFatal
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}

// IncUnknownEvent records an unexpected producer event.
func (m *Metrics) IncUnknownEvent() {
	if m == nil {
		return
	}
	m.unknownEvents.Inc()
}
