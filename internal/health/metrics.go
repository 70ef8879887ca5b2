package health

import (
	"github.com/kapipe/pkg/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for kapipe. It receives connection
// events from the pipeline and query results from the replay.
type Metrics struct {
	QueriesTotal      *prometheus.CounterVec
	QueryDuration     prometheus.Histogram
	QueriesPending    prometheus.Gauge
	QueriesInFlight   prometheus.Gauge
	ConnectAttempts   prometheus.Counter
	ConnectFailures   prometheus.Counter
	ConnectionsOpen   prometheus.Gauge
	ConnectionsClosed prometheus.Counter
	QueriesRequeued   prometheus.Counter
	TrackerFailures   prometheus.Counter
	TargetHealth      prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kapipe",
				Name:      "queries_total",
				Help:      "Total number of answered queries by outcome",
			},
			[]string{"outcome"},
		),
		QueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kapipe",
				Name:      "query_duration_seconds",
				Help:      "Time from submit to answer",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
		),
		QueriesPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kapipe",
				Name:      "queries_pending",
				Help:      "Queries waiting to be sent",
			},
		),
		QueriesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kapipe",
				Name:      "queries_in_flight",
				Help:      "Queries sent on the current connection and not yet answered",
			},
		),
		ConnectAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kapipe",
				Name:      "connect_attempts_total",
				Help:      "Connection attempts",
			},
		),
		ConnectFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kapipe",
				Name:      "connect_failures_total",
				Help:      "Failed connection attempts",
			},
		),
		ConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kapipe",
				Name:      "connections_open",
				Help:      "Whether a connection is open (1=yes, 0=no)",
			},
		),
		ConnectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kapipe",
				Name:      "connections_closed_total",
				Help:      "Connections lost or closed",
			},
		),
		QueriesRequeued: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kapipe",
				Name:      "queries_requeued_total",
				Help:      "In-flight queries put back after a connection loss",
			},
		),
		TrackerFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kapipe",
				Name:      "tracker_failures_total",
				Help:      "Replies carrying a failure reason",
			},
		),
		TargetHealth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kapipe",
				Name:      "target_health",
				Help:      "Health status of the target (1=healthy, 0=unhealthy)",
			},
		),
	}
}

var _ pipeline.Observer = (*Metrics)(nil)

// RecordQuery records metrics for an answered query.
func (m *Metrics) RecordQuery(outcome string, durationSeconds float64) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.Observe(durationSeconds)
	if outcome == "tracker_failure" {
		m.TrackerFailures.Inc()
	}
}

// SetTargetHealth updates the health status of the target.
func (m *Metrics) SetTargetHealth(healthy bool) {
	if healthy {
		m.TargetHealth.Set(1)
	} else {
		m.TargetHealth.Set(0)
	}
}

func (m *Metrics) ConnectAttempt() {
	m.ConnectAttempts.Inc()
}

func (m *Metrics) ConnectFailed(err error) {
	m.ConnectFailures.Inc()
}

func (m *Metrics) ConnectionOpened() {
	m.ConnectionsOpen.Set(1)
}

func (m *Metrics) ConnectionClosed(requeued int) {
	m.ConnectionsOpen.Set(0)
	m.ConnectionsClosed.Inc()
	m.QueriesRequeued.Add(float64(requeued))
}

func (m *Metrics) QueueChanged(pending, inflight int) {
	m.QueriesPending.Set(float64(pending))
	m.QueriesInFlight.Set(float64(inflight))
}
