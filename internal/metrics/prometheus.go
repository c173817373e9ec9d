package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectionsTotal     prometheus.Gauge
	SubscriptionsByKind  *prometheus.GaugeVec
	MessagesReceived     prometheus.Counter
	MessagesDelivered    *prometheus.CounterVec
	MessagesDropped      *prometheus.CounterVec
	SlowConsumers        prometheus.Counter
	ViolationsReported   *prometheus.CounterVec
	StateTransitions     *prometheus.CounterVec
	LeaderboardRecompute prometheus.Histogram
	FactsApplied         *prometheus.CounterVec
	KafkaMessages        *prometheus.CounterVec
	RedisOperations      *prometheus.CounterVec
	AuthFailures         prometheus.Counter
}

// New registers every collector on reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections_total",
			Help: "Total number of active WebSocket connections",
		}),
		SubscriptionsByKind: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hub_subscriptions",
			Help: "Active topic subscriptions by topic kind",
		}, []string{"kind"}),
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "ws_messages_received_total",
			Help: "Total number of messages received from clients",
		}),
		MessagesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_messages_delivered_total",
			Help: "Messages queued to subscriber connections",
		}, []string{"kind"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_messages_dropped_total",
			Help: "Messages dropped because a subscriber buffer was full or closed",
		}, []string{"kind"}),
		SlowConsumers: f.NewCounter(prometheus.CounterOpts{
			Name: "hub_slow_consumers_disconnected_total",
			Help: "Connections closed after repeated dropped messages",
		}),
		ViolationsReported: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_violations_reported_total",
			Help: "Violation reports accepted by the ledger",
		}, []string{"violation_type"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_state_transitions_total",
			Help: "Disciplinary state transitions",
		}, []string{"to"}),
		LeaderboardRecompute: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "leaderboard_recompute_seconds",
			Help:    "Time spent recomputing and sorting one contest board",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		FactsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_facts_total",
			Help: "Submission facts handled by the leaderboard engine",
		}, []string{"result"}),
		KafkaMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages processed",
		}, []string{"topic", "status"}),
		RedisOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		}, []string{"operation", "status"}),
		AuthFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "ws_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
	}
}

func (m *Metrics) IncConnections() {
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) DecConnections() {
	m.ConnectionsTotal.Dec()
}

func (m *Metrics) IncSubscriptions(kind string) {
	m.SubscriptionsByKind.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecSubscriptions(kind string) {
	m.SubscriptionsByKind.WithLabelValues(kind).Dec()
}

func (m *Metrics) IncMessagesReceived() {
	m.MessagesReceived.Inc()
}

func (m *Metrics) AddDelivered(kind string, n int) {
	m.MessagesDelivered.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) AddDropped(kind string, n int) {
	m.MessagesDropped.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncSlowConsumers() {
	m.SlowConsumers.Inc()
}

func (m *Metrics) IncViolation(violationType string) {
	m.ViolationsReported.WithLabelValues(violationType).Inc()
}

func (m *Metrics) IncTransition(to string) {
	m.StateTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveRecompute(seconds float64) {
	m.LeaderboardRecompute.Observe(seconds)
}

func (m *Metrics) IncFact(result string) {
	m.FactsApplied.WithLabelValues(result).Inc()
}

func (m *Metrics) IncKafkaMessage(topic, status string) {
	m.KafkaMessages.WithLabelValues(topic, status).Inc()
}

func (m *Metrics) IncRedisOperation(operation, status string) {
	m.RedisOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncAuthFailures() {
	m.AuthFailures.Inc()
}
