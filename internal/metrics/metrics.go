package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ovms_bridge"

// Metrics holds the bridge collectors.
type Metrics struct {
	connected       prometheus.Gauge
	connectionState *prometheus.GaugeVec
	reconnects      prometheus.Counter
	messages        prometheus.Counter
	dropped         prometheus.Counter
	parseFailures   prometheus.Counter
	objectsCreated  *prometheus.CounterVec
	objectsRemoved  prometheus.Counter
	objects         *prometheus.GaugeVec
	commands        *prometheus.CounterVec
	commandLatency  prometheus.Histogram
	pendingCommands prometheus.Gauge
}

// New creates the bridge metrics and registers them on registry.
//
// Parameters:
//   - registry: Target registerer; use prometheus.NewRegistry() in tests
//
// Returns:
//   - *Metrics: Ready to record
//   - error: If any collector is already registered
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "Broker connection status (1 for connected, 0 otherwise)",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection manager state (1 for the active state)",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of successful reconnections",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of inbound messages dispatched",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of inbound messages dropped because the queue was full",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Total number of payloads that could not be parsed",
		}),
		objectsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_created_total",
			Help:      "Total number of objects created, by object type",
		}, []string{"type"}),
		objectsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_removed_total",
			Help:      "Total number of objects removed after going stale",
		}),
		objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objects",
			Help:      "Number of live objects, by category",
		}, []string{"category"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of commands, by outcome",
		}, []string{"outcome"}),
		commandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from command publish to settlement",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		pendingCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_pending",
			Help:      "Number of commands awaiting a reply",
		}),
	}

	collectors := []prometheus.Collector{
		m.connected, m.connectionState, m.reconnects, m.messages, m.dropped,
		m.parseFailures, m.objectsCreated, m.objectsRemoved, m.objects, m.commands,
		m.commandLatency, m.pendingCommands,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register bridge metrics: %w", err)
		}
	}
	return m, nil
}

// SetConnectionState records the connection manager state.
func (m *Metrics) SetConnectionState(state string, connected bool) {
	m.connectionState.Reset()
	m.connectionState.WithLabelValues(state).Set(1)
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// IncReconnects counts a successful reconnection.
func (m *Metrics) IncReconnects() {
	m.reconnects.Inc()
}

// IncMessages counts a dispatched inbound message.
func (m *Metrics) IncMessages() {
	m.messages.Inc()
}

// IncDropped counts an inbound message dropped on a full queue.
func (m *Metrics) IncDropped() {
	m.dropped.Inc()
}

// AddParseFailures adds n unparseable payloads.
func (m *Metrics) AddParseFailures(n uint64) {
	m.parseFailures.Add(float64(n))
}

// IncObjectCreated counts a created object of the given type.
func (m *Metrics) IncObjectCreated(objectType string) {
	m.objectsCreated.WithLabelValues(objectType).Inc()
}

// IncObjectRemoved counts an object removed as stale.
func (m *Metrics) IncObjectRemoved() {
	m.objectsRemoved.Inc()
}

// SetObjects replaces the per-category object gauges.
func (m *Metrics) SetObjects(byCategory map[string]int) {
	m.objects.Reset()
	for category, n := range byCategory {
		m.objects.WithLabelValues(category).Set(float64(n))
	}
}

// ObserveCommand records a settled command.
func (m *Metrics) ObserveCommand(outcome string, elapsed time.Duration) {
	m.commands.WithLabelValues(outcome).Inc()
	m.commandLatency.Observe(elapsed.Seconds())
}

// SetPendingCommands records the number of outstanding commands.
func (m *Metrics) SetPendingCommands(n int) {
	m.pendingCommands.Set(float64(n))
}
