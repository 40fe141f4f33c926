package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewRegistersOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err)
}

func TestSetConnectionState(t *testing.T) {
	m := newTestMetrics(t)

	m.SetConnectionState("connecting", false)
	m.SetConnectionState("connected", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.connected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionState.WithLabelValues("connected")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.connectionState))

	m.SetConnectionState("reconnecting", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.connected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionState.WithLabelValues("reconnecting")))
}

func TestCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.IncMessages()
	m.IncMessages()
	m.IncDropped()
	m.IncReconnects()
	m.AddParseFailures(3)
	m.IncObjectCreated("scalar")
	m.IncObjectCreated("scalar")
	m.IncObjectCreated("positional_fix")
	m.IncObjectRemoved()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.messages))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconnects))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.parseFailures))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.objectsCreated.WithLabelValues("scalar")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.objectsCreated.WithLabelValues("positional_fix")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.objectsRemoved))
}

func TestSetObjectsReplacesCategories(t *testing.T) {
	m := newTestMetrics(t)

	m.SetObjects(map[string]int{"battery": 4, "location": 3})
	assert.Equal(t, 2, testutil.CollectAndCount(m.objects))

	m.SetObjects(map[string]int{"battery": 5})
	assert.Equal(t, 1, testutil.CollectAndCount(m.objects))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.objects.WithLabelValues("battery")))
}

func TestObserveCommand(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveCommand("replied", 120*time.Millisecond)
	m.ObserveCommand("timed_out", 10*time.Second)
	m.SetPendingCommands(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("replied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("timed_out")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.commandLatency))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.pendingCommands))
}
