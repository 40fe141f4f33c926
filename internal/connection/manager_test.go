package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nerrad567/ovms-bridge/internal/infrastructure/mqtt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testTopics = mqtt.NewTopics("ovms", "alice", "car1")

// =============================================================================
// Fakes
// =============================================================================

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	published []published
	subs      map[string]mqtt.MessageHandler
	unsubs    []string
	subCalls  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.published = append(f.published, published{topic, string(payload), qos, retained})
	return nil
}

func (f *fakeTransport) Subscribe(filter string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	f.subs[filter] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, filter)
	f.unsubs = append(f.unsubs, filter)
	return nil
}

func (f *fakeTransport) HasSubscription(filter string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[filter]
	return ok
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeTransport) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

func (f *fakeTransport) handler(filter string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[filter]
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer fails the first len(errs) attempts with the given errors.
type fakeDialer struct {
	mu         sync.Mutex
	errs       []error
	always     error
	dials      int
	wills      []mqtt.Will
	transports []*fakeTransport
	lost       []func(error)
}

func (d *fakeDialer) Dial(_ context.Context, will mqtt.Will, onLost func(error)) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.wills = append(d.wills, will)
	if d.always != nil {
		return nil, d.always
	}
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	d.lost = append(d.lost, onLost)
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

func (d *fakeDialer) loseSession(i int, err error) {
	d.mu.Lock()
	fn := d.lost[i]
	d.mu.Unlock()
	fn(err)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func testConfig() Config {
	return Config{
		Topics:       testTopics,
		QoS:          1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  5,
	}
}

func newTestManager(t *testing.T, d *fakeDialer, h Handlers) *Manager {
	t.Helper()
	m := New(testConfig(), d, h)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

// =============================================================================
// Connect
// =============================================================================

func TestConnect_AnnouncesAndSubscribes(t *testing.T) {
	d := &fakeDialer{}
	rec := &stateRecorder{}
	m := newTestManager(t, d, Handlers{OnStateChange: rec.record})

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())
	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.all())

	require.Len(t, d.wills, 1)
	will := d.wills[0]
	assert.Equal(t, "ovms/alice/car1/status", will.Topic)
	assert.Equal(t, "offline", string(will.Payload))
	assert.True(t, will.Retained)
	assert.Equal(t, byte(1), will.QoS)

	tr := d.transport(0)
	assert.Equal(t, []published{{"ovms/alice/car1/status", "online", 1, true}}, tr.snapshot())
	assert.True(t, tr.HasSubscription("ovms/alice/car1/#"))
	assert.True(t, tr.HasSubscription("ovms/+/car1/#"))

	// Connect while connected is a no-op.
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, d.dialCount())
}

func TestConnect_AuthRejectedIsFatal(t *testing.T) {
	authErr := fmt.Errorf("%w: Connection Refused: Not Authorised (code 5)", mqtt.ErrAuthRejected)
	d := &fakeDialer{always: authErr}
	fatal := make(chan error, 1)
	m := newTestManager(t, d, Handlers{OnFatal: func(err error) { fatal <- err }})

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, mqtt.ErrAuthRejected)
	assert.Equal(t, StateFailed, m.State())

	select {
	case got := <-fatal:
		assert.ErrorIs(t, got, ErrAuth)
	case <-time.After(time.Second):
		t.Fatal("OnFatal not called")
	}

	// No retries are scheduled.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())

	stats := m.Stats()
	assert.Equal(t, "failed", stats.State)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
	assert.Contains(t, stats.LastError, "authentication rejected")
}

func TestConnect_TransportFailureRetriesInBackground(t *testing.T) {
	netErr := fmt.Errorf("%w: dial tcp: connection refused", mqtt.ErrConnectionFailed)
	d := &fakeDialer{errs: []error{netErr, netErr}}
	m := newTestManager(t, d, Handlers{})

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrAuth)

	require.Eventually(t, m.IsConnected, time.Second, time.Millisecond)
	assert.Equal(t, 3, d.dialCount())

	stats := m.Stats()
	assert.Equal(t, 0, stats.ConsecutiveFailures)
	assert.Equal(t, uint64(1), stats.Reconnects)
	assert.False(t, stats.LastFailure.IsZero())
}

func TestConnect_RetriesExhausted(t *testing.T) {
	d := &fakeDialer{always: mqtt.ErrConnectionFailed}
	fatal := make(chan error, 1)
	m := newTestManager(t, d, Handlers{OnFatal: func(err error) { fatal <- err }})

	require.ErrorIs(t, m.Connect(context.Background()), ErrTransport)

	select {
	case got := <-fatal:
		assert.ErrorIs(t, got, ErrRetriesExhausted)
		assert.ErrorIs(t, got, ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("OnFatal not called")
	}
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, 5, d.dialCount())
	assert.Equal(t, 5, m.Stats().ConsecutiveFailures)
}

func TestConnect_CancelledContext(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, Handlers{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the request is rejected or it completes; it must not hang.
	err := m.Connect(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

// =============================================================================
// Connection loss
// =============================================================================

func TestConnectionLost_Reconnects(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, Handlers{})
	require.NoError(t, m.Connect(context.Background()))

	d.loseSession(0, errors.New("EOF"))

	require.Eventually(t, func() bool {
		return d.dialCount() == 2 && m.IsConnected()
	}, time.Second, time.Millisecond)

	assert.True(t, d.transport(0).isClosed())
	second := d.transport(1)
	assert.True(t, second.HasSubscription("ovms/alice/car1/#"))
	assert.Equal(t, "online", second.snapshot()[0].payload)

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Reconnects)
	assert.Equal(t, "EOF", stats.LastError)

	// A late notice from the old session is ignored.
	d.loseSession(0, errors.New("stale"))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 2, d.dialCount())
}

// =============================================================================
// Publish and subscriptions
// =============================================================================

func TestPublish_NotConnected(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, Handlers{})
	assert.ErrorIs(t, m.Publish("a/b", []byte("x"), 1, false), ErrNotConnected)
}

func TestPublish_Connected(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, Handlers{})
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Publish("ovms/alice/client/rr/command/aaaa0001", []byte("stat"), 1, false))
	msgs := d.transport(0).snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "stat", msgs[1].payload)
}

func TestMessagesReachHandler(t *testing.T) {
	d := &fakeDialer{}
	var got []string
	var mu sync.Mutex
	m := newTestManager(t, d, Handlers{OnMessage: func(topic string, payload []byte) {
		mu.Lock()
		got = append(got, topic+"="+string(payload))
		mu.Unlock()
	}})
	require.NoError(t, m.Connect(context.Background()))

	h := d.transport(0).handler("ovms/alice/car1/#")
	require.NotNil(t, h)
	require.NoError(t, h("ovms/alice/car1/metric/v/b/soc", []byte("80")))

	mu.Lock()
	assert.Equal(t, []string{"ovms/alice/car1/metric/v/b/soc=80"}, got)
	mu.Unlock()
	assert.Equal(t, uint64(1), m.Stats().Messages)
}

func TestAddRemoveSubscription(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, Handlers{})

	// Registered before connect, subscribed on connect.
	require.NoError(t, m.AddSubscription("ovms/alice/client/rr/response/+"))
	require.NoError(t, m.Connect(context.Background()))
	tr := d.transport(0)
	assert.True(t, tr.HasSubscription("ovms/alice/client/rr/response/+"))
	assert.Equal(t, 3, m.Stats().Subscriptions)

	// Adding again does not resubscribe.
	calls := tr.subCalls
	require.NoError(t, m.AddSubscription("ovms/alice/client/rr/response/+"))
	assert.Equal(t, calls, tr.subCalls)
	assert.Equal(t, 3, m.Stats().Subscriptions)

	require.NoError(t, m.RemoveSubscription("ovms/alice/client/rr/response/+"))
	assert.False(t, tr.HasSubscription("ovms/alice/client/rr/response/+"))
	assert.Equal(t, 2, m.Stats().Subscriptions)
}

// =============================================================================
// Shutdown
// =============================================================================

func TestShutdown_PublishesOffline(t *testing.T) {
	d := &fakeDialer{}
	m := New(testConfig(), d, Handlers{})
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Shutdown(context.Background()))

	tr := d.transport(0)
	msgs := tr.snapshot()
	assert.Equal(t, published{"ovms/alice/car1/status", "offline", 1, true}, msgs[len(msgs)-1])
	assert.True(t, tr.isClosed())
	assert.Equal(t, StateShuttingDown, m.State())

	assert.ErrorIs(t, m.Connect(context.Background()), ErrShuttingDown)
	assert.ErrorIs(t, m.Publish("a/b", []byte("x"), 0, false), ErrNotConnected)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestShutdown_BeforeConnect(t *testing.T) {
	d := &fakeDialer{}
	m := New(testConfig(), d, Handlers{})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, StateShuttingDown, m.State())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrShuttingDown)
	assert.Equal(t, 0, d.dialCount())
}

func TestShutdown_CancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{always: mqtt.ErrConnectionFailed}
	cfg := testConfig()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	m := New(cfg, d, Handlers{})

	require.ErrorIs(t, m.Connect(context.Background()), ErrTransport)
	assert.Equal(t, StateReconnecting, m.State())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 1, d.dialCount())
}

// =============================================================================
// State
// =============================================================================

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestOverlappingFiltersDeliverOnce(t *testing.T) {
	d := &fakeDialer{}
	var n int
	var mu sync.Mutex
	m := newTestManager(t, d, Handlers{OnMessage: func(string, []byte) {
		mu.Lock()
		n++
		mu.Unlock()
	}})
	require.NoError(t, m.Connect(context.Background()))

	tr := d.transport(0)
	own := tr.handler("ovms/alice/car1/#")
	wildcard := tr.handler("ovms/+/car1/#")

	// The transport calls both handlers for a topic matching both filters.
	require.NoError(t, own("ovms/alice/car1/metric/v/b/soc", []byte("80")))
	require.NoError(t, wildcard("ovms/alice/car1/metric/v/b/soc", []byte("80")))

	// Another account's topic only matches the wildcard filter.
	require.NoError(t, wildcard("ovms/bob/car1/metric/v/b/soc", []byte("81")))

	mu.Lock()
	assert.Equal(t, 2, n)
	mu.Unlock()
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"ovms/alice/car1/#", "ovms/alice/car1/metric/v/b/soc", true},
		{"ovms/alice/car1/#", "ovms/alice/car1", true},
		{"ovms/+/car1/#", "ovms/bob/car1/status", true},
		{"ovms/+/car1/#", "ovms/bob/car2/status", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/c/d", false},
		{"a/b", "a/b/c", false},
		{"ovms/alice/client/rr/response/+", "ovms/alice/client/rr/response/abc", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchTopic(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}
