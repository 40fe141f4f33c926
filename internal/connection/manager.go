package connection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/mqtt"
)

// Reconnect defaults.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMaxAttempts  = 10
	DefaultJitter       = 0.25

	mailboxSize = 16
	presenceQoS = 1
)

// Presence payloads published on the status topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is one broker session. *mqtt.Client implements it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(filter string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(filter string) error
	HasSubscription(filter string) bool
	IsConnected() bool
	Close() error
}

// Dialer opens broker sessions.
type Dialer interface {
	// Dial makes one attempt. onLost must be called at most once, when an
	// established session drops.
	Dial(ctx context.Context, will mqtt.Will, onLost func(error)) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, will mqtt.Will, onLost func(error)) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, will mqtt.Will, onLost func(error)) (Transport, error) {
	return f(ctx, will, onLost)
}

// MQTTDialer returns a Dialer backed by the paho transport.
func MQTTDialer(cfg config.MQTTConfig, logger mqtt.Logger) Dialer {
	return DialerFunc(func(ctx context.Context, will mqtt.Will, onLost func(error)) (Transport, error) {
		c, err := mqtt.Dial(ctx, cfg, mqtt.DialOptions{Will: &will, OnConnectionLost: onLost})
		if err != nil {
			return nil, err
		}
		if logger != nil {
			c.SetLogger(logger)
		}
		return c, nil
	})
}

// Config configures a Manager.
type Config struct {
	Topics mqtt.Topics
	QoS    byte

	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int

	// Jitter is the randomization factor applied to each delay (0.25 = ±25%).
	Jitter float64
}

// ConfigFromMQTT builds a Config from the MQTT section of the configuration.
func ConfigFromMQTT(cfg config.MQTTConfig, topics mqtt.Topics) Config {
	return Config{
		Topics:       topics,
		QoS:          byte(cfg.QoS), //nolint:gosec // validated to 0..2
		InitialDelay: time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		MaxDelay:     time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
	}
}

// Handlers receive connection events. All are optional.
//
// OnStateChange and OnFatal run on the manager's actor goroutine and must not
// call Connect or Shutdown synchronously.
type Handlers struct {
	OnMessage     func(topic string, payload []byte)
	OnStateChange func(state State)
	OnFatal       func(err error)
}

type messageKind int

const (
	msgConnect messageKind = iota
	msgLost
	msgTick
	msgShutdown
)

type message struct {
	kind    messageKind
	ctx     context.Context //nolint:containedctx // carried across the mailbox only
	session uint64
	err     error
	reply   chan error
}

// Manager supervises the broker connection.
//
// A single actor goroutine owns the lifecycle and consumes a mailbox of
// connect requests, connection-lost notices, reconnect ticks and the
// shutdown request. Reconnects are scheduled with time.AfterFunc posting a
// tick, with exponential delay min(MaxDelay, InitialDelay·2^(n-1)) and
// jitter. Credential refusals are fatal immediately; after MaxAttempts
// consecutive transport failures the manager gives up and reports OnFatal.
//
// On every successful connect the manager publishes retained "online" on the
// status topic (the last will carries "offline") and subscribes all
// registered filters.
//
// The Manager never touches the object store.
type Manager struct {
	cfg      Config
	dialer   Dialer
	handlers Handlers
	logger   Logger
	now      func() time.Time

	mailbox   chan message
	stopped   chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	closing   atomic.Bool
	runCtx    context.Context //nolint:containedctx // lifecycle of the actor
	cancelRun context.CancelFunc

	// Owned by the actor goroutine.
	backoff *backoff.ExponentialBackOff
	timer   *time.Timer
	session uint64

	mu          sync.RWMutex
	state       State
	transport   Transport
	filters     []string
	failures    int
	lastFailure time.Time
	lastErr     error

	reconnects atomic.Uint64
	messages   atomic.Uint64
}

// New creates a connection manager. Nothing happens until Connect.
//
// Parameters:
//   - cfg: Topics, QoS and reconnect policy; zero values use the defaults
//   - dialer: Opens broker sessions (MQTTDialer in production)
//   - handlers: Message and lifecycle callbacks
//
// Returns:
//   - *Manager: Subscribed to the vehicle tree and the any-account pattern
func New(cfg Config, dialer Dialer, handlers Handlers) *Manager {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = DefaultJitter
	}

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialDelay),
		backoff.WithMaxInterval(cfg.MaxDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(cfg.Jitter),
		backoff.WithMaxElapsedTime(0),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		dialer:    dialer,
		handlers:  handlers,
		logger:    noopLogger{},
		now:       time.Now,
		mailbox:   make(chan message, mailboxSize),
		stopped:   make(chan struct{}),
		runCtx:    runCtx,
		cancelRun: cancel,
		backoff:   bo,
		filters:   []string{cfg.Topics.All(), cfg.Topics.AnyAccount()},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

func (m *Manager) start() {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.run()
	})
}

// post delivers a message to the actor unless it has stopped.
func (m *Manager) post(msg message) bool {
	select {
	case m.mailbox <- msg:
		return true
	case <-m.stopped:
		return false
	}
}

// Connect performs the first connection.
//
// A transport failure is returned wrapped in ErrTransport and retries are
// scheduled in the background. An authentication refusal is returned wrapped
// in ErrAuth and nothing is retried.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closing.Load() {
		return ErrShuttingDown
	}
	m.start()

	reply := make(chan error, 1)
	if !m.post(message{kind: msgConnect, ctx: ctx, reply: reply}) {
		return ErrShuttingDown
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrShuttingDown
	}
}

// Publish sends one message on the current session.
//
// Returns:
//   - error: ErrNotConnected outside the connected state, ErrTransport if the
//     transport fails
func (m *Manager) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.RLock()
	t, st := m.transport, m.state
	m.mu.RUnlock()

	if st != StateConnected || t == nil {
		return ErrNotConnected
	}
	if err := t.Publish(topic, payload, qos, retained); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// IsConnected reports whether the manager is in the connected state.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AddSubscription registers a filter for every session. If connected, it is
// subscribed immediately. Adding a filter twice is a no-op.
func (m *Manager) AddSubscription(filter string) error {
	m.mu.Lock()
	if !slices.Contains(m.filters, filter) {
		m.filters = append(m.filters, filter)
	}
	t, st := m.transport, m.state
	m.mu.Unlock()

	if st != StateConnected || t == nil {
		return nil
	}
	return m.subscribe(t, filter)
}

// RemoveSubscription unregisters a filter and unsubscribes it if connected.
func (m *Manager) RemoveSubscription(filter string) error {
	m.mu.Lock()
	m.filters = slices.DeleteFunc(m.filters, func(f string) bool { return f == filter })
	t, st := m.transport, m.state
	m.mu.Unlock()

	if st != StateConnected || t == nil || !t.HasSubscription(filter) {
		return nil
	}
	if err := t.Unsubscribe(filter); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		State:               m.state.String(),
		ConsecutiveFailures: m.failures,
		LastFailure:         m.lastFailure,
		Reconnects:          m.reconnects.Load(),
		Messages:            m.messages.Load(),
		Subscriptions:       len(m.filters),
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Shutdown tears the connection down: it sets the shutting-down flag that
// every timer checks, cancels the reconnect timer, publishes a best-effort
// retained "offline" and closes the transport. Safe to call multiple times.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		m.closing.Store(true)
		m.cancelRun()

		if !m.started.Load() {
			m.setState(StateShuttingDown)
			return
		}

		reply := make(chan error, 1)
		if !m.post(message{kind: msgShutdown, reply: reply}) {
			return
		}
		select {
		case <-m.stopped:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// =============================================================================
// Actor
// =============================================================================

func (m *Manager) run() {
	defer close(m.stopped)

	for msg := range m.mailbox {
		switch msg.kind {
		case msgConnect:
			msg.reply <- m.handleConnect(msg.ctx, false)
		case msgLost:
			m.handleLost(msg.session, msg.err)
		case msgTick:
			m.handleTick()
		case msgShutdown:
			m.handleShutdown()
			msg.reply <- nil
			return
		}
	}
}

func (m *Manager) handleConnect(ctx context.Context, reconnect bool) error {
	if m.closing.Load() {
		return ErrShuttingDown
	}
	if m.State() == StateConnected {
		return nil
	}
	if !reconnect {
		m.stopTimer()
		m.setState(StateConnecting)
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.runCtx, cancel)
	defer stop()

	m.session++
	session := m.session
	onLost := func(err error) {
		m.post(message{kind: msgLost, session: session, err: err})
	}

	t, err := m.dialer.Dial(dialCtx, m.will(), onLost)
	if err == nil {
		if err = m.announce(t); err != nil {
			_ = t.Close()
		}
	}
	if err != nil {
		return m.handleDialFailure(err)
	}

	m.mu.Lock()
	m.transport = t
	m.failures = 0
	m.mu.Unlock()
	m.backoff.Reset()
	if reconnect {
		m.reconnects.Add(1)
	}

	m.setState(StateConnected)
	m.subscribeAll(t)
	m.logger.Info("connected to broker", "reconnect", reconnect, "session", session)
	return nil
}

// handleDialFailure records a failed attempt and decides between retrying
// and giving up.
func (m *Manager) handleDialFailure(err error) error {
	if m.closing.Load() {
		return ErrShuttingDown
	}

	if errors.Is(err, mqtt.ErrAuthRejected) {
		fatal := fmt.Errorf("%w: %w", ErrAuth, err)
		m.recordFailure(fatal)
		m.logger.Error("broker rejected credentials; not retrying", "error", err)
		m.fail(fatal)
		return fatal
	}

	werr := fmt.Errorf("%w: %w", ErrTransport, err)
	failures := m.recordFailure(werr)
	if failures >= m.cfg.MaxAttempts {
		fatal := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, werr)
		m.logger.Error("giving up on broker connection", "attempts", failures, "error", err)
		m.fail(fatal)
		return werr
	}

	m.setState(StateReconnecting)
	delay := m.scheduleReconnect()
	m.logger.Warn("broker connection failed; retrying",
		"error", err, "attempt", failures, "retry_in", delay)
	return werr
}

func (m *Manager) recordFailure(err error) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	m.lastFailure = m.now()
	m.lastErr = err
	return m.failures
}

func (m *Manager) fail(err error) {
	m.setState(StateFailed)
	if m.handlers.OnFatal != nil {
		m.handlers.OnFatal(err)
	}
}

func (m *Manager) handleLost(session uint64, err error) {
	if m.closing.Load() || session != m.session || m.State() != StateConnected {
		return
	}

	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.lastFailure = m.now()
	m.lastErr = err
	m.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}

	m.setState(StateReconnecting)
	m.backoff.Reset()
	delay := m.scheduleReconnect()
	m.logger.Warn("broker connection lost", "error", err, "retry_in", delay)
}

func (m *Manager) handleTick() {
	if m.closing.Load() || m.State() != StateReconnecting {
		return
	}
	_ = m.handleConnect(m.runCtx, true) //nolint:contextcheck // reconnects live as long as the manager
}

func (m *Manager) handleShutdown() {
	m.stopTimer()
	m.setState(StateShuttingDown)

	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.mu.Unlock()
	if t == nil {
		return
	}

	if t.IsConnected() {
		if err := t.Publish(m.cfg.Topics.Status(), []byte(PayloadOffline), presenceQoS, true); err != nil {
			m.logger.Warn("failed to publish offline status", "error", err)
		}
	}
	if err := t.Close(); err != nil {
		m.logger.Warn("failed to close transport", "error", err)
	}
	m.logger.Info("broker connection closed")
}

// scheduleReconnect arms the reconnect timer and returns its delay.
func (m *Manager) scheduleReconnect() time.Duration {
	m.stopTimer()
	delay := m.backoff.NextBackOff()
	m.timer = time.AfterFunc(delay, func() {
		if m.closing.Load() {
			return
		}
		m.post(message{kind: msgTick})
	})
	return delay
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// =============================================================================
// Session setup
// =============================================================================

func (m *Manager) will() mqtt.Will {
	return mqtt.Will{
		Topic:    m.cfg.Topics.Status(),
		Payload:  []byte(PayloadOffline),
		QoS:      presenceQoS,
		Retained: true,
	}
}

// announce publishes retained "online" on the status topic.
func (m *Manager) announce(t Transport) error {
	return t.Publish(m.cfg.Topics.Status(), []byte(PayloadOnline), presenceQoS, true)
}

// subscribeAll runs the subscribe pass over every registered filter.
// Filters already subscribed on t are skipped.
func (m *Manager) subscribeAll(t Transport) {
	m.mu.RLock()
	filters := slices.Clone(m.filters)
	m.mu.RUnlock()

	for _, f := range filters {
		if err := m.subscribe(t, f); err != nil {
			m.logger.Warn("subscribe failed", "filter", f, "error", err)
		}
	}
}

func (m *Manager) subscribe(t Transport, filter string) error {
	if t.HasSubscription(filter) {
		return nil
	}
	handler := func(topic string, payload []byte) error {
		if !m.owns(filter, topic) {
			return nil
		}
		return m.handleMessage(topic, payload)
	}
	if err := t.Subscribe(filter, m.cfg.QoS, handler); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.logger.Debug("subscribed", "filter", filter)
	return nil
}

// owns reports whether filter is the first registered filter matching topic.
// The transport runs every matching handler for one message, so overlapping
// filters would otherwise deliver it more than once.
func (m *Manager) owns(filter, topic string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.filters {
		if MatchTopic(f, topic) {
			return f == filter
		}
	}
	return false
}

// MatchTopic reports whether an MQTT topic filter matches a topic.
func MatchTopic(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) || (f != "+" && f != ts[i]) {
			return false
		}
	}
	return len(fs) == len(ts)
}

func (m *Manager) handleMessage(topic string, payload []byte) error {
	m.messages.Add(1)
	if m.handlers.OnMessage != nil {
		m.handlers.OnMessage(topic, payload)
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if changed {
		m.logger.Debug("connection state changed", "state", s.String())
		if m.handlers.OnStateChange != nil {
			m.handlers.OnStateChange(s)
		}
	}
}
