package vehicle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/ovms-bridge/internal/classifier"
	"github.com/nerrad567/ovms-bridge/internal/command"
	"github.com/nerrad567/ovms-bridge/internal/connection"
	"github.com/nerrad567/ovms-bridge/internal/dispatcher"
	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/factory"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ovms-bridge/internal/metrics"
	"github.com/nerrad567/ovms-bridge/internal/registry"
	"github.com/nerrad567/ovms-bridge/internal/store"
)

// Session defaults.
const (
	// DefaultQueueSize bounds the inbound message queue.
	DefaultQueueSize = 1000

	// DefaultStaleCheckInterval is how often stale objects are looked for.
	DefaultStaleCheckInterval = time.Hour
)

// Logger defines the logging interface used by the session and passed to
// every component it owns.
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

// ObjectWriter exports object values. *influxdb.Client implements it.
type ObjectWriter interface {
	WriteObject(obj *entity.Object) bool
}

// Deps are the session's collaborators. Only Dialer is required.
type Deps struct {
	Dialer  connection.Dialer
	Store   *store.Store
	Export  ObjectWriter
	Metrics *metrics.Metrics
	Logger  Logger
}

// Callbacks deliver session events to the host. All are optional.
//
// Created, Updated, Removed and DeviceUpdated run on the dispatch worker and
// receive copies. ConnectionChanged and Fatal run on the connection manager's
// goroutine. None may call Shutdown synchronously.
type Callbacks struct {
	Created           func(obj *entity.Object)
	Updated           func(obj *entity.Object)
	Removed           func(obj *entity.Object)
	DeviceUpdated     func(device entity.DeviceInfo)
	ConnectionChanged func(state connection.State)
	Fatal             func(err error)
}

// Config selects the vehicle and tunes the session.
type Config struct {
	Vehicle   config.VehicleConfig
	MQTT      config.MQTTConfig
	Command   config.CommandConfig
	QueueSize int

	// StaleAfter removes objects not updated for this long. Zero keeps
	// objects forever.
	StaleAfter         time.Duration
	StaleCheckInterval time.Duration

	// DeleteStaleHistory also deletes the stored history of removed objects.
	DeleteStaleHistory bool
}

// ConfigFrom extracts the session configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Vehicle:            cfg.Vehicle,
		MQTT:               cfg.MQTT,
		Command:            cfg.Command,
		StaleAfter:         time.Duration(cfg.Vehicle.StaleAfter) * time.Hour,
		DeleteStaleHistory: cfg.Vehicle.DeleteStaleHistory,
	}
}

// Stats is a snapshot of session counters.
type Stats struct {
	Connection connection.Stats `json:"connection"`
	Dispatch   dispatcher.Stats `json:"dispatch"`
	Commands   command.Stats    `json:"commands"`
	Registry   registry.Stats   `json:"registry"`
	Objects    int              `json:"objects"`
	Classified int              `json:"classified_topics"`
	Removed    uint64           `json:"removed"`
	Queued     int              `json:"queued"`
	Dropped    uint64           `json:"dropped"`
}

// Binding describes how an object is held in the topic registry.
type Binding struct {
	ObjectID string         `json:"object_id"`
	Topic    string         `json:"topic"`
	Type     entity.Type    `json:"type"`
	Priority int            `json:"priority"`
	Primary  bool           `json:"primary"`
	Related  []string       `json:"related"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session ingests one vehicle's topic tree and carries its commands.
type Session struct {
	cfg    Config
	deps   Deps
	cb     Callbacks
	logger Logger
	topics mqtt.Topics
	now    func() time.Time

	objects    *entity.Store
	registry   *registry.Registry
	classifier *classifier.Classifier
	factory    *factory.Factory
	dispatcher *dispatcher.Dispatcher
	conn       *connection.Manager
	correlator *command.Correlator

	queue  chan entity.RawMessage
	ctx    context.Context //nolint:containedctx // worker lifetime
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	closing   atomic.Bool

	dropped      atomic.Uint64
	removed      atomic.Uint64
	dropLog      rate.Sometimes
	historyLog   rate.Sometimes
	parseSeen    atomic.Uint64
	reconnects   atomic.Uint64
	categoriesMu sync.Mutex
	categories   map[string]int
}

// New builds a session. Nothing connects until Start.
//
// Parameters:
//   - cfg: Vehicle identity, broker and command settings
//   - deps: Dialer (required), optional store, export, metrics and logger
//   - cb: Host callbacks
//
// Returns:
//   - *Session: Ready to Start
//   - error: ErrInvalidConfig if the vehicle id or dialer is missing
func New(cfg Config, deps Deps, cb Callbacks) (*Session, error) {
	if cfg.Vehicle.ID == "" {
		return nil, fmt.Errorf("%w: vehicle id is required", ErrInvalidConfig)
	}
	if deps.Dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidConfig)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.StaleCheckInterval <= 0 {
		cfg.StaleCheckInterval = DefaultStaleCheckInterval
	}

	s := &Session{
		cfg:        cfg,
		deps:       deps,
		cb:         cb,
		logger:     noopLogger{},
		topics:     mqtt.NewTopics(cfg.Vehicle.TopicPrefix, cfg.Vehicle.Account, cfg.Vehicle.ID),
		now:        time.Now,
		queue:      make(chan entity.RawMessage, cfg.QueueSize),
		dropLog:    rate.Sometimes{First: 1, Interval: 30 * time.Second},
		historyLog: rate.Sometimes{First: 3, Interval: time.Minute},
		categories: make(map[string]int),
	}
	if deps.Logger != nil {
		s.logger = deps.Logger
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	name := cfg.Vehicle.DisplayName()
	s.objects = entity.NewStore(entity.NewDeviceInfo(cfg.Vehicle.ID, name))
	s.registry = registry.New()
	s.classifier = classifier.New(classifier.Config{
		TopicPrefix: cfg.Vehicle.TopicPrefix,
		VehicleID:   cfg.Vehicle.ID,
		VehicleName: name,
	})
	s.factory = factory.New(factory.Config{
		VehicleID:   cfg.Vehicle.ID,
		VehicleName: name,
		BaseTopic:   s.topics.Base(),
	}, s.classifier, s.registry)
	s.dispatcher = dispatcher.New(s.registry, s.factory, s.objects, events{s})

	s.conn = connection.New(connection.ConfigFromMQTT(cfg.MQTT, s.topics), deps.Dialer, connection.Handlers{
		OnMessage:     s.enqueue,
		OnStateChange: s.stateChanged,
		OnFatal:       s.fatal,
	})

	s.correlator = command.NewCorrelator(command.Config{
		BaseTopic:     s.topics.Base(),
		QoS:           byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		Timeout:       seconds(cfg.Command.Timeout),
		MaxPendingAge: seconds(cfg.Command.MaxPendingAge),
		SweepInterval: seconds(cfg.Command.SweepInterval),
	}, s.conn, command.NewRateLimiter(cfg.Command.RateLimit.Calls, seconds(cfg.Command.RateLimit.Period)))
	if err := s.conn.AddSubscription(s.correlator.ResponseFilter()); err != nil {
		return nil, err
	}

	s.registry.SetLogger(s.logger)
	s.factory.SetLogger(s.logger)
	s.dispatcher.SetLogger(s.logger)
	s.conn.SetLogger(s.logger)
	s.correlator.SetLogger(s.logger)

	return s, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Start launches the dispatch worker and the command sweep, then connects.
// With StaleAfter set, the worker also removes stale objects every
// StaleCheckInterval.
//
// Returns:
//   - error: connection.ErrAuth if the broker refused the credentials (no
//     retry happens); connection.ErrTransport if the first attempt failed
//     (retries continue in the background); ErrClosed after Shutdown
func (s *Session) Start(ctx context.Context) error {
	if s.closing.Load() {
		return ErrClosed
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.worker()
		s.correlator.Start(s.ctx) //nolint:contextcheck // the sweep lives as long as the session
	})

	err := s.conn.Connect(ctx)
	switch {
	case err == nil:
		s.logger.Info("vehicle session started", "vehicle", s.cfg.Vehicle.ID, "base_topic", s.topics.Base())
	case errors.Is(err, connection.ErrAuth):
		s.logger.Error("broker rejected credentials", "error", err)
	default:
		s.logger.Warn("initial broker connection failed; retrying in background", "error", err)
	}
	return err
}

// SendCommand sends a command to the vehicle module and waits for the reply.
// timeout zero uses command.timeout from configuration.
func (s *Session) SendCommand(ctx context.Context, cmd, params string, timeout time.Duration) command.Result {
	started := time.Now()
	res := s.correlator.SendCommand(ctx, cmd, params, timeout)
	if m := s.deps.Metrics; m != nil {
		m.ObserveCommand(string(res.Outcome), time.Since(started))
		m.SetPendingCommands(s.correlator.Pending())
	}
	return res
}

// Objects returns copies of all objects sorted by id.
func (s *Session) Objects() []*entity.Object {
	return s.objects.List()
}

// Object returns a copy of one object.
func (s *Session) Object(id string) (*entity.Object, bool) {
	return s.objects.Get(id)
}

// Device returns the vehicle module's device record.
func (s *Session) Device() entity.DeviceInfo {
	return s.objects.Device()
}

// History returns recorded value changes of an object, newest first.
func (s *Session) History(ctx context.Context, id string, limit int) ([]store.HistoryEntry, error) {
	if s.deps.Store == nil {
		return nil, ErrNoStore
	}
	return s.deps.Store.GetHistory(ctx, id, limit)
}

// Snapshot writes every object and the device record to the store.
//
// Returns:
//   - int: Objects written
//   - error: ErrNoStore without a store, otherwise the store error
func (s *Session) Snapshot(ctx context.Context) (int, error) {
	if s.deps.Store == nil {
		return 0, ErrNoStore
	}
	n, err := s.deps.Store.SaveSnapshot(ctx, s.objects.List(), s.objects.Device())
	if err != nil {
		return 0, fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Info("snapshot saved", "objects", n)
	return n, nil
}

// Binding returns the registry view of an object: its topic, priority,
// related objects and classification metadata.
func (s *Session) Binding(id string) (Binding, bool) {
	topic, ok := s.registry.TopicForObject(id)
	if !ok {
		return Binding{}, false
	}
	typ, _ := s.registry.TypeOf(id)
	priority, _ := s.registry.Priority(id)
	primary, _ := s.registry.PrimaryObject(topic)
	related := s.registry.Related(id)
	if related == nil {
		related = []string{}
	}
	return Binding{
		ObjectID: id,
		Topic:    topic,
		Type:     typ,
		Priority: priority,
		Primary:  primary == id,
		Related:  related,
		Metadata: s.registry.Metadata(id),
	}, true
}

// ConnectionState returns the connection manager state.
func (s *Session) ConnectionState() connection.State {
	return s.conn.State()
}

// IsConnected reports whether the broker session is up.
func (s *Session) IsConnected() bool {
	return s.conn.IsConnected()
}

// Stats returns session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Connection: s.conn.Stats(),
		Dispatch:   s.dispatcher.Stats(),
		Commands:   s.correlator.Stats(),
		Registry:   s.registry.Stats(),
		Objects:    s.objects.Len(),
		Classified: s.classifier.Cached(),
		Removed:    s.removed.Load(),
		Queued:     len(s.queue),
		Dropped:    s.dropped.Load(),
	}
}

// Shutdown tears the session down. Safe to call multiple times.
func (s *Session) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.closing.Store(true)
		s.correlator.Shutdown()

		// No command can be waiting for a reply any more.
		if uerr := s.conn.RemoveSubscription(s.correlator.ResponseFilter()); uerr != nil {
			s.logger.Debug("dropping command reply subscription failed", "error", uerr)
		}

		if cerr := s.conn.Shutdown(ctx); cerr != nil {
			err = fmt.Errorf("closing connection: %w", cerr)
		}

		s.cancel()
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
		s.logger.Info("vehicle session stopped", "vehicle", s.cfg.Vehicle.ID)
	})
	return err
}

// =============================================================================
// Inbound path
// =============================================================================

// enqueue runs on the transport's goroutine.
func (s *Session) enqueue(topic string, payload []byte) {
	if s.closing.Load() {
		return
	}
	if s.correlator.HandleReply(topic, payload) {
		return
	}

	msg := entity.RawMessage{Topic: topic, Payload: bytes.Clone(payload), Received: time.Now()}
	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
		if s.deps.Metrics != nil {
			s.deps.Metrics.IncDropped()
		}
		s.dropLog.Do(func() {
			s.logger.Warn("inbound queue full; dropping message",
				"topic", topic, "capacity", cap(s.queue), "dropped", s.dropped.Load())
		})
	}
}

func (s *Session) worker() {
	defer s.wg.Done()

	var stale <-chan time.Time
	if s.cfg.StaleAfter > 0 {
		ticker := time.NewTicker(s.cfg.StaleCheckInterval)
		defer ticker.Stop()
		stale = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			if n := len(s.queue); n > 0 {
				s.logger.Debug("discarding queued messages on shutdown", "count", n)
			}
			return
		case msg := <-s.queue:
			s.dispatch(msg)
		case <-stale:
			s.removeStale()
		}
	}
}

func (s *Session) dispatch(msg entity.RawMessage) {
	if err := s.dispatcher.Dispatch(s.ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("dispatch failed", "topic", msg.Topic, "error", err)
	}

	m := s.deps.Metrics
	if m == nil {
		return
	}
	m.IncMessages()
	failures := s.dispatcher.Stats().ParseFailures
	if prev := s.parseSeen.Swap(failures); failures > prev {
		m.AddParseFailures(failures - prev)
	}
}

// =============================================================================
// Connection events
// =============================================================================

func (s *Session) stateChanged(state connection.State) {
	if m := s.deps.Metrics; m != nil {
		m.SetConnectionState(state.String(), state == connection.StateConnected)
		if state == connection.StateConnected {
			total := s.conn.Stats().Reconnects
			if prev := s.reconnects.Swap(total); total > prev {
				m.IncReconnects()
			}
		}
	}
	if s.cb.ConnectionChanged != nil {
		s.cb.ConnectionChanged(state)
	}
}

func (s *Session) fatal(err error) {
	s.logger.Error("vehicle session failed permanently", "vehicle", s.cfg.Vehicle.ID, "error", err)
	if s.cb.Fatal != nil {
		s.cb.Fatal(err)
	}
}

// =============================================================================
// Object events
// =============================================================================

// events adapts the session to dispatcher.Events.
type events struct{ s *Session }

func (e events) ObjectCreated(obj *entity.Object) {
	s := e.s
	s.logger.Debug("object created", "id", obj.ID, "type", obj.Type, "topic", obj.Topic)
	if m := s.deps.Metrics; m != nil {
		m.IncObjectCreated(string(obj.Type))
		m.SetObjects(s.countCategory(obj.Category, 1))
	}
	s.persist(obj)
	if s.cb.Created != nil {
		s.cb.Created(obj)
	}
}

func (e events) ObjectUpdated(obj *entity.Object) {
	s := e.s
	s.persist(obj)
	if s.cb.Updated != nil {
		s.cb.Updated(obj)
	}
}

func (e events) DeviceUpdated(device entity.DeviceInfo) {
	s := e.s
	s.logger.Info("vehicle module firmware", "version", device.SoftwareVersion)
	if s.cb.DeviceUpdated != nil {
		s.cb.DeviceUpdated(device)
	}
}

// countCategory adds delta objects to category and returns a copy of the
// counts.
func (s *Session) countCategory(category string, delta int) map[string]int {
	s.categoriesMu.Lock()
	defer s.categoriesMu.Unlock()
	s.categories[category] += delta
	if s.categories[category] <= 0 {
		delete(s.categories, category)
	}
	out := make(map[string]int, len(s.categories))
	for k, v := range s.categories {
		out[k] = v
	}
	return out
}

// =============================================================================
// Stale objects
// =============================================================================

// removeStale removes every object not updated within StaleAfter. The
// module's connectivity object is kept. It runs on the dispatch worker so
// removals never interleave with updates.
//
// Returns:
//   - []string: IDs of the removed objects, sorted
func (s *Session) removeStale() []string {
	cutoff := s.now().Add(-s.cfg.StaleAfter)

	var removed []string
	for _, id := range s.objects.UpdatedBefore(cutoff) {
		obj, ok := s.objects.Get(id)
		if !ok || obj.Topic == s.topics.Status() {
			continue
		}
		s.remove(obj)
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		s.logger.Info("removed stale objects",
			"count", len(removed), "stale_after", s.cfg.StaleAfter, "history_deleted", s.cfg.DeleteStaleHistory)
	}
	return removed
}

// remove unbinds obj and deletes it from memory and the snapshot. The next
// message on its topic creates it again.
func (s *Session) remove(obj *entity.Object) {
	s.registry.Remove(obj.ID)
	s.factory.Forget(obj.ID)
	s.objects.Delete(obj.ID)
	s.removed.Add(1)

	if st := s.deps.Store; st != nil {
		if err := st.DeleteObject(s.ctx, obj.ID, s.cfg.DeleteStaleHistory); err != nil &&
			!errors.Is(err, context.Canceled) {
			s.logger.Warn("deleting stored object failed", "id", obj.ID, "error", err)
		}
	}
	if m := s.deps.Metrics; m != nil {
		m.IncObjectRemoved()
		m.SetObjects(s.countCategory(obj.Category, -1))
	}
	s.logger.Debug("object removed", "id", obj.ID, "topic", obj.Topic, "updated_at", obj.UpdatedAt)
	if s.cb.Removed != nil {
		s.cb.Removed(obj)
	}
}

// persist exports the value and records it in the state history.
func (s *Session) persist(obj *entity.Object) {
	if s.deps.Export != nil {
		s.deps.Export.WriteObject(obj)
	}
	if s.deps.Store == nil || !recordable(obj.Value) {
		return
	}
	if _, err := s.deps.Store.RecordState(s.ctx, obj.ID, obj.Value, store.SourceMQTT); err != nil &&
		!errors.Is(err, context.Canceled) {
		s.historyLog.Do(func() {
			s.logger.Warn("recording state history failed", "id", obj.ID, "error", err)
		})
	}
}

// recordable reports whether a value belongs in the state history:
// numbers, booleans and text.
func recordable(v any) bool {
	switch v.(type) {
	case float64, bool, string:
		return true
	default:
		return false
	}
}
