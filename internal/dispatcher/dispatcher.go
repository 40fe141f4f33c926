package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/ovms-bridge/internal/classifier"
	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/parser"
	"github.com/nerrad567/ovms-bridge/internal/registry"
)

// Logger defines the logging interface used by the Dispatcher.
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

// Creator creates objects for first-seen topics.
type Creator interface {
	Create(topic string, payload []byte) ([]*entity.Object, error)
}

// Events receives object lifecycle notifications. Objects are clones.
type Events interface {
	ObjectCreated(obj *entity.Object)
	ObjectUpdated(obj *entity.Object)
	DeviceUpdated(device entity.DeviceInfo)
}

// FirmwarePath is the metric that carries the module firmware version.
const FirmwarePath = "m.version"

// Accuracy derivation.
const (
	minAccuracyMeters = 5.0
	hdopMeters        = 5.0
	maxSignalQuality  = 100.0
)

// Parse failure log throttling.
const (
	parseLogBurst    = 5
	parseLogInterval = 30 * time.Second
)

// Stats are cumulative dispatcher counters.
type Stats struct {
	Messages      uint64 `json:"messages"`
	Created       uint64 `json:"created"`
	Updated       uint64 `json:"updated"`
	ParseFailures uint64 `json:"parse_failures"`
	Skipped       uint64 `json:"skipped"`
	Panics        uint64 `json:"panics"`
}

// Dispatcher applies inbound messages to objects.
//
// For a first-seen topic it asks the Creator for objects, applies the first
// value and then emits ObjectCreated. Otherwise it parses the payload with
// each bound object's hints, updates it and emits ObjectUpdated. After the
// primary update it applies the merge rules: coordinate pairing into the
// positional fix, GPS accuracy, and the firmware version.
//
// Dispatch is designed to be called from a single goroutine so updates for
// a topic are applied in arrival order; it is nevertheless safe for
// concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	creator  Creator
	store    *entity.Store
	events   Events
	logger   Logger
	parseLog rate.Sometimes

	mu             sync.Mutex
	latitude       *float64
	longitude      *float64
	accuracy       *float64
	accuracySource string

	messages      atomic.Uint64
	created       atomic.Uint64
	updated       atomic.Uint64
	parseFailures atomic.Uint64
	skipped       atomic.Uint64
	panics        atomic.Uint64
}

// New creates a dispatcher. events may be nil.
func New(reg *registry.Registry, creator Creator, store *entity.Store, events Events) *Dispatcher {
	if events == nil {
		events = noopEvents{}
	}
	return &Dispatcher{
		registry: reg,
		creator:  creator,
		store:    store,
		events:   events,
		logger:   noopLogger{},
		parseLog: rate.Sometimes{First: parseLogBurst, Interval: parseLogInterval},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Messages:      d.messages.Load(),
		Created:       d.created.Load(),
		Updated:       d.updated.Load(),
		ParseFailures: d.parseFailures.Load(),
		Skipped:       d.skipped.Load(),
		Panics:        d.panics.Load(),
	}
}

// Dispatch applies one message.
//
// Parameters:
//   - ctx: Checked before work starts
//   - msg: Inbound message
//
// Returns:
//   - error: ErrPanic if processing panicked, creator errors other than
//     skipped or foreign topics, or the context error. A failure never
//     affects other topics.
func (d *Dispatcher) Dispatch(ctx context.Context, msg entity.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("dispatch panic recovered",
				"topic", msg.Topic, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s: %v", ErrPanic, msg.Topic, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	d.messages.Add(1)
	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}

	if !d.registry.HasTopic(msg.Topic) {
		return d.create(msg)
	}

	for _, id := range d.apply(msg) {
		d.emitUpdated(id)
	}
	return nil
}

func (d *Dispatcher) create(msg entity.RawMessage) error {
	objs, err := d.creator.Create(msg.Topic, msg.Payload)
	if err != nil {
		if errors.Is(err, classifier.ErrSkippedTopic) || errors.Is(err, classifier.ErrForeignTopic) {
			d.skipped.Add(1)
			d.logger.Debug("topic skipped", "topic", msg.Topic, "reason", err)
			return nil
		}
		return fmt.Errorf("creating objects for %s: %w", msg.Topic, err)
	}
	if len(objs) == 0 {
		return nil
	}

	created := make([]string, 0, len(objs))
	for _, obj := range objs {
		d.store.Put(obj)
		created = append(created, obj.ID)
	}

	touched := d.apply(msg)
	for _, id := range created {
		if obj, ok := d.store.Get(id); ok {
			d.created.Add(1)
			d.events.ObjectCreated(obj)
		}
	}
	for _, id := range touched {
		if !slices.Contains(created, id) {
			d.emitUpdated(id)
		}
	}
	return nil
}

func (d *Dispatcher) emitUpdated(id string) {
	if obj, ok := d.store.Get(id); ok {
		d.updated.Add(1)
		d.events.ObjectUpdated(obj)
	}
}

// apply updates every object bound to the message topic, then runs the merge
// rules for the primary object. It returns the IDs of touched objects in
// update order without duplicates.
func (d *Dispatcher) apply(msg entity.RawMessage) []string {
	ids := d.registry.ObjectsForTopic(msg.Topic)
	if len(ids) == 0 {
		return nil
	}

	raw := string(msg.Payload)
	var touched []string
	touch := func(id string) {
		if !slices.Contains(touched, id) {
			touched = append(touched, id)
		}
	}

	var primaryValue parser.Value
	var primaryMetric entity.Metric
	for i, id := range ids {
		obj, ok := d.store.Get(id)
		if !ok {
			continue
		}
		if obj.Type == entity.TypePositionalFix {
			// Positional fixes only ever receive recomputed values.
			continue
		}
		v := d.updateObject(obj, raw, msg.Received)
		touch(id)
		if i == 0 {
			primaryValue, primaryMetric = v, obj.Metric
		}
	}

	if primaryMetric.Path == "" {
		return touched
	}
	for _, id := range d.merge(ids[0], primaryMetric, primaryValue, raw, msg.Received) {
		touch(id)
	}
	return touched
}

// updateObject parses raw for one object and stores the new state.
func (d *Dispatcher) updateObject(obj *entity.Object, raw string, at time.Time) parser.Value {
	m := obj.Metric
	var value any
	var parsed parser.Value
	attrs := map[string]any{
		"topic":       obj.Topic,
		"metric_path": m.Path,
		"category":    obj.Category,
	}

	switch obj.Type {
	case entity.TypeBoolean, entity.TypeActuator:
		b, ok := parser.ParseBool(raw, m.Inverted)
		if ok {
			value = b
		} else if !parser.IsSpecial(raw) {
			attrs["raw_value"] = parser.Truncate(raw, parser.MaxStateLength)
			d.parseFailed(obj, raw)
		}
	default:
		parsed = parser.Parse(raw, m.Hints())
		value = parsed.Interface()
		for k, v := range parsed.Attributes {
			attrs[k] = v
		}
		if parsed.Failed {
			d.parseFailed(obj, raw)
		}
	}

	d.store.Update(obj.ID, func(o *entity.Object) {
		o.Value = value
		o.Attributes = attrs
		o.UpdatedAt = at
	})
	return parsed
}

func (d *Dispatcher) parseFailed(obj *entity.Object, raw string) {
	d.parseFailures.Add(1)
	d.parseLog.Do(func() {
		d.logger.Warn("unparseable payload",
			"object_id", obj.ID, "topic", obj.Topic, "payload", parser.Truncate(raw, 64))
	})
}

// =============================================================================
// Merge rules
// =============================================================================

// merge applies the cross-object rules for the primary object of a topic.
// It returns the IDs of additionally touched objects.
func (d *Dispatcher) merge(id string, m entity.Metric, v parser.Value, raw string, at time.Time) []string {
	var touched []string

	if isLat, ok := classifier.IsCoordinate(m.Path); ok && m.Type == entity.TypePositionalFix && v.Kind == parser.KindNumber {
		touched = append(touched, d.mergeCoordinate(id, isLat, v.Number, at)...)
	}

	if feed := classifier.AccuracyFeedOf(m.Path); feed != classifier.AccuracyNone && v.Kind == parser.KindNumber {
		touched = append(touched, d.mergeAccuracy(id, feed, v.Number, at)...)
	}

	if m.Path == FirmwarePath {
		d.mergeFirmware(m.Topic, id, raw, at)
	}
	return touched
}

func (d *Dispatcher) mergeCoordinate(id string, isLat bool, n float64, at time.Time) []string {
	d.mu.Lock()
	if isLat {
		d.latitude = &n
	} else {
		d.longitude = &n
	}
	if d.latitude == nil || d.longitude == nil {
		d.mu.Unlock()
		return nil
	}
	lat, lon := *d.latitude, *d.longitude
	accuracy, source := d.accuracy, d.accuracySource
	d.mu.Unlock()

	var touched []string
	for _, fix := range d.registry.RelatedByType(id, entity.RelFeedsComposite) {
		if _, ok := d.store.Update(fix, func(o *entity.Object) {
			o.Value = map[string]float64{"latitude": lat, "longitude": lon}
			o.SetAttribute("latitude", lat)
			o.SetAttribute("longitude", lon)
			if accuracy != nil {
				o.SetAttribute("gps_accuracy", *accuracy)
				o.SetAttribute("accuracy_source", source)
			}
			o.UpdatedAt = at
		}); ok {
			touched = append(touched, fix)
		}
	}
	return touched
}

// Accuracy returns the GPS accuracy in meters derived from a quality feed.
// HDOP scales by 5 m; signal quality (0-100) maps to 100-sq meters. Both are
// floored at 5 m.
func Accuracy(feed classifier.AccuracyFeed, n float64) float64 {
	var meters float64
	switch feed {
	case classifier.AccuracyHDOP:
		meters = n * hdopMeters
	case classifier.AccuracySignalQuality:
		meters = maxSignalQuality - n
	}
	return math.Max(minAccuracyMeters, meters)
}

func (d *Dispatcher) mergeAccuracy(id string, feed classifier.AccuracyFeed, n float64, at time.Time) []string {
	accuracy := Accuracy(feed, n)
	d.mu.Lock()
	d.accuracy = &accuracy
	d.accuracySource = id
	d.mu.Unlock()

	var touched []string
	for _, fix := range d.registry.ObjectsOfType(entity.TypePositionalFix) {
		if _, ok := d.store.Update(fix, func(o *entity.Object) {
			o.SetAttribute("gps_accuracy", accuracy)
			o.SetAttribute("accuracy_source", id)
			o.UpdatedAt = at
		}); ok {
			touched = append(touched, fix)
		}
	}
	return touched
}

func (d *Dispatcher) mergeFirmware(topic, id, raw string, at time.Time) {
	version := parser.Truncate(raw, entity.MaxVersionLength)
	if parser.IsSpecial(version) {
		return
	}
	dev := d.store.Device()
	if dev.SoftwareVersion == version {
		return
	}
	dev.SoftwareVersion = version
	dev.UpdatedAt = at
	d.store.SetDevice(dev)
	d.events.DeviceUpdated(dev)
	d.registry.Elevate(topic, id, entity.PriorityFirmware)
	d.logger.Info("firmware version updated", "version", version)
}

type noopEvents struct{}

func (noopEvents) ObjectCreated(*entity.Object)   {}
func (noopEvents) ObjectUpdated(*entity.Object)   {}
func (noopEvents) DeviceUpdated(entity.DeviceInfo) {}
