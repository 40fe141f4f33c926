package factory

import (
	"crypto/md5" //nolint:gosec // topic fingerprint for IDs, not a security boundary
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/ovms-bridge/internal/classifier"
	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/registry"
)

// Logger defines the logging interface used by the Factory.
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

// Classifier is the subset of classifier.Classifier used by the factory.
type Classifier interface {
	Classify(topic string, payload []byte) (entity.Metric, error)
}

// Config identifies the vehicle objects are created for.
type Config struct {
	VehicleID   string
	VehicleName string

	// BaseTopic is "{prefix}/{account}/{vehicle}"; the positional fix lives on
	// the virtual topic BaseTopic + "/location".
	BaseTopic string
}

// Factory turns first-seen topics into objects and registers them.
//
// Coordinate feeds become plain scalar objects. Once both a latitude and a
// longitude exist, a single composite positional fix is created on a virtual
// topic and linked to both with feeds-composite relationships. Other location
// readings are linked to the fix with location-sensor relationships and GPS
// quality feeds with accuracy-source relationships.
//
// All public methods are thread-safe.
type Factory struct {
	cfg        Config
	classifier Classifier
	registry   *registry.Registry
	logger     Logger
	now        func() time.Time

	mu        sync.Mutex
	latitude  string
	longitude string
	composite string
	sensors   []string // location-category objects seen before the fix existed
	accuracy  []string // GPS quality objects seen before the fix existed
}

// New creates a factory.
func New(cfg Config, c Classifier, reg *registry.Registry) *Factory {
	if cfg.VehicleName == "" {
		cfg.VehicleName = cfg.VehicleID
	}
	return &Factory{
		cfg:        cfg,
		classifier: c,
		registry:   reg,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the factory.
func (f *Factory) SetLogger(logger Logger) {
	f.logger = logger
}

// LocationTopic returns the virtual topic of the composite positional fix.
func (f *Factory) LocationTopic() string {
	return f.cfg.BaseTopic + "/location"
}

// CompositeID returns the ID of the composite positional fix.
func (f *Factory) CompositeID() string {
	return f.cfg.VehicleID + "_location"
}

// Create classifies a first-seen topic and registers the objects it yields.
//
// Parameters:
//   - topic: Wire topic seen for the first time
//   - payload: First payload, passed to the classifier
//
// Returns:
//   - []*entity.Object: New objects without values; the topic's own object
//     first, then the composite fix if this topic completed a coordinate pair.
//     Empty if the registry refused the claim.
//   - error: classifier errors (foreign or skipped topics)
func (f *Factory) Create(topic string, payload []byte) ([]*entity.Object, error) {
	m, err := f.classifier.Classify(topic, payload)
	if err != nil {
		return nil, err
	}

	obj := f.objectFor(m)
	if !f.registry.Register(topic, obj.ID, obj.Type, m.Priority) {
		return nil, nil
	}
	f.registry.SetMetadata(obj.ID, "path", m.Path)
	f.registry.SetMetadata(obj.ID, "rule", string(m.Rule))

	created := []*entity.Object{obj}
	if fix := f.link(m, obj.ID); fix != nil {
		created = append(created, fix)
	}

	f.logger.Debug("objects created",
		"topic", topic, "object_id", obj.ID, "type", obj.Type,
		"category", obj.Category, "rule", m.Rule, "count", len(created))
	return created, nil
}

// objectFor builds the object for a classified metric. Coordinate feeds are
// exposed as scalars; the positional fix is the composite.
func (f *Factory) objectFor(m entity.Metric) *entity.Object {
	typ := m.Type
	if typ == entity.TypePositionalFix {
		typ = entity.TypeScalar
	}
	return &entity.Object{
		ID:          ObjectID(f.cfg.VehicleID, m.Category, m.Name, m.Topic),
		Name:        m.Name,
		Topic:       m.Topic,
		Type:        typ,
		Category:    m.Category,
		Unit:        m.Unit,
		DeviceClass: m.DeviceClass,
		Icon:        m.Icon,
		Available:   true,
		UpdatedAt:   f.now(),
		Metric:      m,
	}
}

// link records location relationships and creates the composite fix once
// both coordinates exist. It returns the fix if it was created by this call.
func (f *Factory) link(m entity.Metric, id string) *entity.Object {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m.Type == entity.TypePositionalFix {
		if isLat, ok := classifier.IsCoordinate(m.Path); ok {
			if isLat {
				f.latitude = id
			} else {
				f.longitude = id
			}
		}
		if f.composite != "" {
			f.registry.RegisterRelationship(id, f.composite, entity.RelFeedsComposite)
			return nil
		}
		if f.latitude != "" && f.longitude != "" {
			return f.createCompositeLocked()
		}
		return nil
	}

	if m.Category != classifier.CategoryLocation {
		return nil
	}
	rel := entity.RelLocationSensor
	if classifier.AccuracyFeedOf(m.Path) != classifier.AccuracyNone {
		rel = entity.RelAccuracySource
	}
	if f.composite != "" {
		f.registry.RegisterRelationship(id, f.composite, rel)
		return nil
	}
	if rel == entity.RelAccuracySource {
		f.accuracy = append(f.accuracy, id)
	} else {
		f.sensors = append(f.sensors, id)
	}
	return nil
}

// Forget drops the factory's references to a removed object. When the
// composite fix is forgotten, the next coordinate pair creates a new one.
func (f *Factory) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch id {
	case f.composite:
		f.composite = ""
	case f.latitude:
		f.latitude = ""
	case f.longitude:
		f.longitude = ""
	}
	f.sensors = slices.DeleteFunc(f.sensors, func(s string) bool { return s == id })
	f.accuracy = slices.DeleteFunc(f.accuracy, func(s string) bool { return s == id })
}

func (f *Factory) createCompositeLocked() *entity.Object {
	id := f.CompositeID()
	topic := f.LocationTopic()
	m := entity.Metric{
		Topic:    topic,
		Path:     "location",
		Name:     f.cfg.VehicleName + " Location",
		Category: classifier.CategoryLocation,
		Icon:     "mdi:car",
		Type:     entity.TypePositionalFix,
		Priority: entity.PriorityLocation,
		Rule:     entity.RuleExactMatch,
	}
	if !f.registry.Register(topic, id, entity.TypePositionalFix, entity.PriorityLocation) {
		return nil
	}
	f.composite = id

	f.registry.RegisterRelationship(f.latitude, id, entity.RelFeedsComposite)
	f.registry.RegisterRelationship(f.longitude, id, entity.RelFeedsComposite)
	for _, s := range f.sensors {
		f.registry.RegisterRelationship(s, id, entity.RelLocationSensor)
	}
	for _, a := range f.accuracy {
		f.registry.RegisterRelationship(a, id, entity.RelAccuracySource)
	}
	f.sensors, f.accuracy = nil, nil

	f.logger.Info("positional fix created",
		"object_id", id, "latitude", f.latitude, "longitude", f.longitude)

	return &entity.Object{
		ID:        id,
		Name:      m.Name,
		Topic:     topic,
		Type:      entity.TypePositionalFix,
		Category:  m.Category,
		Icon:      m.Icon,
		Available: true,
		UpdatedAt: f.now(),
		Metric:    m,
	}
}

// ObjectID returns "{vehicle}_{category}_{name}_{md5(topic)[:8]}". The name is
// reduced to lower-case alphanumerics joined by underscores. IDs are stable
// across reconnects and restarts.
func ObjectID(vehicleID, category, name, topic string) string {
	sum := md5.Sum([]byte(topic)) //nolint:gosec // see import
	return fmt.Sprintf("%s_%s_%s_%s", vehicleID, category, slug(name), hex.EncodeToString(sum[:])[:8])
}

func slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
