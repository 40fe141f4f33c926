package registry

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/nerrad567/ovms-bridge/internal/entity"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// binding is one object's claim on a topic.
type binding struct {
	id       string
	priority int
}

type objectInfo struct {
	topic string
	typ   entity.Type
}

// Stats summarises registry contents.
type Stats struct {
	Topics        int                 `json:"topics"`
	Objects       int                 `json:"objects"`
	Relationships int                 `json:"relationships"`
	ByType        map[entity.Type]int `json:"by_type"`
}

// Registry maps topics to the objects bound to them and records typed,
// symmetric relationships between objects.
//
// Each topic has one primary object (the highest-priority claim) and any
// number of secondary objects that were primary before being outranked.
//
// All public methods are thread-safe. No method performs I/O.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string][]binding // topic → claims in registration order
	primary   map[string]string    // topic → primary object ID
	objects   map[string]objectInfo
	relations map[string]map[string]entity.RelationshipType
	metadata  map[string]map[string]any
	logger    Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		bindings:  make(map[string][]binding),
		primary:   make(map[string]string),
		objects:   make(map[string]objectInfo),
		relations: make(map[string]map[string]entity.RelationshipType),
		metadata:  make(map[string]map[string]any),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register binds an object to a topic.
//
// Registering an existing (topic, id) pair is a no-op that reports true.
// A claim whose priority does not exceed the topic's current primary is
// rejected without changing anything. A strictly higher claim becomes the
// primary; earlier objects stay bound as secondaries.
//
// Parameters:
//   - topic: Wire topic (or a virtual topic for composite objects)
//   - id: Object ID; an ID can be bound to one topic only
//   - typ: Entity type of the object
//   - priority: Claim priority (entity.Priority*)
//
// Returns:
//   - bool: true if the object is bound to the topic after the call
func (r *Registry) Register(topic, id string, typ entity.Type, priority int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.objects[id]; ok {
		if info.topic == topic {
			return true
		}
		r.logger.Warn("object already bound to another topic",
			"object_id", id, "topic", info.topic, "rejected_topic", topic)
		return false
	}

	if current, ok := r.primary[topic]; ok {
		currentPriority := r.priorityLocked(topic, current)
		if currentPriority >= priority {
			r.logger.Debug("registration rejected by priority",
				"topic", topic, "object_id", id, "priority", priority,
				"primary", current, "primary_priority", currentPriority)
			return false
		}
		r.logger.Debug("primary object replaced",
			"topic", topic, "old", current, "new", id, "priority", priority)
	}

	r.bindings[topic] = append(r.bindings[topic], binding{id: id, priority: priority})
	r.primary[topic] = id
	r.objects[id] = objectInfo{topic: topic, typ: typ}
	return true
}

// Elevate raises the priority of an existing binding. The object becomes
// primary if its new priority is strictly higher than the current primary's.
// Lowering a priority is ignored.
//
// Returns false if the object is not bound to the topic.
func (r *Registry) Elevate(topic, id string, priority int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	claims := r.bindings[topic]
	idx := slices.IndexFunc(claims, func(b binding) bool { return b.id == id })
	if idx < 0 {
		return false
	}
	if priority <= claims[idx].priority {
		return true
	}
	claims[idx].priority = priority

	if current := r.primary[topic]; current != id && r.priorityLocked(topic, current) < priority {
		r.primary[topic] = id
	}
	return true
}

// RegisterRelationship records a symmetric typed edge between two objects.
// Self-relationships are ignored. Re-registering replaces the type.
func (r *Registry) RegisterRelationship(a, b string, typ entity.RelationshipType) {
	if a == b {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linkLocked(a, b, typ)
	r.linkLocked(b, a, typ)
}

func (r *Registry) linkLocked(from, to string, typ entity.RelationshipType) {
	edges, ok := r.relations[from]
	if !ok {
		edges = make(map[string]entity.RelationshipType)
		r.relations[from] = edges
	}
	edges[to] = typ
}

// Remove unbinds an object and drops its relationships and metadata.
// If it was a topic's primary, the highest remaining claim takes over
// (earliest registration on ties).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.objects[id]
	if !ok {
		return
	}
	delete(r.objects, id)
	delete(r.metadata, id)

	claims := slices.DeleteFunc(r.bindings[info.topic], func(b binding) bool { return b.id == id })
	if len(claims) == 0 {
		delete(r.bindings, info.topic)
		delete(r.primary, info.topic)
	} else {
		r.bindings[info.topic] = claims
		best := claims[0]
		for _, c := range claims[1:] {
			if c.priority > best.priority {
				best = c
			}
		}
		r.primary[info.topic] = best.id
	}

	for other := range r.relations[id] {
		delete(r.relations[other], id)
		if len(r.relations[other]) == 0 {
			delete(r.relations, other)
		}
	}
	delete(r.relations, id)
}

// =============================================================================
// Lookups
// =============================================================================

// HasTopic reports whether any object is bound to the topic.
func (r *Registry) HasTopic(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.primary[topic]
	return ok
}

// PrimaryObject returns the primary object ID for a topic.
func (r *Registry) PrimaryObject(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.primary[topic]
	return id, ok
}

// ObjectsForTopic returns every object bound to a topic, primary first and
// then the secondaries in registration order.
func (r *Registry) ObjectsForTopic(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary, ok := r.primary[topic]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.bindings[topic]))
	out = append(out, primary)
	for _, b := range r.bindings[topic] {
		if b.id != primary {
			out = append(out, b.id)
		}
	}
	return out
}

// TopicForObject returns the topic an object is bound to.
func (r *Registry) TopicForObject(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.objects[id]
	return info.topic, ok
}

// TypeOf returns the entity type of an object.
func (r *Registry) TypeOf(id string) (entity.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.objects[id]
	return info.typ, ok
}

// Priority returns the priority of an object's binding.
func (r *Registry) Priority(id string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.objects[id]
	if !ok {
		return 0, false
	}
	return r.priorityLocked(info.topic, id), true
}

func (r *Registry) priorityLocked(topic, id string) int {
	for _, b := range r.bindings[topic] {
		if b.id == id {
			return b.priority
		}
	}
	return entity.PriorityDefault
}

// ObjectsOfType returns the IDs of all objects of a type, sorted.
func (r *Registry) ObjectsOfType(typ entity.Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, info := range r.objects {
		if info.typ == typ {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Related returns the IDs of all objects related to id, sorted.
func (r *Registry) Related(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.relations[id]))
}

// RelatedByType returns the IDs of objects related to id by typ, sorted.
func (r *Registry) RelatedByType(id string, typ entity.RelationshipType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for other, t := range r.relations[id] {
		if t == typ {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}

// SetMetadata stores a value in an object's metadata bag.
func (r *Registry) SetMetadata(id, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bag, ok := r.metadata[id]
	if !ok {
		bag = make(map[string]any)
		r.metadata[id] = bag
	}
	bag[key] = value
}

// Metadata returns a copy of an object's metadata bag.
func (r *Registry) Metadata(id string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.metadata[id])
}

// Stats returns counts of topics, objects, relationships and objects by type.
// Relationships are counted once per pair.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Topics:  len(r.primary),
		Objects: len(r.objects),
		ByType:  make(map[entity.Type]int),
	}
	for _, info := range r.objects {
		s.ByType[info.typ]++
	}
	var edges int
	for _, e := range r.relations {
		edges += len(e)
	}
	s.Relationships = edges / 2
	return s
}
