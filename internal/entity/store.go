package entity

import (
	"sort"
	"sync"
	"time"
)

// Store holds the live objects of one vehicle, keyed by object ID.
//
// All methods are safe for concurrent use. Readers receive clones so they
// never observe a half-applied update.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*Object
	device  DeviceInfo
}

// NewStore creates an empty store for the given device record.
func NewStore(device DeviceInfo) *Store {
	return &Store{
		objects: make(map[string]*Object),
		device:  device,
	}
}

// Put inserts or replaces an object. The store keeps its own copy.
func (s *Store) Put(obj *Object) {
	if obj == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.ID] = obj.Clone()
}

// Update applies fn to the stored object with the given ID under the write lock
// and returns a clone of the result. It returns false if the ID is unknown.
func (s *Store) Update(id string, fn func(*Object)) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	fn(obj)
	return obj.Clone(), true
}

// Get returns a clone of the object, or false if it does not exist.
func (s *Store) Get(id string) (*Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	return obj.Clone(), true
}

// List returns clones of all objects sorted by ID.
func (s *Store) List() []*Object {
	s.mu.RLock()
	out := make([]*Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OfType returns clones of all objects of the given type sorted by ID.
func (s *Store) OfType(t Type) []*Object {
	all := s.List()
	out := all[:0]
	for _, obj := range all {
		if obj.Type == t {
			out = append(out, obj)
		}
	}
	return out
}

// Len returns the number of objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Delete removes an object and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	return true
}

// UpdatedBefore returns the IDs of objects last updated before cutoff,
// sorted.
func (s *Store) UpdatedBefore(cutoff time.Time) []string {
	s.mu.RLock()
	var ids []string
	for id, obj := range s.objects {
		if obj.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Device returns the current device record.
func (s *Store) Device() DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// SetDevice replaces the device record.
func (s *Store) SetDevice(d DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = d
}
