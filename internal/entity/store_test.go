package entity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObject(id string, t Type) *Object {
	return &Object{
		ID:         id,
		Name:       id,
		Type:       t,
		Category:   "battery",
		Value:      1.0,
		Attributes: map[string]any{"k": "v"},
	}
}

func TestStore_PutGetIsolation(t *testing.T) {
	s := NewStore(NewDeviceInfo("car1", ""))
	obj := testObject("a", TypeScalar)
	s.Put(obj)

	// Mutating the caller's copy must not leak into the store.
	obj.Attributes["k"] = "changed"
	obj.Value = 99.0

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v", got.Attributes["k"])
	assert.Equal(t, 1.0, got.Value)

	// Nor may mutating a returned clone.
	got.Attributes["k"] = "again"
	again, _ := s.Get("a")
	assert.Equal(t, "v", again.Attributes["k"])
}

func TestStore_Update(t *testing.T) {
	s := NewStore(NewDeviceInfo("car1", ""))
	s.Put(testObject("a", TypeScalar))

	got, ok := s.Update("a", func(o *Object) {
		o.Value = 2.0
		o.SetAttribute("extra", true)
	})
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Value)
	assert.Equal(t, true, got.Attributes["extra"])

	_, ok = s.Update("missing", func(*Object) {})
	assert.False(t, ok)
}

func TestStore_ListSortedAndOfType(t *testing.T) {
	s := NewStore(NewDeviceInfo("car1", ""))
	s.Put(testObject("c", TypeScalar))
	s.Put(testObject("a", TypePositionalFix))
	s.Put(testObject("b", TypeScalar))

	ids := func(objs []*Object) []string {
		out := make([]string, len(objs))
		for i, o := range objs {
			out[i] = o.ID
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c"}, ids(s.List()))
	assert.Equal(t, []string{"b", "c"}, ids(s.OfType(TypeScalar)))
	assert.Equal(t, []string{"a"}, ids(s.OfType(TypePositionalFix)))
	assert.Equal(t, 3, s.Len())
}

func TestStore_DeleteAndUpdatedBefore(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s := NewStore(NewDeviceInfo("car1", ""))
	for id, age := range map[string]time.Duration{"a": 3 * time.Hour, "b": time.Minute, "c": 2 * time.Hour} {
		obj := testObject(id, TypeScalar)
		obj.UpdatedAt = now.Add(-age)
		s.Put(obj)
	}

	assert.Equal(t, []string{"a", "c"}, s.UpdatedBefore(now.Add(-time.Hour)))
	assert.Empty(t, s.UpdatedBefore(now.Add(-4*time.Hour)))

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"c"}, s.UpdatedBefore(now.Add(-time.Hour)))
	assert.Equal(t, 2, s.Len())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(NewDeviceInfo("car1", ""))
	s.Put(testObject("a", TypeScalar))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Update("a", func(o *Object) { o.SetAttribute("n", i) })
		}()
		go func() {
			defer wg.Done()
			_ = s.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}

func TestNewDeviceInfo(t *testing.T) {
	d := NewDeviceInfo("car1", "")
	assert.Equal(t, "OVMS - car1", d.Name)
	assert.Equal(t, Manufacturer, d.Manufacturer)
	assert.Equal(t, Model, d.Model)
	assert.Equal(t, "Unknown", d.SoftwareVersion)

	d = NewDeviceInfo("car1", "Leaf")
	assert.Equal(t, "OVMS - Leaf", d.Name)
}

func TestMetricHints(t *testing.T) {
	m := Metric{Numeric: true, Unit: "kPa"}
	h := m.Hints()
	assert.True(t, h.Numeric)
	assert.Equal(t, "kPa", h.Unit)
}

func TestObjectClone_Nil(t *testing.T) {
	var o *Object
	assert.Nil(t, o.Clone())
}
