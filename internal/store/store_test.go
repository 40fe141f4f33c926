package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/database"
	"github.com/nerrad567/ovms-bridge/migrations"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "bridge.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	_, err = db.Migrate(ctx, migrations.FS)
	require.NoError(t, err)

	now := t0
	s := New(db.DB, "car1")
	s.now = func() time.Time { return now }
	return s, &now
}

// =============================================================================
// Snapshot
// =============================================================================

func TestSaveAndLoadSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	objs := []*entity.Object{
		{
			ID: "car1_v_b_soc", Name: "Battery SOC", Topic: "ovms/alice/car1/metric/v/b/soc",
			Type: entity.TypeScalar, Category: "battery", Unit: "%", Value: 76.5,
			Attributes: map[string]any{"metric_path": "v.b.soc"}, Available: true, UpdatedAt: t0,
		},
		{
			ID: "car1_location", Name: "Location", Topic: "ovms/alice/car1/location",
			Type: entity.TypePositionalFix, Category: "location",
			Value:     map[string]float64{"latitude": 52.1, "longitude": 5.3},
			Available: true, UpdatedAt: t0,
		},
	}
	device := entity.NewDeviceInfo("car1", "My Car")
	device.SoftwareVersion = "3.3.004"
	device.UpdatedAt = t0

	n, err := s.SaveSnapshot(ctx, objs, device)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := s.LoadObjects(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	loc := loaded[0]
	assert.Equal(t, "car1_location", loc.ID)
	assert.Equal(t, entity.TypePositionalFix, loc.Type)
	assert.Equal(t, map[string]any{"latitude": 52.1, "longitude": 5.3}, loc.Value)

	soc := loaded[1]
	assert.Equal(t, 76.5, soc.Value)
	assert.Equal(t, "%", soc.Unit)
	assert.Equal(t, "v.b.soc", soc.Attributes["metric_path"])
	assert.True(t, soc.Available)
	assert.True(t, soc.UpdatedAt.Equal(t0))

	got, ok, err := s.LoadDevice(ctx, device.Identifier)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3.3.004", got.SoftwareVersion)
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	device := entity.NewDeviceInfo("car1", "My Car")

	first := []*entity.Object{
		{ID: "a", Topic: "t/a", Type: entity.TypeScalar, Value: 1.0},
		{ID: "b", Topic: "t/b", Type: entity.TypeScalar, Value: 2.0},
	}
	_, err := s.SaveSnapshot(ctx, first, device)
	require.NoError(t, err)

	device.SoftwareVersion = "3.3.005"
	_, err = s.SaveSnapshot(ctx, first[:1], device)
	require.NoError(t, err)

	loaded, err := s.LoadObjects(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)

	got, _, err := s.LoadDevice(ctx, device.Identifier)
	require.NoError(t, err)
	assert.Equal(t, "3.3.005", got.SoftwareVersion)
}

func TestLoadDeviceMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok, err := s.LoadDevice(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveSnapshotNilValue(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveSnapshot(ctx, []*entity.Object{{ID: "x", Topic: "t/x", Type: entity.TypeScalar}}, entity.NewDeviceInfo("car1", ""))
	require.NoError(t, err)

	loaded, err := s.LoadObjects(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Nil(t, loaded[0].Value)
}

func TestDeleteObject(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	objs := []*entity.Object{
		{ID: "a", Topic: "t/a", Type: entity.TypeScalar, Value: 1.0},
		{ID: "b", Topic: "t/b", Type: entity.TypeScalar, Value: 2.0},
	}
	_, err := s.SaveSnapshot(ctx, objs, entity.NewDeviceInfo("car1", ""))
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err = s.RecordState(ctx, id, 1.0, "")
		require.NoError(t, err)
	}

	t.Run("keeps history by default", func(t *testing.T) {
		require.NoError(t, s.DeleteObject(ctx, "a", false))

		loaded, err := s.LoadObjects(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "b", loaded[0].ID)

		entries, err := s.GetHistory(ctx, "a", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		// The dedup cache is cleared, so the same value is recorded again.
		*now = t0.Add(time.Minute)
		ok, err := s.RecordState(ctx, "a", 1.0, "")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("deletes history when asked", func(t *testing.T) {
		require.NoError(t, s.DeleteObject(ctx, "b", true))

		entries, err := s.GetHistory(ctx, "b", 0)
		require.NoError(t, err)
		assert.Empty(t, entries)

		loaded, err := s.LoadObjects(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	assert.ErrorIs(t, s.DeleteObject(ctx, "", false), ErrObjectIDRequired)
}

// =============================================================================
// History
// =============================================================================

func TestRecordStateAndHistory(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	ok, err := s.RecordState(ctx, "car1_v_b_soc", 76.5, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RecordState(ctx, "car1_v_b_soc", 76.5, "")
	require.NoError(t, err)
	assert.False(t, ok, "unchanged value must be skipped")

	*now = t0.Add(time.Minute)
	ok, err = s.RecordState(ctx, "car1_v_b_soc", 77.0, SourceMQTT)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.RecordState(ctx, "car1_m_version", "3.3.004", SourceCommand)
	require.NoError(t, err)

	entries, err := s.GetHistory(ctx, "car1_v_b_soc", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 77.0, entries[0].Value)
	assert.Equal(t, 76.5, entries[1].Value)
	assert.Equal(t, SourceMQTT, entries[0].Source)
	assert.True(t, entries[0].CreatedAt.Equal(t0.Add(time.Minute)))

	limited, err := s.GetHistory(ctx, "car1_v_b_soc", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordStateRequiresID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.RecordState(context.Background(), "", 1, "")
	assert.ErrorIs(t, err, ErrObjectIDRequired)

	_, err = s.GetHistory(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrObjectIDRequired)
}

func TestPrune(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordState(ctx, "a", 1, "")
	require.NoError(t, err)
	*now = t0.Add(2 * time.Hour)
	_, err = s.RecordState(ctx, "a", 2, "")
	require.NoError(t, err)

	_, err = s.Prune(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidRetention)

	n, err := s.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.GetHistory(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(2), entries[0].Value)
}

// =============================================================================
// Retention
// =============================================================================

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(string, ...any) {}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.infos)
}

func TestRetentionPrunesOnStart(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordState(ctx, "a", 1, "")
	require.NoError(t, err)
	*now = t0.Add(48 * time.Hour)

	logger := &recordingLogger{}
	r := NewRetention(s, 24*time.Hour, time.Hour, logger)
	r.Start(ctx)
	require.Eventually(t, func() bool { return logger.count() == 1 }, time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()

	entries, err := s.GetHistory(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
