package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nerrad567/ovms-bridge/internal/infrastructure/database"
	"github.com/nerrad567/ovms-bridge/migrations"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRepo(t *testing.T) *SQLiteRepository {
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

	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	e := &Entry{VehicleID: "car1", Command: "stat", Outcome: "replied", Success: true}
	require.NoError(t, repo.Create(context.Background(), e))

	assert.True(t, strings.HasPrefix(e.ID, "cmd-"))
	assert.Len(t, e.ID, len("cmd-")+8)
	assert.Equal(t, SourceAPI, e.Source)
	assert.Equal(t, now, e.CreatedAt)

	res, err := repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	got := res.Entries[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "car1", got.VehicleID)
	assert.True(t, got.Success)
	assert.Equal(t, now, got.CreatedAt)
	assert.Empty(t, got.Subject)
}

func TestCreate_RequiresCommand(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Create(context.Background(), &Entry{Command: "  ", Outcome: "rejected"})
	assert.ErrorIs(t, err, ErrCommandRequired)
}

func TestCreate_TruncatesResponse(t *testing.T) {
	repo := newTestRepo(t)
	e := &Entry{Command: "stat", Outcome: "replied", Response: strings.Repeat("x", responseLimit+100)}
	require.NoError(t, repo.Create(context.Background(), e))

	res, err := repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Len(t, res.Entries[0].Response, responseLimit)
}

func TestList_FiltersAndPaging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

	seed := []Entry{
		{Command: "stat", Subject: "alice", Outcome: "replied", Success: true},
		{Command: "charge start", Subject: "alice", Outcome: "timed_out", Error: "no reply"},
		{Command: "stat", Subject: "bob", Outcome: "replied", Success: true},
		{Command: "lock", Subject: "bob", Outcome: "rejected", Error: "rate limited"},
	}
	for i := range seed {
		seed[i].VehicleID = "car1"
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	tests := []struct {
		name     string
		filter   Filter
		total    int
		commands []string
	}{
		{"all newest first", Filter{}, 4, []string{"lock", "stat", "charge start", "stat"}},
		{"by command", Filter{Command: "stat"}, 2, []string{"stat", "stat"}},
		{"by outcome", Filter{Outcome: "replied"}, 2, []string{"stat", "stat"}},
		{"by subject", Filter{Subject: "alice"}, 2, []string{"charge start", "stat"}},
		{"combined", Filter{Subject: "bob", Outcome: "rejected"}, 1, []string{"lock"}},
		{"paged", Filter{Limit: 2, Offset: 1}, 4, []string{"stat", "charge start"}},
		{"no match", Filter{Command: "wakeup"}, 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.Total)

			commands := []string{}
			for _, e := range res.Entries {
				commands = append(commands, e.Command)
			}
			assert.Equal(t, tt.commands, commands)
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.NotNil(t, res.Entries)

	res, err = repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, res.Limit)
}
