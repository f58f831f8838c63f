package journal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/internal/db"
	"github.com/storm-platform/storm-go/internal/journal"
	"github.com/storm-platform/storm-go/internal/migrate"
	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

func newJournal(t *testing.T) journal.Journal {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	v, err := migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, 1, v)
	v, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err, "migrations are idempotent")
	require.Equal(t, 1, v)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return journal.Journal{DB: conn, Now: func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)

	_, err := j.Latest(ctx, "pipelines", "g1")
	require.ErrorIs(t, err, journal.ErrNotFound)

	run, err := j.Begin(ctx, "pipelines", "p1", "g1")
	require.NoError(t, err)
	obs := j.Observer(run.ID)
	obs.ObserveSync(ctx, "g1", stormsdk.SyncOp{Action: stormsdk.SyncRemove, CompendiumID: "c1", URL: "http://x/c1"})
	failed := stormsdk.SyncOp{Action: stormsdk.SyncAdd, CompendiumID: "c2", URL: "http://x/c2", Err: errors.New("boom")}
	obs.ObserveSync(ctx, "g1", failed)
	require.NoError(t, obs.Err())

	report := &stormsdk.SyncReport{
		GraphID: "g1",
		Diff:    model.DiffResult{Added: []string{"c2", "c3"}, Removed: []string{"c1"}},
		Applied: []stormsdk.SyncOp{{Action: stormsdk.SyncRemove, CompendiumID: "c1"}},
		Failed:  &failed,
	}
	require.NoError(t, j.Finish(ctx, run.ID, report, failed.Err))

	latest, err := j.Latest(ctx, "pipelines", "g1")
	require.NoError(t, err)
	assert.Equal(t, journal.RunFailed, latest.Status)
	assert.NotEmpty(t, latest.FinishedAt)

	entries, err := j.Entries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "boom", entries[1].Error)
	assert.Equal(t, journal.OpPending, entries[2].Status)
	assert.Equal(t, "c3", entries[2].CompendiumID)

	add, remove, err := j.Unresolved(ctx, "pipelines", "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, add)
	assert.Empty(t, remove)
}

func TestFinishUnknownRun(t *testing.T) {
	j := newJournal(t)
	err := j.Finish(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestLatestPicksNewestRun(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	first, err := j.Begin(ctx, "workflows", "p1", "w1")
	require.NoError(t, err)
	require.NoError(t, j.Finish(ctx, first.ID, nil, errors.New("boom")))
	second, err := j.Begin(ctx, "workflows", "p1", "w1")
	require.NoError(t, err)
	require.NoError(t, j.Finish(ctx, second.ID, nil, nil))

	latest, err := j.Latest(ctx, "workflows", "w1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, journal.RunCompleted, latest.Status)

	add, remove, err := j.Unresolved(ctx, "workflows", "w1")
	require.NoError(t, err)
	assert.Empty(t, add)
	assert.Empty(t, remove)
}
