package engine_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/internal/db"
	"github.com/storm-platform/storm-go/internal/engine"
	"github.com/storm-platform/storm-go/internal/journal"
	"github.com/storm-platform/storm-go/internal/migrate"
	"github.com/storm-platform/storm-go/internal/stormtest"
	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
	"github.com/storm-platform/storm-go/sdk/go/transport"
)

type testEnv struct {
	Engine engine.Engine
	Server *stormtest.Server
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	srv := stormtest.New(t)
	srv.AddProject("p1", "Climate")
	srv.AddGraph(engine.KindPipelines, "p1", "g1", "c1", "c2")
	sdk := stormsdk.New(srv.URL, transport.New(transport.Config{Token: "tok"}))
	return testEnv{Engine: engine.New(sdk, conn), Server: srv, Ctx: ctx}
}

func TestSyncMembership(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.Engine.SyncMembership(env.Ctx, engine.KindPipelines, "p1", "g1", []string{"c3", "c1"}, []string{"c2"})
	require.NoError(t, err)
	require.NotNil(t, res.Graph)
	assert.Equal(t, []string{"c1", "c3"}, env.Server.GraphNodes(engine.KindPipelines, "g1"))

	ids, err := model.ExtractIDs(res.Graph.Original())
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, ids)

	run, err := env.Engine.Journal.Latest(env.Ctx, engine.KindPipelines, "g1")
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, journal.RunCompleted, run.Status)

	entries, err := env.Engine.Journal.Entries(env.Ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, stormsdk.SyncRemove, entries[0].Action)
	assert.Equal(t, "c2", entries[0].CompendiumID)
	assert.Equal(t, stormsdk.SyncAdd, entries[1].Action)
	assert.Equal(t, "c3", entries[1].CompendiumID)
	assert.Equal(t, journal.OpApplied, entries[1].Status)
}

func TestSyncMembershipFailureIsResumable(t *testing.T) {
	env := newTestEnv(t)
	path := "/projects/p1/pipelines/g1/actions/add-compendium/c3"
	env.Server.FailOn(http.MethodPost, path, http.StatusBadGateway)

	res, err := env.Engine.SyncMembership(env.Ctx, engine.KindPipelines, "p1", "g1", []string{"c3", "c4"}, []string{"c1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, transport.StatusCode(err))
	assert.Nil(t, res.Graph)
	assert.Equal(t, []string{"c2"}, env.Server.GraphNodes(engine.KindPipelines, "g1"))

	run, err := env.Engine.Journal.Latest(env.Ctx, engine.KindPipelines, "g1")
	require.NoError(t, err)
	assert.Equal(t, journal.RunFailed, run.Status)
	entries, err := env.Engine.Journal.Entries(env.Ctx, run.ID)
	require.NoError(t, err)
	var statuses []string
	for _, e := range entries {
		statuses = append(statuses, e.Action+" "+e.CompendiumID+" "+e.Status)
	}
	assert.Equal(t, []string{"remove c1 applied", "add c3 failed", "add c4 pending"}, statuses)

	add, remove, err := env.Engine.Journal.Unresolved(env.Ctx, engine.KindPipelines, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c4"}, add)
	assert.Empty(t, remove)

	env.Server.ClearFailures()
	res, err = env.Engine.Resume(env.Ctx, engine.KindPipelines, "p1", "g1")
	require.NoError(t, err)
	require.NotNil(t, res.Graph)
	assert.Equal(t, []string{"c2", "c3", "c4"}, env.Server.GraphNodes(engine.KindPipelines, "g1"))

	res, err = env.Engine.Resume(env.Ctx, engine.KindPipelines, "p1", "g1")
	require.NoError(t, err)
	assert.Empty(t, res.RunID, "nothing left to resume")
}

func TestSyncMembershipRejects(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.SyncMembership(env.Ctx, "datasets", "p1", "g1", nil, nil)
	require.ErrorIs(t, err, engine.ErrUnknownKind)

	sdk := env.Engine.SDK.Project("p1").Pipelines
	g, err := sdk.Get(env.Ctx, model.RawID("g1"))
	require.NoError(t, err)
	_, err = sdk.Finalize(env.Ctx, g)
	require.NoError(t, err)

	_, err = env.Engine.SyncMembership(env.Ctx, engine.KindPipelines, "p1", "g1", []string{"c9"}, nil)
	require.ErrorIs(t, err, model.ErrGraphFinished)
	_, err = env.Engine.Journal.Latest(env.Ctx, engine.KindPipelines, "g1")
	assert.ErrorIs(t, err, journal.ErrNotFound, "finished graphs are not journaled")
}

func TestJournalTail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SyncMembership(env.Ctx, engine.KindPipelines, "p1", "g1", []string{"c3", "c4", "c5"}, nil)
	require.NoError(t, err)

	tail, err := env.Engine.Journal.Tail(env.Ctx, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "c4", tail[0].CompendiumID)
	assert.Equal(t, "c5", tail[1].CompendiumID)
	assert.Less(t, tail[0].Seq, tail[1].Seq)
}
