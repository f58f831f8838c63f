package stormsdk_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
	"github.com/storm-platform/storm-go/sdk/go/transport"
)

func ids(t *testing.T, refs []model.Ref) []string {
	t.Helper()
	out, err := model.ExtractIDs(refs)
	require.NoError(t, err)
	return out
}

func TestSyncCompendiaRemovesThenAdds(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddGraph("pipelines", "p1", "g1", "c1", "c2", "c3")
	pipelines := s.Project("p1").Pipelines

	pl, err := pipelines.Get(ctx, model.RawID("g1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids(t, pl.Compendia()))

	require.NoError(t, pl.RemoveCompendium(model.RawID("c2")))
	pl.AddCompendia(model.RawID("c4"), model.RawID("c5"))
	srv.Reset()

	var seen []stormsdk.SyncOp
	report, err := pipelines.SyncCompendia(ctx, pl, stormsdk.SyncObserverFunc(func(_ context.Context, graphID string, op stormsdk.SyncOp) {
		assert.Equal(t, "g1", graphID)
		seen = append(seen, op)
	}))
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Empty(t, report.Pending())
	assert.Len(t, seen, 3)

	assert.Equal(t, []string{
		"DELETE /projects/p1/pipelines/g1/actions/delete-compendium/c2",
		"POST /projects/p1/pipelines/g1/actions/add-compendium/c4",
		"POST /projects/p1/pipelines/g1/actions/add-compendium/c5",
	}, srv.CallsMatching("/actions/"))
	assert.Equal(t, []string{"c1", "c3", "c4", "c5"}, srv.GraphNodes("pipelines", "g1"))
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids(t, pl.Original()), "original is not touched")

	reloaded, err := pipelines.Reload(ctx, pl)
	require.NoError(t, err)
	diff, err := reloaded.Diff()
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Equal(t, []string{"c1", "c3", "c4", "c5"}, ids(t, reloaded.Original()))
}

func TestSyncCompendiaStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddGraph("pipelines", "p1", "g1", "c1", "c2", "c3")
	srv.FailOn(http.MethodPost, "/projects/p1/pipelines/g1/actions/add-compendium/c4", http.StatusInternalServerError)
	pipelines := s.Project("p1").Pipelines

	pl, err := pipelines.Get(ctx, model.RawID("g1"))
	require.NoError(t, err)
	require.NoError(t, pl.RemoveCompendium(model.RawID("c2")))
	pl.AddCompendia(model.RawID("c4"), model.RawID("c5"))
	srv.Reset()

	var failed int
	report, err := pipelines.SyncCompendia(ctx, pl, stormsdk.SyncObserverFunc(func(_ context.Context, _ string, op stormsdk.SyncOp) {
		if op.Err != nil {
			failed++
		}
	}))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, transport.StatusCode(err))
	require.NotNil(t, report)
	assert.False(t, report.Complete())
	assert.Equal(t, 1, failed)

	require.Len(t, report.Applied, 1)
	assert.Equal(t, stormsdk.SyncRemove, report.Applied[0].Action)
	assert.Equal(t, "c2", report.Applied[0].CompendiumID)
	require.NotNil(t, report.Failed)
	assert.Equal(t, "c4", report.Failed.CompendiumID)

	pending := report.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "c4", pending[0].CompendiumID)
	assert.Equal(t, "c5", pending[1].CompendiumID)

	assert.Empty(t, srv.CallsMatching("/add-compendium/c5"))
	assert.Equal(t, []string{"c1", "c3"}, srv.GraphNodes("pipelines", "g1"))
}

func TestSyncCompendiaReorderSendsNothing(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddGraph("workflows", "p1", "w1", "c1", "c2", "c3")
	workflows := s.Project("p1").Workflows

	wf, err := workflows.Get(ctx, model.RawID("w1"))
	require.NoError(t, err)
	wf.SetCompendia(model.Refs("c3", "c1", "c2"))
	srv.Reset()

	report, err := workflows.SyncCompendia(ctx, wf, nil)
	require.NoError(t, err)
	assert.True(t, report.Diff.Empty())
	assert.Empty(t, srv.Calls())
}

func TestSyncCompendiaRejectsFinishedGraph(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddGraph("pipelines", "p1", "g1", "c1")
	pipelines := s.Project("p1").Pipelines

	pl, err := pipelines.Get(ctx, model.RawID("g1"))
	require.NoError(t, err)
	pl, err = pipelines.Finalize(ctx, pl)
	require.NoError(t, err)
	assert.True(t, pl.IsFinished())

	pl.AddCompendia(model.RawID("c2"))
	srv.Reset()
	_, err = pipelines.SyncCompendia(ctx, pl, nil)
	require.ErrorIs(t, err, model.ErrGraphFinished)
	assert.Empty(t, srv.Calls())
}

func TestSyncCompendiaRejectsUnresolvableReference(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddGraph("pipelines", "p1", "g1", "c1")
	pipelines := s.Project("p1").Pipelines

	pl, err := pipelines.Get(ctx, model.RawID("g1"))
	require.NoError(t, err)
	pl.AddCompendia(model.NewCompendiumRecord(nil))
	srv.Reset()

	_, err = pipelines.SyncCompendia(ctx, pl, nil)
	require.ErrorIs(t, err, model.ErrUnsupportedReference)
	assert.Empty(t, srv.Calls())
}

func TestGraphCRUDAndVersions(t *testing.T) {
	ctx := context.Background()
	s, _ := newClient(t)
	workflows := s.Project("p1").Workflows

	wf := model.NewWorkflow(nil)
	wf.SetTitle("Preprocess")
	created, err := workflows.Create(ctx, wf)
	require.NoError(t, err)
	assert.Equal(t, "Preprocess", created.Title())
	assert.EqualValues(t, 1, created.Version())
	assert.Empty(t, created.Compendia())

	created.SetDescription("cleans the inputs")
	saved, err := workflows.Save(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "cleans the inputs", saved.Description())

	found, err := workflows.Search(ctx, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID(), found[0].ID())

	finished, err := workflows.Finalize(ctx, saved)
	require.NoError(t, err)
	next, err := workflows.NewVersion(ctx, finished)
	require.NoError(t, err)
	assert.NotEqual(t, finished.ID(), next.ID())
	assert.False(t, next.IsFinished())
	assert.EqualValues(t, 2, next.Version())

	require.NoError(t, workflows.Delete(ctx, next))
	_, err = workflows.Get(ctx, next)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
}
