package stormsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/sdk/go/model"
	"github.com/storm-platform/storm-go/sdk/go/transport"
)

func TestProjects(t *testing.T) {
	ctx := context.Background()
	s, _ := newClient(t)
	projects := s.Projects()

	p := model.NewProject(map[string]any{"metadata": map[string]any{"title": "Ocean"}})
	created, err := projects.Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Ocean", created.Title())
	assert.EqualValues(t, 1, created.RevisionID())

	all, err := projects.Search(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := projects.Get(ctx, model.RawID("p1"))
	require.NoError(t, err)
	assert.Equal(t, "Climate", got.Title())

	require.NoError(t, projects.Delete(ctx, created))
	_, err = projects.Get(ctx, created)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
}

func TestDepositLifecycle(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddService("deposits", "zenodo", "Zenodo")
	deposits := s.Deposits()

	services, err := deposits.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Zenodo", services[0].Title())

	d := model.NewDeposit(map[string]any{"customizations": map[string]any{}})
	require.NoError(t, d.SetService(services[0]))
	require.NoError(t, d.SetPipelines(model.RawID("g1"), model.NewPipeline(map[string]any{"id": "g2"})))
	require.NoError(t, d.SetProject(model.RawID("p1")))

	srv.Reset()
	created, err := deposits.Create(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "created", created.Status())
	assert.Equal(t, []any{"g1", "g2"}, created.Pipelines())

	calls := srv.Calls()
	require.Len(t, calls, 1)
	var sent map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	assert.Equal(t, "zenodo", sent["service"])
	assert.NotContains(t, sent, "customizations")

	started, err := deposits.Start(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "running", started.Status())

	canceled, err := deposits.Cancel(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled.Status())

	found, err := deposits.Search(ctx, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, deposits.Delete(ctx, created))
	found, err = deposits.Search(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestJobAndExecutionWireReferences(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)
	srv.AddService("jobs", "reana", "REANA")
	srv.AddService("executions", "local", "Local")

	job := model.NewJob(nil)
	require.NoError(t, job.SetService(model.RawID("reana")))
	require.NoError(t, job.SetPipeline(model.NewPipeline(map[string]any{"id": "g1"})))
	require.NoError(t, job.SetProject(model.NewProject(map[string]any{"id": "p1"})))
	createdJob, err := s.Jobs().Create(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "g1", createdJob.PipelineID())
	assert.Equal(t, "p1", createdJob.ProjectID())

	exec := model.NewExecutionJob(nil)
	require.NoError(t, exec.SetService(model.RawID("local")))
	require.NoError(t, exec.SetWorkflow(model.RawID("w1")))
	createdExec, err := s.Executions().Create(ctx, exec)
	require.NoError(t, err)
	assert.Equal(t, "w1", createdExec.WorkflowID())

	createdExec.Document().Set("metadata.note", "rerun")
	saved, err := s.Executions().Save(ctx, createdExec)
	require.NoError(t, err)
	assert.Equal(t, "rerun", saved.Document().String("metadata.note"))
	assert.Equal(t, "created", saved.Status())

	services, err := s.Jobs().ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "reana", services[0].ID())
}

func TestRunnerCreateRejectsBadReference(t *testing.T) {
	ctx := context.Background()
	s, srv := newClient(t)

	d := model.NewDeposit(map[string]any{"service": map[string]any{"title": "no id"}})
	_, err := s.Deposits().Create(ctx, d)
	require.ErrorIs(t, err, model.ErrUnsupportedReference)
	assert.Empty(t, srv.Calls())
}
