package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/sdk/go/document"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

func TestKindClassification(t *testing.T) {
	assert.True(t, model.IsDraft(map[string]any{}))
	assert.True(t, model.IsDraft(map[string]any{"is_published": false}))
	assert.False(t, model.IsDraft(map[string]any{"is_published": true}))
	assert.True(t, model.IsRecord(map[string]any{"is_published": true}))

	c := model.NewCompendium(map[string]any{"id": "a", "is_published": true})
	_, ok := c.(*model.CompendiumRecord)
	assert.True(t, ok)
	c = model.NewCompendium(map[string]any{"id": "b"})
	_, ok = c.(*model.CompendiumDraft)
	assert.True(t, ok)
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from model.Kind
		op   model.Operation
		to   model.Kind
		ok   bool
	}{
		{0, model.OpCreate, model.KindDraft, true},
		{model.KindDraft, model.OpSave, model.KindDraft, true},
		{model.KindDraft, model.OpUploadFiles, model.KindDraft, true},
		{model.KindDraft, model.OpPublish, model.KindRecord, true},
		{model.KindRecord, model.OpNewVersion, model.KindDraft, true},
		{model.KindRecord, model.OpSave, model.KindRecord, false},
		{model.KindRecord, model.OpPublish, model.KindRecord, false},
		{model.KindRecord, model.OpDefineFiles, model.KindRecord, false},
		{model.KindDraft, model.OpNewVersion, model.KindDraft, false},
		{0, model.OpSave, 0, false},
	}
	for _, tc := range cases {
		got, err := model.Transition(tc.from, tc.op)
		if tc.ok {
			require.NoError(t, err, "%s from %s", tc.op, tc.from)
		} else {
			require.ErrorIs(t, err, model.ErrInvalidTransition, "%s from %s", tc.op, tc.from)
		}
		assert.Equal(t, tc.to, got, "%s from %s", tc.op, tc.from)
	}
}

func TestLinkSchemas(t *testing.T) {
	spec, err := model.KindRecord.LinkFor(model.LinkVersions)
	require.NoError(t, err)
	assert.Equal(t, model.TypeCompendiumDraft, spec.Result)

	spec, err = model.KindRecord.LinkFor(model.LinkDraft)
	require.NoError(t, err)
	assert.Equal(t, "POST", spec.Method)

	_, err = model.KindRecord.LinkFor(model.LinkPublish)
	require.ErrorIs(t, err, model.ErrUndeclaredLink)

	rec := model.NewCompendiumRecord(map[string]any{"is_published": true})
	_, err = rec.Links().URL(model.LinkPublish)
	require.ErrorIs(t, err, model.ErrUndeclaredLink)
	_, err = rec.Links().URL(model.LinkSelf)
	require.ErrorIs(t, err, model.ErrAttributeNotAvailable)
}

func TestExtractID(t *testing.T) {
	id, err := model.ExtractID(model.RawID("abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	id, err = model.ExtractID(model.NewCompendiumRecord(map[string]any{"id": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "x", id)

	_, err = model.ExtractID(nil)
	require.ErrorIs(t, err, model.ErrUnsupportedReference)

	var p *model.Project
	_, err = model.ExtractID(p)
	require.ErrorIs(t, err, model.ErrUnsupportedReference)

	_, err = model.ExtractAny(model.NewCompendiumDraft(map[string]any{"id": "d"}))
	var re *model.ReferenceError
	require.ErrorAs(t, err, &re)

	_, err = model.ExtractAny(42)
	require.ErrorIs(t, err, model.ErrUnsupportedReference)

	id, err = model.ExtractAny("p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
}

func TestWireJSONNormalizesWithoutMutating(t *testing.T) {
	d := model.NewCompendiumDraft(nil)
	d.SetTitle("exp")
	d.AddInputs("data/in.tif", map[string]any{"key": "data/dem.tif"})
	d.AddOutputs("out.csv")

	b, err := json.Marshal(d)
	require.NoError(t, err)

	assert.Equal(t, []any{"data/in.tif", map[string]any{"key": "data/dem.tif"}}, d.Inputs(), "live document must keep raw strings")

	reloaded, err := document.Parse(b)
	require.NoError(t, err)
	again := model.NewCompendiumDraft(reloaded.Raw())
	assert.Equal(t, []any{
		map[string]any{"key": "data/in.tif"},
		map[string]any{"key": "data/dem.tif"},
	}, again.Inputs())
	assert.Equal(t, []any{map[string]any{"key": "out.csv"}}, again.Outputs())

	b2, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(b2))
}

func TestCompendiumLazyFields(t *testing.T) {
	d := model.NewCompendiumDraft(nil)
	assert.Empty(t, d.Inputs())
	assert.True(t, d.Document().Has("metadata.execution.data.inputs"))
	assert.False(t, d.HasErrors())

	d.SetDescriptor(model.ExecutionDescriptor{Name: "reprozip", URI: "https://reprozip.org", Version: "1.x"})
	desc := d.Descriptor()
	assert.Equal(t, "reprozip", desc.Name)
	assert.Equal(t, "1.x", desc.Version)

	e := model.NewCompendiumDraft(map[string]any{"errors": []any{map[string]any{"field": "metadata.title"}}})
	assert.True(t, e.HasErrors())
}

func TestFileEntries(t *testing.T) {
	files := model.NewCompendiumFiles(map[string]any{
		"enabled": true,
		"entries": []any{
			map[string]any{
				"key":      "a.txt",
				"size":     float64(12),
				"checksum": "md5:abc123",
				"status":   "completed",
				"links":    map[string]any{"content": "http://x/a.txt/content"},
			},
			map[string]any{"key": "b.txt", "status": "pending"},
		},
	})
	assert.True(t, files.Enabled())
	assert.Equal(t, []string{"a.txt", "b.txt"}, files.Filenames())

	a, ok := files.Entry("a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(12), a.Size())
	assert.Equal(t, "abc123", a.ChecksumDigest())
	assert.True(t, a.IsCompleted())
	u, err := a.ContentURL()
	require.NoError(t, err)
	assert.Equal(t, "http://x/a.txt/content", u)

	b, _ := files.Entry("b.txt")
	_, err = b.ContentURL()
	assert.True(t, errors.Is(err, model.ErrAttributeNotAvailable))
}

func TestDepositWireJSON(t *testing.T) {
	dep := model.NewDeposit(map[string]any{
		"customizations": map[string]any{},
		"pipelines":      []any{map[string]any{"id": "p1"}, "p2"},
	})
	require.NoError(t, dep.SetService(model.NewDepositPluginService(map[string]any{"id": "zenodo"})))

	wire, err := dep.WireJSON()
	require.NoError(t, err)
	assert.Equal(t, "zenodo", wire["service"])
	assert.Equal(t, []any{"p1", "p2"}, wire["pipelines"])
	assert.NotContains(t, wire, "customizations")
	assert.NotNil(t, dep.Customizations(), "live document keeps customizations")

	require.NoError(t, dep.SetPipelines(model.NewPipeline(map[string]any{"id": "p3"})))
	assert.Equal(t, []any{"p3"}, dep.Pipelines())

	err = dep.SetService(nil)
	require.ErrorIs(t, err, model.ErrUnsupportedReference)
}

func TestJobWireJSON(t *testing.T) {
	job := model.NewJob(map[string]any{
		"service":     map[string]any{"id": "local"},
		"pipeline_id": "p1",
	})
	require.NoError(t, job.SetProject(model.NewProject(map[string]any{"id": "proj"})))

	wire, err := job.WireJSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"service": "local", "pipeline_id": "p1", "project_id": "proj"}, wire)

	exec := model.NewExecutionJob(map[string]any{"workflow_id": map[string]any{"title": "no id"}})
	_, err = exec.WireJSON()
	require.ErrorIs(t, err, model.ErrUnsupportedReference)
}

func TestBuild(t *testing.T) {
	r, err := model.Build(model.TypeWorkflow, map[string]any{"id": "w"})
	require.NoError(t, err)
	assert.Equal(t, model.TypeWorkflow, r.Type())

	_, err = model.Build(model.ResourceType(99), nil)
	assert.Error(t, err)
}
