package model_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

func pipelineWith(ids ...string) *model.Pipeline {
	nodes := map[string]any{}
	for _, id := range ids {
		nodes[id] = map[string]any{}
	}
	return model.NewPipeline(map[string]any{"id": "pl", "graph": map[string]any{"nodes": nodes}})
}

func TestDiffAppend(t *testing.T) {
	p := pipelineWith("c1", "c2")
	p.AddCompendia(model.RawID("c3"))

	d, err := p.Diff()
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, d.Added)
	assert.Empty(t, d.Removed)
}

func TestDiffRemove(t *testing.T) {
	p := pipelineWith("c1", "c2")
	p.SetCompendia(model.Refs("c2"))

	d, err := p.Diff()
	require.NoError(t, err)
	assert.Empty(t, d.Added)
	assert.Equal(t, []string{"c1"}, d.Removed)
}

func TestDiffReorderIsNotChurn(t *testing.T) {
	p := pipelineWith("c1", "c2")
	p.SetCompendia(model.Refs("c2", "c1"))

	d, err := p.Diff()
	require.NoError(t, err)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	assert.True(t, d.Empty())
}

func TestDiffReplace(t *testing.T) {
	p := pipelineWith("c1", "c2", "c3")
	p.SetCompendia([]model.Ref{
		model.RawID("c1"),
		model.NewCompendiumRecord(map[string]any{"id": "c9", "is_published": true}),
		model.RawID("c3"),
	})

	d, err := p.Diff()
	require.NoError(t, err)
	assert.Equal(t, []string{"c9"}, d.Added)
	assert.Equal(t, []string{"c2"}, d.Removed)

	pairs := d.Pairs()
	assert.Equal(t, "added", pairs[0].Name)
	assert.Equal(t, "removed", pairs[1].Name)
}

func TestDiffRejectsUnresolvableReference(t *testing.T) {
	p := pipelineWith("c1")
	p.AddCompendia(model.RawID(""))

	_, err := p.Diff()
	require.ErrorIs(t, err, model.ErrUnsupportedReference)
}

func TestDiffIsIdempotentAndKeepsOriginal(t *testing.T) {
	p := pipelineWith("c1", "c2")
	p.AddCompendia(model.RawID("c3"))
	require.NoError(t, p.RemoveCompendium(model.RawID("c1")))

	first, err := p.Diff()
	require.NoError(t, err)
	second, err := p.Diff()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, model.Refs("c1", "c2"), p.Original())

	orig := p.Original()
	orig[0] = model.RawID("mutated")
	assert.Equal(t, model.Refs("c1", "c2"), p.Original())
}

func TestDiffMembershipProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for i := 0; i < 200; i++ {
		orig := sample(rng, pool)
		cur := sample(rng, pool)

		d, err := model.Diff(model.Refs(orig...), model.Refs(cur...))
		require.NoError(t, err)

		got := map[string]bool{}
		for _, id := range orig {
			got[id] = true
		}
		for _, id := range d.Removed {
			delete(got, id)
		}
		for _, id := range d.Added {
			got[id] = true
		}
		want := map[string]bool{}
		for _, id := range cur {
			want[id] = true
		}
		require.Equal(t, want, got, "orig=%v cur=%v diff=%+v", orig, cur, d)

		for _, id := range d.Added {
			assert.NotContains(t, orig, id)
		}
		for _, id := range d.Removed {
			assert.NotContains(t, cur, id)
		}
	}
}

// sample returns a random ordering of a random subset of pool, without
// duplicates.
func sample(rng *rand.Rand, pool []string) []string {
	perm := rng.Perm(len(pool))
	n := rng.Intn(len(pool) + 1)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

func TestWorkflowReadsNestedGraph(t *testing.T) {
	w := model.NewWorkflow(map[string]any{
		"id":          "w1",
		"is_finished": true,
		"metadata": map[string]any{
			"version": float64(2),
			"graph":   map[string]any{"nodes": map[string]any{"z": map[string]any{}, "a": map[string]any{}}},
		},
		"links": map[string]any{"actions": map[string]any{"add-compendium": "http://x/w1/actions/add-compendium"}},
	})
	assert.Equal(t, model.Refs("a", "z"), w.Original())
	assert.True(t, w.IsFinished())
	assert.Equal(t, float64(2), w.Version())

	u, err := w.AddCompendiumURL()
	require.NoError(t, err)
	assert.Equal(t, "http://x/w1/actions/add-compendium", u)

	_, err = w.DeleteCompendiumURL()
	require.ErrorIs(t, err, model.ErrAttributeNotAvailable)
}
