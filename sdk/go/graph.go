package stormsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

// Sync actions.
const (
	SyncAdd    = "add"
	SyncRemove = "remove"
)

// SyncOp is one membership request sent by SyncCompendia.
type SyncOp struct {
	Action       string
	CompendiumID string
	URL          string
	Err          error
}

// SyncObserver is told about every operation SyncCompendia sends, failed
// ones included.
type SyncObserver interface {
	ObserveSync(ctx context.Context, graphID string, op SyncOp)
}

// SyncObserverFunc adapts a function to SyncObserver.
type SyncObserverFunc func(ctx context.Context, graphID string, op SyncOp)

func (f SyncObserverFunc) ObserveSync(ctx context.Context, graphID string, op SyncOp) {
	f(ctx, graphID, op)
}

// SyncReport is the state reached by SyncCompendia.
type SyncReport struct {
	GraphID string
	Diff    model.DiffResult
	Applied []SyncOp
	Failed  *SyncOp
}

// Complete reports whether every operation of the diff was applied.
func (r *SyncReport) Complete() bool {
	return r.Failed == nil && len(r.Applied) == len(r.Diff.Removed)+len(r.Diff.Added)
}

// Pending lists the operations that were not applied, the failed one first.
func (r *SyncReport) Pending() []SyncOp {
	done := make(map[string]bool, len(r.Applied))
	for _, op := range r.Applied {
		done[op.Action+"/"+op.CompendiumID] = true
	}
	var out []SyncOp
	for _, op := range planSync(r.Diff) {
		if !done[op.Action+"/"+op.CompendiumID] {
			out = append(out, op)
		}
	}
	return out
}

// planSync orders removals before additions.
func planSync(d model.DiffResult) []SyncOp {
	ops := make([]SyncOp, 0, len(d.Removed)+len(d.Added))
	for _, id := range d.Removed {
		ops = append(ops, SyncOp{Action: SyncRemove, CompendiumID: id})
	}
	for _, id := range d.Added {
		ops = append(ops, SyncOp{Action: SyncAdd, CompendiumID: id})
	}
	return ops
}

// graphService is shared by pipelines and workflows.
type graphService[T model.GraphResource] struct {
	resourceService[T]
}

func newGraphService[T model.GraphResource](s *Storm, collection string, build func(map[string]any) T) graphService[T] {
	return graphService[T]{newResourceService(s, collection, build)}
}

// Search lists the graphs of the project.
func (g graphService[T]) Search(ctx context.Context, params url.Values) ([]T, error) {
	return g.search(ctx, g.url, params)
}

// Create stores a new graph. Only its metadata is sent.
func (g graphService[T]) Create(ctx context.Context, graph T) (T, error) {
	return g.create(ctx, map[string]any{"metadata": graph.Metadata()})
}

// Get fetches the graph identified by ref.
func (g graphService[T]) Get(ctx context.Context, ref model.Ref) (T, error) {
	return g.get(ctx, ref)
}

// Save writes the graph metadata. Membership goes through SyncCompendia.
func (g graphService[T]) Save(ctx context.Context, graph T) (T, error) {
	return g.save(ctx, graph, map[string]any{"metadata": graph.Metadata()})
}

// Delete removes the graph identified by ref.
func (g graphService[T]) Delete(ctx context.Context, ref model.Ref) error {
	return g.delete(ctx, ref)
}

// Reload re-fetches graph through its self link.
func (g graphService[T]) Reload(ctx context.Context, graph T) (T, error) {
	var zero T
	u, err := graph.SelfURL()
	if err != nil {
		return zero, err
	}
	return requestAs(ctx, g.s, http.MethodGet, u, nil, g.build)
}

// Finalize marks the graph finished. Its membership is frozen afterwards.
func (g graphService[T]) Finalize(ctx context.Context, graph T) (T, error) {
	return g.action(ctx, graph, "finish")
}

// NewVersion opens a new, unfinished version of graph.
func (g graphService[T]) NewVersion(ctx context.Context, graph T) (T, error) {
	var zero T
	u, err := graph.VersionsURL()
	if err != nil {
		return zero, err
	}
	out, err := requestAs(ctx, g.s, http.MethodPost, u, nil, g.build)
	if err != nil {
		return zero, fmt.Errorf("new version of %s: %w", graph.ID(), err)
	}
	g.s.cache.purge()
	return out, nil
}

// SyncCompendia sends the membership changes made to graph since it was
// loaded: every removal, then every addition, one request per compendium.
// It stops at the first failure and returns what was applied so far. The
// graph itself is left untouched; reload it to get the new baseline.
func (g graphService[T]) SyncCompendia(ctx context.Context, graph T, observer SyncObserver) (*SyncReport, error) {
	if graph.IsFinished() {
		return nil, fmt.Errorf("sync %s: %w", graph.ID(), model.ErrGraphFinished)
	}
	diff, err := graph.Diff()
	if err != nil {
		return nil, err
	}
	report := &SyncReport{GraphID: graph.ID(), Diff: diff}
	if diff.Empty() {
		return report, nil
	}
	addURL, err := graph.AddCompendiumURL()
	if err != nil {
		return nil, err
	}
	delURL, err := graph.DeleteCompendiumURL()
	if err != nil {
		return nil, err
	}

	log := g.s.log.With("graph", report.GraphID)
	log.Debug("sync compendia", "added", len(diff.Added), "removed", len(diff.Removed))
	defer g.s.cache.purge()
	for _, op := range planSync(diff) {
		method, base := http.MethodPost, addURL
		if op.Action == SyncRemove {
			method, base = http.MethodDelete, delURL
		}
		op.URL = joinURL(base, op.CompendiumID)
		_, op.Err = g.s.req.Request(ctx, method, op.URL, nil, nil)
		if observer != nil {
			observer.ObserveSync(ctx, report.GraphID, op)
		}
		if op.Err != nil {
			log.Debug("sync stopped", "action", op.Action, "compendium", op.CompendiumID, "err", op.Err)
			report.Failed = &op
			return report, fmt.Errorf("sync %s: %s %s: %w", report.GraphID, op.Action, op.CompendiumID, op.Err)
		}
		report.Applied = append(report.Applied, op)
	}
	return report, nil
}

// PipelineService manages the pipelines of a project.
type PipelineService struct {
	graphService[*model.Pipeline]
}

// WorkflowService manages the workflows of a project.
type WorkflowService struct {
	graphService[*model.Workflow]
}
