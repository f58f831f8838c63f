package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/storm-platform/storm-go/internal/journal"
	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

// Graph kinds, named after their collections.
const (
	KindPipelines = "pipelines"
	KindWorkflows = "workflows"
)

var ErrUnknownKind = errors.New("unknown graph kind")

// Engine runs journaled membership changes against the service.
type Engine struct {
	SDK     *stormsdk.Storm
	Journal journal.Journal
	Log     *slog.Logger
}

func New(sdk *stormsdk.Storm, db *sql.DB) Engine {
	return Engine{
		SDK:     sdk,
		Journal: journal.Journal{DB: db},
		Log:     slog.Default().With("component", "engine"),
	}
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// Result is the outcome of a membership sync. Graph is the reloaded graph
// and is nil when the sync did not complete.
type Result struct {
	RunID  string
	Report *stormsdk.SyncReport
	Graph  model.GraphResource
}

// SyncMembership loads a graph, removes and adds the given compendia, syncs
// the change and returns the reloaded graph. Every sent operation is
// journaled, and so are the ones left unsent after a failure.
func (e Engine) SyncMembership(ctx context.Context, kind, projectID, graphID string, add, remove []string) (Result, error) {
	scope := e.SDK.Project(projectID)
	switch kind {
	case KindPipelines:
		return syncGraph[*model.Pipeline](ctx, e, kind, projectID, graphID, scope.Pipelines, add, remove)
	case KindWorkflows:
		return syncGraph[*model.Workflow](ctx, e, kind, projectID, graphID, scope.Workflows, add, remove)
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Resume retries what the latest failed sync of a graph left unresolved.
func (e Engine) Resume(ctx context.Context, kind, projectID, graphID string) (Result, error) {
	add, remove, err := e.Journal.Unresolved(ctx, kind, graphID)
	if err != nil {
		return Result{}, err
	}
	if len(add) == 0 && len(remove) == 0 {
		e.logger().Info("nothing to resume", "kind", kind, "graph", graphID)
		return Result{}, nil
	}
	return e.SyncMembership(ctx, kind, projectID, graphID, add, remove)
}

type mutableGraph interface {
	model.GraphResource
	AddCompendia(refs ...model.Ref)
	RemoveCompendium(ref model.Ref) error
}

type graphAPI[T mutableGraph] interface {
	Get(ctx context.Context, ref model.Ref) (T, error)
	SyncCompendia(ctx context.Context, graph T, observer stormsdk.SyncObserver) (*stormsdk.SyncReport, error)
	Reload(ctx context.Context, graph T) (T, error)
}

func syncGraph[T mutableGraph](ctx context.Context, e Engine, kind, projectID, graphID string, api graphAPI[T], add, remove []string) (Result, error) {
	g, err := api.Get(ctx, model.RawID(graphID))
	if err != nil {
		return Result{}, fmt.Errorf("load %s %s: %w", kind, graphID, err)
	}
	if g.IsFinished() {
		return Result{}, fmt.Errorf("%s %s: %w", kind, graphID, model.ErrGraphFinished)
	}
	for _, id := range remove {
		if err := g.RemoveCompendium(model.RawID(id)); err != nil {
			return Result{}, err
		}
	}
	members, err := model.ExtractIDs(g.Compendia())
	if err != nil {
		return Result{}, err
	}
	for _, id := range add {
		if !slices.Contains(members, id) {
			g.AddCompendia(model.RawID(id))
			members = append(members, id)
		}
	}

	run, err := e.Journal.Begin(ctx, kind, projectID, graphID)
	if err != nil {
		return Result{}, err
	}
	log := e.logger().With("run", run.ID, "kind", kind, "graph", graphID)
	obs := e.Journal.Observer(run.ID)
	report, syncErr := api.SyncCompendia(ctx, g, obs)
	if err := errors.Join(obs.Err(), e.Journal.Finish(ctx, run.ID, report, syncErr)); err != nil {
		log.Error("journal write failed", "err", err)
		syncErr = errors.Join(syncErr, err)
	}
	res := Result{RunID: run.ID, Report: report}
	if syncErr != nil {
		return res, syncErr
	}
	log.Info("synced", "applied", len(report.Applied))

	reloaded, err := api.Reload(ctx, g)
	if err != nil {
		return res, fmt.Errorf("reload %s %s: %w", kind, graphID, err)
	}
	res.Graph = reloaded
	return res, nil
}
