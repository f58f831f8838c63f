// Package journal keeps a local record of compendia sync runs so that a
// partially applied sync can be inspected and resumed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	stormsdk "github.com/storm-platform/storm-go/sdk/go"
)

var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Op statuses.
const (
	OpApplied = "applied"
	OpFailed  = "failed"
	OpPending = "pending"
)

type Run struct {
	ID         string
	GraphKind  string
	ProjectID  string
	GraphID    string
	StartedAt  string
	FinishedAt string
	Status     string
}

type Entry struct {
	Seq          int64
	RunID        string
	TS           string
	Action       string
	CompendiumID string
	Status       string
	URL          string
	Error        string
}

type Journal struct {
	DB  *sql.DB
	Now func() time.Time
}

func (j Journal) now() string {
	if j.Now == nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return j.Now().UTC().Format(time.RFC3339Nano)
}

// Begin opens a run for a graph ("pipelines" or "workflows").
func (j Journal) Begin(ctx context.Context, graphKind, projectID, graphID string) (Run, error) {
	r := Run{
		ID:        uuid.NewString(),
		GraphKind: graphKind,
		ProjectID: projectID,
		GraphID:   graphID,
		StartedAt: j.now(),
		Status:    RunRunning,
	}
	_, err := j.DB.ExecContext(ctx, `INSERT INTO sync_runs(id,graph_kind,project_id,graph_id,started_at,status) VALUES (?,?,?,?,?,?)`,
		r.ID, r.GraphKind, r.ProjectID, r.GraphID, r.StartedAt, r.Status)
	if err != nil {
		return Run{}, fmt.Errorf("insert sync run: %w", err)
	}
	return r, nil
}

// Append records one operation of a run.
func (j Journal) Append(ctx context.Context, runID string, op stormsdk.SyncOp, status string) error {
	var errText any
	if op.Err != nil {
		errText = op.Err.Error()
	}
	_, err := j.DB.ExecContext(ctx, `INSERT INTO sync_ops(run_id,ts,action,compendium_id,status,url,error) VALUES (?,?,?,?,?,?,?)`,
		runID, j.now(), op.Action, op.CompendiumID, status, op.URL, errText)
	if err != nil {
		return fmt.Errorf("insert sync op: %w", err)
	}
	return nil
}

// Finish closes a run. Operations of report that were never sent are
// recorded as pending.
func (j Journal) Finish(ctx context.Context, runID string, report *stormsdk.SyncReport, syncErr error) error {
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := RunCompleted
	if syncErr != nil {
		status = RunFailed
	}
	if report != nil {
		for _, op := range report.Pending() {
			if report.Failed != nil && op.Action == report.Failed.Action && op.CompendiumID == report.Failed.CompendiumID {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO sync_ops(run_id,ts,action,compendium_id,status) VALUES (?,?,?,?,?)`,
				runID, j.now(), op.Action, op.CompendiumID, OpPending); err != nil {
				return fmt.Errorf("insert pending op: %w", err)
			}
		}
	}
	res, err := tx.ExecContext(ctx, `UPDATE sync_runs SET status=?, finished_at=? WHERE id=?`, status, j.now(), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync run %s: %w", runID, ErrNotFound)
	}
	return tx.Commit()
}

// Latest returns the most recent run of a graph.
func (j Journal) Latest(ctx context.Context, graphKind, graphID string) (Run, error) {
	row := j.DB.QueryRowContext(ctx, `SELECT id,graph_kind,project_id,graph_id,started_at,COALESCE(finished_at,''),status
FROM sync_runs WHERE graph_kind=? AND graph_id=? ORDER BY started_at DESC, rowid DESC LIMIT 1`, graphKind, graphID)
	var r Run
	err := row.Scan(&r.ID, &r.GraphKind, &r.ProjectID, &r.GraphID, &r.StartedAt, &r.FinishedAt, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// Entries lists the operations of a run in the order they were recorded.
func (j Journal) Entries(ctx context.Context, runID string) ([]Entry, error) {
	return j.query(ctx, `SELECT seq,run_id,ts,action,compendium_id,status,url,COALESCE(error,'') FROM sync_ops WHERE run_id=? ORDER BY seq`, runID)
}

// Tail lists the last limit operations across all runs, oldest first.
func (j Journal) Tail(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := j.query(ctx, `SELECT seq,run_id,ts,action,compendium_id,status,url,COALESCE(error,'') FROM sync_ops ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}

// Unresolved returns the ids the latest failed run of a graph still has to
// add and remove. A graph whose latest run completed has nothing unresolved.
func (j Journal) Unresolved(ctx context.Context, graphKind, graphID string) (add, remove []string, err error) {
	run, err := j.Latest(ctx, graphKind, graphID)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != RunFailed {
		return nil, nil, nil
	}
	entries, err := j.Entries(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.Status == OpApplied {
			continue
		}
		if e.Action == stormsdk.SyncAdd {
			add = append(add, e.CompendiumID)
		} else {
			remove = append(remove, e.CompendiumID)
		}
	}
	return add, remove, nil
}

func (j Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := j.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.RunID, &e.TS, &e.Action, &e.CompendiumID, &e.Status, &e.URL, &e.Error); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Observer journals the operations of one run as SyncCompendia reports
// them. Write failures are kept and returned by Err.
type Observer struct {
	j     Journal
	runID string

	mu  sync.Mutex
	err error
}

func (j Journal) Observer(runID string) *Observer {
	return &Observer{j: j, runID: runID}
}

func (o *Observer) ObserveSync(ctx context.Context, _ string, op stormsdk.SyncOp) {
	status := OpApplied
	if op.Err != nil {
		status = OpFailed
	}
	err := o.j.Append(ctx, o.runID, op, status)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil && o.err == nil {
		o.err = err
	}
}

func (o *Observer) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
