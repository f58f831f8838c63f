package stormsdk

import (
	"context"
	"fmt"
	"net/url"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

// ProjectService manages projects.
type ProjectService struct {
	resourceService[*model.Project]
}

// Search lists the projects visible to the caller.
func (p *ProjectService) Search(ctx context.Context, params url.Values) ([]*model.Project, error) {
	return p.search(ctx, p.url, params)
}

// Create stores a new project from its metadata.
func (p *ProjectService) Create(ctx context.Context, project *model.Project) (*model.Project, error) {
	return p.create(ctx, map[string]any{"metadata": project.Metadata()})
}

// Get fetches the project identified by ref.
func (p *ProjectService) Get(ctx context.Context, ref model.Ref) (*model.Project, error) {
	return p.get(ctx, ref)
}

// Delete removes the project identified by ref.
func (p *ProjectService) Delete(ctx context.Context, ref model.Ref) error {
	return p.delete(ctx, ref)
}

// runnable is a deposit, job or execution job.
type runnable interface {
	model.Resource
	model.Ref
	ID() string
	WireJSON() (map[string]any, error)
}

// runnerService is shared by deposits, jobs and executions. S is the plugin
// service type the collection runs on.
type runnerService[T runnable, S model.Resource] struct {
	resourceService[T]
	buildService func(map[string]any) S
}

func newRunnerService[T runnable, S model.Resource](s *Storm, collection string, build func(map[string]any) T, buildService func(map[string]any) S) runnerService[T, S] {
	return runnerService[T, S]{resourceService: newResourceService(s, collection, build), buildService: buildService}
}

// ListServices lists the plugin services available to the collection.
func (r runnerService[T, S]) ListServices(ctx context.Context) ([]S, error) {
	return listServices(ctx, r.s, r.url, r.buildService)
}

// Search lists the collection.
func (r runnerService[T, S]) Search(ctx context.Context, params url.Values) ([]T, error) {
	return r.search(ctx, r.url, params)
}

// Create stores v. References are sent as ids.
func (r runnerService[T, S]) Create(ctx context.Context, v T) (T, error) {
	body, err := v.WireJSON()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("create: %w", err)
	}
	return r.create(ctx, body)
}

// Get fetches the resource identified by ref.
func (r runnerService[T, S]) Get(ctx context.Context, ref model.Ref) (T, error) {
	return r.get(ctx, ref)
}

// Save writes v through its id.
func (r runnerService[T, S]) Save(ctx context.Context, v T) (T, error) {
	body, err := v.WireJSON()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("save %s: %w", v.ID(), err)
	}
	return r.save(ctx, v, body)
}

// Delete removes the resource identified by ref.
func (r runnerService[T, S]) Delete(ctx context.Context, ref model.Ref) error {
	return r.delete(ctx, ref)
}

// Start asks the service to run the resource and returns its new state.
func (r runnerService[T, S]) Start(ctx context.Context, ref model.Ref) (T, error) {
	return r.action(ctx, ref, "start")
}

// Cancel stops a running resource and returns its new state.
func (r runnerService[T, S]) Cancel(ctx context.Context, ref model.Ref) (T, error) {
	return r.action(ctx, ref, "cancel")
}

// DepositService manages deposits of finished pipelines to external
// repositories.
type DepositService struct {
	runnerService[*model.Deposit, *model.DepositPluginService]
}

// JobService manages pipeline jobs.
type JobService struct {
	runnerService[*model.Job, *model.JobPluginService]
}

// ExecutionService manages workflow executions.
type ExecutionService struct {
	runnerService[*model.ExecutionJob, *model.ExecutionPluginService]
}
