package model

import (
	"fmt"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// runner holds what Job and ExecutionJob share: a service, a project and
// the graph being run.
type runner struct {
	base
	graphKey string
}

func (r runner) Status() string    { return statusField.Get(r.doc) }
func (r runner) Service() any      { return r.doc.GetOr("service", nil) }
func (r runner) ProjectID() string { return r.refString("project_id") }

func (r runner) ServiceID() (string, error) { return idFromValue(r.Service()) }

func (r runner) setRef(key string, ref Ref) error {
	id, err := ExtractID(ref)
	if err != nil {
		return err
	}
	r.doc.Set(key, id)
	return nil
}

func (r runner) refString(key string) string {
	id, err := idFromValue(r.doc.GetOr(key, nil))
	if err != nil {
		return ""
	}
	return id
}

func (r runner) SetService(ref Ref) error { return r.setRef("service", ref) }
func (r runner) SetProject(ref Ref) error { return r.setRef("project_id", ref) }

// SelfURL is the job's own link, when the service provides one.
func (r runner) SelfURL() (string, error) { return linkURL(r.doc, "links.self") }

// WireJSON returns a copy with every reference reduced to its id.
func (r runner) WireJSON() (map[string]any, error) {
	wire := r.doc.Clone()
	for _, key := range []string{"service", r.graphKey, "project_id"} {
		v, ok := wire.Get(key)
		if !ok {
			continue
		}
		id, err := idFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		wire.Set(key, id)
	}
	return wire.Raw(), nil
}

func (r runner) MarshalJSON() ([]byte, error) {
	wire, err := r.WireJSON()
	if err != nil {
		return nil, err
	}
	return document.New(wire).MarshalJSON()
}

// Job reruns a finished pipeline on a job service.
type Job struct {
	runner
}

func NewJob(raw map[string]any) *Job {
	return &Job{runner{base: newBase(raw), graphKey: "pipeline_id"}}
}

func (*Job) Type() ResourceType { return TypeJob }

func (j *Job) PipelineID() string        { return j.refString("pipeline_id") }
func (j *Job) SetPipeline(ref Ref) error { return j.setRef("pipeline_id", ref) }

// JobPluginService is a service able to run pipeline jobs.
type JobPluginService struct {
	serviceInfo
}

func NewJobPluginService(raw map[string]any) *JobPluginService {
	return &JobPluginService{serviceInfo{newBase(raw)}}
}

func (*JobPluginService) Type() ResourceType { return TypeJobPluginService }

// ExecutionJob reruns a finished workflow on an execution service.
type ExecutionJob struct {
	runner
}

func NewExecutionJob(raw map[string]any) *ExecutionJob {
	return &ExecutionJob{runner{base: newBase(raw), graphKey: "workflow_id"}}
}

func (*ExecutionJob) Type() ResourceType { return TypeExecutionJob }

func (j *ExecutionJob) WorkflowID() string        { return j.refString("workflow_id") }
func (j *ExecutionJob) SetWorkflow(ref Ref) error { return j.setRef("workflow_id", ref) }

// ExecutionPluginService is a service able to run workflow executions.
type ExecutionPluginService struct {
	serviceInfo
}

func NewExecutionPluginService(raw map[string]any) *ExecutionPluginService {
	return &ExecutionPluginService{serviceInfo{newBase(raw)}}
}

func (*ExecutionPluginService) Type() ResourceType { return TypeExecutionPluginService }
