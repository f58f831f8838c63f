// Package stormsdk is a client for the Storm WS research data management
// service: projects, compendia, pipelines, workflows, deposits and jobs.
package stormsdk

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/storm-platform/storm-go/sdk/go/model"
	"github.com/storm-platform/storm-go/sdk/go/transport"
)

// Storm is the entry point of the SDK. It is safe for concurrent use as long
// as the Requester is.
type Storm struct {
	url   string
	req   transport.Requester
	log   *slog.Logger
	cache *searchCache
}

// Option configures a Storm client.
type Option func(*Storm)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storm) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSearchCache memoizes search results in an LRU of size entries.
// Searching never depends on it; a size of zero disables it.
func WithSearchCache(size int) Option {
	return func(s *Storm) {
		s.cache = newSearchCache(size)
	}
}

// New creates a client for the service rooted at serviceURL.
func New(serviceURL string, req transport.Requester, opts ...Option) *Storm {
	s := &Storm{
		url: strings.TrimRight(serviceURL, "/"),
		req: req,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "stormsdk")
	return s
}

// URL is the service root.
func (s *Storm) URL() string { return s.url }

// Projects is the project collection.
func (s *Storm) Projects() *ProjectService {
	return &ProjectService{newResourceService(s, s.endpoint("projects"), model.NewProject)}
}

// ProjectScope groups the services bound to one project.
type ProjectScope struct {
	ID        string
	Drafts    *DraftService
	Records   *RecordService
	Files     *FileService
	Search    *SearchService
	Pipelines *PipelineService
	Workflows *WorkflowService
}

// Project returns the services of the project with the given id.
func (s *Storm) Project(id string) ProjectScope {
	base := s.endpoint("projects", id)
	compendia := joinURL(base, "compendia")
	return ProjectScope{
		ID:        id,
		Drafts:    &DraftService{s: s, url: compendia},
		Records:   &RecordService{s: s, url: compendia},
		Files:     &FileService{s: s},
		Search:    &SearchService{s: s, url: compendia},
		Pipelines: &PipelineService{newGraphService(s, joinURL(base, "pipelines"), model.NewPipeline)},
		Workflows: &WorkflowService{newGraphService(s, joinURL(base, "workflows"), model.NewWorkflow)},
	}
}

// Deposits is the deposit collection.
func (s *Storm) Deposits() *DepositService {
	return &DepositService{newRunnerService(s, s.endpoint("deposits"), model.NewDeposit, model.NewDepositPluginService)}
}

// Jobs is the pipeline job collection.
func (s *Storm) Jobs() *JobService {
	return &JobService{newRunnerService(s, s.endpoint("jobs"), model.NewJob, model.NewJobPluginService)}
}

// Executions is the workflow execution collection.
func (s *Storm) Executions() *ExecutionService {
	return &ExecutionService{newRunnerService(s, s.endpoint("executions"), model.NewExecutionJob, model.NewExecutionPluginService)}
}

func (s *Storm) endpoint(parts ...string) string { return joinURL(s.url, parts...) }

// joinURL appends escaped path segments to base.
func joinURL(base string, parts ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
