// Package model maps Storm WS documents onto typed resources.
package model

import (
	"fmt"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// ErrAttributeNotAvailable is returned when a required field or link is absent.
var ErrAttributeNotAvailable = document.ErrAttributeNotAvailable

// ResourceType names the typed model a document resolves into.
type ResourceType int

const (
	TypeCompendiumDraft ResourceType = iota + 1
	TypeCompendiumRecord
	TypeCompendiumFiles
	TypeProject
	TypePipeline
	TypeWorkflow
	TypeDeposit
	TypeDepositPluginService
	TypeJob
	TypeJobPluginService
	TypeExecutionJob
	TypeExecutionPluginService
)

func (t ResourceType) String() string {
	switch t {
	case TypeCompendiumDraft:
		return "CompendiumDraft"
	case TypeCompendiumRecord:
		return "CompendiumRecord"
	case TypeCompendiumFiles:
		return "CompendiumFiles"
	case TypeProject:
		return "Project"
	case TypePipeline:
		return "Pipeline"
	case TypeWorkflow:
		return "Workflow"
	case TypeDeposit:
		return "Deposit"
	case TypeDepositPluginService:
		return "DepositPluginService"
	case TypeJob:
		return "Job"
	case TypeJobPluginService:
		return "JobPluginService"
	case TypeExecutionJob:
		return "ExecutionJob"
	case TypeExecutionPluginService:
		return "ExecutionPluginService"
	}
	return fmt.Sprintf("ResourceType(%d)", int(t))
}

// Resource is implemented by every model backed by a document.
type Resource interface {
	Type() ResourceType
	Document() *document.Document
}

// Build constructs the model for t from raw. The raw map is owned by the
// returned resource afterwards.
func Build(t ResourceType, raw map[string]any) (Resource, error) {
	switch t {
	case TypeCompendiumDraft:
		return NewCompendiumDraft(raw), nil
	case TypeCompendiumRecord:
		return NewCompendiumRecord(raw), nil
	case TypeCompendiumFiles:
		return NewCompendiumFiles(raw), nil
	case TypeProject:
		return NewProject(raw), nil
	case TypePipeline:
		return NewPipeline(raw), nil
	case TypeWorkflow:
		return NewWorkflow(raw), nil
	case TypeDeposit:
		return NewDeposit(raw), nil
	case TypeDepositPluginService:
		return NewDepositPluginService(raw), nil
	case TypeJob:
		return NewJob(raw), nil
	case TypeJobPluginService:
		return NewJobPluginService(raw), nil
	case TypeExecutionJob:
		return NewExecutionJob(raw), nil
	case TypeExecutionPluginService:
		return NewExecutionPluginService(raw), nil
	}
	return nil, fmt.Errorf("unknown resource type %s", t)
}

// base carries the document shared by every model.
type base struct {
	doc *document.Document
}

func newBase(raw map[string]any) base {
	return base{doc: document.New(raw)}
}

func (b base) Document() *document.Document { return b.doc }

func (b base) ID() string { return idField.Get(b.doc) }

var (
	idField          = document.Plain("id", "")
	titleField       = document.Plain("metadata.title", "")
	descriptionField = document.Plain("metadata.description", "")
	metadataField    = document.Plain[map[string]any]("metadata", nil)
	isFinishedField  = document.Plain("is_finished", false)
	statusField      = document.Plain("status", "")
)

// serviceInfo backs the plugin service models (deposit, job and execution
// targets), which only expose descriptive metadata.
type serviceInfo struct {
	base
}

func (s serviceInfo) Title() string                { return titleField.Get(s.doc) }
func (s serviceInfo) Description() string          { return descriptionField.Get(s.doc) }
func (s serviceInfo) Metadata() map[string]any     { return metadataField.Get(s.doc) }
func (s serviceInfo) MarshalJSON() ([]byte, error) { return s.doc.MarshalJSON() }
