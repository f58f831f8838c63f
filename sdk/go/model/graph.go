package model

import (
	"errors"
	"slices"
	"sort"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// Graph link names.
const (
	LinkAddCompendium    = "actions.add-compendium"
	LinkDeleteCompendium = "actions.delete-compendium"
)

// ErrGraphFinished is returned for membership changes on a finished graph.
var ErrGraphFinished = errors.New("graph is finished")

var (
	versionField = document.Plain[any]("metadata.version", nil)
	graphField   = document.Plain[map[string]any]("graph", nil)
)

// graph is the state shared by pipelines and workflows: a compendia DAG whose
// membership is tracked as a frozen original and a mutable working copy.
type graph struct {
	base
	original []Ref
	current  []Ref
}

func newGraph(raw map[string]any) graph {
	g := graph{base: newBase(raw)}
	g.original = Refs(nodeIDs(g.doc)...)
	g.current = slices.Clone(g.original)
	return g
}

// nodeIDs returns the graph node keys in sorted order. Older service
// versions nest the graph under metadata.
func nodeIDs(doc *document.Document) []string {
	nodes := doc.Map("graph.nodes")
	if nodes == nil {
		nodes = doc.Map("metadata.graph.nodes")
	}
	ids := make([]string, 0, len(nodes))
	for k := range nodes {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

func (g *graph) Title() string            { return titleField.Get(g.doc) }
func (g *graph) SetTitle(s string)        { titleField.Set(g.doc, s) }
func (g *graph) Description() string      { return descriptionField.Get(g.doc) }
func (g *graph) SetDescription(s string)  { descriptionField.Set(g.doc, s) }
func (g *graph) Metadata() map[string]any { return metadataField.Get(g.doc) }
func (g *graph) IsFinished() bool         { return isFinishedField.Get(g.doc) }

// Version is metadata.version as sent by the service (number or string).
func (g *graph) Version() any { return versionField.Get(g.doc) }

// Graph returns the raw DAG.
func (g *graph) Graph() map[string]any {
	if m := graphField.Get(g.doc); m != nil {
		return m
	}
	return g.doc.Map("metadata.graph")
}

// Original returns a copy of the membership loaded at construction.
func (g *graph) Original() []Ref { return slices.Clone(g.original) }

// Compendia returns the working membership.
func (g *graph) Compendia() []Ref { return g.current }

// SetCompendia replaces the working membership.
func (g *graph) SetCompendia(refs []Ref) { g.current = slices.Clone(refs) }

// AddCompendia appends to the working membership.
func (g *graph) AddCompendia(refs ...Ref) { g.current = append(g.current, refs...) }

// RemoveCompendium drops every working entry resolving to ref's id.
func (g *graph) RemoveCompendium(ref Ref) error {
	id, err := ExtractID(ref)
	if err != nil {
		return err
	}
	kept := g.current[:0:0]
	for _, r := range g.current {
		if rid, err := ExtractID(r); err == nil && rid == id {
			continue
		}
		kept = append(kept, r)
	}
	g.current = kept
	return nil
}

// Diff computes the membership change since load.
func (g *graph) Diff() (DiffResult, error) { return Diff(g.original, g.current) }

func (g *graph) SelfURL() (string, error) { return linkURL(g.doc, "links.self") }

func (g *graph) VersionsURL() (string, error) { return linkURL(g.doc, "links.versions") }

func (g *graph) AddCompendiumURL() (string, error) {
	return linkURL(g.doc, "links."+LinkAddCompendium)
}

func (g *graph) DeleteCompendiumURL() (string, error) {
	return linkURL(g.doc, "links."+LinkDeleteCompendium)
}

func (g *graph) MarshalJSON() ([]byte, error) { return g.doc.MarshalJSON() }

// Pipeline is a DAG of published compendia describing a processing flow.
type Pipeline struct {
	graph
}

func NewPipeline(raw map[string]any) *Pipeline { return &Pipeline{newGraph(raw)} }

func (*Pipeline) Type() ResourceType { return TypePipeline }

// Workflow is the workflow flavour of Pipeline, executed by ExecutionJobs.
type Workflow struct {
	graph
}

func NewWorkflow(raw map[string]any) *Workflow { return &Workflow{newGraph(raw)} }

func (*Workflow) Type() ResourceType { return TypeWorkflow }

// GraphResource is satisfied by *Pipeline and *Workflow.
type GraphResource interface {
	Resource
	Ref
	ID() string
	Metadata() map[string]any
	IsFinished() bool
	Original() []Ref
	Compendia() []Ref
	Diff() (DiffResult, error)
	SelfURL() (string, error)
	VersionsURL() (string, error)
	AddCompendiumURL() (string, error)
	DeleteCompendiumURL() (string, error)
}
