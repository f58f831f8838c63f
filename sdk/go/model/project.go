package model

import "github.com/storm-platform/storm-go/sdk/go/document"

// Project groups the people, data and software of a research effort.
type Project struct {
	base
}

func NewProject(raw map[string]any) *Project { return &Project{newBase(raw)} }

func (*Project) Type() ResourceType { return TypeProject }

func (p *Project) Title() string            { return titleField.Get(p.doc) }
func (p *Project) Description() string      { return descriptionField.Get(p.doc) }
func (p *Project) Metadata() map[string]any { return metadataField.Get(p.doc) }
func (p *Project) IsFinished() bool         { return isFinishedField.Get(p.doc) }
func (p *Project) RevisionID() int64        { return document.Int64(p.doc, "revision_id") }

func (p *Project) SelfURL() (string, error) { return linkURL(p.doc, "links.self") }

func (p *Project) MarshalJSON() ([]byte, error) { return p.doc.MarshalJSON() }
