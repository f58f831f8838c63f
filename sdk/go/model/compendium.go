package model

import (
	"github.com/storm-platform/storm-go/sdk/go/document"
)

const (
	inputsPath     = "metadata.execution.data.inputs"
	outputsPath    = "metadata.execution.data.outputs"
	descriptorPath = "metadata.execution.environment.descriptor"
	envMetaPath    = "metadata.execution.environment.meta"
)

var (
	inputsField     = document.Lazy(inputsPath, []any{})
	outputsField    = document.Lazy(outputsPath, []any{})
	descriptorField = document.Lazy(descriptorPath, map[string]any{})
	envMetaField    = document.Plain[map[string]any](envMetaPath, nil)
	errorsField     = document.Plain("errors", []any{})
)

// ExecutionDescriptor names the tool used to reproduce a compendium
// execution. Extra keys are preserved.
type ExecutionDescriptor struct {
	Name    string
	URI     string
	Version string
	Extra   map[string]any
}

func descriptorFromMap(m map[string]any) ExecutionDescriptor {
	d := ExecutionDescriptor{Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case "name":
			d.Name, _ = v.(string)
		case "uri":
			d.URI, _ = v.(string)
		case "version":
			d.Version, _ = v.(string)
		default:
			d.Extra[k] = document.CloneValue(v)
		}
	}
	return d
}

func (d ExecutionDescriptor) toMap() map[string]any {
	m := document.CloneMap(d.Extra)
	if m == nil {
		m = map[string]any{}
	}
	if d.Name != "" {
		m["name"] = d.Name
	}
	if d.URI != "" {
		m["uri"] = d.URI
	}
	if d.Version != "" {
		m["version"] = d.Version
	}
	return m
}

// Compendium holds the fields shared by drafts and records.
type Compendium struct {
	base
}

func (c *Compendium) Title() string     { return titleField.Get(c.doc) }
func (c *Compendium) SetTitle(s string) { titleField.Set(c.doc, s) }

func (c *Compendium) Description() string     { return descriptionField.Get(c.doc) }
func (c *Compendium) SetDescription(s string) { descriptionField.Set(c.doc, s) }

// Inputs returns the live input file references. Elements are either bare
// strings or {"key": ...} objects; reading initializes the list.
func (c *Compendium) Inputs() []any { return inputsField.Get(c.doc) }

// Outputs is the output counterpart of Inputs.
func (c *Compendium) Outputs() []any { return outputsField.Get(c.doc) }

// AddInputs appends file references (strings or {"key": ...} objects).
func (c *Compendium) AddInputs(refs ...any) {
	inputsField.Set(c.doc, append(c.Inputs(), refs...))
}

func (c *Compendium) AddOutputs(refs ...any) {
	outputsField.Set(c.doc, append(c.Outputs(), refs...))
}

func (c *Compendium) SetInputs(refs []any) {
	inputsField.Set(c.doc, append([]any{}, refs...))
}

func (c *Compendium) SetOutputs(refs []any) {
	outputsField.Set(c.doc, append([]any{}, refs...))
}

func (c *Compendium) Descriptor() ExecutionDescriptor {
	return descriptorFromMap(descriptorField.Get(c.doc))
}

func (c *Compendium) SetDescriptor(d ExecutionDescriptor) {
	descriptorField.Set(c.doc, d.toMap())
}

// Metadata is the free-form execution environment metadata.
func (c *Compendium) Metadata() map[string]any { return envMetaField.Get(c.doc) }

func (c *Compendium) SetMetadata(m map[string]any) { envMetaField.Set(c.doc, m) }

func (c *Compendium) Kind() Kind     { return KindOf(c.doc) }
func (c *Compendium) IsDraft() bool  { return c.Kind() == KindDraft }
func (c *Compendium) IsRecord() bool { return c.Kind() == KindRecord }

// Links exposes the link bundle under the compendium's kind schema.
func (c *Compendium) Links() Links {
	return Links{doc: c.doc, kind: c.Kind()}
}

// WireJSON returns the wire form: a deep copy where every bare string file
// reference in inputs and outputs becomes {"key": s}. The live document is
// left untouched.
func (c *Compendium) WireJSON() map[string]any {
	wire := c.doc.Clone()
	for _, path := range []string{inputsPath, outputsPath} {
		refs, ok := wire.GetOr(path, nil).([]any)
		if !ok {
			continue
		}
		wire.Set(path, normalizeFileRefs(refs))
	}
	return wire.Raw()
}

func normalizeFileRefs(refs []any) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		if s, ok := r.(string); ok {
			out[i] = map[string]any{"key": s}
			continue
		}
		out[i] = r
	}
	return out
}

// CompendiumDraft is an unpublished, editable compendium.
type CompendiumDraft struct {
	Compendium
}

func NewCompendiumDraft(raw map[string]any) *CompendiumDraft {
	return &CompendiumDraft{Compendium{newBase(raw)}}
}

func (*CompendiumDraft) Type() ResourceType { return TypeCompendiumDraft }

// Errors lists the validation errors reported by the service for the draft.
func (d *CompendiumDraft) Errors() []any { return errorsField.Get(d.doc) }

func (d *CompendiumDraft) HasErrors() bool { return len(d.Errors()) > 0 }

func (d *CompendiumDraft) MarshalJSON() ([]byte, error) {
	return document.New(d.WireJSON()).MarshalJSON()
}

// CompendiumRecord is a published compendium snapshot.
type CompendiumRecord struct {
	Compendium
}

func NewCompendiumRecord(raw map[string]any) *CompendiumRecord {
	return &CompendiumRecord{Compendium{newBase(raw)}}
}

func (*CompendiumRecord) Type() ResourceType { return TypeCompendiumRecord }

func (r *CompendiumRecord) MarshalJSON() ([]byte, error) {
	return document.New(r.WireJSON()).MarshalJSON()
}

// CompendiumResource is satisfied by *CompendiumDraft and *CompendiumRecord.
type CompendiumResource interface {
	Resource
	ID() string
	Kind() Kind
	Links() Links
	WireJSON() map[string]any
}

// NewCompendium builds a draft or a record depending on is_published.
func NewCompendium(raw map[string]any) CompendiumResource {
	if IsDraft(raw) {
		return NewCompendiumDraft(raw)
	}
	return NewCompendiumRecord(raw)
}

// Links is the link bundle of a compendium, validated against its kind.
type Links struct {
	doc  *document.Document
	kind Kind
}

func (l Links) Kind() Kind { return l.kind }

// Spec returns how the named link is followed. Undeclared names fail
// without consulting the document.
func (l Links) Spec(name string) (LinkSpec, error) {
	return l.kind.LinkFor(name)
}

// URL returns the link target, or a *document.FieldError when the document
// does not carry it.
func (l Links) URL(name string) (string, error) {
	if _, err := l.Spec(name); err != nil {
		return "", err
	}
	return linkURL(l.doc, "links."+name)
}

func linkURL(doc *document.Document, path string) (string, error) {
	v, err := doc.Require(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &document.FieldError{Path: path}
	}
	return s, nil
}
