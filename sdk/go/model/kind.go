package model

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// Kind is the lifecycle state of a compendium document.
type Kind int

const (
	KindDraft Kind = iota + 1
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindDraft:
		return "draft"
	case KindRecord:
		return "record"
	}
	return "none"
}

var isPublishedField = document.Plain("is_published", false)

// KindOf classifies a document: a draft iff is_published is absent or false.
func KindOf(doc *document.Document) Kind {
	if isPublishedField.Get(doc) {
		return KindRecord
	}
	return KindDraft
}

// IsDraft reports whether the raw document is draft-shaped.
func IsDraft(raw map[string]any) bool { return KindOf(document.New(raw)) == KindDraft }

// IsRecord reports whether the raw document is a published record.
func IsRecord(raw map[string]any) bool { return !IsDraft(raw) }

// Operation is a lifecycle operation on a compendium.
type Operation string

const (
	OpCreate      Operation = "create"
	OpSave        Operation = "save"
	OpPublish     Operation = "publish"
	OpNewVersion  Operation = "new_version"
	OpDefineFiles Operation = "define_files"
	OpUploadFiles Operation = "upload_files"
	OpCommitFiles Operation = "commit_files"
	OpDeleteFiles Operation = "delete_files"
)

// ErrInvalidTransition is returned for operations not allowed from a state.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError describes a rejected lifecycle operation.
type TransitionError struct {
	From Kind
	Op   Operation
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed on a %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Transition returns the state reached by applying op in state from. A zero
// from means no document exists yet.
func Transition(from Kind, op Operation) (Kind, error) {
	switch from {
	case 0:
		if op == OpCreate {
			return KindDraft, nil
		}
	case KindDraft:
		switch op {
		case OpSave, OpDefineFiles, OpUploadFiles, OpCommitFiles, OpDeleteFiles:
			return KindDraft, nil
		case OpPublish:
			return KindRecord, nil
		}
	case KindRecord:
		if op == OpNewVersion {
			return KindDraft, nil
		}
	}
	return from, &TransitionError{From: from, Op: op}
}

// Link names declared by the compendium link schemas.
const (
	LinkSelf     = "self"
	LinkLatest   = "latest"
	LinkDraft    = "draft"
	LinkVersions = "versions"
	LinkFiles    = "files"
	LinkPublish  = "publish"
)

// LinkSpec is how a named link is followed and what it resolves into.
type LinkSpec struct {
	Method string
	Result ResourceType
}

var (
	draftLinks = map[string]LinkSpec{
		LinkSelf:     {http.MethodGet, TypeCompendiumDraft},
		LinkLatest:   {http.MethodGet, TypeCompendiumDraft},
		LinkDraft:    {http.MethodGet, TypeCompendiumDraft},
		LinkVersions: {http.MethodGet, TypeCompendiumDraft},
		LinkFiles:    {http.MethodGet, TypeCompendiumFiles},
		LinkPublish:  {http.MethodPost, TypeCompendiumRecord},
	}
	recordLinks = map[string]LinkSpec{
		LinkSelf:     {http.MethodGet, TypeCompendiumRecord},
		LinkLatest:   {http.MethodGet, TypeCompendiumRecord},
		LinkDraft:    {http.MethodPost, TypeCompendiumDraft},
		LinkVersions: {http.MethodGet, TypeCompendiumDraft},
		LinkFiles:    {http.MethodGet, TypeCompendiumFiles},
	}
)

// Links returns the link schema of the kind.
func (k Kind) Links() map[string]LinkSpec {
	switch k {
	case KindDraft:
		return draftLinks
	case KindRecord:
		return recordLinks
	}
	return nil
}

// ErrUndeclaredLink is returned for link names outside a schema.
var ErrUndeclaredLink = errors.New("undeclared link")

// LinkFor looks up name in the kind's schema.
func (k Kind) LinkFor(name string) (LinkSpec, error) {
	spec, ok := k.Links()[name]
	if !ok {
		return LinkSpec{}, fmt.Errorf("%w: %q on a %s", ErrUndeclaredLink, name, k)
	}
	return spec, nil
}
