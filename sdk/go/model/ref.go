package model

import (
	"errors"
	"fmt"
)

// ErrUnsupportedReference is returned when a value cannot be resolved to a
// Storm WS id.
var ErrUnsupportedReference = errors.New("unsupported reference")

// ReferenceError describes a value that has no id extraction rule, or whose
// rule produced no id.
type ReferenceError struct {
	Value  any
	Reason string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("invalid reference %T: %s", e.Value, e.Reason)
}

func (e *ReferenceError) Unwrap() error { return ErrUnsupportedReference }

// Ref is anything accepted where the service expects an id: a raw id or one
// of the identified resources. The set is closed.
type Ref interface {
	isRef()
}

// RawID is an id string used as a reference.
type RawID string

func (RawID) isRef()                   {}
func (*Project) isRef()                {}
func (*CompendiumRecord) isRef()       {}
func (*Pipeline) isRef()               {}
func (*Workflow) isRef()               {}
func (*Deposit) isRef()                {}
func (*DepositPluginService) isRef()   {}
func (*Job) isRef()                    {}
func (*JobPluginService) isRef()       {}
func (*ExecutionJob) isRef()           {}
func (*ExecutionPluginService) isRef() {}

// ExtractID returns the canonical id of ref.
func ExtractID(ref Ref) (string, error) {
	var id string
	switch r := ref.(type) {
	case RawID:
		id = string(r)
	case *Project:
		id = nilSafeID(r)
	case *CompendiumRecord:
		id = nilSafeID(r)
	case *Pipeline:
		id = nilSafeID(r)
	case *Workflow:
		id = nilSafeID(r)
	case *Deposit:
		id = nilSafeID(r)
	case *DepositPluginService:
		id = nilSafeID(r)
	case *Job:
		id = nilSafeID(r)
	case *JobPluginService:
		id = nilSafeID(r)
	case *ExecutionJob:
		id = nilSafeID(r)
	case *ExecutionPluginService:
		id = nilSafeID(r)
	default:
		return "", &ReferenceError{Value: ref, Reason: "no id extraction rule"}
	}
	if id == "" {
		return "", &ReferenceError{Value: ref, Reason: "empty id"}
	}
	return id, nil
}

// ExtractAny accepts a string or a Ref. Everything else is rejected instead of
// being stringified.
func ExtractAny(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return ExtractID(RawID(t))
	case Ref:
		return ExtractID(t)
	}
	return "", &ReferenceError{Value: v, Reason: "no id extraction rule"}
}

// ExtractIDs extracts every ref, failing on the first invalid one.
func ExtractIDs(refs []Ref) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		id, err := ExtractID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Refs converts ids into references.
func Refs(ids ...string) []Ref {
	out := make([]Ref, len(ids))
	for i, id := range ids {
		out[i] = RawID(id)
	}
	return out
}

type identified interface {
	ID() string
}

func nilSafeID[T any, P interface {
	*T
	identified
}](p P) string {
	if p == nil {
		return ""
	}
	return p.ID()
}

// idFromValue maps a document-held reference (an id string or an expanded
// object carrying an id) to its id.
func idFromValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", &ReferenceError{Value: v, Reason: "empty id"}
		}
		return t, nil
	case map[string]any:
		if id, ok := t["id"].(string); ok && id != "" {
			return id, nil
		}
		return "", &ReferenceError{Value: v, Reason: "object without id"}
	case Ref:
		return ExtractID(t)
	}
	return "", &ReferenceError{Value: v, Reason: "no id extraction rule"}
}
