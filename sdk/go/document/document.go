// Package document provides the key-path addressable JSON document that backs
// every Storm resource model.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrAttributeNotAvailable is returned when a required path is absent.
var ErrAttributeNotAvailable = errors.New("attribute not available")

// FieldError reports a required field or link missing from a document.
type FieldError struct {
	Path string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s attribute not available for this object", e.Path)
}

func (e *FieldError) Unwrap() error { return ErrAttributeNotAvailable }

// Document is a JSON-object-shaped mapping addressed by dot-delimited paths
// such as "metadata.execution.data.inputs".
type Document struct {
	data map[string]any
}

// New wraps raw. A nil map yields an empty document. The map is not copied.
func New(raw map[string]any) *Document {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Document{data: raw}
}

// Parse decodes a JSON object into a document.
func Parse(b []byte) (*Document, error) {
	d := New(nil)
	if err := d.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return d, nil
}

// Raw returns the live underlying map.
func (d *Document) Raw() map[string]any {
	if d.data == nil {
		d.data = map[string]any{}
	}
	return d.data
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	return New(CloneMap(d.Raw()))
}

// Has reports whether path resolves to a value (null included).
func (d *Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Get resolves path. Integer segments index into arrays.
func (d *Document) Get(path string) (any, bool) {
	var cur any = d.Raw()
	for _, seg := range split(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// GetOr returns the value at path, or def when absent. It never writes.
func (d *Document) GetOr(path string, def any) any {
	if v, ok := d.Get(path); ok {
		return v
	}
	return def
}

// Require returns the value at path or a *FieldError.
func (d *Document) Require(path string) (any, error) {
	v, ok := d.Get(path)
	if !ok {
		return nil, &FieldError{Path: path}
	}
	return v, nil
}

// Set stores v at path, creating intermediate objects. Intermediate values
// that are not objects are replaced.
func (d *Document) Set(path string, v any) {
	segs := split(path)
	if len(segs) == 0 {
		return
	}
	cur := d.Raw()
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

// Delete removes path if present.
func (d *Document) Delete(path string) {
	segs := split(path)
	if len(segs) == 0 {
		return
	}
	parent := d.Raw()
	for _, seg := range segs[:len(segs)-1] {
		next, ok := parent[seg].(map[string]any)
		if !ok {
			return
		}
		parent = next
	}
	delete(parent, segs[len(segs)-1])
}

// String returns the string at path or "".
func (d *Document) String(path string) string {
	s, _ := d.GetOr(path, "").(string)
	return s
}

// Bool returns the bool at path or false.
func (d *Document) Bool(path string) bool {
	b, _ := d.GetOr(path, false).(bool)
	return b
}

// Map returns the object at path or nil.
func (d *Document) Map(path string) map[string]any {
	m, _ := d.GetOr(path, nil).(map[string]any)
	return m
}

// Slice returns the array at path or nil.
func (d *Document) Slice(path string) []any {
	s, _ := d.GetOr(path, nil).([]any)
	return s
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Raw())
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	d.data = raw
	if d.data == nil {
		d.data = map[string]any{}
	}
	return nil
}

func split(path string) []string {
	path = strings.Trim(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
