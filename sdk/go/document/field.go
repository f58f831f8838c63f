package document

import "encoding/json"

// Field is a declared accessor: a path plus the default used when the path
// is absent. With CreateIfMissing, reading an absent path stores a copy of
// the default first, so later serialization sees the initialized structure.
type Field[T any] struct {
	Path            string
	Default         T
	CreateIfMissing bool
}

// Lazy declares a read-triggers-write field.
func Lazy[T any](path string, def T) Field[T] {
	return Field[T]{Path: path, Default: def, CreateIfMissing: true}
}

// Plain declares a field that reads its default without writing it.
func Plain[T any](path string, def T) Field[T] {
	return Field[T]{Path: path, Default: def}
}

func (f Field[T]) Get(d *Document) T {
	v, ok := d.Get(f.Path)
	if !ok {
		if !f.CreateIfMissing {
			return f.Default
		}
		v = CloneValue(any(f.Default))
		d.Set(f.Path, v)
	}
	if t, ok := v.(T); ok {
		return t
	}
	return f.Default
}

func (f Field[T]) Set(d *Document, v T) {
	d.Set(f.Path, any(v))
}

// Int64 reads a JSON number at path.
func Int64(d *Document, path string) int64 {
	switch n := d.GetOr(path, nil).(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

// CloneMap deep-copies a JSON object.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values. Other values are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
