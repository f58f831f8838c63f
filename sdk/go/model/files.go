package model

import (
	"strings"

	"github.com/storm-platform/storm-go/sdk/go/document"
)

// File entry statuses reported by the service.
const (
	FileStatusPending   = "pending"
	FileStatusCompleted = "completed"
)

// CompendiumFiles is the files bucket of a compendium.
type CompendiumFiles struct {
	base
}

func NewCompendiumFiles(raw map[string]any) *CompendiumFiles {
	return &CompendiumFiles{newBase(raw)}
}

func (*CompendiumFiles) Type() ResourceType { return TypeCompendiumFiles }

func (f *CompendiumFiles) Enabled() bool { return f.doc.Bool("enabled") }

// Entries returns the file entries. A files document that was unwrapped from
// its envelope carries them under "entries" as well.
func (f *CompendiumFiles) Entries() []*CompendiumFileEntry {
	raw := f.doc.Slice("entries")
	out := make([]*CompendiumFileEntry, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, NewCompendiumFileEntry(m))
		}
	}
	return out
}

// Filenames returns the keys of every entry, in entry order.
func (f *CompendiumFiles) Filenames() []string {
	entries := f.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Filename()
	}
	return names
}

// Entry looks up an entry by filename.
func (f *CompendiumFiles) Entry(filename string) (*CompendiumFileEntry, bool) {
	for _, e := range f.Entries() {
		if e.Filename() == filename {
			return e, true
		}
	}
	return nil, false
}

func (f *CompendiumFiles) MarshalJSON() ([]byte, error) { return f.doc.MarshalJSON() }

// CompendiumFileEntry describes one file of a compendium.
type CompendiumFileEntry struct {
	base
}

func NewCompendiumFileEntry(raw map[string]any) *CompendiumFileEntry {
	return &CompendiumFileEntry{newBase(raw)}
}

func (e *CompendiumFileEntry) ID() string {
	if id := e.doc.String("file_id"); id != "" {
		return id
	}
	return e.doc.String("id")
}

func (e *CompendiumFileEntry) Filename() string { return e.doc.String("key") }
func (e *CompendiumFileEntry) Size() int64      { return document.Int64(e.doc, "size") }
func (e *CompendiumFileEntry) MimeType() string { return e.doc.String("mimetype") }
func (e *CompendiumFileEntry) Status() string   { return e.doc.String("status") }
func (e *CompendiumFileEntry) BucketID() string { return e.doc.String("bucket_id") }

// Checksum is the raw "algorithm:hex" value.
func (e *CompendiumFileEntry) Checksum() string { return e.doc.String("checksum") }

// ChecksumDigest returns the hex part of the checksum.
func (e *CompendiumFileEntry) ChecksumDigest() string {
	c := e.Checksum()
	if i := strings.LastIndex(c, ":"); i >= 0 {
		return c[i+1:]
	}
	return c
}

func (e *CompendiumFileEntry) IsCompleted() bool { return e.Status() == FileStatusCompleted }

func (e *CompendiumFileEntry) SelfURL() (string, error)    { return linkURL(e.doc, "links.self") }
func (e *CompendiumFileEntry) ContentURL() (string, error) { return linkURL(e.doc, "links.content") }
func (e *CompendiumFileEntry) CommitURL() (string, error)  { return linkURL(e.doc, "links.commit") }

func (e *CompendiumFileEntry) MarshalJSON() ([]byte, error) { return e.doc.MarshalJSON() }
