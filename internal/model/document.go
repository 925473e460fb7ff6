package model

import (
	"fmt"
	"path/filepath"
)

// Document owns a set of objects and is the unit of independent load/save.
// An unsaved document has no file path yet and is identified by its ID. A
// loading document defers link resolution; a partial document deliberately
// holds only a subset of its objects.
type Document struct {
	arena   *Arena
	id      string
	path    string // workspace-relative file path, empty while unsaved
	stamp   string // last-modified stamp at load/save time
	loading bool
	partial bool
	objects map[string]*Object
	order   []string
}

// NewDocument creates an empty, unsaved document identified by id.
func NewDocument(arena *Arena, id string) *Document {
	return &Document{
		arena:   arena,
		id:      id,
		objects: make(map[string]*Object),
	}
}

// ID returns the document identity, stable across saves.
func (d *Document) ID() string { return d.id }

// SetID restores the persisted identity when reading a document from disk.
func (d *Document) SetID(id string) { d.id = id }

// Path returns the document's file path, or "" while unsaved.
func (d *Document) Path() string { return d.path }

// SetPath records the file path after a save or load.
func (d *Document) SetPath(p string) { d.path = p }

// Unsaved reports whether the document has no file path yet.
func (d *Document) Unsaved() bool { return d.path == "" }

// Stamp returns the last-modified stamp captured at load/save time.
func (d *Document) Stamp() string { return d.stamp }

// SetStamp records the last-modified stamp.
func (d *Document) SetStamp(s string) { d.stamp = s }

// Loading reports whether the document is being restored; link resolution is
// deferred while true.
func (d *Document) Loading() bool { return d.loading }

// SetLoading toggles the loading state.
func (d *Document) SetLoading(v bool) { d.loading = v }

// Partial reports whether only a subset of objects is loaded.
func (d *Document) Partial() bool { return d.partial }

// SetPartial toggles the partial state.
func (d *Document) SetPartial(v bool) { d.partial = v }

// DisplayName returns the path when saved, else the document ID.
func (d *Document) DisplayName() string {
	if d.path != "" {
		return d.path
	}
	return d.id
}

// Dir returns the directory of the document's file path.
func (d *Document) Dir() string {
	if d.path == "" {
		return ""
	}
	return filepath.Dir(d.path)
}

// NewObject creates an object with the given internal name and attaches it.
func (d *Document) NewObject(name string) (*Object, error) {
	if name == "" {
		return nil, fmt.Errorf("model: empty object name")
	}
	if _, exists := d.objects[name]; exists {
		return nil, fmt.Errorf("model: object %q already exists in %s", name, d.DisplayName())
	}
	o := &Object{name: name, label: name, doc: d}
	o.handle = d.arena.alloc(o)
	d.objects[name] = o
	d.order = append(d.order, name)
	return o, nil
}

// Object returns the object with the given internal name, or nil.
func (d *Document) Object(name string) *Object {
	return d.objects[name]
}

// FindLabel returns the first object with the given label, or nil.
func (d *Document) FindLabel(label string) *Object {
	for _, name := range d.order {
		if o := d.objects[name]; o != nil && o.label == label {
			return o
		}
	}
	return nil
}

// Objects returns the document's objects in insertion order.
func (d *Document) Objects() []*Object {
	out := make([]*Object, 0, len(d.order))
	for _, name := range d.order {
		if o := d.objects[name]; o != nil {
			out = append(out, o)
		}
	}
	return out
}

// RemoveObject detaches the named object and releases its handle. The caller
// must have broken incoming links first; the object is marked destroying for
// the duration so late back-link lookups fail closed.
func (d *Document) RemoveObject(name string) {
	o := d.objects[name]
	if o == nil {
		return
	}
	o.destroying = true
	delete(d.objects, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	o.doc = nil
	d.arena.release(o.handle)
}
