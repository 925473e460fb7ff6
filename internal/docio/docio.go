// Package docio serializes documents and their link fields to YAML and
// restores them, deferring cross-document resolution to the link layer.
package docio

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/ehwaz/internal/link"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

// FieldStore creates and enumerates the link fields attached to objects. The
// engine implements it; docio stays ignorant of how fields are registered.
type FieldStore interface {
	Fields(obj *model.Object) []link.Field
	NewLink(owner *model.Object, name string, scope model.Scope) *link.Link
	NewLinkSub(owner *model.Object, name string, scope model.Scope) *link.LinkSub
	NewLinkSubList(owner *model.Object, name string, scope model.Scope) *link.LinkSubList
	NewXLink(owner *model.Object, name string, scope model.Scope) *link.XLink
}

type fileDocument struct {
	ID      string       `yaml:"id"`
	Stamp   string       `yaml:"stamp,omitempty"`
	Objects []fileObject `yaml:"objects"`
}

type fileObject struct {
	Name   string      `yaml:"name"`
	Label  string      `yaml:"label,omitempty"`
	Parent string      `yaml:"parent,omitempty"`
	Fields []fileField `yaml:"fields,omitempty"`
}

type fileField struct {
	Name    string     `yaml:"name"`
	Kind    string     `yaml:"kind"`
	Scope   string     `yaml:"scope,omitempty"`
	Target  string     `yaml:"target,omitempty"`
	Targets []string   `yaml:"targets,omitempty"`
	Paths   []filePath `yaml:"paths,omitempty"`
	File    string     `yaml:"file,omitempty"`
	Object  string     `yaml:"object,omitempty"`
	Stamp   string     `yaml:"stamp,omitempty"`
	Partial bool       `yaml:"partial,omitempty"`
}

// filePath stores one sub-element path. Value always holds the old-style
// text when one is known; Shadowed carries the versioned alternate; Mapped
// records that the live path text was the versioned form, so a reload
// prefers Shadowed over Value.
type filePath struct {
	Value    string `yaml:"value"`
	Shadowed string `yaml:"shadowed,omitempty"`
	Mapped   bool   `yaml:"mapped,omitempty"`
}

const (
	kindLink    = "link"
	kindSub     = "linksub"
	kindSubList = "linksublist"
	kindXLink   = "xlink"
)

// Save serializes doc and every link field of its objects.
func Save(doc *model.Document, store FieldStore) ([]byte, error) {
	fd := fileDocument{ID: doc.ID(), Stamp: doc.Stamp()}
	for _, obj := range doc.Objects() {
		fo := fileObject{Name: obj.Name()}
		if obj.Label() != obj.Name() {
			fo.Label = obj.Label()
		}
		if p := obj.Parent(); p != nil {
			fo.Parent = p.Name()
		}
		for _, f := range store.Fields(obj) {
			ff, err := encodeField(f)
			if err != nil {
				return nil, fmt.Errorf("docio: save %s: %w", f.FullName(), err)
			}
			fo.Fields = append(fo.Fields, ff)
		}
		fd.Objects = append(fd.Objects, fo)
	}
	data, err := yaml.Marshal(&fd)
	if err != nil {
		return nil, fmt.Errorf("docio: save %s: %w", doc.DisplayName(), err)
	}
	return data, nil
}

func encodeField(f link.Field) (fileField, error) {
	ff := fileField{Name: f.Name()}
	if s := f.Scope(); s != model.ScopeNormal {
		ff.Scope = s.String()
	}
	switch l := f.(type) {
	case *link.Link:
		ff.Kind = kindLink
		if t := l.Value(); t != nil {
			ff.Target = t.Name()
		}
	case *link.LinkSub:
		ff.Kind = kindSub
		t, subs := l.Value()
		if t != nil {
			ff.Target = t.Name()
		}
		ff.Paths = encodePaths(subs, l.Shadows())
	case *link.LinkSubList:
		ff.Kind = kindSubList
		targets, subs := l.Values()
		for _, t := range targets {
			ff.Targets = append(ff.Targets, t.Name())
		}
		ff.Paths = encodePaths(subs, l.Shadows())
	case *link.XLink:
		ff.Kind = kindXLink
		t, subs := l.Value()
		ff.Paths = encodePaths(subs, l.Shadows())
		if l.File() != "" {
			ff.File = l.File()
			ff.Object = l.ObjectName()
			ff.Stamp = l.Stamp()
			ff.Partial = l.AllowPartial()
		} else if t != nil {
			ff.Target = t.Name()
		}
	default:
		return ff, fmt.Errorf("unsupported field type %T", f)
	}
	return ff, nil
}

func encodePaths(subs []string, shadows []shadow.Path) []filePath {
	out := make([]filePath, 0, len(subs))
	for i, sub := range subs {
		var sh shadow.Path
		if i < len(shadows) {
			sh = shadows[i]
		}
		e := filePath{Value: sub}
		if old := sh.OldName(); old != "" {
			e.Value = old
		}
		if n := sh.NewName(); n != "" {
			e.Shadowed = n
			e.Mapped = sub == n
		}
		out = append(out, e)
	}
	return out
}

func decodePaths(entries []filePath) (subs []string, shadows []shadow.Path) {
	for _, e := range entries {
		raw := e.Value
		if e.Mapped && e.Shadowed != "" {
			raw = e.Shadowed
		}
		subs = append(subs, raw)
		switch {
		case e.Shadowed != "" && e.Value != "":
			shadows = append(shadows, shadow.Dual(e.Value, e.Shadowed))
		case e.Shadowed != "":
			shadows = append(shadows, shadow.New(e.Shadowed))
		default:
			shadows = append(shadows, shadow.Path{})
		}
	}
	return subs, shadows
}

// Restore rebuilds doc from data: first the object set, then every link
// field. The document is marked loading for the duration so fields install
// their stored paths verbatim instead of recomputing them. Cross-document
// references whose target document is absent stay pending; a reference to a
// missing object inside a partial document is tolerated and left empty.
func Restore(data []byte, doc *model.Document, store FieldStore) error {
	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("docio: restore %s: %w", doc.DisplayName(), err)
	}
	if fd.ID != "" {
		doc.SetID(fd.ID)
	}
	if fd.Stamp != "" {
		doc.SetStamp(fd.Stamp)
	}

	doc.SetLoading(true)
	defer doc.SetLoading(false)

	for _, fo := range fd.Objects {
		obj, err := doc.NewObject(fo.Name)
		if err != nil {
			return fmt.Errorf("docio: restore %s: %w", doc.DisplayName(), err)
		}
		if fo.Label != "" {
			obj.SetLabel(fo.Label)
		}
	}
	for _, fo := range fd.Objects {
		if fo.Parent == "" {
			continue
		}
		p := doc.Object(fo.Parent)
		if p == nil {
			return fmt.Errorf("docio: restore %s: object %s: unknown parent %q",
				doc.DisplayName(), fo.Name, fo.Parent)
		}
		p.AddChild(doc.Object(fo.Name))
	}

	for _, fo := range fd.Objects {
		obj := doc.Object(fo.Name)
		for _, ff := range fo.Fields {
			if err := restoreField(doc, obj, ff, store); err != nil {
				return fmt.Errorf("docio: restore %s.%s: %w", obj.FullName(), ff.Name, err)
			}
		}
	}
	return nil
}

// RestoreObjects rebuilds only the object set of doc from data, skipping
// every link field. Used for partial loads, where the document participates
// as a link target but owns no live fields.
func RestoreObjects(data []byte, doc *model.Document) error {
	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("docio: restore %s: %w", doc.DisplayName(), err)
	}
	if fd.ID != "" {
		doc.SetID(fd.ID)
	}
	if fd.Stamp != "" {
		doc.SetStamp(fd.Stamp)
	}
	for _, fo := range fd.Objects {
		obj, err := doc.NewObject(fo.Name)
		if err != nil {
			return fmt.Errorf("docio: restore %s: %w", doc.DisplayName(), err)
		}
		if fo.Label != "" {
			obj.SetLabel(fo.Label)
		}
	}
	for _, fo := range fd.Objects {
		if fo.Parent == "" {
			continue
		}
		if p := doc.Object(fo.Parent); p != nil {
			p.AddChild(doc.Object(fo.Name))
		}
	}
	return nil
}

func restoreField(doc *model.Document, obj *model.Object, ff fileField, store FieldStore) error {
	scope := model.ParseScope(ff.Scope)
	switch ff.Kind {
	case kindLink:
		f := store.NewLink(obj, ff.Name, scope)
		if ff.Target == "" {
			return nil
		}
		t, err := localTarget(doc, ff.Target)
		if err != nil || t == nil {
			return err
		}
		return f.SetValue(t)
	case kindSub:
		f := store.NewLinkSub(obj, ff.Name, scope)
		if ff.Target == "" {
			return nil
		}
		t, err := localTarget(doc, ff.Target)
		if err != nil || t == nil {
			return err
		}
		subs, shadows := decodePaths(ff.Paths)
		return f.Restore(t, subs, shadows)
	case kindSubList:
		f := store.NewLinkSubList(obj, ff.Name, scope)
		targets := make([]*model.Object, 0, len(ff.Targets))
		for _, name := range ff.Targets {
			t, err := localTarget(doc, name)
			if err != nil {
				return err
			}
			if t == nil {
				// Partial document: drop the whole value rather than
				// silently shifting the target/path alignment.
				return nil
			}
			targets = append(targets, t)
		}
		subs, shadows := decodePaths(ff.Paths)
		return f.Restore(targets, subs, shadows)
	case kindXLink:
		f := store.NewXLink(obj, ff.Name, scope)
		subs, shadows := decodePaths(ff.Paths)
		if ff.File != "" {
			return f.RestoreExternal(ff.File, ff.Object, subs, shadows, ff.Stamp, ff.Partial)
		}
		if ff.Target == "" {
			return nil
		}
		t, err := localTarget(doc, ff.Target)
		if err != nil || t == nil {
			return err
		}
		return f.SetValue(t, subs)
	}
	return fmt.Errorf("unknown field kind %q", ff.Kind)
}

// localTarget resolves a same-document target name. A missing name is an
// error for a full document but tolerated for a partial one.
func localTarget(doc *model.Document, name string) (*model.Object, error) {
	t := doc.Object(name)
	if t == nil && !doc.Partial() {
		return nil, fmt.Errorf("unknown target object %q", name)
	}
	return t, nil
}
