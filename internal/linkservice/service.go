// Package linkservice coordinates the engine, the workspace, and the
// reference index behind one request-oriented API.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/engine"
	"github.com/starford/ehwaz/internal/link"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/models"
	"github.com/starford/ehwaz/internal/refindex"
	"github.com/starford/ehwaz/internal/workspace"
)

// DocumentDetail is the full representation of a loaded document.
type DocumentDetail struct {
	Path    string         `json:"path"`
	ID      string         `json:"id"`
	Stamp   string         `json:"stamp,omitempty"`
	Partial bool           `json:"partial,omitempty"`
	Objects []ObjectDetail `json:"objects"`
}

// ObjectDetail describes one object and its link fields.
type ObjectDetail struct {
	Name   string        `json:"name"`
	Label  string        `json:"label"`
	Parent string        `json:"parent,omitempty"`
	Fields []FieldDetail `json:"fields"`
}

// FieldDetail describes one link field.
type FieldDetail struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Scope   string   `json:"scope"`
	Targets []string `json:"targets"`
	Paths   []string `json:"paths"`
	State   string   `json:"state,omitempty"`
	File    string   `json:"file,omitempty"`
	Object  string   `json:"object,omitempty"`
}

// SetLinkRequest describes a link field mutation.
type SetLinkRequest struct {
	Doc          string   `json:"doc"`
	Object       string   `json:"object"`
	Field        string   `json:"field"`
	Kind         string   `json:"kind"`
	Scope        string   `json:"scope,omitempty"`
	TargetDoc    string   `json:"target_doc,omitempty"`
	TargetObj    string   `json:"target_obj,omitempty"`
	Targets      []string `json:"targets,omitempty"`
	Paths        []string `json:"paths,omitempty"`
	AllowPartial bool     `json:"allow_partial,omitempty"`
}

// Service coordinates engine, workspace, and index operations.
type Service struct {
	eng   *engine.Engine
	store workspace.Provider
	db    refindex.RefIndex
}

// NewService creates a new link service.
func NewService(eng *engine.Engine, store workspace.Provider, db refindex.RefIndex) *Service {
	return &Service{eng: eng, store: store, db: db}
}

// Engine exposes the underlying engine for callers that need direct access.
func (s *Service) Engine() *engine.Engine { return s.eng }

// ListDocuments returns metadata for every document file in the workspace.
func (s *Service) ListDocuments(_ context.Context) ([]models.DocumentMetadata, error) {
	return s.store.List("")
}

// GetDocument loads (if needed) and describes the document at path.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	doc, err := s.eng.LoadDocument(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(doc), nil
}

// CreateDocument creates an empty document at path and saves it.
func (s *Service) CreateDocument(_ context.Context, path string) (*DocumentDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	doc := s.eng.NewDocument()
	if err := s.eng.SaveDocument(doc, path); err != nil {
		return nil, err
	}
	return s.buildDetail(doc), nil
}

// SaveDocument writes the loaded document at path back to the workspace.
func (s *Service) SaveDocument(_ context.Context, path string) (*DocumentDetail, error) {
	doc := s.eng.Document(path)
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	if err := s.eng.SaveDocument(doc, ""); err != nil {
		return nil, err
	}
	return s.buildDetail(doc), nil
}

// CloseDocument unloads the document at path. The file stays.
func (s *Service) CloseDocument(_ context.Context, path string) error {
	doc := s.eng.Document(path)
	if doc == nil {
		return apperr.ErrNotFound
	}
	s.eng.CloseDocument(doc)
	return nil
}

// DeleteDocument unloads the document and removes it from workspace and
// index. References to it elsewhere detach and report as broken.
func (s *Service) DeleteDocument(_ context.Context, path string) error {
	if doc := s.eng.Document(path); doc != nil {
		s.eng.CloseDocument(doc)
	}
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if s.db != nil {
		return s.db.DeleteDocument(workspace.Canonical(path))
	}
	return nil
}

// AddObject creates an object in the loaded document at path.
func (s *Service) AddObject(_ context.Context, path, name, label string) (*ObjectDetail, error) {
	doc := s.eng.Document(path)
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	obj, err := s.eng.AddObject(doc, name)
	if err != nil {
		return nil, err
	}
	if label != "" && label != name {
		if err := s.eng.RenameLabel(obj, label); err != nil {
			return nil, err
		}
	}
	d := s.buildObject(obj)
	return &d, nil
}

// DeleteObject removes an object; incoming references drop first.
func (s *Service) DeleteObject(_ context.Context, path, name string) error {
	obj, err := s.eng.FindObject(path, name)
	if err != nil {
		return err
	}
	return s.eng.DeleteObject(obj)
}

// RenameLabel changes an object's label and rewrites the stored paths that
// refer to it by label.
func (s *Service) RenameLabel(_ context.Context, path, name, newLabel string) error {
	obj, err := s.eng.FindObject(path, name)
	if err != nil {
		return err
	}
	return s.eng.RenameLabel(obj, newLabel)
}

// SetLink creates or updates a link field per req.
func (s *Service) SetLink(_ context.Context, req SetLinkRequest) error {
	owner, err := s.eng.FindObject(req.Doc, req.Object)
	if err != nil {
		return err
	}
	scope := model.ParseScope(req.Scope)
	switch req.Kind {
	case "link":
		t, err := s.localTarget(req.Doc, req.TargetDoc, req.TargetObj)
		if err != nil {
			return err
		}
		return s.eng.SetLink(owner, req.Field, scope, t)
	case "linksub":
		t, err := s.localTarget(req.Doc, req.TargetDoc, req.TargetObj)
		if err != nil {
			return err
		}
		return s.eng.SetLinkSub(owner, req.Field, scope, t, req.Paths)
	case "linksublist":
		targets := make([]*model.Object, 0, len(req.Targets))
		for _, name := range req.Targets {
			t, err := s.eng.FindObject(req.Doc, name)
			if err != nil {
				return err
			}
			targets = append(targets, t)
		}
		return s.eng.SetLinkSubList(owner, req.Field, scope, targets, req.Paths)
	case "xlink":
		if req.TargetDoc != "" && req.TargetDoc != req.Doc {
			return s.eng.SetXLinkExternal(owner, req.Field, scope,
				req.TargetDoc, req.TargetObj, req.Paths, req.AllowPartial)
		}
		t, err := s.eng.FindObject(req.Doc, req.TargetObj)
		if err != nil {
			return err
		}
		return s.eng.SetXLink(owner, req.Field, scope, t, req.Paths)
	}
	return fmt.Errorf("linkservice: unknown field kind %q: %w", req.Kind, apperr.ErrInvalidTarget)
}

// ClearLink resets a link field.
func (s *Service) ClearLink(_ context.Context, path, object, field string) error {
	owner, err := s.eng.FindObject(path, object)
	if err != nil {
		return err
	}
	return s.eng.ClearField(owner, field)
}

// Backlinks returns the references pointing at one object: live edges when
// the document is loaded, indexed edges otherwise.
func (s *Service) Backlinks(_ context.Context, path, objName string) ([]models.Backlink, error) {
	if obj, err := s.eng.FindObject(path, objName); err == nil {
		fields := s.eng.BacklinksOf(obj)
		out := make([]models.Backlink, 0, len(fields))
		for _, f := range fields {
			out = append(out, models.Backlink{
				SourceDoc: f.Owner().Document().DisplayName(),
				SourceObj: f.Owner().Name(),
				Field:     f.Name(),
			})
		}
		return out, nil
	}
	if s.db == nil {
		return nil, nil
	}
	return s.db.Backlinks(workspace.Canonical(path), objName)
}

// PendingLinks returns the live cross-document references awaiting their
// target document.
func (s *Service) PendingLinks(_ context.Context) []models.Ref {
	return s.eng.PendingLinks()
}

// BrokenLinks returns indexed references whose target document is missing
// from the workspace.
func (s *Service) BrokenLinks(_ context.Context) ([]models.BrokenLink, error) {
	if s.db == nil {
		return nil, nil
	}
	return s.db.Broken()
}

// Graph returns the indexed reference graph: document nodes and aggregated
// document-to-document edges.
func (s *Service) Graph(_ context.Context) ([]refindex.GraphNode, []refindex.GraphEdge, error) {
	if s.db == nil {
		return nil, nil, nil
	}
	return s.db.Graph()
}

// Refs returns the indexed outgoing references of one document.
func (s *Service) Refs(_ context.Context, path string) ([]models.Ref, error) {
	if s.db == nil {
		return nil, nil
	}
	return s.db.RefsFrom(workspace.Canonical(path))
}

// ReplaceObject rewrites links in the workspace so references to oldObj
// point at newObj, scoped at parent (empty for unscoped). Returns the
// number of fields changed.
func (s *Service) ReplaceObject(_ context.Context, path, parent, oldObj, newObj string) (int, error) {
	old, err := s.eng.FindObject(path, oldObj)
	if err != nil {
		return 0, err
	}
	repl, err := s.eng.FindObject(path, newObj)
	if err != nil {
		return 0, err
	}
	var p *model.Object
	if parent != "" {
		if p, err = s.eng.FindObject(path, parent); err != nil {
			return 0, err
		}
	}
	return s.eng.ReplaceObject(p, old, repl)
}

// AbsorbObjects re-roots links into the named objects before they collapse
// into a compound. Returns the number of fields changed.
func (s *Service) AbsorbObjects(_ context.Context, path string, names []string) (int, error) {
	objs := make([]*model.Object, 0, len(names))
	for _, n := range names {
		o, err := s.eng.FindObject(path, n)
		if err != nil {
			return 0, err
		}
		objs = append(objs, o)
	}
	return s.eng.AbsorbObjects(objs)
}

// DefineElement registers an element of a producer object and reconciles
// referencing fields. Returns the versioned element name.
func (s *Service) DefineElement(_ context.Context, path, obj, element, signature string) (string, error) {
	o, err := s.eng.FindObject(path, obj)
	if err != nil {
		return "", err
	}
	return s.eng.DefineElement(o, element, signature), nil
}

// RemoveElement marks an element of a producer object as gone.
func (s *Service) RemoveElement(_ context.Context, path, obj, element string) error {
	o, err := s.eng.FindObject(path, obj)
	if err != nil {
		return err
	}
	s.eng.RemoveElement(o, element)
	return nil
}

// Reconcile re-runs element reference resolution for one producer (or every
// field when obj is empty) and returns the changed field names.
func (s *Service) Reconcile(_ context.Context, path, obj string, reverse bool) ([]string, error) {
	var producer *model.Object
	if obj != "" {
		o, err := s.eng.FindObject(path, obj)
		if err != nil {
			return nil, err
		}
		producer = o
	}
	changed := s.eng.Reconcile(producer, reverse)
	names := make([]string, 0, len(changed))
	for _, f := range changed {
		names = append(names, f.FullName())
	}
	return names, nil
}

func (s *Service) localTarget(doc, targetDoc, targetObj string) (*model.Object, error) {
	if targetObj == "" {
		return nil, nil
	}
	if targetDoc == "" {
		targetDoc = doc
	}
	return s.eng.FindObject(targetDoc, targetObj)
}

func (s *Service) buildDetail(doc *model.Document) *DocumentDetail {
	d := &DocumentDetail{
		Path:    doc.Path(),
		ID:      doc.ID(),
		Stamp:   doc.Stamp(),
		Partial: doc.Partial(),
		Objects: []ObjectDetail{},
	}
	for _, obj := range doc.Objects() {
		d.Objects = append(d.Objects, s.buildObject(obj))
	}
	return d
}

func (s *Service) buildObject(obj *model.Object) ObjectDetail {
	d := ObjectDetail{
		Name:   obj.Name(),
		Label:  obj.Label(),
		Fields: []FieldDetail{},
	}
	if p := obj.Parent(); p != nil {
		d.Parent = p.Name()
	}
	for _, f := range s.eng.Fields(obj) {
		d.Fields = append(d.Fields, buildField(f))
	}
	return d
}

func buildField(f link.Field) FieldDetail {
	d := FieldDetail{
		Name:    f.Name(),
		Scope:   f.Scope().String(),
		Targets: []string{},
		Paths:   nonNilSlice(f.Paths(false)),
	}
	for _, t := range f.Targets() {
		d.Targets = append(d.Targets, t.FullName())
	}
	switch l := f.(type) {
	case *link.Link:
		d.Kind = "link"
	case *link.LinkSub:
		d.Kind = "linksub"
	case *link.LinkSubList:
		d.Kind = "linksublist"
	case *link.XLink:
		d.Kind = "xlink"
		d.State = l.State().String()
		d.File = l.File()
		d.Object = l.ObjectName()
	}
	return d
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
