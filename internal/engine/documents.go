package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/checksum"
	"github.com/starford/ehwaz/internal/docio"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/refindex"
	"github.com/starford/ehwaz/internal/workspace"
)

// NewDocument creates an empty, unsaved document. It has no path until the
// first save; cross-document references from it stay unresolvable until
// then.
func (e *Engine) NewDocument() *model.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := model.NewDocument(e.arena, uuid.NewString())
	e.unsaved[doc.ID()] = doc
	return doc
}

// Document returns the loaded document at the canonical path, or nil.
func (e *Engine) Document(path string) *model.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docs[workspace.Canonical(path)]
}

// Documents returns every loaded document, saved and unsaved.
func (e *Engine) Documents() []*model.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Document, 0, len(e.docs)+len(e.unsaved))
	for _, d := range e.docs {
		out = append(out, d)
	}
	for _, d := range e.unsaved {
		out = append(out, d)
	}
	return out
}

// LoadDocument loads (or returns the already loaded) document at path. Any
// pending loads queued by cross-document references inside it are drained
// before returning.
func (e *Engine) LoadDocument(path string) (*model.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, err := e.loadLocked(workspace.Canonical(path), "", false)
	if err != nil {
		return nil, err
	}
	e.drainPendingLocked()
	return doc, nil
}

// loadLocked loads the document at canonical. A partial load restores the
// object set only. A document already loaded partially is reloaded in full
// when objName is absent from it.
func (e *Engine) loadLocked(canonical, objName string, partial bool) (*model.Document, error) {
	if doc := e.docs[canonical]; doc != nil {
		if doc.Partial() && (!partial || (objName != "" && doc.Object(objName) == nil)) {
			e.logger.Warn("engine: reloading partial document",
				slog.String("path", canonical), slog.String("object", objName))
			e.closeLocked(doc)
			return e.loadLocked(canonical, objName, false)
		}
		return doc, nil
	}
	if e.store == nil {
		return nil, fmt.Errorf("engine: load %s: no workspace configured: %w", canonical, apperr.ErrNotFound)
	}
	data, err := e.store.Read(canonical)
	if err != nil {
		return nil, fmt.Errorf("engine: load %s: %w", canonical, err)
	}

	doc := model.NewDocument(e.arena, uuid.NewString())
	doc.SetPath(canonical)
	doc.SetPartial(partial)
	// Register before restoring so references back into this document (and
	// into documents loaded along the way) share one resolver record.
	e.docs[canonical] = doc

	e.loading++
	if partial {
		err = docio.RestoreObjects(data, doc)
	} else {
		err = docio.Restore(data, doc, e)
	}
	e.loading--
	if err != nil {
		e.discardLocked(doc)
		return nil, err
	}
	if doc.Stamp() == "" {
		doc.SetStamp(e.store.Stamp(canonical))
	}

	e.docTable.OnDocumentLoaded(doc)
	e.logger.Info("engine: document loaded",
		slog.String("path", canonical),
		slog.Bool("partial", partial),
		slog.Int("objects", len(doc.Objects())))
	e.emit("doc.loaded", map[string]string{"path": canonical})
	return doc, nil
}

// drainPendingLocked services queued document loads until the queue is
// empty. Loads triggered by the drained documents re-enter the queue; each
// path is attempted once per drain so an unloadable document cannot spin.
func (e *Engine) drainPendingLocked() {
	if e.loading > 0 {
		return
	}
	attempted := make(map[string]bool)
	for len(e.pending) > 0 {
		p := e.pending[0]
		e.pending = e.pending[1:]
		if attempted[p.path] {
			continue
		}
		attempted[p.path] = true
		if doc := e.docs[p.path]; doc != nil && !doc.Partial() {
			continue
		}
		if _, err := e.loadLocked(p.path, p.objName, p.partial); err != nil {
			e.logger.Warn("engine: pending load failed",
				slog.String("path", p.path), slog.String("error", err.Error()))
		}
	}
}

// ProcessPending drains any queued document loads, for callers that set up
// deferred references outside a load operation.
func (e *Engine) ProcessPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainPendingLocked()
}

// SaveDocument writes doc to path (or its current path when path is empty),
// updates the reference index, and rekeys cross-document records when the
// document moved.
func (e *Engine) SaveDocument(doc *model.Document, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	canonical := workspace.Canonical(path)
	if path == "" {
		if doc.Unsaved() {
			return fmt.Errorf("engine: save %s: no path given: %w", doc.DisplayName(), apperr.ErrUnsavedOwner)
		}
		canonical = doc.Path()
	}
	if other := e.docs[canonical]; other != nil && other != doc {
		return fmt.Errorf("engine: save %s: %s already loaded: %w", doc.DisplayName(), canonical, apperr.ErrAlreadyExists)
	}
	if e.store == nil {
		return fmt.Errorf("engine: save %s: no workspace configured: %w", doc.DisplayName(), apperr.ErrNotFound)
	}

	wasUnsaved := doc.Unsaved()
	oldPath := doc.Path()
	doc.SetPath(canonical)
	doc.SetStamp(time.Now().UTC().Format(time.RFC3339Nano))

	data, err := docio.Save(doc, e)
	if err != nil {
		doc.SetPath(oldPath)
		return err
	}
	if err := e.store.Write(canonical, data); err != nil {
		doc.SetPath(oldPath)
		return err
	}

	if wasUnsaved {
		delete(e.unsaved, doc.ID())
	} else if oldPath != canonical {
		delete(e.docs, oldPath)
	}
	e.docs[canonical] = doc

	e.docTable.OnDocumentSaved(doc)
	e.indexDocumentLocked(canonical, data)
	e.logger.Info("engine: document saved", slog.String("path", canonical))
	e.emit("doc.saved", map[string]string{"path": canonical})
	return nil
}

// CloseDocument unloads doc. References into it from other documents detach
// and can re-resolve on a later load; references it owns are dropped.
func (e *Engine) CloseDocument(doc *model.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked(doc)
	e.emit("doc.closed", map[string]string{"path": doc.DisplayName()})
}

func (e *Engine) closeLocked(doc *model.Document) {
	e.docTable.OnDocumentUnloading(doc)
	e.discardLocked(doc)
	e.logger.Info("engine: document closed", slog.String("path", doc.DisplayName()))
}

// discardLocked tears down a document's live state: field registrations,
// back-link edges, naming data, arena handles.
func (e *Engine) discardLocked(doc *model.Document) {
	for _, obj := range doc.Objects() {
		for _, f := range e.fields[obj.Handle()] {
			f.Clear()
		}
		delete(e.fields, obj.Handle())
		e.naming.Drop(obj.Handle())
	}
	for _, obj := range doc.Objects() {
		doc.RemoveObject(obj.Name())
	}
	if doc.Path() != "" {
		delete(e.docs, doc.Path())
	} else {
		delete(e.unsaved, doc.ID())
	}
}

// indexDocumentLocked refreshes the reference index entry for one document.
func (e *Engine) indexDocumentLocked(canonical string, data []byte) {
	if e.index == nil {
		return
	}
	refs, err := docio.ExtractRefs(canonical, data)
	if err != nil {
		e.logger.Warn("engine: extract refs failed",
			slog.String("path", canonical), slog.String("error", err.Error()))
		return
	}
	row := refindex.DocRow{
		Path:      canonical,
		Checksum:  checksum.Sum(data),
		Stamp:     e.store.Stamp(canonical),
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.index.UpsertDocument(row, refs); err != nil {
		e.logger.Warn("engine: index update failed",
			slog.String("path", canonical), slog.String("error", err.Error()))
	}
}
