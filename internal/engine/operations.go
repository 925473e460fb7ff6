package engine

import (
	"fmt"
	"log/slog"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/link"
	"github.com/starford/ehwaz/internal/model"
)

// AddObject creates a named object in doc.
func (e *Engine) AddObject(doc *model.Document, name string) (*model.Object, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return doc.NewObject(name)
}

// DeleteObject removes obj from its document. Incoming links drop their
// reference first; the object is marked destroying for the duration so any
// callback reached through a back-link fails closed instead of touching a
// half-dead object.
func (e *Engine) DeleteObject(obj *model.Object) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := obj.Document()
	if doc == nil {
		return fmt.Errorf("engine: delete %s: %w", obj.FullName(), apperr.ErrDetached)
	}
	obj.MarkDestroying()
	for _, f := range e.backlinks.EdgesOf(obj) {
		f.BreakLink(obj, false)
	}
	for _, f := range e.fields[obj.Handle()] {
		f.Clear()
	}
	delete(e.fields, obj.Handle())
	e.naming.Drop(obj.Handle())
	doc.RemoveObject(obj.Name())
	e.emit("object.deleted", map[string]string{
		"document": doc.DisplayName(),
		"object":   obj.Name(),
	})
	return nil
}

// RenameLabel changes obj's label and rewrites every stored path that refers
// to it by label. Replacement texts are computed against the old label
// first, then applied after the label flips, so a failing field leaves the
// others intact.
func (e *Engine) RenameLabel(obj *model.Object, newLabel string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	oldLabel := obj.Label()
	if oldLabel == newLabel {
		return nil
	}
	replacements := e.labelRefs.OnLabelChanged(obj, newLabel)
	obj.SetLabel(newLabel)
	for _, r := range replacements {
		if err := r.Field.ApplyPaths(r.Paths); err != nil {
			e.logger.Warn("engine: label rewrite failed",
				slog.String("field", r.Field.FullName()),
				slog.String("error", err.Error()))
		}
	}
	e.logger.Info("engine: label renamed",
		slog.String("object", obj.FullName()),
		slog.String("old", oldLabel),
		slog.String("new", newLabel),
		slog.Int("rewritten", len(replacements)))
	e.emit("label.renamed", map[string]string{
		"object": obj.FullName(),
		"old":    oldLabel,
		"new":    newLabel,
	})
	return nil
}

// DefineElement registers (or re-registers) a named element of producer and
// reconciles every field referencing producer's elements.
func (e *Engine) DefineElement(producer *model.Object, old, geoSig string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.naming.DefineElement(producer, old, geoSig)
	e.reconcileLocked(producer, false)
	return m
}

// RemoveElement marks an element of producer as gone and reconciles
// referencing fields; paths to it degrade to missing-marked old-style text
// rather than failing.
func (e *Engine) RemoveElement(producer *model.Object, old string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.naming.RemoveElement(producer, old)
	e.reconcileLocked(producer, false)
}

// BumpEpoch re-versions producer's element map and reconciles referencing
// fields to the new tokens.
func (e *Engine) BumpEpoch(producer *model.Object) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.naming.BumpEpoch(producer)
	e.reconcileLocked(producer, false)
}

// Reconcile re-runs element reference resolution for every field referencing
// producer (nil means all) and returns the changed fields.
func (e *Engine) Reconcile(producer *model.Object, reverse bool) []link.Field {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcileLocked(producer, reverse)
}

func (e *Engine) reconcileLocked(producer *model.Object, reverse bool) []link.Field {
	var changed []link.Field
	if producer == nil {
		changed = e.elemRefs.UpdateAllFields(reverse)
	} else {
		changed = e.elemRefs.UpdateAll(producer, reverse)
	}
	for _, f := range changed {
		e.emit("link.updated", map[string]string{"field": f.FullName()})
	}
	return changed
}

// ReplaceObject rewrites every link so references to oldObj become
// references to newObj, scoped at parent (nil applies the substitution
// everywhere it fits). Returns the number of fields changed.
func (e *Engine) ReplaceObject(parent, oldObj, newObj *model.Object) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := 0
	for _, f := range e.allFields() {
		ok, err := f.TryReplace(parent, oldObj, newObj)
		if err != nil {
			return changed, fmt.Errorf("engine: replace in %s: %w", f.FullName(), err)
		}
		if ok {
			changed++
		}
	}
	e.logger.Info("engine: object replaced",
		slog.String("old", oldObj.FullName()),
		slog.String("new", newObj.FullName()),
		slog.Int("fields", changed))
	return changed, nil
}

// AbsorbObjects re-roots links that point at members of the absorbed set so
// they survive the set collapsing into a compound. Returns the number of
// fields changed.
func (e *Engine) AbsorbObjects(absorbed []*model.Object) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := make(map[*model.Object]bool, len(absorbed))
	for _, o := range absorbed {
		set[o] = true
	}
	changed := 0
	for _, f := range e.allFields() {
		if set[f.Owner()] {
			continue
		}
		ok, err := f.AdjustLink(set)
		if err != nil {
			return changed, fmt.Errorf("engine: adjust %s: %w", f.FullName(), err)
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// BreakLinks drops every reference to obj. When clearOwned is set the
// object's own fields are cleared too, as done before a delete.
func (e *Engine) BreakLinks(obj *model.Object, clearOwned bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.backlinks.EdgesOf(obj) {
		f.BreakLink(obj, false)
	}
	if clearOwned {
		for _, f := range e.fields[obj.Handle()] {
			f.Clear()
		}
	}
}
