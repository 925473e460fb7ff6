package engine

import (
	"fmt"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/link"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/workspace"
)

// FindObject resolves "doc path + object name" to a live object. docPath may
// be an unsaved document's ID.
func (e *Engine) FindObject(docPath, objName string) (*model.Object, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := e.docs[workspace.Canonical(docPath)]
	if doc == nil {
		doc = e.unsaved[docPath]
	}
	if doc == nil {
		return nil, fmt.Errorf("engine: document %s not loaded: %w", docPath, apperr.ErrNotFound)
	}
	obj := doc.Object(objName)
	if obj == nil {
		return nil, fmt.Errorf("engine: object %s in %s: %w", objName, docPath, apperr.ErrNotFound)
	}
	return obj, nil
}

// kindConflict reports an existing field of a different kind under the
// requested name. Silent replacement would orphan its registrations.
func kindConflict(owner *model.Object, name string, f link.Field) error {
	return fmt.Errorf("engine: field %s.%s already exists with kind %T: %w",
		owner.FullName(), name, f, apperr.ErrConflict)
}

// SetLink sets a plain single-target link field on owner, creating it on
// first use.
func (e *Engine) SetLink(owner *model.Object, name string, scope model.Scope, target *model.Object) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var l *link.Link
	if f := e.Field(owner, name); f != nil {
		var ok bool
		if l, ok = f.(*link.Link); !ok {
			return kindConflict(owner, name, f)
		}
	}
	if l == nil {
		l = e.NewLink(owner, name, scope)
	}
	return l.SetValue(target)
}

// SetLinkSub sets a sub-element link field on owner.
func (e *Engine) SetLinkSub(owner *model.Object, name string, scope model.Scope, target *model.Object, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var l *link.LinkSub
	if f := e.Field(owner, name); f != nil {
		var ok bool
		if l, ok = f.(*link.LinkSub); !ok {
			return kindConflict(owner, name, f)
		}
	}
	if l == nil {
		l = e.NewLinkSub(owner, name, scope)
	}
	return l.SetValue(target, paths)
}

// SetLinkSubList sets a multi-target link field on owner.
func (e *Engine) SetLinkSubList(owner *model.Object, name string, scope model.Scope, targets []*model.Object, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var l *link.LinkSubList
	if f := e.Field(owner, name); f != nil {
		var ok bool
		if l, ok = f.(*link.LinkSubList); !ok {
			return kindConflict(owner, name, f)
		}
	}
	if l == nil {
		l = e.NewLinkSubList(owner, name, scope)
	}
	return l.SetValues(targets, paths)
}

func (e *Engine) xlinkField(owner *model.Object, name string, scope model.Scope) (*link.XLink, error) {
	var l *link.XLink
	if f := e.Field(owner, name); f != nil {
		var ok bool
		if l, ok = f.(*link.XLink); !ok {
			return nil, kindConflict(owner, name, f)
		}
	}
	if l == nil {
		l = e.NewXLink(owner, name, scope)
	}
	return l, nil
}

// SetXLink points a cross-document link field at a loaded object.
func (e *Engine) SetXLink(owner *model.Object, name string, scope model.Scope, target *model.Object, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.xlinkField(owner, name, scope)
	if err != nil {
		return err
	}
	if err := l.SetValue(target, paths); err != nil {
		return err
	}
	e.drainPendingLocked()
	return nil
}

// SetXLinkExternal points a cross-document link field at an object by
// document path and name. The reference stays pending until the target
// document loads; the queued load is serviced before returning.
func (e *Engine) SetXLinkExternal(owner *model.Object, name string, scope model.Scope, file, objName string, paths []string, allowPartial bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.xlinkField(owner, name, scope)
	if err != nil {
		return err
	}
	if err := l.SetExternal(file, objName, paths, allowPartial); err != nil {
		return err
	}
	e.drainPendingLocked()
	return nil
}

// ClearField resets the named field of owner.
func (e *Engine) ClearField(owner *model.Object, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.Field(owner, name)
	if f == nil {
		return fmt.Errorf("engine: field %s.%s: %w", owner.FullName(), name, apperr.ErrNotFound)
	}
	f.Clear()
	return nil
}
