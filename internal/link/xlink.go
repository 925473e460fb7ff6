package link

import (
	"fmt"
	"log/slog"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

// RefState is the lifecycle state of a cross-document reference.
type RefState int

const (
	RefUnresolved RefState = iota
	RefPending
	RefAttached
	RefDetached
)

func (s RefState) String() string {
	switch s {
	case RefUnresolved:
		return "unresolved"
	case RefPending:
		return "pending"
	case RefAttached:
		return "attached"
	case RefDetached:
		return "detached"
	}
	return "unknown"
}

// XLink is a single-target link whose target may live in another document.
// It carries the target document's path, the target object's internal name
// (captured even while unresolved), and the target document's modification
// stamp at the last successful resolution. Resolution is deferred through
// the shared DocTable when the target document is not loaded.
type XLink struct {
	base
	target       *model.Object
	subs         []string
	shadows      []shadow.Path
	file         string // target document path as stored
	objName      string // target object internal name
	stamp        string // target doc stamp at last successful resolution
	allowPartial bool
	state        RefState
	rec          *DocRecord
}

// NewXLink creates an empty cross-document link owned by owner.
func NewXLink(h Host, owner *model.Object, name string, scope model.Scope) *XLink {
	return &XLink{base: base{host: h, owner: owner, name: name, scope: scope}}
}

var _ Field = (*XLink)(nil)

// SetValue points the link at a loaded object, local or external, with the
// given sub-element paths. Cross-document state is resolved before anything
// is installed, so a failing call leaves the field unchanged.
func (l *XLink) SetValue(t *model.Object, subs []string) error {
	if err := l.validateTarget(t, true); err != nil {
		return err
	}
	if t == nil {
		l.Clear()
		return nil
	}
	var rec *DocRecord
	var stamp string
	if doc := t.Document(); doc != l.owner.Document() {
		if doc.Unsaved() {
			return fmt.Errorf("link: %s: linked document %s not saved: %w",
				l.FullName(), doc.DisplayName(), apperr.ErrInvalidTarget)
		}
		prevName := l.objName
		l.objName = t.Name()
		r, err := l.host.DocTable().Get(doc.Path(), l.owner.Document(), l)
		if err != nil {
			l.objName = prevName
			return err
		}
		rec = r
		stamp = doc.Stamp()
	}
	if l.rec != nil && l.rec != rec {
		l.rec.remove(l)
	}
	l.rec = rec
	l.install(t, append([]string(nil), subs...), make([]shadow.Path, len(subs)))
	l.objName = t.Name()
	l.file = ""
	l.stamp = stamp
	l.state = RefAttached
	if rec != nil {
		l.file = rec.StoredPath(l.owner.Document())
	}
	updateSubs(l.host, l, l.target, l.subs, l.shadows, nil, false)
	return nil
}

// SetExternal points the link at objName inside the document at file
// (relative to the owner's document, or absolute/URI). When that document is
// not loaded the reference is queued and resolved later; this is not an
// error, the link reports RefPending until the document arrives.
func (l *XLink) SetExternal(file, objName string, subs []string, allowPartial bool) error {
	if file == "" || objName == "" {
		return fmt.Errorf("link: %s: empty document path or object name: %w", l.FullName(), apperr.ErrInvalidTarget)
	}
	prevName, prevPartial := l.objName, l.allowPartial
	l.objName = objName
	l.allowPartial = allowPartial
	rec, err := l.host.DocTable().Get(file, l.owner.Document(), l)
	if err != nil {
		l.objName, l.allowPartial = prevName, prevPartial
		return err
	}
	if l.rec != nil && l.rec != rec {
		l.rec.remove(l)
	}
	l.rec = rec
	l.install(nil, append([]string(nil), subs...), make([]shadow.Path, len(subs)))
	l.file = rec.StoredPath(l.owner.Document())
	l.state = RefUnresolved
	if rec.Document() != nil {
		rec.resolveLink(l)
	} else {
		l.state = RefPending
	}
	return nil
}

// RestoreExternal installs a stored cross-document reference verbatim, as
// read from a document file. Paths and shadows are not recomputed; the stored
// stamp is kept so a stale target document is detected at attach time. When
// the target document is already loaded the link resolves immediately,
// otherwise it stays pending.
func (l *XLink) RestoreExternal(file, objName string, subs []string, shadows []shadow.Path, stamp string, allowPartial bool) error {
	if file == "" || objName == "" {
		return fmt.Errorf("link: %s: empty document path or object name: %w", l.FullName(), apperr.ErrInvalidTarget)
	}
	prevName, prevPartial := l.objName, l.allowPartial
	l.objName = objName
	l.allowPartial = allowPartial
	rec, err := l.host.DocTable().Get(file, l.owner.Document(), l)
	if err != nil {
		l.objName, l.allowPartial = prevName, prevPartial
		return err
	}
	for len(shadows) < len(subs) {
		shadows = append(shadows, shadow.Path{})
	}
	if l.rec != nil && l.rec != rec {
		l.rec.remove(l)
	}
	l.rec = rec
	l.install(nil, append([]string(nil), subs...), shadows)
	l.stamp = stamp
	l.file = rec.StoredPath(l.owner.Document())
	l.state = RefUnresolved
	if rec.Document() != nil {
		rec.resolveLink(l)
	} else {
		l.state = RefPending
	}
	return nil
}

func (l *XLink) install(t *model.Object, subs []string, shadows []shadow.Path) {
	l.deregisterAll(l)
	l.dropEdge(l.target, l)
	l.addEdge(t, l)
	l.target = t
	l.subs = subs
	l.shadows = shadows
	l.registerLabels(l.subs, l)
}

func (l *XLink) detachRecord() {
	if l.rec != nil {
		l.rec.remove(l)
		l.rec = nil
	}
}

// attach binds the resolved target object. Called by the DocRecord when the
// target document becomes available. The back-link edge is re-added and the
// shadow paths replayed against the newly available object.
func (l *XLink) attach(t *model.Object) {
	if l.target != nil {
		return
	}
	prevStamp := l.stamp
	l.dropEdge(l.target, l)
	l.addEdge(t, l)
	l.target = t
	l.state = RefAttached
	doc := t.Document()
	if prevStamp != "" && doc.Stamp() != "" && prevStamp != doc.Stamp() {
		// Soft warning, distinct from "not found": the target document
		// changed since this reference last resolved.
		l.host.Logger().Warn("xlink: time stamp changed on link",
			slog.String("field", l.FullName()),
			slog.String("document", doc.DisplayName()),
			slog.String("stored", prevStamp),
			slog.String("current", doc.Stamp()))
		l.host.DocTable().notifyEvent("link.stale", map[string]string{
			"field":    l.FullName(),
			"document": doc.DisplayName(),
		})
	}
	l.stamp = doc.Stamp()
	restoreLabelReferences(l.target, l.subs)
	updateSubs(l.host, l, l.target, l.subs, l.shadows, nil, false)
}

// detach drops the resolved target when its document unloads, preserving the
// captured object name, document path text, and stored paths for a later
// re-attach.
func (l *XLink) detach() {
	l.host.ElementRefs().UnregisterAll(l)
	l.dropEdge(l.target, l)
	l.target = nil
	l.state = RefDetached
}

// unlink fully resets the link when its own owner's document goes away. The
// back-link edge must be removed before the owner is marked destroying.
func (l *XLink) unlink() {
	l.deregisterAll(l)
	l.dropEdge(l.target, l)
	l.target = nil
	l.state = RefUnresolved
}

// Value returns the current target (nil while pending/detached) and paths.
func (l *XLink) Value() (*model.Object, []string) {
	return l.target, append([]string(nil), l.subs...)
}

// State returns the reference lifecycle state.
func (l *XLink) State() RefState { return l.state }

// File returns the stored target document path text.
func (l *XLink) File() string { return l.file }

// ObjectName returns the captured target object name.
func (l *XLink) ObjectName() string { return l.objName }

// Stamp returns the target document stamp at last successful resolution.
func (l *XLink) Stamp() string { return l.stamp }

// AllowPartial reports whether a partial load of the target document
// satisfies this reference.
func (l *XLink) AllowPartial() bool { return l.allowPartial }

// Shadows returns the stored shadow paths.
func (l *XLink) Shadows() []shadow.Path {
	return append([]shadow.Path(nil), l.shadows...)
}

func (l *XLink) Targets() []*model.Object {
	if l.target == nil {
		return nil
	}
	return []*model.Object{l.target}
}

func (l *XLink) Paths(preferNew bool) []string {
	return pathsWithStyle(l.subs, l.shadows, preferNew)
}

func (l *XLink) UpdateElementReference(producer *model.Object, reverse bool) (bool, error) {
	if l.target == nil {
		return false, nil
	}
	changed := updateSubs(l.host, l, l.target, l.subs, l.shadows, producer, reverse)
	if changed {
		l.registerLabels(l.subs, l)
	}
	return changed, nil
}

func (l *XLink) CopyOnLabelChange(obj *model.Object, ref, newLabel string) (Replacement, bool) {
	if l.target == nil {
		return Replacement{}, false
	}
	touched := false
	out := make([]string, len(l.subs))
	copy(out, l.subs)
	for i, sub := range out {
		if newSub, ok := UpdateLabelReference(l.target, sub, obj, ref, newLabel); ok {
			out[i] = newSub
			touched = true
		}
	}
	if !touched {
		return Replacement{}, false
	}
	return Replacement{Field: l, Paths: out}, true
}

func (l *XLink) ApplyPaths(paths []string) error {
	if l.target == nil {
		l.subs = append([]string(nil), paths...)
		l.registerLabels(l.subs, l)
		return nil
	}
	return l.SetValue(l.target, paths)
}

func (l *XLink) TryReplace(parent, oldObj, newObj *model.Object) (bool, error) {
	if l.target == nil {
		return false, nil
	}
	t, subs := TryReplaceSubs(l.owner, l.target, parent, oldObj, newObj, l.subs)
	if t == nil {
		return false, nil
	}
	return true, l.SetValue(t, subs)
}

func (l *XLink) AdjustLink(absorbed map[*model.Object]bool) (bool, error) {
	if l.hidden() || l.target == nil || !l.target.Attached() || !absorbed[l.target] {
		return false, nil
	}
	t, subs, ok := AdjustSubs(l.target, l.subs, absorbed, true)
	if !ok {
		return false, nil
	}
	return true, l.SetValue(t, subs)
}

func (l *XLink) BreakLink(obj *model.Object, clear bool) {
	if l.target == obj || (clear && l.owner == obj) {
		l.Clear()
	}
}

// Clear resets the link to no target and abandons any pending resolution.
func (l *XLink) Clear() {
	l.detachRecord()
	l.deregisterAll(l)
	l.dropEdge(l.target, l)
	l.target = nil
	l.subs = nil
	l.shadows = nil
	l.file = ""
	l.objName = ""
	l.stamp = ""
	l.state = RefUnresolved
}

// restoreLabelReferences re-derives '$Label.' markers from the live objects
// after a deferred attach, so stored label segments reflect current labels.
func restoreLabelReferences(target *model.Object, subs []string) {
	for i, sub := range subs {
		labels := model.PathLabels(sub)
		if len(labels) == 0 {
			continue
		}
		objs, element := model.SplitPath(sub)
		cur := target
		rebuilt := ""
		changed := false
		for _, seg := range objs {
			if label, ok := model.LabelSegment(seg); ok {
				cur = cur.ChildByLabel(label)
			} else {
				cur = cur.Child(seg)
			}
			if cur == nil {
				rebuilt = ""
				changed = false
				break
			}
			if _, isLabel := model.LabelSegment(seg); isLabel {
				if "$"+cur.Label() != seg {
					changed = true
				}
				rebuilt += "$" + cur.Label() + "."
			} else {
				rebuilt += seg + "."
			}
		}
		if changed {
			subs[i] = rebuilt + element
		}
	}
}
