package link

import (
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

// LinkSub is a single-target link carrying zero or more independent
// sub-element paths, each with its own shadow.
type LinkSub struct {
	base
	target  *model.Object
	subs    []string
	shadows []shadow.Path
}

// NewLinkSub creates an empty sub-element link owned by owner.
func NewLinkSub(h Host, owner *model.Object, name string, scope model.Scope) *LinkSub {
	return &LinkSub{base: base{host: h, owner: owner, name: name, scope: scope}}
}

var _ Field = (*LinkSub)(nil)

// SetValue points the link at t with the given sub-element paths. Shadows
// are recomputed and label/element registrations refreshed.
func (l *LinkSub) SetValue(t *model.Object, subs []string) error {
	if err := l.validateTarget(t, false); err != nil {
		return err
	}
	l.install(t, append([]string(nil), subs...), make([]shadow.Path, len(subs)))
	if t != nil {
		updateSubs(l.host, l, l.target, l.subs, l.shadows, nil, false)
	}
	return nil
}

// Restore installs target, paths, and shadows verbatim, as read from a
// document file. No shadow recomputation happens; registrations are
// refreshed so rename and epoch propagation reach the field.
func (l *LinkSub) Restore(t *model.Object, subs []string, shadows []shadow.Path) error {
	if err := l.validateTarget(t, false); err != nil {
		return err
	}
	for len(shadows) < len(subs) {
		shadows = append(shadows, shadow.Path{})
	}
	l.install(t, subs, shadows)
	l.registerProducers()
	return nil
}

func (l *LinkSub) install(t *model.Object, subs []string, shadows []shadow.Path) {
	l.deregisterAll(l)
	l.dropEdge(l.target, l)
	l.addEdge(t, l)
	l.target = t
	l.subs = subs
	l.shadows = shadows
	l.registerLabels(l.subs, l)
}

// registerProducers registers the field in the element index for every path
// that resolves, without touching stored texts.
func (l *LinkSub) registerProducers() {
	if l.target == nil {
		return
	}
	oracle := l.host.Resolver().Oracle()
	for i, sub := range l.subs {
		start := l.shadows[i].Effective(true, sub)
		if model.PathElement(start) == "" {
			continue
		}
		if ans, err := oracle.ResolveElement(l.target, start, true, nil); err == nil && ans.Producer != nil {
			l.host.ElementRefs().Register(ans.Producer, l)
		}
	}
}

// Value returns the current target and raw path texts.
func (l *LinkSub) Value() (*model.Object, []string) {
	return l.target, append([]string(nil), l.subs...)
}

// Shadows returns the stored shadow paths.
func (l *LinkSub) Shadows() []shadow.Path {
	return append([]shadow.Path(nil), l.shadows...)
}

func (l *LinkSub) Targets() []*model.Object {
	if l.target == nil {
		return nil
	}
	return []*model.Object{l.target}
}

func (l *LinkSub) Paths(preferNew bool) []string {
	return pathsWithStyle(l.subs, l.shadows, preferNew)
}

func (l *LinkSub) UpdateElementReference(producer *model.Object, reverse bool) (bool, error) {
	if l.target == nil {
		return false, nil
	}
	changed := updateSubs(l.host, l, l.target, l.subs, l.shadows, producer, reverse)
	if changed {
		l.registerLabels(l.subs, l)
	}
	return changed, nil
}

func (l *LinkSub) CopyOnLabelChange(obj *model.Object, ref, newLabel string) (Replacement, bool) {
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

func (l *LinkSub) ApplyPaths(paths []string) error {
	return l.SetValue(l.target, paths)
}

func (l *LinkSub) TryReplace(parent, oldObj, newObj *model.Object) (bool, error) {
	t, subs := TryReplaceSubs(l.owner, l.target, parent, oldObj, newObj, l.subs)
	if t == nil {
		return false, nil
	}
	return true, l.SetValue(t, subs)
}

func (l *LinkSub) AdjustLink(absorbed map[*model.Object]bool) (bool, error) {
	if l.hidden() || l.target == nil || !l.target.Attached() || !absorbed[l.target] {
		return false, nil
	}
	t, subs, ok := AdjustSubs(l.target, l.subs, absorbed, false)
	if !ok {
		return false, nil
	}
	return true, l.SetValue(t, subs)
}

func (l *LinkSub) BreakLink(obj *model.Object, clear bool) {
	if l.target == obj || (clear && l.owner == obj) {
		l.Clear()
	}
}

func (l *LinkSub) Clear() {
	l.deregisterAll(l)
	l.dropEdge(l.target, l)
	l.target = nil
	l.subs = nil
	l.shadows = nil
}
