package link

import (
	"fmt"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

// LinkSubList is a multi-target link with one sub-element path per target.
// The target list and path list stay aligned: len(targets) == len(subs)
// always holds after a mutation.
type LinkSubList struct {
	base
	targets []*model.Object
	subs    []string
	shadows []shadow.Path
}

// NewLinkSubList creates an empty multi-target link owned by owner.
func NewLinkSubList(h Host, owner *model.Object, name string, scope model.Scope) *LinkSubList {
	return &LinkSubList{base: base{host: h, owner: owner, name: name, scope: scope}}
}

var _ Field = (*LinkSubList)(nil)

// SetValues points the link at targets with aligned paths (empty allowed).
// A length mismatch is rejected before any state changes.
func (l *LinkSubList) SetValues(targets []*model.Object, subs []string) error {
	if len(targets) != len(subs) {
		return fmt.Errorf("link: %s: %d targets, %d paths: %w",
			l.FullName(), len(targets), len(subs), apperr.ErrLengthMismatch)
	}
	for _, t := range targets {
		if t == nil {
			return fmt.Errorf("link: %s: nil target in list: %w", l.FullName(), apperr.ErrInvalidTarget)
		}
		if err := l.validateTarget(t, false); err != nil {
			return err
		}
	}
	l.install(append([]*model.Object(nil), targets...),
		append([]string(nil), subs...), make([]shadow.Path, len(subs)))
	for i := range l.subs {
		updateSubs(l.host, l, l.targets[i], l.subs[i:i+1], l.shadows[i:i+1], nil, false)
	}
	return nil
}

// Restore installs targets, paths, and shadows verbatim from a document
// file; see LinkSub.Restore.
func (l *LinkSubList) Restore(targets []*model.Object, subs []string, shadows []shadow.Path) error {
	if len(targets) != len(subs) {
		return fmt.Errorf("link: %s: %w", l.FullName(), apperr.ErrLengthMismatch)
	}
	for _, t := range targets {
		if err := l.validateTarget(t, false); err != nil {
			return err
		}
	}
	for len(shadows) < len(subs) {
		shadows = append(shadows, shadow.Path{})
	}
	l.install(targets, subs, shadows)
	oracle := l.host.Resolver().Oracle()
	for i, sub := range l.subs {
		start := l.shadows[i].Effective(true, sub)
		if model.PathElement(start) == "" {
			continue
		}
		if ans, err := oracle.ResolveElement(l.targets[i], start, true, nil); err == nil && ans.Producer != nil {
			l.host.ElementRefs().Register(ans.Producer, l)
		}
	}
	return nil
}

func (l *LinkSubList) install(targets []*model.Object, subs []string, shadows []shadow.Path) {
	l.deregisterAll(l)
	for _, t := range l.targets {
		l.dropEdge(t, l)
	}
	for _, t := range targets {
		l.addEdge(t, l)
	}
	l.targets = targets
	l.subs = subs
	l.shadows = shadows
	l.registerLabels(l.subs, l)
}

// Values returns the aligned target and path lists.
func (l *LinkSubList) Values() ([]*model.Object, []string) {
	return append([]*model.Object(nil), l.targets...), append([]string(nil), l.subs...)
}

// Shadows returns the stored shadow paths.
func (l *LinkSubList) Shadows() []shadow.Path {
	return append([]shadow.Path(nil), l.shadows...)
}

func (l *LinkSubList) Targets() []*model.Object {
	var out []*model.Object
	for _, t := range l.targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (l *LinkSubList) Paths(preferNew bool) []string {
	return pathsWithStyle(l.subs, l.shadows, preferNew)
}

func (l *LinkSubList) UpdateElementReference(producer *model.Object, reverse bool) (bool, error) {
	changed := false
	for i := range l.subs {
		if l.targets[i] == nil {
			continue
		}
		if updateSubs(l.host, l, l.targets[i], l.subs[i:i+1], l.shadows[i:i+1], producer, reverse) {
			changed = true
		}
	}
	if changed {
		l.registerLabels(l.subs, l)
	}
	return changed, nil
}

func (l *LinkSubList) CopyOnLabelChange(obj *model.Object, ref, newLabel string) (Replacement, bool) {
	touched := false
	out := make([]string, len(l.subs))
	copy(out, l.subs)
	for i, sub := range out {
		if l.targets[i] == nil {
			continue
		}
		if newSub, ok := UpdateLabelReference(l.targets[i], sub, obj, ref, newLabel); ok {
			out[i] = newSub
			touched = true
		}
	}
	if !touched {
		return Replacement{}, false
	}
	return Replacement{Field: l, Paths: out}, true
}

func (l *LinkSubList) ApplyPaths(paths []string) error {
	return l.SetValues(l.targets, paths)
}

// TryReplace applies the substitution per element. The backing slices are
// reallocated only once at least one element actually changed.
func (l *LinkSubList) TryReplace(parent, oldObj, newObj *model.Object) (bool, error) {
	var targets []*model.Object
	var subs []string
	for i, t := range l.targets {
		nt, newSub := TryReplace(l.owner, t, parent, oldObj, newObj, l.subs[i])
		if nt == nil {
			if targets != nil {
				targets = append(targets, t)
				subs = append(subs, l.subs[i])
			}
			continue
		}
		if targets == nil {
			targets = append(targets, l.targets[:i]...)
			subs = append(subs, l.subs[:i]...)
		}
		targets = append(targets, nt)
		subs = append(subs, newSub)
	}
	if targets == nil {
		return false, nil
	}
	return true, l.SetValues(targets, subs)
}

func (l *LinkSubList) AdjustLink(absorbed map[*model.Object]bool) (bool, error) {
	if l.hidden() {
		return false, nil
	}
	touched := false
	targets := append([]*model.Object(nil), l.targets...)
	subs := append([]string(nil), l.subs...)
	for i, t := range targets {
		if t == nil || !t.Attached() || !absorbed[t] {
			continue
		}
		nt, newSubs, ok := AdjustSubs(t, subs[i:i+1], absorbed, false)
		if !ok {
			return false, nil
		}
		targets[i] = nt
		subs[i] = newSubs[0]
		touched = true
	}
	if !touched {
		return false, nil
	}
	return true, l.SetValues(targets, subs)
}

func (l *LinkSubList) BreakLink(obj *model.Object, clear bool) {
	if clear && l.owner == obj {
		l.Clear()
		return
	}
	var targets []*model.Object
	var subs []string
	for i, t := range l.targets {
		if t == obj {
			continue
		}
		targets = append(targets, t)
		subs = append(subs, l.subs[i])
	}
	if len(targets) == len(l.targets) {
		return
	}
	_ = l.SetValues(targets, subs)
}

func (l *LinkSubList) Clear() {
	l.deregisterAll(l)
	for _, t := range l.targets {
		l.dropEdge(t, l)
	}
	l.targets = nil
	l.subs = nil
	l.shadows = nil
}
