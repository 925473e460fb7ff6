package link

import (
	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/model"
)

// Link is a single-target link field with no sub-element path.
type Link struct {
	base
	target *model.Object
}

// NewLink creates an empty single-target link owned by owner.
func NewLink(h Host, owner *model.Object, name string, scope model.Scope) *Link {
	return &Link{base: base{host: h, owner: owner, name: name, scope: scope}}
}

var _ Field = (*Link)(nil)

// SetValue points the link at t (nil clears). Back-link edges are updated
// before the new value is published.
func (l *Link) SetValue(t *model.Object) error {
	if err := l.validateTarget(t, false); err != nil {
		return err
	}
	l.dropEdge(l.target, l)
	l.addEdge(t, l)
	l.target = t
	return nil
}

// Value returns the current target, or nil.
func (l *Link) Value() *model.Object { return l.target }

func (l *Link) Targets() []*model.Object {
	if l.target == nil {
		return nil
	}
	return []*model.Object{l.target}
}

func (l *Link) Paths(bool) []string { return nil }

func (l *Link) UpdateElementReference(*model.Object, bool) (bool, error) {
	return false, nil
}

func (l *Link) CopyOnLabelChange(*model.Object, string, string) (Replacement, bool) {
	return Replacement{}, false
}

func (l *Link) ApplyPaths([]string) error {
	return apperr.ErrInvalidTarget
}

func (l *Link) TryReplace(parent, oldObj, newObj *model.Object) (bool, error) {
	t, _ := TryReplace(l.owner, l.target, parent, oldObj, newObj, "")
	if t == nil {
		return false, nil
	}
	return true, l.SetValue(t)
}

func (l *Link) AdjustLink(map[*model.Object]bool) (bool, error) {
	// No path to re-root through; adjustment never applies.
	return false, nil
}

func (l *Link) BreakLink(obj *model.Object, clear bool) {
	if l.target == obj || (clear && l.owner == obj) {
		l.Clear()
	}
}

// Clear resets the field, removing its back-link edge. Safe while the owner
// is mid-destruction.
func (l *Link) Clear() {
	l.dropEdge(l.target, l)
	l.target = nil
}
