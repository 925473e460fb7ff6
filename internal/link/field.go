// Package link implements typed link fields and the process-wide indices
// that keep references consistent: the back-link registry, the element
// reference index, the label reference index, the cross-document resolver
// table, and the link rewriter used by graph-editing operations.
package link

import (
	"fmt"
	"log/slog"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

// Host provides the engine services fields depend on. Implemented by the
// engine; every field holds a non-owning reference.
type Host interface {
	Resolver() *shadow.Resolver
	Backlinks() *Registry
	ElementRefs() *ElementIndex
	LabelRefs() *LabelIndex
	DocTable() *DocTable
	Logger() *slog.Logger
}

// Field is the interface all link field variants implement. Indices store
// fields through it and never own them.
type Field interface {
	Owner() *model.Object
	Name() string
	Scope() model.Scope
	FullName() string

	// Targets returns the currently linked objects; nil entries excluded.
	Targets() []*model.Object
	// Paths returns the stored path texts, rendered in the preferred style.
	Paths(preferNew bool) []string

	// UpdateElementReference recomputes shadow paths against producer (nil
	// means all) and reports whether any effective path text changed.
	UpdateElementReference(producer *model.Object, reverse bool) (bool, error)
	// CopyOnLabelChange returns copy-on-write replacement path texts for a
	// label change of obj; ok is false when the field is unaffected. ref is
	// the literal "$OldLabel." marker text.
	CopyOnLabelChange(obj *model.Object, ref, newLabel string) (Replacement, bool)
	// ApplyPaths installs replacement path texts produced by
	// CopyOnLabelChange, keeping the current targets.
	ApplyPaths(paths []string) error
	// TryReplace rewrites the field for an oldObj -> newObj substitution
	// scoped at parent; reports whether the field changed.
	TryReplace(parent, oldObj, newObj *model.Object) (bool, error)
	// AdjustLink re-roots the field outside the absorbed set; reports
	// whether the field changed.
	AdjustLink(absorbed map[*model.Object]bool) (bool, error)
	// BreakLink drops references to obj; when clear is set the whole field
	// is reset regardless of target.
	BreakLink(obj *model.Object, clear bool)
	// Clear resets the field to no target and deregisters it everywhere.
	Clear()
}

// Replacement pairs a field with the replacement path texts produced by a
// label rename. Applying it is the caller's decision.
type Replacement struct {
	Field Field
	Paths []string
}

type base struct {
	host  Host
	owner *model.Object
	name  string
	scope model.Scope
}

func (b *base) Owner() *model.Object { return b.owner }
func (b *base) Name() string         { return b.name }
func (b *base) Scope() model.Scope   { return b.scope }

func (b *base) FullName() string {
	return b.owner.FullName() + "." + b.name
}

func (b *base) hidden() bool { return b.scope == model.ScopeHidden }

// validateTarget enforces the synchronous mutation-boundary checks: the
// target must be attached, must not be the owner itself, and must live in
// the owner's document unless the field allows external targets.
func (b *base) validateTarget(t *model.Object, allowExternal bool) error {
	if t == nil {
		return nil
	}
	if t == b.owner {
		return fmt.Errorf("link: %s: %w", b.FullName(), apperr.ErrSelfReference)
	}
	if !t.Attached() {
		return fmt.Errorf("link: %s: target %s not attached: %w", b.FullName(), t.Name(), apperr.ErrInvalidTarget)
	}
	if !allowExternal && b.owner.Document() != nil && t.Document() != b.owner.Document() {
		return fmt.Errorf("link: %s: external target %s not allowed: %w", b.FullName(), t.FullName(), apperr.ErrInvalidTarget)
	}
	return nil
}

// addEdge records the back-link unless the field is hidden.
func (b *base) addEdge(t *model.Object, f Field) {
	if t != nil && !b.hidden() {
		b.host.Backlinks().AddEdge(t, f)
	}
}

// dropEdge removes the back-link. Safe while t is mid-destruction; the
// registry stores handles, not object internals.
func (b *base) dropEdge(t *model.Object, f Field) {
	if t != nil && !b.hidden() {
		b.host.Backlinks().RemoveEdge(t, f)
	}
}

// registerLabels re-registers f under every label referenced by paths.
func (b *base) registerLabels(paths []string, f Field) {
	var labels []string
	for _, p := range paths {
		labels = append(labels, model.PathLabels(p)...)
	}
	b.host.LabelRefs().Register(labels, f, true)
}

func (b *base) deregisterAll(f Field) {
	b.host.LabelRefs().UnregisterAll(f)
	b.host.ElementRefs().UnregisterAll(f)
}

// pathsWithStyle renders stored paths through their shadows.
func pathsWithStyle(subs []string, shadows []shadow.Path, preferNew bool) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		var sh shadow.Path
		if i < len(shadows) {
			sh = shadows[i]
		}
		out[i] = sh.Effective(preferNew, s)
	}
	return out
}

// updateSubs runs the shadow resolver over every stored path, registering
// producers in the element index as they resolve. Per-path failures are
// logged by the resolver and never abort the remaining paths.
func updateSubs(h Host, f Field, target *model.Object, subs []string, shadows []shadow.Path, producer *model.Object, reverse bool) bool {
	changed := false
	for i := range subs {
		if model.PathElement(subs[i]) == "" && shadows[i].Empty() {
			continue
		}
		res := h.Resolver().Update(f.FullName(), producer, target, subs[i], shadows[i], reverse)
		if res.Touched && res.Producer != nil {
			h.ElementRefs().Register(res.Producer, f)
		}
		shadows[i] = res.Shadow
		if res.Changed {
			subs[i] = res.RawPath
			changed = true
		}
	}
	return changed
}
