package link

import "github.com/starford/ehwaz/internal/model"

// Registry is the back-link index: for every target object, the set of
// fields currently referencing it. It stores non-owning associations keyed
// by arena handle, so lookups against destroyed objects simply miss instead
// of dangling. Edge removal is idempotent.
type Registry struct {
	arena *model.Arena
	edges map[model.Handle]map[Field]struct{}
}

// NewRegistry creates an empty back-link registry.
func NewRegistry(arena *model.Arena) *Registry {
	return &Registry{arena: arena, edges: make(map[model.Handle]map[Field]struct{})}
}

// AddEdge records that f references target. Idempotent.
func (r *Registry) AddEdge(target *model.Object, f Field) {
	if target == nil {
		return
	}
	h := target.Handle()
	set := r.edges[h]
	if set == nil {
		set = make(map[Field]struct{})
		r.edges[h] = set
	}
	set[f] = struct{}{}
}

// RemoveEdge drops the edge from target to f. A missing entry is a no-op.
func (r *Registry) RemoveEdge(target *model.Object, f Field) {
	if target == nil {
		return
	}
	h := target.Handle()
	set := r.edges[h]
	if set == nil {
		return
	}
	delete(set, f)
	if len(set) == 0 {
		delete(r.edges, h)
	}
}

// EdgesOf returns the fields referencing target whose owners are live and
// not mid-destruction.
func (r *Registry) EdgesOf(target *model.Object) []Field {
	if target == nil {
		return nil
	}
	set := r.edges[target.Handle()]
	if len(set) == 0 {
		return nil
	}
	out := make([]Field, 0, len(set))
	for f := range set {
		owner := f.Owner()
		if owner == nil || owner.Destroying() || !r.arena.Alive(owner.Handle()) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// InListOf returns the distinct owner objects of every field referencing
// target. Used by graph-editing operations to scope rewrites.
func (r *Registry) InListOf(target *model.Object) []*model.Object {
	fields := r.EdgesOf(target)
	seen := make(map[model.Handle]struct{}, len(fields))
	var out []*model.Object
	for _, f := range fields {
		o := f.Owner()
		if _, dup := seen[o.Handle()]; dup {
			continue
		}
		seen[o.Handle()] = struct{}{}
		out = append(out, o)
	}
	return out
}
