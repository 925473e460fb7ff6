// Package model defines the object/document data model: arena-backed object
// identity, document lifecycle, and sub-element path parsing.
package model

// Handle identifies an object slot in an Arena. Handles stay stable across
// the object's lifetime; after the object is released the handle goes stale
// and every lookup through it fails. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the invalid zero handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

type slot struct {
	obj *Object
	gen uint32
}

// Arena owns every live Object and hands out generation-counted handles.
// Freed slots are recycled with a bumped generation so stale handles can
// never resolve to a newer occupant.
type Arena struct {
	slots []slot
	free  []uint32
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) alloc(o *Object) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].obj = o
		return Handle{index: idx, gen: a.slots[idx].gen}
	}
	a.slots = append(a.slots, slot{obj: o, gen: 1})
	return Handle{index: uint32(len(a.slots) - 1), gen: 1}
}

func (a *Arena) release(h Handle) {
	if !a.Alive(h) {
		return
	}
	a.slots[h.index].obj = nil
	a.slots[h.index].gen++
	a.free = append(a.free, h.index)
}

// Get returns the object behind h, or false when h is stale or zero.
func (a *Arena) Get(h Handle) (*Object, bool) {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := a.slots[h.index]
	if s.gen != h.gen || s.obj == nil {
		return nil, false
	}
	return s.obj, true
}

// Alive reports whether h still resolves to a live object.
func (a *Arena) Alive(h Handle) bool {
	_, ok := a.Get(h)
	return ok
}
