// Package naming provides the default naming oracle: per-object element maps
// with stable old-style tokens ("Edge1") and versioned new-style tokens
// (";g<epoch>;Edge1"). Missing elements carry a leading '?' marker. Removed
// elements keep their geometry signature so the resolver's fallback search
// can suggest a consistent replacement.
package naming

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

const (
	mappedPrefix  = ";"
	missingPrefix = "?"
)

// elementMap is the naming state of one producer object.
type elementMap struct {
	epoch int
	fwd   map[string]string // old name -> current mapped name
	rev   map[string]string // mapped name (any epoch) -> old name
	gone  map[string]bool   // old names whose element disappeared
	geo   map[string]string // old name -> geometry signature (kept after removal)
}

// Table implements shadow.Oracle over arena-held objects.
type Table struct {
	arena *model.Arena
	maps  map[model.Handle]*elementMap
}

// NewTable creates an empty naming table.
func NewTable(arena *model.Arena) *Table {
	return &Table{arena: arena, maps: make(map[model.Handle]*elementMap)}
}

var _ shadow.Oracle = (*Table)(nil)

func (t *Table) mapOf(o *model.Object, create bool) *elementMap {
	em := t.maps[o.Handle()]
	if em == nil && create {
		em = &elementMap{
			epoch: 1,
			fwd:   make(map[string]string),
			rev:   make(map[string]string),
			gone:  make(map[string]bool),
			geo:   make(map[string]string),
		}
		t.maps[o.Handle()] = em
	}
	return em
}

func (t *Table) mapped(em *elementMap, old string) string {
	return fmt.Sprintf("%sg%d%s%s", mappedPrefix, em.epoch, mappedPrefix, old)
}

// DefineElement registers an element under producer and returns its current
// mapped name. geoSig is an opaque geometry signature used by cache search.
func (t *Table) DefineElement(producer *model.Object, old, geoSig string) string {
	em := t.mapOf(producer, true)
	m := t.mapped(em, old)
	em.fwd[old] = m
	em.rev[m] = old
	em.geo[old] = geoSig
	delete(em.gone, old)
	return m
}

// RemoveElement marks an element as gone. Its geometry signature is kept so
// the fallback search can still locate a consistent replacement.
func (t *Table) RemoveElement(producer *model.Object, old string) {
	em := t.mapOf(producer, false)
	if em == nil {
		return
	}
	delete(em.fwd, old)
	em.gone[old] = true
}

// BumpEpoch re-versions every mapped name of producer, modeling an element
// map re-generation. Older mapped names keep resolving to their old names.
func (t *Table) BumpEpoch(producer *model.Object) {
	em := t.mapOf(producer, false)
	if em == nil {
		return
	}
	em.epoch++
	for old := range em.fwd {
		m := t.mapped(em, old)
		em.fwd[old] = m
		em.rev[m] = old
	}
}

// Drop discards all naming data held under the given handle. Called when the
// owning object is removed.
func (t *Table) Drop(h model.Handle) {
	delete(t.maps, h)
}

// HasNaming reports whether producer carries naming data.
func (t *Table) HasNaming(producer *model.Object) bool {
	return t.maps[producer.Handle()] != nil
}

// ResolveElement implements shadow.Oracle.
func (t *Table) ResolveElement(target *model.Object, rawPath string, export bool, producerScope *model.Object) (shadow.Resolution, error) {
	var res shadow.Resolution
	if target == nil || !target.Attached() {
		return res, fmt.Errorf("naming: target not attached")
	}
	objs, element := model.SplitPath(rawPath)
	cur := target
	var prefix strings.Builder
	for _, seg := range objs {
		if label, ok := model.LabelSegment(seg); ok {
			cur = cur.ChildByLabel(label)
		} else {
			cur = cur.Child(seg)
		}
		if cur == nil {
			return res, fmt.Errorf("naming: cannot resolve segment %q in %s", seg, rawPath)
		}
		if export {
			prefix.WriteString(cur.Name())
		} else {
			prefix.WriteString(seg)
		}
		prefix.WriteByte('.')
	}
	res.Target = cur
	res.Element = element
	if element == "" {
		// Path selects an object only; nothing for the oracle to name.
		return res, nil
	}

	em := t.maps[cur.Handle()]
	if em == nil {
		return res, fmt.Errorf("naming: %s has no naming data", cur.FullName())
	}
	res.Producer = cur

	old := element
	if strings.HasPrefix(element, mappedPrefix) {
		old = em.rev[element]
		if old == "" {
			return shadow.Resolution{Target: cur}, fmt.Errorf("naming: unknown mapped element %q", element)
		}
	}
	old = strings.TrimPrefix(old, missingPrefix)

	p := prefix.String()
	if em.gone[old] {
		res.Old = p + missingPrefix + old
		res.New = p + missingPrefix + t.mapped(em, old)
		return res, nil
	}
	m, ok := em.fwd[old]
	if !ok {
		return shadow.Resolution{Target: cur}, fmt.Errorf("naming: unknown element %q in %s", old, cur.FullName())
	}
	res.Old = p + old
	res.New = p + m
	return res, nil
}

// IsElementMissing implements shadow.Oracle.
func (t *Table) IsElementMissing(token string) bool {
	return strings.HasPrefix(token, missingPrefix)
}

// IsMappedElement implements shadow.Oracle.
func (t *Table) IsMappedElement(token string) bool {
	return strings.HasPrefix(token, mappedPrefix)
}

// SearchElementCache implements shadow.Oracle: returns the current mapped
// names of live elements whose geometry signature matches that recorded for
// oldElement. Best effort, ordered by old name for determinism.
func (t *Table) SearchElementCache(producer *model.Object, oldElement string) []string {
	em := t.mapOf(producer, false)
	if em == nil {
		return nil
	}
	sig, ok := em.geo[strings.TrimPrefix(oldElement, missingPrefix)]
	if !ok || sig == "" {
		return nil
	}
	var olds []string
	for old, s := range em.geo {
		if s == sig && !em.gone[old] && old != oldElement {
			if _, live := em.fwd[old]; live {
				olds = append(olds, old)
			}
		}
	}
	if len(olds) == 0 {
		return nil
	}
	sort.Strings(olds)
	out := make([]string, 0, len(olds))
	for _, old := range olds {
		out = append(out, em.fwd[old])
	}
	return out
}
