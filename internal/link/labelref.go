package link

import (
	"strings"

	"github.com/starford/ehwaz/internal/model"
)

// LabelIndex is the reverse index from label strings to the fields whose
// stored paths embed a '$Label.' segment with that label. A label rename
// produces copy-on-write replacements; applying them is the caller's call,
// which supports batching inside an atomic multi-field rename.
type LabelIndex struct {
	byLabel map[string]map[Field]struct{}
	byField map[Field]map[string]struct{}
}

// NewLabelIndex creates an empty label reference index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{
		byLabel: make(map[string]map[Field]struct{}),
		byField: make(map[Field]map[string]struct{}),
	}
}

// Register records f under each label. With reset set, prior registrations
// of f are dropped first.
func (ix *LabelIndex) Register(labels []string, f Field, reset bool) {
	if reset {
		ix.UnregisterAll(f)
	}
	for _, label := range labels {
		set := ix.byLabel[label]
		if set == nil {
			set = make(map[Field]struct{})
			ix.byLabel[label] = set
		}
		set[f] = struct{}{}
		rev := ix.byField[f]
		if rev == nil {
			rev = make(map[string]struct{})
			ix.byField[f] = rev
		}
		rev[label] = struct{}{}
	}
}

// UnregisterAll drops every registration of f. Tolerant of double calls.
func (ix *LabelIndex) UnregisterAll(f Field) {
	for label := range ix.byField[f] {
		if set := ix.byLabel[label]; set != nil {
			delete(set, f)
			if len(set) == 0 {
				delete(ix.byLabel, label)
			}
		}
	}
	delete(ix.byField, f)
}

// FieldsOf returns the fields registered under label.
func (ix *LabelIndex) FieldsOf(label string) []Field {
	set := ix.byLabel[label]
	if len(set) == 0 {
		return nil
	}
	out := make([]Field, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	return out
}

// OnLabelChanged computes, for every dependent field, a copy-on-write
// replacement of its stored path texts with obj's label rewritten to
// newLabel. Fields lacking the marker are untouched. Nothing is applied
// here; callers receive the pairs and decide when to apply them.
func (ix *LabelIndex) OnLabelChanged(obj *model.Object, newLabel string) []Replacement {
	if obj == nil || !obj.Attached() {
		return nil
	}
	ref := "$" + obj.Label() + "."
	var out []Replacement
	for _, f := range ix.FieldsOf(obj.Label()) {
		if f.Owner() == nil || f.Owner().Destroying() {
			continue
		}
		if rep, ok := f.CopyOnLabelChange(obj, ref, newLabel); ok {
			out = append(out, rep)
		}
	}
	return out
}

// UpdateLabelReference rewrites one occurrence of ref ("$OldLabel.") in path
// to use newLabel, but only where the prefix up to that occurrence actually
// resolves to obj under parent. Labels are not unique across hierarchies, so
// every occurrence is checked until one verifies. Returns ok=false when no
// occurrence matches.
func UpdateLabelReference(parent *model.Object, path string, obj *model.Object, ref, newLabel string) (string, bool) {
	if obj == nil || !obj.Attached() || parent == nil || !parent.Attached() {
		return "", false
	}
	for pos := 0; ; {
		i := strings.Index(path[pos:], ref)
		if i < 0 {
			return "", false
		}
		i += pos
		prefix := path[:i+len(ref)]
		if parent.SubObject(prefix) == obj {
			// Keep the '$' and the trailing '.', swap the label between.
			return path[:i+1] + newLabel + path[i+len(ref)-1:], true
		}
		pos = i + len(ref)
	}
}
