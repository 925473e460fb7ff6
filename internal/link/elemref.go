package link

import (
	"log/slog"

	"github.com/starford/ehwaz/internal/model"
)

// ElementIndex is the reverse index from a naming-producer object to the
// fields whose resolved paths terminate inside its naming space. A
// producer's naming epoch change fans out through UpdateAll.
type ElementIndex struct {
	byProducer map[model.Handle]map[Field]struct{}
	byField    map[Field]map[model.Handle]struct{}
	logger     *slog.Logger
}

// NewElementIndex creates an empty element reference index.
func NewElementIndex(logger *slog.Logger) *ElementIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &ElementIndex{
		byProducer: make(map[model.Handle]map[Field]struct{}),
		byField:    make(map[Field]map[model.Handle]struct{}),
		logger:     logger,
	}
}

// Register records that f depends on producer's element names. Idempotent.
func (ix *ElementIndex) Register(producer *model.Object, f Field) {
	if producer == nil {
		return
	}
	h := producer.Handle()
	set := ix.byProducer[h]
	if set == nil {
		set = make(map[Field]struct{})
		ix.byProducer[h] = set
	}
	set[f] = struct{}{}
	rev := ix.byField[f]
	if rev == nil {
		rev = make(map[model.Handle]struct{})
		ix.byField[f] = rev
	}
	rev[h] = struct{}{}
}

// UnregisterAll drops every registration of f. Tolerant of double calls.
func (ix *ElementIndex) UnregisterAll(f Field) {
	for h := range ix.byField[f] {
		if set := ix.byProducer[h]; set != nil {
			delete(set, f)
			if len(set) == 0 {
				delete(ix.byProducer, h)
			}
		}
	}
	delete(ix.byField, f)
}

// FieldsOf returns the fields registered against producer.
func (ix *ElementIndex) FieldsOf(producer *model.Object) []Field {
	set := ix.byProducer[producer.Handle()]
	if len(set) == 0 {
		return nil
	}
	out := make([]Field, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	return out
}

// UpdateAll recomputes every dependent field after producer's naming epoch
// changed. Per-field failures are logged and never propagated, so one broken
// reference cannot block updates to its siblings. Returns the fields whose
// effective path text changed.
func (ix *ElementIndex) UpdateAll(producer *model.Object, reverse bool) []Field {
	if producer == nil || !producer.Attached() {
		return nil
	}
	fields := ix.FieldsOf(producer)
	var changed []Field
	for _, f := range fields {
		if f.Owner() == nil || f.Owner().Destroying() {
			continue
		}
		didChange, err := f.UpdateElementReference(producer, reverse)
		if err != nil {
			ix.logger.Error("elemref: failed to update element reference",
				slog.String("field", f.FullName()),
				slog.String("producer", producer.FullName()),
				slog.String("error", err.Error()))
			continue
		}
		if didChange {
			changed = append(changed, f)
		}
	}
	return changed
}

// UpdateAllFields recomputes every registered field against all of its
// producers, for whole-workspace sweeps such as a reverse migration pass.
// The field set is snapshotted first; updates re-register producers as they
// resolve.
func (ix *ElementIndex) UpdateAllFields(reverse bool) []Field {
	fields := make([]Field, 0, len(ix.byField))
	for f := range ix.byField {
		fields = append(fields, f)
	}
	var changed []Field
	for _, f := range fields {
		if f.Owner() == nil || f.Owner().Destroying() {
			continue
		}
		didChange, err := f.UpdateElementReference(nil, reverse)
		if err != nil {
			ix.logger.Error("elemref: failed to update element reference",
				slog.String("field", f.FullName()),
				slog.String("error", err.Error()))
			continue
		}
		if didChange {
			changed = append(changed, f)
		}
	}
	return changed
}
