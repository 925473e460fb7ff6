// Package engine ties the model, naming, and link layers into one facade.
// All mutations enter through the engine; a single mutex serializes them, so
// the layers below never lock. Reference consistency is maintained
// synchronously at each mutation boundary.
package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/docio"
	"github.com/starford/ehwaz/internal/link"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/naming"
	"github.com/starford/ehwaz/internal/refindex"
	"github.com/starford/ehwaz/internal/shadow"
	"github.com/starford/ehwaz/internal/workspace"
)

// Notifier receives advisory change events for fan-out (SSE, logs).
type Notifier func(event string, data map[string]string)

// Engine owns the live workspace state: loaded documents, their objects and
// link fields, and the indices that keep references consistent.
type Engine struct {
	mu sync.Mutex

	arena     *model.Arena
	naming    *naming.Table
	resolver  *shadow.Resolver
	backlinks *link.Registry
	elemRefs  *link.ElementIndex
	labelRefs *link.LabelIndex
	docTable  *link.DocTable

	store  workspace.Provider // nil for an in-memory engine
	index  refindex.RefIndex  // nil when indexing is disabled
	logger *slog.Logger
	notify Notifier

	docs    map[string]*model.Document // canonical path -> loaded document
	unsaved map[string]*model.Document // document id -> unsaved document
	fields  map[model.Handle][]link.Field

	pending []pendingLoad
	loading int // depth guard: pending loads drain only at the top level
}

type pendingLoad struct {
	path    string
	objName string
	partial bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore attaches a workspace file provider.
func WithStore(store workspace.Provider) Option {
	return func(e *Engine) { e.store = store }
}

// WithIndex attaches a reference index kept current on save and close.
func WithIndex(idx refindex.RefIndex) Option {
	return func(e *Engine) { e.index = idx }
}

// WithNotifier attaches an advisory event callback.
func WithNotifier(fn Notifier) Option {
	return func(e *Engine) { e.notify = fn }
}

// New creates an engine. A nil logger falls back to slog.Default.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:  logger,
		docs:    make(map[string]*model.Document),
		unsaved: make(map[string]*model.Document),
		fields:  make(map[model.Handle][]link.Field),
	}
	e.arena = model.NewArena()
	e.naming = naming.NewTable(e.arena)
	e.resolver = shadow.NewResolver(e.naming, logger)
	e.backlinks = link.NewRegistry(e.arena)
	e.elemRefs = link.NewElementIndex(logger)
	e.labelRefs = link.NewLabelIndex()
	e.docTable = link.NewDocTable(e, logger)
	for _, opt := range opts {
		opt(e)
	}
	if e.notify != nil {
		e.docTable.SetNotifier(e.notify)
	}
	return e
}

// Host implementation. These return shared indices and are called by fields
// while an engine operation holds the lock; they must not lock themselves.

func (e *Engine) Resolver() *shadow.Resolver { return e.resolver }
func (e *Engine) Backlinks() *link.Registry { return e.backlinks }
func (e *Engine) ElementRefs() *link.ElementIndex { return e.elemRefs }
func (e *Engine) LabelRefs() *link.LabelIndex { return e.labelRefs }
func (e *Engine) DocTable() *link.DocTable { return e.docTable }
func (e *Engine) Logger() *slog.Logger { return e.logger }

var _ link.Host = (*Engine)(nil)
var _ link.Loader = (*Engine)(nil)
var _ docio.FieldStore = (*Engine)(nil)

// Naming returns the element naming table.
func (e *Engine) Naming() *naming.Table { return e.naming }

// Arena returns the object arena.
func (e *Engine) Arena() *model.Arena { return e.arena }

func (e *Engine) emit(event string, data map[string]string) {
	if e.notify != nil {
		e.notify(event, data)
	}
}

// FieldStore implementation. Constructors register the new field with its
// owner; callers serialize through the engine's public operations.

// Fields returns the link fields owned by obj, in creation order.
func (e *Engine) Fields(obj *model.Object) []link.Field {
	return e.fields[obj.Handle()]
}

func (e *Engine) NewLink(owner *model.Object, name string, scope model.Scope) *link.Link {
	f := link.NewLink(e, owner, name, scope)
	e.addField(owner, f)
	return f
}

func (e *Engine) NewLinkSub(owner *model.Object, name string, scope model.Scope) *link.LinkSub {
	f := link.NewLinkSub(e, owner, name, scope)
	e.addField(owner, f)
	return f
}

func (e *Engine) NewLinkSubList(owner *model.Object, name string, scope model.Scope) *link.LinkSubList {
	f := link.NewLinkSubList(e, owner, name, scope)
	e.addField(owner, f)
	return f
}

func (e *Engine) NewXLink(owner *model.Object, name string, scope model.Scope) *link.XLink {
	f := link.NewXLink(e, owner, name, scope)
	e.addField(owner, f)
	return f
}

func (e *Engine) addField(owner *model.Object, f link.Field) {
	e.fields[owner.Handle()] = append(e.fields[owner.Handle()], f)
}

// Field returns the named field of obj, or nil.
func (e *Engine) Field(obj *model.Object, name string) link.Field {
	for _, f := range e.fields[obj.Handle()] {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// allFields returns every live field in deterministic document/object/field
// order, for whole-workspace sweeps.
func (e *Engine) allFields() []link.Field {
	docs := make([]*model.Document, 0, len(e.docs)+len(e.unsaved))
	for _, d := range e.docs {
		docs = append(docs, d)
	}
	for _, d := range e.unsaved {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DisplayName() < docs[j].DisplayName() })
	var out []link.Field
	for _, d := range docs {
		for _, obj := range d.Objects() {
			out = append(out, e.fields[obj.Handle()]...)
		}
	}
	return out
}

// Loader implementation.

// CanonicalPath resolves file relative to owner's document and canonicalizes
// it to a workspace-relative slash path. URIs pass through untouched. A
// relative path from an unsaved document cannot be resolved.
func (e *Engine) CanonicalPath(owner *model.Document, file string) (string, error) {
	if strings.Contains(file, "://") || filepath.IsAbs(file) {
		return workspace.Canonical(file), nil
	}
	if owner == nil {
		return workspace.Canonical(file), nil
	}
	if owner.Unsaved() {
		return "", fmt.Errorf("engine: relative path %q from unsaved document %s: %w",
			file, owner.DisplayName(), apperr.ErrUnsavedOwner)
	}
	return workspace.Resolve(owner.Dir(), file), nil
}

// RelativePath renders canonical for storage inside owner's document.
func (e *Engine) RelativePath(owner *model.Document, canonical string) string {
	if owner == nil || owner.Unsaved() {
		return canonical
	}
	return workspace.Relative(owner.Dir(), canonical)
}

// FindDocument returns the loaded document at canonical, or nil.
func (e *Engine) FindDocument(canonical string) *model.Document {
	return e.docs[canonical]
}

// QueuePendingLoad records a deferred document load. Duplicate requests for
// the same document and object collapse. The queue drains when the current
// top-level operation completes.
func (e *Engine) QueuePendingLoad(canonical, objName string, allowPartial bool) {
	for i, p := range e.pending {
		if p.path != canonical {
			continue
		}
		if p.objName == objName {
			return
		}
		// A second object from the same document forces a full load.
		if p.partial && !allowPartial {
			e.pending[i].partial = false
		}
		return
	}
	e.pending = append(e.pending, pendingLoad{path: canonical, objName: objName, partial: allowPartial})
}
