package link

import (
	"log/slog"
	"sort"

	"github.com/starford/ehwaz/internal/model"
)

// Loader is implemented by the embedding engine. The table never loads a
// document itself; it only asks the embedder to, and hears back through the
// On* event methods.
type Loader interface {
	// CanonicalPath resolves file relative to owner's document location and
	// canonicalizes it. owner may be nil for already workspace-relative
	// paths. Fails when owner is unsaved and file is relative.
	CanonicalPath(owner *model.Document, file string) (string, error)
	// RelativePath renders canonical for storage inside owner's document.
	RelativePath(owner *model.Document, canonical string) string
	// FindDocument returns the loaded document at canonical, or nil.
	FindDocument(canonical string) *model.Document
	// QueuePendingLoad asks the embedder to load objName from the document
	// at canonical. Fulfilled asynchronously via OnDocumentLoaded.
	QueuePendingLoad(canonical, objName string, allowPartial bool)
}

// DocRecord tracks every cross-document link aimed at one physical document,
// keyed by canonical path. References reached through different relative
// spellings share one record.
type DocRecord struct {
	table *DocTable
	key   string
	doc   *model.Document
	links map[*XLink]struct{}
}

// Key returns the canonical document path.
func (r *DocRecord) Key() string { return r.key }

// Document returns the attached document, or nil while pending/detached.
func (r *DocRecord) Document() *model.Document { return r.doc }

// StoredPath renders the record's path for storage inside owner's document.
func (r *DocRecord) StoredPath(owner *model.Document) string {
	return r.table.loader.RelativePath(owner, r.key)
}

// Links returns the registered links, ordered by field name for stable
// query output.
func (r *DocRecord) Links() []*XLink {
	out := make([]*XLink, 0, len(r.links))
	for l := range r.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}

// remove drops l from the record, discarding the record once empty.
func (r *DocRecord) remove(l *XLink) {
	delete(r.links, l)
	if len(r.links) == 0 {
		delete(r.table.recs, r.key)
	}
}

// attach binds doc and replays every unresolved link against it.
func (r *DocRecord) attach(doc *model.Document) {
	r.doc = doc
	r.table.logger.Info("xdoc: attaching document",
		slog.String("path", r.key),
		slog.Int("links", len(r.links)))
	for l := range r.links {
		if l.target != nil {
			continue
		}
		r.resolveLink(l)
	}
}

// resolveLink resolves one link's object name inside the attached document.
// A missing object in a partial document triggers a targeted reload request
// instead of failing permanently.
func (r *DocRecord) resolveLink(l *XLink) {
	obj := r.doc.Object(l.objName)
	if obj != nil {
		l.attach(obj)
		r.table.notifyEvent("link.attached", map[string]string{
			"field":    l.FullName(),
			"document": r.key,
			"object":   l.objName,
		})
		return
	}
	if r.doc.Partial() {
		r.table.logger.Warn("xdoc: reloading partial document",
			slog.String("path", r.key),
			slog.String("object", l.objName))
		r.table.loader.QueuePendingLoad(r.key, l.objName, false)
		l.state = RefPending
		return
	}
	r.table.logger.Warn("xdoc: object not found in document",
		slog.String("path", r.key),
		slog.String("object", l.objName))
	l.state = RefUnresolved
}

// detach unbinds the document, moving every attached link to Detached while
// preserving its stored object name and path texts for a later re-attach.
func (r *DocRecord) detach() {
	for l := range r.links {
		if l.target != nil {
			l.detach()
			r.table.notifyEvent("link.detached", map[string]string{
				"field":    l.FullName(),
				"document": r.key,
			})
		} else {
			l.state = RefDetached
		}
	}
	r.doc = nil
}

// DocTable is the process-wide resolver table for cross-document
// references, keyed by canonical document path.
type DocTable struct {
	loader Loader
	logger *slog.Logger
	recs   map[string]*DocRecord
	notify func(event string, data map[string]string)
}

// NewDocTable creates an empty table over the given loader.
func NewDocTable(loader Loader, logger *slog.Logger) *DocTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocTable{loader: loader, logger: logger, recs: make(map[string]*DocRecord)}
}

// SetNotifier installs an advisory event callback (SSE fan-out and the
// like). Events: link.attached, link.detached, link.stale, link.pending.
func (t *DocTable) SetNotifier(fn func(event string, data map[string]string)) {
	t.notify = fn
}

func (t *DocTable) notifyEvent(event string, data map[string]string) {
	if t.notify != nil {
		t.notify(event, data)
	}
}

// Record returns the record at the canonical path, or nil.
func (t *DocTable) Record(canonical string) *DocRecord {
	return t.recs[canonical]
}

// Records returns every live record.
func (t *DocTable) Records() []*DocRecord {
	out := make([]*DocRecord, 0, len(t.recs))
	for _, r := range t.recs {
		out = append(out, r)
	}
	return out
}

// Get finds or creates the record for file (resolved against owner) and
// registers l with it. When the document is not loaded, a pending load is
// queued; multiple references to the same physical document share one
// record even when reached via different relative paths.
func (t *DocTable) Get(file string, owner *model.Document, l *XLink) (*DocRecord, error) {
	canonical, err := t.loader.CanonicalPath(owner, file)
	if err != nil {
		return nil, err
	}
	rec := t.recs[canonical]
	if rec == nil {
		rec = &DocRecord{table: t, key: canonical, links: make(map[*XLink]struct{})}
		t.recs[canonical] = rec
		if doc := t.loader.FindDocument(canonical); doc != nil {
			if !doc.Partial() || doc.Object(l.objName) != nil {
				rec.doc = doc
			}
		}
	}
	rec.links[l] = struct{}{}
	if rec.doc == nil {
		t.logger.Info("xdoc: document pending", slog.String("path", canonical))
		t.loader.QueuePendingLoad(canonical, l.objName, l.allowPartial)
		t.notifyEvent("link.pending", map[string]string{
			"field":    l.FullName(),
			"document": canonical,
			"object":   l.objName,
		})
	}
	return rec, nil
}

// OnDocumentLoaded fires when a document finishes loading. A record whose
// canonical path matches attaches and replays its links; firing twice for
// the same document is a no-op, so back-link edges are never duplicated.
func (t *DocTable) OnDocumentLoaded(doc *model.Document) {
	canonical, err := t.loader.CanonicalPath(nil, doc.Path())
	if err != nil {
		return
	}
	rec := t.recs[canonical]
	if rec == nil || rec.doc != nil {
		return
	}
	rec.attach(doc)
}

// OnDocumentUnloading fires before a document closes. Links owned by the
// closing document are fully unlinked (their back-link edges must go before
// owners are marked destroying); links targeting it are detached, keeping
// enough state to re-queue when the document returns.
func (t *DocTable) OnDocumentUnloading(doc *model.Document) {
	for key, rec := range t.recs {
		for l := range rec.links {
			if l.owner.Document() == doc {
				delete(rec.links, l)
				l.unlink()
			}
		}
		if len(rec.links) == 0 {
			delete(t.recs, key)
			continue
		}
		if rec.doc == doc {
			rec.detach()
		}
	}
}

// OnDocumentSaved fires after a document is written out. When its save
// location moved, the record is rekeyed to the new canonical path; a
// collision with a different existing record is a hard conflict and the
// moving record's links are detached rather than silently merged.
func (t *DocTable) OnDocumentSaved(doc *model.Document) {
	canonical, err := t.loader.CanonicalPath(nil, doc.Path())
	if err != nil {
		return
	}
	for key, rec := range t.recs {
		if rec.doc != doc {
			continue
		}
		if key == canonical {
			continue
		}
		if other, exists := t.recs[canonical]; exists && other != rec {
			t.logger.Warn("xdoc: document path exists, detaching",
				slog.String("old", key),
				slog.String("new", canonical))
			rec.detach()
			delete(t.recs, key)
			continue
		}
		t.logger.Info("xdoc: document path changed",
			slog.String("old", key),
			slog.String("new", canonical))
		delete(t.recs, key)
		rec.key = canonical
		t.recs[canonical] = rec
		for l := range rec.links {
			l.file = rec.StoredPath(l.owner.Document())
		}
	}
	// A save that fulfills an earlier pending reference.
	if rec := t.recs[canonical]; rec != nil && rec.doc == nil {
		rec.attach(doc)
	}
}
