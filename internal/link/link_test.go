package link

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/naming"
	"github.com/starford/ehwaz/internal/shadow"
)

// stubLoader treats every path as already canonical and records pending
// load requests instead of performing them.
type stubLoader struct {
	docs   map[string]*model.Document
	queued []string
}

func (s *stubLoader) CanonicalPath(_ *model.Document, file string) (string, error) {
	return file, nil
}

func (s *stubLoader) RelativePath(_ *model.Document, canonical string) string {
	return canonical
}

func (s *stubLoader) FindDocument(canonical string) *model.Document {
	return s.docs[canonical]
}

func (s *stubLoader) QueuePendingLoad(canonical, _ string, _ bool) {
	s.queued = append(s.queued, canonical)
}

type testHost struct {
	arena     *model.Arena
	naming    *naming.Table
	resolver  *shadow.Resolver
	backlinks *Registry
	elems     *ElementIndex
	labels    *LabelIndex
	table     *DocTable
	loader    *stubLoader
	logger    *slog.Logger
}

func newTestHost() *testHost {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	arena := model.NewArena()
	nt := naming.NewTable(arena)
	loader := &stubLoader{docs: make(map[string]*model.Document)}
	return &testHost{
		arena:     arena,
		naming:    nt,
		resolver:  shadow.NewResolver(nt, logger),
		backlinks: NewRegistry(arena),
		elems:     NewElementIndex(logger),
		labels:    NewLabelIndex(),
		table:     NewDocTable(loader, logger),
		loader:    loader,
		logger:    logger,
	}
}

func (h *testHost) Resolver() *shadow.Resolver { return h.resolver }
func (h *testHost) Backlinks() *Registry { return h.backlinks }
func (h *testHost) ElementRefs() *ElementIndex { return h.elems }
func (h *testHost) LabelRefs() *LabelIndex { return h.labels }
func (h *testHost) DocTable() *DocTable { return h.table }
func (h *testHost) Logger() *slog.Logger { return h.logger }

func (h *testHost) newDoc(path string) *model.Document {
	d := model.NewDocument(h.arena, "id-"+path)
	d.SetPath(path)
	h.loader.docs[path] = d
	return d
}

func mustObject(t *testing.T, d *model.Document, name string) *model.Object {
	t.Helper()
	o, err := d.NewObject(name)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestLinkBacklinkSymmetry(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	target := mustObject(t, doc, "Target")

	l := NewLink(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(target); err != nil {
		t.Fatal(err)
	}
	if got := h.backlinks.EdgesOf(target); len(got) != 1 || got[0] != Field(l) {
		t.Fatalf("edges = %v", got)
	}

	// Retargeting moves the edge.
	other := mustObject(t, doc, "Other")
	if err := l.SetValue(other); err != nil {
		t.Fatal(err)
	}
	if len(h.backlinks.EdgesOf(target)) != 0 {
		t.Error("old edge should be gone")
	}
	if len(h.backlinks.EdgesOf(other)) != 1 {
		t.Error("new edge missing")
	}

	l.Clear()
	if len(h.backlinks.EdgesOf(other)) != 0 {
		t.Error("edge should drop on clear")
	}
}

func TestLinkRejectsSelfAndDetached(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	target := mustObject(t, doc, "Target")

	l := NewLink(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(owner); !errors.Is(err, apperr.ErrSelfReference) {
		t.Errorf("self reference err = %v", err)
	}

	doc.RemoveObject("Target")
	if err := l.SetValue(target); !errors.Is(err, apperr.ErrInvalidTarget) {
		t.Errorf("detached target err = %v", err)
	}
}

func TestLinkRejectsCrossDocumentTarget(t *testing.T) {
	h := newTestHost()
	docA := h.newDoc("a.yaml")
	docB := h.newDoc("b.yaml")
	owner := mustObject(t, docA, "Owner")
	foreign := mustObject(t, docB, "Foreign")

	l := NewLink(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(foreign); !errors.Is(err, apperr.ErrInvalidTarget) {
		t.Errorf("cross-document err = %v", err)
	}
}

func TestHiddenScopeFormsNoEdge(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	target := mustObject(t, doc, "Target")

	l := NewLink(h, owner, "Ref", model.ScopeHidden)
	if err := l.SetValue(target); err != nil {
		t.Fatal(err)
	}
	if len(h.backlinks.EdgesOf(target)) != 0 {
		t.Error("hidden link must not form a back-link edge")
	}
	if l.Value() != target {
		t.Error("hidden link still carries its target")
	}
}

func TestEdgesOfSkipsDestroyingOwners(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	target := mustObject(t, doc, "Target")

	l := NewLink(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(target); err != nil {
		t.Fatal(err)
	}
	owner.MarkDestroying()
	if len(h.backlinks.EdgesOf(target)) != 0 {
		t.Error("edges of destroying owners must be filtered")
	}
}

func TestLinkSubShadowResolution(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	pad := mustObject(t, doc, "Pad")
	h.naming.DefineElement(pad, "Edge1", "")

	l := NewLinkSub(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(pad, []string{"Edge1"}); err != nil {
		t.Fatal(err)
	}
	sh := l.Shadows()
	if len(sh) != 1 || sh[0].OldName() != "Edge1" || sh[0].NewName() != ";g1;Edge1" {
		t.Fatalf("shadows = %+v", sh)
	}
	if got := l.Paths(true); got[0] != ";g1;Edge1" {
		t.Errorf("new-style path = %q", got[0])
	}
	if got := l.Paths(false); got[0] != "Edge1" {
		t.Errorf("old-style path = %q", got[0])
	}
}

func TestElementIndexFanOutOnRemoval(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	pad := mustObject(t, doc, "Pad")
	h.naming.DefineElement(pad, "Edge1", "")

	l := NewLinkSub(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(pad, []string{"Edge1"}); err != nil {
		t.Fatal(err)
	}
	if got := h.elems.FieldsOf(pad); len(got) != 1 {
		t.Fatalf("element registrations = %d", len(got))
	}

	h.naming.RemoveElement(pad, "Edge1")
	changed := h.elems.UpdateAll(pad, false)
	if len(changed) != 1 || changed[0] != Field(l) {
		t.Fatalf("changed = %v", changed)
	}
	if got := l.Paths(false); got[0] != "?Edge1" {
		t.Errorf("path after removal = %q, want ?Edge1", got[0])
	}
}

func TestLinkSubListAlignment(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	a := mustObject(t, doc, "A")
	b := mustObject(t, doc, "B")

	l := NewLinkSubList(h, owner, "Group", model.ScopeNormal)
	err := l.SetValues([]*model.Object{a, b}, []string{"only-one"})
	if !errors.Is(err, apperr.ErrLengthMismatch) {
		t.Fatalf("mismatch err = %v", err)
	}

	if err := l.SetValues([]*model.Object{a, b}, []string{"", ""}); err != nil {
		t.Fatal(err)
	}
	if len(l.Targets()) != 2 {
		t.Fatalf("targets = %v", l.Targets())
	}

	// Dropping one target keeps lists aligned.
	l.BreakLink(a, false)
	targets, subs := l.Values()
	if len(targets) != 1 || targets[0] != b || len(subs) != 1 {
		t.Errorf("after break: targets=%v subs=%v", targets, subs)
	}
}

func TestTryReplaceScopedToParent(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	base := mustObject(t, doc, "Base")
	oldO := mustObject(t, doc, "Old")
	newO := mustObject(t, doc, "New")
	base.AddChild(oldO)
	base.AddChild(newO)

	l := NewLinkSub(h, owner, "Ref", model.ScopeNormal)
	if err := l.SetValue(base, []string{"Old.Edge1"}); err != nil {
		t.Fatal(err)
	}

	// Substitution scoped at an unrelated parent leaves the field alone.
	changed, err := l.TryReplace(owner, oldO, newO)
	if err != nil || changed {
		t.Fatalf("unscoped replace: changed=%v err=%v", changed, err)
	}

	// Scoped at the resolved ancestor, the path segment is rewritten.
	changed, err = l.TryReplace(base, oldO, newO)
	if err != nil || !changed {
		t.Fatalf("scoped replace: changed=%v err=%v", changed, err)
	}
	_, subs := l.Value()
	if subs[0] != "New.Edge1" {
		t.Errorf("sub = %q, want New.Edge1", subs[0])
	}
}

func TestTryReplaceDirectTarget(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	oldO := mustObject(t, doc, "Old")
	newO := mustObject(t, doc, "New")

	l := NewLink(h, owner, "Base", model.ScopeNormal)
	if err := l.SetValue(oldO); err != nil {
		t.Fatal(err)
	}
	changed, err := l.TryReplace(owner, oldO, newO)
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if l.Value() != newO {
		t.Error("target should be replaced")
	}
}

func TestTryReplaceNilParentMatchesAnyBoundary(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	base := mustObject(t, doc, "Base")
	oldO := mustObject(t, doc, "Old")
	newO := mustObject(t, doc, "New")
	base.AddChild(oldO)
	base.AddChild(newO)

	l := NewLinkSub(h, owner, "Ref", model.ScopeNormal)
	if err := l.SetValue(base, []string{"Old.Edge1"}); err != nil {
		t.Fatal(err)
	}

	// Without a parent the substitution applies wherever the old object
	// appears.
	changed, err := l.TryReplace(nil, oldO, newO)
	if err != nil || !changed {
		t.Fatalf("unscoped replace: changed=%v err=%v", changed, err)
	}
	_, subs := l.Value()
	if subs[0] != "New.Edge1" {
		t.Errorf("sub = %q, want New.Edge1", subs[0])
	}
}

func TestAdjustLinkReRootsOutsideAbsorbedSet(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	compound := mustObject(t, doc, "Compound")
	inner := mustObject(t, doc, "Inner")
	deep := mustObject(t, doc, "Deep")
	compound.AddChild(inner)
	inner.AddChild(deep)

	l := NewLinkSub(h, owner, "Ref", model.ScopeNormal)
	if err := l.SetValue(compound, []string{"Inner.Deep.Edge1"}); err != nil {
		t.Fatal(err)
	}

	absorbed := map[*model.Object]bool{compound: true, inner: true}
	changed, err := l.AdjustLink(absorbed)
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	target, subs := l.Value()
	if target != deep {
		t.Errorf("new root = %v, want Deep", target.FullName())
	}
	if subs[0] != "Edge1" {
		t.Errorf("sub = %q, want Edge1", subs[0])
	}
}

func TestAdjustLinkNoEscapeFails(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	compound := mustObject(t, doc, "Compound")
	inner := mustObject(t, doc, "Inner")
	compound.AddChild(inner)

	l := NewLinkSub(h, owner, "Ref", model.ScopeNormal)
	if err := l.SetValue(compound, []string{"Inner.Edge1"}); err != nil {
		t.Fatal(err)
	}

	// Every prefix object is inside the set; no new root exists.
	absorbed := map[*model.Object]bool{compound: true, inner: true}
	changed, err := l.AdjustLink(absorbed)
	if err != nil || changed {
		t.Errorf("changed=%v err=%v, want no adjustment", changed, err)
	}
}

func TestLabelRenameCopyOnWrite(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	body := mustObject(t, doc, "Body")
	pad := mustObject(t, doc, "Pad")
	pad.SetLabel("Boss")
	body.AddChild(pad)

	l := NewLinkSub(h, owner, "Ref", model.ScopeNormal)
	if err := l.SetValue(body, []string{"$Boss.Edge1"}); err != nil {
		t.Fatal(err)
	}

	reps := h.labels.OnLabelChanged(pad, "Chief")
	if len(reps) != 1 {
		t.Fatalf("replacements = %d", len(reps))
	}
	if reps[0].Paths[0] != "$Chief.Edge1" {
		t.Errorf("replacement = %q", reps[0].Paths[0])
	}

	// Nothing applied yet: copy-on-write.
	_, subs := l.Value()
	if subs[0] != "$Boss.Edge1" {
		t.Errorf("original mutated early: %q", subs[0])
	}

	pad.SetLabel("Chief")
	if err := reps[0].Field.ApplyPaths(reps[0].Paths); err != nil {
		t.Fatal(err)
	}
	_, subs = l.Value()
	if subs[0] != "$Chief.Edge1" {
		t.Errorf("sub = %q", subs[0])
	}
}

func TestLabelRenameChecksResolution(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	body := mustObject(t, doc, "Body")
	pad := mustObject(t, doc, "Pad")
	decoy := mustObject(t, doc, "Decoy")
	pad.SetLabel("Boss")
	decoy.SetLabel("Boss")
	body.AddChild(pad)

	l := NewLinkSub(h, owner, "Ref", model.ScopeNormal)
	if err := l.SetValue(body, []string{"$Boss.Edge1"}); err != nil {
		t.Fatal(err)
	}

	// The path resolves to pad, not decoy; renaming decoy touches nothing.
	if reps := h.labels.OnLabelChanged(decoy, "Chief"); len(reps) != 0 {
		t.Errorf("unrelated rename produced %d replacements", len(reps))
	}
}

func TestXLinkDeferredResolution(t *testing.T) {
	h := newTestHost()
	docA := h.newDoc("a.yaml")
	owner := mustObject(t, docA, "Owner")

	l := NewXLink(h, owner, "Source", model.ScopeNormal)
	if err := l.SetExternal("b.yaml", "Target", nil, false); err != nil {
		t.Fatal(err)
	}
	if l.State() != RefPending {
		t.Fatalf("state = %v, want pending", l.State())
	}
	if len(h.loader.queued) == 0 || h.loader.queued[0] != "b.yaml" {
		t.Fatalf("queued = %v", h.loader.queued)
	}

	// The document arrives; the reference resolves.
	docB := h.newDoc("b.yaml")
	target := mustObject(t, docB, "Target")
	h.table.OnDocumentLoaded(docB)

	if l.State() != RefAttached {
		t.Fatalf("state = %v, want attached", l.State())
	}
	tgt, _ := l.Value()
	if tgt != target {
		t.Error("target not bound")
	}
	if len(h.backlinks.EdgesOf(target)) != 1 {
		t.Error("back-link edge missing after attach")
	}

	// A duplicate load event must not duplicate state.
	h.table.OnDocumentLoaded(docB)
	if len(h.backlinks.EdgesOf(target)) != 1 {
		t.Error("duplicate load event duplicated the edge")
	}
}

func TestXLinkDetachOnUnload(t *testing.T) {
	h := newTestHost()
	docA := h.newDoc("a.yaml")
	owner := mustObject(t, docA, "Owner")
	docB := h.newDoc("b.yaml")
	target := mustObject(t, docB, "Target")

	l := NewXLink(h, owner, "Source", model.ScopeNormal)
	if err := l.SetExternal("b.yaml", "Target", nil, false); err != nil {
		t.Fatal(err)
	}
	if l.State() != RefAttached {
		t.Fatalf("state = %v", l.State())
	}

	h.table.OnDocumentUnloading(docB)
	if l.State() != RefDetached {
		t.Fatalf("state = %v, want detached", l.State())
	}
	if len(h.backlinks.EdgesOf(target)) != 0 {
		t.Error("edge should drop on detach")
	}
	if l.ObjectName() != "Target" || l.File() != "b.yaml" {
		t.Error("stored identity must survive detach")
	}
}

func TestXLinkOwnerDocumentClose(t *testing.T) {
	h := newTestHost()
	docA := h.newDoc("a.yaml")
	owner := mustObject(t, docA, "Owner")
	docB := h.newDoc("b.yaml")
	target := mustObject(t, docB, "Target")

	l := NewXLink(h, owner, "Source", model.ScopeNormal)
	if err := l.SetExternal("b.yaml", "Target", nil, false); err != nil {
		t.Fatal(err)
	}

	// Closing the owning document unlinks the field and discards the record.
	h.table.OnDocumentUnloading(docA)
	if len(h.backlinks.EdgesOf(target)) != 0 {
		t.Error("edge should be gone")
	}
	if h.table.Record("b.yaml") != nil {
		t.Error("empty record should be discarded")
	}
}

func TestXLinkLocalTargetSameDocument(t *testing.T) {
	h := newTestHost()
	doc := h.newDoc("a.yaml")
	owner := mustObject(t, doc, "Owner")
	target := mustObject(t, doc, "Target")

	l := NewXLink(h, owner, "Source", model.ScopeNormal)
	if err := l.SetValue(target, nil); err != nil {
		t.Fatal(err)
	}
	if l.State() != RefAttached || l.File() != "" {
		t.Errorf("state=%v file=%q", l.State(), l.File())
	}
}

func TestDocTableRekeyOnSavedMove(t *testing.T) {
	h := newTestHost()
	docA := h.newDoc("a.yaml")
	owner := mustObject(t, docA, "Owner")
	docB := h.newDoc("b.yaml")
	mustObject(t, docB, "Target")

	l := NewXLink(h, owner, "Source", model.ScopeNormal)
	if err := l.SetExternal("b.yaml", "Target", nil, false); err != nil {
		t.Fatal(err)
	}

	// The target document is saved to a new location.
	delete(h.loader.docs, "b.yaml")
	docB.SetPath("moved/b.yaml")
	h.loader.docs["moved/b.yaml"] = docB
	h.table.OnDocumentSaved(docB)

	if h.table.Record("b.yaml") != nil {
		t.Error("old record should be rekeyed away")
	}
	rec := h.table.Record("moved/b.yaml")
	if rec == nil || rec.Document() != docB {
		t.Fatal("record not rekeyed to new path")
	}
	if l.File() != "moved/b.yaml" {
		t.Errorf("stored file = %q", l.File())
	}
}

func TestRestoreExternalKeepsShadowsVerbatim(t *testing.T) {
	h := newTestHost()
	docA := h.newDoc("a.yaml")
	owner := mustObject(t, docA, "Owner")

	l := NewXLink(h, owner, "Source", model.ScopeNormal)
	sh := []shadow.Path{shadow.Dual("Edge1", ";g1;Edge1")}
	if err := l.RestoreExternal("b.yaml", "Target", []string{"Edge1"}, sh, "stamp-1", false); err != nil {
		t.Fatal(err)
	}
	if l.State() != RefPending {
		t.Fatalf("state = %v", l.State())
	}
	if got := l.Shadows(); got[0] != sh[0] {
		t.Errorf("shadow = %+v", got[0])
	}
	if l.Stamp() != "stamp-1" {
		t.Errorf("stamp = %q", l.Stamp())
	}
}
