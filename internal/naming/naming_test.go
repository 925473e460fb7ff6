package naming

import (
	"io"
	"log/slog"
	"testing"

	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/shadow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*model.Arena, *model.Document, *Table) {
	t.Helper()
	arena := model.NewArena()
	doc := model.NewDocument(arena, "doc-1")
	return arena, doc, NewTable(arena)
}

func TestDefineAndResolveElement(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")

	mapped := tbl.DefineElement(pad, "Edge1", "sig-a")
	if mapped != ";g1;Edge1" {
		t.Fatalf("mapped = %q", mapped)
	}

	res, err := tbl.ResolveElement(pad, "Edge1", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Old != "Edge1" || res.New != ";g1;Edge1" {
		t.Errorf("resolution = %q / %q", res.Old, res.New)
	}
	if res.Producer != pad {
		t.Error("producer should be the element owner")
	}

	// Mapped tokens resolve back to the same element.
	res, err = tbl.ResolveElement(pad, ";g1;Edge1", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Old != "Edge1" {
		t.Errorf("reverse lookup old = %q", res.Old)
	}
}

func TestResolveThroughLabelSegment(t *testing.T) {
	_, doc, tbl := setup(t)
	body, _ := doc.NewObject("Body")
	pad, _ := doc.NewObject("Pad")
	pad.SetLabel("Boss")
	body.AddChild(pad)
	tbl.DefineElement(pad, "Edge1", "")

	res, err := tbl.ResolveElement(body, "$Boss.Edge1", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Export mode rewrites label segments to internal names.
	if res.Old != "Pad.Edge1" || res.New != "Pad.;g1;Edge1" {
		t.Errorf("resolution = %q / %q", res.Old, res.New)
	}
}

func TestRemovedElementMarkedMissing(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	tbl.RemoveElement(pad, "Edge1")

	res, err := tbl.ResolveElement(pad, "Edge1", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Old != "?Edge1" {
		t.Errorf("old = %q, want ?Edge1", res.Old)
	}
	if !tbl.IsElementMissing(model.PathElement(res.Old)) {
		t.Error("removed element should read as missing")
	}
}

func TestBumpEpochKeepsOldMappedNames(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	tbl.BumpEpoch(pad)

	// The old-epoch token still resolves; the new side reflects the epoch.
	res, err := tbl.ResolveElement(pad, ";g1;Edge1", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.New != ";g2;Edge1" {
		t.Errorf("new = %q, want ;g2;Edge1", res.New)
	}
}

func TestSearchElementCache(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "sig-a")
	tbl.DefineElement(pad, "Edge2", "sig-a")
	tbl.DefineElement(pad, "Edge3", "sig-b")
	tbl.RemoveElement(pad, "Edge1")

	got := tbl.SearchElementCache(pad, "Edge1")
	if len(got) != 1 || got[0] != ";g1;Edge2" {
		t.Errorf("candidates = %v, want [;g1;Edge2]", got)
	}
	if tbl.SearchElementCache(pad, "Edge3") != nil {
		t.Error("no candidates expected for a live element with unique signature")
	}
}

func TestDropDiscardsNaming(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	tbl.Drop(pad.Handle())
	if tbl.HasNaming(pad) {
		t.Error("naming data should be gone after Drop")
	}
}

// Resolver reconciliation over the table oracle.

func TestResolverUpdateInitial(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	r := shadow.NewResolver(tbl, testLogger())

	res := r.Update("Base", nil, pad, "Edge1", shadow.Path{}, false)
	if !res.Touched {
		t.Fatal("resolution should touch the producer")
	}
	if res.Shadow.OldName() != "Edge1" || res.Shadow.NewName() != ";g1;Edge1" {
		t.Errorf("shadow = %q / %q", res.Shadow.OldName(), res.Shadow.NewName())
	}
	if res.Changed || res.Missing {
		t.Errorf("unexpected flags: %+v", res)
	}
}

func TestResolverUpdateIdempotent(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	r := shadow.NewResolver(tbl, testLogger())

	prior := shadow.Dual("Edge1", ";g1;Edge1")
	res := r.Update("Base", nil, pad, "Edge1", prior, false)
	if !res.Touched || res.Changed {
		t.Errorf("second pass should be a no-op, got %+v", res)
	}
	if res.Shadow != prior {
		t.Errorf("shadow drifted: %+v", res.Shadow)
	}
}

func TestResolverUpdateMissingElement(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	r := shadow.NewResolver(tbl, testLogger())
	prior := shadow.Dual("Edge1", ";g1;Edge1")

	tbl.RemoveElement(pad, "Edge1")
	// No producer scope: the geometry fallback stays off and the reference
	// degrades to a marked old-style path.
	res := r.Update("Base", nil, pad, "Edge1", prior, false)
	if !res.Missing {
		t.Fatal("expected missing flag")
	}
	if res.Shadow.OldName() != "?Edge1" {
		t.Errorf("old = %q", res.Shadow.OldName())
	}
	if res.RawPath != "?Edge1" || !res.Changed {
		t.Errorf("raw = %q changed=%v", res.RawPath, res.Changed)
	}
}

func TestResolverGeometryFallback(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "sig-a")
	tbl.DefineElement(pad, "Edge2", "sig-a")
	r := shadow.NewResolver(tbl, testLogger())
	prior := shadow.Dual("Edge1", ";g1;Edge1")

	tbl.RemoveElement(pad, "Edge1")
	res := r.Update("Base", pad, pad, ";g1;Edge1", prior, false)
	if res.Missing {
		t.Fatal("fallback should have rescued the reference")
	}
	if !res.AutoChanged {
		t.Fatal("expected auto change")
	}
	if res.Shadow.OldName() != "Edge2" || res.Shadow.NewName() != ";g1;Edge2" {
		t.Errorf("shadow = %q / %q", res.Shadow.OldName(), res.Shadow.NewName())
	}
	if res.RawPath != ";g1;Edge2" {
		t.Errorf("raw = %q", res.RawPath)
	}
}

func TestResolverKeepsLabelSegments(t *testing.T) {
	_, doc, tbl := setup(t)
	body, _ := doc.NewObject("Body")
	pad, _ := doc.NewObject("Pad")
	pad.SetLabel("Boss")
	body.AddChild(pad)
	tbl.DefineElement(pad, "Edge1", "")
	r := shadow.NewResolver(tbl, testLogger())

	// The shadow records export-qualified texts, but the raw path keeps the
	// caller's label marker.
	res := r.Update("Profile", nil, body, "$Boss.Edge1", shadow.Path{}, false)
	if !res.Touched {
		t.Fatal("resolution should touch the producer")
	}
	if res.Changed {
		t.Errorf("raw = %q, label segment must survive", res.RawPath)
	}
	if res.Shadow.OldName() != "Pad.Edge1" || res.Shadow.NewName() != "Pad.;g1;Edge1" {
		t.Errorf("shadow = %q / %q", res.Shadow.OldName(), res.Shadow.NewName())
	}

	// A removed element degrades the element token only.
	tbl.RemoveElement(pad, "Edge1")
	res = r.Update("Profile", nil, body, "$Boss.Edge1", res.Shadow, false)
	if !res.Missing {
		t.Fatal("expected missing flag")
	}
	if res.RawPath != "$Boss.?Edge1" {
		t.Errorf("raw = %q, want $Boss.?Edge1", res.RawPath)
	}
}

func TestResolverReverseMigration(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	r := shadow.NewResolver(tbl, testLogger())
	prior := shadow.Dual("Edge1", ";g1;Edge1")

	tbl.BumpEpoch(pad)
	res := r.Update("Base", pad, pad, ";g1;Edge1", prior, true)
	if !res.Changed || res.RawPath != ";g2;Edge1" {
		t.Errorf("raw = %q changed=%v", res.RawPath, res.Changed)
	}
	if res.Shadow.NewName() != ";g2;Edge1" {
		t.Errorf("new = %q", res.Shadow.NewName())
	}
}

func TestResolverDetachedTargetFailsClosed(t *testing.T) {
	_, doc, tbl := setup(t)
	pad, _ := doc.NewObject("Pad")
	tbl.DefineElement(pad, "Edge1", "")
	r := shadow.NewResolver(tbl, testLogger())

	doc.RemoveObject("Pad")
	res := r.Update("Base", nil, pad, "Edge1", shadow.Path{}, false)
	if res.Touched || res.Changed {
		t.Errorf("detached target should resolve nothing, got %+v", res)
	}
}
