package linkservice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/engine"
	"github.com/starford/ehwaz/internal/linkservice"
	"github.com/starford/ehwaz/internal/testutil"
)

func testService(t *testing.T) *linkservice.Service {
	t.Helper()
	db := testutil.TestDB(t)
	_, store := testutil.TestWorkspace(t)
	eng := engine.New(testutil.Logger(), engine.WithStore(store), engine.WithIndex(db))
	return linkservice.NewService(eng, store, db)
}

func TestCreateAndGetDocument(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	d, err := svc.CreateDocument(ctx, "a.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if d.Path != "a.yaml" || d.ID == "" {
		t.Errorf("detail = %+v", d)
	}

	if _, err := svc.CreateDocument(ctx, "a.yaml"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}

	got, err := svc.GetDocument(ctx, "a.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != d.ID {
		t.Errorf("id = %q, want %q", got.ID, d.ID)
	}

	if _, err := svc.GetDocument(ctx, "missing.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing get err = %v", err)
	}
}

func TestListDocuments(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateDocument(ctx, "parts/b.yaml"); err != nil {
		t.Fatal(err)
	}
	metas, err := svc.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Errorf("metas = %+v", metas)
	}
}

func TestAddObjectAndSetLink(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddObject(ctx, "a.yaml", "Pad", "Boss"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddObject(ctx, "a.yaml", "Mirror", ""); err != nil {
		t.Fatal(err)
	}

	err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Base", Kind: "link", TargetObj: "Pad",
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := svc.GetDocument(ctx, "a.yaml")
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, o := range d.Objects {
		if o.Name != "Mirror" {
			continue
		}
		for _, f := range o.Fields {
			if f.Name == "Base" && f.Kind == "link" && len(f.Targets) == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("Base field missing from detail: %+v", d.Objects)
	}
}

func TestSetLinkUnknownKind(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddObject(ctx, "a.yaml", "Mirror", ""); err != nil {
		t.Fatal(err)
	}
	err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Base", Kind: "teleport",
	})
	if !errors.Is(err, apperr.ErrInvalidTarget) {
		t.Errorf("err = %v, want invalid target", err)
	}
}

func TestBacklinksLive(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.AddObject(ctx, "a.yaml", "Pad", "")
	_, _ = svc.AddObject(ctx, "a.yaml", "Mirror", "")
	if err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Base", Kind: "link", TargetObj: "Pad",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Backlinks(ctx, "a.yaml", "Pad")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SourceObj != "Mirror" || got[0].Field != "Base" {
		t.Errorf("backlinks = %+v", got)
	}
}

func TestBacklinksIndexedWhenUnloaded(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "b.yaml"); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.AddObject(ctx, "b.yaml", "Pad", "")
	if _, err := svc.SaveDocument(ctx, "b.yaml"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.AddObject(ctx, "a.yaml", "Mirror", "")
	if err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Source", Kind: "xlink",
		TargetDoc: "b.yaml", TargetObj: "Pad",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}

	// Close both documents: the query falls back to the index.
	if err := svc.CloseDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseDocument(ctx, "b.yaml"); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Backlinks(ctx, "b.yaml", "Pad")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SourceDoc != "a.yaml" || got[0].Field != "Source" {
		t.Errorf("indexed backlinks = %+v", got)
	}
}

func TestClearLink(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.AddObject(ctx, "a.yaml", "Pad", "")
	_, _ = svc.AddObject(ctx, "a.yaml", "Mirror", "")
	if err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Base", Kind: "link", TargetObj: "Pad",
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.ClearLink(ctx, "a.yaml", "Mirror", "Base"); err != nil {
		t.Fatal(err)
	}
	if err := svc.ClearLink(ctx, "a.yaml", "Mirror", "Nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("clear unknown field err = %v", err)
	}

	got, _ := svc.Backlinks(ctx, "a.yaml", "Pad")
	if len(got) != 0 {
		t.Errorf("backlinks after clear = %+v", got)
	}
}

func TestDeleteDocument(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteDocument(ctx, "a.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	metas, _ := svc.ListDocuments(ctx)
	if len(metas) != 0 {
		t.Errorf("metas = %+v", metas)
	}
}

func TestRenameLabelPropagates(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddObject(ctx, "a.yaml", "Pad", "Boss"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RenameLabel(ctx, "a.yaml", "Pad", "Chief"); err != nil {
		t.Fatal(err)
	}
	d, _ := svc.GetDocument(ctx, "a.yaml")
	if d.Objects[0].Label != "Chief" {
		t.Errorf("label = %q", d.Objects[0].Label)
	}
}

func TestElementLifecycle(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.AddObject(ctx, "a.yaml", "Pad", "")
	_, _ = svc.AddObject(ctx, "a.yaml", "Mirror", "")

	mapped, err := svc.DefineElement(ctx, "a.yaml", "Pad", "Edge1", "")
	if err != nil {
		t.Fatal(err)
	}
	if mapped != ";g1;Edge1" {
		t.Errorf("mapped = %q", mapped)
	}

	if err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Profile", Kind: "linksub",
		TargetObj: "Pad", Paths: []string{"Edge1"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveElement(ctx, "a.yaml", "Pad", "Edge1"); err != nil {
		t.Fatal(err)
	}
	d, _ := svc.GetDocument(ctx, "a.yaml")
	var paths []string
	for _, o := range d.Objects {
		for _, f := range o.Fields {
			if f.Name == "Profile" {
				paths = f.Paths
			}
		}
	}
	if len(paths) != 1 || paths[0] != "?Edge1" {
		t.Errorf("paths = %v, want [?Edge1]", paths)
	}
}

func TestBrokenLinksFromIndex(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.AddObject(ctx, "a.yaml", "Mirror", "")
	if err := svc.SetLink(ctx, linkservice.SetLinkRequest{
		Doc: "a.yaml", Object: "Mirror", Field: "Source", Kind: "xlink",
		TargetDoc: "ghost.yaml", TargetObj: "Pad",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveDocument(ctx, "a.yaml"); err != nil {
		t.Fatal(err)
	}

	broken, err := svc.BrokenLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(broken) != 1 || broken[0].TargetDoc != "ghost.yaml" {
		t.Errorf("broken = %+v", broken)
	}

	pending := svc.PendingLinks(ctx)
	if len(pending) != 1 || pending[0].TargetDoc != "ghost.yaml" {
		t.Errorf("pending = %+v", pending)
	}
}
