package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ehwaz/internal/engine"
	"github.com/starford/ehwaz/internal/linkservice"
	"github.com/starford/ehwaz/internal/testutil"
)

// testEnv sets up a temp workspace, SQLite DB, service, and router.
// authToken empty means auth disabled.
func testEnv(t *testing.T, authToken string) (*linkservice.Service, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	_, store := testutil.TestWorkspace(t)
	eng := engine.New(testutil.Logger(), engine.WithStore(store), engine.WithIndex(db))
	svc := linkservice.NewService(eng, store, db)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(data)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetDocument(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/documents", map[string]string{"path": "parts/bracket.yaml"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/documents/parts/bracket.yaml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var d DocumentDetail
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Path != "parts/bracket.yaml" || d.ID == "" {
		t.Errorf("detail = %+v", d)
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"}); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", w.Code)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/documents/ghost.yaml", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestObjectAndLinkFlow(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"}); w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}

	for _, name := range []string{"Pad", "Mirror"} {
		w := do(t, router, http.MethodPost, "/objects", map[string]string{"doc": "a.yaml", "object": name})
		if w.Code != http.StatusCreated {
			t.Fatalf("add %s status = %d, body = %s", name, w.Code, w.Body.String())
		}
	}

	w := do(t, router, http.MethodPost, "/links", map[string]string{
		"doc": "a.yaml", "object": "Mirror", "field": "Base", "kind": "link", "target_obj": "Pad",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set link status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/backlinks?doc=a.yaml&object=Pad", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks status = %d", w.Code)
	}
	var resp struct {
		Backlinks []struct {
			SourceObj string `json:"source_obj"`
			Field     string `json:"field"`
		} `json:"backlinks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Backlinks) != 1 || resp.Backlinks[0].SourceObj != "Mirror" || resp.Backlinks[0].Field != "Base" {
		t.Errorf("backlinks = %+v", resp.Backlinks)
	}

	// Clearing the field removes the edge.
	w = do(t, router, http.MethodPost, "/links/clear", map[string]string{
		"doc": "a.yaml", "object": "Mirror", "field": "Base",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", w.Code)
	}
}

func TestSetLink_UnknownKind(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"})
	do(t, router, http.MethodPost, "/objects", map[string]string{"doc": "a.yaml", "object": "Mirror"})

	w := do(t, router, http.MethodPost, "/links", map[string]string{
		"doc": "a.yaml", "object": "Mirror", "field": "Base", "kind": "teleport",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSetLink_MissingFields(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/links", map[string]string{"doc": "a.yaml"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRenameLabelEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"})
	do(t, router, http.MethodPost, "/objects", map[string]string{"doc": "a.yaml", "object": "Pad", "label": "Boss"})

	w := do(t, router, http.MethodPost, "/labels/rename", map[string]string{
		"doc": "a.yaml", "object": "Pad", "label": "Chief",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/documents/a.yaml", nil)
	var d DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if len(d.Objects) != 1 || d.Objects[0].Label != "Chief" {
		t.Errorf("objects = %+v", d.Objects)
	}
}

func TestDeleteDocument(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"})

	if w := do(t, router, http.MethodDelete, "/documents/a.yaml", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/documents/a.yaml", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
}

func TestBrokenLinksEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"})
	do(t, router, http.MethodPost, "/objects", map[string]string{"doc": "a.yaml", "object": "Mirror"})
	w := do(t, router, http.MethodPost, "/links", map[string]string{
		"doc": "a.yaml", "object": "Mirror", "field": "Source", "kind": "xlink",
		"target_doc": "ghost.yaml", "target_obj": "Pad",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set xlink status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/documents/save", map[string]string{"path": "a.yaml"}); w.Code != http.StatusOK {
		t.Fatalf("save status = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/links/broken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("broken status = %d", w.Code)
	}
	var resp struct {
		Broken []struct {
			TargetDoc string `json:"target_doc"`
			Reason    string `json:"reason"`
		} `json:"broken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Broken) != 1 || resp.Broken[0].TargetDoc != "ghost.yaml" {
		t.Errorf("broken = %+v", resp.Broken)
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"})
	do(t, router, http.MethodPost, "/objects", map[string]string{"doc": "a.yaml", "object": "Mirror"})
	do(t, router, http.MethodPost, "/links", map[string]string{
		"doc": "a.yaml", "object": "Mirror", "field": "Source", "kind": "xlink",
		"target_doc": "b.yaml", "target_obj": "Pad",
	})
	if w := do(t, router, http.MethodPost, "/documents/save", map[string]string{"path": "a.yaml"}); w.Code != http.StatusOK {
		t.Fatalf("save status = %d", w.Code)
	}

	w := do(t, router, http.MethodGet, "/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph status = %d", w.Code)
	}
	var resp struct {
		Nodes []struct {
			Path string `json:"path"`
		} `json:"nodes"`
		Edges []struct {
			SourceDoc string `json:"source_doc"`
			TargetDoc string `json:"target_doc"`
			Count     int    `json:"count"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Nodes) != 1 || resp.Nodes[0].Path != "a.yaml" {
		t.Errorf("nodes = %+v", resp.Nodes)
	}
	if len(resp.Edges) != 1 || resp.Edges[0].TargetDoc != "b.yaml" || resp.Edges[0].Count != 1 {
		t.Errorf("edges = %+v", resp.Edges)
	}
}

func TestElementEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.yaml"})
	do(t, router, http.MethodPost, "/objects", map[string]string{"doc": "a.yaml", "object": "Pad"})

	w := do(t, router, http.MethodPost, "/elements", map[string]string{
		"doc": "a.yaml", "object": "Pad", "element": "Edge1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("define status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["mapped"] != ";g1;Edge1" {
		t.Errorf("mapped = %q", resp["mapped"])
	}

	w = do(t, router, http.MethodPost, "/elements/remove", map[string]string{
		"doc": "a.yaml", "object": "Pad", "element": "Edge1",
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("remove status = %d", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	if w := do(t, router, http.MethodGet, "/documents", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/documents", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
