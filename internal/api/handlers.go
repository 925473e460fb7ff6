package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ehwaz/internal/apperr"
	"github.com/starford/ehwaz/internal/linkservice"
	"github.com/starford/ehwaz/internal/models"
	"github.com/starford/ehwaz/internal/refindex"
)

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL (everything after
// /api/documents/). Supports encoded slashes from OpenAPI clients
// (e.g. parts%2Fbracket.yaml).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidTarget),
		errors.Is(err, apperr.ErrSelfReference),
		errors.Is(err, apperr.ErrLengthMismatch),
		errors.Is(err, apperr.ErrUnsavedOwner):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List workspace documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		writeServiceError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
	})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Load and describe a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create an empty document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path)
	if err != nil {
		writeServiceError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// SaveDocument handles POST /api/documents/save.
//
//	@Summary		Persist a loaded document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DocumentPathRequest	true	"Document to save"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/save [post]
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentPathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := h.svc.SaveDocument(r.Context(), req.Path)
	if err != nil {
		writeServiceError(w, "save document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CloseDocument handles POST /api/documents/close.
//
//	@Summary		Unload a document, keeping its file
//	@Tags			documents
//	@Accept			json
//	@Success		204	"Document closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/close [post]
func (h *Handler) CloseDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentPathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.CloseDocument(r.Context(), req.Path); err != nil {
		writeServiceError(w, "close document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document from the workspace
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		writeServiceError(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddObject handles POST /api/objects.
//
//	@Summary		Create an object in a loaded document
//	@Tags			objects
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ObjectRequest	true	"Object to create"
//	@Success		201		{object}	ObjectDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/objects [post]
func (h *Handler) AddObject(w http.ResponseWriter, r *http.Request) {
	var req ObjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Doc == "" || req.Object == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("doc and object are required"))
		return
	}
	obj, err := h.svc.AddObject(r.Context(), req.Doc, req.Object, req.Label)
	if err != nil {
		writeServiceError(w, "add object", err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// DeleteObject handles POST /api/objects/delete.
//
//	@Summary		Delete an object, breaking incoming links first
//	@Tags			objects
//	@Accept			json
//	@Success		204	"Object deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/objects/delete [post]
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	var req ObjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.DeleteObject(r.Context(), req.Doc, req.Object); err != nil {
		writeServiceError(w, "delete object", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameLabel handles POST /api/labels/rename.
//
//	@Summary		Rename an object's label, rewriting label references
//	@Tags			objects
//	@Accept			json
//	@Success		204	"Label renamed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/labels/rename [post]
func (h *Handler) RenameLabel(w http.ResponseWriter, r *http.Request) {
	var req RenameLabelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Label == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("label is required"))
		return
	}
	if err := h.svc.RenameLabel(r.Context(), req.Doc, req.Object, req.Label); err != nil {
		writeServiceError(w, "rename label", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetLink handles POST /api/links.
//
//	@Summary		Create or update a link field
//	@Tags			links
//	@Accept			json
//	@Success		204	"Link set"
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) SetLink(w http.ResponseWriter, r *http.Request) {
	var req SetLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Doc == "" || req.Object == "" || req.Field == "" || req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("doc, object, field, and kind are required"))
		return
	}
	if err := h.svc.SetLink(r.Context(), req); err != nil {
		writeServiceError(w, "set link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLink handles POST /api/links/clear.
//
//	@Summary		Clear a link field
//	@Tags			links
//	@Accept			json
//	@Success		204	"Link cleared"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/clear [post]
func (h *Handler) ClearLink(w http.ResponseWriter, r *http.Request) {
	var req linkservice.SetLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.ClearLink(r.Context(), req.Doc, req.Object, req.Field); err != nil {
		writeServiceError(w, "clear link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Backlinks handles GET /api/backlinks.
//
//	@Summary		List references pointing at one object
//	@Tags			links
//	@Produce		json
//	@Param			doc		query		string	true	"Document path"
//	@Param			object	query		string	true	"Object name"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doc, obj := q.Get("doc"), q.Get("object")
	if doc == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("doc is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), doc, obj)
	if err != nil {
		writeServiceError(w, "backlinks", err)
		return
	}
	if bl == nil {
		bl = []models.Backlink{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": bl})
}

// PendingLinks handles GET /api/links/pending.
//
//	@Summary		List live cross-document references awaiting their target
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	RefsResponse
//	@Security		BearerAuth
//	@Router			/links/pending [get]
func (h *Handler) PendingLinks(w http.ResponseWriter, r *http.Request) {
	refs := h.svc.PendingLinks(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"refs": refs})
}

// BrokenLinks handles GET /api/links/broken.
//
//	@Summary		List references whose target document is missing
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	BrokenResponse
//	@Security		BearerAuth
//	@Router			/links/broken [get]
func (h *Handler) BrokenLinks(w http.ResponseWriter, r *http.Request) {
	broken, err := h.svc.BrokenLinks(r.Context())
	if err != nil {
		writeServiceError(w, "broken links", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"broken": broken})
}

// Refs handles GET /api/refs.
//
//	@Summary		List indexed outgoing references of a document
//	@Tags			links
//	@Produce		json
//	@Param			doc	query		string	true	"Document path"
//	@Success		200	{object}	RefsResponse
//	@Security		BearerAuth
//	@Router			/refs [get]
func (h *Handler) Refs(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	if doc == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("doc is required"))
		return
	}
	refs, err := h.svc.Refs(r.Context(), doc)
	if err != nil {
		writeServiceError(w, "refs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refs": refs})
}

// Graph handles GET /api/graph.
//
//	@Summary		Reference graph snapshot: documents and aggregated edges
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := h.svc.Graph(r.Context())
	if err != nil {
		writeServiceError(w, "graph", err)
		return
	}
	if nodes == nil {
		nodes = []refindex.GraphNode{}
	}
	if edges == nil {
		edges = []refindex.GraphEdge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}

// ReplaceObject handles POST /api/objects/replace.
//
//	@Summary		Substitute one object for another across link fields
//	@Tags			objects
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	ChangedResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/objects/replace [post]
func (h *Handler) ReplaceObject(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := h.svc.ReplaceObject(r.Context(), req.Doc, req.Parent, req.Old, req.New)
	if err != nil {
		writeServiceError(w, "replace object", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedResponse{Changed: changed})
}

// AbsorbObjects handles POST /api/objects/absorb.
//
//	@Summary		Re-root links into objects collapsing into a compound
//	@Tags			objects
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	ChangedResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/objects/absorb [post]
func (h *Handler) AbsorbObjects(w http.ResponseWriter, r *http.Request) {
	var req AbsorbRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := h.svc.AbsorbObjects(r.Context(), req.Doc, req.Objects)
	if err != nil {
		writeServiceError(w, "absorb objects", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedResponse{Changed: changed})
}

// DefineElement handles POST /api/elements.
//
//	@Summary		Register a named element of a producer object
//	@Tags			elements
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/elements [post]
func (h *Handler) DefineElement(w http.ResponseWriter, r *http.Request) {
	var req ElementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mapped, err := h.svc.DefineElement(r.Context(), req.Doc, req.Object, req.Element, req.Signature)
	if err != nil {
		writeServiceError(w, "define element", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"element": req.Element, "mapped": mapped})
}

// RemoveElement handles POST /api/elements/remove.
//
//	@Summary		Mark a named element of a producer object as gone
//	@Tags			elements
//	@Accept			json
//	@Success		204	"Element removed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/elements/remove [post]
func (h *Handler) RemoveElement(w http.ResponseWriter, r *http.Request) {
	var req ElementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.RemoveElement(r.Context(), req.Doc, req.Object, req.Element); err != nil {
		writeServiceError(w, "remove element", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile handles POST /api/reconcile.
//
//	@Summary		Re-run element reference resolution
//	@Tags			elements
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string][]string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := h.svc.Reconcile(r.Context(), req.Doc, req.Object, req.Reverse)
	if err != nil {
		writeServiceError(w, "reconcile", err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"changed": changed})
}
