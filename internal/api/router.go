package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ehwaz/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Post("/documents/save", h.SaveDocument)
	r.Post("/documents/close", h.CloseDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Objects and labels.
	r.Post("/objects", h.AddObject)
	r.Post("/objects/delete", h.DeleteObject)
	r.Post("/objects/replace", h.ReplaceObject)
	r.Post("/objects/absorb", h.AbsorbObjects)
	r.Post("/labels/rename", h.RenameLabel)

	// Link fields and reference queries.
	r.Post("/links", h.SetLink)
	r.Post("/links/clear", h.ClearLink)
	r.Get("/links/pending", h.PendingLinks)
	r.Get("/links/broken", h.BrokenLinks)
	r.Get("/backlinks", h.Backlinks)
	r.Get("/refs", h.Refs)
	r.Get("/graph", h.Graph)

	// Element naming.
	r.Post("/elements", h.DefineElement)
	r.Post("/elements/remove", h.RemoveElement)
	r.Post("/reconcile", h.Reconcile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
