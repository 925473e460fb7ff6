package api

import (
	"github.com/starford/ehwaz/internal/linkservice"
	"github.com/starford/ehwaz/internal/models"
	"github.com/starford/ehwaz/internal/refindex"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path string `json:"path" example:"parts/bracket.yaml" validate:"required"`
}

// DocumentPathRequest names a loaded document for save/close operations.
type DocumentPathRequest struct {
	Path string `json:"path" example:"parts/bracket.yaml" validate:"required"`
}

// ObjectRequest is the request body for creating or deleting an object.
type ObjectRequest struct {
	Doc    string `json:"doc" example:"parts/bracket.yaml" validate:"required"`
	Object string `json:"object" example:"Sketch" validate:"required"`
	Label  string `json:"label,omitempty" example:"Profile"`
}

// RenameLabelRequest is the request body for a label rename.
type RenameLabelRequest struct {
	Doc    string `json:"doc" validate:"required"`
	Object string `json:"object" validate:"required"`
	Label  string `json:"label" validate:"required"`
}

// ReplaceRequest substitutes one object for another across link fields.
type ReplaceRequest struct {
	Doc    string `json:"doc" validate:"required"`
	Parent string `json:"parent,omitempty"`
	Old    string `json:"old" validate:"required"`
	New    string `json:"new" validate:"required"`
}

// AbsorbRequest re-roots links into objects about to collapse into a
// compound.
type AbsorbRequest struct {
	Doc     string   `json:"doc" validate:"required"`
	Objects []string `json:"objects" validate:"required"`
}

// ElementRequest registers or removes a named element of a producer object.
type ElementRequest struct {
	Doc       string `json:"doc" validate:"required"`
	Object    string `json:"object" validate:"required"`
	Element   string `json:"element" validate:"required"`
	Signature string `json:"signature,omitempty"`
}

// ReconcileRequest re-runs element reference resolution.
type ReconcileRequest struct {
	Doc     string `json:"doc,omitempty"`
	Object  string `json:"object,omitempty"`
	Reverse bool   `json:"reverse,omitempty"`
}

// SetLinkRequest mirrors the service-layer mutation request.
type SetLinkRequest = linkservice.SetLinkRequest

// DocumentDetail is the full document response type (aliased from the
// domain layer).
type DocumentDetail = linkservice.DocumentDetail

// ObjectDetail describes one object in a response.
type ObjectDetail = linkservice.ObjectDetail

// DocumentListResponse wraps workspace document listings.
type DocumentListResponse struct {
	Documents []models.DocumentMetadata `json:"documents" validate:"required"`
	Total     int                       `json:"total" example:"42" validate:"required"`
}

// BacklinksResponse wraps incoming references to one object.
type BacklinksResponse struct {
	Backlinks []models.Backlink `json:"backlinks" validate:"required"`
}

// RefsResponse wraps outgoing references of one document.
type RefsResponse struct {
	Refs []models.Ref `json:"refs" validate:"required"`
}

// GraphResponse wraps the workspace-wide reference graph snapshot.
type GraphResponse struct {
	Nodes []refindex.GraphNode `json:"nodes" validate:"required"`
	Edges []refindex.GraphEdge `json:"edges" validate:"required"`
}

// BrokenResponse wraps currently unresolvable references.
type BrokenResponse struct {
	Broken []models.BrokenLink `json:"broken" validate:"required"`
}

// ChangedResponse reports how many fields an operation rewrote.
type ChangedResponse struct {
	Changed int `json:"changed" example:"3" validate:"required"`
}
