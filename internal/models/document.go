// Package models defines the domain types shared across Ehwaz services.
package models

import "time"

// DocumentMetadata is a lightweight representation of a workspace document
// file, returned by list and reconcile operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Stamp     string    `json:"stamp"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref is a directed reference edge extracted from a link field: one field of
// one object pointing at an object, possibly in another document. Pending
// marks a cross-document reference, which resolves only once its target
// document is loaded.
type Ref struct {
	SourceDoc string `json:"source_doc"`
	SourceObj string `json:"source_obj"`
	Field     string `json:"field"`
	TargetDoc string `json:"target_doc"`
	TargetObj string `json:"target_obj"`
	Pending   bool   `json:"pending,omitempty"`
}

// Backlink describes one incoming reference to an object.
type Backlink struct {
	SourceDoc string `json:"source_doc"`
	SourceObj string `json:"source_obj"`
	Field     string `json:"field"`
}

// BrokenLink describes a reference that currently fails to resolve: the
// target document is missing or unloadable, or the named object is absent.
type BrokenLink struct {
	SourceDoc string `json:"source_doc"`
	SourceObj string `json:"source_obj"`
	Field     string `json:"field"`
	TargetDoc string `json:"target_doc"`
	TargetObj string `json:"target_obj"`
	Reason    string `json:"reason"`
}
