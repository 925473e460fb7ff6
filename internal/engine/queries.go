package engine

import (
	"github.com/starford/ehwaz/internal/link"
	"github.com/starford/ehwaz/internal/model"
	"github.com/starford/ehwaz/internal/models"
)

// BacklinksOf returns every field currently referencing obj.
func (e *Engine) BacklinksOf(obj *model.Object) []link.Field {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backlinks.EdgesOf(obj)
}

// InListOf returns the distinct owners of fields referencing obj.
func (e *Engine) InListOf(obj *model.Object) []*model.Object {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backlinks.InListOf(obj)
}

// PendingLinks returns the live cross-document references whose target
// document is not attached: still pending, or detached after an unload.
func (e *Engine) PendingLinks() []models.Ref {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.Ref
	for _, rec := range e.docTable.Records() {
		if rec.Document() != nil {
			continue
		}
		for _, l := range rec.Links() {
			out = append(out, models.Ref{
				SourceDoc: l.Owner().Document().DisplayName(),
				SourceObj: l.Owner().Name(),
				Field:     l.Name(),
				TargetDoc: rec.Key(),
				TargetObj: l.ObjectName(),
				Pending:   true,
			})
		}
	}
	return out
}
