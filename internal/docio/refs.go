package docio

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/starford/ehwaz/internal/models"
	"github.com/starford/ehwaz/internal/workspace"
)

// ExtractRefs parses a serialized document and returns the reference edges
// it declares, without building a live document. Cross-document targets are
// resolved against the document's own directory so the index stores
// canonical paths. Used by the reference index to stay current from raw
// file bytes alone.
func ExtractRefs(path string, data []byte) ([]models.Ref, error) {
	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("docio: extract refs %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	var out []models.Ref
	add := func(obj, field, targetDoc, targetObj string, pending bool) {
		if targetObj == "" {
			return
		}
		out = append(out, models.Ref{
			SourceDoc: path,
			SourceObj: obj,
			Field:     field,
			TargetDoc: targetDoc,
			TargetObj: targetObj,
			Pending:   pending,
		})
	}
	for _, fo := range fd.Objects {
		for _, ff := range fo.Fields {
			switch ff.Kind {
			case kindLink, kindSub:
				add(fo.Name, ff.Name, path, ff.Target, false)
			case kindSubList:
				for _, t := range ff.Targets {
					add(fo.Name, ff.Name, path, t, false)
				}
			case kindXLink:
				if ff.File != "" {
					add(fo.Name, ff.Name, workspace.Resolve(dir, ff.File), ff.Object, true)
				} else {
					add(fo.Name, ff.Name, path, ff.Target, false)
				}
			}
		}
	}
	return out, nil
}
