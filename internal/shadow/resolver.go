package shadow

import (
	"log/slog"
	"strings"

	"github.com/starford/ehwaz/internal/model"
)

// Resolution is the naming oracle's answer for one sub-element lookup.
type Resolution struct {
	// Old and New are the full path texts in old-style and new-style
	// encoding. Old may be populated even when resolution fails.
	Old string
	New string
	// Producer is the object whose naming space owns the terminal element.
	Producer *model.Object
	// Element is the element token as it appeared in the input path.
	Element string
	// Target is the object the path's object segments resolve to.
	Target *model.Object
}

// Oracle resolves sub-element paths to stable and versioned element names.
// It is an external collaborator from the geometry/feature layer; the
// resolver treats its answers as authoritative.
type Oracle interface {
	// ResolveElement resolves rawPath against target. When export is set the
	// returned Old/New texts use export-qualified (internal-name) segments.
	// producerScope, when non-nil, scopes the lookup to the object whose
	// naming epoch is being updated.
	ResolveElement(target *model.Object, rawPath string, export bool, producerScope *model.Object) (Resolution, error)
	// IsElementMissing reports whether token is marked missing.
	IsElementMissing(token string) bool
	// IsMappedElement reports whether token is already a new-style name.
	IsMappedElement(token string) bool
	// SearchElementCache returns candidate current element names whose
	// geometry is consistent with the previously known element.
	SearchElementCache(producer *model.Object, oldElement string) []string
}

// Result reports the outcome of one shadow reconciliation.
type Result struct {
	Shadow      Path
	RawPath     string
	Producer    *model.Object
	Touched     bool // resolution reached a producer; index registration applies
	Changed     bool // effective raw path text changed
	Missing     bool
	AutoChanged bool // geometry fallback substituted a likely element
}

// Resolver reconciles stored shadow paths against the naming oracle.
type Resolver struct {
	oracle Oracle
	logger *slog.Logger
}

// NewResolver creates a resolver over the given oracle.
func NewResolver(oracle Oracle, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{oracle: oracle, logger: logger}
}

// Oracle returns the underlying naming oracle.
func (r *Resolver) Oracle() Oracle { return r.oracle }

// Update recomputes the shadow for one stored path. Resolution starts from
// the new-style text when present, else the old-style, else the raw text.
// reverse marks a full re-generation pass (global version migration), which
// also enables the geometry-based fallback. The call fails closed: on any
// resolution failure the raw path is retained and nothing is marked touched.
func (r *Resolver) Update(fieldName string, producerScope, target *model.Object, rawPath string, prior Path, reverse bool) Result {
	res := Result{Shadow: prior, RawPath: rawPath}
	if target == nil || !target.Attached() {
		return res
	}

	start := rawPath
	if prior.NewName() != "" {
		start = prior.NewName()
	} else if prior.OldName() != "" {
		start = prior.OldName()
	}

	ans, err := r.oracle.ResolveElement(target, start, true, producerScope)
	if err != nil || ans.Producer == nil || ans.Element == "" {
		if ans.Old != "" {
			res.Shadow = prior.WithOld(ans.Old)
		}
		return res
	}
	res.Producer = ans.Producer
	res.Touched = true

	if !reverse {
		if ans.New == "" {
			res.Shadow = prior.WithOld(ans.Old)
			return res
		}
		if prior.OldName() == ans.Old && prior.NewName() == ans.New {
			return res
		}
	}

	missing := r.oracle.IsElementMissing(model.PathElement(ans.Old))

	if ans.Producer == producerScope && producerScope != nil && (missing || reverse) {
		// The referenced element is missing, or the element map is being
		// re-generated due to a version change. Try a geometry-based search
		// for a consistent replacement before giving up on the reference.
		oldElement := model.PathElement(prior.OldName())
		if oldElement != "" && !r.oracle.IsElementMissing(oldElement) {
			if names := r.oracle.SearchElementCache(ans.Producer, oldElement); len(names) > 0 {
				missing = false
				newSub := strings.TrimSuffix(start, ans.Element) + names[0]
				if again, err2 := r.oracle.ResolveElement(target, newSub, true, producerScope); err2 == nil && again.Producer != nil {
					before := prior.Effective(true, rawPath)
					after := again.New
					if after == "" {
						after = again.Old
					}
					if before != after {
						r.logger.Warn("resolver: auto change element reference",
							slog.String("field", fieldName),
							slog.String("target", ans.Producer.FullName()),
							slog.String("from", before),
							slog.String("to", after))
						res.AutoChanged = true
					}
					ans = again
				}
			}
		}
	}

	updateSub := func(newSub string) {
		if res.RawPath != newSub {
			res.RawPath = newSub
			res.Changed = true
		}
	}

	if missing {
		r.logger.Warn("resolver: missing element reference",
			slog.String("field", fieldName),
			slog.String("target", ans.Producer.FullName()),
			slog.String("path", ans.Old))
		res.Missing = true
		// Do not advance to a broken new-style name; retain old-style text.
		res.Shadow = prior.WithOld(ans.Old)
	} else {
		res.Shadow = Dual(ans.Old, ans.New)
	}

	// Raw-path rewrites splice only the element token, so the caller's
	// object-segment encoding (label markers included) survives a style
	// transition.
	pos := 0
	if i := strings.LastIndexByte(res.RawPath, '.'); i >= 0 {
		pos = i + 1
	}
	splice := func(full string) {
		elem := model.PathElement(full)
		if elem != "" && res.RawPath[pos:] != elem {
			updateSub(res.RawPath[:pos] + elem)
		}
	}

	if missing && !reverse {
		if res.RawPath[pos:] != model.PathElement(res.Shadow.NewName()) {
			splice(res.Shadow.OldName())
		}
		return res
	}
	if res.Shadow.NewName() != "" && r.oracle.IsMappedElement(res.RawPath[pos:]) {
		splice(res.Shadow.NewName())
	} else {
		splice(res.Shadow.OldName())
	}
	return res
}
