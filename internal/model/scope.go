package model

// Scope controls how a link field participates in dependency bookkeeping.
// Normal links form dependency edges. Child and Global are ordinary edges
// whose placement semantics are left to the caller. Hidden links form no
// back-link and are excluded from default graph traversal.
type Scope int

const (
	ScopeNormal Scope = iota
	ScopeChild
	ScopeGlobal
	ScopeHidden
)

func (s Scope) String() string {
	switch s {
	case ScopeNormal:
		return "normal"
	case ScopeChild:
		return "child"
	case ScopeGlobal:
		return "global"
	case ScopeHidden:
		return "hidden"
	}
	return "unknown"
}

// ParseScope maps a serialized scope name back to its value. Unknown names
// fall back to Normal.
func ParseScope(s string) Scope {
	switch s {
	case "child":
		return ScopeChild
	case "global":
		return ScopeGlobal
	case "hidden":
		return ScopeHidden
	}
	return ScopeNormal
}
