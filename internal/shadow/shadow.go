// Package shadow implements the dual old-style/new-style encoding of
// sub-element paths and the resolver that reconciles stored paths against a
// naming oracle when element names drift.
package shadow

// Kind tags which sides of a Path are populated.
type Kind int

const (
	// None means no shadow has been computed; callers fall back to the raw
	// path text.
	None Kind = iota
	OldOnly
	NewOnly
	Both
)

// Path bundles the old-style (stable) and new-style (versioned) encodings of
// one resolved sub-element path. A freshly produced shadow carries at most
// one empty side; once persisted both may be populated.
type Path struct {
	old string
	new string
}

// Old builds an old-style-only shadow.
func Old(text string) Path { return Path{old: text} }

// New builds a new-style-only shadow.
func New(text string) Path { return Path{new: text} }

// Dual builds a shadow with both encodings.
func Dual(old, new string) Path { return Path{old: old, new: new} }

// Kind returns which sides are populated.
func (p Path) Kind() Kind {
	switch {
	case p.old == "" && p.new == "":
		return None
	case p.new == "":
		return OldOnly
	case p.old == "":
		return NewOnly
	}
	return Both
}

// OldName returns the old-style text, possibly empty.
func (p Path) OldName() string { return p.old }

// NewName returns the new-style text, possibly empty.
func (p Path) NewName() string { return p.new }

// Empty reports whether no shadow has been computed.
func (p Path) Empty() bool { return p.old == "" && p.new == "" }

// WithOld returns p with the old-style side replaced.
func (p Path) WithOld(text string) Path { return Path{old: text, new: p.new} }

// WithNew returns p with the new-style side replaced.
func (p Path) WithNew(text string) Path { return Path{old: p.old, new: text} }

// Effective returns the path text to render: the preferred style when
// present, the other style as fallback, and raw when no shadow exists.
func (p Path) Effective(preferNew bool, raw string) string {
	if preferNew {
		if p.new != "" {
			return p.new
		}
		if p.old != "" {
			return p.old
		}
	} else if p.old != "" {
		return p.old
	}
	return raw
}
