package model

import "strings"

// Object is a named entity owned by a Document. The internal name is stable
// and unique within the document; the label is a mutable human-readable
// string with no uniqueness requirement. Objects may own child objects,
// addressable through dotted sub-element paths.
type Object struct {
	handle     Handle
	name       string
	label      string
	doc        *Document
	parent     *Object
	children   []*Object
	destroying bool
}

// Handle returns the arena handle identifying this object.
func (o *Object) Handle() Handle { return o.handle }

// Name returns the stable internal name.
func (o *Object) Name() string { return o.name }

// Label returns the current human label.
func (o *Object) Label() string { return o.label }

// SetLabel changes the human label. Reference propagation is the caller's
// concern; see the label reference index.
func (o *Object) SetLabel(label string) { o.label = label }

// Document returns the owning document, or nil once detached.
func (o *Object) Document() *Document { return o.doc }

// Attached reports whether the object is a valid link target: owned by a
// document and not mid-destruction.
func (o *Object) Attached() bool { return o != nil && o.doc != nil && !o.destroying }

// Destroying reports whether destruction has begun. Callers must check this
// before dereferencing internals reached through back-links.
func (o *Object) Destroying() bool { return o.destroying }

// MarkDestroying flags the object as mid-destruction.
func (o *Object) MarkDestroying() { o.destroying = true }

// FullName returns "document#object" for diagnostics.
func (o *Object) FullName() string {
	if o == nil {
		return "?"
	}
	if o.doc == nil {
		return o.name
	}
	return o.doc.DisplayName() + "#" + o.name
}

// Parent returns the owning parent object, or nil for a top-level object.
func (o *Object) Parent() *Object { return o.parent }

// AddChild appends c to o's children. The child keeps its document ownership.
func (o *Object) AddChild(c *Object) {
	c.parent = o
	o.children = append(o.children, c)
}

// Children returns the ordered child objects.
func (o *Object) Children() []*Object { return o.children }

// Child returns the direct child with the given internal name, or nil.
func (o *Object) Child(name string) *Object {
	for _, c := range o.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// ChildByLabel returns the first direct child with the given label, or nil.
func (o *Object) ChildByLabel(label string) *Object {
	for _, c := range o.children {
		if c.label == label {
			return c
		}
	}
	return nil
}

// SubObject resolves the object segments of path starting at o and returns
// the final object, or nil when any segment fails to resolve. A trailing
// element token is ignored.
func (o *Object) SubObject(path string) *Object {
	if o == nil {
		return nil
	}
	cur := o
	objs, _ := SplitPath(path)
	for _, seg := range objs {
		if label, ok := LabelSegment(seg); ok {
			cur = cur.ChildByLabel(label)
		} else {
			cur = cur.Child(seg)
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// CanonicalSubPath rewrites the object segments of path to internal names by
// resolving each prefix from o. Returns path unchanged when any segment
// fails to resolve.
func (o *Object) CanonicalSubPath(path string) string {
	objs, element := SplitPath(path)
	if len(objs) == 0 {
		return path
	}
	cur := o
	var b strings.Builder
	for _, seg := range objs {
		if label, ok := LabelSegment(seg); ok {
			cur = cur.ChildByLabel(label)
		} else {
			cur = cur.Child(seg)
		}
		if cur == nil {
			return path
		}
		b.WriteString(cur.name)
		b.WriteByte('.')
	}
	b.WriteString(element)
	return b.String()
}
