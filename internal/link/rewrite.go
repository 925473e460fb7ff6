package link

import (
	"strings"

	"github.com/starford/ehwaz/internal/model"
)

// TryReplace attempts to rewrite one link (obj, sub) for the substitution of
// oldObj by newObj. The substitution only applies where the resolved
// ancestor immediately before the match equals parent, so same-named
// branches elsewhere in the hierarchy are never rewritten; a nil parent
// matches any boundary. When a prefix already resolves to newObj the call
// retries with old/new reversed: the replacement was partially applied
// elsewhere (swapping the tool and base of a boolean operation, for
// instance) and must not introduce the same object twice. Returns (nil, "")
// when the link is to be left untouched.
func TryReplace(owner, obj, parent, oldObj, newObj *model.Object, sub string) (*model.Object, string) {
	if obj == nil {
		return nil, ""
	}
	if oldObj == obj {
		if parent == nil || owner == parent {
			return newObj, sub
		}
		return nil, ""
	}
	if newObj == obj {
		return TryReplace(owner, obj, parent, newObj, oldObj, sub)
	}
	if sub == "" {
		return nil, ""
	}

	prev := obj
	prevPos := 0
	pos := strings.IndexByte(sub, '.')
	for pos >= 0 {
		pos++ // step past the dot
		if pos < len(sub) && sub[pos] == '.' {
			// Skip empty segments.
			idx := strings.IndexByte(sub[pos:], '.')
			if idx < 0 {
				break
			}
			pos += idx
			continue
		}
		sobj := obj.SubObject(sub[:pos])
		if sobj == nil {
			break
		}
		if sobj == oldObj {
			if parent == nil || prev == parent {
				var repl string
				if sub[prevPos] == '$' {
					repl = "$" + newObj.Label()
				} else {
					repl = newObj.Name()
				}
				return obj, sub[:prevPos] + repl + sub[pos-1:]
			}
			break
		}
		if sobj == newObj {
			return TryReplace(owner, obj, parent, newObj, oldObj, sub)
		}
		if prev == parent {
			break
		}
		prev = sobj
		prevPos = pos
		idx := strings.IndexByte(sub[pos:], '.')
		if idx < 0 {
			break
		}
		pos += idx
	}
	return nil, ""
}

// TryReplaceSubs applies TryReplace across a path list sharing one target.
// The first hit fixes the rewritten target; earlier paths are copied
// untouched, later ones are processed individually. Returns (nil, nil) when
// nothing matched.
func TryReplaceSubs(owner, obj, parent, oldObj, newObj *model.Object, subs []string) (*model.Object, []string) {
	if obj == nil {
		return nil, nil
	}
	if t, _ := TryReplace(owner, obj, parent, oldObj, newObj, ""); t != nil {
		out := make([]string, len(subs))
		copy(out, subs)
		return t, out
	}
	var target *model.Object
	var out []string
	for i, sub := range subs {
		t, newSub := TryReplace(owner, obj, parent, oldObj, newObj, sub)
		if t != nil {
			if target == nil {
				target = t
				out = append(out, subs[:i]...)
			}
			out = append(out, newSub)
		} else if target != nil {
			out = append(out, sub)
		}
	}
	return target, out
}
