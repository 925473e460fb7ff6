package link

import (
	"strings"

	"github.com/starford/ehwaz/internal/model"
)

// AdjustSubs re-roots a link whose direct target sits inside the absorbed
// set: it walks each path, finds the first prefix object outside the set,
// makes it the new direct target, and trims the consumed prefix from the
// path. Every path must agree on the new root, and the new root must live in
// the link's document unless external targets are allowed. Returns ok=false
// when no adjustment applies; the input slice is never mutated.
func AdjustSubs(link *model.Object, subs []string, absorbed map[*model.Object]bool, allowExternal bool) (*model.Object, []string, bool) {
	if link == nil {
		return nil, nil, false
	}
	out := make([]string, len(subs))
	copy(out, subs)

	var newLink *model.Object
	for i, sub := range out {
		adjusted := false
		for pos := strings.IndexByte(sub, '.'); pos >= 0; {
			sobj := link.SubObject(sub[:pos+1])
			if sobj == nil {
				break
			}
			if !allowExternal && sobj.Document() != link.Document() {
				break
			}
			if newLink == nil {
				if absorbed[sobj] {
					idx := strings.IndexByte(sub[pos+1:], '.')
					if idx < 0 {
						break
					}
					pos += idx + 1
					continue
				}
				newLink = sobj
				out[i] = sub[pos+1:]
				adjusted = true
			} else if sobj == newLink {
				out[i] = sub[pos+1:]
				adjusted = true
			}
			break
		}
		if !adjusted {
			return nil, nil, false
		}
	}
	if newLink == nil {
		return nil, nil, false
	}
	return newLink, out, true
}
