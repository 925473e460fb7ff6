package model

import "strings"

// Sub-element path grammar: a '.'-delimited sequence of segments. Every
// segment followed by a dot names an object (by internal name, or by label
// when it starts with '$'). A trailing segment without a dot is an element
// token resolved by the naming oracle. A path ending in '.' selects an
// object and carries no element.

// SplitPath separates a path into its object segments and element token.
func SplitPath(path string) (objects []string, element string) {
	if path == "" {
		return nil, ""
	}
	parts := strings.Split(path, ".")
	last := parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		if p != "" {
			objects = append(objects, p)
		}
	}
	return objects, last
}

// PathElement returns the element token of path, or "" when the path selects
// an object only.
func PathElement(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ObjectPrefix returns the path up to and including the dot before the
// element token.
func ObjectPrefix(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i+1]
	}
	return ""
}

// LabelSegment reports whether seg is a label-based segment and returns the
// bare label.
func LabelSegment(seg string) (string, bool) {
	if strings.HasPrefix(seg, "$") {
		return seg[1:], true
	}
	return "", false
}

// PathLabels returns every label referenced by a '$Label.' segment of path,
// in order of appearance.
func PathLabels(path string) []string {
	var out []string
	for i := 0; ; {
		j := strings.IndexByte(path[i:], '$')
		if j < 0 {
			break
		}
		i += j + 1
		dot := strings.IndexByte(path[i:], '.')
		if dot < 0 {
			break
		}
		out = append(out, path[i:i+dot])
		i += dot + 1
	}
	return out
}
