// Package pathmatch implements the path normalization and structural
// matching shared by the master-side mapping table and the worker-side
// route tables.
package pathmatch

import "strings"

// Normalize enforces a leading slash and strips the trailing slash.
// The root path stays "/".
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// Join concatenates a base path and a pattern, normalizing the result.
func Join(base, pattern string) string {
	base = Normalize(base)
	pattern = Normalize(pattern)
	if base == "/" {
		return pattern
	}
	if pattern == "/" {
		return base
	}
	return base + pattern
}

// Match compares a normalized pattern against a normalized request path
// segment by segment. Segments of the form ":name" capture the request
// segment into the returned params; all other segments must match exactly.
func Match(pattern, path string) (map[string]string, bool) {
	pattern = Normalize(pattern)
	path = Normalize(path)

	if pattern == path {
		return nil, true
	}

	pSegs := strings.Split(pattern[1:], "/")
	rSegs := strings.Split(path[1:], "/")
	if len(pSegs) != len(rSegs) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range pSegs {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			if rSegs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = rSegs[i]
			continue
		}
		if seg != rSegs[i] {
			return nil, false
		}
	}
	return params, true
}
