package middleware

import "strings"

// routeTemplates lists the API routes used as metric labels and span names.
// A "{id}" segment matches any non-empty path segment.
var routeTemplates = []string{
	"/",
	"/plaques",
	"/plaques/{id}",
	"/plaques/{id}/visit",
	"/auth/login",
	"/auth/logout",
	"/auth/session",
	"/events/ws",
	"/health",
	"/ready",
	"/metrics",
}

// routeOther labels every path that matches no template, so scanners
// cannot grow label cardinality.
const routeOther = "other"

// routePhotos covers every key under /photos/; keys may contain slashes.
const routePhotos = "/photos/{key...}"

var splitTemplates = func() [][]string {
	out := make([][]string, len(routeTemplates))
	for i, t := range routeTemplates {
		out[i] = segments(t)
	}
	return out
}()

func segments(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// routeOf maps a request path to its route template.
func routeOf(path string) string {
	if key, ok := strings.CutPrefix(path, "/photos/"); ok && key != "" {
		return routePhotos
	}
	got := segments(path)
	for i, tmpl := range splitTemplates {
		if matchSegments(tmpl, got) && (len(got) > 0 || path == "/") {
			return routeTemplates[i]
		}
	}
	return routeOther
}

func matchSegments(tmpl, got []string) bool {
	if len(tmpl) != len(got) {
		return false
	}
	for i, seg := range tmpl {
		if got[i] == "" {
			return false
		}
		if seg != "{id}" && seg != got[i] {
			return false
		}
	}
	return true
}
