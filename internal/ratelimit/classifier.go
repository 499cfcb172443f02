package ratelimit

import "strings"

// Class names a group of endpoints sharing one rate configuration.
type Class string

const (
	// ClassAuth covers credential endpoints, the tightest limits.
	ClassAuth Class = "auth"
	// ClassAI covers LLM-backed generation endpoints, which are expensive
	// upstream calls.
	ClassAI Class = "ai"
	// ClassGeneral covers everything else.
	ClassGeneral Class = "general"
)

// authPaths is the fixed set of credential endpoints.
var authPaths = map[string]struct{}{
	"/api/auth/login":    {},
	"/api/auth/register": {},
	"/api/auth/logout":   {},
	"/api/auth/refresh":  {},
	"/login":             {},
	"/register":          {},
}

const aiPathPrefix = "/api/ai/"

// ClassifyPath maps a request path to its rate class. Pure and total:
// every path classifies, with general as the default.
func ClassifyPath(path string) Class {
	path = normalizePath(path)

	if _, ok := authPaths[path]; ok {
		return ClassAuth
	}
	if strings.HasPrefix(path, aiPathPrefix) || path == strings.TrimSuffix(aiPathPrefix, "/") {
		return ClassAI
	}
	return ClassGeneral
}

// normalizePath strips a trailing slash so "/login/" and "/login" classify
// identically. The root path stays as-is.
func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
