// Package pathset classifies request paths as public or protected.
// Unknown paths are protected: the classifier fails closed.
package pathset

import "strings"

// PublicPaths is the ordered set of path prefixes exempt from
// authentication and authorization, plus the static asset prefix.
// The zero value treats every path as protected.
type PublicPaths struct {
	prefixes     []string
	staticPrefix string
}

// New builds a PublicPaths set. Prefixes are normalized once at
// construction; the set is immutable and safe for concurrent readers.
func New(prefixes []string, staticPrefix string) *PublicPaths {
	normalized := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		normalized = append(normalized, normalize(p))
	}
	return &PublicPaths{
		prefixes:     normalized,
		staticPrefix: normalize(staticPrefix),
	}
}

// IsPublic reports whether the given request path may bypass the
// gateway. A path is public when, after stripping a single trailing
// slash, it equals a configured prefix, sits under one
// (prefix + "/..."), or begins with the static asset prefix.
func (pp *PublicPaths) IsPublic(path string) bool {
	if pp == nil {
		return false
	}

	p := normalize(path)

	for _, prefix := range pp.prefixes {
		if p == prefix {
			return true
		}
		// The bare root normalizes to ""; without this guard the
		// prefix+"/" rule would classify every path as public.
		if prefix != "" && strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if pp.staticPrefix != "" && (p == pp.staticPrefix || strings.HasPrefix(p, pp.staticPrefix+"/")) {
		return true
	}

	return false
}

// normalize strips a single trailing slash. "/" normalizes to "" so the
// bare root matches a configured "/" prefix without making every path
// public via the prefix+"/" rule.
func normalize(path string) string {
	if strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}
