// Package routing implements the request/response routing engine of
// spec.md §4.7: a typed Route (resource + orthogonal criteria), a Router
// composed of a fixed-order chain of routing links (one per criteria
// dimension), a fluent RouteManager, and a RouteExtractor.
package routing

import (
	"regexp"

	"httpcore/internal/header"
)

// HeaderMatcher is a set of literal values union a set of regex patterns;
// any hit passes, per spec.md §4.7's headers/query-parameter link
// semantics.
type HeaderMatcher struct {
	Literals []string
	Patterns []*regexp.Regexp
}

// Match reports whether any configured literal or pattern matches v.
func (m HeaderMatcher) Match(v string) bool {
	for _, lit := range m.Literals {
		if lit == v {
			return true
		}
	}
	for _, p := range m.Patterns {
		if p.MatchString(v) {
			return true
		}
	}
	return false
}

// Criteria is the orthogonal set of dimensions a Route may be registered
// under, per spec.md §3. A zero value in any field means "unconstrained"
// on that dimension.
type Criteria struct {
	Path              string // "" = unconstrained; supports {name}, {name:regex}, *, literal
	MatchTrailingSlash bool

	Method string

	Authority       string
	AuthorityRegex  *regexp.Regexp

	Consumes []header.MediaRange // content-type this route accepts as input
	Produces []header.MediaRange // content-type this route can produce

	Languages []string // language ranges this route can produce, e.g. "en", "*"

	Headers map[string]HeaderMatcher
	Query   map[string]HeaderMatcher

	WSSubprotocol string

	ErrorClass string // name of the error kind/class this route handles; "" = not an error route
}

// Route is the tuple (resource, criteria, enabled) of spec.md §3.
type Route struct {
	Resource any
	Criteria Criteria
	Enabled  bool

	// seq records registration order, used for deterministic tie-breaking
	// across every link (spec.md §4.7's "registration order" tie-break).
	seq int
}
