package routing

import "httpcore/internal/header"

// RouteManager is the fluent builder of spec.md §4.7: specify criteria
// values, then Set a resource, or Enable/Disable/Remove every route
// currently matching the criteria accumulated so far. That match compares
// only Path, Method, Authority, WSSubprotocol and ErrorClass, each only
// when set; Consumes, Produces, Languages, Headers, Query, AuthorityRegex
// and MatchTrailingSlash are ignored.
type RouteManager struct {
	router   *Router
	criteria Criteria
}

// Define starts a new fluent criteria builder against r.
func (r *Router) Define() *RouteManager {
	return &RouteManager{router: r}
}

func (m *RouteManager) Path(p string) *RouteManager       { m.criteria.Path = p; return m }
func (m *RouteManager) MatchTrailingSlash() *RouteManager { m.criteria.MatchTrailingSlash = true; return m }
func (m *RouteManager) Method(method string) *RouteManager { m.criteria.Method = method; return m }
func (m *RouteManager) Authority(a string) *RouteManager    { m.criteria.Authority = a; return m }
func (m *RouteManager) Consumes(mr ...header.MediaRange) *RouteManager {
	m.criteria.Consumes = append(m.criteria.Consumes, mr...)
	return m
}
func (m *RouteManager) Produces(mr ...header.MediaRange) *RouteManager {
	m.criteria.Produces = append(m.criteria.Produces, mr...)
	return m
}
func (m *RouteManager) Language(lang string) *RouteManager {
	m.criteria.Languages = append(m.criteria.Languages, lang)
	return m
}
func (m *RouteManager) Header(name string, matcher HeaderMatcher) *RouteManager {
	if m.criteria.Headers == nil {
		m.criteria.Headers = map[string]HeaderMatcher{}
	}
	m.criteria.Headers[name] = matcher
	return m
}
func (m *RouteManager) Query(name string, matcher HeaderMatcher) *RouteManager {
	if m.criteria.Query == nil {
		m.criteria.Query = map[string]HeaderMatcher{}
	}
	m.criteria.Query[name] = matcher
	return m
}
func (m *RouteManager) WSSubprotocol(p string) *RouteManager { m.criteria.WSSubprotocol = p; return m }
func (m *RouteManager) ErrorClass(c string) *RouteManager    { m.criteria.ErrorClass = c; return m }

// Set installs a route with the criteria accumulated so far and the given
// resource (an application handler, opaque to this package), enabled by
// default.
func (m *RouteManager) Set(resource any) *Route {
	m.router.mu.Lock()
	defer m.router.mu.Unlock()
	route := &Route{Resource: resource, Criteria: m.criteria, Enabled: true, seq: m.router.nextSeq}
	m.router.nextSeq++
	all := m.router.allRoutes()
	all = append(all, route)
	m.router.publish(all)
	return route
}

// matchingSet applies m's criteria as a filter predicate rather than a
// narrowing pipeline (Enable/Disable/Remove operate on declared criteria,
// not on a live request).
func (m *RouteManager) matchingSet() []*Route {
	all := m.router.allRoutes()
	var out []*Route
	for _, r := range all {
		if criteriaSubset(m.criteria, r.Criteria) {
			out = append(out, r)
		}
	}
	return out
}

func criteriaSubset(filter, full Criteria) bool {
	if filter.Path != "" && filter.Path != full.Path {
		return false
	}
	if filter.Method != "" && filter.Method != full.Method {
		return false
	}
	if filter.Authority != "" && filter.Authority != full.Authority {
		return false
	}
	if filter.WSSubprotocol != "" && filter.WSSubprotocol != full.WSSubprotocol {
		return false
	}
	if filter.ErrorClass != "" && filter.ErrorClass != full.ErrorClass {
		return false
	}
	return true
}

// Enable enables every route matching the accumulated criteria.
func (m *RouteManager) Enable() {
	m.router.mu.Lock()
	defer m.router.mu.Unlock()
	all := m.router.allRoutes()
	match := map[*Route]bool{}
	for _, r := range m.matchingSet() {
		match[r] = true
	}
	for _, r := range all {
		if match[r] {
			r.Enabled = true
		}
	}
	m.router.publish(all)
}

// Disable disables every route matching the accumulated criteria.
func (m *RouteManager) Disable() {
	m.router.mu.Lock()
	defer m.router.mu.Unlock()
	all := m.router.allRoutes()
	match := map[*Route]bool{}
	for _, r := range m.matchingSet() {
		match[r] = true
	}
	for _, r := range all {
		if match[r] {
			r.Enabled = false
		}
	}
	m.router.publish(all)
}

// Remove removes every route matching the accumulated criteria.
func (m *RouteManager) Remove() {
	m.router.mu.Lock()
	defer m.router.mu.Unlock()
	match := map[*Route]bool{}
	for _, r := range m.matchingSet() {
		match[r] = true
	}
	var kept []*Route
	for _, r := range m.router.allRoutes() {
		if !match[r] {
			kept = append(kept, r)
		}
	}
	m.router.publish(kept)
}
