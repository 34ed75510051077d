package routing

// RouteExtractor walks the full declared route set for introspection,
// per spec.md §4.7 (used by the admin surface's /routes endpoint). Unlike
// Resolve/ResolveAll it is not a request-matching pipeline: it reports
// every route, enabled or not, that satisfies an arbitrary predicate.
type RouteExtractor struct {
	router *Router
}

// NewRouteExtractor returns an extractor bound to r.
func NewRouteExtractor(r *Router) *RouteExtractor {
	return &RouteExtractor{router: r}
}

// RouteInfo is the introspection-friendly projection of a Route, omitting
// the opaque Resource and compiled regexes.
type RouteInfo struct {
	Path               string
	MatchTrailingSlash bool
	Method             string
	Authority          string
	Consumes           []string
	Produces           []string
	Languages          []string
	WSSubprotocol      string
	ErrorClass         string
	Enabled            bool
}

// All returns every declared route, in registration order.
func (e *RouteExtractor) All() []RouteInfo {
	return e.Filter(func(*Route) bool { return true })
}

// Enabled returns every currently enabled route.
func (e *RouteExtractor) Enabled() []RouteInfo {
	return e.Filter(func(r *Route) bool { return r.Enabled })
}

// Filter returns every declared route satisfying pred, in registration
// order.
func (e *RouteExtractor) Filter(pred func(*Route) bool) []RouteInfo {
	all := e.router.allRoutes()
	out := make([]RouteInfo, 0, len(all))
	for _, r := range all {
		if !pred(r) {
			continue
		}
		out = append(out, toRouteInfo(r))
	}
	return out
}

// ByPath returns declared routes whose Path criterion exactly equals path.
func (e *RouteExtractor) ByPath(path string) []RouteInfo {
	return e.Filter(func(r *Route) bool { return r.Criteria.Path == path })
}

func toRouteInfo(r *Route) RouteInfo {
	info := RouteInfo{
		Path:               r.Criteria.Path,
		MatchTrailingSlash: r.Criteria.MatchTrailingSlash,
		Method:             r.Criteria.Method,
		Authority:          r.Criteria.Authority,
		Languages:          append([]string(nil), r.Criteria.Languages...),
		WSSubprotocol:      r.Criteria.WSSubprotocol,
		ErrorClass:         r.Criteria.ErrorClass,
		Enabled:            r.Enabled,
	}
	for _, mr := range r.Criteria.Consumes {
		info.Consumes = append(info.Consumes, mr.Type+"/"+mr.Subtype)
	}
	for _, mr := range r.Criteria.Produces {
		info.Produces = append(info.Produces, mr.Type+"/"+mr.Subtype)
	}
	return info
}
