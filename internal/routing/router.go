package routing

import (
	"sync"
	"sync/atomic"
)

// Router resolves an Input to a Route by threading the full route set
// through the fixed-order chain of dimension filters (spec.md §4.7). The
// route set is read-mostly: Resolve/ResolveAll read a lock-free atomic
// snapshot; writers (RouteManager) take mu and publish a fresh snapshot,
// per spec.md §5.
//
// The "first routing link" of spec.md §4.7 - a node that uniformly
// accepts any route and delegates to the real chain head - is realised
// here as firstLink, the trivial identity stage routes() applies before
// Resolve and ResolveAll filter the snapshot. RouteExtractor does not go
// through it; it reads allRoutes directly.
type Router struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]*Route]
	nextSeq  int
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	r := &Router{}
	empty := []*Route{}
	r.snapshot.Store(&empty)
	return r
}

func firstLink(routes []*Route) []*Route { return routes }

// routes returns the current lock-free snapshot, filtered to enabled
// routes only.
func (r *Router) routes() []*Route {
	all := *r.snapshot.Load()
	out := make([]*Route, 0, len(all))
	for _, rt := range firstLink(all) {
		if rt.Enabled {
			out = append(out, rt)
		}
	}
	return out
}

// allRoutes returns every route regardless of enabled state, for
// RouteExtractor and RouteManager bulk operations.
func (r *Router) allRoutes() []*Route {
	return append([]*Route(nil), (*r.snapshot.Load())...)
}

// publish installs a new route slice under the writer lock; callers must
// hold r.mu.
func (r *Router) publish(routes []*Route) {
	cp := append([]*Route(nil), routes...)
	r.snapshot.Store(&cp)
}

// Resolve returns the single best-matching enabled route for in, per the
// ten-dimension chain of spec.md §4.7, along with extracted path
// parameters. It returns a *RouteError describing why no route matched
// when applicable (NotFound / MethodNotAllowed / NotAcceptable /
// UnsupportedProtocol).
func (r *Router) Resolve(in *Input) (*Route, PathParams, *RouteError) {
	all, params, routeErr := r.resolveAllInternal(in)
	if routeErr != nil {
		return nil, nil, routeErr
	}
	if len(all) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotFound}
	}
	return all[0], params[all[0]], nil
}

// ResolveAll returns the routes still tied for best after the last
// criterion dimension, in registration order. The scoring dimensions
// (path, content type, accept, language, error class) keep only their
// top-scoring ties, so routes that lose on an earlier dimension are not
// in the list: it is not a full best-to-worst ranking. It satisfies the
// determinism property of spec.md §8: Resolve(i) == ResolveAll(i)[0]
// whenever non-empty.
func (r *Router) ResolveAll(in *Input) ([]*Route, *RouteError) {
	all, _, routeErr := r.resolveAllInternal(in)
	return all, routeErr
}

func (r *Router) resolveAllInternal(in *Input) ([]*Route, map[*Route]PathParams, *RouteError) {
	candidates := r.routes()

	pathMatched, params := filterPath(candidates, in.Path)
	if len(pathMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotFound}
	}

	methodMatched := filterMethod(pathMatched, in.Method)
	if len(methodMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrMethodNotAllowed, AllowedMethods: allowedMethods(pathMatched)}
	}

	authorityMatched := filterAuthority(methodMatched, in.Authority)
	if len(authorityMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotFound}
	}

	ctMatched := filterContentType(authorityMatched, in.ContentType)
	if len(ctMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotFound}
	}

	acceptMatched := filterAccept(ctMatched, in.Accept)
	if len(acceptMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotAcceptable, Acceptable: acceptableMediaTypes(ctMatched)}
	}

	langMatched := filterAcceptLanguage(acceptMatched, in.AcceptLanguage)
	if len(langMatched) == 0 {
		langMatched = acceptMatched
	}

	headerMatched := filterHeaders(langMatched, in.Headers)
	if len(headerMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotFound}
	}

	queryMatched := filterQuery(headerMatched, in.Query)
	if len(queryMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrNotFound}
	}

	wsMatched := filterWSSubprotocol(queryMatched, in.WSSubprotocols)
	if len(wsMatched) == 0 {
		return nil, nil, &RouteError{Kind: ErrUnsupportedProtocol, Subprotocols: subprotocolsOf(queryMatched)}
	}

	final := wsMatched
	if in.ErrorClass != "" {
		errMatched := filterErrorClass(wsMatched, in.ErrorClass)
		if len(errMatched) == 0 {
			return nil, nil, &RouteError{Kind: ErrNotFound}
		}
		final = errMatched
	}

	return final, params, nil
}

func subprotocolsOf(routes []*Route) []string {
	var out []string
	for _, r := range routes {
		if r.Criteria.WSSubprotocol != "" {
			out = append(out, r.Criteria.WSSubprotocol)
		}
	}
	return out
}
