package routing

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"httpcore/internal/header"
)

// filterPath implements spec.md §4.7 point 1: static routes beat pattern
// routes; among patterns, higher specificity wins. All routes tied at the
// top specificity are returned (later dimensions break remaining ties),
// ordered by specificity desc then registration order asc.
func filterPath(routes []*Route, path string) ([]*Route, map[*Route]PathParams) {
	type scored struct {
		r     *Route
		score int
		pp    PathParams
	}
	var hits []scored
	for _, r := range routes {
		if r.Criteria.Path == "" {
			continue
		}
		pat := compilePathPattern(r.Criteria.Path)
		pp, ok := pat.match(path, r.Criteria.MatchTrailingSlash)
		if !ok {
			continue
		}
		hits = append(hits, scored{r: r, score: pat.specificity(), pp: pp})
	}
	if len(hits) == 0 {
		return nil, nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	best := hits[0].score
	out := make([]*Route, 0, len(hits))
	params := make(map[*Route]PathParams, len(hits))
	for _, h := range hits {
		if h.score != best {
			break
		}
		out = append(out, h.r)
		params[h.r] = h.pp
	}
	return out, params
}

// filterMethod keeps routes whose method equals method (case-insensitively)
// and routes with no method criterion, per spec.md §4.7 point 2.
func filterMethod(routes []*Route, method string) []*Route {
	var out []*Route
	for _, r := range routes {
		if r.Criteria.Method == "" || strings.EqualFold(r.Criteria.Method, method) {
			out = append(out, r)
		}
	}
	return out
}

// allowedMethods collects the distinct, non-wildcard methods declared by
// routes, used to populate RouteError.AllowedMethods on MethodNotAllowed.
func allowedMethods(routes []*Route) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range routes {
		if r.Criteria.Method == "" {
			continue
		}
		if !seen[r.Criteria.Method] {
			seen[r.Criteria.Method] = true
			out = append(out, r.Criteria.Method)
		}
	}
	sort.Strings(out)
	return out
}

// filterAuthority implements spec.md §4.7 point 3: static exact match
// first, then regex; static beats regex.
func filterAuthority(routes []*Route, authority string) []*Route {
	var statics, regexes, wildcard []*Route
	for _, r := range routes {
		switch {
		case r.Criteria.Authority == "" && r.Criteria.AuthorityRegex == nil:
			wildcard = append(wildcard, r)
		case r.Criteria.Authority != "" && strings.EqualFold(r.Criteria.Authority, authority):
			statics = append(statics, r)
		case r.Criteria.AuthorityRegex != nil && r.Criteria.AuthorityRegex.MatchString(authority):
			regexes = append(regexes, r)
		}
	}
	if len(statics) > 0 {
		return statics
	}
	if len(regexes) > 0 {
		return regexes
	}
	return wildcard
}

// filterContentType implements spec.md §4.7 point 4: a route is kept when
// the request's Content-Type matches any of its consumed media ranges,
// scored by the most specific matching range; the best score wins, ties
// by registration order. Routes with no Consumes criterion are kept only
// when no consuming route matches.
func filterContentType(routes []*Route, contentTypeRaw string) []*Route {
	var typ, subtyp string
	params := map[string]string{}
	if contentTypeRaw != "" {
		ranges, err := header.ParseMediaRanges(contentTypeRaw)
		if err == nil && len(ranges) > 0 {
			typ, subtyp = ranges[0].Type, ranges[0].Subtype
			params = ranges[0].Params
		}
	}
	type scored struct {
		r     *Route
		score int
	}
	var hits []scored
	for _, r := range routes {
		if len(r.Criteria.Consumes) == 0 {
			hits = append(hits, scored{r: r, score: -1})
			continue
		}
		best := -1
		for _, mr := range r.Criteria.Consumes {
			if contentTypeRaw == "" {
				continue
			}
			if mr.Matches(typ, subtyp, params) {
				if s := mr.Specificity(); s > best {
					best = s
				}
			}
		}
		if best >= 0 {
			hits = append(hits, scored{r: r, score: best})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	best := hits[0].score
	var out []*Route
	for _, h := range hits {
		if h.score != best {
			break
		}
		out = append(out, h.r)
	}
	return out
}

// filterAccept implements spec.md §4.7 point 5: score = q * specificity
// of the best-matching Accept range against each route's produced media
// type; best score wins, ties by registration order.
func filterAccept(routes []*Route, acceptRaw string) []*Route {
	ranges, _ := header.ParseMediaRanges(orDefault(acceptRaw, "*/*"))
	type scored struct {
		r     *Route
		score float64
	}
	var hits []scored
	for _, r := range routes {
		if len(r.Criteria.Produces) == 0 {
			hits = append(hits, scored{r: r, score: 0})
			continue
		}
		best := -1.0
		for _, produced := range r.Criteria.Produces {
			for _, ar := range ranges {
				if ar.Matches(produced.Type, produced.Subtype, produced.Params) {
					s := ar.Q * float64(ar.Specificity())
					if s > best {
						best = s
					}
				}
			}
		}
		if best >= 0 {
			hits = append(hits, scored{r: r, score: best})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	best := hits[0].score
	var out []*Route
	for _, h := range hits {
		if h.score != best {
			break
		}
		out = append(out, h.r)
	}
	return out
}

// acceptableMediaTypes lists the produced types of routes, for the
// NotAcceptable error payload.
func acceptableMediaTypes(routes []*Route) []header.MediaRange {
	var out []header.MediaRange
	for _, r := range routes {
		out = append(out, r.Criteria.Produces...)
	}
	return out
}

// filterAcceptLanguage implements spec.md §4.7 point 6: RFC 4647 basic
// filtering; highest-q matching target wins.
func filterAcceptLanguage(routes []*Route, acceptLanguageRaw string) []*Route {
	if acceptLanguageRaw == "" {
		return routes
	}
	ranges, err := header.ParseLanguageRanges(acceptLanguageRaw)
	if err != nil {
		return routes
	}
	type scored struct {
		r     *Route
		score float64
	}
	var hits []scored
	for _, r := range routes {
		if len(r.Criteria.Languages) == 0 {
			hits = append(hits, scored{r: r, score: 0})
			continue
		}
		best := -1.0
		for _, lang := range r.Criteria.Languages {
			for _, lr := range ranges {
				if lr.Matches(lang) && lr.Q > best {
					best = lr.Q
				}
			}
		}
		if best >= 0 {
			hits = append(hits, scored{r: r, score: best})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	best := hits[0].score
	var out []*Route
	for _, h := range hits {
		if h.score != best {
			break
		}
		out = append(out, h.r)
	}
	return out
}

// filterHeaders implements spec.md §4.7 point 7: all configured header
// matchers must match.
func filterHeaders(routes []*Route, headers map[string][]string) []*Route {
	var out []*Route
	for _, r := range routes {
		if matchAllHeaderCriteria(r.Criteria.Headers, headers) {
			out = append(out, r)
		}
	}
	return out
}

func matchAllHeaderCriteria(criteria map[string]HeaderMatcher, values map[string][]string) bool {
	for name, matcher := range criteria {
		vs := values[name]
		found := false
		for _, v := range vs {
			if matcher.Match(v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// filterQuery implements spec.md §4.7 point 8: same semantics as header
// matchers, applied to decoded query parameters.
func filterQuery(routes []*Route, query url.Values) []*Route {
	var out []*Route
	for _, r := range routes {
		if matchAllHeaderCriteria(r.Criteria.Query, map[string][]string(query)) {
			out = append(out, r)
		}
	}
	return out
}

// filterWSSubprotocol implements spec.md §4.7 point 9: exact match.
func filterWSSubprotocol(routes []*Route, offered []string) []*Route {
	var out []*Route
	for _, r := range routes {
		if r.Criteria.WSSubprotocol == "" {
			out = append(out, r)
			continue
		}
		for _, o := range offered {
			if o == r.Criteria.WSSubprotocol {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// filterErrorClass implements spec.md §4.7 point 10: most-specific
// assignable error class wins, ties by declaration order. Class
// specificity here is modelled as dotted-path depth (e.g.
// "net.ProtocolError" is more specific than "error"); an empty
// ErrorClass criterion is the catch-all, least specific.
func filterErrorClass(routes []*Route, errClass string) []*Route {
	type scored struct {
		r     *Route
		score int
	}
	var hits []scored
	for _, r := range routes {
		if r.Criteria.ErrorClass == "" {
			hits = append(hits, scored{r: r, score: 0})
			continue
		}
		if r.Criteria.ErrorClass == errClass || strings.HasSuffix(errClass, "."+r.Criteria.ErrorClass) {
			hits = append(hits, scored{r: r, score: strings.Count(r.Criteria.ErrorClass, ".") + 1})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	best := hits[0].score
	var out []*Route
	for _, h := range hits {
		if h.score != best {
			break
		}
		out = append(out, h.r)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// CompileHeaderMatcher is a convenience for the RouteManager fluent
// builder: literals are matched exactly, and each entry of patterns is
// compiled as a regular expression; a pattern that fails to compile is
// dropped.
func CompileHeaderMatcher(literals []string, patterns []string) HeaderMatcher {
	m := HeaderMatcher{Literals: append([]string(nil), literals...)}
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			m.Patterns = append(m.Patterns, re)
		}
	}
	return m
}
