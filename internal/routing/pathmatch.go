package routing

import (
	"regexp"
	"strings"
)

type segKind int

const (
	segLiteral segKind = iota
	segWildcard
	segParam
)

type pathSegment struct {
	kind    segKind
	literal string
	name    string
	regex   *regexp.Regexp
}

// pathPattern is a compiled route path: either a plain static path (no
// curly braces or '*') or a sequence of segments supporting literal text,
// a '*' wildcard, and {name} / {name:regex} named parameters, per
// spec.md §4.7's path link.
type pathPattern struct {
	raw      string
	static   bool
	segments []pathSegment
}

func compilePathPattern(pattern string) pathPattern {
	if !strings.ContainsAny(pattern, "{*") {
		return pathPattern{raw: pattern, static: true}
	}
	parts := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := make([]pathSegment, 0, len(parts))
	for _, p := range parts {
		switch {
		case p == "*":
			segs = append(segs, pathSegment{kind: segWildcard})
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}"):
			inner := p[1 : len(p)-1]
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name, restr := inner[:idx], inner[idx+1:]
				segs = append(segs, pathSegment{kind: segParam, name: name, regex: regexp.MustCompile("^" + restr + "$")})
			} else {
				segs = append(segs, pathSegment{kind: segParam, name: inner})
			}
		default:
			segs = append(segs, pathSegment{kind: segLiteral, literal: p})
		}
	}
	return pathPattern{raw: pattern, segments: segs}
}

// specificity scores a pattern for tie-breaking: static beats pattern;
// among patterns, more literal segments and fewer/typed params beat
// plain wildcards (spec.md §4.7 point 1).
func (p pathPattern) specificity() int {
	if p.static {
		return 1_000_000 + len(strings.Split(strings.Trim(p.raw, "/"), "/"))*10
	}
	score := 0
	for _, s := range p.segments {
		switch s.kind {
		case segLiteral:
			score += 30
		case segParam:
			if s.regex != nil {
				score += 20
			} else {
				score += 10
			}
		case segWildcard:
			score += 1
		}
	}
	return score
}

// match reports whether reqPath satisfies p, returning extracted named
// parameters. matchTrailingSlash, when true, treats "/a" and "/a/" as the
// same path.
func (p pathPattern) match(reqPath string, matchTrailingSlash bool) (PathParams, bool) {
	if matchTrailingSlash {
		reqPath = strings.TrimSuffix(reqPath, "/")
		if reqPath == "" {
			reqPath = "/"
		}
	}
	if p.static {
		candidate := p.raw
		if matchTrailingSlash {
			candidate = strings.TrimSuffix(candidate, "/")
			if candidate == "" {
				candidate = "/"
			}
		}
		return nil, candidate == reqPath
	}
	reqParts := strings.Split(strings.Trim(reqPath, "/"), "/")
	params := PathParams{}
	ri := 0
	for si := 0; si < len(p.segments); si++ {
		s := p.segments[si]
		if s.kind == segWildcard && si == len(p.segments)-1 {
			// trailing wildcard consumes the remainder, including zero segments.
			return params, true
		}
		if ri >= len(reqParts) {
			return nil, false
		}
		part := reqParts[ri]
		switch s.kind {
		case segLiteral:
			if s.literal != part {
				return nil, false
			}
		case segWildcard:
			// mid-path wildcard consumes exactly one segment.
		case segParam:
			if s.regex != nil && !s.regex.MatchString(part) {
				return nil, false
			}
			params[s.name] = part
		}
		ri++
	}
	return params, ri == len(reqParts)
}
