package routing

import "net/url"

// Input is everything the routing chain needs to resolve a Route for one
// request, per spec.md §3/§4.7.
type Input struct {
	Method         string
	Path           string
	Authority      string
	ContentType    string // raw Content-Type header value, "" if absent
	Accept         string // raw Accept header value, "" if absent
	AcceptLanguage string // raw Accept-Language header value, "" if absent
	Headers        map[string][]string
	Query          url.Values
	WSSubprotocols []string
	ErrorClass     string // "" unless this Input represents a handler-failure dispatch
}

// PathParams is populated by the path link and returned by Resolve.
type PathParams map[string]string
