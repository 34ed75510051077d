package routing

import (
	"testing"

	"httpcore/internal/header"
)

func mr(typ, subtyp string) header.MediaRange {
	return header.MediaRange{Type: typ, Subtype: subtyp, Q: 1.0}
}

func TestResolveMatchesResolveAllHead(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/a").Method("POST").Consumes(mr("application", "json")).Set("json-handler")
	r.Define().Path("/a").Method("POST").Consumes(mr("text", "plain")).Set("text-handler")

	in := &Input{Method: "POST", Path: "/a", ContentType: "application/json"}
	route, _, routeErr := r.Resolve(in)
	if routeErr != nil {
		t.Fatalf("Resolve: unexpected error %v", routeErr)
	}
	all, routeErr := r.ResolveAll(in)
	if routeErr != nil {
		t.Fatalf("ResolveAll: unexpected error %v", routeErr)
	}
	if len(all) == 0 || all[0] != route {
		t.Fatalf("determinism violated: Resolve=%v ResolveAll[0]=%v", route, all[0])
	}
}

func TestContentTypePrecedence(t *testing.T) {
	r := NewRouter()
	jsonRoute := r.Define().Path("/a").Method("POST").Consumes(mr("application", "json")).Set("json-handler")
	textRoute := r.Define().Path("/a").Method("POST").Consumes(mr("text", "plain")).Set("text-handler")

	route, _, routeErr := r.Resolve(&Input{Method: "POST", Path: "/a", ContentType: "application/json"})
	if routeErr != nil || route.Resource != jsonRoute.Resource {
		t.Fatalf("expected json-handler, got %v err=%v", route, routeErr)
	}

	route, _, routeErr = r.Resolve(&Input{Method: "POST", Path: "/a", ContentType: "text/plain"})
	if routeErr != nil || route.Resource != textRoute.Resource {
		t.Fatalf("expected text-handler, got %v err=%v", route, routeErr)
	}
}

func TestMethodNotAllowedReportsAllowedMethods(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/a").Method("POST").Consumes(mr("application", "json")).Set("json-handler")
	r.Define().Path("/a").Method("POST").Consumes(mr("text", "plain")).Set("text-handler")

	_, _, routeErr := r.Resolve(&Input{Method: "GET", Path: "/a"})
	if routeErr == nil || routeErr.Kind != ErrMethodNotAllowed {
		t.Fatalf("expected MethodNotAllowed, got %v", routeErr)
	}
	if len(routeErr.AllowedMethods) != 1 || routeErr.AllowedMethods[0] != "POST" {
		t.Fatalf("expected AllowedMethods=[POST], got %v", routeErr.AllowedMethods)
	}
}

func TestAcceptQualitySelection(t *testing.T) {
	r := NewRouter()
	textRoute := r.Define().Path("/b").Method("GET").Produces(mr("text", "plain")).Set("text-handler")
	r.Define().Path("/b").Method("GET").Produces(mr("application", "json")).Set("json-handler")

	route, _, routeErr := r.Resolve(&Input{
		Method: "GET",
		Path:   "/b",
		Accept: "text/plain;q=0.9, application/json;q=0.8",
	})
	if routeErr != nil {
		t.Fatalf("unexpected error %v", routeErr)
	}
	if route.Resource != textRoute.Resource {
		t.Fatalf("expected text-handler to win on higher q, got %v", route.Resource)
	}
}

func TestNotFoundOnUnmatchedPath(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/a").Method("GET").Set("handler")

	_, _, routeErr := r.Resolve(&Input{Method: "GET", Path: "/missing"})
	if routeErr == nil || routeErr.Kind != ErrNotFound {
		t.Fatalf("expected NotFound, got %v", routeErr)
	}
}

func TestPathParamsExtracted(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/users/{id}").Method("GET").Set("handler")

	_, params, routeErr := r.Resolve(&Input{Method: "GET", Path: "/users/42"})
	if routeErr != nil {
		t.Fatalf("unexpected error %v", routeErr)
	}
	if params["id"] != "42" {
		t.Fatalf("expected id=42, got %v", params)
	}
}

func TestStaticPathBeatsPattern(t *testing.T) {
	r := NewRouter()
	staticRoute := r.Define().Path("/users/42").Method("GET").Set("static-handler")
	r.Define().Path("/users/{id}").Method("GET").Set("pattern-handler")

	route, _, routeErr := r.Resolve(&Input{Method: "GET", Path: "/users/42"})
	if routeErr != nil {
		t.Fatalf("unexpected error %v", routeErr)
	}
	if route.Resource != staticRoute.Resource {
		t.Fatalf("expected static route to win, got %v", route.Resource)
	}
}

func TestDisableRemovesRouteFromResolution(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/a").Method("GET").Set("handler")
	r.Define().Path("/a").Method("GET").Disable()

	_, _, routeErr := r.Resolve(&Input{Method: "GET", Path: "/a"})
	if routeErr == nil || routeErr.Kind != ErrNotFound {
		t.Fatalf("expected NotFound after Disable, got %v", routeErr)
	}
}

func TestRemoveDeletesRoute(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/a").Method("GET").Set("handler")
	r.Define().Path("/a").Method("GET").Remove()

	extractor := NewRouteExtractor(r)
	if got := extractor.ByPath("/a"); len(got) != 0 {
		t.Fatalf("expected route removed, got %v", got)
	}
}

func TestWSSubprotocolUnsupportedReportsOffered(t *testing.T) {
	r := NewRouter()
	r.Define().Path("/ws").WSSubprotocol("chat.v1").Set("ws-handler")

	_, _, routeErr := r.Resolve(&Input{Method: "GET", Path: "/ws", WSSubprotocols: []string{"chat.v2"}})
	if routeErr == nil || routeErr.Kind != ErrUnsupportedProtocol {
		t.Fatalf("expected UnsupportedProtocol, got %v", routeErr)
	}
}
