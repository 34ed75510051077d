package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"httpcore/internal/config"
	"httpcore/internal/routing"
)

func TestHandleHealthzOK(t *testing.T) {
	router := routing.NewRouter()
	s := New(config.AdminConfig{}, router, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
}

func TestHandleHealthzUnavailable(t *testing.T) {
	router := routing.NewRouter()
	s := New(config.AdminConfig{}, router, nil, func() bool { return false })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleRoutesListsDeclaredRoutes(t *testing.T) {
	router := routing.NewRouter()
	router.Define().Path("/widgets").Method("GET").Set("widget-resource")

	s := New(config.AdminConfig{}, router, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/routes", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp routeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Routes) != 1 || resp.Routes[0].Path != "/widgets" {
		t.Fatalf("expected one /widgets route, got %v", resp.Routes)
	}
}

func TestServeDisabledWhenListenEmpty(t *testing.T) {
	router := routing.NewRouter()
	s := New(config.AdminConfig{Listen: ""}, router, nil, nil)
	if err := s.Serve(context.Background()); err != nil {
		t.Fatalf("expected nil error for disabled admin surface, got %v", err)
	}
}
