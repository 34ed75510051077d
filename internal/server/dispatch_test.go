package server

import (
	"context"
	"errors"
	"testing"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/header"
	"httpcore/internal/routing"
)

type stubController struct {
	handleErr      error
	handleErrorErr error
	handled        []any
	errored        []any
}

func (s *stubController) Handle(ctx context.Context, ex *exchange.Exchange, resource any) error {
	s.handled = append(s.handled, resource)
	return s.handleErr
}

func (s *stubController) HandleError(ctx context.Context, ex *exchange.Exchange, resource any, cause error) error {
	s.errored = append(s.errored, resource)
	return s.handleErrorErr
}

func (s *stubController) NewContext(ex *exchange.Exchange) any { return nil }

func newExchange(method, path string, headers ...header.Header) *exchange.Exchange {
	ex := exchange.New(context.Background(), func(exchange.ResetCode) {})
	ex.Request = exchange.Request{Method: method, Path: path, Headers: headers}
	return ex
}

func TestDispatchRoutesToResource(t *testing.T) {
	router := routing.NewRouter()
	router.Define().Path("/widgets").Method("GET").Set("widget-resource")
	ctrl := &stubController{}
	d := NewDispatcher(router, ctrl, config.WebSocketConfig{}, nil)

	ex := newExchange("GET", "/widgets")
	d.dispatch(context.Background(), ex, nil)

	if len(ctrl.handled) != 1 || ctrl.handled[0] != "widget-resource" {
		t.Fatalf("expected widget-resource dispatched once, got %v", ctrl.handled)
	}
}

func TestDispatchRouteNotFoundSynthesisesResponse(t *testing.T) {
	router := routing.NewRouter()
	ctrl := &stubController{}
	d := NewDispatcher(router, ctrl, config.WebSocketConfig{}, nil)

	ex := newExchange("GET", "/missing")
	d.dispatch(context.Background(), ex, nil)

	if ex.Response.Status() != 404 {
		t.Fatalf("expected 404, got %d", ex.Response.Status())
	}
	if len(ctrl.handled) != 0 {
		t.Fatalf("controller should not run for an unresolved route")
	}
}

func TestDispatchMethodNotAllowed(t *testing.T) {
	router := routing.NewRouter()
	router.Define().Path("/widgets").Method("POST").Set("widget-resource")
	ctrl := &stubController{}
	d := NewDispatcher(router, ctrl, config.WebSocketConfig{}, nil)

	ex := newExchange("GET", "/widgets")
	d.dispatch(context.Background(), ex, nil)

	if ex.Response.Status() != 405 {
		t.Fatalf("expected 405, got %d", ex.Response.Status())
	}
}

func TestDispatchHandlerFailureFallsBackToErrorRoute(t *testing.T) {
	router := routing.NewRouter()
	router.Define().Path("/widgets").Method("GET").Set("widget-resource")
	router.Define().Path("/widgets").ErrorClass("handler-failure").Set("error-resource")
	ctrl := &stubController{handleErr: errors.New("boom")}
	d := NewDispatcher(router, ctrl, config.WebSocketConfig{}, nil)

	ex := newExchange("GET", "/widgets")
	d.dispatch(context.Background(), ex, nil)

	if len(ctrl.errored) != 1 || ctrl.errored[0] != "error-resource" {
		t.Fatalf("expected error-resource dispatched once, got %v", ctrl.errored)
	}
}

func TestDispatchHandlerFailureNoErrorRouteEmitsStatus(t *testing.T) {
	router := routing.NewRouter()
	router.Define().Path("/widgets").Method("GET").Set("widget-resource")
	ctrl := &stubController{handleErr: New(KindHandlerFailure, 503, errors.New("unavailable"))}
	d := NewDispatcher(router, ctrl, config.WebSocketConfig{}, nil)

	ex := newExchange("GET", "/widgets")
	d.dispatch(context.Background(), ex, nil)

	if ex.Response.Status() != 503 {
		t.Fatalf("expected 503, got %d", ex.Response.Status())
	}
}

func TestIsWebSocketUpgradeRequiresBothHeaders(t *testing.T) {
	if isWebSocketUpgrade(nil) {
		t.Fatalf("no headers should not be an upgrade")
	}
	hdrs := []header.Header{
		{Name: "Connection", Raw: "Upgrade"},
		{Name: "Upgrade", Raw: "websocket"},
	}
	if !isWebSocketUpgrade(hdrs) {
		t.Fatalf("expected upgrade detected")
	}
	if isWebSocketUpgrade(hdrs[:1]) {
		t.Fatalf("Connection: Upgrade alone is not enough")
	}
}

func TestPoolPinsRoundRobin(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	done := make(chan int, 4)
	for i := 0; i < 4; i++ {
		p.Pin().Execute(func() { done <- 1 })
	}
	total := 0
	for i := 0; i < 4; i++ {
		total += <-done
	}
	if total != 4 {
		t.Fatalf("expected all 4 tasks to run, got %d", total)
	}
	a, b := p.Pin(), p.Pin()
	if a == b || p.Pin() != a {
		t.Fatalf("expected Pin to alternate between the two workers")
	}
}
