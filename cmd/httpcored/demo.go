package main

import (
	"context"
	"encoding/json"
	"fmt"

	"httpcore/internal/exchange"
	"httpcore/internal/routing"
	"httpcore/internal/server"
)

// registerDemoRoutes installs a minimal route set so a fresh checkout of
// httpcored serves something useful without an embedding application:
// an echo endpoint exercising the routing engine's method/path
// dimensions, grounded in the shape an embedder's own Controller would
// take.
func registerDemoRoutes(r *routing.Router) {
	r.Define().Path("/echo").Method("GET").Set("echo")
	r.Define().Path("/echo").Method("POST").Set("echo")
}

type demoController struct{}

func newDemoController() *demoController { return &demoController{} }

type echoPayload struct {
	Method string              `json:"method"`
	Path   string              `json:"path"`
	Query  map[string][]string `json:"query,omitempty"`
}

// Handle dispatches the resource the router matched. httpcored only
// registers "echo", but a real embedder's Controller would switch over
// its own resource set the same way.
func (d *demoController) Handle(ctx context.Context, ex *exchange.Exchange, resource any) error {
	switch resource {
	case "echo":
		return d.handleEcho(ex)
	default:
		return fmt.Errorf("demo: unknown resource %v", resource)
	}
}

func (d *demoController) handleEcho(ex *exchange.Exchange) error {
	payload := echoPayload{
		Method: ex.Request.Method,
		Path:   ex.Request.Path,
		Query:  map[string][]string(ex.Request.QueryParams),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := ex.Response.SetStatus(200); err != nil {
		return err
	}
	ex.Response.Body().SetContentType("application/json")
	return ex.Response.Body().String(string(body))
}

// HandleError renders any handler failure as a small JSON error body,
// satisfying the Controller contract's error path.
func (d *demoController) HandleError(ctx context.Context, ex *exchange.Exchange, resource any, cause error) error {
	status := server.StatusFor(cause)
	if err := ex.Response.SetStatus(status); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		return err
	}
	ex.Response.Body().SetContentType("application/json")
	return ex.Response.Body().String(string(body))
}

func (d *demoController) NewContext(ex *exchange.Exchange) any { return nil }
