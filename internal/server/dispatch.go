package server

import (
	"context"

	"go.uber.org/zap"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/http1"
	"httpcore/internal/http2"
	"httpcore/internal/routing"
)

// Dispatcher turns a Router + Controller pair into the Handler functions
// internal/http1 and internal/http2 drive each decoded exchange through:
// resolve a route, perform a WebSocket upgrade when the route and the
// request both call for one, run the Controller, and translate routing
// and handler failures into responses per spec.md §7's propagation
// policy.
type Dispatcher struct {
	router     *routing.Router
	controller Controller
	wsCfg      config.WebSocketConfig
	logger     *zap.Logger
}

// NewDispatcher binds router and controller into a Dispatcher. logger may
// be nil.
func NewDispatcher(router *routing.Router, controller Controller, wsCfg config.WebSocketConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{router: router, controller: controller, wsCfg: wsCfg, logger: logger}
}

// HTTP1Handler returns the Handler for an HTTP/1.x connection. hj is
// called lazily at dispatch time (rather than passed as a value), since
// the *http1.Conn performing the hijack is constructed from the very
// Handler this method returns - the caller closes over a variable it
// assigns right after http1.NewConn returns.
func (d *Dispatcher) HTTP1Handler(hj func() hijacker) http1.Handler {
	return func(ctx context.Context, ex *exchange.Exchange) {
		d.dispatch(ctx, ex, hj())
	}
}

// HTTP2Handler returns the Handler for an HTTP/2 connection. Extended
// CONNECT WebSocket streams arrive with ex.Request.WSSession already set,
// so no hijack target is needed.
func (d *Dispatcher) HTTP2Handler() http2.Handler {
	return func(ctx context.Context, ex *exchange.Exchange) {
		d.dispatch(ctx, ex, nil)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ex *exchange.Exchange, hj hijacker) {
	in := inputFromRequest(ex)
	route, _, routeErr := d.router.Resolve(in)
	if routeErr != nil {
		d.writeStatusError(ex, FromRouteError(routeErr))
		return
	}

	if ex.Request.WSSession == nil && hj != nil && isWebSocketUpgrade(ex.Request.Headers) {
		sess, err := upgradeHTTP1(ctx, hj, ex, d.wsCfg, route.Criteria.WSSubprotocol)
		if err != nil {
			d.logger.Warn("websocket handshake failed", zap.Error(err))
			d.writeStatusError(ex, New(KindHandlerFailure, 400, err))
			return
		}
		ex.Request.WSSession = sess
	}

	ex.SetContext(d.controller.NewContext(ex))
	ex.Advance(exchange.BodyStreaming)

	if err := d.controller.Handle(ctx, ex, route.Resource); err != nil {
		d.handleFailure(ctx, ex, err)
	}
}

// handleFailure implements spec.md §7's handler-failure propagation
// policy: resolve an error-class route on the same router and run it
// through the Controller's error path; fall back to a synthesised status
// response if that also fails or nothing matched. A Route with an empty
// ErrorClass criterion is the routing chain's ordinary unconstrained
// wildcard on that dimension (spec.md §4.7 point 10), so it would
// otherwise satisfy this resolution for every path whether or not an
// application ever declared it as an error handler; only a route whose
// ErrorClass criterion is explicitly set counts as one here.
func (d *Dispatcher) handleFailure(ctx context.Context, ex *exchange.Exchange, cause error) {
	d.logger.Warn("handler failed", zap.Error(cause), zap.String("exchangeID", ex.ID()))

	in := inputFromRequest(ex)
	in.ErrorClass = errorClassOf(cause)

	errRoute, _, routeErr := d.router.Resolve(in)
	if routeErr == nil && errRoute.Criteria.ErrorClass != "" {
		if err := d.controller.HandleError(ctx, ex, errRoute.Resource, cause); err == nil {
			return
		}
	}

	d.writeStatusError(ex, New(KindHandlerFailure, StatusFor(cause), cause))
}

// errorClassOf derives the routing ErrorClass criterion value for cause:
// a *server.Error routes on its Kind, anything else is a generic
// handler-failure.
func errorClassOf(cause error) string {
	if se, ok := cause.(*Error); ok {
		return se.Kind.String()
	}
	return KindHandlerFailure.String()
}

// writeStatusError synthesises a minimal status-only response body, per
// spec.md §7: "emit the mapped HTTP status with the status's default
// reason phrase as body".
func (d *Dispatcher) writeStatusError(ex *exchange.Exchange, se *Error) {
	if ex.Response.Written() {
		return
	}
	_ = ex.Response.SetStatus(se.Status)
	_ = ex.Response.Body().String(ReasonPhrase(se.Status))
}
