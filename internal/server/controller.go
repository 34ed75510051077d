package server

import (
	"context"

	"httpcore/internal/body"
	"httpcore/internal/exchange"
)

// Controller is the application-supplied capability of spec.md §6: given
// an exchange and the Route.Resource it resolved to, produce a completion
// signal; given a failed exchange, the same for the error path; and
// optionally build a per-exchange user context the core never inspects.
// No implementation of it is in scope here - internal/server only
// consumes it, exactly as spec.md describes.
type Controller interface {
	// Handle runs resource (the opaque value a RouteManager.Set call
	// registered) against ex. Returning a non-nil error sends ex down the
	// error path: HandleError when an error-class route matches, otherwise
	// a status-only response if the response has not been written yet.
	Handle(ctx context.Context, ex *exchange.Exchange, resource any) error

	// HandleError runs the error-class resource matched for cause against
	// ex; it is called only when such a route matched. A non-nil return means the core
	// falls back to emitting the mapped HTTP status with its default
	// reason phrase, per spec.md §7.
	HandleError(ctx context.Context, ex *exchange.Exchange, resource any, cause error) error

	// NewContext builds the user context object attached to ex via
	// ex.SetContext before Handle runs. May return nil.
	NewContext(ex *exchange.Exchange) any
}

// Resource is re-exported from internal/body so callers implementing
// static-resource-backed routes only need to import internal/server,
// per spec.md §6's "Resource interface (consumed)".
type Resource = body.Resource
