package server

import (
	"fmt"

	"httpcore/internal/routing"
)

// ErrorKind is the error taxonomy of spec.md §7, named by kind rather
// than by Go type: the connection packages only need to know which kind
// a failure belongs to in order to pick a propagation policy (synthesise
// a response, stash and continue, or close).
type ErrorKind int

const (
	KindProtocolDecode ErrorKind = iota
	KindProtocolFrame
	KindFlowControlViolation
	KindIdleTimeout
	KindHandlerFailure
	KindConnectionClosed
	KindResetByPeer
	KindShutdownInProgress
	KindRouteNotFound
	KindRouteNotAcceptable
	KindMethodNotAllowed
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocolDecode:
		return "protocol-decode"
	case KindProtocolFrame:
		return "protocol-frame"
	case KindFlowControlViolation:
		return "flow-control-violation"
	case KindIdleTimeout:
		return "idle-timeout"
	case KindHandlerFailure:
		return "handler-failure"
	case KindConnectionClosed:
		return "connection-closed"
	case KindResetByPeer:
		return "reset-by-peer"
	case KindShutdownInProgress:
		return "shutdown-in-progress"
	case KindRouteNotFound:
		return "route-not-found"
	case KindRouteNotAcceptable:
		return "route-not-acceptable"
	case KindMethodNotAllowed:
		return "method-not-allowed"
	default:
		return "unknown"
	}
}

// Error is the typed wrapper every internal failure surfaced to a
// Controller or logged by a connection carries, per spec.md §7: a kind
// for propagation-policy dispatch, the HTTP status it maps to when a
// response can still be synthesised, and an optional auxiliary payload
// (allowed methods, acceptable media types, offered subprotocols).
type Error struct {
	Kind           ErrorKind
	Status         int
	Cause          error
	AllowedMethods []string
	Acceptable     []string
	Subprotocols   []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("server: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as a server.Error of the given kind and status.
func New(kind ErrorKind, status int, cause error) *Error {
	return &Error{Kind: kind, Status: status, Cause: cause}
}

// FromRouteError translates a routing.RouteError into the corresponding
// server.Error, carrying over its auxiliary payload, per spec.md §6's
// "every 4xx/5xx condition carries ... an optional auxiliary payload".
func FromRouteError(re *routing.RouteError) *Error {
	switch re.Kind {
	case routing.ErrMethodNotAllowed:
		return &Error{Kind: KindMethodNotAllowed, Status: 405, Cause: re, AllowedMethods: re.AllowedMethods}
	case routing.ErrNotAcceptable:
		acc := make([]string, 0, len(re.Acceptable))
		for _, mr := range re.Acceptable {
			acc = append(acc, mr.Type+"/"+mr.Subtype)
		}
		return &Error{Kind: KindRouteNotAcceptable, Status: 406, Cause: re, Acceptable: acc}
	case routing.ErrUnsupportedProtocol:
		return &Error{Kind: KindRouteNotFound, Status: 400, Cause: re, Subprotocols: re.Subprotocols}
	default:
		return &Error{Kind: KindRouteNotFound, Status: 404, Cause: re}
	}
}

// StatusFor maps any error to the HTTP status its propagation policy
// emits: a *server.Error reports its own Status, anything else is wrapped
// as an internal server error per spec.md §7.
func StatusFor(err error) int {
	if se, ok := err.(*Error); ok && se.Status != 0 {
		return se.Status
	}
	return 500
}

// ReasonPhrase returns the default reason-phrase body spec.md §7 uses
// when an error has no other representation ("emit the mapped HTTP
// status with the status's default reason phrase as body").
func ReasonPhrase(status int) string {
	switch status {
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 406:
		return "Not Acceptable"
	case 408:
		return "Request Timeout"
	case 426:
		return "Upgrade Required"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Error"
	}
}
