// Package exchange implements the per-request Exchange state machine of
// spec.md §3/§4.2: Created → Starting → Headers-sent → Body-streaming →
// Completed | Reset | Errored.
package exchange

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"httpcore/internal/body"
	"httpcore/internal/header"
)

// State is one node of the Exchange lifecycle.
type State int

const (
	Created State = iota
	Starting
	HeadersSent
	BodyStreaming
	Completed
	Reset
	Errored
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case HeadersSent:
		return "headers-sent"
	case BodyStreaming:
		return "body-streaming"
	case Completed:
		return "completed"
	case Reset:
		return "reset"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// ResetCode is the reason code accompanying Exchange.Reset, defaulting to
// CANCEL per spec.md §4.2. HTTP/2 connections map these directly onto
// RST_STREAM error codes; the HTTP/1.x connection installs a no-op
// onReset and ignores them.
type ResetCode uint32

const (
	CodeCancel         ResetCode = 0x8
	CodeNoError        ResetCode = 0x0
	CodeInternalError  ResetCode = 0x2
	CodeRefusedStream  ResetCode = 0x7
)

// Request is the immutable (after parsing) request side of an Exchange.
type Request struct {
	Method        string
	Scheme        string
	Authority     string
	PathOrigin    string // as received on the wire
	Path          string // absolute, normalised
	Query         string
	QueryParams   url.Values
	Headers       []header.Header
	Body          *body.Inbound
	ProtoMajor    int
	ProtoMinor    int

	// WSSession is set by the transport for an upgraded WebSocket
	// exchange (classic HTTP/1.1 Upgrade or RFC 8441 Extended CONNECT).
	// Callers type-assert it to ws.Session; kept as any here to avoid
	// exchange depending on the ws package.
	WSSession any
}

// Response is the mutable response side of an Exchange. Once Written is
// true, spec.md §3 requires further header mutation to fail.
type Response struct {
	mu      sync.Mutex
	status  int
	headers []header.Header
	written bool
	trailers []header.Header
	out     body.Outbound
}

// SetStatus sets the response status code; fails if headers are already
// written.
func (r *Response) SetStatus(code int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.written {
		return errHeadersWritten
	}
	r.status = code
	return nil
}

// Status returns the current status code (0 if unset).
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetHeader appends a header, failing once the response has been marked
// written.
func (r *Response) SetHeader(h header.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.written {
		return errHeadersWritten
	}
	r.headers = append(r.headers, h)
	return nil
}

// Headers returns a snapshot of the currently-set headers.
func (r *Response) Headers() []header.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]header.Header, len(r.headers))
	copy(out, r.headers)
	return out
}

// MarkWritten flips the invariant gate described in spec.md §3: once
// headers are marked written, further mutation fails.
func (r *Response) MarkWritten() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = true
}

// Written reports whether headers have been marked written.
func (r *Response) Written() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// SetTrailer appends a trailer header, valid at any point before the body
// finishes streaming.
func (r *Response) SetTrailer(h header.Header) { r.trailers = append(r.trailers, h) }

// Trailers returns the accumulated trailers.
func (r *Response) Trailers() []header.Header { return r.trailers }

// Body returns the write-once outbound body sink.
func (r *Response) Body() *body.Outbound { return &r.out }

var errHeadersWritten = fmt.Errorf("exchange: response headers already written")

// Exchange is one request/response pair plus its user context, per
// spec.md §3. An Exchange is owned by exactly one connection; its body
// streams are tied to its lifetime.
type Exchange struct {
	id    string
	mu    sync.Mutex
	state State

	Request  Request
	Response Response

	ctx         context.Context
	userCtx     any
	cancelCause error

	onReset func(ResetCode)
}

// New creates an Exchange in the Created state. onReset is invoked by
// Reset with the chosen code so the owning connection can emit the
// corresponding wire signal (HTTP/2 RST_STREAM; the HTTP/1.x connection
// emits none).
func New(ctx context.Context, onReset func(ResetCode)) *Exchange {
	return &Exchange{
		id:      uuid.NewString(),
		state:   Created,
		ctx:     ctx,
		onReset: onReset,
	}
}

// ID is a process-unique identifier used for logging/telemetry
// correlation; it has no wire representation.
func (e *Exchange) ID() string { return e.id }

// State returns the current lifecycle state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Advance transitions to a new state. It never validates the transition
// graph against the full state machine table - callers (the connection
// state machines) are trusted to drive it correctly, matching the
// teacher's own mutex-guarded-field style rather than a generic FSM
// library.
func (e *Exchange) Advance(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// Context returns the user context object attached to the exchange; the
// core never inspects it (spec.md §4.2).
func (e *Exchange) Context() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userCtx
}

// SetContext installs the user context, normally done once by the
// Controller when the exchange is created.
func (e *Exchange) SetContext(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userCtx = v
}

// Done returns the context.Context governing this exchange's lifetime.
func (e *Exchange) Done() context.Context { return e.ctx }

// CancelCause returns the error that caused a Reset/Errored transition,
// if any - spec.md §4.2's cancelCause() operation.
func (e *Exchange) CancelCause() (error, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelCause, e.cancelCause != nil
}

// Reset cancels in-flight processing with the given code (CodeCancel if
// code == 0), per spec.md §4.2: completes the inbound body with cause as
// its cancel error and invokes onReset so the connection can emit the
// wire-level signal. The outbound body is not touched; Reset does not
// cancel whatever is producing it.
func (e *Exchange) Reset(code ResetCode, cause error) {
	if code == 0 {
		code = CodeCancel
	}
	e.mu.Lock()
	if e.state == Completed || e.state == Reset || e.state == Errored {
		e.mu.Unlock()
		return
	}
	if cause == nil {
		cause = fmt.Errorf("exchange: reset with code %d", code)
	}
	e.cancelCause = cause
	e.state = Reset
	e.mu.Unlock()

	if e.Request.Body != nil {
		e.Request.Body.Cancel(cause)
	}
	if e.onReset != nil {
		e.onReset(code)
	}
}

// IsHead reports whether this exchange's response body should be
// discarded on the wire per spec.md §4.2's HEAD-request rule.
func (e *Exchange) IsHead() bool {
	return e.Request.Method == "HEAD"
}
