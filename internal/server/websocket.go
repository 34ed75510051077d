package server

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/url"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/ws"
)

// hijackResponseWriter adapts an http1.Conn's hijacked transport to
// http.ResponseWriter + http.Hijacker so gorilla/websocket's Upgrader -
// built against net/http's server model - can run the RFC 6455 handshake
// directly over it. A successful Upgrader.Upgrade re-hijacks through this
// type and writes its 101 response on the hijacked connection. Write and
// WriteHeader are reached only when the Upgrader rejects the handshake:
// WriteHeader discards the status and Write appends to rw's buffered
// writer.
type hijackResponseWriter struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	header http.Header
}

func (h *hijackResponseWriter) Header() http.Header         { return h.header }
func (h *hijackResponseWriter) Write(b []byte) (int, error) { return h.rw.Write(b) }
func (h *hijackResponseWriter) WriteHeader(int)             {}
func (h *hijackResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, h.rw, nil
}

// hijacker is the narrow capability the dispatcher needs from an
// http1.Conn to perform a classic WebSocket upgrade; http2 connections
// never pass one, since Extended CONNECT already populated
// ex.Request.WSSession before the dispatcher runs.
type hijacker interface {
	Hijack() (net.Conn, *bufio.ReadWriter, error)
}

// upgradeHTTP1 runs the RFC 6455 handshake on a request the router
// matched to a ws_subprotocol-bearing route, per spec.md §4.6's
// "handshake suspends until the subprotocol extension negotiation
// completes".
func upgradeHTTP1(ctx context.Context, h hijacker, ex *exchange.Exchange, cfg config.WebSocketConfig, subprotocol string) (ws.Session, error) {
	raw, rw, err := h.Hijack()
	if err != nil {
		return nil, err
	}

	hdr := http.Header{}
	for _, hh := range ex.Request.Headers {
		hdr.Add(hh.Name, hh.Raw)
	}
	req := &http.Request{
		Method: ex.Request.Method,
		URL:    &url.URL{Path: ex.Request.Path, RawQuery: ex.Request.Query},
		Header: hdr,
		Host:   ex.Request.Authority,
	}

	w := &hijackResponseWriter{conn: raw, rw: rw, header: http.Header{}}
	sess, err := ws.NewUpgrader(cfg).Upgrade(ctx, w, req, ex, subprotocol)
	if err != nil {
		return nil, err
	}
	ex.Response.MarkWritten()
	return sess, nil
}
