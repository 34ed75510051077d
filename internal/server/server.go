// Package server wires internal/negotiate, internal/http1, internal/http2,
// internal/routing and internal/ws into one accepting, dispatching,
// gracefully-shutting-down HTTP core, per spec.md §5/§6 and SPEC_FULL.md
// §4's component table.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"httpcore/internal/config"
	http1pkg "httpcore/internal/http1"
	http2pkg "httpcore/internal/http2"
	"httpcore/internal/negotiate"
	"httpcore/internal/routing"
	"httpcore/internal/telemetry"
)

// Server accepts connections on one listener, negotiates a protocol per
// connection (TLS+ALPN, H2C prior-knowledge or upgrade, or plain
// HTTP/1.1), and pins each one to an event-loop worker for its lifetime.
type Server struct {
	cfg        *config.Config
	router     *routing.Router
	dispatcher *Dispatcher
	pool       *Pool
	tlsConfig  *tls.Config
	logger     *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	closing bool
	conns   map[io.Closer]struct{}
}

// New builds a Server from cfg, router and controller. It does not start
// listening - call Serve for that.
func New(cfg *config.Config, router *routing.Router, controller Controller, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tlsCfg, err := negotiate.BuildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		router:     router,
		dispatcher: NewDispatcher(router, controller, cfg.WebSocket, logger),
		pool:       NewPool(cfg.ServerEventLoopGroupSize),
		tlsConfig:  tlsCfg,
		logger:     logger,
		conns:      make(map[io.Closer]struct{}),
	}, nil
}

// Serve listens on cfg.ServerHost:ServerPort and accepts connections until
// ctx is cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ServerHost, s.cfg.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("server listening", zap.String("addr", addr), zap.Bool("tls", s.tlsConfig != nil))

	for {
		raw, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		worker := s.pool.Pin()
		worker.Execute(func() { s.serveConn(ctx, raw) })
	}
}

// serveConn negotiates the protocol for one accepted connection and
// drives it to completion; it always runs on the worker goroutine the
// connection was pinned to.
func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	s.track(raw)
	defer s.untrack(raw)
	defer raw.Close()

	if tc, ok := raw.(*tls.Conn); ok {
		if err := tc.HandshakeContext(ctx); err != nil {
			s.logger.Debug("tls handshake failed", zap.Error(err))
			return
		}
		if negotiate.SelectProtocol(tc.ConnectionState().NegotiatedProtocol) == negotiate.ProtoHTTP2 {
			s.serveHTTP2(ctx, raw)
			return
		}
		s.serveHTTP1(ctx, raw)
		return
	}

	if s.cfg.HTTP2.H2CEnabled {
		br := bufio.NewReaderSize(raw, 4096)
		if ok, _ := negotiate.SniffH2CPreface(br); ok {
			// The framer's own Preface read will consume the bytes already
			// buffered in br via a peeking Reader wrapper.
			s.serveHTTP2(ctx, &prefacedConn{Conn: raw, br: br})
			return
		}
		if s.tryH2CUpgrade(raw, br) {
			s.serveHTTP2(ctx, &prefacedConn{Conn: raw, br: br})
			return
		}
		s.serveHTTP1(ctx, &prefacedConn{Conn: raw, br: br})
		return
	}

	s.serveHTTP1(ctx, raw)
}

func (s *Server) serveHTTP1(ctx context.Context, raw net.Conn) {
	var conn *http1pkg.Conn
	handler := s.dispatcher.HTTP1Handler(func() hijacker { return conn })
	conn = http1pkg.NewConn(raw, handler)
	conn.SetLogger(s.logger)
	conn.SetCompression(s.cfg.Compression)
	conn.SetHTTP1Config(s.cfg.HTTP1)
	if err := conn.Serve(ctx); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("http1 connection ended", zap.Error(err))
	}
}

func (s *Server) serveHTTP2(ctx context.Context, raw net.Conn) {
	if err := readHTTP2Preface(raw); err != nil {
		s.logger.Debug("http2 preface read failed", zap.Error(err))
		return
	}
	framer := http2.NewFramer(raw, raw)
	conn := http2pkg.NewConn(framer, s.cfg.HTTP2, s.dispatcher.HTTP2Handler())
	conn.SetLogger(s.logger)
	conn.SetCompression(s.cfg.Compression)
	if err := conn.Serve(ctx); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("http2 connection ended", zap.Error(err))
	}
}

// tryH2CUpgrade implements the second h2c path of spec.md §4.6/§4.5: a
// classic HTTP/1.1 request carrying "Connection: Upgrade, HTTP2-Settings"
// and "Upgrade: h2c". It peeks the request head off br without consuming
// it unless that request is genuinely an h2c upgrade; on a match it
// consumes the head, answers 101 Switching Protocols, and returns true so
// the caller hands the connection to the HTTP/2 stack. The original
// HTTP/1.1 request that carried the upgrade is not itself converted into
// an HTTP/2 stream - the client is expected to immediately follow the 101
// with the HTTP/2 connection preface and re-issue it, same as a
// prior-knowledge h2c connection.
func (s *Server) tryH2CUpgrade(raw net.Conn, br *bufio.Reader) bool {
	req, headLen, ok := negotiate.PeekUpgradeRequest(br)
	if !ok || !negotiate.IsUpgradeRequest(req) {
		return false
	}
	if _, err := br.Discard(headLen); err != nil {
		s.logger.Debug("h2c upgrade: discarding request head failed", zap.Error(err))
		return false
	}
	bw := bufio.NewWriter(raw)
	if err := negotiate.WriteSwitchingProtocols(bw); err != nil {
		s.logger.Debug("h2c upgrade: writing 101 response failed", zap.Error(err))
		return false
	}
	s.logger.Debug("h2c upgrade accepted", zap.String("remoteAddr", raw.RemoteAddr().String()))
	return true
}

func readHTTP2Preface(raw net.Conn) error {
	buf := make([]byte, len(negotiate.H2CPreface))
	if _, err := io.ReadFull(raw, buf); err != nil {
		return err
	}
	if string(buf) != negotiate.H2CPreface {
		return fmt.Errorf("server: bad http2 preface %q", buf)
	}
	return nil
}

// prefacedConn replays bytes SniffH2CPreface already buffered before the
// framer or HTTP/1.x decoder gets to read any of them.
type prefacedConn struct {
	net.Conn
	br *bufio.Reader
}

func (p *prefacedConn) Read(b []byte) (int, error) { return p.br.Read(b) }

func (s *Server) track(c io.Closer)   { s.mu.Lock(); s.conns[c] = struct{}{}; s.mu.Unlock() }
func (s *Server) untrack(c io.Closer) { s.mu.Lock(); delete(s.conns, c); s.mu.Unlock() }

// Shutdown implements spec.md §5/§9's graceful shutdown: stop accepting,
// wait for the tracked connections to end on their own (nothing signals
// them to drain), and force-close whatever remains once timeout elapses.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	ln := s.ln
	conns := make([]io.Closer, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	timeout := s.cfg.GracefulShutdownTimeout()
	if !s.cfg.GracefulShutdown {
		timeout = 0
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	drained := make(chan struct{})
	go func() {
		for {
			s.mu.Lock()
			n := len(s.conns)
			s.mu.Unlock()
			if n == 0 {
				close(drained)
				return
			}
			select {
			case <-time.After(20 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-drained:
	case <-deadline.C:
		// The timeout elapsed with exchanges still in flight: force every
		// remaining connection closed, per spec.md §8's graceful-shutdown
		// property ("if they exceed the configured timeout, the connection
		// closes and remaining exchanges terminate with a connection-closed
		// error") - Conn.Serve's read loop observes the close as an error.
		for _, c := range conns {
			_ = c.Close()
		}
	case <-ctx.Done():
	}

	s.pool.Close()
	telemetry.ConnectionClosed("server", "shutdown")
	return nil
}
