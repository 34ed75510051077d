package http2

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"httpcore/internal/exchange"
	"httpcore/internal/header"
	"httpcore/internal/ws"
)

// handleExtendedConnect implements RFC 8441: a CONNECT request carrying
// a :protocol pseudo-header of "websocket" turns this stream into a
// bidirectional byte pipe once answered with a 2xx HEADERS frame that
// does not set END_STREAM, rather than the request/response exchange the
// rest of this package models. DATA frames on the stream carry raw
// RFC 6455 frames end to end, so the inbound side is a pipe fed by
// handleData instead of the usual body.Sink, and ex.Request.WSSession
// carries the session the handler pumps frames through - mirroring how
// internal/ws.Upgrade hands a Session to the HTTP/1.1 upgrade path.
func (c *Conn) handleExtendedConnect(ctx context.Context, fr *http2.HeadersFrame, authority, rawPath string, hdrs []header.Header) error {
	wsIn := make(chan []byte, 8)
	st := &streamState{wsIn: wsIn}
	sess := &connectSession{conn: c, streamID: fr.StreamID, br: bufio.NewReader(&chanReader{ch: wsIn}), st: st}

	path, query := parsePathQuery(rawPath)
	req := exchange.Request{
		Method:      "CONNECT",
		Scheme:      "https",
		Authority:   authority,
		PathOrigin:  rawPath,
		Path:        path,
		Query:       query,
		QueryParams: parseQueryValues(query),
		Headers:     hdrs,
		ProtoMajor:  2,
		ProtoMinor:  0,
		WSSession:   sess,
	}

	ex := exchange.New(ctx, func(code exchange.ResetCode) {
		_ = c.writeRSTStream(fr.StreamID, http2.ErrCode(code))
	})
	ex.Request = req
	ex.Advance(exchange.Starting)
	st.ex = ex

	c.mu.Lock()
	c.streams[fr.StreamID] = st
	c.mu.Unlock()

	c.encMu.Lock()
	c.encBuf.b = c.encBuf.b[:0]
	_ = c.encoder.WriteField(hpack.HeaderField{Name: ":status", Value: "200"})
	block := append([]byte(nil), c.encBuf.b...)
	c.encMu.Unlock()

	if err := c.writeHeaders(http2.HeadersFrameParam{
		StreamID:      fr.StreamID,
		BlockFragment: block,
		EndHeaders:    true,
		EndStream:     false,
	}); err != nil {
		c.closeStream(fr.StreamID, err)
		return err
	}

	go func() {
		c.handler(ctx, ex)
		c.closeStream(fr.StreamID, nil)
	}()

	return nil
}

// connectSession adapts one Extended CONNECT stream to ws.Session so the
// rest of the WebSocket pump (ping pacing, close sequencing) is shared
// verbatim with the classic HTTP/1.1 upgrade path in internal/ws.
type connectSession struct {
	conn     *Conn
	streamID uint32
	br       *bufio.Reader
	st       *streamState
}

// chanReader adapts the buffered channel handleData feeds into an
// io.Reader, so connectSession.br can share ws.ReadFrame's *bufio.Reader
// signature with the classic HTTP/1.1 upgrade path.
type chanReader struct {
	ch   chan []byte
	rest []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

func (s *connectSession) ReadMessage() (ws.MessageType, []byte, error) {
	typ, payload, _, err := ws.ReadFrame(s.br)
	return typ, payload, err
}

// WriteMessage assumes one RFC 6455 frame fits in one DATA frame; large
// WebSocket messages should be fragmented by the caller (ws.Pump only
// ever sends control frames and whole binary messages today).
func (s *connectSession) WriteMessage(typ ws.MessageType, data []byte) error {
	frame, err := ws.BuildFrame(typ, data, false)
	if err != nil {
		return err
	}
	return s.conn.writeData(s.streamID, false, frame)
}

func (s *connectSession) Close(code ws.StatusCode, reason string) error {
	frame, err := ws.BuildFrame(ws.MessageClose, ws.EncodeCloseFrame(code, reason), false)
	if err == nil {
		_ = s.conn.writeData(s.streamID, true, frame)
	}
	s.conn.closeStream(s.streamID, fmt.Errorf("ws: closed (%d) %s", code, reason))
	s.st.closeWsIn()
	return nil
}

// SetReadDeadline is a no-op: the stream has no independent read
// deadline, only the connection's net.Conn deadline, which this package
// does not expose per-stream.
func (s *connectSession) SetReadDeadline(time.Time) error { return nil }
