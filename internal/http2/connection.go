// Package http2 implements the per-connection HTTP/2 exchange pipeline
// of spec.md §4.4: a stream registry keyed by stream ID, HPACK-coded
// headers via golang.org/x/net/http2/hpack, framing via
// golang.org/x/net/http2's Framer, flow-control windows, and the
// RFC 8441 Extended CONNECT path for WebSocket-over-HTTP/2.
package http2

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"httpcore/internal/body"
	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/header"
	"httpcore/internal/telemetry"
)

// Handler processes one Exchange delivered on a stream, identical in
// contract to http1.Handler.
type Handler func(ctx context.Context, ex *exchange.Exchange)

type streamState struct {
	ex            *exchange.Exchange
	sink          *body.Sink
	rawIn         *io.PipeWriter // set instead of feeding sink directly when the request body needs decompression
	sendWindow    int32
	recvWindow    int32
	endStreamSeen bool

	wsIn     chan []byte // set instead of sink for an RFC 8441 Extended CONNECT stream
	wsInOnce sync.Once
}

// closeWsIn closes wsIn at most once: handleData closes it on a
// client-initiated END_STREAM, connectSession.Close closes it on a
// handler-initiated close, and either may race the other.
func (st *streamState) closeWsIn() {
	st.wsInOnce.Do(func() { close(st.wsIn) })
}

// Conn drives one accepted HTTP/2 connection: the preface/SETTINGS
// exchange, the frame read loop, HPACK (de)coding, and per-stream flow
// control, per spec.md §4.4/§6's http2 settings keys.
type Conn struct {
	framer  *http2.Framer
	writeMu sync.Mutex // golang.org/x/net/http2.Framer is not safe for concurrent writes
	decoder *hpack.Decoder
	encMu   sync.Mutex
	encoder *hpack.Encoder
	encBuf  writerBuf

	handler     Handler
	cfg         config.HTTP2Config
	compression config.CompressionConfig
	headers     *header.Registry
	logger      *zap.Logger

	mu             sync.Mutex
	streams        map[uint32]*streamState
	connSendWindow int32
	connRecvWindow int32
	goAway         bool
}

func (c *Conn) writeSettings(s ...http2.Setting) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteSettings(s...)
}

func (c *Conn) writeSettingsAck() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteSettingsAck()
}

func (c *Conn) writeRSTStream(streamID uint32, code http2.ErrCode) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteRSTStream(streamID, code)
}

func (c *Conn) writePing(ack bool, data [8]byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WritePing(ack, data)
}

func (c *Conn) writeGoAway(lastStreamID uint32, code http2.ErrCode) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteGoAway(lastStreamID, code, nil)
}

func (c *Conn) writeWindowUpdate(streamID uint32, incr uint32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteWindowUpdate(streamID, incr)
}

func (c *Conn) writeHeaders(p http2.HeadersFrameParam) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteHeaders(p)
}

func (c *Conn) writeData(streamID uint32, endStream bool, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteData(streamID, endStream, data)
}

type writerBuf struct{ b []byte }

func (w *writerBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// NewConn wraps framer (already past the connection preface) for
// dispatch to handler. The caller is responsible for reading and
// discarding the client connection preface before constructing Conn.
func NewConn(framer *http2.Framer, cfg config.HTTP2Config, handler Handler) *Conn {
	c := &Conn{
		framer:         framer,
		handler:        handler,
		cfg:            cfg,
		headers:        header.NewRegistry(),
		logger:         zap.NewNop(),
		streams:        make(map[uint32]*streamState),
		connSendWindow: 65535,
		connRecvWindow: 65535,
	}
	var buf writerBuf
	c.encBuf = buf
	c.decoder = hpack.NewDecoder(4096, nil)
	c.encoder = hpack.NewEncoder(&c.encBuf)
	return c
}

// SetLogger attaches a structured logger for this connection's frame-level
// events (stream resets, GOAWAY, hpack decode failures).
func (c *Conn) SetLogger(l *zap.Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetCompression attaches the compression policy governing both outbound
// response encoding and, per spec.md §4.6, transparent inbound
// Content-Encoding decoding of request DATA frames.
func (c *Conn) SetCompression(cfg config.CompressionConfig) {
	c.compression = cfg
}

// Serve writes the initial SETTINGS frame, then reads frames until the
// connection closes or ctx is cancelled.
func (c *Conn) Serve(ctx context.Context) error {
	telemetry.ConnectionAccepted("http2")
	c.logger.Debug("http2 connection accepted")
	reason := "graceful"
	defer func() { telemetry.ConnectionClosed("http2", reason) }()

	settings := []http2.Setting{
		{ID: http2.SettingMaxConcurrentStreams, Val: c.cfg.MaxConcurrentStreams},
		{ID: http2.SettingInitialWindowSize, Val: c.cfg.InitialWindowSize},
		{ID: http2.SettingMaxFrameSize, Val: c.cfg.MaxFrameSize},
		{ID: http2.SettingMaxHeaderListSize, Val: c.cfg.MaxHeaderListSize},
	}
	if err := c.writeSettings(settings...); err != nil {
		reason = "error"
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		f, err := c.framer.ReadFrame()
		if err != nil {
			if err == context.Canceled {
				return err
			}
			reason = "error"
			return err
		}
		if err := c.handleFrame(ctx, f); err != nil {
			reason = "error"
			return err
		}
		c.mu.Lock()
		done := c.goAway && len(c.streams) == 0
		c.mu.Unlock()
		if done {
			return nil
		}
	}
}

func (c *Conn) handleFrame(ctx context.Context, f http2.Frame) error {
	switch fr := f.(type) {
	case *http2.SettingsFrame:
		if !fr.IsAck() {
			return c.writeSettingsAck()
		}
		return nil
	case *http2.HeadersFrame:
		return c.handleHeaders(ctx, fr)
	case *http2.DataFrame:
		return c.handleData(ctx, fr)
	case *http2.WindowUpdateFrame:
		return c.handleWindowUpdate(fr)
	case *http2.RSTStreamFrame:
		c.logger.Debug("peer sent RST_STREAM", zap.Uint32("streamID", fr.StreamID), zap.Uint32("errCode", uint32(fr.ErrCode)))
		c.closeStream(fr.StreamID, fmt.Errorf("http2: peer sent RST_STREAM(%v)", fr.ErrCode))
		return nil
	case *http2.PingFrame:
		if !fr.IsAck() {
			return c.writePing(true, fr.Data)
		}
		return nil
	case *http2.GoAwayFrame:
		c.mu.Lock()
		c.goAway = true
		c.mu.Unlock()
		return nil
	case *http2.PriorityFrame:
		return nil
	default:
		return nil
	}
}

func (c *Conn) handleWindowUpdate(fr *http2.WindowUpdateFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fr.StreamID == 0 {
		c.connSendWindow += int32(fr.Increment)
		return nil
	}
	if st, ok := c.streams[fr.StreamID]; ok {
		st.sendWindow += int32(fr.Increment)
	}
	return nil
}

func (c *Conn) closeStream(id uint32, cause error) {
	c.mu.Lock()
	st, ok := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if ok && st.ex != nil {
		st.ex.Reset(exchange.CodeCancel, cause)
	}
}

// GoAway sends a GOAWAY frame announcing graceful shutdown, per
// spec.md §4.4/§9: in-flight streams are allowed to finish; no new
// streams above lastStreamID will be accepted afterwards.
func (c *Conn) GoAway(lastStreamID uint32, code http2.ErrCode) error {
	c.mu.Lock()
	c.goAway = true
	c.mu.Unlock()
	return c.writeGoAway(lastStreamID, code)
}

func pseudoHeaders(hf []hpack.HeaderField) (method, path, scheme, authority string, rest []header.Header, err error) {
	_, method, path, scheme, authority, rest, err = pseudoHeadersWithProtocol(hf)
	return method, path, scheme, authority, rest, err
}

// pseudoHeadersWithProtocol additionally extracts the :protocol
// pseudo-header RFC 8441 §4 adds for Extended CONNECT requests.
func pseudoHeadersWithProtocol(hf []hpack.HeaderField) (protocol, method, path, scheme, authority string, rest []header.Header, err error) {
	for _, f := range hf {
		if f.IsPseudo() {
			// ValidateHTTP2Name does not list :protocol, which only
			// Extended CONNECT requests carry.
			if verr := header.ValidateHTTP2Name(f.Name); verr != nil && f.Name != ":protocol" {
				return "", "", "", "", "", nil, verr
			}
			switch f.Name {
			case ":method":
				method = f.Value
			case ":path":
				path = f.Value
			case ":scheme":
				scheme = f.Value
			case ":authority":
				authority = f.Value
			case ":protocol":
				protocol = f.Value
			}
			continue
		}
		if verr := header.ValidateHTTP2Name(f.Name); verr != nil {
			return "", "", "", "", "", nil, verr
		}
		rest = append(rest, header.Header{Name: f.Name, Raw: f.Value, Value: f.Value})
	}
	return protocol, method, path, scheme, authority, rest, nil
}

func parsePathQuery(path string) (p, q string) {
	u, err := url.Parse(path)
	if err != nil {
		return path, ""
	}
	return u.Path, u.RawQuery
}
