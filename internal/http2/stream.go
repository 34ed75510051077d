package http2

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"httpcore/internal/body"
	"httpcore/internal/exchange"
	"httpcore/internal/header"
	"httpcore/internal/negotiate"
)

func (c *Conn) handleHeaders(ctx context.Context, fr *http2.HeadersFrame) error {
	fields, err := c.decoder.DecodeFull(fr.HeaderBlockFragment())
	if err != nil {
		return fmt.Errorf("http2: hpack decode: %w", err)
	}
	protocol, method, rawPath, scheme, authority, hdrs, err := pseudoHeadersWithProtocol(fields)
	if err != nil {
		return c.resetStream(fr.StreamID, http2.ErrCodeProtocol, err)
	}
	if method == "" || (rawPath == "" && method != "CONNECT") {
		return c.resetStream(fr.StreamID, http2.ErrCodeProtocol, fmt.Errorf("http2: missing required pseudo-headers"))
	}
	if method == "CONNECT" && protocol == "websocket" {
		return c.handleExtendedConnect(ctx, fr, authority, rawPath, hdrs)
	}

	path, query := parsePathQuery(rawPath)
	req := &exchange.Request{
		Method:      method,
		Scheme:      scheme,
		Authority:   authority,
		PathOrigin:  rawPath,
		Path:        path,
		Query:       query,
		QueryParams: parseQueryValues(query),
		Headers:     hdrs,
		ProtoMajor:  2,
		ProtoMinor:  0,
	}

	st := &streamState{
		sendWindow: int32(c.cfg.InitialWindowSize),
		recvWindow: int32(c.cfg.InitialWindowSize),
	}

	endStream := fr.StreamEnded()
	if !endStream {
		in, sink := body.NewInbound(4)
		req.Body = in
		coding := contentEncodingOf(hdrs)
		if !c.compression.DecompressionEnabled {
			coding = ""
		}
		if coding != "" {
			pr, pw := io.Pipe()
			st.rawIn = pw
			go decompressInboundBody(ctx, coding, pr, sink)
		} else {
			st.sink = sink
		}
	}
	st.endStreamSeen = endStream

	ex := exchange.New(ctx, func(code exchange.ResetCode) {
		_ = c.writeRSTStream(fr.StreamID, http2.ErrCode(code))
	})
	ex.Request = *req
	ex.Advance(exchange.Starting)
	st.ex = ex

	c.mu.Lock()
	c.streams[fr.StreamID] = st
	c.mu.Unlock()

	go func() {
		c.handler(ctx, ex)
		c.writeResponseHeaders(fr.StreamID, ex)
	}()

	return nil
}

func (c *Conn) handleData(ctx context.Context, fr *http2.DataFrame) error {
	c.mu.Lock()
	st, ok := c.streams[fr.StreamID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	data := fr.Data()
	switch {
	case st.wsIn != nil:
		if len(data) > 0 {
			chunk := make([]byte, len(data))
			copy(chunk, data)
			st.wsIn <- chunk
		}
		if fr.StreamEnded() {
			st.closeWsIn()
		}
		return nil
	case st.rawIn != nil:
		if len(data) > 0 {
			if _, err := st.rawIn.Write(data); err != nil {
				c.logger.Debug("writing DATA frame into decompression pipe failed", zap.Error(err))
			}
		}
		if fr.StreamEnded() {
			_ = st.rawIn.Close()
		}
	case st.sink != nil:
		if len(data) > 0 {
			if err := st.sink.Emit(ctx, data); err != nil {
				st.sink.Complete(err)
			}
		}
		if fr.StreamEnded() {
			st.sink.Complete(nil)
		}
	}
	// flow control: replenish stream and connection receive windows.
	if len(data) > 0 {
		_ = c.writeWindowUpdate(fr.StreamID, uint32(len(data)))
		_ = c.writeWindowUpdate(0, uint32(len(data)))
	}
	return nil
}

func (c *Conn) resetStream(id uint32, code http2.ErrCode, cause error) error {
	if werr := c.writeRSTStream(id, code); werr != nil {
		return werr
	}
	c.closeStream(id, cause)
	return nil
}

// writeResponseHeaders encodes ex.Response's headers via HPACK and
// writes the HEADERS frame (and DATA frames for the body, discarding
// the body entirely for HEAD requests per spec.md §4.2/§4.4).
func (c *Conn) writeResponseHeaders(streamID uint32, ex *exchange.Exchange) {
	status := ex.Response.Status()
	if status == 0 {
		status = 200
	}
	ex.Response.MarkWritten()

	out := ex.Response.Body()
	discard := ex.IsHead()

	c.encMu.Lock()
	c.encBuf.b = c.encBuf.b[:0]
	_ = c.encoder.WriteField(hpack.HeaderField{Name: ":status", Value: strconv.Itoa(status)})
	for _, h := range ex.Response.Headers() {
		_ = c.encoder.WriteField(hpack.HeaderField{Name: h.Name, Value: h.Value})
	}
	// Content-Type/Content-Length/Last-Modified are derived from the
	// Outbound itself (set(), resource(), etc.) rather than from an
	// explicit response header, so they need their own pass; a HEAD
	// response still carries the Content-Length the equivalent GET would
	// have, since discard only affects whether DATA frames are sent.
	derived := make(http.Header)
	out.ApplyHeaders(derived)
	for name, vals := range derived {
		for _, v := range vals {
			_ = c.encoder.WriteField(hpack.HeaderField{Name: strings.ToLower(name), Value: v})
		}
	}
	endStream := discard || out.Kind() == body.KindEmpty
	block := append([]byte(nil), c.encBuf.b...)
	c.encMu.Unlock()

	_ = c.writeHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: block,
		EndHeaders:    true,
		EndStream:     endStream,
	})

	if endStream {
		c.closeStream(streamID, nil)
		return
	}
	c.writeResponseBody(streamID, out)
	c.closeStream(streamID, nil)
}

func (c *Conn) writeResponseBody(streamID uint32, out *body.Outbound) {
	switch {
	case out.Single():
		c.writeDataFrames(streamID, out.Buffer())
	case out.Kind() == body.KindSSE:
		for ev := range out.Events() {
			c.writeDataFrames(streamID, body.EncodeSSE(ev))
		}
		_ = c.writeData(streamID, true, nil)
		return
	case out.Reader() != nil:
		buf := make([]byte, 16*1024)
		for {
			n, err := out.Reader().Read(buf)
			if n > 0 {
				c.writeDataFrames(streamID, buf[:n])
			}
			if err != nil {
				break
			}
		}
	}
	_ = c.writeData(streamID, true, nil)
}

func (c *Conn) writeDataFrames(streamID uint32, data []byte) {
	maxFrame := int(c.cfg.MaxFrameSize)
	if maxFrame <= 0 {
		maxFrame = 16384
	}
	for len(data) > 0 {
		n := len(data)
		if n > maxFrame {
			n = maxFrame
		}
		_ = c.writeData(streamID, false, data[:n])
		data = data[n:]
	}
}

func contentEncodingOf(hdrs []header.Header) string {
	for _, h := range hdrs {
		if strings.EqualFold(h.Name, "content-encoding") {
			return strings.ToLower(strings.TrimSpace(h.Value))
		}
	}
	return ""
}

// decompressInboundBody sits between handleData's raw DATA-frame writes
// (arriving via pw, the other end of the pipe pr reads from) and sink,
// transparently decoding coding per spec.md §4.6 - the HTTP/2 analogue of
// http1's copyBody decompression wrapping.
func decompressInboundBody(ctx context.Context, coding string, pr *io.PipeReader, sink *body.Sink) {
	r, err := negotiate.NewDecoder(coding, pr)
	if err != nil {
		sink.Complete(err)
		_ = pr.CloseWithError(err)
		return
	}
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if emitErr := sink.Emit(ctx, chunk); emitErr != nil {
				sink.Complete(emitErr)
				_ = pr.CloseWithError(emitErr)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			sink.Complete(err)
			return
		}
	}
	sink.Complete(nil)
}

func parseQueryValues(q string) url.Values {
	v, err := url.ParseQuery(q)
	if err != nil {
		return url.Values{}
	}
	return v
}
