package http2

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/ws"
)

func TestPseudoHeadersRejectsForbiddenBytes(t *testing.T) {
	_, _, _, _, _, err := pseudoHeaders([]hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: "X-Upper", Value: "nope"}, // uppercase field name is forbidden on HTTP/2
	})
	if err == nil {
		t.Fatalf("expected error for uppercase header name")
	}
}

func TestPseudoHeadersExtractsRequestLine(t *testing.T) {
	method, path, scheme, authority, rest, err := pseudoHeaders([]hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/widgets?id=3"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.test"},
		{Name: "accept", Value: "application/json"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != "GET" || path != "/widgets?id=3" || scheme != "https" || authority != "example.test" {
		t.Fatalf("unexpected parse: %q %q %q %q", method, path, scheme, authority)
	}
	if len(rest) != 1 || rest[0].Name != "accept" {
		t.Fatalf("expected accept header preserved, got %+v", rest)
	}
}

func TestParsePathQuerySplitsRawQuery(t *testing.T) {
	p, q := parsePathQuery("/widgets/7?expand=owner")
	if p != "/widgets/7" || q != "expand=owner" {
		t.Fatalf("got path=%q query=%q", p, q)
	}
}

// TestHeadRequestDiscardsResponseBody drives a real HEADERS exchange over
// a net.Pipe and asserts the HEADERS frame alone carries EndStream for a
// HEAD request, with no DATA frame following, per the IsHead body-discard
// rule shared with http1.
func TestHeadRequestDiscardsResponseBody(t *testing.T) {
	serverSide, clientSide := net.Pipe()

	cfg := config.HTTP2Config{
		MaxConcurrentStreams: 100,
		InitialWindowSize:    65535,
		MaxFrameSize:         16384,
		MaxHeaderListSize:    8192,
	}

	handler := func(ctx context.Context, ex *exchange.Exchange) {
		_ = ex.Response.SetStatus(200)
		_ = ex.Response.Body().String("this body must never reach the wire")
	}

	serverFramer := http2.NewFramer(serverSide, serverSide)
	conn := NewConn(serverFramer, cfg, handler)
	serveErr := make(chan error, 1)
	go func() { serveErr <- conn.Serve(context.Background()) }()

	clientFramer := http2.NewFramer(clientSide, clientSide)
	clientSide.SetDeadline(time.Now().Add(2 * time.Second))

	// Drain the server's initial SETTINGS frame.
	if _, err := clientFramer.ReadFrame(); err != nil {
		t.Fatalf("reading server settings: %v", err)
	}

	var hbuf bytes.Buffer
	enc := hpack.NewEncoder(&hbuf)
	_ = enc.WriteField(hpack.HeaderField{Name: ":method", Value: "HEAD"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":scheme", Value: "https"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":authority", Value: "example.test"})

	if err := clientFramer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hbuf.Bytes(),
		EndHeaders:    true,
		EndStream:     true,
	}); err != nil {
		t.Fatalf("writing request headers: %v", err)
	}

	f, err := clientFramer.ReadFrame()
	if err != nil {
		t.Fatalf("reading response headers: %v", err)
	}
	hf, ok := f.(*http2.HeadersFrame)
	if !ok {
		t.Fatalf("expected HeadersFrame, got %T", f)
	}
	if !hf.StreamEnded() {
		t.Fatalf("expected EndStream on HEAD response headers, no DATA frame should follow")
	}

	var gotContentLength string
	dec := hpack.NewDecoder(4096, func(f hpack.HeaderField) {
		if f.Name == "content-length" {
			gotContentLength = f.Value
		}
	})
	if _, err := dec.Write(hf.HeaderBlockFragment()); err != nil {
		t.Fatalf("decoding response headers: %v", err)
	}
	wantContentLength := strconv.Itoa(len("this body must never reach the wire"))
	if gotContentLength != wantContentLength {
		t.Fatalf("expected content-length %q on the HEAD response (matching the GET equivalent), got %q", wantContentLength, gotContentLength)
	}

	clientSide.Close()
	serverSide.Close()
	<-serveErr
}

// TestRequestBodyDecompressesGzipContentEncoding drives a POST with a
// gzip Content-Encoding header and a gzip-compressed DATA frame, and
// asserts the handler's ex.Request.Body sees the plaintext bytes, per
// spec.md §4.6's inbound decompression requirement.
func TestRequestBodyDecompressesGzipContentEncoding(t *testing.T) {
	serverSide, clientSide := net.Pipe()

	cfg := config.HTTP2Config{
		MaxConcurrentStreams: 100,
		InitialWindowSize:    65535,
		MaxFrameSize:         16384,
		MaxHeaderListSize:    8192,
	}

	const want = "hello from a gzip-compressed request body"
	gotBody := make(chan string, 1)
	handler := func(ctx context.Context, ex *exchange.Exchange) {
		ch, err := ex.Request.Body.Subscribe(ctx)
		if err != nil {
			t.Errorf("Subscribe: %v", err)
			return
		}
		var buf bytes.Buffer
		for c := range ch {
			if c.Err != nil && c.Err != io.EOF {
				t.Errorf("inbound chunk error: %v", c.Err)
				return
			}
			buf.Write(c.Data)
			if c.Err == io.EOF {
				break
			}
		}
		gotBody <- buf.String()
		_ = ex.Response.SetStatus(200)
		_ = ex.Response.Body().String("ok")
	}

	serverFramer := http2.NewFramer(serverSide, serverSide)
	conn := NewConn(serverFramer, cfg, handler)
	conn.SetCompression(config.CompressionConfig{DecompressionEnabled: true})
	serveErr := make(chan error, 1)
	go func() { serveErr <- conn.Serve(context.Background()) }()

	clientFramer := http2.NewFramer(clientSide, clientSide)
	clientSide.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := clientFramer.ReadFrame(); err != nil {
		t.Fatalf("reading server settings: %v", err)
	}

	var gzipped bytes.Buffer
	gw := gzip.NewWriter(&gzipped)
	if _, err := gw.Write([]byte(want)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	var hbuf bytes.Buffer
	enc := hpack.NewEncoder(&hbuf)
	_ = enc.WriteField(hpack.HeaderField{Name: ":method", Value: "POST"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/upload"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":scheme", Value: "https"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":authority", Value: "example.test"})
	_ = enc.WriteField(hpack.HeaderField{Name: "content-encoding", Value: "gzip"})

	if err := clientFramer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hbuf.Bytes(),
		EndHeaders:    true,
		EndStream:     false,
	}); err != nil {
		t.Fatalf("writing request headers: %v", err)
	}
	if err := clientFramer.WriteData(1, true, gzipped.Bytes()); err != nil {
		t.Fatalf("writing gzip data frame: %v", err)
	}

	select {
	case got := <-gotBody:
		if got != want {
			t.Fatalf("got body %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never observed the decompressed body")
	}

	f, err := clientFramer.ReadFrame()
	if err != nil {
		t.Fatalf("reading response headers: %v", err)
	}
	if _, ok := f.(*http2.HeadersFrame); !ok {
		t.Fatalf("expected HeadersFrame, got %T", f)
	}

	clientSide.Close()
	serverSide.Close()
	<-serveErr
}

// TestExtendedConnectEchoesWSFrames drives an RFC 8441 Extended CONNECT
// request end to end: a HEADERS frame with :method CONNECT and
// :protocol websocket should get a 2xx HEADERS response with no
// END_STREAM, and a DATA frame carrying a raw RFC 6455 frame should
// reach the handler through ex.Request.WSSession.
func TestExtendedConnectEchoesWSFrames(t *testing.T) {
	serverSide, clientSide := net.Pipe()

	cfg := config.HTTP2Config{
		MaxConcurrentStreams: 100,
		InitialWindowSize:    65535,
		MaxFrameSize:         16384,
		MaxHeaderListSize:    8192,
	}

	handler := func(ctx context.Context, ex *exchange.Exchange) {
		sess, ok := ex.Request.WSSession.(ws.Session)
		if !ok {
			t.Errorf("expected ex.Request.WSSession to implement ws.Session")
			return
		}
		typ, payload, err := sess.ReadMessage()
		if err != nil {
			t.Errorf("ReadMessage: %v", err)
			return
		}
		_ = sess.WriteMessage(typ, payload)
	}

	serverFramer := http2.NewFramer(serverSide, serverSide)
	conn := NewConn(serverFramer, cfg, handler)
	serveErr := make(chan error, 1)
	go func() { serveErr <- conn.Serve(context.Background()) }()

	clientFramer := http2.NewFramer(clientSide, clientSide)
	clientSide.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := clientFramer.ReadFrame(); err != nil {
		t.Fatalf("reading server settings: %v", err)
	}

	var hbuf bytes.Buffer
	enc := hpack.NewEncoder(&hbuf)
	_ = enc.WriteField(hpack.HeaderField{Name: ":method", Value: "CONNECT"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":protocol", Value: "websocket"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/ws"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":scheme", Value: "https"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":authority", Value: "example.test"})

	if err := clientFramer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hbuf.Bytes(),
		EndHeaders:    true,
		EndStream:     false,
	}); err != nil {
		t.Fatalf("writing connect headers: %v", err)
	}

	f, err := clientFramer.ReadFrame()
	if err != nil {
		t.Fatalf("reading connect response: %v", err)
	}
	hf, ok := f.(*http2.HeadersFrame)
	if !ok {
		t.Fatalf("expected HeadersFrame, got %T", f)
	}
	if hf.StreamEnded() {
		t.Fatalf("expected extended CONNECT response to stay open (no END_STREAM)")
	}

	wsFrame, err := ws.BuildFrame(ws.MessageText, []byte("hi"), true)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	if err := clientFramer.WriteData(1, false, wsFrame); err != nil {
		t.Fatalf("writing ws data frame: %v", err)
	}

	f2, err := clientFramer.ReadFrame()
	if err != nil {
		t.Fatalf("reading echoed data frame: %v", err)
	}
	df, ok := f2.(*http2.DataFrame)
	if !ok {
		t.Fatalf("expected DataFrame, got %T", f2)
	}
	typ, payload, _, err := ws.ReadFrame(bufio.NewReader(bytes.NewReader(df.Data())))
	if err != nil {
		t.Fatalf("decoding echoed ws frame: %v", err)
	}
	if typ != ws.MessageText || string(payload) != "hi" {
		t.Fatalf("got type=%v payload=%q, want text %q", typ, payload, "hi")
	}

	clientSide.Close()
	serverSide.Close()
	<-serveErr
}
