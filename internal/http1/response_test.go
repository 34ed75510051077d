package http1

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/header"
)

func newTestExchange(acceptEncoding string) *exchange.Exchange {
	ex := exchange.New(context.Background(), func(exchange.ResetCode) {})
	if acceptEncoding != "" {
		ex.Request.Headers = []header.Header{{Name: "Accept-Encoding", Raw: acceptEncoding}}
	}
	return ex
}

func TestSelectCodingRespectsThreshold(t *testing.T) {
	c := &Conn{compression: config.CompressionConfig{
		Enabled:              true,
		ContentSizeThreshold: 16,
		AllowedCodings:       []string{"gzip"},
	}}

	ex := newTestExchange("gzip")
	ex.Response.Body().String(strings.Repeat("x", 4))
	if got := c.selectCoding(ex, ex.Response.Body()); got != "" {
		t.Fatalf("expected no coding below threshold, got %q", got)
	}

	ex2 := newTestExchange("gzip")
	ex2.Response.Body().String(strings.Repeat("x", 64))
	if got := c.selectCoding(ex2, ex2.Response.Body()); got != "gzip" {
		t.Fatalf("expected gzip above threshold, got %q", got)
	}
}

func TestSelectCodingHonoursAllowedCodings(t *testing.T) {
	c := &Conn{compression: config.CompressionConfig{
		Enabled:              true,
		ContentSizeThreshold: 0,
		AllowedCodings:       []string{"deflate"},
	}}

	ex := newTestExchange("gzip, deflate;q=0.5")
	ex.Response.Body().String("payload")
	if got := c.selectCoding(ex, ex.Response.Body()); got != "deflate" {
		t.Fatalf("expected deflate (gzip not allowed), got %q", got)
	}
}

func TestWriteResponseCompressesEligibleBody(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	conn := NewConn(serverSide, func(context.Context, *exchange.Exchange) {})
	conn.SetCompression(config.CompressionConfig{
		Enabled:              true,
		ContentSizeThreshold: 0,
		AllowedCodings:       []string{"gzip"},
	})

	ex := newTestExchange("gzip")
	ex.Response.Body().String("hello compressed world")

	done := make(chan error, 1)
	go func() { done <- conn.writeResponse(ex) }()

	br := bufio.NewReader(clientSide)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(statusLine, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line %q", statusLine)
	}

	var gotContentEncoding bool
	var contentLength int
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Content-Encoding:") {
			gotContentEncoding = strings.Contains(line, "gzip")
		}
		if strings.HasPrefix(line, "Content-Length:") {
			contentLength = mustAtoi(t, strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:")))
		}
	}
	if !gotContentEncoding {
		t.Fatalf("expected Content-Encoding: gzip header")
	}
	if contentLength == 0 {
		t.Fatalf("expected a non-zero Content-Length for the compressed body")
	}

	compressed := make([]byte, contentLength)
	if _, err := io.ReadFull(br, compressed); err != nil {
		t.Fatalf("read compressed body: %v", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	plain, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("gzip read: %v", err)
	}
	if string(plain) != "hello compressed world" {
		t.Fatalf("decompressed body = %q", plain)
	}

	if err := <-done; err != nil {
		t.Fatalf("writeResponse: %v", err)
	}
	_ = clientSide.Close()
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			t.Fatalf("not a number: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n
}
