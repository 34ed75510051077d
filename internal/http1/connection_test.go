package http1

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"httpcore/internal/exchange"
	"httpcore/internal/header"
)

func TestParseHTTPVersion(t *testing.T) {
	cases := map[string]struct {
		major, minor int
		ok           bool
	}{
		"HTTP/1.1": {1, 1, true},
		"HTTP/1.0": {1, 0, true},
		"HTTP/2.0": {0, 0, false},
		"bogus":    {0, 0, false},
	}
	for proto, want := range cases {
		major, minor, ok := parseHTTPVersion(proto)
		if major != want.major || minor != want.minor || ok != want.ok {
			t.Fatalf("parseHTTPVersion(%q) = (%d,%d,%v), want (%d,%d,%v)", proto, major, minor, ok, want.major, want.minor, want.ok)
		}
	}
}

func TestIsUpgradeDetectsConnectionHeader(t *testing.T) {
	hs := []header.Header{{Name: "connection", Raw: "keep-alive, Upgrade"}}
	if !isUpgrade(hs) {
		t.Fatalf("expected Upgrade token detected")
	}
	if isUpgrade([]header.Header{{Name: "connection", Raw: "keep-alive"}}) {
		t.Fatalf("expected no Upgrade token detected")
	}
}

// TestServeRespondsInPipelineOrder drives two pipelined GET requests
// through a real Conn over a net.Pipe. writeLoop drains the pipeline
// FIFO and blocks on each exchange's completion before writing its
// response, so /first's response reaches the wire before /second's even
// though /first's handler is the one made to finish last.
func TestServeRespondsInPipelineOrder(t *testing.T) {
	serverSide, clientSide := net.Pipe()

	releaseFirst := make(chan struct{})
	handler := func(ctx context.Context, ex *exchange.Exchange) {
		if ex.Request.Path == "/first" {
			<-releaseFirst
		}
		ex.Response.Body().RawBuffer([]byte(ex.Request.Path))
	}

	conn := NewConn(serverSide, handler)
	serveErr := make(chan error, 1)
	go func() { serveErr <- conn.Serve(context.Background()) }()

	go func() {
		io.WriteString(clientSide, "GET /first HTTP/1.1\r\n\r\n")
		io.WriteString(clientSide, "GET /second HTTP/1.1\r\n\r\n")
	}()

	time.Sleep(20 * time.Millisecond) // give /second's handler a head start
	close(releaseFirst)

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got string
	buf := make([]byte, 4096)
	for !(indexOf(got, "first") >= 0 && indexOf(got, "second") >= 0) {
		n, err := clientSide.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (so far: %q)", err, got)
		}
		got += string(buf[:n])
	}
	firstIdx := indexOf(got, "first")
	secondIdx := indexOf(got, "second")
	if firstIdx > secondIdx {
		t.Fatalf("expected /first body before /second body in %q", got)
	}

	clientSide.Close()
	<-serveErr
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
