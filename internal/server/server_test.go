package server

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"httpcore/internal/config"
	"httpcore/internal/exchange"
	"httpcore/internal/routing"
)

type echoController struct{}

func (echoController) Handle(ctx context.Context, ex *exchange.Exchange, resource any) error {
	_ = ex.Response.SetStatus(200)
	return ex.Response.Body().String("ok")
}

func (echoController) HandleError(ctx context.Context, ex *exchange.Exchange, resource any, cause error) error {
	_ = ex.Response.SetStatus(StatusFor(cause))
	return ex.Response.Body().String(cause.Error())
}

func (echoController) NewContext(ex *exchange.Exchange) any { return nil }

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestServerServeAndShutdown drives a real loopback connection through
// accept, dispatch and graceful shutdown, mirroring the teacher's
// accept-loop integration tests in cmd/outline-cli-ws.
func TestServerServeAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = freePort(t)
	cfg.HTTP2.Enabled = false
	cfg.GracefulShutdownTimeoutMS = 1000

	router := routing.NewRouter()
	router.Define().Path("/ping").Method("GET").Set("ping")

	srv, err := New(cfg, router, echoController{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	addr := net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort))
	conn := dialWithRetry(t, addr)
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(statusLine, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line %q", statusLine)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Shutdown")
	}
}

func dialWithRetry(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("could not dial %s", addr)
	return nil
}
