package negotiate

import (
	"bufio"
	"net/http"
	"strings"
	"testing"

	"httpcore/internal/config"
)

func TestSelectProtocolH2(t *testing.T) {
	if got := SelectProtocol("h2"); got != ProtoHTTP2 {
		t.Fatalf("expected ProtoHTTP2, got %v", got)
	}
	if got := SelectProtocol("http/1.1"); got != ProtoHTTP1 {
		t.Fatalf("expected ProtoHTTP1, got %v", got)
	}
	if got := SelectProtocol(""); got != ProtoHTTP1 {
		t.Fatalf("expected ProtoHTTP1 default, got %v", got)
	}
}

func TestSniffH2CPreface(t *testing.T) {
	br := bufio.NewReader(strings.NewReader(H2CPreface + "extra"))
	ok, err := SniffH2CPreface(br)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !ok {
		t.Fatalf("expected preface detected")
	}

	br2 := bufio.NewReader(strings.NewReader("GET / HTTP/1.1\r\n\r\n"))
	ok2, err := SniffH2CPreface(br2)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if ok2 {
		t.Fatalf("expected non-h2c request not to match")
	}
}

func TestIsUpgradeRequest(t *testing.T) {
	req := &http.Request{Header: http.Header{}}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "h2c")
	req.Header.Set("HTTP2-Settings", "AAMAAABkAAQAoAAAAAIAAAAA")
	if !IsUpgradeRequest(req) {
		t.Fatalf("expected upgrade request recognised")
	}

	plain := &http.Request{Header: http.Header{}}
	if IsUpgradeRequest(plain) {
		t.Fatalf("expected plain request not recognised as upgrade")
	}
}

func TestSelectContentCodingRespectsThresholdAndAllowlist(t *testing.T) {
	cfg := config.CompressionConfig{Enabled: true, ContentSizeThreshold: 1024, AllowedCodings: []string{"gzip"}}

	if got := SelectContentCoding(cfg, "gzip, deflate", 100); got != "" {
		t.Fatalf("expected no coding below threshold, got %q", got)
	}
	if got := SelectContentCoding(cfg, "deflate;q=1.0", 2048); got != "" {
		t.Fatalf("expected deflate rejected (not allowed), got %q", got)
	}
	if got := SelectContentCoding(cfg, "gzip;q=0.5, deflate;q=1.0", 2048); got != "gzip" {
		t.Fatalf("expected gzip selected despite lower q (deflate not allowed), got %q", got)
	}
}
