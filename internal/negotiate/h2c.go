package negotiate

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// H2CPreface is the 24-byte connection preface a native h2c client sends
// instead of an HTTP/1.1 request line, per RFC 7540 §3.5.
const H2CPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// SniffH2CPreface peeks the first bytes of a freshly-accepted cleartext
// connection to decide whether it is a prior-knowledge h2c connection
// rather than HTTP/1.1, per spec.md §4.5. It never consumes bytes the
// caller hasn't already buffered via br.
func SniffH2CPreface(br *bufio.Reader) (bool, error) {
	peek, err := br.Peek(len(H2CPreface))
	if err != nil {
		// Fewer bytes buffered than the preface: definitely not h2c.
		return false, nil
	}
	return bytes.Equal(peek, []byte(H2CPreface)), nil
}

// maxH2CUpgradeHeadSize bounds how far PeekUpgradeRequest will grow its
// peek while looking for the end of the request head; a real h2c upgrade
// request's headers are tiny (method, host, the two upgrade headers,
// HTTP2-Settings), so anything past this is certainly not one.
const maxH2CUpgradeHeadSize = 16 * 1024

// PeekUpgradeRequest looks ahead in br for a complete HTTP/1.1 request
// head (request line + headers, up to the blank line) without consuming
// any of it, so the caller can decide whether this is the h2c
// "Connection: Upgrade, HTTP2-Settings" handshake of RFC 7540 §3.2 before
// committing to a protocol. It grows the peek one fill at a time rather
// than requesting a fixed target size up front, so it never blocks
// waiting for bytes a complete, already-fully-sent request was never
// going to supply. ok is false (and nothing is consumed) when no request
// head terminates within maxH2CUpgradeHeadSize or the peeked bytes don't
// parse as a request head; the caller's normal HTTP/1.x decoder then
// takes over from the untouched reader.
func PeekUpgradeRequest(br *bufio.Reader) (req *http.Request, headLen int, ok bool) {
	for {
		n := br.Buffered()
		peek, err := br.Peek(n)
		if idx := bytes.Index(peek, []byte("\r\n\r\n")); idx >= 0 {
			headLen = idx + 4
			r, rerr := http.ReadRequest(bufio.NewReader(bytes.NewReader(peek[:headLen])))
			if rerr != nil {
				return nil, 0, false
			}
			return r, headLen, true
		}
		if err != nil || n >= maxH2CUpgradeHeadSize {
			return nil, 0, false
		}
		if _, err := br.Peek(n + 1); err != nil {
			return nil, 0, false
		}
	}
}

// IsUpgradeRequest reports whether an HTTP/1.1 request is the
// "Connection: Upgrade, HTTP2-Settings" h2c upgrade request of RFC 7540
// §3.2, which the server may answer with 101 Switching Protocols before
// handing the connection to the HTTP/2 stack.
func IsUpgradeRequest(r *http.Request) bool {
	if !headerContainsToken(r.Header, "Connection", "upgrade") {
		return false
	}
	if !headerContainsToken(r.Header, "Upgrade", "h2c") {
		return false
	}
	return r.Header.Get("HTTP2-Settings") != ""
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// WriteSwitchingProtocols writes the 101 response line that completes
// the h2c upgrade handshake; the caller must immediately hand the
// connection to the HTTP/2 server loop afterwards, per RFC 7540 §3.2.
func WriteSwitchingProtocols(w *bufio.Writer) error {
	_, err := fmt.Fprint(w, "HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: h2c\r\n\r\n")
	if err != nil {
		return err
	}
	return w.Flush()
}
