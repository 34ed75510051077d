package http1

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"httpcore/internal/body"
	"httpcore/internal/exchange"
	"httpcore/internal/negotiate"
)

// writeResponse serialises ex's response onto the wire: status line,
// headers, and whichever outbound representation the handler set on
// ex.Response.Body(). A HEAD request's body is always discarded, per
// spec.md §4.2's IsHead rule.
func (c *Conn) writeResponse(ex *exchange.Exchange) error {
	if ex.Response.Written() {
		// A protocol-switching handler (the WebSocket upgrade path) already
		// wrote its own status line directly to the hijacked connection.
		return nil
	}
	status := ex.Response.Status()
	if status == 0 {
		status = 200
	}
	ex.Response.MarkWritten()

	out := ex.Response.Body()
	discard := ex.IsHead()

	coding := c.selectCoding(ex, out)
	var compressedSingle []byte
	if coding != "" && out.Single() {
		buf, err := compressBuffer(coding, out.Buffer())
		if err != nil {
			return err
		}
		compressedSingle = buf
	}

	if _, err := fmt.Fprintf(c.bw, "HTTP/1.1 %d %s\r\n", status, statusText(status)); err != nil {
		return err
	}

	for _, h := range ex.Response.Headers() {
		if _, err := fmt.Fprintf(c.bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if ct, ok := out.ContentType(); ok {
		if _, err := fmt.Fprintf(c.bw, "Content-Type: %s\r\n", ct); err != nil {
			return err
		}
	}
	if coding != "" {
		if _, err := fmt.Fprintf(c.bw, "Content-Encoding: %s\r\n", coding); err != nil {
			return err
		}
	}

	chunked := out.Kind() == body.KindSSE
	switch {
	case compressedSingle != nil:
		if _, err := fmt.Fprintf(c.bw, "Content-Length: %d\r\n", len(compressedSingle)); err != nil {
			return err
		}
	case coding != "":
		chunked = true
		if _, err := io.WriteString(c.bw, "Transfer-Encoding: chunked\r\n"); err != nil {
			return err
		}
	default:
		if cl, ok := out.ContentLength(); ok && !chunked {
			if _, err := fmt.Fprintf(c.bw, "Content-Length: %s\r\n", strconv.FormatInt(cl, 10)); err != nil {
				return err
			}
		} else {
			chunked = true
			if _, err := io.WriteString(c.bw, "Transfer-Encoding: chunked\r\n"); err != nil {
				return err
			}
		}
	}
	if _, err := io.WriteString(c.bw, "\r\n"); err != nil {
		return err
	}
	if discard {
		return c.bw.Flush()
	}

	switch {
	case out.Kind() == body.KindSSE:
		return c.writeSSE(out)
	case compressedSingle != nil:
		if _, err := c.bw.Write(compressedSingle); err != nil {
			return err
		}
		return c.bw.Flush()
	case out.Single():
		if _, err := c.bw.Write(out.Buffer()); err != nil {
			return err
		}
		return c.bw.Flush()
	case out.Reader() != nil:
		if coding != "" {
			return c.writeChunkedCompressed(out.Reader(), coding)
		}
		if chunked {
			return c.writeChunkedFromReader(out.Reader())
		}
		if _, err := io.Copy(c.bw, out.Reader()); err != nil {
			return err
		}
		return c.bw.Flush()
	default:
		return c.bw.Flush()
	}
}

// selectCoding applies spec.md §4.6's compression negotiation to one
// response: SSE streams are already self-framed and never compressed.
func (c *Conn) selectCoding(ex *exchange.Exchange, out *body.Outbound) string {
	if out.Kind() == body.KindSSE {
		return ""
	}
	contentLength := 0
	if cl, ok := out.ContentLength(); ok {
		contentLength = int(cl)
	}
	return negotiate.SelectContentCoding(c.compression, acceptEncodingOf(ex), contentLength)
}

func acceptEncodingOf(ex *exchange.Exchange) string {
	for _, h := range ex.Request.Headers {
		if strings.EqualFold(h.Name, "Accept-Encoding") {
			return h.Raw
		}
	}
	return ""
}

func compressBuffer(coding string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := negotiate.NewEncoder(coding, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeChunkedCompressed streams out's reader through the negotiated
// encoder, chunk-framing whatever the encoder flushes.
func (c *Conn) writeChunkedCompressed(r io.Reader, coding string) error {
	cw := &chunkWriter{bw: c.bw}
	enc, err := negotiate.NewEncoder(coding, cw)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, r); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if _, err := io.WriteString(c.bw, "0\r\n\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

type chunkWriter struct{ bw *bufio.Writer }

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(w.bw, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := w.bw.Write(p); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w.bw, "\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) writeChunkedFromReader(r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := fmt.Fprintf(c.bw, "%x\r\n", n); werr != nil {
				return werr
			}
			if _, werr := c.bw.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := io.WriteString(c.bw, "\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if _, err := io.WriteString(c.bw, "0\r\n\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) writeSSE(out *body.Outbound) error {
	for ev := range out.Events() {
		frame := body.EncodeSSE(ev)
		if _, err := fmt.Fprintf(c.bw, "%x\r\n", len(frame)); err != nil {
			return err
		}
		if _, err := c.bw.Write(frame); err != nil {
			return err
		}
		if _, err := io.WriteString(c.bw, "\r\n"); err != nil {
			return err
		}
		if err := c.bw.Flush(); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.bw, "0\r\n\r\n")
	if err == nil {
		err = c.bw.Flush()
	}
	return err
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 406:
		return "Not Acceptable"
	case 408:
		return "Request Timeout"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 426:
		return "Upgrade Required"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Status"
	}
}

// Shutdown implements spec.md §4.3/§9's graceful-shutdown semantics: the
// first call starts a timer after which the connection is force-closed
// if it hasn't finished on its own; a second call - representing a later,
// harder shutdown request - cancels that timer and closes immediately,
// resolving the race the Open Question identifies by letting the most
// recent caller's intent win.
func (c *Conn) Shutdown(ctx context.Context, graceful bool, timeout time.Duration) {
	c.mu.Lock()
	if c.shutdownCancel != nil {
		// A later shutdown call supersedes the pending graceful timer.
		c.shutdownCancel()
		c.mu.Unlock()
		_ = c.raw.Close()
		return
	}
	if !graceful {
		c.mu.Unlock()
		_ = c.raw.Close()
		return
	}
	timerCtx, cancel := context.WithTimeout(ctx, timeout)
	c.shutdownCancel = cancel
	c.mu.Unlock()

	go func() {
		<-timerCtx.Done()
		c.mu.Lock()
		c.shutdownCancel = nil
		c.mu.Unlock()
		_ = c.raw.Close()
	}()
}
