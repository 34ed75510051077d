package negotiate

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"strconv"
	"strings"

	"httpcore/internal/config"
)

// SelectContentCoding picks the content-coding to apply to an outbound
// response, per spec.md §4.6: honour the client's Accept-Encoding
// q-values, restricted to the server's allowed codings, and only above
// the configured size threshold.
func SelectContentCoding(cfg config.CompressionConfig, acceptEncoding string, contentLength int) string {
	if !cfg.Enabled || contentLength < cfg.ContentSizeThreshold {
		return ""
	}
	best, bestQ := "", 0.0
	for _, part := range strings.Split(acceptEncoding, ",") {
		coding, q := parseCodingQ(part)
		if coding == "" || q <= 0 {
			continue
		}
		if !allowed(cfg.AllowedCodings, coding) {
			continue
		}
		if q > bestQ {
			best, bestQ = coding, q
		}
	}
	return best
}

func parseCodingQ(part string) (string, float64) {
	pieces := strings.Split(part, ";")
	coding := strings.ToLower(strings.TrimSpace(pieces[0]))
	q := 1.0
	for _, p := range pieces[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "q=") {
			if v, err := strconv.ParseFloat(strings.TrimPrefix(p, "q="), 64); err == nil {
				q = v
			}
		}
	}
	return coding, q
}

func allowed(codings []string, coding string) bool {
	for _, c := range codings {
		if strings.EqualFold(c, coding) {
			return true
		}
	}
	return false
}

// NewEncoder wraps w with the compressor for coding ("gzip" or
// "deflate"); callers must Close() the returned writer to flush the
// trailer.
func NewEncoder(coding string, w io.Writer) (io.WriteCloser, error) {
	switch coding {
	case "gzip":
		return gzip.NewWriter(w), nil
	case "deflate":
		return flate.NewWriter(w, flate.DefaultCompression)
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewDecoder wraps r with the decompressor matching the request's
// Content-Encoding, for decompressing inbound request bodies.
func NewDecoder(coding string, r io.Reader) (io.ReadCloser, error) {
	switch coding {
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	default:
		return io.NopCloser(r), nil
	}
}
