package body

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
)

// ErrAlreadySet is returned by every Outbound setter once a previous
// setter already succeeded; spec.md §4.3 allows at most one to win.
var ErrAlreadySet = errors.New("body: response data already set")

// Resource is the out-of-scope capability consumed by Outbound.Resource,
// per spec.md §6.
type Resource interface {
	Exists() bool
	Size() (int64, bool)
	MediaType() string
	LastModified() (time.Time, bool)
	Read() (io.ReadCloser, error)
}

// Kind identifies which setter populated an Outbound.
type Kind int

const (
	KindUnset Kind = iota
	KindEmpty
	KindRaw
	KindString
	KindResource
	KindSSE
)

// Outbound is the write-once response body sink of spec.md §4.3.
type Outbound struct {
	kind   Kind
	single bool // true when populated via the single-buffer fast path

	reader io.Reader
	buf    []byte

	contentType   string
	contentLength int64
	hasLength     bool
	lastModified  time.Time
	hasLastMod    bool

	sseEvents <-chan Event
}

// Kind reports which setter populated the outbound body.
func (o *Outbound) Kind() Kind { return o.kind }

// Single reports whether the single-buffer fast path was used, enabling
// the connection to skip the general streaming write path.
func (o *Outbound) Single() bool { return o.single }

// Buffer returns the single-buffer payload when Single() is true.
func (o *Outbound) Buffer() []byte { return o.buf }

// Reader returns the streaming payload when Single() is false and
// Kind() != KindSSE/KindEmpty.
func (o *Outbound) Reader() io.Reader { return o.reader }

// ContentType returns the sniffed/declared content type, if any.
func (o *Outbound) ContentType() (string, bool) { return o.contentType, o.contentType != "" }

// ContentLength returns the known length, if any.
func (o *Outbound) ContentLength() (int64, bool) { return o.contentLength, o.hasLength }

// LastModified returns the resource's modification time, if any.
func (o *Outbound) LastModified() (time.Time, bool) { return o.lastModified, o.hasLastMod }

// Events returns the SSE event channel when Kind() == KindSSE.
func (o *Outbound) Events() <-chan Event { return o.sseEvents }

func (o *Outbound) claim(k Kind) error {
	if o.kind != KindUnset {
		return ErrAlreadySet
	}
	o.kind = k
	return nil
}

// Empty sets a zero-length body.
func (o *Outbound) Empty() error {
	if err := o.claim(KindEmpty); err != nil {
		return err
	}
	o.single = true
	o.buf = nil
	o.hasLength = true
	o.contentLength = 0
	return nil
}

// Raw sets a streaming raw body from r.
func (o *Outbound) Raw(r io.Reader) error {
	if err := o.claim(KindRaw); err != nil {
		return err
	}
	o.reader = r
	return nil
}

// RawBuffer sets a single in-memory raw body, enabling the optimised
// single-buffer write path.
func (o *Outbound) RawBuffer(b []byte) error {
	if err := o.claim(KindRaw); err != nil {
		return err
	}
	o.single = true
	o.buf = b
	o.hasLength = true
	o.contentLength = int64(len(b))
	return nil
}

// String sets a single in-memory string body.
func (o *Outbound) String(s string) error {
	if err := o.claim(KindString); err != nil {
		return err
	}
	o.single = true
	o.buf = []byte(s)
	o.hasLength = true
	o.contentLength = int64(len(s))
	if o.contentType == "" {
		o.contentType = "text/plain; charset=utf-8"
	}
	return nil
}

// Resource sets a streaming body backed by a Resource, auto-populating
// content-length, content-type (the resource's declared MediaType, falling
// back to a media-type sniff on the resource's name), and
// last-modified when not already set by the caller - spec.md §4.3.
func (o *Outbound) Resource(name string, res Resource) error {
	if err := o.claim(KindResource); err != nil {
		return err
	}
	r, err := res.Read()
	if err != nil {
		return err
	}
	o.reader = r
	if sz, ok := res.Size(); ok {
		o.hasLength = true
		o.contentLength = sz
	}
	if o.contentType == "" {
		if ct := res.MediaType(); ct != "" {
			o.contentType = ct
		} else if ext := filepath.Ext(name); ext != "" {
			if sniffed := mime.TypeByExtension(ext); sniffed != "" {
				o.contentType = sniffed
			}
		}
		if o.contentType == "" {
			o.contentType = "application/octet-stream"
		}
	}
	if t, ok := res.LastModified(); ok && !o.hasLastMod {
		o.lastModified = t
		o.hasLastMod = true
	}
	return nil
}

// SetContentType overrides the auto-detected content type; must be called
// before a setter claims the Outbound, or it has no effect on Resource's
// auto-sniff (it is consulted first).
func (o *Outbound) SetContentType(ct string) { o.contentType = ct }

// Event is one Server-Sent Event, per spec.md §4.3.
type Event struct {
	ID      string
	Event   string
	Comment string
	Data    string
}

// EncodeSSE serialises an Event in text/event-stream wire form: a ':'
// comment line, id:, event:, then data: lines with embedded CR/LF
// escaped by splitting into additional "data:" lines, terminated by a
// blank line.
func EncodeSSE(e Event) []byte {
	var b bytes.Buffer
	if e.Comment != "" {
		b.WriteString(": ")
		b.WriteString(e.Comment)
		b.WriteString("\r\n")
	}
	if e.ID != "" {
		b.WriteString("id:")
		b.WriteString(e.ID)
		b.WriteString("\r\n")
	}
	if e.Event != "" {
		b.WriteString("event:")
		b.WriteString(e.Event)
		b.WriteString("\r\n")
	}
	data := e.Data
	for {
		idx := indexAnyLineBreak(data)
		if idx < 0 {
			b.WriteString("data:")
			b.WriteString(data)
			b.WriteString("\r\n")
			break
		}
		b.WriteString("data:")
		b.WriteString(data[:idx])
		b.WriteString("\r\n")
		data = data[idx+1:]
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func indexAnyLineBreak(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return i
		}
	}
	return -1
}

// SSE sets the body to a Server-Sent Event stream driven by factory, which
// receives a channel it should send Events to and close when done.
func (o *Outbound) SSE(factory func(chan<- Event)) error {
	if err := o.claim(KindSSE); err != nil {
		return err
	}
	ch := make(chan Event, 16)
	o.sseEvents = ch
	o.contentType = "text/event-stream"
	go factory(ch)
	return nil
}

// ApplyHeaders writes the Outbound's derived content headers into h.
func (o *Outbound) ApplyHeaders(h http.Header) {
	if ct, ok := o.ContentType(); ok {
		h.Set("Content-Type", ct)
	}
	if cl, ok := o.ContentLength(); ok && o.kind != KindSSE {
		h.Set("Content-Length", strconv.FormatInt(cl, 10))
	}
	if t, ok := o.LastModified(); ok {
		h.Set("Last-Modified", t.UTC().Format(http.TimeFormat))
	}
}
