package header

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SetCookie is the decoded form of one Set-Cookie header: the (name, value)
// identity pair plus its recognised attributes, per spec.md §4.1. Attribute
// names are recognised case-insensitively on decode and always emitted in
// canonical case on encode.
type SetCookie struct {
	Name     string
	Value    string
	Expires  time.Time
	MaxAge   int
	HasMaxAge bool
	Domain   string
	Path     string
	Secure   bool
	HttpOnly bool
	SameSite string
}

type setCookieCodec struct{}

func (setCookieCodec) Decode(name, raw, _ string) (Header, error) {
	sc, err := ParseSetCookie(raw)
	if err != nil {
		return Header{}, err
	}
	h := Header{Name: "set-cookie", Raw: raw, Value: sc.Name + "=" + sc.Value}
	return h, nil
}

func (setCookieCodec) Encode(h Header) (string, error) { return h.Value, nil }

// ParseSetCookie decodes a raw Set-Cookie value. The first "name=value"
// pair establishes the cookie identity; subsequent ';'-separated
// attributes are recognised case-insensitively.
func ParseSetCookie(raw string) (SetCookie, error) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return SetCookie{}, &ErrMalformed{Reason: "empty Set-Cookie value"}
	}
	first := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(first, '=')
	if eq < 0 {
		return SetCookie{}, &ErrMalformed{Reason: "Set-Cookie missing name=value"}
	}
	sc := SetCookie{Name: strings.TrimSpace(first[:eq]), Value: strings.TrimSpace(first[eq+1:])}
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		k, v, hasV := attr, "", false
		if i := strings.IndexByte(attr, '='); i >= 0 {
			k, v, hasV = strings.TrimSpace(attr[:i]), strings.TrimSpace(attr[i+1:]), true
		}
		switch strings.ToLower(k) {
		case "expires":
			if hasV {
				if t, err := time.Parse(time.RFC1123, v); err == nil {
					sc.Expires = t
				}
			}
		case "max-age":
			if hasV {
				if n, err := strconv.Atoi(v); err == nil {
					sc.MaxAge = n
					sc.HasMaxAge = true
				}
			}
		case "domain":
			sc.Domain = v
		case "path":
			sc.Path = v
		case "secure":
			sc.Secure = true
		case "httponly":
			sc.HttpOnly = true
		case "samesite":
			sc.SameSite = v
		}
	}
	return sc, nil
}

// WriteSetCookie renders sc to wire form, e.g.
// "s=v; Max-Age=3600; Path=/; HttpOnly" - matching spec.md §8's
// Set-Cookie-encoding testable property verbatim in attribute order.
func WriteSetCookie(sc SetCookie) string {
	var b strings.Builder
	b.WriteString(sc.Name)
	b.WriteByte('=')
	b.WriteString(sc.Value)
	if !sc.Expires.IsZero() {
		fmt.Fprintf(&b, "; Expires=%s", sc.Expires.UTC().Format(time.RFC1123))
	}
	if sc.HasMaxAge {
		fmt.Fprintf(&b, "; Max-Age=%d", sc.MaxAge)
	}
	if sc.Domain != "" {
		fmt.Fprintf(&b, "; Domain=%s", sc.Domain)
	}
	if sc.Path != "" {
		fmt.Fprintf(&b, "; Path=%s", sc.Path)
	}
	if sc.Secure {
		b.WriteString("; Secure")
	}
	if sc.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if sc.SameSite != "" {
		fmt.Fprintf(&b, "; SameSite=%s", sc.SameSite)
	}
	return b.String()
}
