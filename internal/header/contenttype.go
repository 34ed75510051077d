package header

import "strings"

// MediaRange is a parsed "type/subtype; param=value..." production, used
// both for Content-Type (a single range) and Accept (a list of ranges with
// quality values), per spec.md §4.7.4/§4.7.5.
type MediaRange struct {
	Type    string
	Subtype string
	Params  map[string]string
	Q       float64 // defaults to 1.0 when absent
}

// Specificity ranks a range for tie-breaking: concrete type/subtype with
// parameters beats concrete type/subtype, beats type/*, beats */*.
func (m MediaRange) Specificity() int {
	score := 0
	if m.Type != "*" {
		score += 100
	}
	if m.Subtype != "*" {
		score += 10
	}
	score += len(m.Params)
	return score
}

// Matches reports whether m (a registered range) matches the concrete
// media type "typ/subtyp" with params, per the rule in spec.md §4.7.4:
// range type/subtype wildcards or equals; every range parameter must equal
// the corresponding type parameter (a parameter missing on the type fails).
func (m MediaRange) Matches(typ, subtyp string, params map[string]string) bool {
	if m.Type != "*" && !strings.EqualFold(m.Type, typ) {
		return false
	}
	if m.Subtype != "*" && !strings.EqualFold(m.Subtype, subtyp) {
		return false
	}
	for k, v := range m.Params {
		got, ok := params[k]
		if !ok || !strings.EqualFold(got, v) {
			return false
		}
	}
	return true
}

func parseMediaRange(pv ParamValue) (MediaRange, error) {
	parts := strings.SplitN(pv.Value, "/", 2)
	if len(parts) != 2 {
		return MediaRange{}, &ErrMalformed{Reason: "media range missing '/'"}
	}
	typ, subtyp := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if typ == "" || subtyp == "" {
		return MediaRange{}, &ErrMalformed{Reason: "empty media type or subtype"}
	}
	if typ != "*" {
		if err := validateToken(typ); err != nil {
			return MediaRange{}, err
		}
	}
	if subtyp != "*" {
		if err := validateToken(subtyp); err != nil {
			return MediaRange{}, err
		}
	}
	m := MediaRange{Type: strings.ToLower(typ), Subtype: strings.ToLower(subtyp), Q: 1.0, Params: map[string]string{}}
	for _, p := range pv.Params {
		if strings.EqualFold(p.Name, "q") {
			if q, ok := parseQ(p.Value); ok {
				m.Q = q
				continue
			}
		}
		m.Params[strings.ToLower(p.Name)] = p.Value
	}
	return m, nil
}

func validateToken(s string) error {
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return &ErrMalformed{Reason: "invalid token byte"}
		}
	}
	return nil
}

func parseQ(s string) (float64, bool) {
	var whole, frac int
	var fracDigits int
	i := 0
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		whole = whole*10 + int(s[i]-'0')
		i++
	}
	if i == start && (i >= len(s) || s[i] != '.') {
		return 0, false
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' && fracDigits < 3 {
			frac = frac*10 + int(s[i]-'0')
			fracDigits++
			i++
		}
	}
	if i != len(s) {
		return 0, false
	}
	v := float64(whole)
	if fracDigits > 0 {
		div := 1.0
		for d := 0; d < fracDigits; d++ {
			div *= 10
		}
		v += float64(frac) / div
	}
	if neg {
		v = -v
	}
	return v, true
}

// ContentType decodes a Content-Type header into its MediaRange plus the
// well-known charset/boundary parameters.
type ContentType struct {
	MediaRange
}

func (c ContentType) Charset() (string, bool)  { v, ok := c.Params["charset"]; return v, ok }
func (c ContentType) Boundary() (string, bool) { v, ok := c.Params["boundary"]; return v, ok }

type contentTypeCodec struct{}

func (contentTypeCodec) Decode(name, raw, _ string) (Header, error) {
	pvs, err := ScanParamValues(raw, ParamValueOptions{
		ValueDelimiter:    ';',
		ParamDelimiter:    ';',
		ParamValueDelim:   '=',
		AllowQuotedValue:  true,
		AllowSpaceInValue: false,
		AllowMultiple:     false,
	})
	if err != nil {
		return Header{}, err
	}
	mr, err := parseMediaRange(pvs[0])
	if err != nil {
		return Header{}, err
	}
	h := Header{Name: "content-type", Raw: raw, Value: mr.Type + "/" + mr.Subtype}
	for k, v := range mr.Params {
		h.Params = append(h.Params, Param{Name: k, Value: v})
	}
	return h, nil
}

func (contentTypeCodec) Encode(h Header) (string, error) {
	var b strings.Builder
	b.WriteString(h.Value)
	for _, p := range h.Params {
		b.WriteString("; ")
		b.WriteString(p.Name)
		b.WriteByte('=')
		if needsQuoting(p.Value) {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(p.Value, `"`, `\"`))
			b.WriteByte('"')
		} else {
			b.WriteString(p.Value)
		}
	}
	return b.String(), nil
}

// ParseMediaRanges parses the whole value of a Content-Type or Accept-style
// header into its MediaRange list, exported for use by the routing engine's
// content-type and accept links (spec.md §4.7.4/§4.7.5).
func ParseMediaRanges(raw string) ([]MediaRange, error) {
	pvs, err := ScanParamValues(raw, DefaultParamValueOptions())
	if err != nil {
		return nil, err
	}
	out := make([]MediaRange, 0, len(pvs))
	for _, pv := range pvs {
		mr, err := parseMediaRange(pv)
		if err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, nil
}

type mediaRangeListCodec struct{}

func (mediaRangeListCodec) Decode(name, raw, _ string) (Header, error) {
	if _, err := ParseMediaRanges(raw); err != nil {
		return Header{}, err
	}
	return Header{Name: strings.ToLower(name), Raw: raw, Value: raw}, nil
}

func (mediaRangeListCodec) Encode(h Header) (string, error) { return h.Value, nil }
