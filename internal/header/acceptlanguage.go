package header

import "strings"

// LanguageRange is one "tag;q=value" production of an Accept-Language
// header, matched per RFC 4647 basic filtering in the routing engine's
// accept-language link (spec.md §4.7.6).
type LanguageRange struct {
	Tag string
	Q   float64
}

// Matches reports whether tag (a registered/produced language tag) is
// selected by range r using RFC 4647 basic filtering: "*" matches
// anything; otherwise r's tag must equal tag, or be a prefix of tag
// followed by '-'.
func (r LanguageRange) Matches(tag string) bool {
	if r.Tag == "*" {
		return true
	}
	if strings.EqualFold(r.Tag, tag) {
		return true
	}
	return len(tag) > len(r.Tag) && strings.EqualFold(tag[:len(r.Tag)], r.Tag) && tag[len(r.Tag)] == '-'
}

// ParseLanguageRanges parses an Accept-Language header value into an
// ordered list of ranges with their quality values.
func ParseLanguageRanges(raw string) ([]LanguageRange, error) {
	pvs, err := ScanParamValues(raw, DefaultParamValueOptions())
	if err != nil {
		return nil, err
	}
	out := make([]LanguageRange, 0, len(pvs))
	for _, pv := range pvs {
		lr := LanguageRange{Tag: pv.Value, Q: 1.0}
		for _, p := range pv.Params {
			if strings.EqualFold(p.Name, "q") {
				if q, ok := parseQ(p.Value); ok {
					lr.Q = q
				}
			}
		}
		out = append(out, lr)
	}
	return out, nil
}

type languageRangeListCodec struct{}

func (languageRangeListCodec) Decode(name, raw, _ string) (Header, error) {
	if _, err := ParseLanguageRanges(raw); err != nil {
		return Header{}, err
	}
	return Header{Name: strings.ToLower(name), Raw: raw, Value: raw}, nil
}

func (languageRangeListCodec) Encode(h Header) (string, error) { return h.Value, nil }
