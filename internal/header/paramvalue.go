package header

import "strings"

// ParamValueOptions configures the parameterised-value scanner used by
// Content-Type, Accept, Accept-Language, and other "primary; k=v; k=v"
// header grammars, per spec.md §4.1.
type ParamValueOptions struct {
	ValueDelimiter     byte // separates the primary value from its parameters, usually ';'
	ParamDelimiter     byte // separates parameters from each other, usually ';'
	ParamValueDelim    byte // separates a parameter name from its value, usually '='
	AllowEmptyValue    bool // primary value may be ""
	ExpectNoValue      bool // there is no primary value, only parameters
	AllowFlagParameter bool // a parameter may appear without "=value" (e.g. HttpOnly)
	AllowSpaceInValue  bool // carried for callers; ScanParamValues does not consult it and accepts spaces inside unquoted values
	AllowQuotedValue   bool // a value may be a "quoted string" with \" escapes
	AllowMultiple      bool // the whole field may hold a comma-separated list of such values
}

// ParamValue is one decoded (primary value, ordered parameters) production.
type ParamValue struct {
	Value  string
	Params []Param
}

// DefaultParamValueOptions matches the common "type/subtype; param=value"
// grammar used by Content-Type and Accept.
func DefaultParamValueOptions() ParamValueOptions {
	return ParamValueOptions{
		ValueDelimiter:    ';',
		ParamDelimiter:    ';',
		ParamValueDelim:   '=',
		AllowQuotedValue:  true,
		AllowSpaceInValue: false,
		AllowMultiple:     true,
	}
}

// ScanParamValues parses raw into one or more ParamValue productions
// according to opts. Multi-value fields (AllowMultiple) are split on
// top-level commas - commas inside quoted strings do not split.
func ScanParamValues(raw string, opts ParamValueOptions) ([]ParamValue, error) {
	var out []ParamValue
	for {
		raw = strings.TrimLeft(raw, " \t")
		if raw == "" {
			break
		}
		var pv ParamValue
		var rest string
		var err error
		pv, rest, err = scanOne(raw, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, pv)
		raw = strings.TrimLeft(rest, " \t")
		if raw == "" {
			break
		}
		if !opts.AllowMultiple {
			return nil, &ErrMalformed{Reason: "unexpected trailing data"}
		}
		if raw[0] != ',' {
			return nil, &ErrMalformed{Reason: "expected ',' between values"}
		}
		raw = raw[1:]
	}
	if len(out) == 0 && !opts.AllowEmptyValue && !opts.ExpectNoValue {
		return nil, &ErrMalformed{Reason: "empty parameterised value"}
	}
	return out, nil
}

// scanOne parses a single "value; params..." production up to (but not
// including) a top-level comma, returning the unconsumed remainder.
func scanOne(raw string, opts ParamValueOptions) (ParamValue, string, error) {
	var pv ParamValue

	if !opts.ExpectNoValue {
		end := findTopLevel(raw, []byte{opts.ValueDelimiter, ','})
		value := raw
		rest := ""
		if end >= 0 {
			value = raw[:end]
			rest = raw[end:]
		}
		value = strings.TrimSpace(value)
		if value == "" && !opts.AllowEmptyValue {
			return pv, "", &ErrMalformed{Reason: "empty primary value"}
		}
		pv.Value = value
		raw = rest
	}

	for strings.HasPrefix(raw, string(opts.ParamDelimiter)) {
		raw = strings.TrimLeft(raw[1:], " \t")
		end := findTopLevel(raw, []byte{opts.ParamDelimiter, ','})
		var field string
		if end >= 0 {
			field = raw[:end]
			raw = raw[end:]
		} else {
			field = raw
			raw = ""
		}
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		eq := strings.IndexByte(field, opts.ParamValueDelim)
		if eq < 0 {
			if !opts.AllowFlagParameter {
				return pv, "", &ErrMalformed{Reason: "parameter missing '='"}
			}
			pv.Params = append(pv.Params, Param{Name: field})
			continue
		}
		pname := strings.TrimSpace(field[:eq])
		pval := strings.TrimSpace(field[eq+1:])
		if opts.AllowQuotedValue && len(pval) >= 2 && pval[0] == '"' && pval[len(pval)-1] == '"' {
			pval = unescapeQuoted(pval[1 : len(pval)-1])
		}
		pv.Params = append(pv.Params, Param{Name: pname, Value: pval})
	}

	return pv, raw, nil
}

// findTopLevel returns the index of the first occurrence of any byte in
// delims that is not inside a "quoted string", or -1 if none is found.
func findTopLevel(s string, delims []byte) int {
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && inQuotes && i+1 < len(s) {
			i++
			continue
		}
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, d := range delims {
			if c == d {
				return i
			}
		}
	}
	return -1
}

func unescapeQuoted(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// EncodeParamValue renders a ParamValue back to wire form.
func EncodeParamValue(pv ParamValue, opts ParamValueOptions) string {
	var b strings.Builder
	b.WriteString(pv.Value)
	for _, p := range pv.Params {
		b.WriteByte(' ')
		b.WriteByte(opts.ParamDelimiter)
		b.WriteByte(' ')
		b.WriteString(p.Name)
		if p.Value != "" || !opts.AllowFlagParameter {
			b.WriteByte(opts.ParamValueDelim)
			if opts.AllowQuotedValue && needsQuoting(p.Value) {
				b.WriteByte('"')
				b.WriteString(strings.ReplaceAll(p.Value, `"`, `\"`))
				b.WriteByte('"')
			} else {
				b.WriteString(p.Value)
			}
		}
	}
	return b.String()
}

func needsQuoting(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if !isTokenChar(v[i]) {
			return true
		}
	}
	return false
}
