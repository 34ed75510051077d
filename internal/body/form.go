package body

import (
	"context"
	"net/url"

	"github.com/gorilla/schema"
)

// FormParam is one decoded (name, value) pair of a url-encoded body or
// query string, per spec.md §4.3.
type FormParam struct {
	Name  string
	Value string
}

// Form is the lazy url-encoded-form view over an Inbound: a sequence of
// parameters plus the collectMap() convenience named in spec.md §4.3.
// schemaDecoder is shared across Forms the way *gorilla/schema.Decoder
// instances are meant to be reused (it caches reflection metadata).
type Form struct {
	inbound *Inbound
}

var schemaDecoder = schema.NewDecoder()

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
}

// NewForm wraps an Inbound as a Form view. The caller must not also
// Subscribe directly to the same Inbound.
func NewForm(in *Inbound) *Form { return &Form{inbound: in} }

// Params drains the whole body and parses it as application/x-www-form-urlencoded,
// returning the parameter sequence. Values of one name keep their order;
// the order across different names is not defined.
func (f *Form) Params(ctx context.Context) ([]FormParam, error) {
	raw, err := drain(ctx, f.inbound)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}
	out := make([]FormParam, 0, len(values))
	for k, vs := range values {
		for _, v := range vs {
			out = append(out, FormParam{Name: k, Value: v})
		}
	}
	return out, nil
}

// CollectMap is spec.md §4.3's collectMap() convenience: the decoded
// parameters as a net/url.Values map.
func (f *Form) CollectMap(ctx context.Context) (url.Values, error) {
	raw, err := drain(ctx, f.inbound)
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(string(raw))
}

// Bind decodes the form (or a query string, via BindQuery) onto dst, a
// pointer to a struct tagged with `schema:"name"`, using gorilla/schema -
// the typed generalisation of collectMap() called out in SPEC_FULL.md §4.3.
func (f *Form) Bind(ctx context.Context, dst any) error {
	values, err := f.CollectMap(ctx)
	if err != nil {
		return err
	}
	return schemaDecoder.Decode(dst, values)
}

// BindQuery decodes already-parsed query values (e.g. from a request URL,
// which never flows through the body stream) onto dst.
func BindQuery(values url.Values, dst any) error {
	return schemaDecoder.Decode(dst, values)
}

func drain(ctx context.Context, in *Inbound) ([]byte, error) {
	ch, err := in.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	var buf []byte
	for c := range ch {
		if c.Err != nil {
			return nil, c.Err
		}
		buf = append(buf, c.Data...)
	}
	return buf, nil
}
