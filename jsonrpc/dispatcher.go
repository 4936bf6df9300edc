package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
)

// MarshalFunc encodes a response envelope. UnmarshalFunc decodes a raw
// request body. Hosts swap them together to change the JSON codec, for
// example to encode domain types the default codec does not know.
type MarshalFunc func(v any) ([]byte, error)

// UnmarshalFunc decodes a raw request body.
type UnmarshalFunc func(data []byte, v any) error

// DefaultMarshal encodes with four-space indentation, no trailing
// newline, and HTML escaping disabled. This is the wire format clients
// of the service expect.
func DefaultMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DefaultUnmarshal decodes with encoding/json.
func DefaultUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Dispatcher decodes JSON-RPC 1.0 requests, routes them through its
// registry, and encodes response envelopes. Build one at startup with
// NewDispatcher, register the host methods, and hand request bodies to
// Dispatch.
type Dispatcher struct {
	registry  *Registry
	url       string
	marshal   MarshalFunc
	unmarshal UnmarshalFunc

	noIntrospection bool
	authenticator   Authenticator
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithServiceURL sets the URL system.describe reports.
func WithServiceURL(url string) Option {
	return func(d *Dispatcher) { d.url = url }
}

// WithMarshalUnmarshal replaces the JSON codec. The marshal function
// must cope with arbitrary result values; when it cannot, dispatch
// falls back to the degraded error envelope.
func WithMarshalUnmarshal(marshal MarshalFunc, unmarshal UnmarshalFunc) Option {
	return func(d *Dispatcher) {
		d.marshal = marshal
		d.unmarshal = unmarshal
	}
}

// WithoutIntrospection suppresses the built-in system.* introspection
// methods.
func WithoutIntrospection() Option {
	return func(d *Dispatcher) { d.noIntrospection = true }
}

// WithAuthMethods registers system.login and system.logout backed by a.
// Without this option the two methods do not exist.
func WithAuthMethods(a Authenticator) Option {
	return func(d *Dispatcher) { d.authenticator = a }
}

// NewDispatcher builds a dispatcher. The introspection methods are
// registered first, before any host method, so they cannot be shadowed.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  NewRegistry(),
		marshal:   DefaultMarshal,
		unmarshal: DefaultUnmarshal,
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.noIntrospection {
		d.registerIntrospection()
	}
	if d.authenticator != nil {
		d.registerAuthMethods()
	}
	return d
}

// Register adds a host method. A name already registered, the built-in
// system methods included, is silently kept as is; the first wins.
func (d *Dispatcher) Register(fn HandlerFunc, opts Options) error {
	return d.registry.Register(fn, opts)
}

// Registry exposes the method table for introspection and the method
// summary page.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ServiceURL returns the URL system.describe reports.
func (d *Dispatcher) ServiceURL() string {
	return d.url
}

// Dispatch handles one encoded request and always returns an encoded
// response envelope; every failure mode has an error envelope, and the
// request id is echoed back as soon as it could be extracted.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) string {
	id, result, err := d.call(ctx, body)
	if err != nil {
		return d.encodeError(id, AsError(err))
	}
	return d.encodeResult(id, result)
}

// EncodeError builds an error envelope outside the dispatch pipeline,
// for failures the host hits before a request id is known, such as a
// wrong content type or a rejected authentication hook. The id is
// reported as the empty string.
func (d *Dispatcher) EncodeError(err error) string {
	return d.encodeError("", AsError(err))
}

// call runs the decode, validate, route and invoke steps. The returned
// id is whatever could be extracted by the time of a failure, starting
// at the empty string.
func (d *Dispatcher) call(ctx context.Context, body []byte) (id, result any, err error) {
	id = ""

	if len(body) == 0 {
		return id, nil, NewError(KindBadData, "No POST data")
	}

	var root any
	if err := d.unmarshal(body, &root); err != nil {
		return id, nil, NewError(KindBadData, "JSON decoding error")
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return id, nil, NewError(KindBadData, "JSON does not contain dict as its root object")
	}

	// The id is echoed in every later failure, an explicit null
	// included. Only a missing key leaves it empty.
	if v, present := obj["id"]; present {
		id = v
	}

	methodVal, hasMethod := obj["method"]
	paramsVal, hasParams := obj["params"]
	if !hasMethod || !hasParams {
		return id, nil, NewError(KindBadData, "JSON must contain attributes method and params")
	}

	name, ok := methodVal.(string)
	if !ok {
		return id, nil, NewError(KindBadMethod, "JSON Wrong parameter method")
	}

	params, ok := paramsVal.([]any)
	if !ok {
		return id, nil, NewError(KindBadMethod, "JSON method params has to be Array")
	}

	method, ok := d.registry.Lookup(name)
	if !ok {
		return id, nil, NewError(KindBadMethod, "Called method "+name+" does not exist in this api, see system.listMethods")
	}

	result, err = method.Call(ctx, params)
	return id, result, err
}

// response is the JSON-RPC 1.0 envelope. All three members are always
// present; a nil result on success is legal.
type response struct {
	ID     any            `json:"id"`
	Result any            `json:"result"`
	Error  *responseError `json:"error"`
}

type responseError struct {
	Name      string `json:"name"`
	Exception string `json:"exception"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

const errorName = "JSONRPCError"

func newResponseError(e *Error) *responseError {
	code := e.Code
	if code == 0 {
		code = e.Kind.Code()
	}
	return &responseError{
		Name:      errorName,
		Exception: e.Kind.String(),
		Code:      code,
		Message:   e.Message,
	}
}

func (d *Dispatcher) encodeResult(id, result any) string {
	out, err := d.marshal(response{ID: id, Result: result})
	if err != nil {
		return d.encodeDegraded(id)
	}
	return string(out)
}

func (d *Dispatcher) encodeError(id any, e *Error) string {
	out, err := d.marshal(response{ID: id, Error: newResponseError(e)})
	if err != nil {
		return d.encodeDegraded(id)
	}
	return string(out)
}

// encodeDegraded produces the fixed fallback envelope for values the
// codec cannot encode. The configured codec gets the first try so the
// host keeps its formatting; the default codec is the backstop, and
// the id degrades to "" if even that cannot encode it.
func (d *Dispatcher) encodeDegraded(id any) string {
	resp := response{
		ID: id,
		Error: &responseError{
			Name:      errorName,
			Exception: KindRPC.String(),
			Code:      KindRPC.Code(),
			Message:   "Failed to encode return value",
		},
	}
	if out, err := d.marshal(resp); err == nil {
		return string(out)
	}
	if out, err := DefaultMarshal(resp); err == nil {
		return string(out)
	}
	resp.ID = ""
	out, _ := DefaultMarshal(resp)
	return string(out)
}
