package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Type is a declared parameter or return type tag, using the XML-RPC
// introspection vocabulary. Tags are descriptive only; dispatch never
// converts or validates values against them.
type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeInt     Type = "int"
	TypeBoolean Type = "boolean"
	TypeDouble  Type = "double"
	TypeArray   Type = "array"
	TypeStruct  Type = "struct"
	TypeBase64  Type = "base64"
	TypeDate    Type = "dateTime.iso8601"
	TypeNil     Type = "nil"
)

// HandlerFunc is the callable behind a registered method. Params arrive
// positionally as decoded JSON values. The context is the out-of-band
// side channel carrying request state such as the session; handlers may
// ignore it.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

// AuthenticateFunc runs before dispatch for a method that requires it.
// It may return a derived context carrying the authenticated identity.
// A returned error stops the call before the handler runs.
type AuthenticateFunc func(ctx context.Context) (context.Context, error)

// AuthorizeFunc runs after authentication and before dispatch. A
// returned error stops the call before the handler runs.
type AuthorizeFunc func(ctx context.Context) error

// Options carries the registration-time metadata for a method. Name is
// required; everything else is optional.
type Options struct {
	// Name is the external name clients call the method by.
	Name string

	// Params names the formal parameters in call order.
	Params []string

	// Signature declares the return type followed by one type per
	// parameter. A signature of any other length is discarded and the
	// default all-object signature applies.
	Signature []Type

	// Help is shown by system.methodHelp and the method summary page.
	Help string

	// LoginRequired marks the method as callable only with a logged-in
	// session. Setting Permission implies it.
	LoginRequired bool

	// Permission names a permission the caller must hold.
	Permission string

	// Authenticate, when set, runs before the method is dispatched and
	// may replace the request context.
	Authenticate AuthenticateFunc

	// Authorize, when set, runs after Authenticate and before dispatch.
	Authorize AuthorizeFunc
}

// Method is an immutable descriptor binding a handler to its metadata.
// After construction the signature always has exactly one more entry
// than the parameter list.
type Method struct {
	handler       HandlerFunc
	name          string
	help          string
	params        []string
	signature     []Type
	loginRequired bool
	permission    string
	authenticate  AuthenticateFunc
	authorize     AuthorizeFunc
}

// NewMethod derives a descriptor from fn and opts.
func NewMethod(fn HandlerFunc, opts Options) (*Method, error) {
	if fn == nil {
		return nil, errors.New("jsonrpc: nil handler")
	}
	if opts.Name == "" {
		return nil, errors.New("jsonrpc: method name required")
	}

	m := &Method{
		handler:       fn,
		name:          opts.Name,
		help:          opts.Help,
		params:        append([]string(nil), opts.Params...),
		loginRequired: opts.LoginRequired || opts.Permission != "",
		permission:    opts.Permission,
		authenticate:  opts.Authenticate,
		authorize:     opts.Authorize,
	}

	// A usable signature covers the return value and every parameter.
	// Anything else is ignored in favor of the default.
	if len(opts.Signature) == len(m.params)+1 {
		m.signature = append([]Type(nil), opts.Signature...)
	} else {
		m.signature = make([]Type, len(m.params)+1)
		for i := range m.signature {
			m.signature[i] = TypeObject
		}
	}

	return m, nil
}

// Name returns the external method name.
func (m *Method) Name() string { return m.name }

// Help returns the method summary.
func (m *Method) Help() string { return m.help }

// LoginRequired reports whether the method requires a logged-in session.
func (m *Method) LoginRequired() bool { return m.loginRequired }

// Permission returns the required permission, or "".
func (m *Method) Permission() string { return m.permission }

// Authenticate returns the method's authentication hook, or nil.
func (m *Method) Authenticate() AuthenticateFunc { return m.authenticate }

// Authorize returns the method's authorization hook, or nil.
func (m *Method) Authorize() AuthorizeFunc { return m.authorize }

// Param describes one formal parameter for introspection. The field
// names match the describe wire format.
type Param struct {
	Name    string `json:"name"`
	RPCType Type   `json:"rpctype"`
}

// Params pairs the parameter names with their declared types.
func (m *Method) Params() []Param {
	out := make([]Param, len(m.params))
	for i, name := range m.params {
		out[i] = Param{Name: name, RPCType: m.signature[i+1]}
	}
	return out
}

// ReturnType returns the declared return type.
func (m *Method) ReturnType() Type {
	if len(m.signature) == 0 {
		return TypeObject
	}
	return m.signature[0]
}

// Signature returns a copy of the full signature, return type first.
func (m *Method) Signature() []Type {
	return append([]Type(nil), m.signature...)
}

// Stub renders a request template for the method, used by the method
// summary page as a starting point for test calls.
func (m *Method) Stub() string {
	quoted := make([]string, len(m.params))
	for i, name := range m.params {
		quoted[i] = `"` + name + `"`
	}
	lines := []string{
		"{",
		`"id": "rpcserve",`,
		`"method": "` + m.name + `",`,
		`"params": [`,
		"   " + strings.Join(quoted, ","),
		"]",
		"}",
	}
	return strings.Join(lines, "\n")
}

// Call invokes the handler with the decoded params and the out-of-band
// context. A panicking handler is contained and reported like any other
// failure outside the taxonomy.
func (m *Method) Call(ctx context.Context, params []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewError(KindUnknown, fmt.Sprintf("panic: %v", r))
		}
	}()
	return m.handler(ctx, params)
}
