package jsonrpc

import (
	"context"
	"fmt"
)

// ServiceType identifies this dispatcher in system.describe output.
const ServiceType = "rpcserve JSONRPC"

// ServiceDescription is the system.describe payload.
type ServiceDescription struct {
	ServiceType string              `json:"serviceType"`
	ServiceURL  string              `json:"serviceURL"`
	Methods     []MethodDescription `json:"methods"`
}

// MethodDescription summarizes one registered method.
type MethodDescription struct {
	Name    string  `json:"name"`
	Summary string  `json:"summary"`
	Params  []Param `json:"params"`
	Return  Type    `json:"return"`
}

func (d *Dispatcher) registerIntrospection() {
	d.mustRegister(d.systemListMethods, Options{
		Name:      "system.listMethods",
		Signature: []Type{TypeArray},
		Help:      "Returns a list of supported methods",
	})
	d.mustRegister(d.systemMethodHelp, Options{
		Name:      "system.methodHelp",
		Params:    []string{"method_name"},
		Signature: []Type{TypeString, TypeString},
		Help:      "Returns documentation for a specified method",
	})
	d.mustRegister(d.systemMethodSignature, Options{
		Name:      "system.methodSignature",
		Params:    []string{"method_name"},
		Signature: []Type{TypeArray, TypeString},
		Help:      "Returns the signature for a specified method",
	})
	d.mustRegister(d.systemDescribe, Options{
		Name:      "system.describe",
		Signature: []Type{TypeStruct},
		Help:      "Returns a simple method description of the methods supported",
	})
}

func (d *Dispatcher) registerAuthMethods() {
	d.mustRegister(d.systemLogin, Options{
		Name:      "system.login",
		Params:    []string{"username", "password"},
		Signature: []Type{TypeBoolean, TypeString, TypeString},
		Help:      "Authorizes a user to enable sending protected RPC requests",
	})
	d.mustRegister(d.systemLogout, Options{
		Name:      "system.logout",
		Signature: []Type{TypeBoolean},
		Help:      "Deauthorizes a user",
	})
}

// mustRegister is for the built-ins, whose registration can only fail
// through a programming error in this package.
func (d *Dispatcher) mustRegister(fn HandlerFunc, opts Options) {
	if err := d.registry.Register(fn, opts); err != nil {
		panic("jsonrpc: " + err.Error())
	}
}

func (d *Dispatcher) systemListMethods(ctx context.Context, params []any) (any, error) {
	return d.registry.Names(), nil
}

func (d *Dispatcher) systemMethodHelp(ctx context.Context, params []any) (any, error) {
	name, err := methodNameParam("system.methodHelp", params)
	if err != nil {
		return nil, err
	}
	m, ok := d.registry.Lookup(name)
	if !ok {
		return nil, NewError(KindBadMethod, "Method "+name+" not registered here")
	}
	return m.Help(), nil
}

func (d *Dispatcher) systemMethodSignature(ctx context.Context, params []any) (any, error) {
	name, err := methodNameParam("system.methodSignature", params)
	if err != nil {
		return nil, err
	}
	m, ok := d.registry.Lookup(name)
	if !ok {
		return nil, NewError(KindBadMethod, "Method "+name+" not registered here")
	}
	return m.Signature(), nil
}

func (d *Dispatcher) systemDescribe(ctx context.Context, params []any) (any, error) {
	methods := d.registry.Methods()
	descriptions := make([]MethodDescription, len(methods))
	for i, m := range methods {
		descriptions[i] = MethodDescription{
			Name:    m.Name(),
			Summary: m.Help(),
			Params:  m.Params(),
			Return:  m.ReturnType(),
		}
	}
	return ServiceDescription{
		ServiceType: ServiceType,
		ServiceURL:  d.url,
		Methods:     descriptions,
	}, nil
}

// systemLogin reports success as a boolean, never as an error: rejected
// credentials, malformed params and a missing session all come back as
// false.
func (d *Dispatcher) systemLogin(ctx context.Context, params []any) (any, error) {
	if len(params) != 2 {
		return false, nil
	}
	username, uok := params[0].(string)
	password, pok := params[1].(string)
	if !uok || !pok {
		return false, nil
	}

	session, ok := SessionFromContext(ctx)
	if !ok {
		return false, nil
	}

	identity, err := d.authenticator.Authenticate(ctx, username, password)
	if err != nil {
		return false, nil
	}
	if err := session.Login(identity.Username); err != nil {
		return false, nil
	}
	return true, nil
}

// systemLogout succeeds whenever a session is present, logged in or not.
func (d *Dispatcher) systemLogout(ctx context.Context, params []any) (any, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return false, nil
	}
	if err := session.Logout(); err != nil {
		return false, nil
	}
	return true, nil
}

func methodNameParam(method string, params []any) (string, error) {
	if len(params) != 1 {
		return "", NewError(KindBadParams, method+" takes exactly one parameter")
	}
	name, ok := params[0].(string)
	if !ok {
		return "", NewError(KindBadMethod, fmt.Sprintf("Method %v not registered here", params[0]))
	}
	return name, nil
}
