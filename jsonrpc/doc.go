// Package jsonrpc implements a JSON-RPC 1.0 dispatcher for embedding in
// a web application.
//
// This package implements the JSON-RPC 1.0 specification
// (https://www.jsonrpc.org/specification_v1) in its classic
// single-request form: one JSON object in, one JSON object out, with
// id, result and error members always present. Transport, sessions and
// authentication live in the rpchttp, middleware and auth packages; the
// dispatcher itself only turns a raw request body into a response
// string.
//
// # Basic Usage
//
// Create a dispatcher, register methods, and dispatch raw bodies:
//
//	d := jsonrpc.NewDispatcher(jsonrpc.WithServiceURL("/RPC2"))
//	d.Register(add, jsonrpc.Options{
//	    Name:      "calc.add",
//	    Params:    []string{"a", "b"},
//	    Signature: []jsonrpc.Type{jsonrpc.TypeInt, jsonrpc.TypeInt, jsonrpc.TypeInt},
//	    Help:      "Adds two integers",
//	})
//	resp := d.Dispatch(ctx, []byte(`{"id": 1, "method": "calc.add", "params": [2, 3]}`))
//
// Handlers receive the decoded params positionally:
//
//	func add(ctx context.Context, params []any) (any, error) {
//	    a, aok := params[0].(float64)
//	    b, bok := params[1].(float64)
//	    if !aok || !bok {
//	        return nil, jsonrpc.NewError(jsonrpc.KindBadParams, "add takes two numbers")
//	    }
//	    return a + b, nil
//	}
//
// # Error Handling
//
// Handlers return *Error values for failures that should keep their
// kind and code on the wire; any other error is reported as
// UnknownProcessingError with the original type and message. Dispatch
// never fails: malformed requests, handler errors, handler panics and
// unencodable results all come back as error envelopes.
//
// # Introspection
//
// The system.listMethods, system.methodHelp, system.methodSignature and
// system.describe methods are registered by default and describe the
// host's methods from their registration metadata. Suppress them with
// WithoutIntrospection.
//
// # Login and Logout
//
// WithAuthMethods registers system.login and system.logout backed by an
// Authenticator. Both report success as a boolean result, never as an
// error. They act on the Session attached to the request context;
// without one they report false.
//
// # Concurrency
//
// A Dispatcher is safe for concurrent Dispatch calls once registration
// is finished. Registration itself is not synchronized.
package jsonrpc
