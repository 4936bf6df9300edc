// Command calculator serves a small arithmetic API over JSON-RPC.
//
// Try it:
//
//	curl -X POST -H 'Content-Type: application/json' \
//	    -d '{"id": 1, "method": "calc.add", "params": [2, 3]}' \
//	    http://localhost:8080/rpc
//
// or open http://localhost:8080/rpc in a browser for the method summary
// page and its test form.
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/rpchttp"
)

func twoNumbers(name string, params []any) (float64, float64, error) {
	if len(params) != 2 {
		return 0, 0, jsonrpc.NewError(jsonrpc.KindBadParams, name+" takes exactly two parameters")
	}
	a, aOK := params[0].(float64)
	b, bOK := params[1].(float64)
	if !aOK || !bOK {
		return 0, 0, jsonrpc.NewError(jsonrpc.KindBadParams, name+" takes numbers")
	}
	return a, b, nil
}

func add(ctx context.Context, params []any) (any, error) {
	a, b, err := twoNumbers("calc.add", params)
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

func subtract(ctx context.Context, params []any) (any, error) {
	a, b, err := twoNumbers("calc.subtract", params)
	if err != nil {
		return nil, err
	}
	return a - b, nil
}

func multiply(ctx context.Context, params []any) (any, error) {
	a, b, err := twoNumbers("calc.multiply", params)
	if err != nil {
		return nil, err
	}
	return a * b, nil
}

func divide(ctx context.Context, params []any) (any, error) {
	a, b, err := twoNumbers("calc.divide", params)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		// Custom processing code clients can match on.
		return nil, &jsonrpc.Error{Kind: jsonrpc.KindProcessing, Code: 250, Message: "division by zero"}
	}
	return a / b, nil
}

func main() {
	d := jsonrpc.NewDispatcher(jsonrpc.WithServiceURL("/rpc"))

	numbers := []jsonrpc.Type{jsonrpc.TypeDouble, jsonrpc.TypeDouble, jsonrpc.TypeDouble}
	register := func(fn jsonrpc.HandlerFunc, name, help string) {
		err := d.Register(fn, jsonrpc.Options{
			Name:      name,
			Params:    []string{"a", "b"},
			Signature: numbers,
			Help:      help,
		})
		if err != nil {
			log.Fatal(err)
		}
	}
	register(add, "calc.add", "Adds two numbers")
	register(subtract, "calc.subtract", "Subtracts b from a")
	register(multiply, "calc.multiply", "Multiplies two numbers")
	register(divide, "calc.divide", "Divides a by b")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	handler := rpchttp.NewHandler(d,
		rpchttp.WithLogger(logger),
		rpchttp.WithServiceName("calculator"),
	)

	http.Handle("/rpc", handler)
	log.Println("Starting server on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}
