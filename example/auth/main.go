// Command auth serves a calculator whose methods require login. Users
// live in a YAML file; sessions ride an encrypted cookie, so a login
// survives across requests without server-side state.
//
// Configuration comes from the environment, or a .env file:
//
//	RPCSERVE_COOKIE_KEY   cookie encryption key, 64 hex chars (required)
//	RPCSERVE_USER_FILE    path to the user file (default users.yaml)
//	RPCSERVE_CORS_ORIGIN  Access-Control-Allow-Origin value (optional)
//	RPCSERVE_ADDR         listen address (default :8080)
//
// The user file is a YAML list; hashes are bcrypt, for example from
// `htpasswd -bnBC 10 "" hunter2 | tr -d ':\n'`:
//
//	- username: fred
//	  password_hash: "$2y$10$..."
//	  staff: true
//	  permissions: [calc.use]
//
// Log in once with system.login and the session cookie carries the
// authentication, or send HTTP Basic credentials on each request:
//
//	{"id": 1, "method": "system.login", "params": ["fred", "hunter2"]}
package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/auth"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
	"github.com/mnehpets/rpcserve/rpchttp"
)

func whoami(ctx context.Context, params []any) (any, error) {
	sess, ok := jsonrpc.SessionFromContext(ctx)
	if !ok {
		return "", nil
	}
	username, _ := sess.Username()
	return username, nil
}

func add(ctx context.Context, params []any) (any, error) {
	if len(params) != 2 {
		return nil, jsonrpc.NewError(jsonrpc.KindBadParams, "calc.add takes exactly two parameters")
	}
	a, aOK := params[0].(float64)
	b, bOK := params[1].(float64)
	if !aOK || !bOK {
		return nil, jsonrpc.NewError(jsonrpc.KindBadParams, "calc.add takes numbers")
	}
	return a + b, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	keyHex := os.Getenv("RPCSERVE_COOKIE_KEY")
	if keyHex == "" {
		log.Fatal("RPCSERVE_COOKIE_KEY must be set (64 hex characters)")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != middleware.KeySize {
		log.Fatalf("RPCSERVE_COOKIE_KEY must be %d hex characters", middleware.KeySize*2)
	}

	userFile := os.Getenv("RPCSERVE_USER_FILE")
	if userFile == "" {
		userFile = "users.yaml"
	}
	users, err := auth.LoadUsers(userFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Loaded %d users from %s", users.Len(), userFile)

	// Allow non-https cookies, for http://localhost:8080.
	sessions, err := middleware.NewSessionProcessor(
		"key1",
		map[string][]byte{"key1": key},
		middleware.WithCookieOptions(middleware.WithSecure(false)),
	)
	if err != nil {
		log.Fatal(err)
	}

	d := jsonrpc.NewDispatcher(
		jsonrpc.WithServiceURL("/rpc"),
		jsonrpc.WithAuthMethods(users),
	)

	register := func(fn jsonrpc.HandlerFunc, opts jsonrpc.Options) {
		if err := d.Register(fn, opts); err != nil {
			log.Fatal(err)
		}
	}

	register(whoami, jsonrpc.Options{
		Name:      "whoami",
		Signature: []jsonrpc.Type{jsonrpc.TypeString},
		Help:      "Reports the logged-in username, empty when anonymous",
	})

	register(add, jsonrpc.Options{
		Name:         "calc.add",
		Params:       []string{"a", "b"},
		Signature:    []jsonrpc.Type{jsonrpc.TypeDouble, jsonrpc.TypeDouble, jsonrpc.TypeDouble},
		Help:         "Adds two numbers, for users holding calc.use",
		Permission:   "calc.use",
		Authenticate: auth.Basic(users),
		Authorize:    auth.PermissionsRequired("calc.use"),
	})

	register(func(ctx context.Context, params []any) (any, error) {
		return users.Len(), nil
	}, jsonrpc.Options{
		Name:          "admin.usercount",
		Signature:     []jsonrpc.Type{jsonrpc.TypeInt},
		Help:          "Reports how many users are registered, staff only",
		LoginRequired: true,
		Authenticate:  auth.Basic(users),
		Authorize:     auth.StaffRequired(),
	})

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	handler := rpchttp.NewHandler(d,
		rpchttp.WithLogger(logger),
		rpchttp.WithProcessors(sessions),
		rpchttp.WithServiceName("auth example"),
		rpchttp.WithCORS(rpchttp.CORSConfig{
			AllowOrigin:      os.Getenv("RPCSERVE_CORS_ORIGIN"),
			AllowCredentials: true,
		}),
	)

	addr := os.Getenv("RPCSERVE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	http.Handle("/rpc", handler)
	log.Println("Listening on " + addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
