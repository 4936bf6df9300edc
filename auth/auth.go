// Package auth provides authentication and authorization hooks for
// jsonrpc methods, plus the credential verifiers they delegate to.
//
// Hooks are plain jsonrpc.AuthenticateFunc and jsonrpc.AuthorizeFunc
// values. Attach them per method through jsonrpc.Options, or share one
// hook across every registration that needs it:
//
//	users, _ := auth.LoadUsers("users.yaml")
//	d.Register(reboot, jsonrpc.Options{
//		Name:         "host.reboot",
//		Authenticate: auth.Basic(users),
//		Authorize:    auth.StaffRequired(),
//	})
//
// The hooks read credentials from the request context; the HTTP layer
// attaches the Authorization header there before dispatching.
package auth

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// IdentityStore is an optional interface an Authenticator may implement
// to resolve the identity behind an established session login, where no
// credentials are available to verify.
type IdentityStore interface {
	// Identity resolves a username without checking credentials. It
	// reports false for unknown and disabled accounts.
	Identity(username string) (jsonrpc.Identity, bool)
}

// Basic returns an authentication hook that verifies HTTP Basic
// credentials against a.
//
// An already authenticated request passes through without touching the
// header: either an identity attached by an earlier hook, or a session
// logged in by a previous call. For session pass-through the identity
// is resolved through a when it implements IdentityStore, falling back
// to a bare username identity.
//
// On success the verified identity is attached to the returned context
// and the request's session, when present, is logged in.
func Basic(a jsonrpc.Authenticator) jsonrpc.AuthenticateFunc {
	return func(ctx context.Context) (context.Context, error) {
		if _, ok := jsonrpc.IdentityFromContext(ctx); ok {
			return ctx, nil
		}
		if sess, ok := jsonrpc.SessionFromContext(ctx); ok {
			if username, loggedIn := sess.Username(); loggedIn {
				return jsonrpc.WithIdentity(ctx, lookupIdentity(a, username)), nil
			}
		}

		header, ok := jsonrpc.AuthorizationFromContext(ctx)
		if !ok {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Authentication required")
		}

		fields := strings.Fields(header)
		if len(fields) != 2 {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong HTTP_AUTHORIZATION header")
		}
		if !strings.EqualFold(fields[0], "basic") {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "We support only basic http auth")
		}

		decoded, err := base64.StdEncoding.DecodeString(fields[1])
		if err != nil {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong HTTP_AUTHORIZATION header")
		}
		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong HTTP_AUTHORIZATION header")
		}

		identity, err := a.Authenticate(ctx, username, password)
		if err != nil {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong user.")
		}

		if sess, ok := jsonrpc.SessionFromContext(ctx); ok {
			if err := sess.Login(identity.Username); err != nil {
				return ctx, err
			}
		}
		return jsonrpc.WithIdentity(ctx, identity), nil
	}
}

func lookupIdentity(a jsonrpc.Authenticator, username string) jsonrpc.Identity {
	if store, ok := a.(IdentityStore); ok {
		if identity, ok := store.Identity(username); ok {
			return identity
		}
	}
	return jsonrpc.Identity{Username: username}
}

// StaffRequired returns an authorization hook that admits only staff
// identities. It inspects the context identity, so it must run after an
// authentication hook such as Basic or Bearer.
func StaffRequired() jsonrpc.AuthorizeFunc {
	return func(ctx context.Context) error {
		identity, ok := jsonrpc.IdentityFromContext(ctx)
		if !ok {
			return jsonrpc.NewError(jsonrpc.KindAuth, "User not authenticated")
		}
		if !identity.Staff {
			return jsonrpc.NewError(jsonrpc.KindAuth, "User does not have permissions")
		}
		return nil
	}
}

// PermissionsRequired returns an authorization hook that admits only
// identities holding every named permission. Like StaffRequired it
// relies on an authentication hook having attached the identity.
func PermissionsRequired(perms ...string) jsonrpc.AuthorizeFunc {
	return func(ctx context.Context) error {
		identity, ok := jsonrpc.IdentityFromContext(ctx)
		if !ok {
			return jsonrpc.NewError(jsonrpc.KindAuth, "User not authenticated")
		}
		for _, perm := range perms {
			if !identity.HasPermission(perm) {
				return jsonrpc.NewError(jsonrpc.KindAuth, "User does not have permissions")
			}
		}
		return nil
	}
}
