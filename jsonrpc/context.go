package jsonrpc

import "context"

// Session is the login-state collaborator behind system.login and
// system.logout. The middleware package provides a cookie-backed
// implementation; hosts may attach their own.
type Session interface {
	// Username reports the logged-in user, if any.
	Username() (string, bool)
	// Login marks the session as authenticated for username.
	Login(username string) error
	// Logout clears the authenticated state.
	Logout() error
}

// Authenticator verifies credentials for system.login and the basic
// authentication hook.
type Authenticator interface {
	// Authenticate checks the credentials and returns the matching
	// identity. Unknown users, wrong passwords and disabled accounts
	// all return an error.
	Authenticate(ctx context.Context, username, password string) (Identity, error)
}

// Identity describes an authenticated caller.
type Identity struct {
	Username    string
	Staff       bool
	Permissions []string
}

// HasPermission reports whether the identity holds perm.
func (id Identity) HasPermission(perm string) bool {
	for _, p := range id.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type sessionContextKey struct{}

type identityContextKey struct{}

type authorizationContextKey struct{}

// WithSession returns a context carrying s. The HTTP layer attaches the
// request's session before dispatching.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached to ctx.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}

// WithIdentity returns a context carrying the authenticated caller.
// Authentication hooks attach it for authorization hooks and handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// WithAuthorization attaches the raw Authorization header value so
// authentication hooks can inspect credentials without seeing the
// transport.
func WithAuthorization(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, authorizationContextKey{}, header)
}

// AuthorizationFromContext returns the Authorization header value
// attached to ctx. The second return is false when none was attached
// or the value is empty.
func AuthorizationFromContext(ctx context.Context) (string, bool) {
	header, ok := ctx.Value(authorizationContextKey{}).(string)
	if !ok || header == "" {
		return "", false
	}
	return header, true
}
