package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// Bearer returns an authentication hook that verifies an OIDC bearer
// token from the Authorization header. The identity is drawn from the
// token claims: preferred_username, falling back to email and then the
// subject, with the roles claim mapped to permissions.
//
// Bearer never touches the session; tokens are per-request credentials.
// An already attached identity passes through untouched.
func Bearer(v *oidc.IDTokenVerifier) jsonrpc.AuthenticateFunc {
	return func(ctx context.Context) (context.Context, error) {
		if _, ok := jsonrpc.IdentityFromContext(ctx); ok {
			return ctx, nil
		}

		header, ok := jsonrpc.AuthorizationFromContext(ctx)
		if !ok {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Authentication required")
		}

		fields := strings.Fields(header)
		if len(fields) != 2 {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong HTTP_AUTHORIZATION header")
		}
		if !strings.EqualFold(fields[0], "bearer") {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "We support only bearer http auth")
		}

		token, err := v.Verify(ctx, fields[1])
		if err != nil {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong token.")
		}

		identity, err := identityFromToken(token)
		if err != nil {
			return ctx, jsonrpc.NewError(jsonrpc.KindAuth, "Wrong token.")
		}
		return jsonrpc.WithIdentity(ctx, identity), nil
	}
}

func identityFromToken(token *oidc.IDToken) (jsonrpc.Identity, error) {
	var claims struct {
		Email             string   `json:"email"`
		PreferredUsername string   `json:"preferred_username"`
		Roles             []string `json:"roles"`
	}
	if err := token.Claims(&claims); err != nil {
		return jsonrpc.Identity{}, err
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = token.Subject
	}
	return jsonrpc.Identity{Username: username, Permissions: claims.Roles}, nil
}

// NewVerifier builds an ID-token verifier by OIDC discovery against
// issuer. For providers without a discovery document, construct the
// verifier directly with oidc.NewVerifier and a key set.
func NewVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider %q: %w", issuer, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// OAuth2PasswordAuthenticator verifies credentials by exchanging them
// for a token with the OAuth2 resource-owner-password grant, for hosts
// whose identity provider still exposes that grant. The grant carries
// no role information, so every accepted user receives the configured
// Staff flag and Permissions.
type OAuth2PasswordAuthenticator struct {
	Config      *oauth2.Config
	Staff       bool
	Permissions []string
}

var _ jsonrpc.Authenticator = (*OAuth2PasswordAuthenticator)(nil)

// Authenticate requests a token with the credentials. Any provider
// refusal reads as a failed login.
func (a *OAuth2PasswordAuthenticator) Authenticate(ctx context.Context, username, password string) (jsonrpc.Identity, error) {
	if _, err := a.Config.PasswordCredentialsToken(ctx, username, password); err != nil {
		return jsonrpc.Identity{}, fmt.Errorf("token request: %w", err)
	}
	return jsonrpc.Identity{
		Username:    username,
		Staff:       a.Staff,
		Permissions: append([]string(nil), a.Permissions...),
	}, nil
}
