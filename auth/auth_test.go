package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

type authFunc func(ctx context.Context, username, password string) (jsonrpc.Identity, error)

func (f authFunc) Authenticate(ctx context.Context, username, password string) (jsonrpc.Identity, error) {
	return f(ctx, username, password)
}

type mapAuth map[string]string

func (a mapAuth) Authenticate(ctx context.Context, username, password string) (jsonrpc.Identity, error) {
	if stored, ok := a[username]; !ok || stored != password {
		return jsonrpc.Identity{}, errors.New("bad credentials")
	}
	return jsonrpc.Identity{Username: username}, nil
}

type recordSession struct {
	username string
	loginErr error
}

var _ jsonrpc.Session = (*recordSession)(nil)

func (s *recordSession) Username() (string, bool) { return s.username, s.username != "" }

func (s *recordSession) Login(username string) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	s.username = username
	return nil
}

func (s *recordSession) Logout() error {
	s.username = ""
	return nil
}

func basicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func wantAuthError(t *testing.T, err error, message string) {
	t.Helper()
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *jsonrpc.Error", err)
	}
	if rpcErr.Kind != jsonrpc.KindAuth || rpcErr.Code != 403 {
		t.Errorf("kind/code = %v/%d, want AuthException/403", rpcErr.Kind, rpcErr.Code)
	}
	if rpcErr.Message != message {
		t.Errorf("message = %q, want %q", rpcErr.Message, message)
	}
}

func TestBasic_Failures(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
	}{
		{"missing header", "", "Authentication required"},
		{"scheme only", "Basic", "Wrong HTTP_AUTHORIZATION header"},
		{"three fields", "Basic a b", "Wrong HTTP_AUTHORIZATION header"},
		{"wrong scheme", "Digest abcdef", "We support only basic http auth"},
		{"bad base64", "Basic %%%", "Wrong HTTP_AUTHORIZATION header"},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon")), "Wrong HTTP_AUTHORIZATION header"},
		{"wrong password", basicHeader("fred", "wrong"), "Wrong user."},
		{"unknown user", basicHeader("nobody", "hunter2"), "Wrong user."},
	}

	hook := Basic(mapAuth{"fred": "hunter2"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.header != "" {
				ctx = jsonrpc.WithAuthorization(ctx, tt.header)
			}
			got, err := hook(ctx)
			wantAuthError(t, err, tt.want)
			if _, ok := jsonrpc.IdentityFromContext(got); ok {
				t.Error("failed authentication still attached an identity")
			}
		})
	}
}

func TestBasic_Success(t *testing.T) {
	hook := Basic(mapAuth{"fred": "hunter2"})
	ctx := jsonrpc.WithAuthorization(context.Background(), basicHeader("fred", "hunter2"))

	got, err := hook(ctx)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	identity, ok := jsonrpc.IdentityFromContext(got)
	if !ok {
		t.Fatal("no identity attached")
	}
	if identity.Username != "fred" {
		t.Errorf("Username = %q, want %q", identity.Username, "fred")
	}
}

func TestBasic_SchemeCaseInsensitive(t *testing.T) {
	hook := Basic(mapAuth{"fred": "hunter2"})
	header := "BASIC " + base64.StdEncoding.EncodeToString([]byte("fred:hunter2"))

	if _, err := hook(jsonrpc.WithAuthorization(context.Background(), header)); err != nil {
		t.Fatalf("hook: %v", err)
	}
}

func TestBasic_PasswordMayContainColons(t *testing.T) {
	hook := Basic(mapAuth{"fred": "hunt:er:2"})
	ctx := jsonrpc.WithAuthorization(context.Background(), basicHeader("fred", "hunt:er:2"))

	if _, err := hook(ctx); err != nil {
		t.Fatalf("hook: %v", err)
	}
}

func TestBasic_PassesThroughExistingIdentity(t *testing.T) {
	called := false
	hook := Basic(authFunc(func(ctx context.Context, username, password string) (jsonrpc.Identity, error) {
		called = true
		return jsonrpc.Identity{}, errors.New("should not be reached")
	}))

	ctx := jsonrpc.WithIdentity(context.Background(), jsonrpc.Identity{Username: "existing"})
	got, err := hook(ctx)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if called {
		t.Error("authenticator consulted despite existing identity")
	}
	identity, _ := jsonrpc.IdentityFromContext(got)
	if identity.Username != "existing" {
		t.Errorf("Username = %q, want %q", identity.Username, "existing")
	}
}

type fixedStore struct {
	mapAuth
	identities map[string]jsonrpc.Identity
}

func (s fixedStore) Identity(username string) (jsonrpc.Identity, bool) {
	identity, ok := s.identities[username]
	return identity, ok
}

func TestBasic_SessionLoginPassesThrough(t *testing.T) {
	hook := Basic(mapAuth{})
	ctx := jsonrpc.WithSession(context.Background(), &recordSession{username: "fred"})

	got, err := hook(ctx)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	identity, ok := jsonrpc.IdentityFromContext(got)
	if !ok || identity.Username != "fred" {
		t.Errorf("identity = (%+v, %v), want bare fred identity", identity, ok)
	}
}

func TestBasic_SessionLoginResolvesStoredIdentity(t *testing.T) {
	store := fixedStore{
		identities: map[string]jsonrpc.Identity{
			"fred": {Username: "fred", Staff: true, Permissions: []string{"calc.use"}},
		},
	}
	hook := Basic(store)
	ctx := jsonrpc.WithSession(context.Background(), &recordSession{username: "fred"})

	got, err := hook(ctx)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	identity, _ := jsonrpc.IdentityFromContext(got)
	if !identity.Staff || !identity.HasPermission("calc.use") {
		t.Errorf("identity = %+v, want stored staff identity", identity)
	}
}

func TestBasic_AnonymousSessionStillRequiresHeader(t *testing.T) {
	hook := Basic(mapAuth{"fred": "hunter2"})
	ctx := jsonrpc.WithSession(context.Background(), &recordSession{})

	_, err := hook(ctx)
	wantAuthError(t, err, "Authentication required")
}

func TestBasic_LogsSessionIn(t *testing.T) {
	hook := Basic(mapAuth{"fred": "hunter2"})
	sess := &recordSession{}
	ctx := jsonrpc.WithSession(context.Background(), sess)
	ctx = jsonrpc.WithAuthorization(ctx, basicHeader("fred", "hunter2"))

	if _, err := hook(ctx); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if name, ok := sess.Username(); !ok || name != "fred" {
		t.Errorf("session user = (%q, %v), want (fred, true)", name, ok)
	}
}

func TestBasic_SessionLoginFailure(t *testing.T) {
	hook := Basic(mapAuth{"fred": "hunter2"})
	backendErr := errors.New("session backend down")
	ctx := jsonrpc.WithSession(context.Background(), &recordSession{loginErr: backendErr})
	ctx = jsonrpc.WithAuthorization(ctx, basicHeader("fred", "hunter2"))

	if _, err := hook(ctx); !errors.Is(err, backendErr) {
		t.Fatalf("error = %v, want %v", err, backendErr)
	}
}

func TestStaffRequired(t *testing.T) {
	hook := StaffRequired()

	err := hook(context.Background())
	wantAuthError(t, err, "User not authenticated")

	ctx := jsonrpc.WithIdentity(context.Background(), jsonrpc.Identity{Username: "fred"})
	err = hook(ctx)
	wantAuthError(t, err, "User does not have permissions")

	ctx = jsonrpc.WithIdentity(context.Background(), jsonrpc.Identity{Username: "root", Staff: true})
	if err := hook(ctx); err != nil {
		t.Errorf("staff identity rejected: %v", err)
	}
}

func TestPermissionsRequired(t *testing.T) {
	hook := PermissionsRequired("calc.use", "calc.admin")

	err := hook(context.Background())
	wantAuthError(t, err, "User not authenticated")

	ctx := jsonrpc.WithIdentity(context.Background(), jsonrpc.Identity{
		Username:    "fred",
		Permissions: []string{"calc.use"},
	})
	err = hook(ctx)
	wantAuthError(t, err, "User does not have permissions")

	ctx = jsonrpc.WithIdentity(context.Background(), jsonrpc.Identity{
		Username:    "root",
		Permissions: []string{"calc.use", "calc.admin"},
	})
	if err := hook(ctx); err != nil {
		t.Errorf("identity with both permissions rejected: %v", err)
	}
}

func TestPermissionsRequired_NonePasses(t *testing.T) {
	hook := PermissionsRequired()
	ctx := jsonrpc.WithIdentity(context.Background(), jsonrpc.Identity{Username: "fred"})
	if err := hook(ctx); err != nil {
		t.Errorf("empty permission list rejected an identity: %v", err)
	}
}
