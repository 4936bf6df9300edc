package middleware

import (
	"crypto/rand"
	"net/http"
	"reflect"
	"strings"
	"testing"
)

type testPayload struct {
	Msg string
	Num int
}

func testKeys(t *testing.T, ids ...string) map[string][]byte {
	t.Helper()
	keys := map[string][]byte{}
	for _, id := range ids {
		keys[id] = make([]byte, KeySize)
		if _, err := rand.Read(keys[id]); err != nil {
			t.Fatalf("rand.Read(%s): %v", id, err)
		}
	}
	return keys
}

func TestSecureCookie_RoundTrip(t *testing.T) {
	sc, err := NewSecureCookie("sc", "a", testKeys(t, "a"),
		WithPath("/"), WithDomain("example.com"), WithSecure(false), WithSameSite(http.SameSiteNoneMode))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}

	plaintext := testPayload{Msg: "hello world", Num: 1}
	ck, err := sc.Encode(plaintext, 3600)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if ck == nil {
		t.Fatalf("Encode returned nil cookie")
	}
	if ck.Name != "sc" {
		t.Fatalf("cookie name: got %q want %q", ck.Name, "sc")
	}
	if ck.Domain != "example.com" {
		t.Fatalf("cookie domain: got %q want %q", ck.Domain, "example.com")
	}
	if ck.Path != "/" {
		t.Fatalf("cookie path: got %q want %q", ck.Path, "/")
	}
	if !ck.HttpOnly {
		t.Fatalf("cookie HttpOnly: got %v want %v", ck.HttpOnly, true)
	}
	if ck.SameSite != http.SameSiteNoneMode {
		t.Fatalf("cookie SameSite: got %v want %v", ck.SameSite, http.SameSiteNoneMode)
	}
	if ck.Secure {
		t.Fatalf("cookie Secure: got %v want %v", ck.Secure, false)
	}
	if ck.Value == "" {
		t.Fatalf("cookie value empty")
	}

	var got testPayload
	if err := sc.Decode(ck, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, plaintext) {
		t.Fatalf("plaintext mismatch: got %+v want %+v", got, plaintext)
	}
}

func TestSecureCookie_Encode_UsesCurrentKeyID(t *testing.T) {
	sc, err := NewSecureCookie("sc", "b", testKeys(t, "a", "b"))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}

	ck, err := sc.Encode(testPayload{Msg: "k", Num: 1}, 3600)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(ck.Value, "b.") {
		t.Fatalf("cookie value prefix: got %q want to start with %q", ck.Value, "b.")
	}
}

func TestSecureCookie_Clear_SetsCookieAttributes(t *testing.T) {
	sc, err := NewSecureCookie("sc", "a", testKeys(t, "a"))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}

	ck := sc.Clear()
	if ck == nil {
		t.Fatalf("Clear returned nil cookie")
	}
	if ck.Name != "sc" {
		t.Fatalf("cookie name: got %q want %q", ck.Name, "sc")
	}
	if ck.Value != "" {
		t.Fatalf("cookie value: got %q want empty", ck.Value)
	}
	if ck.MaxAge != -1 {
		t.Fatalf("cookie MaxAge: got %d want -1", ck.MaxAge)
	}
	if ck.Expires.IsZero() {
		t.Fatalf("cookie Expires: expected non-zero")
	}
}

func TestSecureCookie_Decode_NilCookie_IsFormatError(t *testing.T) {
	sc, err := NewSecureCookie("sc", "a", testKeys(t, "a"))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}
	var got testPayload
	if err := sc.Decode(nil, &got); err != ErrCookieFormat {
		t.Fatalf("Decode(nil): got %v want %v", err, ErrCookieFormat)
	}
}

func TestSecureCookie_Decode_UnknownKeyID_IsInvalid(t *testing.T) {
	sc, err := NewSecureCookie("sc", "a", testKeys(t, "a"))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}
	var got testPayload
	if err := sc.Decode(&http.Cookie{Name: "sc", Value: "nope.deadbeef"}, &got); err != ErrCookieInvalid {
		t.Fatalf("Decode(unknown keyID): got %v want %v", err, ErrCookieInvalid)
	}
}

func TestSecureCookie_Rotation_OldKeyStillDecodes(t *testing.T) {
	keys := testKeys(t, "old", "new")

	scOld, err := NewSecureCookie("sc", "old", keys)
	if err != nil {
		t.Fatalf("NewSecureCookie(old): %v", err)
	}
	scNew, err := NewSecureCookie("sc", "new", keys)
	if err != nil {
		t.Fatalf("NewSecureCookie(new): %v", err)
	}

	plaintext := testPayload{Msg: "rotate", Num: 2}
	ck, err := scOld.Encode(plaintext, 3600)
	if err != nil {
		t.Fatalf("Encode(old): %v", err)
	}

	var got testPayload
	if err := scNew.Decode(ck, &got); err != nil {
		t.Fatalf("Decode(with new instance): %v", err)
	}
	if !reflect.DeepEqual(got, plaintext) {
		t.Fatalf("plaintext mismatch: got %+v want %+v", got, plaintext)
	}
}

func TestSecureCookie_TamperRejected(t *testing.T) {
	sc, err := NewSecureCookie("sc", "a", testKeys(t, "a"))
	if err != nil {
		t.Fatalf("NewSecureCookie: %v", err)
	}

	ck, err := sc.Encode(testPayload{Msg: "secret", Num: 3}, 3600)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Flip a bit in the cookie value.
	v := []byte(ck.Value)
	v[len(v)-3] ^= 0x01
	ck2 := &http.Cookie{Name: ck.Name, Value: string(v), Domain: ck.Domain, Path: ck.Path}

	var got testPayload
	err = sc.Decode(ck2, &got)
	if err == nil {
		t.Fatalf("Decode(tampered): expected error")
	}
	if err != ErrCookieInvalid && err != ErrCookieFormat {
		// Depending on the flip location it might become invalid base64.
		t.Fatalf("Decode(tampered): got %v want %v or %v", err, ErrCookieInvalid, ErrCookieFormat)
	}
}

func TestSecureCookie_AADMismatchRejected(t *testing.T) {
	keys := testKeys(t, "a")

	sc1, err := NewSecureCookie("sc", "a", keys, WithDomain("example.com"))
	if err != nil {
		t.Fatalf("NewSecureCookie(sc1): %v", err)
	}
	sc2, err := NewSecureCookie("sc", "a", keys, WithDomain("other.com"))
	if err != nil {
		t.Fatalf("NewSecureCookie(sc2): %v", err)
	}

	ck, err := sc1.Encode(testPayload{Msg: "secret", Num: 4}, 3600)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got testPayload
	if err := sc2.Decode(ck, &got); err != ErrCookieInvalid {
		t.Fatalf("Decode(AAD mismatch): got %v want %v", err, ErrCookieInvalid)
	}
}

func TestNewSecureCookie_Validation(t *testing.T) {
	keys := testKeys(t, "a")

	if _, err := NewSecureCookie("sc", "missing", keys); err == nil {
		t.Fatalf("expected error for missing keyID")
	}
	if _, err := NewSecureCookie("sc", "a", nil); err == nil {
		t.Fatalf("expected error for nil keys")
	}
	if _, err := NewSecureCookie("", "a", keys); err == nil {
		t.Fatalf("expected error for empty cookie name")
	}

	badKeys := map[string][]byte{"a": keys["a"], "b": make([]byte, KeySize-1)}
	if _, err := NewSecureCookie("sc", "a", badKeys); err == nil {
		t.Fatalf("expected error for inconsistent key lengths")
	}
}
