// Package middleware carries the session plumbing between the HTTP
// handler and the dispatcher: an AEAD-sealed cookie codec and a
// processor that turns the cookie into a jsonrpc.Session for the
// request.
package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCookieFormat  = errors.New("invalid session cookie format")
	ErrCookieInvalid = errors.New("invalid session cookie")
	ErrCookieConfig  = errors.New("invalid secure cookie configuration")
)

// maxCookieLen bounds the amount of attacker-controlled data we will
// decode/allocate for a cookie value. Browsers typically cap individual
// cookie values around 4KB, but we enforce our own limit.
const maxCookieLen = 8192

// KeySize is the required byte length for every cookie key
// (XChaCha20-Poly1305).
const KeySize = chacha20poly1305.KeySize

// SecureCookie seals values into a tamper-evident cookie and opens them
// again. Values are CBOR-encoded and sealed with XChaCha20-Poly1305;
// the cookie attributes are bound as associated data, so a sealed value
// cannot be replayed under another name, domain or path.
//
// Format: [keyID] "." [sealed_b64]
// where sealed = nonce || AEAD.Seal(nil, nonce, plaintext, aad).
// Key rotation: keys holds every accepted key; keyID selects the one
// used for sealing.
type SecureCookie struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite

	keyID string
	keys  map[string][]byte
}

// SecureCookieOption configures the SecureCookie.
type SecureCookieOption func(*SecureCookie)

// WithPath configures the cookie path.
func WithPath(path string) SecureCookieOption {
	return func(sc *SecureCookie) { sc.path = path }
}

// WithDomain configures the cookie domain.
func WithDomain(domain string) SecureCookieOption {
	return func(sc *SecureCookie) { sc.domain = domain }
}

// WithSecure configures the cookie secure flag. It is on by default;
// turn it off only for plain-HTTP development setups.
func WithSecure(secure bool) SecureCookieOption {
	return func(sc *SecureCookie) { sc.secure = secure }
}

// WithSameSite configures the cookie SameSite attribute.
func WithSameSite(sameSite http.SameSite) SecureCookieOption {
	return func(sc *SecureCookie) { sc.sameSite = sameSite }
}

// NewSecureCookie builds a sealed-cookie codec.
//
// Defaults:
//   - Path: /
//   - HttpOnly: true
//   - Secure: true
//   - SameSite: Lax
func NewSecureCookie(cookieName, keyID string, keys map[string][]byte, opts ...SecureCookieOption) (*SecureCookie, error) {
	if cookieName == "" {
		return nil, errors.New("cookie name must not be empty")
	}
	if keys == nil {
		return nil, errors.New("keys must not be nil")
	}
	if _, ok := keys[keyID]; !ok {
		return nil, errors.New("keyID not found in keys")
	}
	for id, k := range keys {
		if _, err := chacha20poly1305.NewX(k); err != nil {
			return nil, fmt.Errorf("invalid key %s: %w", id, err)
		}
	}

	sc := &SecureCookie{
		name:     cookieName,
		path:     "/",
		secure:   true,
		sameSite: http.SameSiteLaxMode,
		keyID:    keyID,
		keys:     keys,
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.path == "" {
		sc.path = "/"
	}
	return sc, nil
}

// Name returns the cookie name.
func (sc *SecureCookie) Name() string {
	if sc == nil {
		return ""
	}
	return sc.name
}

// aad binds the cookie name, domain, path and secure flag to the
// sealed value.
func (sc *SecureCookie) aad() []byte {
	secureStr := "f"
	if sc.secure {
		secureStr = "t"
	}
	return []byte(sc.name + ":" + sc.domain + ":" + sc.path + ":" + secureStr)
}

// Encode marshals and seals plain and returns an http.Cookie carrying
// the value.
func (sc *SecureCookie) Encode(plain any, maxAge int) (*http.Cookie, error) {
	if sc == nil {
		return nil, ErrCookieConfig
	}
	if maxAge <= 0 {
		return nil, ErrCookieInvalid
	}

	plainBytes, err := cbor.Marshal(plain)
	if err != nil {
		return nil, err
	}

	key, ok := sc.keys[sc.keyID]
	if !ok {
		return nil, ErrCookieConfig
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plainBytes, sc.aad())

	return &http.Cookie{
		Name:     sc.name,
		Value:    sc.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed),
		Path:     sc.path,
		Domain:   sc.domain,
		MaxAge:   maxAge,
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
	}, nil
}

// Decode opens the cookie value and unmarshals it into v. Tampered,
// truncated or unknown-key values fail; callers treat every failure as
// an absent cookie.
func (sc *SecureCookie) Decode(cookie *http.Cookie, v any) error {
	if sc == nil {
		return ErrCookieConfig
	}
	if cookie == nil {
		return ErrCookieFormat
	}
	value := cookie.Value
	if len(value) == 0 || len(value) > maxCookieLen {
		return ErrCookieFormat
	}

	keyID, sealedB64, ok := strings.Cut(value, ".")
	if !ok || keyID == "" || sealedB64 == "" {
		return ErrCookieFormat
	}
	key, ok := sc.keys[keyID]
	if !ok {
		return ErrCookieInvalid
	}

	sealed, err := base64.RawURLEncoding.DecodeString(sealedB64)
	if err != nil {
		return ErrCookieFormat
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return ErrCookieFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plainBytes, err := aead.Open(nil, nonce, ciphertext, sc.aad())
	if err != nil {
		return ErrCookieInvalid
	}

	return cbor.Unmarshal(plainBytes, v)
}

// Clear returns a cookie that clears this cookie in the client.
func (sc *SecureCookie) Clear() *http.Cookie {
	if sc == nil {
		return nil
	}
	return &http.Cookie{
		Name:     sc.name,
		Domain:   sc.domain,
		Path:     sc.path,
		HttpOnly: true,
		Secure:   sc.secure,
		SameSite: sc.sameSite,
		Value:    "",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
}
