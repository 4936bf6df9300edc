package middleware

// Cookie-backed login sessions. The session rides in an AEAD-sealed
// cookie; system.login and system.logout mutate it through the
// jsonrpc.Session interface, and the processor persists it just before
// response headers are written.

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/rpchttp"
)

var ErrNilSession = errors.New("nil session")

// SessionIDBytes is the number of random bytes used to generate a
// session ID.
//
// 16 bytes -> 22 chars raw URL base64.
const SessionIDBytes = 16

// DefaultSessionPeriod is the default session lifetime.
const DefaultSessionPeriod = time.Hour * 24

// MaxExtendedPeriod bounds how long a session may live in total, even
// if continually extended.
const MaxExtendedPeriod = time.Hour * 24 * 90

// DefaultExtendThreshold is the default threshold for extending a
// session before it expires.
const DefaultExtendThreshold = DefaultSessionPeriod / 4

// DefaultCookieName is the default name for the session cookie.
const DefaultCookieName = "RPCSESSION"

// sessionData is the sealed cookie payload.
type sessionData struct {
	// ID is a random session identifier.
	ID string `cbor:"1,keyasint"`
	// Username is the authenticated username.
	Username string `cbor:"2,keyasint"`
	// Expires is the absolute expiry time for session validity.
	Expires time.Time `cbor:"3,keyasint"`
	// Period is the difference between the creation time and expiry
	// time in seconds. Note that the semantics differs from MaxAge in
	// http.Cookie, which is relative to the time the cookie is set.
	Period int `cbor:"4,keyasint"`
}

// newSessionData creates a sessionData with a random ID and default
// expiration.
func newSessionData() (*sessionData, error) {
	b := make([]byte, SessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	// Truncating to second precision moves the creation time
	// backwards, which ensures the start of the valid period is in
	// the past.
	now := time.Now().Truncate(time.Second)
	maxAge := DefaultSessionPeriod
	return &sessionData{
		ID:      base64.RawURLEncoding.EncodeToString(b),
		Expires: now.Add(maxAge),
		Period:  int(maxAge.Seconds()),
	}, nil
}

// validate checks whether the session is valid at time now.
//
// If the session is expired, it returns (false, false). If the session
// is valid and the remaining time before expiry is less than
// extendThreshold, it extends the session by extendPeriod and returns
// (true, true).
func (sd *sessionData) validate(extendThreshold, extendPeriod time.Duration) (ok bool, extended bool) {
	if sd == nil {
		return false, false
	}

	now := time.Now()

	// Period participates in maximum-lifetime calculations. Reject
	// clearly invalid values.
	if sd.Period <= 0 {
		return false, false
	}
	if sd.Period > int(MaxExtendedPeriod.Seconds()) {
		return false, false
	}

	if sd.Expires.IsZero() || !now.Before(sd.Expires) {
		return false, false
	}

	if extendThreshold <= 0 || extendPeriod <= 0 || extendPeriod < extendThreshold {
		return true, false
	}
	if sd.Expires.Sub(now) < extendThreshold {
		// Less than extendThreshold remaining; extend the session to a
		// maximum age of extendPeriod from now.
		sd.extendTo(now.Add(extendPeriod))
		return true, true
	}
	return true, false
}

// extendTo sets the absolute expiry time for the session.
//
// If newExpires is not after the current Expires, this is a no-op.
// Period grows by the amount Expires moves forward (in whole seconds),
// capped at MaxExtendedPeriod from the original creation time.
func (sd *sessionData) extendTo(newExpires time.Time) {
	if sd == nil || sd.Expires.IsZero() {
		return
	}
	newExpires = newExpires.Truncate(time.Second)
	if !newExpires.After(sd.Expires) {
		return
	}

	issuedAt := sd.Expires.Add(-time.Duration(sd.Period) * time.Second)
	maxExpires := issuedAt.Add(MaxExtendedPeriod)
	if newExpires.After(maxExpires) {
		newExpires = maxExpires
	}
	if !newExpires.After(sd.Expires) {
		return
	}

	delta := newExpires.Sub(sd.Expires)
	sd.Period += int(delta.Seconds())
	sd.Expires = newExpires
}

// Session is request-scoped login state. A Session with no data is an
// anonymous visitor; logging in materializes the data and the cookie.
//
// Session satisfies jsonrpc.Session, so the built-in login and logout
// methods can drive it.
type Session struct {
	data *sessionData
	// dirty tracks whether the cookie must be (re)written on commit.
	dirty bool
}

var _ jsonrpc.Session = (*Session)(nil)

// ID returns the session identifier, or an empty string for an
// anonymous session.
func (s *Session) ID() string {
	if s == nil || s.data == nil {
		return ""
	}
	return s.data.ID
}

// Username reports the logged-in user. The second return is false for
// an anonymous session.
func (s *Session) Username() (string, bool) {
	if s == nil || s.data == nil || s.data.Username == "" {
		return "", false
	}
	return s.data.Username, true
}

// Login marks the session as authenticated for username. The session
// state is regenerated with a fresh ID to prevent session fixation.
func (s *Session) Login(username string) error {
	if s == nil {
		return ErrNilSession
	}
	sd, err := newSessionData()
	if err != nil {
		return err
	}
	sd.Username = username
	s.data = sd
	s.dirty = true
	return nil
}

// Logout drops the session state; the cookie is cleared on commit.
func (s *Session) Logout() error {
	if s == nil {
		return ErrNilSession
	}
	s.data = nil
	s.dirty = true
	return nil
}

// Expires returns the expiration time of the session, or the zero time
// for an anonymous session.
func (s *Session) Expires() time.Time {
	if s == nil || s.data == nil {
		return time.Time{}
	}
	return s.data.Expires
}

// SessionProcessor loads the session cookie, revalidates it, and
// injects the session into the request context. The cookie write is
// deferred until response commit, since session state can change
// during dispatch.
//
// Config:
//   - MaxAge: lifetime granted when a session is extended.
//   - ExtendThreshold: extend only when the remaining time is less
//     than this.
type SessionProcessor struct {
	cookie          *SecureCookie
	MaxAge          time.Duration
	ExtendThreshold time.Duration
}

var _ rpchttp.Processor = (*SessionProcessor)(nil)

// SessionProcessorOption configures the SessionProcessor.
type SessionProcessorOption func(*sessionProcessorConfig)

type sessionProcessorConfig struct {
	cookieName      string
	cookieOptions   []SecureCookieOption
	maxAge          time.Duration
	extendThreshold time.Duration
}

// WithCookieName sets the name of the secure cookie where the session
// data is stored.
func WithCookieName(name string) SessionProcessorOption {
	return func(c *sessionProcessorConfig) { c.cookieName = name }
}

// WithCookieOptions adds SecureCookieOptions to the secure cookie
// configuration.
func WithCookieOptions(opts ...SecureCookieOption) SessionProcessorOption {
	return func(c *sessionProcessorConfig) {
		c.cookieOptions = append(c.cookieOptions, opts...)
	}
}

// WithMaxAge sets the session max age.
func WithMaxAge(d time.Duration) SessionProcessorOption {
	return func(c *sessionProcessorConfig) { c.maxAge = d }
}

// WithExtendThreshold sets the session extension threshold.
func WithExtendThreshold(d time.Duration) SessionProcessorOption {
	return func(c *sessionProcessorConfig) { c.extendThreshold = d }
}

// NewSessionProcessor builds a SessionProcessor sealing sessions with
// the given keys. keyID selects the sealing key; the rest are accepted
// for rotation.
func NewSessionProcessor(keyID string, keys map[string][]byte, opts ...SessionProcessorOption) (*SessionProcessor, error) {
	cfg := sessionProcessorConfig{
		cookieName:      DefaultCookieName,
		maxAge:          DefaultSessionPeriod,
		extendThreshold: DefaultExtendThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cookie, err := NewSecureCookie(cfg.cookieName, keyID, keys, cfg.cookieOptions...)
	if err != nil {
		return nil, err
	}
	return &SessionProcessor{
		cookie:          cookie,
		MaxAge:          cfg.maxAge,
		ExtendThreshold: cfg.extendThreshold,
	}, nil
}

// Process implements rpchttp.Processor.
func (p *SessionProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.cookie == nil {
		return errors.New("SessionProcessor requires SecureCookie")
	}

	// Default to an anonymous session.
	sess := &Session{}

	if c, err := r.Cookie(p.cookie.Name()); err == nil {
		var data sessionData
		if err := p.cookie.Decode(c, &data); err == nil {
			maxAge := p.MaxAge
			if maxAge <= 0 {
				maxAge = DefaultSessionPeriod
			}
			extendThreshold := p.ExtendThreshold
			if extendThreshold <= 0 {
				extendThreshold = DefaultExtendThreshold
			}

			ok, extended := data.validate(extendThreshold, maxAge)
			if ok {
				sess.data = &data
				sess.dirty = extended
			} else {
				// Expired. The deferred write clears it.
				sess.dirty = true
			}
		} else {
			// Tampered or undecodable. Clear it.
			sess.dirty = true
		}
	}

	// Persist changes just before headers are written.
	rpchttp.Defer(r.Context(), func(w http.ResponseWriter) {
		p.maybeSetCookie(w, sess)
	})

	*r = *r.WithContext(jsonrpc.WithSession(r.Context(), sess))
	return next(w, r)
}

func (p *SessionProcessor) maybeSetCookie(w http.ResponseWriter, sess *Session) {
	if sess == nil {
		return
	}
	if sess.data == nil {
		if sess.dirty {
			http.SetCookie(w, p.cookie.Clear())
		}
		return
	}

	maxAge := int(time.Until(sess.data.Expires).Seconds())
	if maxAge <= 0 {
		http.SetCookie(w, p.cookie.Clear())
		return
	}

	if sess.dirty {
		if c, err := p.cookie.Encode(*sess.data, maxAge); err == nil {
			http.SetCookie(w, c)
		}
	}
}
