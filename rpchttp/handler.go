// Package rpchttp serves a jsonrpc.Dispatcher over HTTP.
//
// A Handler speaks three verbs on a single endpoint:
//
//   - POST dispatches a JSON-RPC request. The reply is always HTTP 200
//     with a response envelope; failures travel inside the envelope,
//     not as HTTP errors.
//   - OPTIONS answers CORS preflight checks.
//   - GET renders a human-readable method summary page with a test
//     form for trying calls from the browser.
//
// Before dispatch the handler runs the target method's authentication
// and authorization hooks, so rejected callers never reach a handler.
//
// Processors can be chained as middleware to intercept requests before
// they are served; the middleware package's session processor is the
// canonical example.
package rpchttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// DefaultMaxBodyBytes caps how much of a request body is read.
const DefaultMaxBodyBytes int64 = 1 << 20

const jsonContentType = "application/json"

// CORSConfig is the cross-origin policy the handler reports.
type CORSConfig struct {
	// AllowOrigin is emitted as Access-Control-Allow-Origin. When
	// empty, POST responses carry no cross-origin headers.
	AllowOrigin string

	// AllowCredentials is emitted as Access-Control-Allow-Credentials.
	AllowCredentials bool
}

// Handler serves one Dispatcher over HTTP. Build it with NewHandler and
// mount it on the mux path clients call.
type Handler struct {
	dispatcher   *jsonrpc.Dispatcher
	logger       zerolog.Logger
	processors   []Processor
	cors         CORSConfig
	noDocs       bool
	noTestForm   bool
	maxBodyBytes int64
	serviceName  string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request/response logger. The default logger
// discards everything; pass a configured one to see request traffic at
// Debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithProcessors appends middleware processors. They run in order
// before the request is served.
func WithProcessors(processors ...Processor) Option {
	return func(h *Handler) { h.processors = append(h.processors, processors...) }
}

// WithCORS sets the cross-origin policy reported on preflight checks
// and POST responses.
func WithCORS(cors CORSConfig) Option {
	return func(h *Handler) { h.cors = cors }
}

// WithoutDocs suppresses the method summary page; GET requests are
// answered 404.
func WithoutDocs() Option {
	return func(h *Handler) { h.noDocs = true }
}

// WithoutTestForm renders the method summary page without the test
// form.
func WithoutTestForm() Option {
	return func(h *Handler) { h.noTestForm = true }
}

// WithMaxBodyBytes caps the request body size. Zero or negative keeps
// DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithServiceName sets the service name shown on the method summary
// page.
func WithServiceName(name string) Option {
	return func(h *Handler) { h.serviceName = name }
}

// NewHandler builds a Handler serving d.
func NewHandler(d *jsonrpc.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		dispatcher:   d,
		logger:       zerolog.Nop(),
		maxBodyBytes: DefaultMaxBodyBytes,
		serviceName:  "rpcserve",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = withHooks(r)

	// Call each processor in order, followed by the verb handler.
	var run func(i int, w2 http.ResponseWriter, r2 *http.Request) error
	run = func(i int, w2 http.ResponseWriter, r2 *http.Request) error {
		if i < 0 || i > len(h.processors) {
			// Sanity check failure.
			return errors.New("rpchttp: invalid processor index")
		} else if i < len(h.processors) {
			if h.processors[i] == nil {
				return errors.New("rpchttp: nil processor")
			}
			return h.processors[i].Process(w2, r2, func(w3 http.ResponseWriter, r3 *http.Request) error {
				return run(i+1, w3, r3)
			})
		}
		return h.serve(w2, r2)
	}

	if err := run(0, w, r); err != nil {
		h.logger.Error().Err(err).Str("remote", r.RemoteAddr).Msg("request failed")
		Commit(r.Context(), w)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodPost:
		return h.servePost(w, r)
	case http.MethodOptions:
		return h.servePreflight(w, r)
	case http.MethodGet:
		return h.serveSummary(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, OPTIONS")
		Commit(r.Context(), w)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil
	}
}

// servePost reads and dispatches one RPC request.
func (h *Handler) servePost(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Commit(r.Context(), w)
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil
		}
		return err
	}

	h.logger.Debug().Str("remote", r.RemoteAddr).Bytes("request", body).Msg("incoming request")

	if !strings.Contains(r.Header.Get("Content-Type"), jsonContentType) {
		wrongType := jsonrpc.NewError(jsonrpc.KindBadData, "Use "+jsonContentType+" content type")
		return h.reply(w, r, h.dispatcher.EncodeError(wrongType))
	}

	ctx := jsonrpc.WithAuthorization(r.Context(), r.Header.Get("Authorization"))
	ctx, err = h.checkRequestPermission(ctx, body)
	if err != nil {
		return h.reply(w, r, h.dispatcher.EncodeError(err))
	}

	return h.reply(w, r, h.dispatcher.Dispatch(ctx, body))
}

// MethodName extracts the target method name from a raw request body
// without a full decode, so permission hooks can run before dispatch.
// The second return is false when the body has no string method member.
func MethodName(body []byte) (string, bool) {
	name, err := jsonparser.GetString(body, "method")
	if err != nil {
		return "", false
	}
	return name, true
}

// checkRequestPermission runs the target method's authentication and
// authorization hooks. A body whose method name cannot be extracted, or
// names nothing registered, skips the hooks; dispatch reports those as
// protocol errors.
func (h *Handler) checkRequestPermission(ctx context.Context, body []byte) (context.Context, error) {
	name, ok := MethodName(body)
	if !ok {
		return ctx, nil
	}
	method, ok := h.dispatcher.Registry().Lookup(name)
	if !ok {
		return ctx, nil
	}
	if authenticate := method.Authenticate(); authenticate != nil {
		next, err := authenticate(ctx)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	if authorize := method.Authorize(); authorize != nil {
		if err := authorize(ctx); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// reply writes an encoded response envelope. RPC replies are always
// HTTP 200; failures travel inside the envelope.
func (h *Handler) reply(w http.ResponseWriter, r *http.Request, envelope string) error {
	h.logger.Debug().Str("remote", r.RemoteAddr).Str("response", envelope).Msg("outgoing response")

	header := w.Header()
	if h.cors.AllowOrigin != "" {
		header.Set("Access-Control-Allow-Origin", h.cors.AllowOrigin)
		header.Set("Access-Control-Allow-Credentials", strconv.FormatBool(h.cors.AllowCredentials))
	}
	header.Set("Content-Type", jsonContentType)

	Commit(r.Context(), w)
	w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(w, envelope)
	return err
}

// servePreflight answers CORS preflight checks: POST, GET and OPTIONS
// are allowed, the requested headers are echoed back, and the
// configured origin policy is reported.
func (h *Handler) servePreflight(w http.ResponseWriter, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "unknown origin"
	}

	header := w.Header()
	header.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	header.Set("Access-Control-Max-Age", "0")
	header.Set("Access-Control-Allow-Credentials", strconv.FormatBool(h.cors.AllowCredentials))
	header.Set("Access-Control-Allow-Origin", h.cors.AllowOrigin)
	header.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
	header.Set("Content-Type", "text/plain")

	h.logger.Debug().Str("origin", origin).Msg("outgoing access response")

	Commit(r.Context(), w)
	w.WriteHeader(http.StatusOK)
	return nil
}
