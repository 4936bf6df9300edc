package rpchttp

import (
	"context"
	"net/http"
)

// Processor is middleware-style logic that runs before the RPC request
// is served.
//
// Protocol:
//   - Processors MUST call next(...), unless they intend to
//     short-circuit the request.
//   - Processors MUST NOT call w.WriteHeader(...).
//   - Processors MUST NOT write to the response body.
//
// Error handling:
//   - If any processor returns a non-nil error, the chain stops
//     immediately and the handler writes an HTTP error response.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

type hooksKey struct{}

// withHooks returns a request whose context carries a deferred-write
// registry, unless one is already present.
func withHooks(r *http.Request) *http.Request {
	if r.Context().Value(hooksKey{}) != nil {
		return r
	}
	var hooks []func(http.ResponseWriter)
	return r.WithContext(context.WithValue(r.Context(), hooksKey{}, &hooks))
}

// Defer registers a function to be called before the response headers
// are written. The function fn must not call WriteHeader itself.
//
// WARNING: If the context does not contain a hooks registry (e.g. not
// running within a Handler), this function is a silent no-op. This is a
// potential hazard as middleware relying on Defer (like sessions) will
// fail to save state without error.
func Defer(ctx context.Context, fn func(http.ResponseWriter)) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if ok && hooks != nil {
		*hooks = append(*hooks, fn)
	}
}

// Commit executes all deferred functions registered via Defer.
// It should be called exactly once before writing headers.
func Commit(ctx context.Context, w http.ResponseWriter) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if ok && hooks != nil {
		// Run in LIFO order
		for i := len(*hooks) - 1; i >= 0; i-- {
			(*hooks)[i](w)
		}
		// Clear hooks to prevent re-execution
		*hooks = nil
	}
}
