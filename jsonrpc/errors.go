package jsonrpc

import (
	"errors"
	"fmt"
)

// Kind classifies protocol errors. The kind's name and numeric code are
// both part of the wire contract: they appear in the error envelope and
// clients match on them.
type Kind int

const (
	// KindRPC is the catch-all base kind. It is also the kind of the
	// degraded envelope emitted when a result cannot be encoded.
	KindRPC Kind = iota

	// KindBadData covers request bodies that never became a call:
	// empty input, malformed JSON, a non-object root, missing keys.
	KindBadData

	// KindBadMethod covers a wrongly typed method value, non-array
	// params, and calls to unregistered methods.
	KindBadMethod

	// KindUnknown wraps handler failures that are not *Error values,
	// panics included.
	KindUnknown

	// KindProcessing is the base kind for failures raised inside
	// handlers. Handlers may pair it with a custom code.
	KindProcessing

	// KindBadParams reports parameter validation failures.
	KindBadParams

	// KindAuth reports authentication and authorization failures.
	KindAuth
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindBadData:
		return "BadDataException"
	case KindBadMethod:
		return "BadMethodException"
	case KindUnknown:
		return "UnknownProcessingError"
	case KindProcessing:
		return "ProcessingException"
	case KindBadParams:
		return "BadParamsException"
	case KindAuth:
		return "AuthException"
	default:
		return "RpcException"
	}
}

// Code returns the kind's canonical numeric code.
func (k Kind) Code() int {
	switch k {
	case KindBadData:
		return 101
	case KindBadMethod:
		return 102
	case KindUnknown:
		return 104
	case KindProcessing:
		return 200
	case KindBadParams:
		return 201
	case KindAuth:
		return 403
	default:
		return 100
	}
}

// Error is a protocol error. Dispatch encodes it into the error member
// of the response envelope.
//
// Code normally comes from the kind. A handler that needs to carry a
// domain-specific code can build the value directly:
//
//	&jsonrpc.Error{Kind: jsonrpc.KindProcessing, Code: 250, Message: "quota exceeded"}
//
// A zero Code falls back to the kind's canonical code at encoding time.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a protocol error with the kind's canonical code.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: kind.Code(), Message: message}
}

// AsError normalizes err for encoding. A *Error anywhere in the chain is
// returned as is; any other error is wrapped as KindUnknown with the
// original type and message preserved.
func AsError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewError(KindUnknown, fmt.Sprintf("%T: %s", err, err))
}
