package jsonrpc

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindWireNames(t *testing.T) {
	tests := []struct {
		kind Kind
		name string
		code int
	}{
		{KindRPC, "RpcException", 100},
		{KindBadData, "BadDataException", 101},
		{KindBadMethod, "BadMethodException", 102},
		{KindUnknown, "UnknownProcessingError", 104},
		{KindProcessing, "ProcessingException", 200},
		{KindBadParams, "BadParamsException", 201},
		{KindAuth, "AuthException", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.kind.Code(); got != tt.code {
				t.Errorf("Code() = %d, want %d", got, tt.code)
			}
		})
	}
}

func TestNewError(t *testing.T) {
	e := NewError(KindBadParams, "too few")
	if e.Kind != KindBadParams {
		t.Errorf("Kind = %v, want %v", e.Kind, KindBadParams)
	}
	if e.Code != 201 {
		t.Errorf("Code = %d, want 201", e.Code)
	}
	if e.Error() != "too few" {
		t.Errorf("Error() = %q, want %q", e.Error(), "too few")
	}
}

func TestAsError_Passthrough(t *testing.T) {
	orig := NewError(KindAuth, "denied")
	if got := AsError(orig); got != orig {
		t.Errorf("AsError returned %v, want the original error", got)
	}

	wrapped := fmt.Errorf("checking permission: %w", orig)
	if got := AsError(wrapped); got != orig {
		t.Errorf("AsError(wrapped) returned %v, want the original error", got)
	}
}

func TestAsError_WrapsForeignErrors(t *testing.T) {
	got := AsError(errors.New("boom"))
	if got.Kind != KindUnknown {
		t.Fatalf("Kind = %v, want %v", got.Kind, KindUnknown)
	}
	if got.Code != 104 {
		t.Errorf("Code = %d, want 104", got.Code)
	}
	want := "*errors.errorString: boom"
	if got.Message != want {
		t.Errorf("Message = %q, want %q", got.Message, want)
	}
}
