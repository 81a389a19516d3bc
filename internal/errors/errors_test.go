package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error without underlying cause",
			err:  New(KindNotFound, "uin not found", http.StatusNotFound),
			want: "[NOT_FOUND] uin not found",
		},
		{
			name: "error with underlying cause",
			err:  Wrap(KindStorage, "storage operation failed", http.StatusInternalServerError, errors.New("connection reset")),
			want: "[STORAGE_ERROR] storage operation failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("boom")
	err := Wrap(KindEntropy, "entropy source exhausted", http.StatusServiceUnavailable, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestError_WithDetails(t *testing.T) {
	err := New(KindValidation, "invalid input", http.StatusBadRequest)
	err.WithDetails("field", "length").WithDetails("reason", "must be positive")

	if len(err.Details) != 2 {
		t.Fatalf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "length" {
		t.Errorf("Details[field] = %v, want length", err.Details["field"])
	}
}

func TestIs(t *testing.T) {
	err := IllegalTransition("UIN1", "ASSIGNED", "PREASSIGNED")
	if !Is(err, KindIllegalState) {
		t.Errorf("Is(err, KindIllegalState) = false, want true")
	}
	if Is(err, KindNotFound) {
		t.Errorf("Is(err, KindNotFound) = true, want false")
	}
	if Is(errors.New("plain"), KindNotFound) {
		t.Errorf("Is(plain error, KindNotFound) = true, want false")
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("UIN1")
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}
	if err.Details["uin"] != "UIN1" {
		t.Errorf("Details[uin] = %v, want UIN1", err.Details["uin"])
	}
}

func TestNoAvailable(t *testing.T) {
	err := NoAvailable("foundational")
	if err.Kind != KindNoAvailable {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNoAvailable)
	}
}
