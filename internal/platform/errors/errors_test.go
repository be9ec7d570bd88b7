package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	base := New(CodeNothingToSubmit, "no draft records")
	wrapped := fmt.Errorf("submit partition: %w", base)

	if !errors.Is(wrapped, New(CodeNothingToSubmit, "")) {
		t.Fatal("expected wrapped error to match by code")
	}
	if errors.Is(wrapped, New(CodeNotFound, "")) {
		t.Fatal("expected code mismatch not to match")
	}
}

func TestCodeOf(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("apply updates: %w", Wrap(CodeStorage, "transaction failed", cause))

	if got := CodeOf(err); got != CodeStorage {
		t.Fatalf("CodeOf = %q, want %q", got, CodeStorage)
	}
	if got := CodeOf(cause); got != CodeUnknown {
		t.Fatalf("CodeOf plain error = %q, want %q", got, CodeUnknown)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeNothingToSubmit, http.StatusBadRequest},
		{CodeUserUnknown, http.StatusUnauthorized},
		{CodeSessionExpired, http.StatusUnauthorized},
		{CodeNotFound, http.StatusNotFound},
		{CodeStorage, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", tc.code, got, tc.want)
		}
	}
}
