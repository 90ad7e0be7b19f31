package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{New(ErrNotFound, "no course"), http.StatusNotFound},
		{New(ErrUnauthorized, "no token"), http.StatusUnauthorized},
		{New(ErrPermission, "staff only"), http.StatusForbidden},
		{New(ErrValidation, "bad slug"), http.StatusBadRequest},
		{New(ErrConflict, "official record"), http.StatusBadRequest},
		{New(ErrExternalSync, "commerce 502"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorIsAndWrap(t *testing.T) {
	inner := errors.New("row locked")
	err := Wrap(ErrConflict, "publication in progress", inner)
	if !errors.Is(err, ErrConflict) {
		t.Fatal("wrapped error should match its kind")
	}
	if !errors.Is(err, inner) {
		t.Fatal("wrapped error should match its cause")
	}
	wrapped := fmt.Errorf("publish: %w", err)
	if !errors.Is(wrapped, ErrConflict) {
		t.Fatal("fmt-wrapped error should still match its kind")
	}
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(ErrValidation, "number must be alphanumeric"))
	if got := Message(err); got != "number must be alphanumeric" {
		t.Fatalf("Message = %q", got)
	}
	if got := Message(errors.New("pq: connection refused")); got != "internal error" {
		t.Fatalf("Message for untyped error = %q", got)
	}
}
