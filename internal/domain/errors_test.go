package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestConfigurationError_Is(t *testing.T) {
	err := NewConfigurationError("cursor_param", "is required")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatal("expected errors.Is(err, ErrConfiguration)")
	}
	want := "configuration error: cursor_param: is required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransportError_UnwrapsCause(t *testing.T) {
	err := fmt.Errorf("fetch page: %w", &TransportError{
		Endpoint: "/items", StatusCode: 502, Err: context.DeadlineExceeded,
	})
	if !errors.Is(err, ErrTransport) {
		t.Error("expected ErrTransport")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable")
	}
}

func TestQueryErrors_Is(t *testing.T) {
	if !errors.Is(&UnsupportedQueryError{Mode: "vector"}, ErrUnsupportedQuery) {
		t.Error("expected ErrUnsupportedQuery")
	}
	if !errors.Is(NewInvalidQuery("query is required"), ErrInvalidQuery) {
		t.Error("expected ErrInvalidQuery")
	}
}

func TestFailedIDs(t *testing.T) {
	cause := errors.New("json.set failed")
	err := fmt.Errorf("upsert: %w", &ReconciliationError{IDs: []string{"1", "3"}, Err: cause})

	ids := FailedIDs(err)
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "3" {
		t.Errorf("FailedIDs = %v, want [1 3]", ids)
	}
	if !errors.Is(err, ErrReconciliation) || !errors.Is(err, cause) {
		t.Error("expected sentinel and cause")
	}
	if FailedIDs(cause) != nil {
		t.Error("expected nil for foreign error")
	}
}
