package report

import (
	"errors"
	"testing"
)

func TestKeyValues(t *testing.T) {
	kv, err := KeyValues("host", "db1", "port", 5432)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kv["host"] != "db1" || kv["port"] != 5432 {
		t.Errorf("unexpected key values: %v", kv)
	}

	if _, err := KeyValues("host"); err == nil {
		t.Error("expected error for odd number of arguments")
	}
}

func TestFixtureError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapFixtureError("Database unavailable", nil, cause)

	if !errors.Is(err, cause) {
		t.Error("expected fixture error to wrap its cause")
	}
	if got, want := err.Error(), "Database unavailable: connection refused"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	var fe *FixtureError
	if !errors.As(error(err), &fe) || fe.Message != "Database unavailable" {
		t.Errorf("expected errors.As to find the fixture error")
	}
}

func TestAssertionError(t *testing.T) {
	err := NewAssertionError("expected %q but was %q", "a", "b")
	if got, want := err.Error(), `expected "a" but was "b"`; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
