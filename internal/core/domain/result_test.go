package domain

import (
	"errors"
	"testing"
)

func TestResultCarriesValueOrError(t *testing.T) {
	ok := Ok(42)
	if !ok.OK() || ok.Value() != 42 || ok.Err() != nil || ok.Message() != "" {
		t.Fatalf("unexpected success result: %+v", ok)
	}

	failed := From(7, WrapError(ErrNotFound, "delete", errors.New("a.pdf")))
	if failed.OK() {
		t.Fatalf("expected failure")
	}
	if failed.Value() != 0 {
		t.Fatalf("failed result must not carry a value, got %d", failed.Value())
	}
	if failed.Kind() != "not_found" {
		t.Fatalf("expected kind not_found, got %q", failed.Kind())
	}
}

func TestFailWithNilErrorStillFails(t *testing.T) {
	r := Fail[string](nil)
	if r.OK() || r.Message() == "" {
		t.Fatalf("expected non-empty failure, got %+v", r)
	}
}

func TestKindOfPrefersPathViolation(t *testing.T) {
	err := WrapError(ErrValidation, "delete", WrapError(ErrPathViolation, "resolve", errors.New("../x")))
	if got := KindOf(err); got != "path_violation" {
		t.Fatalf("expected path_violation, got %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "internal" {
		t.Fatalf("expected internal, got %q", got)
	}
}
