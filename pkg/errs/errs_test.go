package errs

import (
	"errors"
	"testing"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	e := New(CodeNotFound, "segment missing")
	if e.Code() != CodeNotFound {
		t.Fatalf("expected code %v, got %v", CodeNotFound, e.Code())
	}
	if e.Error() != "segment missing" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
}

func TestWrapChainsCauseAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(cause, CodeIO, "write page")
	if e.Unwrap() != cause {
		t.Fatalf("expected Unwrap to return cause")
	}
	if e.Error() != "write page: disk full" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestCodeOfWalksWrapChain(t *testing.T) {
	inner := New(CodeCorrupted, "bad checksum")
	outer := Wrap(inner, CodeIO, "read block")
	if CodeOf(outer) != CodeIO {
		t.Fatalf("expected outer code %v, got %v", CodeIO, CodeOf(outer))
	}
	if CodeOf(inner) != CodeCorrupted {
		t.Fatalf("expected inner code %v, got %v", CodeCorrupted, CodeOf(inner))
	}
}

func TestCodeOfReturnsEmptyForPlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code for non-Error, got %v", got)
	}
}

func TestIsMatchesOnCodeViaErrorsIs(t *testing.T) {
	sentinel := New(CodeConflict, "")
	e := New(CodeConflict, "segment already superseded")
	if !errors.Is(e, sentinel) {
		t.Fatalf("expected errors.Is to match same-code sentinel")
	}
	other := New(CodeNotFound, "")
	if errors.Is(e, other) {
		t.Fatalf("expected errors.Is to reject different-code sentinel")
	}
}

func TestWithDetailAccumulates(t *testing.T) {
	e := New(CodeInternal, "bad state").WithBlock(7).WithSegment("abc")
	if e.Details()["block"] != uint32(7) {
		t.Fatalf("expected block detail 7, got %v", e.Details()["block"])
	}
	if e.Details()["segment_id"] != "abc" {
		t.Fatalf("expected segment_id detail abc, got %v", e.Details()["segment_id"])
	}
}
