package segtrack

import "testing"

func TestRecordDeduplicatesAndPreservesOrder(t *testing.T) {
	tr := New()
	tr.Record("b")
	tr.Record("a")
	tr.Record("b")
	tr.Record("c")

	got := tr.Segments()
	want := []any{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestResetClearsRecordedSegments(t *testing.T) {
	tr := New()
	tr.Record("a")
	tr.Reset()
	if got := tr.Segments(); len(got) != 0 {
		t.Fatalf("expected no segments after Reset, got %v", got)
	}
	tr.Record("a")
	if got := tr.Segments(); len(got) != 1 {
		t.Fatalf("expected recording to work again after Reset, got %v", got)
	}
}

func TestNewTrackerStartsEmpty(t *testing.T) {
	tr := New()
	if got := tr.Segments(); got != nil && len(got) != 0 {
		t.Fatalf("expected a fresh tracker to report no segments, got %v", got)
	}
}
