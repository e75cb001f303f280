package invidx

import "testing"

func buildPostings(n int) []Posting {
	out := make([]Posting, n)
	for i := 0; i < n; i++ {
		out[i] = Posting{Doc: DocID(i * 3), Freq: uint32(i%5 + 1)}
	}
	return out
}

func TestPostingsIteratorNextRoundTrip(t *testing.T) {
	postings := buildPostings(300) // spans more than two skip blocks
	buf := EncodePostings(postings)
	it := NewPostingsIterator(buf)

	for i, want := range postings {
		if !it.Next() {
			t.Fatalf("expected posting %d, iterator ended early", i)
		}
		if it.Doc() != want.Doc || it.Freq() != want.Freq {
			t.Fatalf("posting %d: got (doc=%d freq=%d), want (doc=%d freq=%d)", i, it.Doc(), it.Freq(), want.Doc, want.Freq)
		}
	}
	if it.Next() {
		t.Fatalf("iterator should be exhausted after %d postings", len(postings))
	}
}

func TestPostingsIteratorAdvanceAcrossSkipBlocks(t *testing.T) {
	postings := buildPostings(300)
	buf := EncodePostings(postings)
	it := NewPostingsIterator(buf)

	// Doc 600 is posting index 200, one full skip block in (the second
	// block spans indices 128-255, so this lands mid-block).
	if !it.Advance(600) {
		t.Fatalf("Advance(600) should find a match")
	}
	if it.Doc() != 600 {
		t.Fatalf("expected doc 600, got %d", it.Doc())
	}

	// Advancing again past the end should fail cleanly.
	if it.Advance(DocID(postings[len(postings)-1].Doc + 1)) {
		t.Fatalf("Advance past the last doc should return false")
	}
}

func TestPostingsIteratorAdvanceToExactSkipRestart(t *testing.T) {
	postings := buildPostings(300)
	buf := EncodePostings(postings)

	// Posting index 128 is a skip-restart point; its doc id must decode
	// correctly as an absolute value, not a delta from an unknown prior.
	target := postings[128].Doc
	it := NewPostingsIterator(buf)
	if !it.Advance(target) {
		t.Fatalf("Advance(%d) should find the skip-restart posting", target)
	}
	if it.Doc() != target {
		t.Fatalf("expected doc %d, got %d", target, it.Doc())
	}
}

func TestPostingsIteratorLen(t *testing.T) {
	postings := buildPostings(5)
	it := NewPostingsIterator(EncodePostings(postings))
	if it.Len() != 5 {
		t.Fatalf("expected Len() 5, got %d", it.Len())
	}
}
