package invidx

import (
	"testing"

	"github.com/epokhe/bm25am/pkg/segment"
	"github.com/epokhe/bm25am/query"
)

func buildSnippetSegment(t *testing.T, body string) *Segment {
	t.Helper()
	b := NewBuilder()
	b.AddDocument(1, []byte(body), []FieldValue{
		{Name: "body", Type: FieldText, Text: body},
	}, tokenizeWhitespace)
	id := segment.NewID()
	built := b.Build(id)

	dir := newMemDirectory(t)
	entry, err := Persist(dir, built)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	seg, err := OpenSegment(dir, id, entry.MaxDoc)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	return seg
}

func TestSnippetHighlightsMatchedTerm(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog"
	seg := buildSnippetSegment(t, body)

	out, err := Snippet(seg, 0, "body", query.Term("body", "fox"))
	if err != nil {
		t.Fatalf("Snippet: %v", err)
	}
	want := "the quick brown <b>fox</b> jumps over the lazy dog"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestSnippetWithNoTermsReturnsTextUnchanged(t *testing.T) {
	body := "plain text here"
	seg := buildSnippetSegment(t, body)

	out, err := Snippet(seg, 0, "body", query.All())
	if err != nil {
		t.Fatalf("Snippet: %v", err)
	}
	if out != body {
		t.Fatalf("expected unchanged text %q, got %q", body, out)
	}
}

func TestSnippetHighlightsEveryTermInABooleanQuery(t *testing.T) {
	body := "quick brown fox jumps"
	seg := buildSnippetSegment(t, body)

	in := query.Input{Kind: query.KindBoolean, Must: []query.Input{
		query.Term("body", "quick"),
		query.Term("body", "fox"),
	}}
	out, err := Snippet(seg, 0, "body", in)
	if err != nil {
		t.Fatalf("Snippet: %v", err)
	}
	want := "<b>quick</b> brown <b>fox</b> jumps"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}
