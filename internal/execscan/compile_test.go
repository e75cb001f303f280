package execscan

import (
	"testing"

	"github.com/RoaringBitmap/roaring"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/segment"
	"github.com/epokhe/bm25am/query"
)

type memDir struct {
	files map[string][]byte
}

func newMemDir() *memDir { return &memDir{files: make(map[string][]byte)} }

func (d *memDir) key(id segment.ID, role string) string { return id.String() + "/" + role }

func (d *memDir) GetFileHandle(segment.ID, string) (invidx.FileHandle, error) { return nil, nil }

func (d *memDir) AtomicRead(id segment.ID, role string) ([]byte, error) {
	return d.files[d.key(id, role)], nil
}

func (d *memDir) WriteFile(id segment.ID, role string, data []byte) (segment.FileEntry, error) {
	d.files[d.key(id, role)] = data
	return segment.FileEntry{StartingBlock: 1, TotalBytes: uint64(len(data))}, nil
}

func (d *memDir) ListManagedFiles(segment.ID) ([]string, error) { return nil, nil }

func tokenizeWhitespace(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// buildSegment indexes docs (rowID, body text, price) into a real,
// persisted-then-reopened invidx.Segment so compile/scan tests exercise
// the actual postings and fast-field codecs, not a test double.
func buildSegment(t *testing.T, docs []struct {
	Row   host.RowID
	Body  string
	Price int64
}) *invidx.Segment {
	t.Helper()
	b := invidx.NewBuilder()
	for _, d := range docs {
		b.AddDocument(d.Row, []byte(d.Body), []invidx.FieldValue{
			{Name: "body", Type: invidx.FieldText, Text: d.Body},
			{Name: "price", Type: invidx.FieldI64, Num: d.Price},
		}, tokenizeWhitespace)
	}
	id := segment.NewID()
	built := b.Build(id)
	dir := newMemDir()
	entry, err := invidx.Persist(dir, built)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	seg, err := invidx.OpenSegment(dir, id, entry.MaxDoc)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	return seg
}

func sampleDocs() []struct {
	Row   host.RowID
	Body  string
	Price int64
} {
	return []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 1, Body: "the quick brown fox", Price: 10},
		{Row: 2, Body: "the lazy dog sleeps", Price: 20},
		{Row: 3, Body: "quick dog runs fast", Price: 30},
	}
}

func collectCompiled(s Scored) []invidx.DocID {
	var out []invidx.DocID
	for s.Iter.Next() {
		out = append(out, s.Iter.Doc())
	}
	return out
}

func TestCompileAllMatchesEveryDoc(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.All()))
	if len(got) != 3 {
		t.Fatalf("expected 3 docs, got %v", got)
	}
}

func TestCompileEmptyMatchesNothing(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.Empty()))
	if len(got) != 0 {
		t.Fatalf("expected no docs, got %v", got)
	}
}

func TestCompileTermMatchesOnlyContainingDocs(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.Term("body", "quick")))
	if len(got) != 2 {
		t.Fatalf("expected 2 docs containing 'quick', got %v", got)
	}
}

func TestCompileTermSetUnionsMatches(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.TermSet("body", []string{"fox", "sleeps"})))
	if len(got) != 2 {
		t.Fatalf("expected 2 docs (fox or sleeps), got %v", got)
	}
}

func TestCompilePhraseDegradesToIntersection(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.Phrase("body", []string{"quick", "dog"})))
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected only doc 2 (has both 'quick' and 'dog'), got %v", got)
	}
}

func TestCompileFuzzyExpandsWithinEditDistance(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.Fuzzy("body", "qu1ck", 1)))
	if len(got) != 2 {
		t.Fatalf("expected fuzzy match against 'quick' (edit distance 1) to hit 2 docs, got %v", got)
	}
}

func TestCompileRegexMatchesTermDictionary(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	got := collectCompiled(Compile(seg, roaring.New(), query.Regex("body", "^do.*")))
	if len(got) != 2 {
		t.Fatalf("expected 2 docs containing a 'do*' term (dog), got %v", got)
	}
}

func TestCompileRangeFiltersByFastField(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	lower := query.Bound{Value: "15", Inclusive: true}
	upper := query.Bound{Unbounded: true}
	got := collectCompiled(Compile(seg, roaring.New(), query.Range("price", lower, upper)))
	if len(got) != 2 {
		t.Fatalf("expected docs with price >= 15 (2 of them), got %v", got)
	}
}

func TestCompileBooleanMustAndMustNot(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	in := query.Boolean(
		[]query.Input{query.Term("body", "dog")},
		nil,
		[]query.Input{query.Term("body", "lazy")},
	)
	got := collectCompiled(Compile(seg, roaring.New(), in))
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected only doc 2 ('dog' without 'lazy'), got %v", got)
	}
}

func TestCompileConstScoreOverridesScore(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	s := Compile(seg, roaring.New(), query.ConstScore(query.Term("body", "quick"), 7))
	if !s.Iter.Next() {
		t.Fatalf("expected at least one match")
	}
	if s.Score(s.Iter.Doc()) != 7 {
		t.Fatalf("expected const score 7, got %v", s.Score(s.Iter.Doc()))
	}
}

func TestCompileBoostMultipliesInnerScore(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	inner := Compile(seg, roaring.New(), query.Term("body", "quick"))
	if !inner.Iter.Next() {
		t.Fatalf("expected at least one match")
	}
	doc := inner.Iter.Doc()
	baseScore := inner.Score(doc)

	boosted := Compile(seg, roaring.New(), query.Boost(query.Term("body", "quick"), 3))
	if !boosted.Iter.Next() {
		t.Fatalf("expected at least one boosted match")
	}
	got := boosted.Score(boosted.Iter.Doc())
	want := baseScore * 3
	if got != want {
		t.Fatalf("expected boosted score %v, got %v", want, got)
	}
}

func TestCompileExcludesDeletedDocs(t *testing.T) {
	seg := buildSegment(t, sampleDocs())
	deletes := roaring.New()
	deletes.Add(0)
	got := collectCompiled(Compile(seg, deletes, query.All()))
	if len(got) != 2 {
		t.Fatalf("expected 2 non-deleted docs, got %v", got)
	}
	for _, d := range got {
		if d == 0 {
			t.Fatalf("expected doc 0 to be excluded as deleted")
		}
	}
}

func TestLevenshteinDistances(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"quick", "quick", 0},
		{"quick", "qu1ck", 1},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q,%q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
