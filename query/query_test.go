package query

import "testing"

func TestConstructorsSetExpectedKind(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Kind
	}{
		{"All", All(), KindAll},
		{"Empty", Empty(), KindEmpty},
		{"Term", Term("body", "fox"), KindTerm},
		{"TermSet", TermSet("body", []string{"fox", "dog"}), KindTermSet},
		{"Phrase", Phrase("body", []string{"quick", "fox"}), KindPhrase},
		{"PhrasePrefix", PhrasePrefix("body", []string{"qu"}, 5), KindPhrasePrefix},
		{"Fuzzy", Fuzzy("body", "fox", 2), KindFuzzy},
		{"Regex", Regex("body", "^f.*"), KindRegex},
		{"Range", Range("price", Bound{}, Bound{}), KindRange},
		{"MoreLikeThis", MoreLikeThis("body", "similar text"), KindMoreLikeThis},
		{"Boolean", Boolean(nil, nil, nil), KindBoolean},
		{"ConstScore", ConstScore(Term("body", "fox"), 1.5), KindConstScore},
		{"Boost", Boost(Term("body", "fox"), 2.0), KindBoost},
		{"DisjunctionMax", DisjunctionMax([]Input{Term("a", "x")}, 0.3), KindDisjunctionMax},
	}
	for _, c := range cases {
		if c.in.Kind != c.want {
			t.Errorf("%s: got Kind %v, want %v", c.name, c.in.Kind, c.want)
		}
	}
}

func TestConstScoreAndBoostWrapInner(t *testing.T) {
	inner := Term("body", "fox")
	cs := ConstScore(inner, 1.5)
	if cs.Inner == nil || cs.Inner.Term != "fox" {
		t.Fatalf("ConstScore did not preserve inner query: %+v", cs.Inner)
	}
	if cs.Score != 1.5 {
		t.Fatalf("expected score 1.5, got %v", cs.Score)
	}

	b := Boost(inner, 2.0)
	if b.Inner == nil || b.Inner.Term != "fox" {
		t.Fatalf("Boost did not preserve inner query: %+v", b.Inner)
	}
	if b.Score != 2.0 {
		t.Fatalf("expected boost factor 2.0, got %v", b.Score)
	}
}

func TestBooleanCarriesAllThreeClauseLists(t *testing.T) {
	must := []Input{Term("a", "1")}
	should := []Input{Term("b", "2")}
	mustNot := []Input{Term("c", "3")}
	got := Boolean(must, should, mustNot)
	if len(got.Must) != 1 || len(got.Should) != 1 || len(got.MustNot) != 1 {
		t.Fatalf("Boolean dropped a clause list: %+v", got)
	}
}

func TestParseEmptyQueryReturnsEmpty(t *testing.T) {
	got := Parse("body", "   ")
	if got.Kind != KindEmpty {
		t.Fatalf("expected KindEmpty for a blank query, got %v", got.Kind)
	}
}

func TestParseSingleTermUsesDefaultField(t *testing.T) {
	got := Parse("body", "fox")
	if got.Kind != KindBoolean || len(got.Must) != 1 {
		t.Fatalf("expected a single must-clause boolean, got %+v", got)
	}
	term := got.Must[0]
	if term.Kind != KindTerm || term.Field != "body" || term.Term != "fox" {
		t.Fatalf("expected term(body,fox), got %+v", term)
	}
}

func TestParseFieldScopedClause(t *testing.T) {
	got := Parse("body", "title:fox")
	if len(got.Must) != 1 || got.Must[0].Field != "title" || got.Must[0].Term != "fox" {
		t.Fatalf("expected field-scoped term, got %+v", got.Must)
	}
}

func TestParseNegatedClauseGoesToMustNot(t *testing.T) {
	got := Parse("body", "fox -dog")
	if len(got.Must) != 1 || len(got.MustNot) != 1 {
		t.Fatalf("expected one must and one must-not clause, got must=%v mustNot=%v", got.Must, got.MustNot)
	}
	if got.MustNot[0].Term != "dog" {
		t.Fatalf("expected must-not clause term dog, got %q", got.MustNot[0].Term)
	}
}

func TestParseWildcardBecomesRegex(t *testing.T) {
	got := Parse("body", "fo*")
	if len(got.Must) != 1 {
		t.Fatalf("expected one clause, got %v", got.Must)
	}
	clause := got.Must[0]
	if clause.Kind != KindRegex {
		t.Fatalf("expected a wildcard term to compile to a regex clause, got %v", clause.Kind)
	}
	if clause.Term != "^fo.*$" {
		t.Fatalf("expected anchored regex ^fo.*$, got %q", clause.Term)
	}
}

func TestParseMultipleTermsAllMust(t *testing.T) {
	got := Parse("body", "quick fox jumps")
	if len(got.Must) != 3 {
		t.Fatalf("expected 3 must clauses, got %d", len(got.Must))
	}
}

func TestWildcardToRegexEscapesSpecialChars(t *testing.T) {
	got := wildcardToRegex("a.b*c")
	want := "^a\\.b.*c$"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
