// Package query defines SearchQueryInput (spec.md §4.8, §6): the
// serializable query tree the planner extracts from predicates and
// the execution layer compiles into invidx doc iterators.
package query

// Kind discriminates a SearchQueryInput's variant.
type Kind int

const (
	KindAll Kind = iota
	KindEmpty
	KindBoolean
	KindTerm
	KindTermSet
	KindPhrase
	KindPhrasePrefix
	KindFuzzy
	KindRegex
	KindRange
	KindMoreLikeThis
	KindConstScore
	KindBoost
	KindDisjunctionMax
)

// Bound is one side of a Range query.
type Bound struct {
	Value       string
	Inclusive   bool
	Unbounded   bool
}

// Input is the tagged union of every query shape the planner can
// build and the executor can run (spec.md §4.8). Only the fields
// relevant to Kind are meaningful; this mirrors the wire-format
// variant encoding described in spec.md §6 rather than a Go interface
// hierarchy, so query trees serialize trivially for EXPLAIN output.
type Input struct {
	Kind Kind

	// KindBoolean
	Must    []Input
	Should  []Input
	MustNot []Input

	// KindTerm / KindFuzzy / KindRegex / KindPhrase / KindPhrasePrefix / KindMoreLikeThis
	Field    string
	Term     string
	Terms    []string // KindTermSet, KindPhrase (phrase's ordered term sequence)
	Distance int      // KindFuzzy edit distance, KindPhrasePrefix max expansions

	// KindRange
	Lower, Upper Bound

	// KindConstScore / KindBoost
	Inner *Input
	Score float64 // KindConstScore's fixed score, KindBoost's multiplier

	// KindDisjunctionMax
	Disjuncts []Input
	TieBreaker float64
}

func All() Input   { return Input{Kind: KindAll} }
func Empty() Input { return Input{Kind: KindEmpty} }

func Term(field, term string) Input {
	return Input{Kind: KindTerm, Field: field, Term: term}
}

func TermSet(field string, terms []string) Input {
	return Input{Kind: KindTermSet, Field: field, Terms: terms}
}

func Phrase(field string, terms []string) Input {
	return Input{Kind: KindPhrase, Field: field, Terms: terms}
}

func PhrasePrefix(field string, terms []string, maxExpansions int) Input {
	return Input{Kind: KindPhrasePrefix, Field: field, Terms: terms, Distance: maxExpansions}
}

func Fuzzy(field, term string, distance int) Input {
	return Input{Kind: KindFuzzy, Field: field, Term: term, Distance: distance}
}

func Regex(field, pattern string) Input {
	return Input{Kind: KindRegex, Field: field, Term: pattern}
}

func Range(field string, lower, upper Bound) Input {
	return Input{Kind: KindRange, Field: field, Lower: lower, Upper: upper}
}

func MoreLikeThis(field, likeText string) Input {
	return Input{Kind: KindMoreLikeThis, Field: field, Term: likeText}
}

func Boolean(must, should, mustNot []Input) Input {
	return Input{Kind: KindBoolean, Must: must, Should: should, MustNot: mustNot}
}

func ConstScore(inner Input, score float64) Input {
	return Input{Kind: KindConstScore, Inner: &inner, Score: score}
}

func Boost(inner Input, factor float64) Input {
	return Input{Kind: KindBoost, Inner: &inner, Score: factor}
}

func DisjunctionMax(disjuncts []Input, tieBreaker float64) Input {
	return Input{Kind: KindDisjunctionMax, Disjuncts: disjuncts, TieBreaker: tieBreaker}
}
