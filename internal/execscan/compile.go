// Package execscan implements the Custom Scan Executor and Aggregate
// Scan (spec.md §4.9, §4.10): compiling a query.Input tree against an
// open segment into a scored doc iterator, and driving that iterator
// through the 4-state scan machine Postgres's executor protocol
// expects (Rescan/GetNext/End).
package execscan

import (
	"regexp"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/query"
)

// Scored pairs a compiled query's doc iterator with the score
// function to evaluate at each matching doc; Score must only be
// called with the iterator's current Doc().
type Scored struct {
	Iter  invidx.DocIterator
	Score func(doc invidx.DocID) float64
}

// Compile lowers in against seg into a Scored doc stream, applying
// deletes so callers never see a tombstoned row (spec.md §4.6).
func Compile(seg *invidx.Segment, deletes *roaring.Bitmap, in query.Input) Scored {
	s := compile(seg, in)
	s.Iter = invidx.Exclude(s.Iter, deletes)
	return s
}

func compile(seg *invidx.Segment, in query.Input) Scored {
	switch in.Kind {
	case query.KindAll:
		return Scored{Iter: newRangeIterator(seg.MaxDoc), Score: constScore(1)}

	case query.KindEmpty:
		return Scored{Iter: emptyIter{}, Score: constScore(0)}

	case query.KindTerm:
		return termScored(seg, in.Field, in.Term)

	case query.KindTermSet:
		var subs []Scored
		for _, t := range in.Terms {
			subs = append(subs, termScored(seg, in.Field, t))
		}
		return unionScored(subs)

	case query.KindPhrase, query.KindPhrasePrefix:
		// positions aren't indexed (spec.md's supplemental scope cut),
		// so phrase queries degrade to "all terms present", scored as
		// their intersection's summed BM25 contribution.
		var subs []Scored
		for _, t := range in.Terms {
			subs = append(subs, termScored(seg, in.Field, t))
		}
		return intersectScored(subs)

	case query.KindFuzzy:
		var subs []Scored
		for _, t := range seg.AllTerms(in.Field) {
			if levenshtein(t, in.Term) <= in.Distance {
				subs = append(subs, termScored(seg, in.Field, t))
			}
		}
		return unionScored(subs)

	case query.KindRegex:
		re, err := regexp.Compile(in.Term)
		if err != nil {
			return Scored{Iter: emptyIter{}, Score: constScore(0)}
		}
		var subs []Scored
		for _, t := range seg.AllTerms(in.Field) {
			if re.MatchString(t) {
				subs = append(subs, termScored(seg, in.Field, t))
			}
		}
		return unionScored(subs)

	case query.KindRange:
		return rangeScored(seg, in)

	case query.KindMoreLikeThis:
		terms := strings.Fields(strings.ToLower(in.Term))
		var subs []Scored
		seen := map[string]bool{}
		for _, t := range terms {
			if seen[t] {
				continue
			}
			seen[t] = true
			subs = append(subs, termScored(seg, in.Field, t))
		}
		return unionScored(subs)

	case query.KindBoolean:
		return booleanScored(seg, in)

	case query.KindConstScore:
		inner := compile(seg, *in.Inner)
		return Scored{Iter: inner.Iter, Score: constScore(in.Score)}

	case query.KindBoost:
		inner := compile(seg, *in.Inner)
		factor := in.Score
		return Scored{Iter: inner.Iter, Score: func(d invidx.DocID) float64 { return inner.Score(d) * factor }}

	case query.KindDisjunctionMax:
		return disjunctionMaxScored(seg, in)

	default:
		return Scored{Iter: emptyIter{}, Score: constScore(0)}
	}
}

func termScored(seg *invidx.Segment, field, term string) Scored {
	it, docFreq, ok := seg.Terms(field, term)
	if !ok {
		return Scored{Iter: emptyIter{}, Score: constScore(0)}
	}
	scorer := seg.Scorer(field)
	di := invidx.NewTermIterator(it)
	return Scored{
		Iter: di,
		Score: func(doc invidx.DocID) float64 {
			return scorer.Score(float64(it.Freq()), seg.FieldLen(field, doc), docFreq)
		},
	}
}

func booleanScored(seg *invidx.Segment, in query.Input) Scored {
	var mustIters, shouldIters, notIters []invidx.DocIterator
	var mustScored, shouldScoredList []Scored

	for _, m := range in.Must {
		s := compile(seg, m)
		mustIters = append(mustIters, s.Iter)
		mustScored = append(mustScored, s)
	}
	for _, sh := range in.Should {
		s := compile(seg, sh)
		shouldIters = append(shouldIters, s.Iter)
		shouldScoredList = append(shouldScoredList, s)
	}
	for _, n := range in.MustNot {
		notIters = append(notIters, compile(seg, n).Iter)
	}

	var base invidx.DocIterator
	switch {
	case len(mustIters) > 0 && len(shouldIters) > 0:
		base = invidx.Intersect(invidx.Intersect(mustIters...), invidx.Union(shouldIters...))
	case len(mustIters) > 0:
		base = invidx.Intersect(mustIters...)
	case len(shouldIters) > 0:
		base = invidx.Union(shouldIters...)
	default:
		base = newRangeIterator(seg.MaxDoc)
	}

	if len(notIters) > 0 {
		base = andNot(base, invidx.Union(notIters...))
	}

	all := append(append([]Scored{}, mustScored...), shouldScoredList...)
	score := func(doc invidx.DocID) float64 {
		var total float64
		for _, s := range all {
			total += s.Score(doc)
		}
		return total
	}
	return Scored{Iter: base, Score: score}
}

func disjunctionMaxScored(seg *invidx.Segment, in query.Input) Scored {
	var iters []invidx.DocIterator
	var scored []Scored
	for _, d := range in.Disjuncts {
		s := compile(seg, d)
		iters = append(iters, s.Iter)
		scored = append(scored, s)
	}
	score := func(doc invidx.DocID) float64 {
		max, rest := 0.0, 0.0
		for _, s := range scored {
			v := s.Score(doc)
			if v > max {
				rest += max
				max = v
			} else {
				rest += v
			}
		}
		return max + in.TieBreaker*rest
	}
	return Scored{Iter: invidx.Union(iters...), Score: score}
}

func rangeScored(seg *invidx.Segment, in query.Input) Scored {
	ff := seg.FastField(in.Field)
	if ff == nil {
		return Scored{Iter: emptyIter{}, Score: constScore(0)}
	}
	var docs []invidx.DocID
	for doc := invidx.DocID(0); doc < uint32(ff.Len()); doc++ {
		v, ok := ff.Get(doc)
		if !ok {
			continue
		}
		if inRange(v, in.Lower, in.Upper) {
			docs = append(docs, doc)
		}
	}
	return Scored{Iter: newSliceIterator(docs), Score: constScore(1)}
}

func inRange(v int64, lower, upper query.Bound) bool {
	if !lower.Unbounded {
		lv := parseBoundInt(lower.Value)
		if lower.Inclusive {
			if v < lv {
				return false
			}
		} else if v <= lv {
			return false
		}
	}
	if !upper.Unbounded {
		uv := parseBoundInt(upper.Value)
		if upper.Inclusive {
			if v > uv {
				return false
			}
		} else if v >= uv {
			return false
		}
	}
	return true
}

func parseBoundInt(s string) int64 {
	var v int64
	var neg bool
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		v = v*10 + int64(r-'0')
	}
	if neg {
		v = -v
	}
	return v
}

func constScore(v float64) func(invidx.DocID) float64 {
	return func(invidx.DocID) float64 { return v }
}

func unionScored(subs []Scored) Scored {
	if len(subs) == 0 {
		return Scored{Iter: emptyIter{}, Score: constScore(0)}
	}
	iters := make([]invidx.DocIterator, len(subs))
	for i, s := range subs {
		iters[i] = s.Iter
	}
	score := func(doc invidx.DocID) float64 {
		var total float64
		for _, s := range subs {
			total += s.Score(doc)
		}
		return total
	}
	return Scored{Iter: invidx.Union(iters...), Score: score}
}

func intersectScored(subs []Scored) Scored {
	if len(subs) == 0 {
		return Scored{Iter: emptyIter{}, Score: constScore(0)}
	}
	iters := make([]invidx.DocIterator, len(subs))
	for i, s := range subs {
		iters[i] = s.Iter
	}
	score := func(doc invidx.DocID) float64 {
		var total float64
		for _, s := range subs {
			total += s.Score(doc)
		}
		return total
	}
	return Scored{Iter: invidx.Intersect(iters...), Score: score}
}

func andNot(base, excluded invidx.DocIterator) invidx.DocIterator {
	return &andNotIter{base: base, excluded: excluded}
}

type andNotIter struct {
	base, excluded invidx.DocIterator
	doc            invidx.DocID
	excValid       bool
	started        bool
}

func (a *andNotIter) Next() bool {
	for a.base.Next() {
		if a.skip(a.base.Doc()) {
			continue
		}
		a.doc = a.base.Doc()
		return true
	}
	return false
}

func (a *andNotIter) Advance(target invidx.DocID) bool {
	if !a.base.Advance(target) {
		return false
	}
	if a.skip(a.base.Doc()) {
		return a.Next()
	}
	a.doc = a.base.Doc()
	return true
}

func (a *andNotIter) skip(doc invidx.DocID) bool {
	if !a.started {
		a.excValid = a.excluded.Next()
		a.started = true
	}
	for a.excValid && a.excluded.Doc() < doc {
		a.excValid = a.excluded.Next()
	}
	return a.excValid && a.excluded.Doc() == doc
}

func (a *andNotIter) Doc() invidx.DocID { return a.doc }

// rangeIterator walks every DocID from 0 to n-1.
type rangeIterator struct {
	n   invidx.DocID
	doc invidx.DocID
	started bool
}

func newRangeIterator(n uint32) invidx.DocIterator { return &rangeIterator{n: n} }

func (r *rangeIterator) Next() bool {
	if !r.started {
		r.started = true
		r.doc = 0
	} else {
		r.doc++
	}
	return r.doc < r.n
}

func (r *rangeIterator) Advance(target invidx.DocID) bool {
	if r.started && r.doc >= target {
		return true
	}
	r.started = true
	r.doc = target
	return r.doc < r.n
}

func (r *rangeIterator) Doc() invidx.DocID { return r.doc }

type emptyIter struct{}

func (emptyIter) Next() bool                     { return false }
func (emptyIter) Advance(invidx.DocID) bool      { return false }
func (emptyIter) Doc() invidx.DocID              { return 0 }

type sliceIterator struct {
	docs []invidx.DocID
	idx  int
}

func newSliceIterator(docs []invidx.DocID) invidx.DocIterator {
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	return &sliceIterator{docs: docs, idx: -1}
}

func (s *sliceIterator) Next() bool {
	s.idx++
	return s.idx < len(s.docs)
}

func (s *sliceIterator) Advance(target invidx.DocID) bool {
	for s.idx++; s.idx < len(s.docs); s.idx++ {
		if s.docs[s.idx] >= target {
			return true
		}
	}
	return false
}

func (s *sliceIterator) Doc() invidx.DocID { return s.docs[s.idx] }

// levenshtein computes edit distance, used by Fuzzy query term
// expansion over the segment's term dictionary.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}
