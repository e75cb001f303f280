package invidx

import (
	"strings"

	"github.com/epokhe/bm25am/query"
)

// Snippet renders doc's stored text with every span matching one of
// query's terms wrapped in <b>...</b> (SPEC_FULL.md §4.12's
// highlighting supplement, implied by the original implementation's
// snippet_json tests). It is a NormalScan result projection, not a
// scored or ranked strategy of its own.
//
// Two simplifications, both forced by what this module actually
// stores: the whole per-document blob from Builder.AddDocument is
// treated as field's text (there is no per-field stored-field split —
// see Segment.Stored), and highlighting is whitespace-token-level
// rather than per-occurrence, since postings only carry a document
// frequency (PostingsIterator's Doc/Freq), not per-occurrence byte
// offsets to splice around.
func Snippet(seg *Segment, doc DocID, field string, in query.Input) (string, error) {
	_ = field // reserved for a future per-field stored split; see doc comment
	text := string(seg.Stored(doc))
	if text == "" {
		return "", nil
	}

	terms := make(map[string]bool)
	collectTerms(in, terms)
	if len(terms) == 0 {
		return text, nil
	}

	tokens := strings.Fields(text)
	for i, tok := range tokens {
		bare := strings.Trim(tok, ".,!?;:\"'()")
		if terms[strings.ToLower(bare)] {
			lead := tok[:strings.Index(tok, bare)]
			trail := tok[strings.Index(tok, bare)+len(bare):]
			tokens[i] = lead + "<b>" + bare + "</b>" + trail
		}
	}
	return strings.Join(tokens, " "), nil
}

// collectTerms walks in's tagged union recursively, gathering every
// literal term it could ever match against a document (spec.md §4.8's
// query tree shapes). Range and MoreLikeThis queries contribute no
// terms to highlight. Fuzzy and Regex queries contribute their term or
// pattern text as one literal, so only tokens equal to it are
// highlighted.
func collectTerms(in query.Input, out map[string]bool) {
	switch in.Kind {
	case query.KindTerm, query.KindFuzzy, query.KindRegex:
		if in.Term != "" {
			out[strings.ToLower(in.Term)] = true
		}
	case query.KindTermSet, query.KindPhrase, query.KindPhrasePrefix:
		for _, t := range in.Terms {
			out[strings.ToLower(t)] = true
		}
	case query.KindBoolean:
		for _, c := range in.Must {
			collectTerms(c, out)
		}
		for _, c := range in.Should {
			collectTerms(c, out)
		}
	case query.KindConstScore, query.KindBoost:
		if in.Inner != nil {
			collectTerms(*in.Inner, out)
		}
	case query.KindDisjunctionMax:
		for _, d := range in.Disjuncts {
			collectTerms(d, out)
		}
	}
}
