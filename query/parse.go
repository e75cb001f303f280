package query

import "strings"

// Parse turns a small query-string grammar into an Input tree: space-
// separated clauses are ANDed, a leading "-" negates a clause, and
// "field:term" scopes a clause to a field (default field otherwise).
// This is a convenience entry point for cmd/bm25ctl's ad hoc search
// subcommand, not a general query-language parser (spec.md's
// MoreLikeThis/Fuzzy/Range variants are only reachable programmatically).
func Parse(defaultField, q string) Input {
	var must, mustNot []Input
	for _, tok := range strings.Fields(q) {
		negate := false
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			negate = true
			tok = tok[1:]
		}

		field, term := defaultField, tok
		if idx := strings.IndexByte(tok, ':'); idx > 0 {
			field, term = tok[:idx], tok[idx+1:]
		}

		var clause Input
		if strings.Contains(term, "*") {
			clause = Regex(field, wildcardToRegex(term))
		} else {
			clause = Term(field, term)
		}

		if negate {
			mustNot = append(mustNot, clause)
		} else {
			must = append(must, clause)
		}
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return Empty()
	}
	return Boolean(must, nil, mustNot)
}

func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		if r == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(regexQuoteRune(r))
		}
	}
	b.WriteByte('$')
	return b.String()
}

var regexSpecial = ".+?()[]{}|^$\\"

func regexQuoteRune(r rune) string {
	if strings.ContainsRune(regexSpecial, r) {
		return "\\" + string(r)
	}
	return string(r)
}
