// Package planner implements the Planner Hook & Path Builder (spec.md
// §4.8): turning a host-supplied predicate tree into a query.Input,
// deciding whether fast-field pushdown or a Top-K path applies, and
// sizing the parallel worker count for a scan. Build never selects an
// aggregation method.
package planner

import (
	"github.com/epokhe/bm25am/internal/execscan"
	"github.com/epokhe/bm25am/query"
	"github.com/epokhe/bm25am/schema"
)

// Predicate is the host's minimal predicate representation the
// planner extracts SearchQueryInput clauses from — standing in for a
// real query planner's expression trees, which this module has no
// host to receive (spec.md §4.8's "planner hook intercepts the
// host's WHERE clause").
type Predicate struct {
	Field string
	Op    string // "=", "in", "range", "match", "fuzzy", "phrase"
	Value string
	Values []string
	Lower, Upper query.Bound
}

// Path is the plan the executor receives: the compiled query, whether
// it can be satisfied by fast fields alone (no stored-field
// materialization), a Top-K limit if the plan is order-by-score +
// LIMIT, and the worker count to request.
type Path struct {
	Query         query.Input
	FastFieldOnly bool
	TopK          int // 0 means "no limit pushed down"
	Workers       int
	Method        execscan.ExecMethod

	// InnerOfJoin records that the scan is the inner side of a join.
	// Build carries it through unchanged; it does not affect Workers,
	// which is sized from the row estimate like any other scan
	// (spec.md §4.12's supplemental planner behavior).
	InnerOfJoin bool
}

// Build combines preds into one query.Input and sizes the scan
// (spec.md §4.8's path-building steps).
func Build(cfg *schema.Config, preds []Predicate, topK int, innerOfJoin bool, estimatedRows int) Path {
	var must []query.Input
	for _, p := range preds {
		must = append(must, compilePredicate(p))
	}

	var in query.Input
	switch len(must) {
	case 0:
		in = query.All()
	case 1:
		in = must[0]
	default:
		in = query.Boolean(must, nil, nil)
	}

	fastOnly := fastFieldOnly(cfg, preds)

	workers := 1
	if cfg.MinRowsPerWorker > 0 {
		workers = estimatedRows / cfg.MinRowsPerWorker
		if workers > 8 {
			workers = 8
		}
	}
	// Every scan, inner-of-join or not, gets at least 1 worker; the
	// floor applies when the row count above drove the estimate to 0.
	// innerOfJoin does not skip the sizing computation, so a big inner
	// relation still gets several workers (spec.md §4.12's
	// supplemental planner behavior).
	if workers < 1 {
		workers = 1
	}

	method := execscan.MethodNormalScan
	if topK > 0 {
		method = execscan.MethodTopKHeapVisible
	}

	return Path{
		Query:         in,
		FastFieldOnly: fastOnly,
		TopK:          topK,
		Workers:       workers,
		Method:        method,
		InnerOfJoin:   innerOfJoin,
	}
}

func compilePredicate(p Predicate) query.Input {
	switch p.Op {
	case "in":
		return query.TermSet(p.Field, p.Values)
	case "range":
		return query.Range(p.Field, p.Lower, p.Upper)
	case "phrase":
		return query.Phrase(p.Field, p.Values)
	case "fuzzy":
		return query.Fuzzy(p.Field, p.Value, 2)
	case "match":
		return query.Term(p.Field, p.Value)
	default: // "="
		return query.Term(p.Field, p.Value)
	}
}

// fastFieldOnly reports whether every predicate targets a field the
// schema declared numeric/boolean/datetime — i.e. nothing here
// requires opening the document store (spec.md §4.9's fast-field
// pushdown detection).
func fastFieldOnly(cfg *schema.Config, preds []Predicate) bool {
	for _, p := range preds {
		_, numeric := cfg.NumericFields[p.Field]
		_, boolean := cfg.BooleanFields[p.Field]
		_, datetime := cfg.DatetimeFields[p.Field]
		if !numeric && !boolean && !datetime {
			return false
		}
	}
	return true
}
