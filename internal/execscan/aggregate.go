package execscan

import (
	"sort"
	"strconv"
	"strings"

	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/mvcc"
	"github.com/epokhe/bm25am/query"
)

// AggKind names the supported aggregate operations (spec.md §4.10).
type AggKind int

const (
	AggCount AggKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// Aggregate runs filter across every visible segment and reduces
// field (ignored for AggCount) with kind, without materializing a row
// per match — spec.md §4.10's "aggregate scan avoids row
// reconstruction entirely when every input is a fast field".
//
// DirectAggregation applies when filter is query.All(): every live,
// undeleted doc participates and the FastField column is walked
// straight through. FilteredAggregation applies otherwise: the query
// is compiled and only matching docs are folded in. Both paths share
// this function, which reports which of the two applied as its
// ExecMethod result.
func Aggregate(segments []mvcc.VisibleSegment, opened []*invidx.Segment, filter query.Input, field string, kind AggKind) (float64, uint64, ExecMethod) {
	method := MethodFilteredAggregation
	if filter.Kind == query.KindAll {
		method = MethodDirectAggregation
	}

	var sum float64
	var count uint64
	var minV, maxV float64
	first := true

	for i, seg := range opened {
		scored := Compile(seg, segments[i].Deletes, filter)
		var ff *invidx.FastField
		if kind != AggCount {
			ff = seg.FastField(field)
		}
		for scored.Iter.Next() {
			doc := scored.Iter.Doc()
			count++
			if kind == AggCount || ff == nil {
				continue
			}
			v, ok := ff.Get(doc)
			if !ok {
				continue
			}
			fv := float64(v)
			sum += fv
			if first {
				minV, maxV, first = fv, fv, false
			} else {
				if fv < minV {
					minV = fv
				}
				if fv > maxV {
					maxV = fv
				}
			}
		}
	}

	switch kind {
	case AggCount:
		return float64(count), count, method
	case AggSum:
		return sum, count, method
	case AggAvg:
		if count == 0 {
			return 0, 0, method
		}
		return sum / float64(count), count, method
	case AggMin:
		return minV, count, method
	case AggMax:
		return maxV, count, method
	default:
		return 0, count, method
	}
}

// Group is one bucket of a grouped aggregate, keyed by the grouping
// columns' values in the order AggregateGrouped's groupBy names them.
type Group struct {
	Key    []int64
	Result float64
	Count  uint64
}

type groupAcc struct {
	key        []int64
	sum        float64
	count      uint64
	minV, maxV float64
	first      bool
}

// AggregateGrouped is Aggregate's nested-TermsAggregation counterpart
// (spec.md §4.10's "one TermsAggregation per grouping column, nested;
// metrics live at the deepest level"): it buckets matching docs by
// groupBy before folding field/kind into each bucket, still without
// materializing a row per match.
//
// Grouping columns are scoped to int64 fast fields: this module's
// FastField column type only ever stores int64 (internal/invidx has
// no string-valued fast field — see ExecMethod's doc comment), so a
// string GROUP BY column (spec's "category" in scenario S5, for
// instance) must be represented by the host as an integer code rather
// than raw text. A doc missing any one of groupBy's fast-field values
// is excluded from every bucket, matching Aggregate's existing
// missing-fast-field-value handling.
func AggregateGrouped(segments []mvcc.VisibleSegment, opened []*invidx.Segment, filter query.Input, groupBy []string, field string, kind AggKind) ([]Group, ExecMethod) {
	method := MethodFilteredAggregation
	if filter.Kind == query.KindAll {
		method = MethodDirectAggregation
	}

	buckets := make(map[string]*groupAcc)
	var order []string

	for i, seg := range opened {
		scored := Compile(seg, segments[i].Deletes, filter)
		groupCols := make([]*invidx.FastField, len(groupBy))
		for gi, g := range groupBy {
			groupCols[gi] = seg.FastField(g)
		}
		var ff *invidx.FastField
		if kind != AggCount {
			ff = seg.FastField(field)
		}
		for scored.Iter.Next() {
			doc := scored.Iter.Doc()

			key := make([]int64, len(groupBy))
			ok := true
			for gi, col := range groupCols {
				if col == nil {
					ok = false
					break
				}
				v, present := col.Get(doc)
				if !present {
					ok = false
					break
				}
				key[gi] = v
			}
			if !ok {
				continue
			}

			keyStr := groupKeyString(key)
			acc, seen := buckets[keyStr]
			if !seen {
				acc = &groupAcc{key: key, first: true}
				buckets[keyStr] = acc
				order = append(order, keyStr)
			}
			acc.count++
			if kind == AggCount || ff == nil {
				continue
			}
			v, present := ff.Get(doc)
			if !present {
				continue
			}
			fv := float64(v)
			acc.sum += fv
			if acc.first {
				acc.minV, acc.maxV, acc.first = fv, fv, false
			} else {
				if fv < acc.minV {
					acc.minV = fv
				}
				if fv > acc.maxV {
					acc.maxV = fv
				}
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return keyLess(buckets[order[i]].key, buckets[order[j]].key) })

	groups := make([]Group, 0, len(order))
	for _, k := range order {
		acc := buckets[k]
		g := Group{Key: acc.key, Count: acc.count}
		switch kind {
		case AggCount:
			g.Result = float64(acc.count)
		case AggSum:
			g.Result = acc.sum
		case AggAvg:
			if acc.count > 0 {
				g.Result = acc.sum / float64(acc.count)
			}
		case AggMin:
			g.Result = acc.minV
		case AggMax:
			g.Result = acc.maxV
		}
		groups = append(groups, g)
	}
	return groups, method
}

func groupKeyString(key []int64) string {
	var b strings.Builder
	for i, k := range key {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(k, 10))
	}
	return b.String()
}

func keyLess(a, b []int64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
