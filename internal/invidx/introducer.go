package invidx

import "github.com/epokhe/bm25am/pkg/segment"

// Introduce computes the new segment set a merge or flush publishes,
// following bluge's introducer pattern: start from the currently-live
// set, drop everything superseded, and append what's new. The caller
// is responsible for the actual atomic publish (segment.Directory.
// Supersede); Introduce only computes the resulting slice so callers
// can build the next generation's in-memory Segment set to run
// queries against once the publish lands (spec.md §4.4 step 4, §4.7.1).
func Introduce(current []*Segment, added []*Segment, removed map[segment.ID]bool) []*Segment {
	next := make([]*Segment, 0, len(current)+len(added))
	for _, s := range current {
		if removed[s.ID] {
			continue
		}
		next = append(next, s)
	}
	next = append(next, added...)
	return next
}
