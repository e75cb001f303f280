package execscan

import (
	"sort"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/internal/segtrack"
	"github.com/epokhe/bm25am/pkg/mvcc"
	"github.com/epokhe/bm25am/query"
)

// state is the scan's position in Postgres's executor protocol
// (spec.md §4.9): NewScan and Rescan leave it stateNotStarted; the
// first Next call compiles the query and enters stateQuerying, moves
// to stateProducingRow at the first match and stays there, and ends
// in stateEof once the segment set is exhausted.
type state int

const (
	stateNotStarted state = iota
	stateQuerying
	stateProducingRow
	stateEof
)

// ExecMethod records which strategy produced a result row, surfaced
// through Explain for test assertions and operator diagnostics
// (spec.md §4.12's EXPLAIN supplement).
//
// spec.md §4.9.1 also names FastFieldPullup and StringSortedTopK, a
// deferred (segment_ord, term_ord) string-materialization strategy for
// sorting by a string fast field. Neither has a real code path here:
// this module has no string-valued fast-field column (FastField only
// ever stores int64 — see internal/invidx.FastField), so there is
// nothing for StringSortedTopK to defer, and FastFieldPullup would be
// byte-for-byte identical to MethodNormalScan, since Hit never reads a
// segment's document store regardless of method. Both enum values
// were dropped rather than kept as unimplemented labels; see
// DESIGN.md.
type ExecMethod int

const (
	MethodNormalScan ExecMethod = iota
	MethodTopKHeapVisible
	MethodDirectAggregation
	MethodFilteredAggregation
)

// Hit is one matched row, already scored; no fast-field values are
// projected into it (callers reach them through Seg and Doc). SegOrd
// is the hit's segment's position among the scan's visible segments,
// used (alongside Doc) for spec.md §8 property 7's deterministic
// Top-K tie-break — RowID alone doesn't reproduce it, since a host's
// row identifiers carry no relationship to segment order.
type Hit struct {
	RowID  host.RowID
	Score  float64
	Doc    invidx.DocID
	Seg    *invidx.Segment
	SegOrd int
}

// Scan drives one query across a fixed set of MVCC-visible segments.
// It is not safe for concurrent use; SegmentQueue below is what makes
// multiple scans progress in parallel.
type Scan struct {
	state    state
	segments []mvcc.VisibleSegment
	opened   []*invidx.Segment
	input    query.Input
	tracker  *segtrack.Tracker
	method   ExecMethod
	vis      host.HeapVisibility
	snap     host.Snapshot

	segIdx int
	cur    Scored
	curSeg *invidx.Segment
}

// NewScan constructs a scan over already-opened segments (the caller
// resolved MVCC visibility and opened each invidx.Segment up front,
// matching spec.md §4.9's "segments are fixed for a scan's lifetime").
// vis may be nil, in which case every row is treated as heap-visible
// (used by tests exercising pure index-level logic without a host).
func NewScan(segments []mvcc.VisibleSegment, opened []*invidx.Segment, input query.Input, tracker *segtrack.Tracker, method ExecMethod, vis host.HeapVisibility, snap host.Snapshot) *Scan {
	return &Scan{segments: segments, opened: opened, input: input, tracker: tracker, method: method, vis: vis, snap: snap}
}

// Rescan resets the scan to stateNotStarted, as Postgres's rescan
// callback requires for re-running a scan with new parameters.
func (s *Scan) Rescan() {
	s.state = stateNotStarted
	s.segIdx = 0
	s.cur = Scored{}
	s.curSeg = nil
}

// Next advances to the next matching row, returning false at EOF.
func (s *Scan) Next() (Hit, bool) {
	if s.state == stateEof {
		return Hit{}, false
	}
	if s.state == stateNotStarted {
		s.state = stateQuerying
		s.segIdx = -1
		if !s.advanceSegment() {
			s.state = stateEof
			return Hit{}, false
		}
	}

	for {
		if s.cur.Iter.Next() {
			doc := s.cur.Iter.Doc()
			rowID := s.curSeg.RowID(doc)
			if !rowVisible(s.vis, rowID, s.snap) {
				// Tombstoned by the host after this segment's delete
				// bitmap was last rebuilt (spec.md §4.9's NormalScan
				// per-row recheck) — excluded without ending the scan.
				continue
			}
			s.state = stateProducingRow
			if s.tracker != nil {
				s.tracker.Record(s.curSeg.ID)
			}
			return Hit{
				RowID:  rowID,
				Score:  s.cur.Score(doc),
				Doc:    doc,
				Seg:    s.curSeg,
				SegOrd: s.segments[s.segIdx].Ord,
			}, true
		}
		if !s.advanceSegment() {
			s.state = stateEof
			return Hit{}, false
		}
	}
}

// rowVisible applies spec.md §4.9's NormalScan recheck: trust the
// visibility map's fast path when the row's heap block is entirely
// visible, otherwise fetch and recheck the row itself. A nil vis
// means no host is attached (pure index-logic tests) and every row
// passes.
func rowVisible(vis host.HeapVisibility, rowID host.RowID, snap host.Snapshot) bool {
	if vis == nil {
		return true
	}
	if vis.IsAllVisible(rowID.Block()) {
		return true
	}
	visible, err := vis.FetchAndCheck(rowID, snap)
	if err != nil {
		// The row's liveness could not be confirmed; treat it as
		// absent rather than surface a row Next() cannot err on.
		return false
	}
	return visible
}

func (s *Scan) advanceSegment() bool {
	s.segIdx++
	if s.segIdx >= len(s.opened) {
		return false
	}
	s.curSeg = s.opened[s.segIdx]
	s.cur = Compile(s.curSeg, s.segments[s.segIdx].Deletes, s.input)
	return true
}

// CollectTopK runs the scan to completion and returns the K
// highest-scored hits, descending (spec.md §4.9's Top-K heap-visible
// strategy). Ties break by (segment_ord, doc_id) ascending for
// deterministic output (spec.md §8 property 7).
func CollectTopK(scan *Scan, k int) []Hit {
	var all []Hit
	for {
		h, ok := scan.Next()
		if !ok {
			break
		}
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		if all[i].SegOrd != all[j].SegOrd {
			return all[i].SegOrd < all[j].SegOrd
		}
		return all[i].Doc < all[j].Doc
	})
	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all
}
