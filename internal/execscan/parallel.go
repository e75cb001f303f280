package execscan

import (
	"sync"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/mvcc"
	"github.com/epokhe/bm25am/query"
)

// SegmentQueue hands out one segment at a time to a pool of simulated
// parallel workers, standing in for Postgres's DSM-backed parallel
// worker coordination (spec.md §4.9's parallel scan support — no real
// shared memory segment exists here, just a mutex-guarded index).
type SegmentQueue struct {
	mu       sync.Mutex
	segments []mvcc.VisibleSegment
	opened   []*invidx.Segment
	next     int
}

func NewSegmentQueue(segments []mvcc.VisibleSegment, opened []*invidx.Segment) *SegmentQueue {
	return &SegmentQueue{segments: segments, opened: opened}
}

// Take returns the next unclaimed segment, or ok=false once exhausted.
func (q *SegmentQueue) Take() (mvcc.VisibleSegment, *invidx.Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.opened) {
		return mvcc.VisibleSegment{}, nil, false
	}
	i := q.next
	q.next++
	return q.segments[i], q.opened[i], true
}

// RunParallel spreads in across workers segments at a time and, once
// every worker finishes, concatenates the workers' hits in worker
// order; the result is not sorted by score. The
// number of workers actually used is min(workers, remaining segments)
// — spec.md §4.12's InnerOfJoin forcing, and ordinary degree-of-
// parallelism capping, both resolve to a worker count the caller
// computes before calling this. vis/snap apply the same per-row
// heap-visibility recheck Scan.Next does (spec.md §4.9's NormalScan);
// vis may be nil for the same pure index-logic tests Scan allows it
// for.
func RunParallel(q *SegmentQueue, in query.Input, workers int, vis host.HeapVisibility, snap host.Snapshot) []Hit {
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	results := make([][]Hit, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var hits []Hit
			for {
				vs, seg, ok := q.Take()
				if !ok {
					break
				}
				scored := Compile(seg, vs.Deletes, in)
				for scored.Iter.Next() {
					doc := scored.Iter.Doc()
					rowID := seg.RowID(doc)
					if !rowVisible(vis, rowID, snap) {
						continue
					}
					hits = append(hits, Hit{RowID: rowID, Score: scored.Score(doc), Doc: doc, Seg: seg, SegOrd: vs.Ord})
				}
			}
			results[w] = hits
		}(w)
	}
	wg.Wait()

	var all []Hit
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}
