package execscan

import (
	"testing"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/query"
)

func threeSegments(t *testing.T) []*invidx.Segment {
	t.Helper()
	mk := func(row host.RowID) *invidx.Segment {
		return buildSegment(t, []struct {
			Row   host.RowID
			Body  string
			Price int64
		}{{Row: row, Body: "fox", Price: int64(row)}})
	}
	return []*invidx.Segment{mk(1), mk(2), mk(3)}
}

func TestSegmentQueueTakeExhausts(t *testing.T) {
	segs := threeSegments(t)
	q := NewSegmentQueue(visibleFor(segs), segs)

	var taken int
	for {
		_, _, ok := q.Take()
		if !ok {
			break
		}
		taken++
	}
	if taken != 3 {
		t.Fatalf("expected to take 3 segments, got %d", taken)
	}
	if _, _, ok := q.Take(); ok {
		t.Fatalf("expected Take to report exhausted after all segments claimed")
	}
}

func TestRunParallelCollectsHitsFromEverySegment(t *testing.T) {
	segs := threeSegments(t)
	q := NewSegmentQueue(visibleFor(segs), segs)

	hits := RunParallel(q, query.Term("body", "fox"), 4, nil, host.Snapshot{})
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits (one per segment), got %d", len(hits))
	}
	rows := map[host.RowID]bool{}
	for _, h := range hits {
		rows[h.RowID] = true
	}
	for _, want := range []host.RowID{1, 2, 3} {
		if !rows[want] {
			t.Fatalf("missing rowid %d in %v", want, hits)
		}
	}
}

func TestRunParallelClampsWorkersBelowOne(t *testing.T) {
	segs := threeSegments(t)
	q := NewSegmentQueue(visibleFor(segs), segs)

	hits := RunParallel(q, query.All(), 0, nil, host.Snapshot{})
	if len(hits) != 3 {
		t.Fatalf("expected workers<1 to still run with at least one worker, got %d hits", len(hits))
	}
}

func TestRunParallelMoreWorkersThanSegmentsStillWorks(t *testing.T) {
	segs := threeSegments(t)
	q := NewSegmentQueue(visibleFor(segs), segs)

	hits := RunParallel(q, query.All(), 16, nil, host.Snapshot{})
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits regardless of oversized worker count, got %d", len(hits))
	}
}
