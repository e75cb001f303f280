package execscan

import (
	"testing"

	"github.com/RoaringBitmap/roaring"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/internal/segtrack"
	"github.com/epokhe/bm25am/pkg/mvcc"
	"github.com/epokhe/bm25am/query"
)

func visibleFor(segs []*invidx.Segment) []mvcc.VisibleSegment {
	vis := make([]mvcc.VisibleSegment, len(segs))
	for i := range segs {
		vis[i] = mvcc.VisibleSegment{Deletes: roaring.New(), Ord: i}
	}
	return vis
}

func TestScanNextYieldsEveryMatchAcrossSegments(t *testing.T) {
	segA := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 1, Body: "fox jumps", Price: 1},
		{Row: 2, Body: "no match here", Price: 2},
	})
	segB := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 3, Body: "fox runs", Price: 3},
	})
	segs := []*invidx.Segment{segA, segB}

	scan := NewScan(visibleFor(segs), segs, query.Term("body", "fox"), nil, MethodNormalScan, nil, host.Snapshot{})

	var rows []host.RowID
	for {
		hit, ok := scan.Next()
		if !ok {
			break
		}
		rows = append(rows, hit.RowID)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 hits across both segments, got %v", rows)
	}
	if rows[0] != 1 || rows[1] != 3 {
		t.Fatalf("expected rowids [1,3] in segment order, got %v", rows)
	}
}

func TestScanRescanResetsToStart(t *testing.T) {
	seg := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 1, Body: "fox", Price: 1},
	})
	segs := []*invidx.Segment{seg}
	scan := NewScan(visibleFor(segs), segs, query.All(), nil, MethodNormalScan, nil, host.Snapshot{})

	if _, ok := scan.Next(); !ok {
		t.Fatalf("expected one hit")
	}
	if _, ok := scan.Next(); ok {
		t.Fatalf("expected EOF after consuming the only doc")
	}

	scan.Rescan()
	hit, ok := scan.Next()
	if !ok {
		t.Fatalf("expected a hit again after Rescan")
	}
	if hit.RowID != 1 {
		t.Fatalf("expected rowid 1 after rescan, got %d", hit.RowID)
	}
}

func TestScanRecordsOpenedSegmentsInTracker(t *testing.T) {
	segA := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 1, Body: "fox", Price: 1},
	})
	segB := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 2, Body: "fox", Price: 2},
	})
	segs := []*invidx.Segment{segA, segB}
	tr := segtrack.New()
	scan := NewScan(visibleFor(segs), segs, query.All(), tr, MethodNormalScan, nil, host.Snapshot{})

	for {
		if _, ok := scan.Next(); !ok {
			break
		}
	}
	if len(tr.Segments()) != 2 {
		t.Fatalf("expected both segments recorded, got %v", tr.Segments())
	}
}

func TestCollectTopKOrdersByScoreDescending(t *testing.T) {
	seg := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 1, Body: "fox fox fox", Price: 1},
		{Row: 2, Body: "fox", Price: 2},
		{Row: 3, Body: "fox fox", Price: 3},
	})
	segs := []*invidx.Segment{seg}
	scan := NewScan(visibleFor(segs), segs, query.Term("body", "fox"), nil, MethodTopKHeapVisible, nil, host.Snapshot{})

	hits := CollectTopK(scan, 2)
	if len(hits) != 2 {
		t.Fatalf("expected top 2 hits, got %d", len(hits))
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("expected descending score order, got %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestCollectTopKZeroMeansUnbounded(t *testing.T) {
	seg := buildSegment(t, []struct {
		Row   host.RowID
		Body  string
		Price int64
	}{
		{Row: 1, Body: "fox", Price: 1},
		{Row: 2, Body: "fox", Price: 2},
	})
	segs := []*invidx.Segment{seg}
	scan := NewScan(visibleFor(segs), segs, query.Term("body", "fox"), nil, MethodNormalScan, nil, host.Snapshot{})

	hits := CollectTopK(scan, 0)
	if len(hits) != 2 {
		t.Fatalf("expected both hits with k=0 (unbounded), got %d", len(hits))
	}
}
