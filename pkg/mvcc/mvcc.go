// Package mvcc resolves a host.Snapshot against a segment directory
// (spec.md §4.6): which segments a query may see, and a stable
// per-segment delete-bitmap handle pinned for the query's duration.
package mvcc

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/epokhe/bm25am/pkg/segment"
	"github.com/epokhe/bm25am/host"
)

// VisibleSegment pairs a directory entry with the delete bitmap it
// should be scanned against, frozen at snapshot-acquisition time so a
// concurrent vacuum rebuilding the live bitmap cannot change the
// answer mid-query (spec.md §4.6 "pin a stable snapshot of each
// segment's delete bitmap for the query's duration").
type VisibleSegment struct {
	Meta    segment.MetaEntry
	Deletes *roaring.Bitmap // never nil; empty when the segment has no tombstones
	// Ord is this segment's position among the snapshot's visible set,
	// assigned in directory scan order. execscan uses it (alongside a
	// hit's DocID) as spec.md §8 property 7's deterministic Top-K
	// tie-break key.
	Ord int
}

// DeleteBitmapLoader loads the live, mutable delete bitmap backing a
// segment's Delete file, letting mvcc clone it without knowing how
// the bitmap is persisted (that's internal/invidx's concern).
type DeleteBitmapLoader interface {
	LoadDeletes(entry segment.MetaEntry) (*roaring.Bitmap, error)
}

// Resolve filters dir's entries down to those visible under snap
// (spec.md §5's "xmin <= sigma < xmax, or xmax unset") and clones each
// visible segment's delete bitmap into a pinned, query-private copy.
func Resolve(dir *segment.Directory, snap host.Snapshot, loader DeleteBitmapLoader) ([]VisibleSegment, error) {
	all, err := dir.Scan()
	if err != nil {
		return nil, err
	}

	var out []VisibleSegment
	for _, e := range all {
		if !snap.Visible(e.XMin, e.XMax, e.XMaxSet()) {
			continue
		}

		var bm *roaring.Bitmap
		if e.HasDeleteFile() {
			bm, err = loader.LoadDeletes(e)
			if err != nil {
				return nil, err
			}
			bm = bm.Clone()
		} else {
			bm = roaring.New()
		}

		out = append(out, VisibleSegment{Meta: e, Deletes: bm, Ord: len(out)})
	}
	return out, nil
}

// Live filters to segments with no xmax at all, ignoring snapshot
// visibility — used by the writer/merger/vacuum's own bookkeeping,
// which always operates against the current state rather than a
// query snapshot (spec.md §4.4, §4.3).
func Live(dir *segment.Directory) ([]segment.MetaEntry, error) {
	all, err := dir.Scan()
	if err != nil {
		return nil, err
	}
	var out []segment.MetaEntry
	for _, e := range all {
		if !e.XMaxSet() {
			out = append(out, e)
		}
	}
	return out, nil
}
