// Package vacuum implements Vacuum & Bulk Delete (spec.md §4.3):
// rebuilding a segment's delete bitmap from host-reported dead rows,
// staging the rebuilt bitmap through a vacuum-list, and draining
// fully-reclaimed segments' pages back into the free-space map.
package vacuum

import (
	"github.com/RoaringBitmap/roaring"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/epokhe/bm25am/internal/bsdirectory"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/fsm"
	"github.com/epokhe/bm25am/pkg/segment"
)

// DeleteChecker asks the host whether a row is still live, the same
// callback bulk_delete receives from the access method (spec.md §4.3
// step 1).
type DeleteChecker func(rowID uint64) (dead bool, err error)

// Vacuum rebuilds delete bitmaps for live segments and reclaims the
// pages of any segment a prior merge superseded and that no snapshot
// can see anymore.
type Vacuum struct {
	log   *zap.Logger
	store *blockstore.Store
	dir   *segment.Directory
	fsm   *fsm.FSM
}

func New(log *zap.Logger, store *blockstore.Store, dir *segment.Directory, f *fsm.FSM) *Vacuum {
	return &Vacuum{log: log, store: store, dir: dir, fsm: f}
}

// BulkDelete rebuilds id's delete bitmap by asking check about every
// live document and persisting the result as id's new Delete file
// (spec.md §4.3 steps 1-3). It does not touch the FSM; pages freed by
// tombstoning alone wait for a future merge to actually reclaim them.
func (v *Vacuum) BulkDelete(id segment.ID, seg SegmentReader, check DeleteChecker) (numDeleted uint32, err error) {
	bm := roaring.New()
	for doc := uint32(0); doc < seg.MaxDocs(); doc++ {
		row := seg.RowIDOf(doc)
		dead, err := check(row)
		if err != nil {
			return 0, errs.Wrap(err, errs.CodeIO, "bulk-delete visibility check")
		}
		if dead {
			bm.Add(doc)
		}
	}
	numDeleted = uint32(bm.GetCardinality())

	buf, err := bm.ToBytes()
	if err != nil {
		return 0, errs.Wrap(err, errs.CodeInternal, "serialize delete bitmap")
	}
	fe, err := (&bsdirectory.Builder{Store: v.store}).WriteFile(id, "delete", buf)
	if err != nil {
		return 0, err
	}
	if err := v.dir.ApplyDeletes(id, fe, numDeleted); err != nil {
		return 0, err
	}

	v.log.Info("bulk delete rebuilt bitmap", zap.String("segment_id", id.String()), zap.Uint32("num_deleted", numDeleted))
	return numDeleted, nil
}

// SegmentReader is the minimal surface BulkDelete needs from an open
// segment, kept narrow so vacuum doesn't need to import invidx's full
// API surface.
type SegmentReader interface {
	MaxDocs() uint32
	RowIDOf(doc uint32) uint64
}

// Cleanup walks the segment directory, finds entries whose xmax is
// set and that predate every active snapshot (i.e. no reader can
// possibly still reference them), and drains their file chains into
// the free-space map (spec.md §4.3's "vacuum_cleanup": drain
// superseded segments once they are provably unreachable).
func (v *Vacuum) Cleanup(oldestActiveXmin func() uint32) error {
	all, err := v.dir.Scan()
	if err != nil {
		return err
	}

	// One segment's reclaim failure must not stop the rest from being
	// drained: each is independently provably unreachable, so errors
	// are aggregated rather than aborting the whole pass on the first one.
	var reclaimErr error
	for _, e := range all {
		if !e.XMaxSet() {
			continue
		}
		if uint32(e.XMax) >= oldestActiveXmin() {
			continue // some active snapshot might still need this segment
		}

		for _, fe := range e.Files {
			if !fe.IsSet() {
				continue
			}
			blocks, err := v.store.FreeableBlocks(fe.StartingBlock)
			if err != nil {
				reclaimErr = multierr.Append(reclaimErr, err)
				continue
			}
			if err := v.fsm.FreeFull(blocks); err != nil {
				reclaimErr = multierr.Append(reclaimErr, err)
			}
		}
		if e.HasDeleteFile() {
			blocks, err := v.store.FreeableBlocks(e.Delete.StartingBlock)
			if err != nil {
				reclaimErr = multierr.Append(reclaimErr, err)
			} else if err := v.fsm.FreeFull(blocks); err != nil {
				reclaimErr = multierr.Append(reclaimErr, err)
			}
		}

		v.log.Info("reclaimed superseded segment", zap.String("segment_id", e.SegmentID.String()))
	}
	return reclaimErr
}
