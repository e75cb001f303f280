// Package index ties every internal package together behind the
// handful of entry points a host access method actually calls (spec.md
// §6's external interface): build, insert, bulk_delete,
// vacuum_cleanup, cost_estimate, options/validate, and the scan
// lifecycle (begin_scan/rescan/get_tuple/get_bitmap/end_scan).
package index

import (
	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/bsdirectory"
	"github.com/epokhe/bm25am/internal/execscan"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/internal/merge"
	"github.com/epokhe/bm25am/internal/planner"
	"github.com/epokhe/bm25am/internal/segtrack"
	"github.com/epokhe/bm25am/internal/vacuum"
	"github.com/epokhe/bm25am/internal/writer"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/fsm"
	"github.com/epokhe/bm25am/pkg/meta"
	"github.com/epokhe/bm25am/pkg/mvcc"
	"github.com/epokhe/bm25am/pkg/segment"
	"github.com/epokhe/bm25am/query"
	"github.com/epokhe/bm25am/schema"
)

// Index is one access-method instance bound to a single fork of one
// host relation (spec.md §4.1's "the whole index lives in one fork,
// multiplexed through the Metadata Page"). Block 0 of the fork is
// always the Metadata Page (pkg/meta); every other root is reached by
// following its pointers, so a host only ever needs to remember the
// fork, never any raw block number of its own.
type Index struct {
	log   *zap.Logger
	store *blockstore.Store
	fsm   *fsm.FSM
	dir   *segment.Directory
	cfg   *schema.Config
	vis   host.HeapVisibility

	merger *merge.Merger
	vac    *vacuum.Vacuum
}

func newIndex(log *zap.Logger, store *blockstore.Store, f *fsm.FSM, dir *segment.Directory, cfg *schema.Config, vis host.HeapVisibility) *Index {
	return &Index{
		log:    log,
		store:  store,
		fsm:    f,
		dir:    dir,
		cfg:    cfg,
		vis:    vis,
		merger: merge.New(log, store, dir, merge.Policy{TargetSegmentCount: cfg.TargetSegmentCount, MinMergeSegments: merge.DefaultPolicy.MinMergeSegments}),
		vac:    vacuum.New(log, store, dir, f),
	}
}

// Open reattaches to an already-built index by following the Metadata
// Page's pointers (spec.md §4.2), the counterpart to BuildEmpty. vis is
// the host's visibility map/heap-fetch collaborator for this scan's
// per-row recheck (spec.md §4.9's NormalScan); it may be nil, in which
// case every row is treated as heap-visible.
func Open(log *zap.Logger, buf host.BufferManager, wal host.WAL, fork host.ForkID, cfg *schema.Config, vis host.HeapVisibility) (*Index, error) {
	ms := &meta.Store{Buf: buf, WAL: wal, Fork: fork}
	mp, err := ms.Load()
	if err != nil {
		return nil, err
	}
	store := &blockstore.Store{Buf: buf, WAL: wal, Fork: fork}
	f := fsm.Open(buf, wal, fork, mp.FSMRoot)
	dir := segment.Open(store, mp.SegmentMetaHead)
	store.Alloc = f
	return newIndex(log, store, f, dir, cfg, vis), nil
}

// BuildEmpty initializes a brand-new index: a Metadata Page at block 0
// followed by an empty free-space map and segment directory, with the
// Metadata Page updated to point at both once they exist (spec.md §6's
// "build_empty" callback). The host needs to remember nothing beyond
// the fork itself; Open reopens the index from the Metadata Page alone.
func BuildEmpty(log *zap.Logger, buf host.BufferManager, wal host.WAL, fork host.ForkID, cfg *schema.Config, vis host.HeapVisibility) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ms := &meta.Store{Buf: buf, WAL: wal, Fork: fork}
	if err := ms.Init(meta.Page{}); err != nil {
		return nil, err
	}

	store := &blockstore.Store{Buf: buf, WAL: wal, Fork: fork}
	f, err := fsm.Init(buf, wal, fork)
	if err != nil {
		return nil, err
	}
	store.Alloc = f
	dir, err := segment.New(store)
	if err != nil {
		return nil, err
	}

	if err := ms.Save(meta.Page{SegmentMetaHead: dir.Head, FSMRoot: f.Root}); err != nil {
		return nil, err
	}

	return newIndex(log, store, f, dir, cfg, vis), nil
}

// NewWriter returns a fresh Writer bound to this index's directory and
// tokenizer (spec.md §4.5), for txid to Begin/Insert/Commit against.
func (idx *Index) NewWriter() *writer.Writer {
	return writer.New(idx.log, idx.store, idx.dir, writer.DefaultBudget, func(_, text string) []string {
		return idx.cfg.Tokenize("", text)
	})
}

// BulkDelete runs the host's dead-row check against every live
// segment, applying vacuum's bitmap rebuild to each (spec.md §4.3's
// "bulk_delete" callback, called once per VACUUM and once per
// concurrent recheck).
func (idx *Index) BulkDelete(check vacuum.DeleteChecker) (total uint32, err error) {
	live, err := mvcc.Live(idx.dir)
	if err != nil {
		return 0, err
	}
	for _, e := range live {
		seg, err := idx.openSegment(e)
		if err != nil {
			return total, err
		}
		n, err := idx.vac.BulkDelete(e.SegmentID, seg, check)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// VacuumCleanup drains superseded segments no active snapshot can
// still reference (spec.md §4.3's "vacuum_cleanup" callback).
func (idx *Index) VacuumCleanup(oldestActiveXmin func() uint32) error {
	return idx.vac.Cleanup(oldestActiveXmin)
}

// RunMerge runs one merge pass under txm, a no-op if the configured
// merge.Policy finds nothing worth merging (spec.md §4.4).
func (idx *Index) RunMerge(txm host.TxID) (segment.ID, error) {
	live, err := mvcc.Live(idx.dir)
	if err != nil {
		return segment.ID{}, err
	}
	segs := make([]*invidx.Segment, 0, len(live))
	for _, e := range live {
		s, err := idx.openSegment(e)
		if err != nil {
			return segment.ID{}, err
		}
		segs = append(segs, s)
	}
	return idx.merger.RunOnce(txm, segs)
}

// CancelMerge requests the running (or next) merge stop, surfacing
// CancelReason to callers so they can distinguish a user-initiated
// stop from shutdown/recovery (spec.md §4.4's cancellation hook).
func (idx *Index) CancelMerge(reason merge.CancelReason) { idx.merger.Cancel(reason) }

// Validate checks the bound schema.Config (spec.md §6's "validate"
// callback).
func (idx *Index) Validate() error { return idx.cfg.Validate() }

// Options returns the bound config, standing in for the "options"
// callback's reloc support.
func (idx *Index) Options() *schema.Config { return idx.cfg }

// CostEstimate gives the planner a cheap cardinality guess: how many
// live, undeleted documents exist, and how many segments a scan would
// open (spec.md §4.8's "cost_estimate" callback feeding the planner
// hook).
func (idx *Index) CostEstimate() (estimatedRows int, segmentCount int, err error) {
	live, err := mvcc.Live(idx.dir)
	if err != nil {
		return 0, 0, err
	}
	var rows uint64
	for _, e := range live {
		rows += uint64(e.MaxDoc) - uint64(e.NumDeletedDocs)
	}
	return int(rows), len(live), nil
}

// BeginScan resolves snap's visible segments, builds a query.Input via
// planner.Build over preds, and returns a ready-to-drive Scan (spec.md
// §4.9's begin_scan + the planner hook). The returned Scan is always a
// plain sequential one; the returned planner.Path's Workers field is
// what a caller consults, together with its own worker-pool
// availability, to decide whether to drive execscan.RunParallel
// instead.
func (idx *Index) BeginScan(snap host.Snapshot, preds []planner.Predicate, topK int, innerOfJoin bool) (*execscan.Scan, planner.Path, error) {
	rows, _, err := idx.CostEstimate()
	if err != nil {
		return nil, planner.Path{}, err
	}
	path := planner.Build(idx.cfg, preds, topK, innerOfJoin, rows)

	visible, opened, err := idx.resolveAndOpen(snap)
	if err != nil {
		return nil, planner.Path{}, err
	}

	tracker := segtrack.New()
	scan := execscan.NewScan(visible, opened, path.Query, tracker, path.Method, idx.vis, snap)
	return scan, path, nil
}

// ScanWith builds a scan directly from a caller-supplied query.Input,
// bypassing planner.Build for callers (such as a demo harness, or an
// EXPLAIN-style diagnostic) that already have a compiled query rather
// than a predicate list. topK > 0 selects the Top-K heap method.
func (idx *Index) ScanWith(snap host.Snapshot, in query.Input, topK int) (*execscan.Scan, error) {
	visible, opened, err := idx.resolveAndOpen(snap)
	if err != nil {
		return nil, err
	}
	method := execscan.MethodNormalScan
	if topK > 0 {
		method = execscan.MethodTopKHeapVisible
	}
	tracker := segtrack.New()
	return execscan.NewScan(visible, opened, in, tracker, method, idx.vis, snap), nil
}

// Explain reports the strategy and cardinality of a completed scan
// (spec.md §4.12's EXPLAIN supplement).
func (idx *Index) Explain(scan *execscan.Scan, rowsProduced int) execscan.ExplainInfo {
	return execscan.Explain(scan, rowsProduced)
}

// GetBitmap runs a scan to completion and returns every matching row
// as a roaring bitmap, the shape a bitmap index scan's "get_bitmap"
// callback needs instead of one-tuple-at-a-time iteration (spec.md
// §4.9).
func (idx *Index) GetBitmap(snap host.Snapshot, in query.Input) (*roaring.Bitmap, error) {
	visible, opened, err := idx.resolveAndOpen(snap)
	if err != nil {
		return nil, err
	}
	scan := execscan.NewScan(visible, opened, in, nil, execscan.MethodNormalScan, idx.vis, snap)
	bm := roaring.New()
	for {
		hit, ok := scan.Next()
		if !ok {
			break
		}
		bm.Add(uint32(hit.RowID))
	}
	return bm, nil
}

func (idx *Index) resolveAndOpen(snap host.Snapshot) ([]mvcc.VisibleSegment, []*invidx.Segment, error) {
	loader := &bsdirectory.DeleteLoader{Store: idx.store}
	visible, err := mvcc.Resolve(idx.dir, snap, loader)
	if err != nil {
		return nil, nil, err
	}
	rodir := bsdirectory.NewSnapshot(idx.store, metaEntriesOf(visible))
	opened := make([]*invidx.Segment, 0, len(visible))
	for _, v := range visible {
		s, err := invidx.OpenSegment(rodir, v.Meta.SegmentID, v.Meta.MaxDoc)
		if err != nil {
			return nil, nil, err
		}
		opened = append(opened, s)
	}
	return visible, opened, nil
}

func (idx *Index) openSegment(e segment.MetaEntry) (*invidx.Segment, error) {
	rodir := bsdirectory.NewSnapshot(idx.store, []segment.MetaEntry{e})
	return invidx.OpenSegment(rodir, e.SegmentID, e.MaxDoc)
}

func metaEntriesOf(vs []mvcc.VisibleSegment) []segment.MetaEntry {
	out := make([]segment.MetaEntry, len(vs))
	for i, v := range vs {
		out[i] = v.Meta
	}
	return out
}
