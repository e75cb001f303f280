// Package hosttest is a reference implementation of the host
// interfaces (package host) backed by in-process memory. It lets the
// rest of this module be built, merged, vacuumed and scanned without
// a real database attached, standing in for the buffer manager, WAL,
// MVCC snapshot allocator and visibility map described in spec.md
// §6.2.
package hosttest

import (
	"sync"
	"sync/atomic"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

// Buffer is an in-memory BufferManager. One Buffer per fork is enough
// for this module (host.MainFork is the only fork used).
type Buffer struct {
	mu    sync.RWMutex
	pages map[host.ForkID][]*page.Page
}

func NewBuffer() *Buffer {
	return &Buffer{pages: make(map[host.ForkID][]*page.Page)}
}

func (b *Buffer) ReadPage(fork host.ForkID, blk page.BlockNumber) (*page.Page, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pages := b.pages[fork]
	if int(blk) >= len(pages) {
		return nil, errs.New(errs.CodeNotFound, "page not found").WithBlock(uint32(blk))
	}
	cp := page.FromBytes(pages[blk].Bytes())
	return cp, nil
}

func (b *Buffer) WritePage(fork host.ForkID, blk page.BlockNumber, p *page.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages := b.pages[fork]
	if int(blk) >= len(pages) {
		return errs.New(errs.CodeNotFound, "page not found").WithBlock(uint32(blk))
	}
	pages[blk] = page.FromBytes(p.Bytes())
	return nil
}

func (b *Buffer) Extend(fork host.ForkID) (page.BlockNumber, *page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := page.New()
	b.pages[fork] = append(b.pages[fork], p)
	blk := page.BlockNumber(len(b.pages[fork]) - 1)
	return blk, page.FromBytes(p.Bytes()), nil
}

func (b *Buffer) NumBlocks(fork host.ForkID) (uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint32(len(b.pages[fork])), nil
}

// WAL is an in-memory, append-only record of every Insert call. Flush
// is a no-op: nothing here survives process exit, which is the point —
// hosttest exists to exercise logic, not durability.
type WAL struct {
	mu      sync.Mutex
	records []host.WALRecord
	lsn     uint64
}

func NewWAL() *WAL { return &WAL{} }

func (w *WAL) Insert(rec host.WALRecord) (host.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lsn++
	w.records = append(w.records, rec)
	return host.LSN(w.lsn), nil
}

func (w *WAL) Flush(host.LSN) error { return nil }

func (w *WAL) Records() []host.WALRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.WALRecord, len(w.records))
	copy(out, w.records)
	return out
}

// TxnAllocator hands out monotonically increasing TxIDs and tracks
// which are still "active" (uncommitted), so Snapshot() can exercise
// real MVCC visibility decisions in tests.
type TxnAllocator struct {
	next   atomic.Uint32
	mu     sync.Mutex
	active map[host.TxID]bool
}

func NewTxnAllocator() *TxnAllocator {
	t := &TxnAllocator{active: make(map[host.TxID]bool)}
	t.next.Store(1)
	return t
}

func (t *TxnAllocator) Begin() host.TxID {
	id := host.TxID(t.next.Add(1) - 1)
	t.mu.Lock()
	t.active[id] = true
	t.mu.Unlock()
	return id
}

func (t *TxnAllocator) Commit(id host.TxID) {
	t.mu.Lock()
	delete(t.active, id)
	t.mu.Unlock()
}

func (t *TxnAllocator) Abort(id host.TxID) {
	t.mu.Lock()
	delete(t.active, id)
	t.mu.Unlock()
}

// Snapshot returns a host.Snapshot as of now: xmax is the next unissued
// id, xmin is the oldest still-active id (or xmax if none), and every
// currently active id is listed so Visible() excludes in-progress work.
func (t *TxnAllocator) Snapshot() host.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	xmax := host.TxID(t.next.Load())
	xmin := xmax
	active := make([]host.TxID, 0, len(t.active))
	for id := range t.active {
		active = append(active, id)
		if id < xmin {
			xmin = id
		}
	}
	return host.Snapshot{XMin: xmin, XMax: xmax, ActiveXIDs: active}
}

func (t *TxnAllocator) GetActiveSnapshot() host.Snapshot { return t.Snapshot() }

// HeapVisibility is a test double: every row is visible unless it was
// explicitly marked invisible (simulating a deleted/rolled-back heap
// tuple) via Hide/Show.
type HeapVisibility struct {
	mu         sync.Mutex
	invisible  map[host.RowID]bool
	allVisible bool
}

func NewHeapVisibility() *HeapVisibility {
	return &HeapVisibility{invisible: make(map[host.RowID]bool), allVisible: true}
}

func (h *HeapVisibility) Hide(row host.RowID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invisible[row] = true
}

func (h *HeapVisibility) Show(row host.RowID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.invisible, row)
}

func (h *HeapVisibility) SetAllVisible(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allVisible = v
}

func (h *HeapVisibility) IsAllVisible(page.BlockNumber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allVisible && len(h.invisible) == 0
}

func (h *HeapVisibility) FetchAndCheck(row host.RowID, _ host.Snapshot) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.invisible[row], nil
}

// Cancel is a manually-tripped host.CancelSignal.
type Cancel struct {
	flag atomic.Bool
}

func (c *Cancel) Cancelled() bool { return c.flag.Load() }
func (c *Cancel) Trip()           { c.flag.Store(true) }

// Host bundles every collaborator into one value for convenience.
type Host struct {
	Buf  *Buffer
	WAL  *WAL
	Txn  *TxnAllocator
	Vis  *HeapVisibility
	Stop *Cancel
}

func New() *Host {
	return &Host{
		Buf:  NewBuffer(),
		WAL:  NewWAL(),
		Txn:  NewTxnAllocator(),
		Vis:  NewHeapVisibility(),
		Stop: &Cancel{},
	}
}
