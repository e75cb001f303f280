// Package host defines the Go-shaped interfaces the index core
// consumes from its host database process (spec.md §6.2). The real
// collaborator — buffer manager, WAL, MVCC snapshotting, visibility
// map — lives outside this module's scope; package hosttest supplies
// a reference implementation so the core can be built and exercised
// standalone.
package host

import "github.com/epokhe/bm25am/pkg/page"

// ForkID names one of the index's file forks. Real Postgres indexes
// have a "main" fork plus init/fsm forks of their own; this core keeps
// everything in a single fork and relies on the Metadata Page (§4.2)
// to multiplex logical regions within it.
type ForkID int

const MainFork ForkID = 0

// TxID is a host transaction identifier. 0 is never a valid id.
type TxID uint32

// RowID is the host's physical row identifier (a Postgres ctid, for
// instance). The core never interprets it beyond passing it to
// HeapVisibility and storing it in postings, except for Block below.
type RowID uint64

// Block extracts the heap block a RowID addresses, assuming the
// conventional ctid layout: a block number in the high bits and an
// item offset in the low 16 (Postgres's ItemPointerData). The
// per-row heap-visibility recheck (spec.md §4.9's NormalScan) uses
// this to consult the visibility map's fast path before falling back
// to HeapVisibility.FetchAndCheck.
func (r RowID) Block() page.BlockNumber {
	return page.BlockNumber(uint64(r) >> 16)
}

// BufferManager pins, reads and extends pages of a fork (spec.md
// §4.1's "host's generic buffer API").
type BufferManager interface {
	// ReadPage returns the current content of blk in fork.
	ReadPage(fork ForkID, blk page.BlockNumber) (*page.Page, error)
	// WritePage durably stages p as the new content of blk. Callers
	// must have already WAL-logged the change via WAL.Insert.
	WritePage(fork ForkID, blk page.BlockNumber, p *page.Page) error
	// Extend allocates a brand new page at the end of fork and
	// returns its block number with zeroed content.
	Extend(fork ForkID) (page.BlockNumber, *page.Page, error)
	// NumBlocks reports the current size of fork in pages.
	NumBlocks(fork ForkID) (uint32, error)
}

// LSN is a write-ahead-log sequence number.
type LSN uint64

// WALRecord is one WAL-loggable intent. Resource is a short tag
// ("meta", "fsm", "segdir", "mergelist", "vacuumlist", "data") used by
// hosttest's redo routine and by tests asserting ordering.
type WALRecord struct {
	Resource string
	Fork     ForkID
	Block    page.BlockNumber
	Payload  []byte
}

// WAL is the host's generic XLog insert/flush API (spec.md §6.2).
type WAL interface {
	Insert(rec WALRecord) (LSN, error)
	Flush(lsn LSN) error
}

// Snapshot is a host MVCC snapshot (spec.md §4.6).
type Snapshot struct {
	XMin       TxID   // oldest transaction still active when snapshot was taken
	XMax       TxID   // first transaction id not yet assigned at snapshot time
	ActiveXIDs []TxID // in-progress transactions at snapshot time, excluded from visibility
}

// Visible implements the classic MVCC visibility rule: a row/segment
// created by xmin and (optionally) superseded by xmax is visible to
// this snapshot iff xmin committed strictly before the snapshot and
// xmax either is unset or has not yet committed before the snapshot.
func (s Snapshot) Visible(xmin TxID, xmax TxID, xmaxSet bool) bool {
	if !s.committedBefore(xmin) {
		return false
	}
	if !xmaxSet {
		return true
	}
	return !s.committedBefore(xmax)
}

func (s Snapshot) committedBefore(xid TxID) bool {
	if xid == 0 {
		return false
	}
	if xid >= s.XMax {
		return false
	}
	for _, active := range s.ActiveXIDs {
		if active == xid {
			return false
		}
	}
	return true
}

// SnapshotSource exposes the host's active snapshot (spec.md §6.2).
type SnapshotSource interface {
	GetActiveSnapshot() Snapshot
}

// HeapVisibility stands in for the host's visibility map plus
// HeapTupleSatisfiesMVCC (spec.md §4.9's NormalScan).
type HeapVisibility interface {
	// IsAllVisible reports whether every row on blk is visible to
	// every possible snapshot (the visibility-map fast path).
	IsAllVisible(blk page.BlockNumber) bool
	// FetchAndCheck fetches the heap tuple for rowID and rechecks
	// row-level visibility against snap.
	FetchAndCheck(rowID RowID, snap Snapshot) (visible bool, err error)
}

// CancelSignal is polled at the cancellation points listed in spec.md §5.
type CancelSignal interface {
	Cancelled() bool
}

// NopCancelSignal never cancels.
type NopCancelSignal struct{}

func (NopCancelSignal) Cancelled() bool { return false }
