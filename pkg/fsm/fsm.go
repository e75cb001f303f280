// Package fsm implements the free-space map (spec.md §4.2): 32 size
// classes, each holding a "partial" and a "filled" linked list of
// pages, letting writers recycle pages freed by merge/vacuum instead
// of growing the fork without bound (the FSM non-shrinkage property,
// spec.md §8 property 6).
package fsm

import (
	"encoding/binary"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

const NumClasses = 32
const ClassWidth = 256

// rootLen is 32 * (partial_head u32, filled_head u32).
const rootLen = NumClasses * 8

// classOf returns the size class whose range [c*256,(c+1)*256) contains freeBytes.
func classOf(freeBytes int) int {
	c := freeBytes / ClassWidth
	if c >= NumClasses {
		c = NumClasses - 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

// FSM reads/writes the FSM root page and the per-class free lists. It
// implements blockstore.PageAllocator.
type FSM struct {
	Buf  host.BufferManager
	WAL  host.WAL
	Fork host.ForkID
	Root page.BlockNumber
}

type roots struct {
	partial [NumClasses]page.BlockNumber
	filled  [NumClasses]page.BlockNumber
}

func decodeRoots(buf []byte) roots {
	var r roots
	for c := 0; c < NumClasses; c++ {
		off := c * 8
		r.partial[c] = page.BlockNumber(binary.LittleEndian.Uint32(buf[off : off+4]))
		r.filled[c] = page.BlockNumber(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
	}
	return r
}

func (r roots) encode() []byte {
	buf := make([]byte, rootLen)
	for c := 0; c < NumClasses; c++ {
		off := c * 8
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(r.partial[c]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(r.filled[c]))
	}
	return buf
}

// Init allocates the FSM root page with every list empty.
func Init(buf host.BufferManager, wal host.WAL, fork host.ForkID) (*FSM, error) {
	blk, p, err := buf.Extend(fork)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeIO, "extend fork for fsm root")
	}
	var empty roots
	for c := range empty.partial {
		empty.partial[c] = page.Invalid
		empty.filled[c] = page.Invalid
	}
	copy(p.Payload(), empty.encode())
	if _, err := wal.Insert(host.WALRecord{Resource: "fsm", Fork: fork, Block: blk, Payload: p.Bytes()}); err != nil {
		return nil, err
	}
	if err := buf.WritePage(fork, blk, p); err != nil {
		return nil, err
	}
	return &FSM{Buf: buf, WAL: wal, Fork: fork, Root: blk}, nil
}

// Open attaches to an existing FSM root page.
func Open(buf host.BufferManager, wal host.WAL, fork host.ForkID, root page.BlockNumber) *FSM {
	return &FSM{Buf: buf, WAL: wal, Fork: fork, Root: root}
}

func (f *FSM) load() (roots, *page.Page, error) {
	p, err := f.Buf.ReadPage(f.Fork, f.Root)
	if err != nil {
		return roots{}, nil, err
	}
	return decodeRoots(p.Payload()[:rootLen]), p, nil
}

func (f *FSM) save(r roots, p *page.Page) error {
	copy(p.Payload(), r.encode())
	if _, err := f.WAL.Insert(host.WALRecord{Resource: "fsm", Fork: f.Fork, Block: f.Root, Payload: p.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log fsm update")
	}
	return f.Buf.WritePage(f.Fork, f.Root, p)
}

// popHead removes and returns the head of the free list at head,
// relinking head to the popped page's next pointer.
func (f *FSM) popHead(head page.BlockNumber) (page.BlockNumber, page.BlockNumber, bool, error) {
	if head == page.Invalid {
		return page.Invalid, page.Invalid, false, nil
	}
	p, err := f.Buf.ReadPage(f.Fork, head)
	if err != nil {
		return 0, 0, false, err
	}
	return head, p.NextBlock(), true, nil
}

// Allocate finds a page with at least minFree free bytes, preferring
// the "partial" list (spec.md §4.2's allocate pseudocode) and falling
// back to "filled" pages of the same or a larger class.
func (f *FSM) Allocate(minFree int) (page.BlockNumber, bool, error) {
	r, rootPage, err := f.load()
	if err != nil {
		return 0, false, err
	}

	start := classOf(minFree)
	if minFree%ClassWidth != 0 {
		// round up: a page in class c only guarantees >= c*256 bytes free.
		start = classOf(minFree)
		for start < NumClasses && start*ClassWidth < minFree {
			start++
		}
	}

	for c := start; c < NumClasses; c++ {
		if blk, next, ok, err := f.popHead(r.partial[c]); err != nil {
			return 0, false, err
		} else if ok {
			r.partial[c] = next
			if err := f.save(r, rootPage); err != nil {
				return 0, false, err
			}
			return blk, true, nil
		}
	}
	// Pages on the filled lists are wholly free, so any of them serves a
	// request that fits one page's payload, even where rounding up has
	// pushed start past the last class.
	fstart := start
	if fstart >= NumClasses && minFree <= page.PayloadLen {
		fstart = NumClasses - 1
	}
	for c := fstart; c < NumClasses; c++ {
		if blk, next, ok, err := f.popHead(r.filled[c]); err != nil {
			return 0, false, err
		} else if ok {
			r.filled[c] = next
			if err := f.save(r, rootPage); err != nil {
				return 0, false, err
			}
			return blk, true, nil
		}
	}
	return 0, false, nil
}

// Free pushes blk onto the "partial" list for its size class: used
// when a page still has some free capacity after being consumed
// (spec.md §4.2's free pseudocode). Implements blockstore.PageAllocator.
func (f *FSM) Free(blk page.BlockNumber, freeBytes int) error {
	return f.push(blk, freeBytes, false)
}

// FreeFull returns a set of fully-free pages (an entire dropped or
// superseded segment's worth) to the "filled" lists, per spec.md §4.3's
// "drain the vacuum-list into the FSM" and §4.4's merge cleanup.
func (f *FSM) FreeFull(blocks []page.BlockNumber) error {
	for _, blk := range blocks {
		if err := f.push(blk, page.PayloadLen, true); err != nil {
			return err
		}
	}
	return nil
}

func (f *FSM) push(blk page.BlockNumber, freeBytes int, filled bool) error {
	r, rootPage, err := f.load()
	if err != nil {
		return err
	}

	p, err := f.Buf.ReadPage(f.Fork, blk)
	if err != nil {
		return err
	}

	c := classOf(freeBytes)
	var head *page.BlockNumber
	if filled {
		head = &r.filled[c]
	} else {
		head = &r.partial[c]
	}

	p.SetNextBlock(*head)
	p.AddFlag(page.FlagStale)
	if _, err := f.WAL.Insert(host.WALRecord{Resource: "fsm-page", Fork: f.Fork, Block: blk, Payload: p.Bytes()}); err != nil {
		return err
	}
	if err := f.Buf.WritePage(f.Fork, blk, p); err != nil {
		return err
	}

	*head = blk
	return f.save(r, rootPage)
}
