// Package blockstore implements LinkedBytesList and LinkedItemList
// (spec.md §3.1, §4.1): append-only byte/record streams striped
// across host pages linked by each page's special-area next-block
// pointer. Writers append: new bytes or records go into the free
// space of the tail page, then into new pages chained after it, and
// bytes already written are left as they are. The one exception is
// ItemList.Rewrite, which overwrites the head page in place.
package blockstore

import (
	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

// PageAllocator lets a Store pull recycled pages from the free-space
// map (spec.md §4.2) before falling back to relation extension. A nil
// PageAllocator (or one that returns ok=false) means "always extend".
type PageAllocator interface {
	Allocate(minFree int) (blk page.BlockNumber, ok bool, err error)
	Free(blk page.BlockNumber, freeBytes int) error
}

// Store wires LinkedBytesList/LinkedItemList operations to a single
// fork of the host's buffer manager and WAL.
type Store struct {
	Buf   host.BufferManager
	WAL   host.WAL
	Fork  host.ForkID
	Alloc PageAllocator // may be nil
}

// NewList allocates a fresh header page (empty payload, next = Invalid)
// and WAL-logs its initialization, per spec.md §4.1's new_list.
func (s *Store) NewList() (page.BlockNumber, error) {
	blk, p, err := s.Buf.Extend(s.Fork)
	if err != nil {
		return 0, errs.Wrap(err, errs.CodeIO, "extend fork for new list header")
	}
	if _, err := s.WAL.Insert(host.WALRecord{Resource: "list-init", Fork: s.Fork, Block: blk, Payload: p.Bytes()}); err != nil {
		return 0, errs.Wrap(err, errs.CodeIO, "wal-log list init")
	}
	if err := s.Buf.WritePage(s.Fork, blk, p); err != nil {
		return 0, errs.Wrap(err, errs.CodeIO, "write list header page")
	}
	return blk, nil
}

// tail walks next-block pointers from head to the last page, holding
// only one page in hand at a time (spec.md §4.1's "tail walking holds
// only one buffer pin at a time").
func (s *Store) tail(head page.BlockNumber) (page.BlockNumber, *page.Page, error) {
	blk := head
	p, err := s.Buf.ReadPage(s.Fork, blk)
	if err != nil {
		return 0, nil, errs.Wrap(err, errs.CodeIO, "read list head").WithBlock(uint32(head))
	}
	for p.NextBlock() != page.Invalid {
		blk = p.NextBlock()
		p, err = s.Buf.ReadPage(s.Fork, blk)
		if err != nil {
			return 0, nil, errs.Wrap(err, errs.CodeIO, "read list page").WithBlock(uint32(blk))
		}
	}
	return blk, p, nil
}

// allocatePage returns a page ready to be linked in: reused from the
// FSM if one fits, otherwise a freshly extended page.
func (s *Store) allocatePage(minFree int) (page.BlockNumber, *page.Page, error) {
	if s.Alloc != nil {
		if blk, ok, err := s.Alloc.Allocate(minFree); err != nil {
			return 0, nil, err
		} else if ok {
			// reused pages are re-initialized as fresh list pages;
			// their stale payload is never trusted past this point.
			return blk, page.New(), nil
		}
	}
	blk, p, err := s.Buf.Extend(s.Fork)
	if err != nil {
		return 0, nil, errs.Wrap(err, errs.CodeIO, "extend fork")
	}
	return blk, p, nil
}

// linkPage WAL-logs and writes both the new page and the updated
// tail-pointer of the previous page, publishing newBlk as part of the
// list (spec.md §4.1's "the final link parent->child write is what
// publishes a new page").
func (s *Store) linkPage(prevBlk page.BlockNumber, prev *page.Page, newBlk page.BlockNumber, newP *page.Page) error {
	prev.SetNextBlock(newBlk)
	if _, err := s.WAL.Insert(host.WALRecord{Resource: "list-link", Fork: s.Fork, Block: newBlk, Payload: newP.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log new page")
	}
	if err := s.Buf.WritePage(s.Fork, newBlk, newP); err != nil {
		return errs.Wrap(err, errs.CodeIO, "write new page")
	}
	if _, err := s.WAL.Insert(host.WALRecord{Resource: "list-link-prev", Fork: s.Fork, Block: prevBlk, Payload: prev.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log prev page link")
	}
	return s.Buf.WritePage(s.Fork, prevBlk, prev)
}

// FreeableBlocks walks head's full chain and returns every block
// number, for later handoff to the FSM (spec.md §4.1's freeable_blocks).
func (s *Store) FreeableBlocks(head page.BlockNumber) ([]page.BlockNumber, error) {
	var out []page.BlockNumber
	blk := head
	for {
		out = append(out, blk)
		p, err := s.Buf.ReadPage(s.Fork, blk)
		if err != nil {
			return nil, err
		}
		if p.NextBlock() == page.Invalid {
			return out, nil
		}
		blk = p.NextBlock()
	}
}
