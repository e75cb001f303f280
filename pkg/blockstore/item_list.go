package blockstore

import (
	"encoding/binary"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

// countLen is the per-page record counter prefixing a LinkedItemList
// page (spec.md §6.3's "count (u16), records[]").
const countLen = 2

// ItemCodec encodes/decodes one fixed-size record of a LinkedItemList.
// Size() must be constant across calls for a given codec.
type ItemCodec[T any] interface {
	Size() int
	Encode(T) []byte
	Decode([]byte) (T, error)
}

// ItemList is a LinkedItemList<T>: an append-only chain of pages, each
// holding as many fixed-size records as fit, used for the segment
// directory, merge-list and vacuum-list (spec.md §3.1, §3.2).
type ItemList[T any] struct {
	Store *Store
	Codec ItemCodec[T]
}

func itemCount(p *page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Payload()[:countLen]))
}

func setItemCount(p *page.Page, n int) {
	binary.LittleEndian.PutUint16(p.Payload()[:countLen], uint16(n))
}

func itemRecords(p *page.Page) []byte {
	return p.Payload()[countLen:]
}

func (l *ItemList[T]) perPage() int {
	return (page.PayloadLen - countLen) / l.Codec.Size()
}

// Append adds one record to the tail page, spilling into a new page
// when the current tail is full.
func (l *ItemList[T]) Append(head page.BlockNumber, rec T) error {
	s := l.Store
	tailBlk, tailP, err := s.tail(head)
	if err != nil {
		return err
	}

	count := itemCount(tailP)
	if count >= l.perPage() {
		recSize := l.Codec.Size()
		newBlk, newP, err := s.allocatePage(countLen + recSize)
		if err != nil {
			return err
		}
		if err := s.linkPage(tailBlk, tailP, newBlk, newP); err != nil {
			return err
		}
		tailBlk, tailP = newBlk, newP
		count = 0
	}

	recSize := l.Codec.Size()
	enc := l.Codec.Encode(rec)
	off := count * recSize
	copy(itemRecords(tailP)[off:off+recSize], enc)
	setItemCount(tailP, count+1)

	if _, err := s.WAL.Insert(host.WALRecord{Resource: "segdir", Fork: s.Fork, Block: tailBlk, Payload: tailP.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log item-list append")
	}
	return s.Buf.WritePage(s.Fork, tailBlk, tailP)
}

// Scan returns every record in the list, in append order.
func (l *ItemList[T]) Scan(head page.BlockNumber) ([]T, error) {
	var out []T
	s := l.Store
	blk := head
	recSize := l.Codec.Size()
	for {
		p, err := s.Buf.ReadPage(s.Fork, blk)
		if err != nil {
			return nil, err
		}
		count := itemCount(p)
		recs := itemRecords(p)
		for i := 0; i < count; i++ {
			off := i * recSize
			rec, err := l.Codec.Decode(recs[off : off+recSize])
			if err != nil {
				return nil, errs.Wrap(err, errs.CodeCorrupted, "decode item-list record").WithBlock(uint32(blk))
			}
			out = append(out, rec)
		}
		if p.NextBlock() == page.Invalid {
			return out, nil
		}
		blk = p.NextBlock()
	}
}

// Rewrite atomically replaces the contents of the list rooted at head
// with recs, without ever mutating a page a reader could already be
// walking (spec.md §3.4 invariant 1: "once a page is linked into a
// list, its bytes are immutable until the whole list is retired").
// recs are packed into a brand-new chain of freshly allocated pages,
// built and WAL-logged entirely out of band first — nothing points at
// any of them yet, so writing them repeatedly costs nothing readers
// can observe. Only then does Rewrite perform its one visible
// mutation: a single WAL-logged overwrite of head's own block,
// turning it into the new chain's first page and linking it onward
// into the out-of-band tail. That one write is the whole critical
// section and the list's linearization point, matching the
// single-record publish §4.4/§5 require of the merger's analogous
// supersede-and-publish step.
//
// A reader that already read head's prior bytes before the swap keeps
// following the old chain's own (untouched) next-block pointers to
// completion, so nothing it has already observed changes underneath
// it — the same reader-isolation guarantee §5 describes. The old
// chain beyond head becomes unreachable once this commits; reclaiming
// its blocks is left to a future directory-compaction pass (not
// implemented here — there is no vacuum-style epoch tracking who
// might still be mid-walk on an abandoned directory chain yet, unlike
// the segment-level xmin/xmax vacuum already uses).
func (l *ItemList[T]) Rewrite(head page.BlockNumber, recs []T) error {
	s := l.Store
	recSize := l.Codec.Size()
	perPage := l.perPage()
	if perPage < 1 {
		return errs.New(errs.CodeInternal, "item list record too large for one page")
	}

	npages := 1
	if len(recs) > 0 {
		npages = (len(recs) + perPage - 1) / perPage
	}

	// Build every page after the first in reverse, so each page is
	// written already knowing its successor's block number.
	pages := make([]*page.Page, npages)
	blocks := make([]page.BlockNumber, npages)
	for i := npages - 1; i >= 1; i-- {
		blk, p, err := s.allocatePage(countLen + recSize)
		if err != nil {
			return err
		}
		lo := i * perPage
		hi := min(lo+perPage, len(recs))
		fillItemPage(p, l.Codec, recSize, recs[lo:hi])
		if i < npages-1 {
			p.SetNextBlock(blocks[i+1])
		}
		blocks[i] = blk
		pages[i] = p
	}
	for i := 1; i < npages; i++ {
		if _, err := s.WAL.Insert(host.WALRecord{Resource: "segdir", Fork: s.Fork, Block: blocks[i], Payload: pages[i].Bytes()}); err != nil {
			return errs.Wrap(err, errs.CodeIO, "wal-log item-list rewrite tail")
		}
		if err := s.Buf.WritePage(s.Fork, blocks[i], pages[i]); err != nil {
			return err
		}
	}

	headP := page.New()
	fillItemPage(headP, l.Codec, recSize, recs[:min(perPage, len(recs))])
	if npages > 1 {
		headP.SetNextBlock(blocks[1])
	}
	if _, err := s.WAL.Insert(host.WALRecord{Resource: "segdir", Fork: s.Fork, Block: head, Payload: headP.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log item-list rewrite head swap")
	}
	return s.Buf.WritePage(s.Fork, head, headP)
}

func fillItemPage[T any](p *page.Page, codec ItemCodec[T], recSize int, recs []T) {
	buf := itemRecords(p)
	for i, r := range recs {
		off := i * recSize
		copy(buf[off:off+recSize], codec.Encode(r))
	}
	setItemCount(p, len(recs))
}
