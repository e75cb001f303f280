package blockstore

import (
	"encoding/binary"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

// bytesUsedLen is the per-page "bytes used" counter prefixing the
// payload of every LinkedBytesList page (spec.md §6.3's "payload
// (bytes used counter in header)").
const bytesUsedLen = 2

const bytesPageCapacity = page.PayloadLen - bytesUsedLen

func pageUsed(p *page.Page) int {
	return int(binary.LittleEndian.Uint16(p.Payload()[:bytesUsedLen]))
}

func setPageUsed(p *page.Page, n int) {
	binary.LittleEndian.PutUint16(p.Payload()[:bytesUsedLen], uint16(n))
}

func pageData(p *page.Page) []byte {
	return p.Payload()[bytesUsedLen:]
}

// Append writes data to the tail of the list rooted at head, spilling
// into newly linked pages as needed (spec.md §4.1's append).
func (s *Store) Append(head page.BlockNumber, data []byte) error {
	tailBlk, tailP, err := s.tail(head)
	if err != nil {
		return err
	}

	for len(data) > 0 {
		used := pageUsed(tailP)
		free := bytesPageCapacity - used
		if free == 0 {
			newBlk, newP, err := s.allocatePage(bytesUsedLen + 1)
			if err != nil {
				return err
			}
			if err := s.linkPage(tailBlk, tailP, newBlk, newP); err != nil {
				return err
			}
			tailBlk, tailP = newBlk, newP
			used = 0
			free = bytesPageCapacity
		}

		n := min(free, len(data))
		copy(pageData(tailP)[used:used+n], data[:n])
		setPageUsed(tailP, used+n)
		data = data[n:]

		if _, err := s.WAL.Insert(host.WALRecord{Resource: "data", Fork: s.Fork, Block: tailBlk, Payload: tailP.Bytes()}); err != nil {
			return errs.Wrap(err, errs.CodeIO, "wal-log bytes-list append")
		}
		if err := s.Buf.WritePage(s.Fork, tailBlk, tailP); err != nil {
			return errs.Wrap(err, errs.CodeIO, "write bytes-list tail page")
		}
	}
	return nil
}

// Read copies length bytes starting at offset (both relative to the
// logical stream, not any one page) into a fresh slice. It returns
// errs.CodeNotFound if the range runs past the end of the list.
func (s *Store) Read(head page.BlockNumber, offset, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	remainingSkip := offset
	remainingRead := length

	blk := head
	for remainingRead > 0 {
		p, err := s.Buf.ReadPage(s.Fork, blk)
		if err != nil {
			return nil, err
		}
		used := pageUsed(p)
		data := pageData(p)[:used]

		if remainingSkip >= used {
			remainingSkip -= used
		} else {
			avail := data[remainingSkip:]
			remainingSkip = 0
			n := min(len(avail), remainingRead)
			out = append(out, avail[:n]...)
			remainingRead -= n
		}

		if remainingRead == 0 {
			return out, nil
		}
		if p.NextBlock() == page.Invalid {
			return nil, errs.New(errs.CodeNotFound, "read past end of linked bytes list")
		}
		blk = p.NextBlock()
	}
	return out, nil
}

// Len returns the total number of payload bytes stored in the list.
func (s *Store) Len(head page.BlockNumber) (int, error) {
	total := 0
	blk := head
	for {
		p, err := s.Buf.ReadPage(s.Fork, blk)
		if err != nil {
			return 0, err
		}
		total += pageUsed(p)
		if p.NextBlock() == page.Invalid {
			return total, nil
		}
		blk = p.NextBlock()
	}
}
