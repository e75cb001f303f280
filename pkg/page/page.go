// Package page implements the fixed-size host page layout that every
// on-disk structure in this module is built on top of: an 8 KiB
// buffer with a payload region and a trailing special area carrying
// the linked-list next-block pointer (spec.md §4.1, §6.3).
package page

import "encoding/binary"

// Size is the host's page size. PostgreSQL's default is 8 KiB; the
// core treats it as a constant rather than a per-relation property
// because no tested property depends on varying it.
const Size = 8192

// specialLen is the trailing footer: next_block(u32) + flags(u32).
const specialLen = 8

// PayloadLen is the number of bytes available to callers per page.
const PayloadLen = Size - specialLen

// Invalid marks "no next block" / "end of list", per spec.md §3.1.
const Invalid BlockNumber = 0xFFFFFFFF

// BlockNumber identifies a page within a fork.
type BlockNumber uint32

// Flag bits stored in the special area.
type Flag uint32

const (
	FlagNone  Flag = 0
	FlagHead  Flag = 1 << 0 // first page of a LinkedBytesList/LinkedItemList
	FlagStale Flag = 1 << 1 // page content is superseded; awaiting FSM reclaim
)

// Page is one in-memory copy of a fixed-size host page. Mutating it
// does not persist anything; callers go through a host.BufferManager
// to read/write pages and through host.WAL to make the mutation
// durable, per spec.md §4.1's "Concurrency" and "Failure" notes.
type Page struct {
	buf [Size]byte
}

// New returns a zeroed page with next_block = Invalid.
func New() *Page {
	p := &Page{}
	p.SetNextBlock(Invalid)
	return p
}

// FromBytes copies an existing Size-byte buffer into a new Page, so later
// writes to either do not affect the other (used when a host.BufferManager
// hands back a page image).
func FromBytes(b []byte) *Page {
	p := &Page{}
	copy(p.buf[:], b)
	return p
}

func (p *Page) Bytes() []byte { return p.buf[:] }

// Payload returns the writable region preceding the special area.
func (p *Page) Payload() []byte { return p.buf[:PayloadLen] }

func (p *Page) special() []byte { return p.buf[PayloadLen:] }

func (p *Page) NextBlock() BlockNumber {
	return BlockNumber(binary.LittleEndian.Uint32(p.special()[0:4]))
}

func (p *Page) SetNextBlock(b BlockNumber) {
	binary.LittleEndian.PutUint32(p.special()[0:4], uint32(b))
}

func (p *Page) Flags() Flag {
	return Flag(binary.LittleEndian.Uint32(p.special()[4:8]))
}

func (p *Page) SetFlags(f Flag) {
	binary.LittleEndian.PutUint32(p.special()[4:8], uint32(f))
}

func (p *Page) HasFlag(f Flag) bool { return p.Flags()&f != 0 }

func (p *Page) AddFlag(f Flag) { p.SetFlags(p.Flags() | f) }
