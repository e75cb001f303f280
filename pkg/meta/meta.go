// Package meta implements the Metadata Page (spec.md §4.2): the
// process-wide anchor at a fixed block number carrying pointers to
// every other root structure in the index.
package meta

import (
	"encoding/binary"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

// Block is the fixed block number of the Metadata Page.
const Block page.BlockNumber = 0

const magic uint32 = 0xB3255A11 // "bm25" + arbitrary salt
const version uint32 = 1

// Page mirrors spec.md §6.3's Metadata Page layout exactly.
type Page struct {
	Magic           uint32
	Version         uint32
	SegmentMetaHead page.BlockNumber
	GarbageHead     page.BlockNumber
	MergeListHead   page.BlockNumber
	VacuumListHead  page.BlockNumber
	FSMRoot         page.BlockNumber
	SchemaHead      page.BlockNumber
	SettingsHead    page.BlockNumber
}

const encodedLen = 4*2 + 4*7

func (m Page) encode() []byte {
	buf := make([]byte, encodedLen)
	binary.LittleEndian.PutUint32(buf[0:4], m.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], m.Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.SegmentMetaHead))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.GarbageHead))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(m.MergeListHead))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(m.VacuumListHead))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(m.FSMRoot))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(m.SchemaHead))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(m.SettingsHead))
	return buf
}

func decode(buf []byte) Page {
	return Page{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		Version:         binary.LittleEndian.Uint32(buf[4:8]),
		SegmentMetaHead: page.BlockNumber(binary.LittleEndian.Uint32(buf[8:12])),
		GarbageHead:     page.BlockNumber(binary.LittleEndian.Uint32(buf[12:16])),
		MergeListHead:   page.BlockNumber(binary.LittleEndian.Uint32(buf[16:20])),
		VacuumListHead:  page.BlockNumber(binary.LittleEndian.Uint32(buf[20:24])),
		FSMRoot:         page.BlockNumber(binary.LittleEndian.Uint32(buf[24:28])),
		SchemaHead:      page.BlockNumber(binary.LittleEndian.Uint32(buf[28:32])),
		SettingsHead:    page.BlockNumber(binary.LittleEndian.Uint32(buf[32:36])),
	}
}

// Store reads and writes the Metadata Page, WAL-logging every mutation.
type Store struct {
	Buf  host.BufferManager
	WAL  host.WAL
	Fork host.ForkID
}

// Init allocates block 0 as the Metadata Page with the given roots.
// Callers must call this exactly once, before any other root exists.
func (s *Store) Init(p Page) error {
	p.Magic = magic
	p.Version = version

	blk, raw, err := s.Buf.Extend(s.Fork)
	if err != nil {
		return errs.Wrap(err, errs.CodeIO, "extend fork for metadata page")
	}
	if blk != Block {
		return errs.New(errs.CodeInternal, "metadata page must be the first page of the fork").WithBlock(uint32(blk))
	}
	copy(raw.Payload(), p.encode())

	if _, err := s.WAL.Insert(host.WALRecord{Resource: "meta", Fork: s.Fork, Block: Block, Payload: raw.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log metadata init")
	}
	return s.Buf.WritePage(s.Fork, Block, raw)
}

// Load reads and validates the Metadata Page.
func (s *Store) Load() (Page, error) {
	raw, err := s.Buf.ReadPage(s.Fork, Block)
	if err != nil {
		return Page{}, errs.Wrap(err, errs.CodeIO, "read metadata page")
	}
	m := decode(raw.Payload()[:encodedLen])
	if m.Magic != magic {
		return Page{}, errs.New(errs.CodeCorrupted, "bad metadata page magic")
	}
	return m, nil
}

// Save WAL-logs and persists an updated Metadata Page.
func (s *Store) Save(m Page) error {
	m.Magic = magic
	m.Version = version

	raw, err := s.Buf.ReadPage(s.Fork, Block)
	if err != nil {
		return errs.Wrap(err, errs.CodeIO, "read metadata page")
	}
	copy(raw.Payload(), m.encode())

	if _, err := s.WAL.Insert(host.WALRecord{Resource: "meta", Fork: s.Fork, Block: Block, Payload: raw.Bytes()}); err != nil {
		return errs.Wrap(err, errs.CodeIO, "wal-log metadata update")
	}
	return s.Buf.WritePage(s.Fork, Block, raw)
}
