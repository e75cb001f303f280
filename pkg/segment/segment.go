// Package segment implements the Segment Directory (spec.md §3.2,
// §4.4, §4.6): a LinkedItemList of SegmentMetaEntry records, one per
// live segment, tagged with the MVCC xmin/xmax pair that governs
// which snapshots may see it.
package segment

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
)

// ID is a segment's opaque 128-bit identifier (spec.md §3.2).
type ID [16]byte

func NewID() ID {
	return ID(uuid.New())
}

func (id ID) String() string { return uuid.UUID(id).String() }

// File slots within a SegmentMetaEntry's fixed file_entries array
// (spec.md §3.2's segment file set).
const (
	FilePostings = iota
	FilePositions
	FileFastFields
	FileFieldNorms
	FileTerms
	FileStore
	FileTempStore
	numFileSlots
)

// FileEntry addresses one LinkedBytesList: a starting block plus the
// logical byte length written so far (spec.md §3.1).
type FileEntry struct {
	StartingBlock page.BlockNumber
	TotalBytes    uint64
}

func (f FileEntry) IsSet() bool { return f.StartingBlock != page.Invalid }

// UnsetFileEntry is the zero value every FileEntry-typed field must be
// explicitly initialized to when a file genuinely doesn't exist yet —
// page.BlockNumber's own zero value (0) is a real, valid block number,
// so a plain zero-value FileEntry would read back as "set" via IsSet().
var UnsetFileEntry = FileEntry{StartingBlock: page.Invalid}

// MetaEntry is one record of the segment directory (spec.md §3.2).
type MetaEntry struct {
	SegmentID      ID
	MaxDoc         uint32
	XMin           host.TxID
	XMax           host.TxID // 0 == unset, i.e. segment is live
	Files          [numFileSlots]FileEntry
	Delete         FileEntry // unset (StartingBlock == Invalid) means no tombstones yet
	NumDeletedDocs uint32
}

func (e MetaEntry) XMaxSet() bool { return e.XMax != 0 }

func (e MetaEntry) HasDeleteFile() bool { return e.Delete.IsSet() }

// recordVersion lets future fields be appended at the tail without
// breaking readers of older directories (spec.md §6.3).
const recordVersion = 1

// csLen is an xxh3 checksum of everything following it, the same
// checksum-at-head layout the teacher's record format uses (spec.md
// §6.3's checksum note).
const csLen = 8

const bodyLen = 1 + 16 + 4 + 4 + 4 + numFileSlots*12 + 12 + 4
const recordLen = csLen + bodyLen

// ErrChecksumMismatch means a directory record's stored xxh3 digest
// doesn't match its body, the same corruption signal the teacher's
// record format raises on a torn or bit-flipped read.
var ErrChecksumMismatch = errs.New(errs.CodeCorrupted, "segment directory record checksum mismatch")

// Codec implements blockstore.ItemCodec[MetaEntry].
type Codec struct{}

func (Codec) Size() int { return recordLen }

func (Codec) Encode(e MetaEntry) []byte {
	buf := make([]byte, recordLen)
	i := csLen
	buf[i] = recordVersion
	i++
	copy(buf[i:i+16], e.SegmentID[:])
	i += 16
	binary.LittleEndian.PutUint32(buf[i:i+4], e.MaxDoc)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:i+4], uint32(e.XMin))
	i += 4
	binary.LittleEndian.PutUint32(buf[i:i+4], uint32(e.XMax))
	i += 4
	for _, fe := range e.Files {
		binary.LittleEndian.PutUint32(buf[i:i+4], uint32(fe.StartingBlock))
		i += 4
		binary.LittleEndian.PutUint64(buf[i:i+8], fe.TotalBytes)
		i += 8
	}
	binary.LittleEndian.PutUint32(buf[i:i+4], uint32(e.Delete.StartingBlock))
	i += 4
	binary.LittleEndian.PutUint64(buf[i:i+8], e.Delete.TotalBytes)
	i += 8
	binary.LittleEndian.PutUint32(buf[i:i+4], e.NumDeletedDocs)
	i += 4

	binary.LittleEndian.PutUint64(buf[:csLen], xxh3.Hash(buf[csLen:]))
	return buf
}

func (Codec) Decode(buf []byte) (MetaEntry, error) {
	var e MetaEntry
	checksum := binary.LittleEndian.Uint64(buf[:csLen])
	if computed := xxh3.Hash(buf[csLen:]); checksum != computed {
		return e, ErrChecksumMismatch
	}

	i := csLen + 1 // skip checksum and version byte; only one record shape exists so far
	copy(e.SegmentID[:], buf[i:i+16])
	i += 16
	e.MaxDoc = binary.LittleEndian.Uint32(buf[i : i+4])
	i += 4
	e.XMin = host.TxID(binary.LittleEndian.Uint32(buf[i : i+4]))
	i += 4
	e.XMax = host.TxID(binary.LittleEndian.Uint32(buf[i : i+4]))
	i += 4
	for f := 0; f < numFileSlots; f++ {
		e.Files[f] = FileEntry{
			StartingBlock: page.BlockNumber(binary.LittleEndian.Uint32(buf[i : i+4])),
			TotalBytes:    binary.LittleEndian.Uint64(buf[i+4 : i+12]),
		}
		i += 12
	}
	e.Delete = FileEntry{
		StartingBlock: page.BlockNumber(binary.LittleEndian.Uint32(buf[i : i+4])),
		TotalBytes:    binary.LittleEndian.Uint64(buf[i+4 : i+12]),
	}
	i += 12
	e.NumDeletedDocs = binary.LittleEndian.Uint32(buf[i : i+4])
	return e, nil
}

// Directory is the segment directory: a single LinkedItemList rooted
// at Head. A segment appears only after all its files are durably
// written (spec.md §3.4 invariant 3) — callers build the MetaEntry
// fully before calling Append.
type Directory struct {
	Items *blockstore.ItemList[MetaEntry]
	Head  page.BlockNumber
}

func Open(store *blockstore.Store, head page.BlockNumber) *Directory {
	return &Directory{Items: &blockstore.ItemList[MetaEntry]{Store: store, Codec: Codec{}}, Head: head}
}

// New allocates a fresh, empty directory.
func New(store *blockstore.Store) (*Directory, error) {
	head, err := store.NewList()
	if err != nil {
		return nil, err
	}
	return Open(store, head), nil
}

// Append publishes a brand-new live segment (spec.md §3.3).
func (d *Directory) Append(e MetaEntry) error {
	return d.Items.Append(d.Head, e)
}

// Scan returns every directory record, live and superseded alike.
func (d *Directory) Scan() ([]MetaEntry, error) {
	return d.Items.Scan(d.Head)
}

// Supersede atomically marks every entry whose SegmentID is in
// supersededIDs with xmax = txm and appends newEntry with xmin = txm,
// implementing the merger's publish step (spec.md §4.4 step 4). The
// whole directory is rewritten in place so no reader ever observes a
// state with the old entries gone but the new one absent, or vice
// versa, at the page granularity blockstore.ItemList.Rewrite commits at.
func (d *Directory) Supersede(supersededIDs map[ID]bool, txm host.TxID, newEntry MetaEntry) error {
	all, err := d.Items.Scan(d.Head)
	if err != nil {
		return err
	}
	for i, e := range all {
		if supersededIDs[e.SegmentID] && !e.XMaxSet() {
			all[i].XMax = txm
		}
	}
	all = append(all, newEntry)
	return d.Items.Rewrite(d.Head, all)
}

// ApplyDeletes rewrites the Delete file pointer of one segment's
// entry in place, used by vacuum (spec.md §4.3 step 3).
func (d *Directory) ApplyDeletes(id ID, delete FileEntry, numDeleted uint32) error {
	all, err := d.Items.Scan(d.Head)
	if err != nil {
		return err
	}
	for i, e := range all {
		if e.SegmentID == id {
			all[i].Delete = delete
			all[i].NumDeletedDocs = numDeleted
		}
	}
	return d.Items.Rewrite(d.Head, all)
}
