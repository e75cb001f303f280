// Package bsdirectory implements invidx.Directory on top of Block
// Storage (spec.md §4.7.1): each segment file is one LinkedBytesList,
// addressed by the segment.MetaEntry.Files/Delete FileEntry recorded
// in the segment directory.
package bsdirectory

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/page"
	"github.com/epokhe/bm25am/pkg/segment"
)

// Snapshot is a read-only Directory over a fixed set of already-
// persisted segments, safe to share across concurrent readers — it
// never mutates Block Storage.
type Snapshot struct {
	store   *blockstore.Store
	entries map[segment.ID]segment.MetaEntry
}

// NewSnapshot builds a read-only directory over entries, typically
// the MVCC-visible subset a query resolved (pkg/mvcc.Resolve).
func NewSnapshot(store *blockstore.Store, entries []segment.MetaEntry) *Snapshot {
	m := make(map[segment.ID]segment.MetaEntry, len(entries))
	for _, e := range entries {
		m[e.SegmentID] = e
	}
	return &Snapshot{store: store, entries: m}
}

func (s *Snapshot) fileEntry(id segment.ID, role string) (segment.FileEntry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return segment.FileEntry{}, errs.New(errs.CodeNotFound, "segment not in snapshot").WithSegment(id.String())
	}
	if role == "delete" {
		return entry.Delete, nil
	}
	slot, ok := invidx.RoleSlot(role)
	if !ok {
		return segment.FileEntry{}, errs.New(errs.CodeInvalidInput, "unknown directory role").WithDetail("role", role)
	}
	return entry.Files[slot], nil
}

func (s *Snapshot) GetFileHandle(id segment.ID, role string) (invidx.FileHandle, error) {
	fe, err := s.fileEntry(id, role)
	if err != nil {
		return nil, err
	}
	if !fe.IsSet() {
		return nil, errs.New(errs.CodeNotFound, "segment file not present").WithDetail("role", role)
	}
	return &fileHandle{store: s.store, head: fe.StartingBlock, length: int(fe.TotalBytes)}, nil
}

func (s *Snapshot) AtomicRead(id segment.ID, role string) ([]byte, error) {
	fe, err := s.fileEntry(id, role)
	if err != nil {
		return nil, err
	}
	if !fe.IsSet() {
		return nil, nil
	}
	return s.store.Read(fe.StartingBlock, 0, int(fe.TotalBytes))
}

func (s *Snapshot) WriteFile(segment.ID, string, []byte) (segment.FileEntry, error) {
	return segment.FileEntry{}, errs.New(errs.CodeInvalidInput, "snapshot directory is read-only")
}

func (s *Snapshot) ListManagedFiles(id segment.ID) ([]string, error) {
	entry, ok := s.entries[id]
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "segment not in snapshot").WithSegment(id.String())
	}
	var roles []string
	for _, role := range []string{invidx.RoleTerms, invidx.RolePostings, invidx.RoleFastFields, invidx.RoleFieldNorms, invidx.RoleStore} {
		slot, _ := invidx.RoleSlot(role)
		if entry.Files[slot].IsSet() {
			roles = append(roles, role)
		}
	}
	if entry.HasDeleteFile() {
		roles = append(roles, "delete")
	}
	return roles, nil
}

// fileHandle supports random-access reads into one LinkedBytesList.
type fileHandle struct {
	store  *blockstore.Store
	head   page.BlockNumber
	length int
}

func (f *fileHandle) ReadAt(off, length int) ([]byte, error) {
	return f.store.Read(f.head, off, length)
}

func (f *fileHandle) Len() int { return f.length }

// Builder is the write-side Directory: every WriteFile call allocates
// a fresh LinkedBytesList and appends data to it in full (spec.md
// §4.5's "segment files are written once, in full, before the segment
// is published" — there is no partial/streaming write path here).
type Builder struct {
	Store *blockstore.Store
}

func (b *Builder) WriteFile(_ segment.ID, _ string, data []byte) (segment.FileEntry, error) {
	head, err := b.Store.NewList()
	if err != nil {
		return segment.FileEntry{}, err
	}
	if err := b.Store.Append(head, data); err != nil {
		return segment.FileEntry{}, err
	}
	return segment.FileEntry{StartingBlock: head, TotalBytes: uint64(len(data))}, nil
}

func (b *Builder) GetFileHandle(segment.ID, string) (invidx.FileHandle, error) {
	return nil, errs.New(errs.CodeInvalidInput, "builder directory is write-only")
}

func (b *Builder) AtomicRead(segment.ID, string) ([]byte, error) {
	return nil, errs.New(errs.CodeInvalidInput, "builder directory is write-only")
}

func (b *Builder) ListManagedFiles(segment.ID) ([]string, error) {
	return nil, errs.New(errs.CodeInvalidInput, "builder directory does not track files by segment")
}

// DeleteLoader implements mvcc.DeleteBitmapLoader by reading a
// segment's Delete file straight out of Block Storage, independent of
// whichever invidx.Directory view a query opened its segments through.
type DeleteLoader struct {
	Store *blockstore.Store
}

func (l *DeleteLoader) LoadDeletes(entry segment.MetaEntry) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if !entry.HasDeleteFile() {
		return bm, nil
	}
	buf, err := l.Store.Read(entry.Delete.StartingBlock, 0, int(entry.Delete.TotalBytes))
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeIO, "read delete bitmap")
	}
	if _, err := bm.FromBuffer(buf); err != nil {
		return nil, errs.Wrap(err, errs.CodeInternal, "decode delete bitmap")
	}
	return bm, nil
}
