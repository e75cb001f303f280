package blockstore

import (
	"bytes"
	"testing"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/hosttest"
	"github.com/epokhe/bm25am/pkg/page"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	h := hosttest.New()
	return &Store{Buf: h.Buf, WAL: h.WAL, Fork: host.MainFork}
}

func TestBytesListAppendAndReadRoundTrip(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}

	want := []byte("the quick brown fox jumps over the lazy dog")
	if err := s.Append(head, want); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Read(head, 0, len(want))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read mismatch: got %q want %q", got, want)
	}
}

func TestBytesListAppendSpillsAcrossPages(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}

	want := bytes.Repeat([]byte{'a'}, page.PayloadLen*3)
	if err := s.Append(head, want); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Read(head, 0, len(want))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read mismatch across pages: got %d bytes want %d", len(got), len(want))
	}

	n, err := s.Len(head)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != len(want) {
		t.Fatalf("expected len %d, got %d", len(want), n)
	}
}

func TestBytesListReadPastEndReturnsNotFound(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	if err := s.Append(head, []byte("short")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Read(head, 0, 1000); err == nil {
		t.Fatalf("expected error reading past end of list")
	}
}

func TestBytesListMultipleAppendsConcatenate(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	if err := s.Append(head, []byte("hello ")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := s.Append(head, []byte("world")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	got, err := s.Read(head, 0, len("hello world"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("expected concatenated reads, got %q", got)
	}
}

// fixedCodec is a trivial ItemCodec[uint32] fixture for exercising
// ItemList independent of any real record shape.
type fixedCodec struct{}

func (fixedCodec) Size() int { return 4 }
func (fixedCodec) Encode(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func (fixedCodec) Decode(buf []byte) (uint32, error) {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func TestItemListAppendAndScan(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	l := &ItemList[uint32]{Store: s, Codec: fixedCodec{}}

	for _, v := range []uint32{1, 2, 3} {
		if err := l.Append(head, v); err != nil {
			t.Fatalf("append %d: %v", v, err)
		}
	}

	got, err := l.Scan(head)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
}

func TestItemListAppendSpillsAcrossPages(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	l := &ItemList[uint32]{Store: s, Codec: fixedCodec{}}

	perPage := l.perPage()
	total := perPage*2 + 5
	for i := 0; i < total; i++ {
		if err := l.Append(head, uint32(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := l.Scan(head)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != total {
		t.Fatalf("expected %d records across pages, got %d", total, len(got))
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("record %d out of order: got %d", i, v)
		}
	}
}

func TestItemListRewriteReplacesContents(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	l := &ItemList[uint32]{Store: s, Codec: fixedCodec{}}

	for _, v := range []uint32{1, 2, 3} {
		if err := l.Append(head, v); err != nil {
			t.Fatalf("append %d: %v", v, err)
		}
	}

	if err := l.Rewrite(head, []uint32{9, 8}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, err := l.Scan(head)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || got[0] != 9 || got[1] != 8 {
		t.Fatalf("expected [9 8] after rewrite, got %v", got)
	}
}

func TestFreeableBlocksWalksWholeChain(t *testing.T) {
	s := newStore(t)
	head, err := s.NewList()
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	if err := s.Append(head, bytes.Repeat([]byte{'x'}, page.PayloadLen*2)); err != nil {
		t.Fatalf("append: %v", err)
	}

	blocks, err := s.FreeableBlocks(head)
	if err != nil {
		t.Fatalf("freeable blocks: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 chained blocks (header+2 spill pages), got %d", len(blocks))
	}
	if blocks[0] != head {
		t.Fatalf("expected first block to be head, got %d", blocks[0])
	}
}
