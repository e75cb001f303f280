package writer

import (
	"testing"

	"go.uber.org/zap"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/hosttest"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/segment"
)

func newWriter(t *testing.T, budget Budget) (*Writer, *segment.Directory) {
	t.Helper()
	h := hosttest.New()
	store := &blockstore.Store{Buf: h.Buf, WAL: h.WAL, Fork: host.MainFork}
	dir, err := segment.New(store)
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}
	tok := func(field, text string) []string { return []string{text} }
	w := New(zap.NewNop(), store, dir, budget, tok)
	return w, dir
}

func textField(name, text string) invidx.FieldValue {
	return invidx.FieldValue{Name: name, Type: invidx.FieldText, Text: text}
}

func TestCommitPublishesFlushedSegment(t *testing.T) {
	w, dir := newWriter(t, DefaultBudget)
	w.Begin(7)
	if err := w.Insert(1, []byte("row one"), []invidx.FieldValue{textField("body", "hello world")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := w.Insert(2, []byte("row two"), []invidx.FieldValue{textField("body", "goodbye world")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ids, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one flushed segment, got %d", len(ids))
	}

	all, err := dir.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one published entry, got %d", len(all))
	}
	if all[0].XMin != 7 {
		t.Fatalf("expected xmin 7, got %d", all[0].XMin)
	}
	if all[0].MaxDoc != 2 {
		t.Fatalf("expected 2 docs in published segment, got %d", all[0].MaxDoc)
	}
}

func TestCommitWithNoInsertsPublishesNothing(t *testing.T) {
	w, dir := newWriter(t, DefaultBudget)
	w.Begin(1)

	ids, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no flushed segments, got %d", len(ids))
	}
	all, err := dir.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty directory, got %d entries", len(all))
	}
}

func TestBudgetTriggeredFlushProducesMultipleSegments(t *testing.T) {
	w, dir := newWriter(t, Budget{MaxDocs: 1, MaxBytes: 1 << 30})
	w.Begin(3)

	for i := 0; i < 3; i++ {
		if err := w.Insert(host.RowID(i), []byte("row"), []invidx.FieldValue{textField("body", "text")}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	if len(w.flushed) != 3 {
		t.Fatalf("expected 3 mid-transaction flushes, got %d", len(w.flushed))
	}

	ids, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 published segments, got %d", len(ids))
	}

	all, err := dir.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 directory entries, got %d", len(all))
	}
	for _, e := range all {
		if e.XMin != 3 {
			t.Fatalf("expected every entry to carry xmin 3, got %d", e.XMin)
		}
	}
}

func TestAbortDropsFlushedSegmentsUnpublished(t *testing.T) {
	w, dir := newWriter(t, Budget{MaxDocs: 1, MaxBytes: 1 << 30})
	w.Begin(9)

	if err := w.Insert(1, []byte("row"), []invidx.FieldValue{textField("body", "text")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(w.flushed) != 1 {
		t.Fatalf("expected a mid-transaction flush before abort, got %d", len(w.flushed))
	}

	w.Abort()

	all, err := dir.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("abort should leave the directory empty, got %d entries", len(all))
	}

	ids, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit after abort: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("commit after abort should publish nothing, got %d", len(ids))
	}
}

func TestBeginResetsPriorTransactionState(t *testing.T) {
	w, _ := newWriter(t, DefaultBudget)
	w.Begin(1)
	if err := w.Insert(1, []byte("row"), []invidx.FieldValue{textField("body", "text")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	w.Begin(2)
	if w.current.MaxDoc() != 0 {
		t.Fatalf("expected a fresh builder after Begin, got %d docs", w.current.MaxDoc())
	}
	if len(w.flushed) != 0 {
		t.Fatalf("expected no carried-over flushed entries after Begin, got %d", len(w.flushed))
	}
}
