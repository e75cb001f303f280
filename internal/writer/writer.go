// Package writer implements the Writer Pipeline (spec.md §4.5): the
// single-writer-per-transaction path that accumulates incoming rows
// in memory and flushes them into a durable segment, either because
// an in-memory budget was crossed or because the owning transaction
// is committing.
package writer

import (
	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/bsdirectory"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/segment"

	"go.uber.org/zap"
)

// Budget caps how large the in-memory batch may grow before a flush
// is forced mid-transaction (spec.md §4.5's "budget-triggered flush").
type Budget struct {
	MaxDocs  int
	MaxBytes int
}

var DefaultBudget = Budget{MaxDocs: 100_000, MaxBytes: 64 << 20}

// Tokenizer turns field text into a term stream. Insert always calls
// it with an empty field name, so every text field of a row goes
// through the same tokenizer; no per-field choice is made here.
type Tokenizer func(field, text string) []string

// Writer owns exactly one transaction's write activity against one
// index (spec.md §5's "single-writer-per-index-per-txn"). It is not
// safe for concurrent use.
type Writer struct {
	log    *zap.Logger
	store  *blockstore.Store
	dir    *segment.Directory
	budget Budget
	tok    Tokenizer

	txid    host.TxID
	current *invidx.Builder
	bytes   int
	flushed []segment.MetaEntry
}

func New(log *zap.Logger, store *blockstore.Store, dir *segment.Directory, budget Budget, tok Tokenizer) *Writer {
	return &Writer{log: log, store: store, dir: dir, budget: budget, tok: tok, current: invidx.NewBuilder()}
}

// Begin associates the writer with the transaction whose writes it
// is about to accumulate. Every segment flushed before Commit carries
// this xmin.
func (w *Writer) Begin(txid host.TxID) {
	w.txid = txid
	w.current = invidx.NewBuilder()
	w.bytes = 0
	w.flushed = nil
}

// Insert adds one row to the in-memory batch, tokenizing text fields
// through Tokenizer, and flushes automatically once Budget is crossed.
func (w *Writer) Insert(rowID host.RowID, stored []byte, fields []invidx.FieldValue) error {
	w.current.AddDocument(rowID, stored, fields, func(text string) []string {
		return w.tok("", text)
	})
	w.bytes += len(stored)
	for _, f := range fields {
		w.bytes += len(f.Text) + 16
	}

	if int(w.current.MaxDoc()) >= w.budget.MaxDocs || w.bytes >= w.budget.MaxBytes {
		return w.flush()
	}
	return nil
}

// flush persists the accumulated batch as a brand-new segment and
// resets the in-memory builder, without publishing it to the segment
// directory yet — publication happens at Commit so a transaction that
// later aborts never exposes its rows (spec.md §5's "readers never
// observe another transaction's uncommitted inserts").
func (w *Writer) flush() error {
	if w.current.MaxDoc() == 0 {
		return nil
	}

	id := segment.NewID()
	built := w.current.Build(id)

	entry, err := invidx.Persist(&bsdirectory.Builder{Store: w.store}, built)
	if err != nil {
		return errs.Wrap(err, errs.CodeIO, "flush segment")
	}
	entry.XMin = w.txid

	w.flushed = append(w.flushed, entry)
	w.current = invidx.NewBuilder()
	w.bytes = 0

	w.log.Debug("flushed segment", zap.String("segment_id", id.String()), zap.Uint32("max_doc", entry.MaxDoc))
	return nil
}

// Commit flushes any remaining in-memory rows, then publishes every
// segment this transaction produced to the segment directory in one
// pass (spec.md §4.5 step "commit: flush, then append to directory").
// This resolves the writer-cache lifecycle open question: commit
// flushes and drops the in-memory state; nothing survives commit that
// isn't already durable through the segment directory.
func (w *Writer) Commit() ([]segment.ID, error) {
	if err := w.flush(); err != nil {
		return nil, err
	}
	ids := make([]segment.ID, 0, len(w.flushed))
	for _, e := range w.flushed {
		if err := w.dir.Append(e); err != nil {
			return nil, errs.Wrap(err, errs.CodeIO, "publish flushed segment")
		}
		ids = append(ids, e.SegmentID)
	}
	w.flushed = nil
	w.current = invidx.NewBuilder()
	return ids, nil
}

// Abort drops every in-memory and already-flushed-but-unpublished
// segment this transaction produced. Flushed segment files remain on
// disk as orphaned, unreferenced LinkedBytesLists — nothing in the
// segment directory ever points to them, so they are invisible to any
// reader. Abort does not return their pages to the free-space map, and
// nothing else does either: vacuum's Cleanup frees only segments the
// directory lists.
func (w *Writer) Abort() {
	w.current = invidx.NewBuilder()
	w.flushed = nil
	w.bytes = 0
}
