// Package merge implements the Merger (spec.md §4.4): selecting a set
// of live segments to combine, streaming their postings together out
// of band, and atomically publishing the replacement under the
// per-index merge lock.
package merge

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/internal/bsdirectory"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/blockstore"
	"github.com/epokhe/bm25am/pkg/errs"
	"github.com/epokhe/bm25am/pkg/segment"
)

// CancelReason names why an in-flight merge stopped early, replacing
// brittle string-matching over an error message (an Open Question
// this module resolves explicitly rather than inheriting).
type CancelReason int

const (
	CancelNone CancelReason = iota
	CancelUserRequest
	CancelRecoveryConflict
	CancelShutdown
)

// Policy picks which live segments to merge together, biased toward
// log-sized tiers and high tombstone ratios (spec.md §4.4's candidate
// selection). Target is an injectable seam so schema.Config's
// target_segment_count can steer it without this package depending on
// schema.
type Policy struct {
	TargetSegmentCount int
	MinMergeSegments   int
}

var DefaultPolicy = Policy{TargetSegmentCount: 8, MinMergeSegments: 2}

// candidate ranks a live segment for merge eligibility: smaller and
// more-deleted segments merge first.
type candidate struct {
	entry        segment.MetaEntry
	tombstoneFrac float64
}

// SelectCandidates picks the next batch of live segments to merge,
// or nil if the live set is already at or below the target count and
// fewer than MinMergeSegments segments have a tombstone ratio of at
// least 20%.
func (p Policy) SelectCandidates(live []segment.MetaEntry) []segment.MetaEntry {
	if len(live) <= p.TargetSegmentCount {
		var bloated []segment.MetaEntry
		for _, e := range live {
			if e.MaxDoc > 0 && float64(e.NumDeletedDocs)/float64(e.MaxDoc) >= 0.2 {
				bloated = append(bloated, e)
			}
		}
		if len(bloated) < p.MinMergeSegments {
			return nil
		}
		return bloated
	}

	cands := make([]candidate, len(live))
	for i, e := range live {
		frac := 0.0
		if e.MaxDoc > 0 {
			frac = float64(e.NumDeletedDocs) / float64(e.MaxDoc)
		}
		cands[i] = candidate{entry: e, tombstoneFrac: frac}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].entry.MaxDoc != cands[j].entry.MaxDoc {
			return cands[i].entry.MaxDoc < cands[j].entry.MaxDoc
		}
		return cands[i].tombstoneFrac > cands[j].tombstoneFrac
	})

	n := len(live) - p.TargetSegmentCount + 1
	if n < p.MinMergeSegments {
		n = p.MinMergeSegments
	}
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]segment.MetaEntry, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].entry
	}
	return out
}

// Merger runs merges for one index, serialized by mu, the per-index
// merge lock. RunOnce holds mu from candidate selection through
// publication, including while postings are streamed together; the
// lock is not released in between, so merges of one index never
// overlap.
type Merger struct {
	log    *zap.Logger
	store  *blockstore.Store
	dir    *segment.Directory
	policy Policy

	mu         sync.Mutex // the merge lock: at most one merge in flight per index
	membership mapset.Set[segment.ID]

	cancel CancelReason
}

// New builds a Merger. It takes no *fsm.FSM: a merge never frees pages
// itself (see RunOnce) — only Vacuum.Cleanup does, once no snapshot can
// still see the superseded segments.
func New(log *zap.Logger, store *blockstore.Store, dir *segment.Directory, policy Policy) *Merger {
	return &Merger{log: log, store: store, dir: dir, policy: policy, membership: mapset.NewSet[segment.ID]()}
}

// Cancel records reason for the next RunOnce to find at its checkpoint
// before streaming starts (spec.md §4.4's cancellation hook). A call
// made while RunOnce is running waits for it to finish, so it stops
// the following merge, not the one in flight.
func (m *Merger) Cancel(reason CancelReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = reason
}

func (m *Merger) cancelled() CancelReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cancel
	m.cancel = CancelNone
	return c
}

// InMergeList reports whether id is currently part of an in-flight
// merge, letting a concurrent insert/vacuum avoid racing the merger
// over the same segment (spec.md §4.4's merge-list membership).
func (m *Merger) InMergeList(id segment.ID) bool {
	return m.membership.Contains(id)
}

// RunOnce selects one batch of candidates and merges them if any are
// found, returning the new segment's id (zero value if nothing ran).
func (m *Merger) RunOnce(txm host.TxID, segments []*invidx.Segment) (segment.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.dir.Scan()
	if err != nil {
		return segment.ID{}, err
	}
	var live []segment.MetaEntry
	for _, e := range all {
		if !e.XMaxSet() {
			live = append(live, e)
		}
	}

	cands := m.policy.SelectCandidates(live)
	if len(cands) == 0 {
		return segment.ID{}, nil
	}

	candIDs := make(map[segment.ID]bool, len(cands))
	for _, c := range cands {
		m.membership.Add(c.SegmentID)
		candIDs[c.SegmentID] = true
	}
	defer func() {
		for _, c := range cands {
			m.membership.Remove(c.SegmentID)
		}
	}()

	var toMerge []*invidx.Segment
	for _, s := range segments {
		if candIDs[s.ID] {
			toMerge = append(toMerge, s)
		}
	}
	if len(toMerge) != len(cands) {
		return segment.ID{}, errs.New(errs.CodeConflict, "candidate segment missing from in-memory set")
	}

	// m.mu is already held here, so the pending reason is read and
	// cleared directly rather than through cancelled().
	reason := m.cancel
	m.cancel = CancelNone
	if reason != CancelNone {
		return segment.ID{}, errs.New(errs.CodeCancelled, "merge cancelled").WithDetail("reason", int(reason))
	}

	newID := segment.NewID()
	built, err := streamMerge(newID, toMerge)
	if err != nil {
		return segment.ID{}, err
	}

	entry, err := invidx.Persist(&bsdirectory.Builder{Store: m.store}, built)
	if err != nil {
		return segment.ID{}, err
	}
	entry.XMin = txm

	if err := m.dir.Supersede(candIDs, txm, entry); err != nil {
		return segment.ID{}, err
	}

	// Superseded segments' pages are NOT freed here: a reader pinned on a
	// snapshot older than txm may still be scanning them (spec.md §3.3,
	// §4.4). They stay linked, marked dead via xmax, until Vacuum.Cleanup
	// confirms no active snapshot predates txm and drains them into the
	// free-space map.
	m.log.Info("merged segments",
		zap.String("new_segment_id", newID.String()),
		zap.Int("input_count", len(cands)),
		zap.Uint32("max_doc", entry.MaxDoc),
	)
	return newID, nil
}

// streamMerge builds a fresh segment by transplanting every input
// segment's postings, fast fields and field-length norms under
// remapped DocIDs, rather than re-tokenizing original text (which the
// index core never retains once flushed) — a posting-list-level
// concatenation in the spirit of spec.md §4.4's "stream-merge",
// simplified to operate per-document instead of merging sorted
// posting lists directly.
func streamMerge(id segment.ID, inputs []*invidx.Segment) (invidx.Built, error) {
	b := invidx.NewBuilder()

	offsets := make([]invidx.DocID, len(inputs))
	var cum invidx.DocID
	for i, seg := range inputs {
		offsets[i] = cum
		for doc := invidx.DocID(0); doc < seg.MaxDoc; doc++ {
			b.AppendRow(seg.RowID(doc), seg.Stored(doc))
		}
		cum += seg.MaxDoc
	}

	for i, seg := range inputs {
		base := offsets[i]

		for _, field := range seg.FastFieldNames() {
			ff := seg.FastField(field)
			for doc := invidx.DocID(0); doc < seg.MaxDoc; doc++ {
				v, ok := ff.Get(doc)
				b.SetFast(field, base+doc, v, !ok)
			}
		}

		for _, field := range seg.TextFieldNames() {
			for doc := invidx.DocID(0); doc < seg.MaxDoc; doc++ {
				if l := seg.FieldLen(field, doc); l > 0 {
					b.SetFieldLen(field, base+doc, uint32(l))
				}
			}
			for _, term := range seg.AllTerms(field) {
				it, _, ok := seg.Terms(field, term)
				if !ok {
					continue
				}
				for it.Next() {
					b.AddPosting(field, term, base+it.Doc(), it.Freq())
				}
			}
		}
	}

	return b.Build(id), nil
}
