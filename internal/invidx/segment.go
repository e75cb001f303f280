package invidx

import (
	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/segment"
)

// Segment is one segment's fully materialized, read-only index
// content (spec.md §4.7): term dictionaries and postings per text
// field, fast fields, field-length norms, and the document store.
// Segments are immutable once built; a merge produces a brand-new one.
type Segment struct {
	ID     segment.ID
	MaxDoc uint32

	termDicts  map[string]*TermDict
	postings   []byte // shared blob; term dict offsets index into this
	fastFields map[string]*FastField
	fieldNorms map[string][]uint32
	store      [][]byte

	fieldStats map[string]fieldStats
}

// MaxDocs and RowIDOf adapt Segment to vacuum.SegmentReader, letting
// the vacuum package rebuild delete bitmaps without importing invidx's
// full API.
func (s *Segment) MaxDocs() uint32          { return s.MaxDoc }
func (s *Segment) RowIDOf(doc uint32) uint64 { return uint64(s.RowID(doc)) }

// RowID returns the host row identity of doc, via the reserved
// "_rowid" fast field every segment carries.
func (s *Segment) RowID(doc DocID) host.RowID {
	v, _ := s.fastFields[rowIDFieldName].Get(doc)
	return host.RowID(v)
}

// Stored returns doc's opaque stored-field blob (spec.md's document
// store, used to reconstruct values execscan's callers didn't index
// as fast fields).
func (s *Segment) Stored(doc DocID) []byte {
	if int(doc) >= len(s.store) {
		return nil
	}
	return s.store[doc]
}

// FastField returns field's column, or nil if the segment never saw it.
func (s *Segment) FastField(field string) *FastField {
	return s.fastFields[field]
}

// FastFieldNames lists every fast field this segment carries,
// including the reserved "_rowid" column.
func (s *Segment) FastFieldNames() []string {
	names := make([]string, 0, len(s.fastFields))
	for name := range s.fastFields {
		names = append(names, name)
	}
	return names
}

// TextFieldNames lists every field with a term dictionary.
func (s *Segment) TextFieldNames() []string {
	names := make([]string, 0, len(s.termDicts))
	for name := range s.termDicts {
		names = append(names, name)
	}
	return names
}

// Scorer builds a BM25 scorer calibrated to field's corpus statistics
// within this segment (spec.md §4.7's per-segment BM25 scoring —
// scores are never normalized across segments, matching tantivy).
func (s *Segment) Scorer(field string) Scorer {
	st := s.fieldStats[field]
	return Scorer{K1: DefaultK1, B: DefaultB, DocCount: st.docCount, AvgDocLen: st.avgLen}
}

// FieldLen returns doc's term count in field, used as BM25's docLen.
func (s *Segment) FieldLen(field string, doc DocID) float64 {
	lens := s.fieldNorms[field]
	if int(doc) >= len(lens) {
		return 0
	}
	return float64(lens[doc])
}

// Terms exposes field's postings iterator for term, or ok=false when
// the term never occurs in this segment.
func (s *Segment) Terms(field, term string) (it *PostingsIterator, docFreq uint32, ok bool) {
	dict := s.termDicts[field]
	if dict == nil {
		return nil, 0, false
	}
	off, length, df, ok := dict.Lookup(term)
	if !ok {
		return nil, 0, false
	}
	return NewPostingsIterator(s.postings[off : off+length]), df, true
}

// AllTerms exposes field's full term set, for regex/wildcard/fuzzy
// query expansion over the term dictionary.
func (s *Segment) AllTerms(field string) []string {
	dict := s.termDicts[field]
	if dict == nil {
		return nil
	}
	return dict.Terms()
}

// OpenSegment reads a segment's persisted files back into memory
// through dir (spec.md §4.7.1's reader path).
func OpenSegment(dir Directory, id segment.ID, maxDoc uint32) (*Segment, error) {
	termsBuf, err := dir.AtomicRead(id, RoleTerms)
	if err != nil {
		return nil, err
	}
	postingsBuf, err := dir.AtomicRead(id, RolePostings)
	if err != nil {
		return nil, err
	}
	fastBuf, err := dir.AtomicRead(id, RoleFastFields)
	if err != nil {
		return nil, err
	}
	normsBuf, err := dir.AtomicRead(id, RoleFieldNorms)
	if err != nil {
		return nil, err
	}
	storeBuf, err := dir.AtomicRead(id, RoleStore)
	if err != nil {
		return nil, err
	}

	docLens := decodeFieldNorms(normsBuf)
	stats := make(map[string]fieldStats, len(docLens))
	for field, lens := range docLens {
		var total uint64
		var count uint32
		for _, l := range lens {
			if l > 0 {
				total += uint64(l)
				count++
			}
		}
		avg := 0.0
		if count > 0 {
			avg = float64(total) / float64(count)
		}
		stats[field] = fieldStats{docCount: count, avgLen: avg}
	}

	return &Segment{
		ID:         id,
		MaxDoc:     maxDoc,
		termDicts:  decodeTermsFile(termsBuf),
		postings:   postingsBuf,
		fastFields: decodeFastFields(fastBuf),
		fieldNorms: docLens,
		store:      decodeStore(storeBuf),
		fieldStats: stats,
	}, nil
}

// Persist writes a Built segment's blobs through dir and returns the
// segment.MetaEntry ready for the segment directory (spec.md §3.2).
// Callers fill in XMin/Delete/NumDeletedDocs themselves.
func Persist(dir Directory, built Built) (segment.MetaEntry, error) {
	var entry segment.MetaEntry
	entry.SegmentID = built.ID
	entry.MaxDoc = built.MaxDoc
	entry.Delete = segment.UnsetFileEntry
	for i := range entry.Files {
		entry.Files[i] = segment.UnsetFileEntry
	}

	roleSlot := map[string]int{
		RoleTerms:      segment.FileTerms,
		RolePostings:   segment.FilePostings,
		RoleFastFields: segment.FileFastFields,
		RoleFieldNorms: segment.FileFieldNorms,
		RoleStore:      segment.FileStore,
	}
	blobs := map[string][]byte{
		RoleTerms:      built.TermsBlob,
		RolePostings:   built.Postings,
		RoleFastFields: built.FastBlob,
		RoleFieldNorms: built.NormsBlob,
		RoleStore:      built.StoreBlob,
	}
	for role, blob := range blobs {
		fe, err := dir.WriteFile(built.ID, role, blob)
		if err != nil {
			return segment.MetaEntry{}, err
		}
		entry.Files[roleSlot[role]] = fe
	}
	return entry, nil
}
