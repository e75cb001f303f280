package invidx

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/pkg/segment"
)

// Builder accumulates documents for one not-yet-persisted segment
// (spec.md §4.5's writer-side "in-memory segment accumulation").
// A Builder is single-writer: the writer pipeline owns it for the
// lifetime of one transaction's batch.
type Builder struct {
	rowIDs   []host.RowID
	stored   [][]byte
	postings map[string]map[string][]Posting // field -> term -> postings (built incrementally)
	docLens  map[string][]uint32             // field -> per-doc term count, for norms/avgLen
	fast     map[string]*growableFastField
}

type growableFastField struct {
	values []int64
	nulls  map[DocID]bool
}

func NewBuilder() *Builder {
	return &Builder{
		postings: make(map[string]map[string][]Posting),
		docLens:  make(map[string][]uint32),
		fast:     make(map[string]*growableFastField),
	}
}

// MaxDoc reports how many documents have been added so far.
func (b *Builder) MaxDoc() uint32 { return uint32(len(b.rowIDs)) }

// AddDocument tokenizes text fields into postings, indexes numeric
// fields as fast fields, and stashes a stored-field blob, returning
// the new document's segment-local DocID.
func (b *Builder) AddDocument(rowID host.RowID, stored []byte, fields []FieldValue, tokenize func(string) []string) DocID {
	doc := DocID(len(b.rowIDs))
	b.rowIDs = append(b.rowIDs, rowID)
	b.stored = append(b.stored, stored)

	for _, fv := range fields {
		switch fv.Type {
		case FieldText:
			terms := tokenize(fv.Text)
			b.indexTerms(fv.Name, doc, terms)
		case FieldU64, FieldI64, FieldBool, FieldDatetime:
			b.setFast(fv.Name, doc, fv.Num, fv.Null)
		case FieldF64:
			b.setFast(fv.Name, doc, int64(mathFloatBits(fv.Flt)), fv.Null)
		}
	}
	return doc
}

// AppendRow allocates a new document slot carrying rowID and stored
// without touching any field data, for callers (the merger) that
// transplant field contents from an existing segment rather than
// re-deriving them from FieldValue input.
func (b *Builder) AppendRow(rowID host.RowID, stored []byte) DocID {
	doc := DocID(len(b.rowIDs))
	b.rowIDs = append(b.rowIDs, rowID)
	b.stored = append(b.stored, stored)
	return doc
}

// AddPosting records that term occurs freq times in field for doc,
// bypassing tokenization — used by the merger to transplant an
// existing segment's postings under remapped DocIDs.
func (b *Builder) AddPosting(field, term string, doc DocID, freq uint32) {
	if b.postings[field] == nil {
		b.postings[field] = make(map[string][]Posting)
	}
	b.postings[field][term] = append(b.postings[field][term], Posting{Doc: doc, Freq: freq})
}

// SetFieldLen records doc's term count in field directly (the BM25
// length norm), used alongside AddPosting when transplanting.
func (b *Builder) SetFieldLen(field string, doc DocID, length uint32) {
	for len(b.docLens[field]) <= int(doc) {
		b.docLens[field] = append(b.docLens[field], 0)
	}
	b.docLens[field][doc] = length
}

// SetFast records a fast-field raw value directly, used alongside
// AppendRow when transplanting a segment's fast fields.
func (b *Builder) SetFast(field string, doc DocID, v int64, isNull bool) {
	b.setFast(field, doc, v, isNull)
}

func (b *Builder) indexTerms(field string, doc DocID, terms []string) {
	if b.postings[field] == nil {
		b.postings[field] = make(map[string][]Posting)
	}
	counts := make(map[string]uint32)
	for _, t := range terms {
		counts[t]++
	}
	for t, c := range counts {
		list := b.postings[field][t]
		list = append(list, Posting{Doc: doc, Freq: c})
		b.postings[field][t] = list
	}

	for len(b.docLens[field]) <= int(doc) {
		b.docLens[field] = append(b.docLens[field], 0)
	}
	b.docLens[field][doc] = uint32(len(terms))
}

func (b *Builder) setFast(field string, doc DocID, v int64, isNull bool) {
	ff := b.fast[field]
	if ff == nil {
		ff = &growableFastField{nulls: make(map[DocID]bool)}
		b.fast[field] = ff
	}
	for len(ff.values) <= int(doc) {
		ff.values = append(ff.values, 0)
	}
	if isNull {
		ff.nulls[doc] = true
	} else {
		ff.values[doc] = v
	}
}

// Built is the in-memory form of a flushed segment's file contents,
// ready to be handed to a Directory.
type Built struct {
	ID         segment.ID
	MaxDoc     uint32
	TermsBlob  []byte
	Postings   []byte
	FastBlob   []byte
	NormsBlob  []byte
	StoreBlob  []byte
	FieldStats map[string]fieldStats // carried alongside for the in-process Segment, not persisted verbatim
}

type fieldStats struct {
	docCount uint32
	avgLen   float64
}

// Build finalizes the accumulated documents into the encoded file
// blobs a segment persists (spec.md §3.2's fixed file set). It does
// not touch a Directory; callers pass the blobs to Directory.WriteFile
// themselves so the writer pipeline controls transaction boundaries.
func (b *Builder) Build(id segment.ID) Built {
	maxDoc := uint32(len(b.rowIDs))

	fieldNames := make([]string, 0, len(b.postings))
	for f := range b.postings {
		fieldNames = append(fieldNames, f)
	}
	sort.Strings(fieldNames)

	var termsSections, postingsSections [][]byte
	fieldStatsOut := make(map[string]fieldStats, len(fieldNames))

	var postingsBuf []byte
	for _, field := range fieldNames {
		terms := make([]string, 0, len(b.postings[field]))
		for t := range b.postings[field] {
			terms = append(terms, t)
		}
		sort.Strings(terms)

		var entries []termEntry
		for _, t := range terms {
			list := b.postings[field][t]
			sort.Slice(list, func(i, j int) bool { return list[i].Doc < list[j].Doc })
			enc := EncodePostings(list)
			entries = append(entries, termEntry{
				term:    t,
				docFreq: uint32(len(list)),
				offset:  len(postingsBuf),
				length:  len(enc),
			})
			postingsBuf = append(postingsBuf, enc...)
		}

		termsSections = append(termsSections, []byte(field), encodeTermDict(entries))

		lens := b.docLens[field]
		var total uint64
		var docCount uint32
		for _, l := range lens {
			if l > 0 {
				total += uint64(l)
				docCount++
			}
		}
		avg := 0.0
		if docCount > 0 {
			avg = float64(total) / float64(docCount)
		}
		fieldStatsOut[field] = fieldStats{docCount: docCount, avgLen: avg}
	}
	postingsSections = append(postingsSections, postingsBuf)

	fastFields := make(map[string]*FastField, len(b.fast))
	for name, gf := range b.fast {
		ff := newFastField(int(maxDoc))
		for i, v := range gf.values {
			if gf.nulls[DocID(i)] {
				ff.SetNull(DocID(i))
			} else {
				ff.Set(DocID(i), v)
			}
		}
		fastFields[name] = ff
	}
	// every segment carries its own docID -> RowID mapping as an
	// ordinary fast field, so execscan can pull row identity through
	// the same column-store path as any other projected field.
	rowIDField := newFastField(int(maxDoc))
	for i, r := range b.rowIDs {
		rowIDField.Set(DocID(i), int64(r))
	}
	fastFields[rowIDFieldName] = rowIDField

	normsBlob := encodeFieldNorms(b.docLens)

	return Built{
		ID:         id,
		MaxDoc:     maxDoc,
		TermsBlob:  encodeTermsFile(termsSections),
		Postings:   joinSections(postingsSections),
		FastBlob:   encodeFastFields(fastFields),
		NormsBlob:  normsBlob,
		StoreBlob:  encodeStore(b.stored),
		FieldStats: fieldStatsOut,
	}
}

// rowIDFieldName is the reserved fast-field name carrying each
// document's host row identity.
const rowIDFieldName = "_rowid"

func joinSections(sections [][]byte) []byte {
	var out []byte
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func encodeTermsFile(sections [][]byte) []byte {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(sections)/2))
	buf = append(buf, tmp[:n]...)
	for i := 0; i < len(sections); i += 2 {
		name, dict := sections[i], sections[i+1]
		n = binary.PutUvarint(tmp[:], uint64(len(name)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, name...)
		n = binary.PutUvarint(tmp[:], uint64(len(dict)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, dict...)
	}
	return buf
}

func decodeTermsFile(buf []byte) map[string]*TermDict {
	off := 0
	count, n := binary.Uvarint(buf[off:])
	off += n
	out := make(map[string]*TermDict, count)
	for i := uint64(0); i < count; i++ {
		nlen, n := binary.Uvarint(buf[off:])
		off += n
		name := string(buf[off : off+int(nlen)])
		off += int(nlen)
		dlen, n := binary.Uvarint(buf[off:])
		off += n
		out[name] = decodeTermDict(buf[off : off+int(dlen)])
		off += int(dlen)
	}
	return out
}

func encodeFieldNorms(docLens map[string][]uint32) []byte {
	fields := make([]string, 0, len(docLens))
	for f := range docLens {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(fields)))
	buf = append(buf, tmp[:n]...)
	for _, f := range fields {
		lens := docLens[f]
		n = binary.PutUvarint(tmp[:], uint64(len(f)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, f...)
		n = binary.PutUvarint(tmp[:], uint64(len(lens)))
		buf = append(buf, tmp[:n]...)
		for _, l := range lens {
			n = binary.PutUvarint(tmp[:], uint64(l))
			buf = append(buf, tmp[:n]...)
		}
	}
	return buf
}

func decodeFieldNorms(buf []byte) map[string][]uint32 {
	off := 0
	count, n := binary.Uvarint(buf[off:])
	off += n
	out := make(map[string][]uint32, count)
	for i := uint64(0); i < count; i++ {
		nlen, n := binary.Uvarint(buf[off:])
		off += n
		name := string(buf[off : off+int(nlen)])
		off += int(nlen)
		ndocs, n := binary.Uvarint(buf[off:])
		off += n
		lens := make([]uint32, ndocs)
		for j := range lens {
			l, n := binary.Uvarint(buf[off:])
			off += n
			lens[j] = uint32(l)
		}
		out[name] = lens
	}
	return out
}

func encodeStore(docs [][]byte) []byte {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(docs)))
	buf = append(buf, tmp[:n]...)
	for _, d := range docs {
		n = binary.PutUvarint(tmp[:], uint64(len(d)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, d...)
	}
	return buf
}

func decodeStore(buf []byte) [][]byte {
	off := 0
	count, n := binary.Uvarint(buf[off:])
	off += n
	out := make([][]byte, count)
	for i := range out {
		l, n := binary.Uvarint(buf[off:])
		off += n
		out[i] = buf[off : off+int(l)]
		off += int(l)
	}
	return out
}

func mathFloatBits(f float64) uint64 { return math.Float64bits(f) }
