package invidx

import (
	"encoding/binary"

	"github.com/RoaringBitmap/roaring"
)

// FastField is a column-oriented, dense per-document value array
// (spec.md §4.7's "fast fields: column store for sort/aggregate/
// pushdown"), one int64-reinterpreted slot per doc plus a roaring
// bitmap marking which docs are null.
type FastField struct {
	Values []int64
	Nulls  *roaring.Bitmap // set bit => value at that doc is null
}

func newFastField(n int) *FastField {
	return &FastField{Values: make([]int64, n), Nulls: roaring.New()}
}

func (f *FastField) Set(doc DocID, v int64) {
	f.Values[doc] = v
}

func (f *FastField) SetNull(doc DocID) {
	f.Nulls.Add(doc)
}

// Get returns v=0, ok=false for a null slot. Aggregation and merging
// check ok; nothing in this module orders rows by a fast-field value.
func (f *FastField) Get(doc DocID) (v int64, ok bool) {
	if f.Nulls.Contains(doc) {
		return 0, false
	}
	return f.Values[doc], true
}

func (f *FastField) Len() int { return len(f.Values) }

func encodeFastField(f *FastField) []byte {
	nullsBuf, _ := f.Nulls.ToBytes()
	buf := make([]byte, 0, 8+8*len(f.Values)+4+len(nullsBuf))
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(f.Values)))
	buf = append(buf, tmp[:]...)
	for _, v := range f.Values {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		buf = append(buf, tmp[:]...)
	}
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(nullsBuf)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, nullsBuf...)
	return buf
}

func decodeFastField(buf []byte) *FastField {
	off := 0
	n := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
	}
	nullsLen := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	nulls := roaring.New()
	_ = nulls.UnmarshalBinary(buf[off : off+int(nullsLen)])
	return &FastField{Values: vals, Nulls: nulls}
}

// encodeFastFields packs a named set of columns into one file blob.
func encodeFastFields(fields map[string]*FastField) []byte {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(names)))
	buf = append(buf, tmp[:n]...)
	for _, name := range names {
		n = binary.PutUvarint(tmp[:], uint64(len(name)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, name...)
		enc := encodeFastField(fields[name])
		n = binary.PutUvarint(tmp[:], uint64(len(enc)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, enc...)
	}
	return buf
}

func decodeFastFields(buf []byte) map[string]*FastField {
	off := 0
	count, n := binary.Uvarint(buf[off:])
	off += n
	out := make(map[string]*FastField, count)
	for i := uint64(0); i < count; i++ {
		nlen, n := binary.Uvarint(buf[off:])
		off += n
		name := string(buf[off : off+int(nlen)])
		off += int(nlen)
		flen, n := binary.Uvarint(buf[off:])
		off += n
		out[name] = decodeFastField(buf[off : off+int(flen)])
		off += int(flen)
	}
	return out
}
