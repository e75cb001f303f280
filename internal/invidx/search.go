package invidx

import "github.com/RoaringBitmap/roaring"

// DocIterator walks a stream of DocIDs in strictly ascending order.
// execscan.Compile lowers a SearchQueryInput tree into one of these by
// composing Union/Intersect/Exclude over per-term PostingsIterators.
// Doc() is only meaningful immediately after Next or Advance returns
// true; calling it beforehand or after a false return is undefined.
type DocIterator interface {
	Next() bool
	Advance(target DocID) bool
	Doc() DocID
}

// bitmapIterator adapts a roaring.Bitmap (e.g. a segment's delete set)
// to DocIterator, letting deletes compose with term iterators through
// the same Exclude combinator as any other query clause.
type bitmapIterator struct {
	it      roaring.IntPeekable
	doc     DocID
	started bool
}

func newBitmapIterator(bm *roaring.Bitmap) *bitmapIterator {
	return &bitmapIterator{it: bm.Iterator()}
}

func (b *bitmapIterator) Next() bool {
	b.started = true
	if !b.it.HasNext() {
		return false
	}
	b.doc = DocID(b.it.Next())
	return true
}

func (b *bitmapIterator) Advance(target DocID) bool {
	if b.started && b.doc >= target {
		return true
	}
	b.it.AdvanceIfNeeded(uint32(target))
	b.started = true
	if !b.it.HasNext() {
		return false
	}
	b.doc = DocID(b.it.Next())
	return true
}

func (b *bitmapIterator) Doc() DocID { return b.doc }

// Exclude returns base filtered to exclude every doc present in
// deletes, used to apply a segment's pinned delete bitmap (spec.md
// §4.6) uniformly regardless of the underlying query shape.
func Exclude(base DocIterator, deletes *roaring.Bitmap) DocIterator {
	if deletes == nil || deletes.IsEmpty() {
		return base
	}
	return &excludeIter{base: base, deletes: deletes}
}

type excludeIter struct {
	base    DocIterator
	deletes *roaring.Bitmap
	doc     DocID
}

func (e *excludeIter) Next() bool {
	for e.base.Next() {
		if !e.deletes.Contains(uint32(e.base.Doc())) {
			e.doc = e.base.Doc()
			return true
		}
	}
	return false
}

func (e *excludeIter) Advance(target DocID) bool {
	if !e.base.Advance(target) {
		return false
	}
	if !e.deletes.Contains(uint32(e.base.Doc())) {
		e.doc = e.base.Doc()
		return true
	}
	return e.Next()
}

func (e *excludeIter) Doc() DocID { return e.doc }

// cursor tracks one sub-iterator's last-known position for the
// Union/Intersect combinators below.
type cursor struct {
	it      DocIterator
	doc     DocID
	valid   bool
	started bool
}

func (c *cursor) next() {
	c.started = true
	c.valid = c.it.Next()
	if c.valid {
		c.doc = c.it.Doc()
	}
}

func (c *cursor) advance(target DocID) {
	if c.started && c.valid && c.doc >= target {
		return
	}
	c.started = true
	c.valid = c.it.Advance(target)
	if c.valid {
		c.doc = c.it.Doc()
	}
}

// Union returns the sorted merge of its inputs (boolean "should"):
// valid at a doc if any input is.
func Union(its ...DocIterator) DocIterator {
	its = compactIterators(its)
	if len(its) == 0 {
		return emptyIterator{}
	}
	if len(its) == 1 {
		return its[0]
	}
	cs := make([]*cursor, len(its))
	for i, it := range its {
		cs[i] = &cursor{it: it}
	}
	return &unionIter{cs: cs}
}

type unionIter struct {
	cs  []*cursor
	doc DocID
}

func (u *unionIter) Next() bool {
	for _, c := range u.cs {
		if !c.started {
			c.next()
		} else if c.valid && c.doc == u.doc {
			c.next()
		}
	}
	return u.settle()
}

func (u *unionIter) Advance(target DocID) bool {
	for _, c := range u.cs {
		c.advance(target)
	}
	return u.settle()
}

func (u *unionIter) settle() bool {
	found := false
	var min DocID
	for _, c := range u.cs {
		if c.valid && (!found || c.doc < min) {
			min, found = c.doc, true
		}
	}
	if !found {
		return false
	}
	u.doc = min
	return true
}

func (u *unionIter) Doc() DocID { return u.doc }

// Intersect returns the sorted intersection of its inputs (boolean
// "must"), via a leapfrog join over the per-clause cursors.
func Intersect(its ...DocIterator) DocIterator {
	its = compactIterators(its)
	if len(its) == 0 {
		return emptyIterator{}
	}
	if len(its) == 1 {
		return its[0]
	}
	cs := make([]*cursor, len(its))
	for i, it := range its {
		cs[i] = &cursor{it: it}
	}
	return &intersectIter{cs: cs}
}

type intersectIter struct {
	cs  []*cursor
	doc DocID
}

func (x *intersectIter) Next() bool {
	x.cs[0].next()
	if !x.cs[0].valid {
		return false
	}
	return x.catchUp()
}

func (x *intersectIter) Advance(target DocID) bool {
	x.cs[0].advance(target)
	if !x.cs[0].valid {
		return false
	}
	return x.catchUp()
}

func (x *intersectIter) catchUp() bool {
	candidate := x.cs[0].doc
	for i := 1; i < len(x.cs); i++ {
		x.cs[i].advance(candidate)
		if !x.cs[i].valid {
			return false
		}
		if x.cs[i].doc != candidate {
			candidate = x.cs[i].doc
			x.cs[0].advance(candidate)
			if !x.cs[0].valid {
				return false
			}
			candidate = x.cs[0].doc
			i = 0 // restart the sweep against the new candidate
		}
	}
	x.doc = candidate
	return true
}

func (x *intersectIter) Doc() DocID { return x.doc }

type emptyIterator struct{}

func (emptyIterator) Next() bool         { return false }
func (emptyIterator) Advance(DocID) bool { return false }
func (emptyIterator) Doc() DocID         { return 0 }

func compactIterators(its []DocIterator) []DocIterator {
	out := its[:0]
	for _, it := range its {
		if it != nil {
			out = append(out, it)
		}
	}
	return out
}

// NewTermIterator adapts a *PostingsIterator to DocIterator.
func NewTermIterator(it *PostingsIterator) DocIterator { return &termDocIter{it: it} }

type termDocIter struct{ it *PostingsIterator }

func (t *termDocIter) Next() bool           { return t.it.Next() }
func (t *termDocIter) Advance(d DocID) bool { return t.it.Advance(d) }
func (t *termDocIter) Doc() DocID           { return t.it.Doc() }

// NewDeletesIterator adapts a delete bitmap to DocIterator, for
// queries that need to enumerate deleted docs directly (e.g. vacuum's
// rebuild pass).
func NewDeletesIterator(bm *roaring.Bitmap) DocIterator { return newBitmapIterator(bm) }
