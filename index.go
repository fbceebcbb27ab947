package flatdb

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
)

// Index maps top-level field names to the positions of the records holding
// them, in the collection snapshot it was built from. It is never updated:
// after the collection changes, build a new one.
type Index struct {
	size   int
	fields map[string]*fieldIndex
}

type fieldIndex struct {
	all    *roaring.Bitmap
	values map[uint64]*roaring.Bitmap
}

// BuildIndex indexes every top-level field of every record in one pass.
// Besides the positions per field, it records positions per value
// fingerprint, so lookups by value only touch records that probably match.
func BuildIndex(coll Collection) *Index {
	idx := &Index{
		size:   len(coll),
		fields: make(map[string]*fieldIndex),
	}
	buf := fingerprintBytesPool.Get().([]byte)
	for pos, rec := range coll {
		for k, v := range rec.All() {
			fi := idx.fields[k]
			if fi == nil {
				fi = &fieldIndex{
					all:    roaring.New(),
					values: make(map[uint64]*roaring.Bitmap),
				}
				idx.fields[k] = fi
			}
			fi.all.Add(uint32(pos))

			var fp uint64
			fp, buf = fingerprint(buf[:0], v)
			bm := fi.values[fp]
			if bm == nil {
				bm = roaring.New()
				fi.values[fp] = bm
			}
			bm.Add(uint32(pos))
		}
	}
	fingerprintBytesPool.Put(buf[:0])
	return idx
}

// fingerprint hashes the canonical encoding of v, so values that are Equal
// share a fingerprint. It returns the grown buffer for reuse.
func fingerprint(buf []byte, v Value) (uint64, []byte) {
	buf = canonicalBytes(buf, v)
	return xxhash.Sum64(buf), buf
}

// Len returns the length of the collection the index was built from.
func (idx *Index) Len() int {
	return idx.size
}

// Fields returns the indexed field names in sorted order.
func (idx *Index) Fields() []string {
	return sortedKeys(idx.fields)
}

// Positions iterates over the positions of the records holding field, in
// ascending order.
func (idx *Index) Positions(field string) iter.Seq[int] {
	return func(yield func(int) bool) {
		fi := idx.fields[field]
		if fi == nil {
			return
		}
		it := fi.all.Iterator()
		for it.HasNext() {
			if !yield(int(it.Next())) {
				return
			}
		}
	}
}

// Count returns the number of records holding field.
func (idx *Index) Count(field string) int {
	if fi := idx.fields[field]; fi != nil {
		return int(fi.all.GetCardinality())
	}
	return 0
}

// matching returns a fresh bitmap of the positions whose value of field
// probably equals v. Fingerprint collisions are possible, so callers must
// verify.
func (idx *Index) matching(field string, v Value) *roaring.Bitmap {
	fi := idx.fields[field]
	if fi == nil {
		return roaring.New()
	}
	buf := fingerprintBytesPool.Get().([]byte)
	fp, buf := fingerprint(buf[:0], v)
	fingerprintBytesPool.Put(buf[:0])
	bm := fi.values[fp]
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}
