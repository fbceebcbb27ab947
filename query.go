package flatdb

import (
	"iter"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// EvaluateQuery returns the first record, in collection order, whose fields
// equal every field of query, or nil. idx may be nil, in which case an index
// is built for this call only.
//
// Query keys containing '.' or '[' are treated as paths into nested values.
// An empty query matches the first record.
func EvaluateQuery(coll Collection, query *Object, idx *Index) Record {
	for pos := range candidates(coll, query, idx) {
		if Matches(coll[pos], query) {
			return coll[pos]
		}
	}
	return nil
}

// FindAll returns the positions of all matching records in ascending order.
func FindAll(coll Collection, query *Object, idx *Index) []int {
	var result []int
	for pos := range candidates(coll, query, idx) {
		if Matches(coll[pos], query) {
			result = append(result, pos)
		}
	}
	return result
}

// Matches reports whether rec holds a value equal to every field of query.
func Matches(rec Record, query *Object) bool {
	for k, want := range query.All() {
		got, ok := lookupField(rec, k)
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}

func isPathKey(k string) bool {
	return strings.ContainsAny(k, ".[")
}

// candidates yields the positions worth verifying, in ascending order. Each
// top-level query field narrows the set to the positions the index lists for
// that value; the intersection can only drop records that fail verification
// anyway. Positions past the end of coll are skipped, and records appended
// after the index was built are always included.
func candidates(coll Collection, query *Object, idx *Index) iter.Seq[int] {
	return func(yield func(int) bool) {
		if idx == nil {
			idx = BuildIndex(coll)
		}
		var set *roaring.Bitmap
		for k, v := range query.All() {
			if isPathKey(k) {
				continue
			}
			bm := idx.matching(k, v)
			if set == nil {
				set = bm
			} else {
				set.And(bm)
			}
			if set.IsEmpty() {
				break
			}
		}

		n := len(coll)
		indexed := min(idx.size, n)
		if set == nil {
			for pos := range indexed {
				if !yield(pos) {
					return
				}
			}
		} else {
			it := set.Iterator()
			for it.HasNext() {
				pos := int(it.Next())
				if pos >= indexed {
					break
				}
				if !yield(pos) {
					return
				}
			}
		}
		for pos := indexed; pos < n; pos++ {
			if !yield(pos) {
				return
			}
		}
	}
}
