package flatdb

import "context"

type CollectionStats struct {
	Records int

	// Fields is the number of distinct top-level field names.
	Fields int

	// NestedValues counts values inside arrays and objects, at any depth.
	NestedValues int
	MaxDepth     int

	// IndexedValues is the number of distinct (field, value) pairs.
	IndexedValues int
}

func (s *Store) Stats(ctx context.Context, name string) (CollectionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx, name)
	if err != nil {
		return CollectionStats{}, err
	}
	return collectionStats(coll, s.index(name, coll)), nil
}

func collectionStats(coll Collection, idx *Index) CollectionStats {
	st := CollectionStats{
		Records: len(coll),
		Fields:  len(idx.fields),
	}
	for _, fi := range idx.fields {
		st.IndexedValues += len(fi.values)
	}
	for _, rec := range coll {
		for _, v := range rec.All() {
			st.walk(v, 1)
		}
	}
	return st
}

func (st *CollectionStats) walk(v Value, depth int) {
	st.MaxDepth = max(st.MaxDepth, depth)
	switch v.kind {
	case KindArray:
		for _, item := range v.arr.Items {
			st.NestedValues++
			st.walk(item, depth+1)
		}
	case KindObject:
		for _, item := range v.obj.All() {
			st.NestedValues++
			st.walk(item, depth+1)
		}
	}
}
