package flatdb

import (
	"context"
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpRecords
	DumpStats
	DumpIndex

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

const dumpWidth = 80

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump describes the collection as text, for debugging and tests.
func (s *Store) Dump(ctx context.Context, name string, f DumpFlags) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx, name)
	if err != nil {
		return "", err
	}
	idx := s.index(name, coll)

	var buf strings.Builder
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(&buf, rpadf('=', "=== %s (%d records) ", name, len(coll)))
	}
	if f.Contains(DumpStats) {
		st := collectionStats(coll, idx)
		fmt.Fprintf(&buf, "%s.stats: fields = %d, nested = %d, max_depth = %d\n", name, st.Fields, st.NestedValues, st.MaxDepth)
	}
	if f.Contains(DumpRecords) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&buf, dumpSep)
		}
		for pos, rec := range coll {
			fmt.Fprintf(&buf, "%s.%d = %s\n", name, pos, rec)
		}
	}
	if f.Contains(DumpIndex) {
		fmt.Fprintln(&buf, dumpSep)
		for _, field := range idx.Fields() {
			fmt.Fprintf(&buf, "%s.i.%s (%d values) %v\n", name, field, len(idx.fields[field].values), idx.fields[field].all.ToArray())
		}
	}
	return buf.String(), nil
}

func rpadf(pad rune, format string, args ...any) string {
	return rpad(fmt.Sprintf(format, args...), dumpWidth, pad)
}
