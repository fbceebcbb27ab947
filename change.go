package flatdb

import (
	"fmt"
)

type (
	// Change describes one record written by a Store call.
	Change struct {
		coll   string
		op     Op
		id     Value
		rec    Record
		oldRec Record
	}

	ChangeFlags uint64

	Op int
)

const (
	OpNone   Op = 0
	OpInsert Op = 1
	OpUpdate Op = 2
	OpDelete Op = 3
)

const (
	ChangeFlagNotify ChangeFlags = 1 << iota
	ChangeFlagIncludeRecord
	ChangeFlagIncludeOldRecord

	ChangeFlagsAll = ChangeFlagNotify | ChangeFlagIncludeRecord | ChangeFlagIncludeOldRecord
)

func (chg *Change) Collection() string {
	return chg.coll
}
func (chg *Change) Op() Op {
	return chg.op
}
func (chg *Change) ID() Value {
	return chg.id
}
func (chg *Change) HasRecord() bool {
	return chg.rec != nil
}
func (chg *Change) Record() Record {
	return chg.rec
}
func (chg *Change) HasOldRecord() bool {
	return chg.oldRec != nil
}
func (chg *Change) OldRecord() Record {
	return chg.oldRec
}

func (chg *Change) String() string {
	return fmt.Sprintf("%s %s/%v", chg.op, chg.coll, chg.id)
}

func (v ChangeFlags) Contains(f ChangeFlags) bool {
	return (v & f) == f
}
func (v ChangeFlags) ContainsAny(f ChangeFlags) bool {
	return (v & f) != 0
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

type changeHandler struct {
	colls map[string]ChangeFlags
	f     func(chg *Change)
}

// OnChange registers f to be called after every successful write to the
// listed collections; a nil map subscribes to all collections with
// ChangeFlagsAll. Records passed to f are copies.
//
// f runs while the Store is locked and must not call back into it.
func (s *Store) OnChange(colls map[string]ChangeFlags, f func(chg *Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeHandlers = append(s.changeHandlers, changeHandler{colls, f})
}

// notify reports a committed write. rec and oldRec may be nil.
func (s *Store) notify(name string, op Op, oldRec, rec Record) {
	if len(s.changeHandlers) == 0 {
		return
	}
	var id Value
	if rec != nil {
		id, _ = rec.Get(s.idField)
	} else if oldRec != nil {
		id, _ = oldRec.Get(s.idField)
	}
	for _, h := range s.changeHandlers {
		flags := ChangeFlagsAll
		if h.colls != nil {
			flags = h.colls[name]
		}
		if !flags.Contains(ChangeFlagNotify) {
			continue
		}
		chg := &Change{coll: name, op: op, id: id.Clone()}
		if rec != nil && flags.Contains(ChangeFlagIncludeRecord) {
			chg.rec = rec.Clone()
		}
		if oldRec != nil && flags.Contains(ChangeFlagIncludeOldRecord) {
			chg.oldRec = oldRec.Clone()
		}
		h.f(chg)
	}
}
