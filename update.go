package flatdb

import (
	"errors"
	"strings"
	"time"
)

// Updater applies update documents. The zero Updater is ready to use.
type Updater struct {
	// Now is the clock used by currentDate; defaults to time.Now.
	Now func() time.Time
}

type opFunc func(c *opCtx, rec Record, path string, operand Value) error

type opCtx struct {
	op     string
	upsert bool
	now    func() time.Time
}

var operators map[string]opFunc

func init() {
	operators = map[string]opFunc{
		"set":         opSet,
		"unset":       opUnset,
		"push":        opPush,
		"pull":        opPull,
		"addToSet":    opAddToSet,
		"rename":      opRename,
		"min":         opMin,
		"max":         opMax,
		"mul":         opMul,
		"inc":         opInc,
		"bit":         opBit,
		"currentDate": opCurrentDate,
		"pop":         opPop,
		"slice":       opSlice,
		"sort":        opSort,
	}
}

// Operators returns the names of all supported update operators.
func Operators() []string {
	return sortedKeys(operators)
}

// ApplyUpdate applies update to rec using the wall clock. See Updater.Apply.
func ApplyUpdate(rec Record, update *Object, upsert bool) (Record, error) {
	var u Updater
	return u.Apply(rec, update, upsert)
}

// ParseUpdate parses a JSON update document.
func ParseUpdate(s string) (*Object, error) {
	return ParseObject(s)
}

// Apply mutates rec in place according to update and returns it. A nil rec
// starts as an empty record.
//
// Operators are named with or without the "$" prefix and run in the order
// they appear in the document; the paths of each clause run in clause order.
// Under upsert, missing intermediate containers are created and some
// operators treat an absent target as empty.
//
// Application is not atomic: when an error is returned, clauses before the
// failing one have already been applied. Clone the record first if that
// matters.
func (u *Updater) Apply(rec Record, update *Object, upsert bool) (Record, error) {
	if rec == nil {
		rec = NewObject()
	}
	c := &opCtx{upsert: upsert, now: u.Now}
	if c.now == nil {
		c.now = time.Now
	}
	for op, clause := range update.All() {
		fn := operators[strings.TrimPrefix(op, "$")]
		if fn == nil {
			return rec, opErrf(op, "", ErrUnknownOperator, "")
		}
		clauseObj, ok := clause.AsObject()
		if !ok {
			return rec, opErrf(op, "", nil, "clause must be an object, got %v", clause.kind)
		}
		c.op = op
		for path, operand := range clauseObj.All() {
			if err := fn(c, rec, path, operand); err != nil {
				return rec, err
			}
		}
	}
	return rec, nil
}

func (c *opCtx) errf(path string, format string, args ...any) error {
	return opErrf(c.op, path, nil, format, args...)
}

// resolveExisting resolves path without creating anything. Absent paths are
// reported as ok=false rather than an error.
func resolveExisting(rec Record, path string) (s slot, cur Value, ok bool, err error) {
	s, err = resolve(rec, path, false)
	if errors.Is(err, ErrPathNotFound) {
		return slot{}, Value{}, false, nil
	} else if err != nil {
		return slot{}, Value{}, false, err
	}
	cur, ok = s.get()
	return s, cur, ok, nil
}

func absentErr(path string) error {
	return pathErrf(path, -1, ErrPathNotFound, "target absent and upsert not requested")
}

// intOperand accepts integral numbers only.
func (c *opCtx) intOperand(path string, v Value) (int64, error) {
	i, ok := v.AsInt()
	if !ok {
		return 0, c.errf(path, "operand must be an integer, got %v", v)
	}
	return i, nil
}

// directionOperand accepts 1 and -1.
func (c *opCtx) directionOperand(path string, v Value) (int64, error) {
	i, ok := v.AsInt()
	if !ok || (i != 1 && i != -1) {
		return 0, c.errf(path, "operand must be 1 or -1, got %v", v)
	}
	return i, nil
}

// eachOperand unpacks {$each: [...]} (and {$all: [...]} when allowAll is
// set). Any other operand is returned as a single item.
func (c *opCtx) eachOperand(path string, operand Value, allowAll bool) ([]Value, bool, error) {
	o, ok := operand.AsObject()
	if !ok || o.Len() != 1 {
		return []Value{operand}, false, nil
	}
	list, ok := o.Get("$each")
	if !ok && allowAll {
		list, ok = o.Get("$all")
	}
	if !ok {
		return []Value{operand}, false, nil
	}
	arr, isArr := list.AsArray()
	if !isArr {
		return nil, false, c.errf(path, "$each/$all operand must be an array, got %v", list.kind)
	}
	return arr.Items, true, nil
}
