package flatdb

import (
	"errors"
	"time"
)

func opSet(c *opCtx, rec Record, path string, operand Value) error {
	s, err := resolve(rec, path, c.upsert)
	if err != nil {
		return err
	}
	return s.set(operand.Clone())
}

// opUnset removes the key at path. When the parent is an array and the last
// step is a field name, the field is removed from every element instead.
func opUnset(c *opCtx, rec Record, path string, operand Value) error {
	s, err := resolve(rec, path, false)
	if errors.Is(err, ErrPathNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if s.parent.IsArray() && !s.step.IsIndex() {
		for _, item := range s.parent.arr.Items {
			if o, ok := item.AsObject(); ok {
				o.Delete(s.step.Key)
			}
		}
		return nil
	}
	s.delete()
	return nil
}

// opRename moves the value to a sibling key of the same parent.
func opRename(c *opCtx, rec Record, path string, operand Value) error {
	newName, ok := operand.AsString()
	if !ok || newName == "" {
		return c.errf(path, "operand must be a non-empty string, got %v", operand)
	}
	s, err := resolve(rec, path, false)
	if err != nil {
		return err
	}
	v, ok := s.get()
	if !ok {
		return pathErrf(path, -1, ErrPathNotFound, "rename source absent")
	}
	dst := slot{path: path, parent: s.parent, step: makeStep(newName)}
	if dst.step == s.step {
		return nil
	}
	if s.parent.IsArray() && !dst.step.IsIndex() {
		return pathErrf(path, -1, errFieldOfArray(dst.step), "cannot rename array element to %q", newName)
	}
	s.delete()
	return dst.set(v)
}

func opMin(c *opCtx, rec Record, path string, operand Value) error {
	return minMax(c, rec, path, operand, -1)
}

func opMax(c *opCtx, rec Record, path string, operand Value) error {
	return minMax(c, rec, path, operand, 1)
}

// minMax assigns operand when the target is absent or when operand compares
// to it with the given sign.
func minMax(c *opCtx, rec Record, path string, operand Value, sign int) error {
	s, err := resolve(rec, path, c.upsert)
	if err != nil {
		return err
	}
	cur, ok := s.get()
	if ok && Compare(operand, cur)*sign <= 0 {
		return nil
	}
	return s.set(operand.Clone())
}

func opMul(c *opCtx, rec Record, path string, operand Value) error {
	f, ok := operand.AsNumber()
	if !ok {
		return c.errf(path, "operand must be a number, got %v", operand)
	}
	s, err := resolve(rec, path, c.upsert)
	if err != nil {
		return err
	}
	cur, ok := s.get()
	if !ok {
		if !c.upsert {
			return absentErr(path)
		}
		return s.set(operand)
	}
	n, ok := cur.AsNumber()
	if !ok {
		return c.errf(path, "cannot multiply %v", cur.kind)
	}
	return s.set(NumberValue(n * f))
}

func opInc(c *opCtx, rec Record, path string, operand Value) error {
	s, err := resolve(rec, path, c.upsert)
	if err != nil {
		return err
	}
	return c.incSlot(s, operand, 0)
}

// incSlot adds operand to the number in s. When both the target and the
// operand are objects, each operand field is added to the matching target
// field, one level deep.
func (c *opCtx) incSlot(s slot, operand Value, depth int) error {
	cur, ok := s.get()
	if !ok {
		if !c.upsert {
			return absentErr(s.path)
		}
		return s.set(operand.Clone())
	}
	if obj, isObj := cur.AsObject(); isObj && depth == 0 {
		fields, ok := operand.AsObject()
		if !ok {
			return c.errf(s.path, "cannot increment object by %v", operand.kind)
		}
		for k, v := range fields.All() {
			child := slot{path: s.path + "." + k, parent: ObjectValue(obj), step: Step{Key: k, Index: -1}}
			if err := c.incSlot(child, v, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	n, ok := cur.AsNumber()
	if !ok {
		return c.errf(s.path, "cannot increment %v", cur.kind)
	}
	delta, ok := operand.AsNumber()
	if !ok {
		return c.errf(s.path, "operand must be a number, got %v", operand)
	}
	return s.set(NumberValue(n + delta))
}

// opBit applies {and: n, or: n, xor: n} to an integer, in operand order.
func opBit(c *opCtx, rec Record, path string, operand Value) error {
	ops, ok := operand.AsObject()
	if !ok || ops.Len() == 0 {
		return c.errf(path, "operand must be an object of and/or/xor, got %v", operand)
	}
	s, err := resolve(rec, path, c.upsert)
	if err != nil {
		return err
	}
	var acc int64
	if cur, ok := s.get(); ok {
		acc, ok = cur.AsInt()
		if !ok {
			return c.errf(path, "target must be an integer, got %v", cur)
		}
	} else if !c.upsert {
		return absentErr(path)
	}
	for name, v := range ops.All() {
		n, err := c.intOperand(path, v)
		if err != nil {
			return err
		}
		switch name {
		case "and":
			acc &= n
		case "or":
			acc |= n
		case "xor":
			acc ^= n
		default:
			return c.errf(path, "unknown bitwise operation %q", name)
		}
	}
	return s.set(IntValue(acc))
}

// opCurrentDate assigns the current time. true and {$type: "date"} store the
// date only (UTC midnight); {$type: "timestamp"} stores the full instant.
func opCurrentDate(c *opCtx, rec Record, path string, operand Value) error {
	var dateOnly bool
	if b, ok := operand.AsBool(); ok && b {
		dateOnly = true
	} else if o, ok := operand.AsObject(); ok {
		typ, _ := o.Get("$type")
		switch typ.str {
		case "date":
			dateOnly = true
		case "timestamp":
		default:
			return c.errf(path, "$type must be \"date\" or \"timestamp\", got %v", typ)
		}
	} else {
		return c.errf(path, "operand must be true or {$type: ...}, got %v", operand)
	}

	s, err := resolve(rec, path, c.upsert)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	if dateOnly {
		now = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return s.set(TimeValue(now))
}
