package flatdb

import (
	"bytes"
	"slices"
)

// arrayTarget resolves path for the operators that modify an array in place.
// A nil array with a nil error means the target is absent.
func (c *opCtx) arrayTarget(rec Record, path string, create bool) (slot, *Array, error) {
	var s slot
	var cur Value
	var ok bool
	var err error
	if create {
		s, err = resolve(rec, path, true)
		if err != nil {
			return slot{}, nil, err
		}
		cur, ok = s.get()
	} else {
		s, cur, ok, err = resolveExisting(rec, path)
		if err != nil {
			return slot{}, nil, err
		}
	}
	if !ok {
		return s, nil, nil
	}
	arr, isArr := cur.AsArray()
	if !isArr {
		return slot{}, nil, c.errf(path, "target must be an array, got %v", cur.kind)
	}
	return s, arr, nil
}

// appendTarget is arrayTarget for push and addToSet, which create the array
// under upsert and fail on an absent target otherwise.
func (c *opCtx) appendTarget(rec Record, path string) (*Array, error) {
	s, arr, err := c.arrayTarget(rec, path, c.upsert)
	if err != nil {
		return nil, err
	}
	if arr == nil {
		if !c.upsert {
			return nil, absentErr(path)
		}
		v := ArrayValue()
		if err := s.set(v); err != nil {
			return nil, err
		}
		arr = v.arr
	}
	return arr, nil
}

func opPush(c *opCtx, rec Record, path string, operand Value) error {
	items, _, err := c.eachOperand(path, operand, false)
	if err != nil {
		return err
	}
	arr, err := c.appendTarget(rec, path)
	if err != nil {
		return err
	}
	for _, item := range items {
		arr.Items = append(arr.Items, item.Clone())
	}
	return nil
}

// opAddToSet is push that skips values equal to an existing element or to a
// value added earlier in the same batch. Arrays and objects are equal when
// their JSON text is.
func opAddToSet(c *opCtx, rec Record, path string, operand Value) error {
	items, _, err := c.eachOperand(path, operand, true)
	if err != nil {
		return err
	}
	arr, err := c.appendTarget(rec, path)
	if err != nil {
		return err
	}
	for _, item := range items {
		if !containsSerialized(arr.Items, item) {
			arr.Items = append(arr.Items, item.Clone())
		}
	}
	return nil
}

func containsValue(items []Value, v Value) bool {
	return slices.ContainsFunc(items, func(item Value) bool {
		return Equal(item, v)
	})
}

// containsSerialized is containsValue, except that arrays and objects are
// compared by their JSON text, so objects with the same fields in a
// different order are distinct.
func containsSerialized(items []Value, v Value) bool {
	if !v.IsContainer() {
		return containsValue(items, v)
	}
	want, err := v.appendJSON(nil)
	if err != nil {
		return false
	}
	var buf []byte
	return slices.ContainsFunc(items, func(item Value) bool {
		if item.kind != v.kind {
			return false
		}
		buf, err = item.appendJSON(buf[:0])
		return err == nil && bytes.Equal(buf, want)
	})
}

// opPull removes matching elements. {$each: [...]} and {$all: [...]} remove
// elements equal to any listed value; any other object removes object
// elements whose listed fields are all equal; scalars remove equal elements.
func opPull(c *opCtx, rec Record, path string, operand Value) error {
	items, isList, err := c.eachOperand(path, operand, true)
	if err != nil {
		return err
	}
	_, arr, err := c.arrayTarget(rec, path, false)
	if err != nil || arr == nil {
		return err
	}

	var match func(Value) bool
	if pattern, ok := operand.AsObject(); ok && !isList {
		match = func(item Value) bool {
			return matchFields(item, pattern)
		}
	} else {
		match = func(item Value) bool {
			return containsValue(items, item)
		}
	}
	arr.Items = slices.DeleteFunc(arr.Items, match)
	return nil
}

// matchFields reports whether v is an object holding every field of pattern
// with an equal value.
func matchFields(v Value, pattern *Object) bool {
	obj, ok := v.AsObject()
	if !ok {
		return false
	}
	for k, want := range pattern.All() {
		got, ok := obj.Get(k)
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}

// opPop removes the last element for 1 and the first for -1.
func opPop(c *opCtx, rec Record, path string, operand Value) error {
	dir, err := c.directionOperand(path, operand)
	if err != nil {
		return err
	}
	_, arr, err := c.arrayTarget(rec, path, false)
	if err != nil || arr == nil || len(arr.Items) == 0 {
		return err
	}
	if dir == 1 {
		arr.Items = arr.Items[:len(arr.Items)-1]
	} else {
		arr.Items = slices.Delete(arr.Items, 0, 1)
	}
	return nil
}

// opSlice keeps the first N elements.
func opSlice(c *opCtx, rec Record, path string, operand Value) error {
	n, err := c.intOperand(path, operand)
	if err != nil {
		return err
	}
	if n <= 0 {
		return c.errf(path, "operand must be positive, got %d", n)
	}
	_, arr, err := c.arrayTarget(rec, path, false)
	if err != nil || arr == nil {
		return err
	}
	if int64(len(arr.Items)) > n {
		arr.Items = arr.Items[:n]
	}
	return nil
}

// opSort sorts ascending for 1 and descending for -1. The sort is stable and
// uses Compare, so mixed kinds are grouped by kind.
func opSort(c *opCtx, rec Record, path string, operand Value) error {
	dir, err := c.directionOperand(path, operand)
	if err != nil {
		return err
	}
	_, arr, err := c.arrayTarget(rec, path, false)
	if err != nil || arr == nil {
		return err
	}
	slices.SortStableFunc(arr.Items, func(a, b Value) int {
		return Compare(a, b) * int(dir)
	})
	return nil
}
