package flatdb

import (
	"fmt"
	"strings"
)

// ErrorMap maps field names (or paths) to problems found with them. An empty
// map means the record is valid.
type ErrorMap map[string]string

// Add records msg for field, keeping the first problem reported.
func (m ErrorMap) Add(field, format string, args ...any) {
	if _, found := m[field]; !found {
		m[field] = fmt.Sprintf(format, args...)
	}
}

// Merge copies problems from other that m does not already have.
func (m ErrorMap) Merge(other ErrorMap) {
	for k, v := range other {
		if _, found := m[k]; !found {
			m[k] = v
		}
	}
}

// Validator checks a record about to be written. existing holds the other
// records of the collection, never the record itself.
type Validator interface {
	Validate(rec Record, existing Collection) ErrorMap
}

type ValidatorFunc func(rec Record, existing Collection) ErrorMap

func (f ValidatorFunc) Validate(rec Record, existing Collection) ErrorMap {
	return f(rec, existing)
}

// Validators runs every validator and merges their problems.
func Validators(vs ...Validator) Validator {
	return ValidatorFunc(func(rec Record, existing Collection) ErrorMap {
		var result ErrorMap
		for _, v := range vs {
			errs := v.Validate(rec, existing)
			if len(errs) == 0 {
				continue
			}
			if result == nil {
				result = make(ErrorMap)
			}
			result.Merge(errs)
		}
		return result
	})
}

// RequireFields rejects records in which any of the paths is absent or null.
func RequireFields(paths ...string) Validator {
	return ValidatorFunc(func(rec Record, existing Collection) ErrorMap {
		var result ErrorMap
		for _, p := range paths {
			if v, ok := lookupField(rec, p); !ok || v.IsNull() {
				if result == nil {
					result = make(ErrorMap)
				}
				result.Add(p, "required")
			}
		}
		return result
	})
}

// UniqueFields rejects records sharing a value of any of the paths with an
// existing record. Absent and null values are not compared.
func UniqueFields(paths ...string) Validator {
	return ValidatorFunc(func(rec Record, existing Collection) ErrorMap {
		var result ErrorMap
		for _, p := range paths {
			v, ok := lookupField(rec, p)
			if !ok || v.IsNull() {
				continue
			}
			for _, other := range existing {
				if ov, ok := lookupField(other, p); ok && Equal(v, ov) {
					if result == nil {
						result = make(ErrorMap)
					}
					result.Add(p, "duplicate value %v", v)
					break
				}
			}
		}
		return result
	})
}

// lookupField reads a top-level field or, for keys that look like paths, a
// nested value, the same way queries do.
func lookupField(rec Record, key string) (Value, bool) {
	if isPathKey(key) {
		return Lookup(rec, key)
	}
	return rec.Get(key)
}

func (m ErrorMap) String() string {
	var buf strings.Builder
	for i, k := range sortedKeys(m) {
		if i > 0 {
			buf.WriteString("; ")
		}
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(m[k])
	}
	return buf.String()
}
