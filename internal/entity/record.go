// Package entity provides the dynamic entity-type registry and record
// abstractions the card engine queries. Entity types are resolved by name at
// runtime: the registry is populated once at process startup, and a missing
// name is a recoverable "model not found" condition rather than a type error.
package entity

import (
	"fmt"

	"github.com/inclue/pulse/internal/expr"
)

// Record is a single row of a dynamically-typed entity.
type Record map[string]any

// RecordSet is an ordered collection of records.
// It implements expr.RecordSource so formulas can operate on fetched data.
type RecordSet []Record

// Compile-time check that RecordSet satisfies the formula contract.
var _ expr.RecordSource = (RecordSet)(nil)

// Len reports the number of records.
func (rs RecordSet) Len() int {
	return len(rs)
}

// Mapped projects a field across all records.
// A record missing the field fails the whole projection, mirroring the
// strictness callers rely on to surface misconfigured count fields.
func (rs RecordSet) Mapped(field string) ([]any, error) {
	values := make([]any, 0, len(rs))
	for _, r := range rs {
		v, ok := r[field]
		if !ok {
			return nil, fmt.Errorf("field %q not present on record", field)
		}
		values = append(values, v)
	}
	return values, nil
}

// Filtered returns the subset of records whose field matches value under op.
// It never mutates the receiver.
func (rs RecordSet) Filtered(field, op string, value any) expr.RecordSource {
	return rs.Where(func(r Record) bool {
		return matchCondition(r, expr.Condition{Field: field, Op: op, Value: value})
	})
}

// Where returns the records satisfying fn.
func (rs RecordSet) Where(fn func(Record) bool) RecordSet {
	var out RecordSet
	for _, r := range rs {
		if fn(r) {
			out = append(out, r)
		}
	}
	return out
}

// Distinct counts the distinct non-nil values of a field across the set.
func (rs RecordSet) Distinct(field string) int {
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		seen[fmt.Sprintf("%v", v)] = struct{}{}
	}
	return len(seen)
}
