package entity

import (
	"context"

	"github.com/inclue/pulse/internal/expr"
)

// Compile-time check to verify that MemoryAccessor implements Accessor.
var _ Accessor = (*MemoryAccessor)(nil)

// MemoryAccessor is an in-memory Accessor backed by a fixed record slice.
// It backs unit tests and small static datasets; production entity types
// use the SQL-backed accessor instead.
type MemoryAccessor struct {
	fields  map[string]struct{}
	records RecordSet
}

// NewMemoryAccessor creates an accessor over the given records.
// The field set is declared explicitly so scoping decisions do not depend on
// which fields happen to be present on the seeded records.
func NewMemoryAccessor(fields []string, records RecordSet) *MemoryAccessor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		fieldSet[f] = struct{}{}
	}
	return &MemoryAccessor{fields: fieldSet, records: records}
}

// Count returns the number of records matching the predicate.
func (m *MemoryAccessor) Count(_ context.Context, p expr.Predicate) (int, error) {
	n := 0
	for _, r := range m.records {
		if Match(r, p) {
			n++
		}
	}
	return n, nil
}

// Fetch returns the records matching the predicate.
func (m *MemoryAccessor) Fetch(_ context.Context, p expr.Predicate) (RecordSet, error) {
	var out RecordSet
	for _, r := range m.records {
		if Match(r, p) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FieldNames returns the declared field set.
func (m *MemoryAccessor) FieldNames() map[string]struct{} {
	return m.fields
}
