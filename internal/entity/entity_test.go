package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inclue/pulse/internal/expr"
)

func testRecords() RecordSet {
	return RecordSet{
		{"id": int64(1), "amount": float64(10), "status": "open"},
		{"id": int64(2), "amount": float64(20), "status": "open"},
		{"id": int64(3), "amount": float64(30), "status": "paid"},
	}
}

func TestMatch(t *testing.T) {
	r := Record{
		"id":       int64(5),
		"amount":   float64(12.5),
		"status":   "open",
		"created":  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		"is_ready": true,
	}

	tests := []struct {
		name string
		cond expr.Condition
		want bool
	}{
		{name: "string equality", cond: expr.Condition{Field: "status", Op: "=", Value: "open"}, want: true},
		{name: "string inequality", cond: expr.Condition{Field: "status", Op: "!=", Value: "paid"}, want: true},
		{name: "numeric equality across types", cond: expr.Condition{Field: "id", Op: "=", Value: 5}, want: true},
		{name: "greater than", cond: expr.Condition{Field: "amount", Op: ">", Value: int64(10)}, want: true},
		{name: "less or equal fails", cond: expr.Condition{Field: "amount", Op: "<=", Value: int64(10)}, want: false},
		{name: "bool equality", cond: expr.Condition{Field: "is_ready", Op: "=", Value: true}, want: true},
		{name: "time comparison", cond: expr.Condition{Field: "created", Op: "<", Value: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)}, want: true},
		{name: "membership", cond: expr.Condition{Field: "status", Op: "in", Value: []any{"open", "draft"}}, want: true},
		{name: "negative membership", cond: expr.Condition{Field: "status", Op: "not in", Value: []any{"void"}}, want: true},
		{name: "absent field never matches", cond: expr.Condition{Field: "ghost", Op: "=", Value: 1}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(r, expr.Predicate{tt.cond}))
		})
	}

	t.Run("empty predicate matches everything", func(t *testing.T) {
		assert.True(t, Match(r, nil))
	})

	t.Run("conjunction requires all conditions", func(t *testing.T) {
		p := expr.Predicate{
			{Field: "status", Op: "=", Value: "open"},
			{Field: "amount", Op: ">", Value: int64(100)},
		}
		assert.False(t, Match(r, p))
	})
}

func TestRecordSet(t *testing.T) {
	rs := testRecords()

	t.Run("mapped projects in order", func(t *testing.T) {
		values, err := rs.Mapped("amount")
		require.NoError(t, err)
		assert.Equal(t, []any{float64(10), float64(20), float64(30)}, values)
	})

	t.Run("mapped fails on absent field", func(t *testing.T) {
		_, err := rs.Mapped("ghost")
		require.Error(t, err)
	})

	t.Run("filtered narrows the set", func(t *testing.T) {
		open := rs.Filtered("status", "=", "open")
		assert.Equal(t, 2, open.Len())
	})

	t.Run("where does not mutate the receiver", func(t *testing.T) {
		kept := rs.Where(func(r Record) bool { return r["status"] == "paid" })
		assert.Len(t, kept, 1)
		assert.Len(t, rs, 3)
	})

	t.Run("distinct counts unique values", func(t *testing.T) {
		rs := RecordSet{
			{"participant_id": int64(100)},
			{"participant_id": int64(101)},
			{"participant_id": int64(100)},
			{"participant_id": int64(102)},
			{"participant_id": int64(101)},
		}
		assert.Equal(t, 3, rs.Distinct("participant_id"))
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		reg := NewRegistry()
		acc := NewMemoryAccessor([]string{"id"}, nil)
		reg.Register("invoice", acc)

		assert.True(t, reg.Exists("invoice"))
		assert.False(t, reg.Exists("ghost"))

		got, ok := reg.Get("invoice")
		require.True(t, ok)
		assert.Same(t, acc, got.(*MemoryAccessor))

		assert.Equal(t, []string{"invoice"}, reg.Names())
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("invoice", NewMemoryAccessor([]string{"id"}, nil))
		assert.Panics(t, func() {
			reg.Register("invoice", NewMemoryAccessor([]string{"id"}, nil))
		})
	})

	t.Run("nil accessor panics", func(t *testing.T) {
		assert.Panics(t, func() { NewRegistry().Register("invoice", nil) })
	})

	t.Run("empty name panics", func(t *testing.T) {
		assert.Panics(t, func() { NewRegistry().Register("", NewMemoryAccessor([]string{"id"}, nil)) })
	})
}

func TestMemoryAccessor(t *testing.T) {
	acc := NewMemoryAccessor([]string{"id", "amount", "status"}, testRecords())
	ctx := context.Background()

	t.Run("count with predicate", func(t *testing.T) {
		n, err := acc.Count(ctx, expr.Predicate{{Field: "status", Op: "=", Value: "open"}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("count without predicate", func(t *testing.T) {
		n, err := acc.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("fetch with predicate", func(t *testing.T) {
		rs, err := acc.Fetch(ctx, expr.Predicate{{Field: "amount", Op: ">=", Value: int64(20)}})
		require.NoError(t, err)
		assert.Len(t, rs, 2)
	})

	t.Run("field names are declared not inferred", func(t *testing.T) {
		fields := acc.FieldNames()
		assert.Contains(t, fields, "amount")
		assert.NotContains(t, fields, "ghost")
	})
}
