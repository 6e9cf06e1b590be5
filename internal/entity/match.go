package entity

import (
	"time"

	"github.com/inclue/pulse/internal/expr"
)

// Match reports whether the record satisfies every condition of the predicate.
// An empty predicate matches everything.
func Match(r Record, p expr.Predicate) bool {
	for _, c := range p {
		if !matchCondition(r, c) {
			return false
		}
	}
	return true
}

func matchCondition(r Record, c expr.Condition) bool {
	v, ok := r[c.Field]
	if !ok {
		return false
	}

	switch c.Op {
	case "=":
		return equal(v, c.Value)
	case "!=":
		return !equal(v, c.Value)
	case ">", ">=", "<", "<=":
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		}
	case "in":
		return contains(c.Value, v)
	case "not in":
		return !contains(c.Value, v)
	}
	return false
}

// equal compares loosely across the value types records carry:
// numerics compare by value (int 3 equals float 3.0), the rest by identity.
func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case nil:
		return b == nil
	}
	return a == b
}

// compare returns -1/0/1 for ordered types (numbers, strings, times).
// The second return is false when the operands are not comparable.
func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}

	return 0, false
}

func contains(list any, v any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if equal(v, item) {
			return true
		}
	}
	return false
}

// toFloat mirrors the numeric coercion rules of the expression evaluator so
// filters and formulas agree on what "equal" means.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int:
		return float64(n), true
	case bool:
		// Booleans participate in equality ("completed", "=", true) but are
		// excluded from ordering by callers.
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
