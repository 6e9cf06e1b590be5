// Package expr implements the restricted expression language used by dashboard
// cards: tuple-literal filter lists and small arithmetic formulas.
//
// The grammar is closed. Only literals, a fixed table of caller-supplied names,
// and a fixed set of functions are accepted; anything else is rejected at parse
// time. Evaluation is strictly read-only. This is a deliberate alternative to
// delegating card expressions to a general-purpose interpreter.
package expr

import "fmt"

// Condition is a single filter clause: field, comparison operator, value.
type Condition struct {
	Field string
	Op    string
	Value any
}

// Predicate is an AND-composed list of conditions. An empty predicate
// matches every record.
type Predicate []Condition

// And returns a new predicate with the condition appended.
func (p Predicate) And(c Condition) Predicate {
	out := make(Predicate, 0, len(p)+1)
	out = append(out, p...)
	return append(out, c)
}

// NameTable holds the variables a card expression may reference.
// The caller supplies it; the evaluator never reaches outside of it.
// Conventional entries: "today", "now", "uid", "user".
type NameTable map[string]any

// RecordSource is the view of a record set that formulas may operate on.
// It is implemented by entity.RecordSet; expr itself stays collection-agnostic.
type RecordSource interface {
	// Len reports the number of records.
	Len() int
	// Mapped projects a field across all records. It fails if the field is
	// absent from any record.
	Mapped(field string) ([]any, error)
	// Filtered narrows the set to records whose field matches value under op.
	Filtered(field, op string, value any) RecordSource
}

// allowedOps is the closed set of comparison operators accepted in filter
// tuples and filtered() calls.
var allowedOps = map[string]struct{}{
	"=": {}, "!=": {}, ">": {}, ">=": {}, "<": {}, "<=": {},
	"in": {}, "not in": {},
}

// OpAllowed reports whether op is part of the restricted operator set.
func OpAllowed(op string) bool {
	_, ok := allowedOps[op]
	return ok
}

// Error reports a parse or evaluation failure within the restricted grammar.
// Callers render it as a short display tag; the full message is kept for logs.
type Error struct {
	msg string
}

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.msg
}
