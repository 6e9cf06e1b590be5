package expr

import (
	"math"
)

// EvalFormula evaluates an arithmetic formula against a bound record set.
//
// Grammar:
//
//	expr    := term (("+" | "-") term)*
//	term    := unary (("*" | "/") unary)*
//	unary   := "-" unary | primary
//	primary := NUMBER | STRING | name | call | "(" expr ")"
//	call    := FUNC "(" [expr ("," expr)*] ")"
//
// The function set is fixed: len, sum, min, max, round, mapped, filtered.
// "records" resolves to the bound record set; other names come from the
// caller-supplied table. The record set is never mutated.
func EvalFormula(input string, src RecordSource, names NameTable) (any, error) {
	if input == "" {
		return nil, errorf("empty formula")
	}

	toks, lerr := lex(input)
	if lerr != nil {
		return nil, lerr
	}

	p := &parser{toks: toks, names: names, src: src}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, errorf("unexpected trailing input at position %d", p.peek().pos)
	}
	return v, nil
}

// The formula parser evaluates as it parses. Card formulas are a handful of
// tokens long, so there is nothing to gain from a separate AST.

func (p *parser) parseExpr() (any, *Error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().kind {
		case tokPlus:
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left, err = arith(left, right, "+")
			if err != nil {
				return nil, err
			}
		case tokMinus:
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left, err = arith(left, right, "-")
			if err != nil {
				return nil, err
			}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (any, *Error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().kind {
		case tokStar:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left, err = arith(left, right, "*")
			if err != nil {
				return nil, err
			}
		case tokSlash:
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left, err = arith(left, right, "/")
			if err != nil {
				return nil, err
			}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (any, *Error) {
	if p.peek().kind == tokMinus {
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, errorf("cannot negate non-numeric value")
		}
		return -f, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (any, *Error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return t.num, nil

	case tokString:
		return t.text, nil

	case tokLParen:
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return v, nil

	case tokIdent:
		// Function call?
		if p.peek().kind == tokLParen {
			return p.parseCall(t.text)
		}

		switch t.text {
		case "true", "True":
			return true, nil
		case "false", "False":
			return false, nil
		case "records":
			if p.src == nil {
				return nil, errorf("no record set bound for %q", t.text)
			}
			return p.src, nil
		}

		v, ok := p.names[t.text]
		if !ok {
			return nil, errorf("unknown name %q", t.text)
		}
		return v, nil

	default:
		return nil, errorf("unexpected token %q at position %d", t.text, t.pos)
	}
}

func (p *parser) parseCall(fn string) (any, *Error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}

	var args []any
	if p.peek().kind == tokRParen {
		p.next()
	} else {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			sep := p.next()
			if sep.kind == tokRParen {
				break
			}
			if sep.kind != tokComma {
				return nil, errorf("expected ',' or ')' in call to %q at position %d", fn, sep.pos)
			}
		}
	}

	return p.callBuiltin(fn, args)
}

// callBuiltin dispatches on the fixed function set. Anything else is rejected.
func (p *parser) callBuiltin(fn string, args []any) (any, *Error) {
	switch fn {
	case "len":
		if len(args) != 1 {
			return nil, errorf("len takes exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case RecordSource:
			return int64(v.Len()), nil
		case []any:
			return int64(len(v)), nil
		case string:
			return int64(len(v)), nil
		}
		return nil, errorf("len: unsupported argument type %T", args[0])

	case "sum":
		list, err := argList("sum", args)
		if err != nil {
			return nil, err
		}
		total := 0.0
		for _, item := range list {
			f, ok := toFloat(item)
			if !ok {
				return nil, errorf("sum: non-numeric value %v", item)
			}
			total += f
		}
		return total, nil

	case "min", "max":
		list, err := argList(fn, args)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errorf("%s: empty sequence", fn)
		}
		best, ok := toFloat(list[0])
		if !ok {
			return nil, errorf("%s: non-numeric value %v", fn, list[0])
		}
		for _, item := range list[1:] {
			f, ok := toFloat(item)
			if !ok {
				return nil, errorf("%s: non-numeric value %v", fn, item)
			}
			if (fn == "min" && f < best) || (fn == "max" && f > best) {
				best = f
			}
		}
		return best, nil

	case "round":
		if len(args) < 1 || len(args) > 2 {
			return nil, errorf("round takes 1 or 2 arguments, got %d", len(args))
		}
		f, ok := toFloat(args[0])
		if !ok {
			return nil, errorf("round: non-numeric value %v", args[0])
		}
		digits := 0.0
		if len(args) == 2 {
			d, ok := toFloat(args[1])
			if !ok {
				return nil, errorf("round: non-numeric digit count %v", args[1])
			}
			digits = d
		}
		return Round(f, int(digits)), nil

	case "mapped":
		// Accepts mapped(records, field) or mapped(field) against the
		// bound set.
		src, rest, err := p.sourceArg("mapped", args)
		if err != nil {
			return nil, err
		}
		if len(rest) != 1 {
			return nil, errorf("mapped takes a field name, got %d arguments", len(rest))
		}
		field, ok := rest[0].(string)
		if !ok {
			return nil, errorf("mapped: field name must be a string")
		}
		values, merr := src.Mapped(field)
		if merr != nil {
			return nil, errorf("mapped: %v", merr)
		}
		return values, nil

	case "filtered":
		src, rest, err := p.sourceArg("filtered", args)
		if err != nil {
			return nil, err
		}
		if len(rest) != 3 {
			return nil, errorf("filtered takes (field, op, value), got %d arguments", len(rest))
		}
		field, ok := rest[0].(string)
		if !ok {
			return nil, errorf("filtered: field name must be a string")
		}
		op, ok := rest[1].(string)
		if !ok {
			return nil, errorf("filtered: operator must be a string")
		}
		if !OpAllowed(op) {
			return nil, errorf("filtered: operator %q is not allowed", op)
		}
		return src.Filtered(field, op, rest[2]), nil

	default:
		return nil, errorf("unknown function %q", fn)
	}
}

// sourceArg resolves the record set a collection builtin operates on: an
// explicit leading argument wins, otherwise the bound set is used.
func (p *parser) sourceArg(fn string, args []any) (RecordSource, []any, *Error) {
	if len(args) > 0 {
		if src, ok := args[0].(RecordSource); ok {
			return src, args[1:], nil
		}
	}
	if p.src == nil {
		return nil, nil, errorf("%s: no record set bound", fn)
	}
	return p.src, args, nil
}

// argList normalizes a single list-like argument for the aggregate builtins.
func argList(fn string, args []any) ([]any, *Error) {
	if len(args) != 1 {
		return nil, errorf("%s takes exactly 1 argument, got %d", fn, len(args))
	}
	switch v := args[0].(type) {
	case []any:
		return v, nil
	case RecordSource:
		return nil, errorf("%s: project a field first with mapped(...)", fn)
	}
	return nil, errorf("%s: unsupported argument type %T", fn, args[0])
}

func arith(left, right any, op string) (any, *Error) {
	l, lok := toFloat(left)
	r, rok := toFloat(right)
	if !lok || !rok {
		return nil, errorf("operator %q requires numeric operands", op)
	}

	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, errorf("division by zero")
		}
		return l / r, nil
	}
	return nil, errorf("unsupported operator %q", op)
}

// toFloat coerces the numeric types the evaluator produces into float64.
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
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Round rounds half away from zero to the given number of decimal digits.
func Round(f float64, digits int) float64 {
	if digits <= 0 {
		return math.Round(f)
	}
	shift := math.Pow(10, float64(digits))
	return math.Round(f*shift) / shift
}
