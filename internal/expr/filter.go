package expr

// IsEmptyFilter reports whether the stored filter expression means "no filter".
// Empty strings and the literal "[]" short-circuit without invoking the parser.
func IsEmptyFilter(input string) bool {
	switch input {
	case "", "[]":
		return true
	}
	return false
}

// ParseFilter parses a tuple-literal filter list into a Predicate.
//
// Grammar:
//
//	filter := "[" "]" | "[" tuple ("," tuple)* [","] "]"
//	tuple  := "(" STRING "," STRING "," value ")"
//	value  := literal | name | list
//	list   := "[" [value ("," value)*] "]"
//
// The middle STRING is the comparison operator and must be one of the
// restricted set. Names are resolved against the supplied table at parse
// time; an unknown name is an error, never a lookup elsewhere.
func ParseFilter(input string, names NameTable) (Predicate, error) {
	if IsEmptyFilter(input) {
		return nil, nil
	}

	toks, lerr := lex(input)
	if lerr != nil {
		return nil, lerr
	}

	p := &parser{toks: toks, names: names}
	pred, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, errorf("unexpected trailing input at position %d", p.peek().pos)
	}
	return pred, nil
}

type parser struct {
	toks  []token
	pos   int
	names NameTable
	// src is only set for formula evaluation.
	src RecordSource
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, *Error) {
	t := p.next()
	if t.kind != kind {
		return token{}, errorf("expected %s at position %d, got %q", what, t.pos, t.text)
	}
	return t, nil
}

func (p *parser) parseFilter() (Predicate, *Error) {
	if _, err := p.expect(tokLBracket, "'['"); err != nil {
		return nil, err
	}

	var pred Predicate
	if p.peek().kind == tokRBracket {
		p.next()
		return pred, nil
	}

	for {
		cond, err := p.parseTuple()
		if err != nil {
			return nil, err
		}
		pred = append(pred, cond)

		t := p.next()
		switch t.kind {
		case tokComma:
			// Tolerate a trailing comma before the closing bracket.
			if p.peek().kind == tokRBracket {
				p.next()
				return pred, nil
			}
		case tokRBracket:
			return pred, nil
		default:
			return nil, errorf("expected ',' or ']' at position %d, got %q", t.pos, t.text)
		}
	}
}

func (p *parser) parseTuple() (Condition, *Error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return Condition{}, err
	}

	field, err := p.expect(tokString, "field name string")
	if err != nil {
		return Condition{}, err
	}
	if field.text == "" {
		return Condition{}, errorf("filter field name cannot be empty")
	}

	if _, err := p.expect(tokComma, "','"); err != nil {
		return Condition{}, err
	}

	op, err := p.expect(tokString, "operator string")
	if err != nil {
		return Condition{}, err
	}
	if !OpAllowed(op.text) {
		return Condition{}, errorf("operator %q is not allowed", op.text)
	}

	if _, err := p.expect(tokComma, "','"); err != nil {
		return Condition{}, err
	}

	value, verr := p.parseValue()
	if verr != nil {
		return Condition{}, verr
	}

	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return Condition{}, err
	}

	return Condition{Field: field.text, Op: op.text, Value: value}, nil
}

// parseValue handles literals, allow-listed names, and list literals
// (for the "in" / "not in" operators).
func (p *parser) parseValue() (any, *Error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil

	case tokNumber:
		return t.num, nil

	case tokMinus:
		num, err := p.expect(tokNumber, "number")
		if err != nil {
			return nil, err
		}
		switch v := num.num.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, errorf("invalid numeric literal %q", num.text)

	case tokIdent:
		switch t.text {
		case "true", "True":
			return true, nil
		case "false", "False":
			return false, nil
		}
		v, ok := p.names[t.text]
		if !ok {
			return nil, errorf("unknown name %q", t.text)
		}
		return v, nil

	case tokLBracket:
		var items []any
		if p.peek().kind == tokRBracket {
			p.next()
			return items, nil
		}
		for {
			item, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			items = append(items, item)

			sep := p.next()
			if sep.kind == tokRBracket {
				return items, nil
			}
			if sep.kind != tokComma {
				return nil, errorf("expected ',' or ']' at position %d, got %q", sep.pos, sep.text)
			}
		}

	default:
		return nil, errorf("unexpected token %q at position %d", t.text, t.pos)
	}
}
