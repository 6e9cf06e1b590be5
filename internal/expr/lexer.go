package expr

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
)

type token struct {
	kind tokenKind
	text string
	// num holds the parsed value for tokNumber: int64 or float64.
	num any
	pos int
}

// lex tokenizes the whole input up front. The inputs are short (persisted
// card expressions), so a single pass with a token slice keeps the parsers
// simple and allows unlimited lookahead.
func lex(input string) ([]token, *Error) {
	var toks []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: i})
			i++
		case c == '-':
			toks = append(toks, token{kind: tokMinus, text: "-", pos: i})
			i++
		case c == '*':
			toks = append(toks, token{kind: tokStar, text: "*", pos: i})
			i++
		case c == '/':
			toks = append(toks, token{kind: tokSlash, text: "/", pos: i})
			i++

		case c == '\'' || c == '"':
			s, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next

		case c >= '0' && c <= '9':
			t, next, err := lexNumber(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, t)
			i = next

		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(input[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: input[start:i], pos: start})

		default:
			return nil, errorf("unexpected character %q at position %d", string(c), i)
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

// lexString reads a quoted string literal starting at input[start].
// Backslash escapes the next character.
func lexString(input string, start int) (string, int, *Error) {
	quote := input[start]
	var sb strings.Builder
	i := start + 1

	for i < len(input) {
		c := input[i]
		switch c {
		case '\\':
			if i+1 >= len(input) {
				return "", 0, errorf("unterminated escape at position %d", i)
			}
			sb.WriteByte(input[i+1])
			i += 2
		case quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(c)
			i++
		}
	}

	return "", 0, errorf("unterminated string starting at position %d", start)
}

// lexNumber reads an integer or decimal literal.
func lexNumber(input string, start int) (token, int, *Error) {
	i := start
	sawDot := false

	for i < len(input) {
		c := input[i]
		if c >= '0' && c <= '9' {
			i++
			continue
		}
		if c == '.' && !sawDot {
			sawDot = true
			i++
			continue
		}
		break
	}

	text := input[start:i]
	if sawDot {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, 0, errorf("invalid number %q", text)
		}
		return token{kind: tokNumber, text: text, num: f, pos: start}, i, nil
	}

	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, 0, errorf("invalid number %q", text)
	}
	return token{kind: tokNumber, text: text, num: v, pos: start}, i, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
