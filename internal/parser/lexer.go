package parser

import (
	"fmt"
	"strconv"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokArrow
	tokDot
	tokLParen
	tokRParen
	tokComma
	tokAssign
	tokCompare
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokArrow:
		return "'->'"
	case tokDot:
		return "'.'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokAssign:
		return "'='"
	case tokCompare:
		return "comparison operator"
	}
	return "unknown token"
}

type token struct {
	kind tokenKind
	text string // source text, including quotes for strings
	pos  int
	str  string  // unquoted value of a string
	num  float64 // value of a number
}

// lex splits query into tokens, ending with tokEOF.
func lex(query string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: ".", pos: i})
			i++

		case c == '-' && i+1 < len(query) && query[i+1] == '>':
			toks = append(toks, token{kind: tokArrow, text: "->", pos: i})
			i += 2

		case c == '>' || c == '<' || c == '=' || c == '!':
			if i+1 < len(query) && query[i+1] == '=' {
				toks = append(toks, token{kind: tokCompare, text: query[i : i+2], pos: i})
				i += 2
				continue
			}
			switch c {
			case '>', '<':
				toks = append(toks, token{kind: tokCompare, text: string(c), pos: i})
			case '=':
				toks = append(toks, token{kind: tokAssign, text: "=", pos: i})
			default:
				return nil, &ParseError{Query: query, Offset: i, Token: "!", Msg: "expected '!='"}
			}
			i++

		case c == '"' || c == '\'':
			end := i + 1
			for end < len(query) && query[end] != c {
				end++
			}
			if end == len(query) {
				return nil, &ParseError{Query: query, Offset: i, Token: query[i:], Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: query[i : end+1], pos: i, str: query[i+1 : end]})
			i = end + 1

		case isDigit(c) || (c == '-' && i+1 < len(query) && isDigit(query[i+1])):
			end := scanNumber(query, i)
			f, err := strconv.ParseFloat(query[i:end], 64)
			if err != nil {
				return nil, &ParseError{Query: query, Offset: i, Token: query[i:end], Msg: "invalid number"}
			}
			toks = append(toks, token{kind: tokNumber, text: query[i:end], pos: i, num: f})
			i = end

		case isIdentStart(c):
			end := i + 1
			for end < len(query) && isIdentPart(query[end]) {
				end++
			}
			toks = append(toks, token{kind: tokIdent, text: query[i:end], pos: i})
			i = end

		default:
			return nil, &ParseError{Query: query, Offset: i, Token: string(c), Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(query)}), nil
}

// scanNumber returns the end of the number starting at i:
// -?digits(.digits)?([eE][+-]?digits)?
func scanNumber(s string, i int) int {
	if s[i] == '-' {
		i++
	}
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
