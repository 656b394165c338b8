// Package parser turns HDQL query text into an ast.Node.
//
// Precedence from loosest to tightest: maximize/minimize, OR, AND, NOT,
// comparison, similar_to, ->, and entity atoms. Parentheses group.
package parser

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"hdql/internal/ast"
)

// DefaultEntityTypes are the type tags every parser accepts.
var DefaultEntityTypes = []string{"command", "feature", "constraint", "job", "outcome"}

// DefaultDistance is the similar_to threshold when distance= is omitted.
const DefaultDistance = 0.3

const maxDistance = 2.0

var reserved = map[string]bool{
	"similar_to": true,
	"maximize":   true,
	"minimize":   true,
	"subject_to": true,
}

// Parser holds the set of entity type tags a query may use. It is safe for
// concurrent use.
type Parser struct {
	types map[string]bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithEntityTypes adds type tags on top of DefaultEntityTypes.
func WithEntityTypes(types ...string) Option {
	return func(p *Parser) {
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				p.types[t] = true
			}
		}
	}
}

// New returns a parser accepting DefaultEntityTypes plus any added by opts.
func New(opts ...Option) *Parser {
	p := &Parser{types: make(map[string]bool)}
	for _, t := range DefaultEntityTypes {
		p.types[t] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse parses query with the default entity types.
func Parse(query string) (ast.Node, error) {
	return defaultParser.Parse(query)
}

// EntityTypes returns the accepted type tags, sorted.
func (p *Parser) EntityTypes() []string {
	out := make([]string, 0, len(p.types))
	for t := range p.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsEntityType reports whether tag is accepted.
func (p *Parser) IsEntityType(tag string) bool { return p.types[tag] }

// Parse parses one complete query. The returned error is a *ParseError.
func (p *Parser) Parse(query string) (ast.Node, error) {
	toks, err := lex(query)
	if err != nil {
		return nil, err
	}
	st := &state{query: query, toks: toks, types: p.types}
	if st.peek().kind == tokEOF {
		return nil, st.errorf(st.peek(), "empty query")
	}
	n, err := st.parseQuery()
	if err != nil {
		return nil, err
	}
	if t := st.peek(); t.kind != tokEOF {
		return nil, st.errorf(t, "unexpected %s after end of expression", describe(t))
	}
	return n, nil
}

type state struct {
	query string
	toks  []token
	i     int
	types map[string]bool
}

func (s *state) peek() token { return s.toks[s.i] }

func (s *state) peekAt(n int) token {
	if s.i+n < len(s.toks) {
		return s.toks[s.i+n]
	}
	return s.toks[len(s.toks)-1]
}

func (s *state) next() token {
	t := s.toks[s.i]
	if t.kind != tokEOF {
		s.i++
	}
	return t
}

func (s *state) expect(kind tokenKind, context string) (token, error) {
	t := s.peek()
	if t.kind != kind {
		return t, s.errorf(t, "expected %s %s, got %s", kind, context, describe(t))
	}
	return s.next(), nil
}

func (s *state) isKeyword(word string) bool {
	t := s.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (s *state) isIdent(word string) bool {
	t := s.peek()
	return t.kind == tokIdent && t.text == word
}

func (s *state) errorf(t token, format string, args ...any) *ParseError {
	return &ParseError{Query: s.query, Offset: t.pos, Token: t.text, Msg: fmt.Sprintf(format, args...)}
}

func (s *state) parseQuery() (ast.Node, error) {
	if s.isIdent("maximize") || s.isIdent("minimize") {
		return s.parseOptimize()
	}
	return s.parseOr()
}

// parseOptimize: (maximize|minimize) '(' attr ')' [subject_to '(' cmp {',' cmp} ')']
func (s *state) parseOptimize() (ast.Node, error) {
	start := s.next()
	opt := &ast.Optimize{Offset: start.pos, Objective: ast.Objective(start.text)}

	if _, err := s.expect(tokLParen, "after "+start.text); err != nil {
		return nil, err
	}
	attr, err := s.parseAttributeName("objective attribute")
	if err != nil {
		return nil, err
	}
	opt.Attribute = attr
	if _, err := s.expect(tokRParen, "to close "+start.text); err != nil {
		return nil, err
	}

	if !s.isIdent("subject_to") {
		return opt, nil
	}
	s.next()
	if _, err := s.expect(tokLParen, "after subject_to"); err != nil {
		return nil, err
	}
	for {
		t := s.peek()
		n, err := s.parseComparison()
		if err != nil {
			return nil, err
		}
		c, ok := n.(*ast.Comparison)
		if !ok {
			return nil, s.errorf(t, "subject_to expects comparisons like effort <= 100")
		}
		opt.Constraints = append(opt.Constraints, c)
		if s.peek().kind != tokComma {
			break
		}
		s.next()
	}
	if _, err := s.expect(tokRParen, "to close subject_to"); err != nil {
		return nil, err
	}
	return opt, nil
}

func (s *state) parseOr() (ast.Node, error) {
	return s.parseLogical(ast.Or, s.parseAnd)
}

func (s *state) parseAnd() (ast.Node, error) {
	return s.parseLogical(ast.And, s.parseNot)
}

// parseLogical collects a run of operands joined by op into one node.
func (s *state) parseLogical(op ast.LogicalOp, operand func() (ast.Node, error)) (ast.Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	if !s.isKeyword(string(op)) {
		return first, nil
	}
	n := &ast.Logical{Offset: first.Pos(), Op: op, Operands: []ast.Node{first}}
	for s.isKeyword(string(op)) {
		s.next()
		next, err := operand()
		if err != nil {
			return nil, err
		}
		n.Operands = append(n.Operands, next)
	}
	return n, nil
}

func (s *state) parseNot() (ast.Node, error) {
	if !s.isKeyword(string(ast.Not)) {
		return s.parseComparison()
	}
	t := s.next()
	operand, err := s.parseNot()
	if err != nil {
		return nil, err
	}
	return &ast.Logical{Offset: t.pos, Op: ast.Not, Operands: []ast.Node{operand}}, nil
}

// parseComparison handles target.attr OP number, the bare attr OP number
// form, and falls through to a relation when no comparison follows.
func (s *state) parseComparison() (ast.Node, error) {
	if t := s.peek(); t.kind == tokIdent && s.peekAt(1).kind == tokCompare && !s.types[t.text] {
		attr, err := s.parseAttributeName("attribute")
		if err != nil {
			return nil, err
		}
		return s.finishComparison(t.pos, nil, attr)
	}

	target, err := s.parseRelation()
	if err != nil {
		return nil, err
	}
	if s.peek().kind != tokDot {
		return target, nil
	}
	s.next()
	attr, err := s.parseAttributeName("attribute after '.'")
	if err != nil {
		return nil, err
	}
	return s.finishComparison(target.Pos(), target, attr)
}

func (s *state) finishComparison(pos int, target ast.Node, attr string) (ast.Node, error) {
	op, err := s.expect(tokCompare, "after "+attr)
	if err != nil {
		return nil, err
	}
	num, err := s.expect(tokNumber, "after "+op.text)
	if err != nil {
		return nil, err
	}
	return &ast.Comparison{
		Offset:    pos,
		Target:    target,
		Attribute: attr,
		Op:        ast.CompareOp(op.text),
		Value:     num.num,
	}, nil
}

func (s *state) parseAttributeName(context string) (string, error) {
	t := s.peek()
	if t.kind != tokIdent {
		return "", s.errorf(t, "expected %s, got %s", context, describe(t))
	}
	if reserved[t.text] || isLogicalKeyword(t.text) {
		return "", s.errorf(t, "%q is a keyword, not an attribute", t.text)
	}
	s.next()
	return t.text, nil
}

// parseRelation: primary {'->' primary}, left-associative.
func (s *state) parseRelation() (ast.Node, error) {
	left, err := s.parsePrimary()
	if err != nil {
		return nil, err
	}
	for s.peek().kind == tokArrow {
		s.next()
		right, err := s.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &ast.Relation{Offset: left.Pos(), Left: left, Right: right}
	}
	return left, nil
}

func (s *state) parsePrimary() (ast.Node, error) {
	t := s.peek()
	switch t.kind {
	case tokLParen:
		s.next()
		inner, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := s.expect(tokRParen, fmt.Sprintf("to match '(' at offset %d", t.pos)); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		switch {
		case t.text == "similar_to":
			return s.parseSimilarity()
		case t.text == "maximize" || t.text == "minimize":
			return nil, s.errorf(t, "%s must be the outermost expression", t.text)
		case s.types[t.text]:
			return s.parseAtomic()
		case s.peekAt(1).kind == tokLParen:
			return nil, s.errorf(t, "unknown entity type %q", t.text)
		}
		return nil, s.errorf(t, "unexpected identifier %q", t.text)

	case tokEOF:
		return nil, s.errorf(t, "unexpected end of query")
	}
	return nil, s.errorf(t, "unexpected %s", describe(t))
}

// parseAtomic: type '(' string ')'
func (s *state) parseAtomic() (ast.Node, error) {
	kind := s.next()
	if _, err := s.expect(tokLParen, "after "+kind.text); err != nil {
		return nil, err
	}
	id, err := s.expect(tokString, "identifier for "+kind.text)
	if err != nil {
		return nil, err
	}
	if id.str == "" {
		return nil, s.errorf(id, "empty identifier")
	}
	if i := strings.Index(id.str, ast.Wildcard); i >= 0 && i != len(id.str)-1 {
		star := id
		star.pos = id.pos + 1 + i
		star.text = ast.Wildcard
		return nil, s.errorf(star, "wildcard is only allowed once, at the end of an identifier")
	}
	if _, err := s.expect(tokRParen, "to close "+kind.text); err != nil {
		return nil, err
	}
	return &ast.Atomic{Offset: kind.pos, Kind: kind.text, Identifier: id.str}, nil
}

// parseSimilarity: similar_to '(' expr {',' (distance|top_k) '=' number} ')'
func (s *state) parseSimilarity() (ast.Node, error) {
	start := s.next()
	if _, err := s.expect(tokLParen, "after similar_to"); err != nil {
		return nil, err
	}
	target, err := s.parseOr()
	if err != nil {
		return nil, err
	}
	sim := &ast.Similarity{Offset: start.pos, Target: target, Distance: DefaultDistance}

	seen := make(map[string]bool)
	for s.peek().kind == tokComma {
		s.next()
		name, err := s.expect(tokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		if seen[name.text] {
			return nil, s.errorf(name, "duplicate parameter %q", name.text)
		}
		seen[name.text] = true
		if _, err := s.expect(tokAssign, "after "+name.text); err != nil {
			return nil, err
		}
		val, err := s.expect(tokNumber, "value for "+name.text)
		if err != nil {
			return nil, err
		}
		switch name.text {
		case "distance":
			if val.num < 0 || val.num > maxDistance {
				return nil, s.errorf(val, "distance must be between 0 and 2")
			}
			sim.Distance = val.num
		case "top_k":
			if val.num < 1 || val.num != math.Trunc(val.num) {
				return nil, s.errorf(val, "top_k must be a positive integer")
			}
			if val.num > math.MaxInt32 {
				return nil, s.errorf(val, "top_k must be at most %d", math.MaxInt32)
			}
			sim.TopK = int(val.num)
		default:
			return nil, s.errorf(name, "unknown similar_to parameter %q (want distance or top_k)", name.text)
		}
	}
	if _, err := s.expect(tokRParen, "to close similar_to"); err != nil {
		return nil, err
	}
	return sim, nil
}

func isLogicalKeyword(word string) bool {
	return strings.EqualFold(word, string(ast.And)) ||
		strings.EqualFold(word, string(ast.Or)) ||
		strings.EqualFold(word, string(ast.Not))
}

func describe(t token) string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}
