// Package ast defines the syntax tree produced by the HDQL parser.
//
// Node is sealed: only the types in this package implement it, so a type
// switch over the six variants covers every query the parser can produce.
package ast

import (
	"strconv"
	"strings"
)

// Wildcard is the only wildcard character, allowed once at the end of an
// identifier.
const Wildcard = "*"

// Node is an HDQL expression.
type Node interface {
	// Pos is the byte offset of the node's first token in the query.
	Pos() int
	String() string
	node()
}

// LogicalOp is AND, OR or NOT.
type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
	Not LogicalOp = "NOT"
)

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	GE CompareOp = ">="
	LE CompareOp = "<="
	GT CompareOp = ">"
	LT CompareOp = "<"
	EQ CompareOp = "=="
	NE CompareOp = "!="
)

// Eval applies the operator to a and b.
func (op CompareOp) Eval(a, b float64) bool {
	switch op {
	case GE:
		return a >= b
	case LE:
		return a <= b
	case GT:
		return a > b
	case LT:
		return a < b
	case EQ:
		return a == b
	case NE:
		return a != b
	}
	return false
}

// Valid reports whether op is one of the six comparison operators.
func (op CompareOp) Valid() bool {
	switch op {
	case GE, LE, GT, LT, EQ, NE:
		return true
	}
	return false
}

// Objective is the direction of an optimize query.
type Objective string

const (
	Maximize Objective = "maximize"
	Minimize Objective = "minimize"
)

// Atomic selects entities of one type by name, e.g. command("dep*").
type Atomic struct {
	Offset     int
	Kind       string
	Identifier string
}

// IsWildcard reports whether the identifier ends in the wildcard.
func (a *Atomic) IsWildcard() bool { return strings.HasSuffix(a.Identifier, Wildcard) }

// Prefix returns the identifier without its trailing wildcard.
func (a *Atomic) Prefix() string { return strings.TrimSuffix(a.Identifier, Wildcard) }

// Relation is Left -> Right.
type Relation struct {
	Offset      int
	Left, Right Node
}

// Logical combines operands. NOT has exactly one operand, AND and OR at
// least two.
type Logical struct {
	Offset   int
	Op       LogicalOp
	Operands []Node
}

// Comparison is Target.Attribute Op Value. Target is nil for the bare
// form used inside subject_to.
type Comparison struct {
	Offset    int
	Target    Node
	Attribute string
	Op        CompareOp
	Value     float64
}

// Similarity is similar_to(Target, distance=Distance, top_k=TopK).
// TopK of 0 means unlimited.
type Similarity struct {
	Offset   int
	Target   Node
	Distance float64
	TopK     int
}

// Optimize ranks every entity by Attribute.
type Optimize struct {
	Offset      int
	Objective   Objective
	Attribute   string
	Constraints []*Comparison
}

func (*Atomic) node()     {}
func (*Relation) node()   {}
func (*Logical) node()    {}
func (*Comparison) node() {}
func (*Similarity) node() {}
func (*Optimize) node()   {}

func (n *Atomic) Pos() int     { return n.Offset }
func (n *Relation) Pos() int   { return n.Offset }
func (n *Logical) Pos() int    { return n.Offset }
func (n *Comparison) Pos() int { return n.Offset }
func (n *Similarity) Pos() int { return n.Offset }
func (n *Optimize) Pos() int   { return n.Offset }

func (n *Atomic) String() string {
	return n.Kind + "(" + strconv.Quote(n.Identifier) + ")"
}

func (n *Relation) String() string {
	return operand(n.Left) + " -> " + operand(n.Right)
}

func (n *Logical) String() string {
	if n.Op == Not && len(n.Operands) == 1 {
		return "NOT " + operand(n.Operands[0])
	}
	parts := make([]string, len(n.Operands))
	for i, o := range n.Operands {
		parts[i] = operand(o)
	}
	return strings.Join(parts, " "+string(n.Op)+" ")
}

func (n *Comparison) String() string {
	var b strings.Builder
	if n.Target != nil {
		b.WriteString(operand(n.Target))
		b.WriteByte('.')
	}
	b.WriteString(n.Attribute)
	b.WriteString(" " + string(n.Op) + " ")
	b.WriteString(formatNumber(n.Value))
	return b.String()
}

func (n *Similarity) String() string {
	s := "similar_to(" + str(n.Target) + ", distance=" + formatNumber(n.Distance)
	if n.TopK > 0 {
		s += ", top_k=" + strconv.Itoa(n.TopK)
	}
	return s + ")"
}

func (n *Optimize) String() string {
	s := string(n.Objective) + "(" + n.Attribute + ")"
	if len(n.Constraints) > 0 {
		parts := make([]string, len(n.Constraints))
		for i, c := range n.Constraints {
			parts[i] = c.String()
		}
		s += " subject_to(" + strings.Join(parts, ", ") + ")"
	}
	return s
}

// operand renders a child, parenthesized unless it is a primary.
func operand(n Node) string {
	switch n.(type) {
	case *Atomic, *Similarity:
		return n.String()
	case nil:
		return "<nil>"
	}
	return "(" + n.String() + ")"
}

func str(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}

func formatNumber(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Walk calls fn for n and each descendant in depth-first pre-order,
// stopping early when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Relation:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Logical:
		for _, o := range n.Operands {
			Walk(o, fn)
		}
	case *Comparison:
		Walk(n.Target, fn)
	case *Similarity:
		Walk(n.Target, fn)
	case *Optimize:
		for _, c := range n.Constraints {
			Walk(c, fn)
		}
	}
}
