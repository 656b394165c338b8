package plan

import (
	"fmt"
	"strings"

	"hdql/internal/ast"
)

// Operation costs. Similarity is the most expensive primitive, then
// optimize.
const (
	costLookup          = 1.0
	costWildcardPerItem = 0.5
	costBind            = 1.0
	costLogicalPerInput = 0.2
	costFilter          = 0.3
	costSimilarity      = 2.0
	costOptimize        = 3.0
	costConstraint      = 0.5
	costCollect         = 0.1
)

// DefaultCardinality is the assumed size of a wildcard match when no
// estimator is configured.
const DefaultCardinality = 4

const (
	HintExactLookup    = "hash index recommended for exact lookup"
	HintWildcardLookup = "hash index recommended for exact lookup; linear scan hint for wildcard"
	HintSimilarity     = "approximate nearest-neighbor index (e.g. HNSW) recommended for similarity search"
)

func optimizeHint(obj ast.Objective, attr string) string {
	return fmt.Sprintf("sorted attribute index recommended for %s on %s", obj, attr)
}

// CardinalityEstimator predicts how many entities a prefix lookup returns.
// store.Memory implements it.
type CardinalityEstimator interface {
	EstimateCardinality(entityType, prefix string) int
}

// CompilationError reports a tree that cannot be planned.
type CompilationError struct {
	Offset int
	Node   string
	Msg    string
}

func (e *CompilationError) Error() string {
	if e.Node == "" {
		return "compile error: " + e.Msg
	}
	return fmt.Sprintf("compile error at offset %d in %s: %s", e.Offset, e.Node, e.Msg)
}

type options struct {
	estimator CardinalityEstimator
	types     map[string]bool
}

// Option configures Compile.
type Option func(*options)

// WithCardinality sizes wildcard lookups from est.
func WithCardinality(est CardinalityEstimator) Option {
	return func(o *options) { o.estimator = est }
}

// WithEntityTypes restricts lookups to the given type tags. Without it any
// non-empty tag compiles.
func WithEntityTypes(types ...string) Option {
	return func(o *options) {
		o.types = make(map[string]bool, len(types))
		for _, t := range types {
			o.types[t] = true
		}
	}
}

// Compile turns a syntax tree into a plan whose final step returns at most
// topK results.
func Compile(node ast.Node, topK int, opts ...Option) (*Plan, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if topK <= 0 {
		return nil, &CompilationError{Msg: fmt.Sprintf("top_k must be positive, got %d", topK)}
	}
	if node == nil {
		return nil, &CompilationError{Msg: "empty query"}
	}

	c := &compiler{opts: o, seenHints: make(map[string]bool)}
	root, err := c.compile(node, true)
	if err != nil {
		return nil, err
	}
	c.emit(Operation{Type: OpCollect, Inputs: []int{root}, Params: CollectParams{TopK: topK}, Cost: costCollect})

	p := &Plan{Operations: c.ops, IndexHints: c.hints, Query: node.String()}
	for _, op := range c.ops {
		p.EstimatedCost += op.Cost
	}
	return p, nil
}

type compiler struct {
	opts      options
	ops       []Operation
	hints     []string
	seenHints map[string]bool
}

func (c *compiler) emit(op Operation) int {
	c.ops = append(c.ops, op)
	return len(c.ops) - 1
}

func (c *compiler) hint(h string) {
	if !c.seenHints[h] {
		c.seenHints[h] = true
		c.hints = append(c.hints, h)
	}
}

func fail(n ast.Node, format string, args ...any) *CompilationError {
	return &CompilationError{Offset: n.Pos(), Node: n.String(), Msg: fmt.Sprintf(format, args...)}
}

// compile appends the operations for n and returns the index of the one
// producing its result.
func (c *compiler) compile(n ast.Node, top bool) (int, error) {
	switch n := n.(type) {
	case *ast.Atomic:
		return c.compileAtomic(n)

	case *ast.Relation:
		if n.Left == nil || n.Right == nil {
			return 0, fail(n, "relation needs two operands")
		}
		l, err := c.compile(n.Left, false)
		if err != nil {
			return 0, err
		}
		r, err := c.compile(n.Right, false)
		if err != nil {
			return 0, err
		}
		return c.emit(Operation{Type: OpBindRelation, Inputs: []int{l, r}, Params: BindParams{}, Cost: costBind}), nil

	case *ast.Logical:
		switch n.Op {
		case ast.Not:
			if len(n.Operands) != 1 {
				return 0, fail(n, "NOT takes exactly one operand, got %d", len(n.Operands))
			}
		case ast.And, ast.Or:
			if len(n.Operands) < 2 {
				return 0, fail(n, "%s needs at least two operands, got %d", n.Op, len(n.Operands))
			}
		default:
			return 0, fail(n, "unknown logical operator %q", n.Op)
		}
		inputs := make([]int, 0, len(n.Operands))
		for _, operand := range n.Operands {
			if operand == nil {
				return 0, fail(n, "nil operand")
			}
			idx, err := c.compile(operand, false)
			if err != nil {
				return 0, err
			}
			inputs = append(inputs, idx)
		}
		return c.emit(Operation{
			Type:   OpLogical,
			Inputs: inputs,
			Params: LogicalParams{Operator: n.Op},
			Cost:   costLogicalPerInput * float64(len(n.Operands)),
		}), nil

	case *ast.Comparison:
		if n.Target == nil {
			return 0, fail(n, "comparison needs a target such as feature(\"*\").%s outside subject_to", n.Attribute)
		}
		if err := checkComparison(n); err != nil {
			return 0, err
		}
		t, err := c.compile(n.Target, false)
		if err != nil {
			return 0, err
		}
		return c.emit(Operation{
			Type:   OpFilter,
			Inputs: []int{t},
			Params: FilterParams{Attribute: n.Attribute, Operator: n.Op, Value: n.Value},
			Cost:   costFilter,
		}), nil

	case *ast.Similarity:
		if n.Target == nil {
			return 0, fail(n, "similar_to needs a target")
		}
		if n.Distance < 0 || n.Distance > 2 {
			return 0, fail(n, "distance must be between 0 and 2, got %g", n.Distance)
		}
		if n.TopK < 0 {
			return 0, fail(n, "top_k must not be negative")
		}
		t, err := c.compile(n.Target, false)
		if err != nil {
			return 0, err
		}
		c.hint(HintSimilarity)
		return c.emit(Operation{
			Type:   OpSimilarity,
			Inputs: []int{t},
			Params: SimilarityParams{Threshold: n.Distance, TopK: n.TopK},
			Cost:   costSimilarity,
		}), nil

	case *ast.Optimize:
		return c.compileOptimize(n, top)

	case nil:
		return 0, &CompilationError{Msg: "nil node"}
	}
	return 0, &CompilationError{Msg: fmt.Sprintf("unsupported node %T", n)}
}

func (c *compiler) compileAtomic(n *ast.Atomic) (int, error) {
	if n.Kind == "" {
		return 0, fail(n, "missing entity type")
	}
	if c.opts.types != nil && !c.opts.types[n.Kind] {
		return 0, fail(n, "unknown entity type %q", n.Kind)
	}
	if n.Identifier == "" {
		return 0, fail(n, "empty identifier")
	}
	if strings.Contains(n.Prefix(), ast.Wildcard) {
		return 0, fail(n, "wildcard is only allowed once, at the end of an identifier")
	}

	cost := costLookup
	if n.IsWildcard() {
		card := DefaultCardinality
		if c.opts.estimator != nil {
			card = c.opts.estimator.EstimateCardinality(n.Kind, n.Prefix())
		}
		cost += costWildcardPerItem * float64(card)
		c.hint(HintWildcardLookup)
	} else {
		c.hint(HintExactLookup)
	}
	return c.emit(Operation{
		Type:   OpLookup,
		Params: LookupParams{EntityType: n.Kind, Identifier: n.Identifier},
		Cost:   cost,
	}), nil
}

func (c *compiler) compileOptimize(n *ast.Optimize, top bool) (int, error) {
	if !top {
		return 0, fail(n, "%s must be the outermost expression", n.Objective)
	}
	if n.Objective != ast.Maximize && n.Objective != ast.Minimize {
		return 0, fail(n, "unknown objective %q", n.Objective)
	}
	if n.Attribute == "" {
		return 0, fail(n, "missing objective attribute")
	}
	constraints := make([]Constraint, 0, len(n.Constraints))
	for _, cmp := range n.Constraints {
		if cmp == nil {
			return 0, fail(n, "nil constraint")
		}
		if cmp.Target != nil {
			return 0, fail(cmp, "constraints compare a bare attribute, e.g. effort <= 100")
		}
		if err := checkComparison(cmp); err != nil {
			return 0, err
		}
		constraints = append(constraints, Constraint{Attribute: cmp.Attribute, Operator: cmp.Op, Value: cmp.Value})
	}
	c.hint(optimizeHint(n.Objective, n.Attribute))
	return c.emit(Operation{
		Type:   OpOptimize,
		Params: OptimizeParams{Objective: n.Objective, Attribute: n.Attribute, Constraints: constraints},
		Cost:   costOptimize + costConstraint*float64(len(constraints)),
	}), nil
}

func checkComparison(n *ast.Comparison) error {
	if n.Attribute == "" {
		return fail(n, "missing attribute")
	}
	if !n.Op.Valid() {
		return fail(n, "unknown comparison operator %q", n.Op)
	}
	return nil
}
