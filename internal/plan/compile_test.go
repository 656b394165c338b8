package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdql/internal/ast"
	"hdql/internal/parser"
)

func compileQuery(t *testing.T, q string, opts ...Option) *Plan {
	t.Helper()
	n, err := parser.Parse(q)
	require.NoError(t, err, q)
	p, err := Compile(n, 10, opts...)
	require.NoError(t, err, q)
	return p
}

func opTypes(p *Plan) []OpType {
	out := make([]OpType, len(p.Operations))
	for i, op := range p.Operations {
		out[i] = op.Type
	}
	return out
}

type fixedCardinality int

func (f fixedCardinality) EstimateCardinality(string, string) int { return int(f) }

func TestCompileShapes(t *testing.T) {
	tests := []struct {
		query string
		ops   []OpType
		cost  float64
	}{
		{`command("deps")`, []OpType{OpLookup, OpCollect}, 1.1},
		{`command("dep*")`, []OpType{OpLookup, OpCollect}, 1.0 + 0.5*4 + 0.1},
		{`command("deps") -> job("dev")`, []OpType{OpLookup, OpLookup, OpBindRelation, OpCollect}, 3.1},
		{`command("a") AND command("b")`, []OpType{OpLookup, OpLookup, OpLogical, OpCollect}, 2.5},
		{`NOT command("a")`, []OpType{OpLookup, OpLogical, OpCollect}, 1.3},
		{`feature("x").coverage > 0.5`, []OpType{OpLookup, OpFilter, OpCollect}, 1.4},
		{`similar_to(command("deps"), distance=0.2)`, []OpType{OpLookup, OpSimilarity, OpCollect}, 3.1},
		{`maximize(outcome_coverage)`, []OpType{OpOptimize, OpCollect}, 3.1},
		{`maximize(outcome_coverage) subject_to(effort <= 100)`, []OpType{OpOptimize, OpCollect}, 3.6},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := compileQuery(t, tt.query)
			assert.Equal(t, tt.ops, opTypes(p))
			assert.InDelta(t, tt.cost, p.EstimatedCost, 1e-9)
			assert.Equal(t, OpCollect, p.Operations[len(p.Operations)-1].Type)
			assert.GreaterOrEqual(t, len(p.Operations), 2)
			assert.Equal(t, len(p.Operations)-2, p.Root())
		})
	}
}

func TestCompileInputs(t *testing.T) {
	p := compileQuery(t, `(command("a") -> job("b")) AND similar_to(feature("c"))`)
	require.Equal(t, []OpType{OpLookup, OpLookup, OpBindRelation, OpLookup, OpSimilarity, OpLogical, OpCollect}, opTypes(p))
	assert.Equal(t, []int{0, 1}, p.Operations[2].Inputs)
	assert.Equal(t, []int{3}, p.Operations[4].Inputs)
	assert.Equal(t, []int{2, 4}, p.Operations[5].Inputs)
	assert.Equal(t, []int{5}, p.Operations[6].Inputs)
	assert.Equal(t, 10, p.TopK())
}

func TestCostMonotonicity(t *testing.T) {
	pairs := [][2]string{
		{`command("deps")`, `command("deps") AND command("cache")`},
		{`command("deps") AND command("cache")`, `command("deps") AND command("cache") AND command("build")`},
		{`command("deps")`, `command("deps") OR command("cache")`},
		{`command("deps")`, `NOT command("deps")`},
		{`command("deps")`, `similar_to(command("deps"))`},
		{`command("deps")`, `command("deps") -> job("dev")`},
		{`feature("*")`, `feature("*").coverage >= 0.8`},
		{`command("deps")`, `maximize(outcome_coverage)`},
		{`maximize(outcome_coverage)`, `maximize(outcome_coverage) subject_to(effort <= 100)`},
		{`maximize(x) subject_to(effort <= 100)`, `maximize(x) subject_to(effort <= 100, risk < 1)`},
		{`command("deps")`, `command("dep*")`},
	}
	for _, pair := range pairs {
		t.Run(pair[1], func(t *testing.T) {
			simple := compileQuery(t, pair[0])
			rich := compileQuery(t, pair[1])
			assert.Greater(t, rich.EstimatedCost, simple.EstimatedCost)
		})
	}
}

func TestOptimizeScenario(t *testing.T) {
	bare := compileQuery(t, `maximize(outcome_coverage)`)
	p := compileQuery(t, `maximize(outcome_coverage) subject_to(effort <= 100)`)

	require.Equal(t, 1, p.Count(OpOptimize))
	op := p.Operations[0]
	params, ok := op.Params.(OptimizeParams)
	require.True(t, ok)
	assert.Equal(t, ast.Maximize, params.Objective)
	assert.Equal(t, "outcome_coverage", params.Attribute)
	require.Len(t, params.Constraints, 1)
	assert.Equal(t, Constraint{Attribute: "effort", Operator: ast.LE, Value: 100}, params.Constraints[0])
	assert.Len(t, op.Params.Map()["constraints"], 1)
	assert.Greater(t, p.EstimatedCost, bare.EstimatedCost)
}

func TestIndexHints(t *testing.T) {
	p := compileQuery(t, `command("deps")`)
	assert.Equal(t, []string{HintExactLookup}, p.IndexHints)

	p = compileQuery(t, `command("dep*")`)
	assert.Equal(t, []string{HintWildcardLookup}, p.IndexHints)

	p = compileQuery(t, `similar_to(command("deps")) OR similar_to(command("init"))`)
	assert.Equal(t, []string{HintExactLookup, HintSimilarity}, p.IndexHints, "hints are de-duplicated")
	assert.Contains(t, p.IndexHints[1], "HNSW")

	p = compileQuery(t, `minimize(effort)`)
	assert.Equal(t, []string{"sorted attribute index recommended for minimize on effort"}, p.IndexHints)
}

func TestWildcardCardinality(t *testing.T) {
	p := compileQuery(t, `command("dep*")`, WithCardinality(fixedCardinality(10)))
	assert.InDelta(t, 1.0+5.0, p.Operations[0].Cost, 1e-9)

	p = compileQuery(t, `command("dep*")`, WithCardinality(fixedCardinality(0)))
	assert.InDelta(t, 1.0, p.Operations[0].Cost, 1e-9)
}

func TestCompileErrors(t *testing.T) {
	deps := &ast.Atomic{Kind: "command", Identifier: "deps"}
	tests := []struct {
		name string
		node ast.Node
	}{
		{"nil", nil},
		{"bare comparison", &ast.Comparison{Attribute: "effort", Op: ast.LE, Value: 100}},
		{"bad operator", &ast.Comparison{Target: deps, Attribute: "x", Op: "=~"}},
		{"empty attribute", &ast.Comparison{Target: deps, Op: ast.GT}},
		{"unknown type", &ast.Atomic{Kind: "persona", Identifier: "dev"}},
		{"empty identifier", &ast.Atomic{Kind: "command"}},
		{"infix wildcard", &ast.Atomic{Kind: "command", Identifier: "d*p*"}},
		{"not arity", &ast.Logical{Op: ast.Not, Operands: []ast.Node{deps, deps}}},
		{"and arity", &ast.Logical{Op: ast.And, Operands: []ast.Node{deps}}},
		{"unknown logical", &ast.Logical{Op: "XOR", Operands: []ast.Node{deps, deps}}},
		{"relation missing side", &ast.Relation{Left: deps}},
		{"similarity distance", &ast.Similarity{Target: deps, Distance: 3}},
		{"similarity target", &ast.Similarity{Distance: 0.3}},
		{"nested optimize", &ast.Logical{Op: ast.And, Operands: []ast.Node{deps, &ast.Optimize{Objective: ast.Maximize, Attribute: "x"}}}},
		{"constraint with target", &ast.Optimize{Objective: ast.Maximize, Attribute: "x", Constraints: []*ast.Comparison{
			{Target: deps, Attribute: "effort", Op: ast.LE, Value: 1},
		}}},
		{"bad objective", &ast.Optimize{Objective: "maximise", Attribute: "x"}},
		{"missing objective attribute", &ast.Optimize{Objective: ast.Minimize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.node, 10, WithEntityTypes(parser.DefaultEntityTypes...))
			require.Error(t, err)
			var ce *CompilationError
			assert.True(t, errors.As(err, &ce), "want *CompilationError, got %T", err)
		})
	}

	_, err := Compile(deps, 0)
	var ce *CompilationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "top_k")
}
