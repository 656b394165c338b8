package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	deps := &Atomic{Kind: "command", Identifier: "deps"}
	cov := &Atomic{Kind: "feature", Identifier: "*"}

	tests := []struct {
		name string
		node Node
		want string
	}{
		{"atomic", deps, `command("deps")`},
		{"relation", &Relation{Left: deps, Right: cov}, `command("deps") -> feature("*")`},
		{"not", &Logical{Op: Not, Operands: []Node{deps}}, `NOT command("deps")`},
		{"nested logical", &Logical{Op: And, Operands: []Node{
			deps,
			&Logical{Op: Or, Operands: []Node{cov, deps}},
		}}, `command("deps") AND (feature("*") OR command("deps"))`},
		{"comparison", &Comparison{Target: cov, Attribute: "coverage", Op: GE, Value: 0.8}, `feature("*").coverage >= 0.8`},
		{"similarity", &Similarity{Target: deps, Distance: 0.2, TopK: 5}, `similar_to(command("deps"), distance=0.2, top_k=5)`},
		{"optimize", &Optimize{Objective: Maximize, Attribute: "outcome_coverage", Constraints: []*Comparison{
			{Attribute: "effort", Op: LE, Value: 100},
		}}, `maximize(outcome_coverage) subject_to(effort <= 100)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.String())
		})
	}
}

func TestAtomicWildcard(t *testing.T) {
	a := &Atomic{Kind: "command", Identifier: "dep*"}
	assert.True(t, a.IsWildcard())
	assert.Equal(t, "dep", a.Prefix())

	b := &Atomic{Kind: "command", Identifier: "deps"}
	assert.False(t, b.IsWildcard())
	assert.Equal(t, "deps", b.Prefix())
}

func TestCompareOpEval(t *testing.T) {
	assert.True(t, GE.Eval(1, 1))
	assert.False(t, GT.Eval(1, 1))
	assert.True(t, LE.Eval(0.5, 1))
	assert.True(t, LT.Eval(0.5, 1))
	assert.True(t, EQ.Eval(2, 2))
	assert.True(t, NE.Eval(2, 3))
	assert.False(t, CompareOp("=~").Valid())
}

func TestWalk(t *testing.T) {
	n := &Logical{Op: And, Operands: []Node{
		&Similarity{Target: &Atomic{Kind: "command", Identifier: "deps"}, Distance: 0.3},
		&Comparison{Target: &Atomic{Kind: "feature", Identifier: "*"}, Attribute: "coverage", Op: GT, Value: 0.5},
	}}
	var kinds []string
	Walk(n, func(n Node) bool {
		switch n.(type) {
		case *Logical:
			kinds = append(kinds, "logical")
		case *Similarity:
			kinds = append(kinds, "similarity")
		case *Comparison:
			kinds = append(kinds, "comparison")
		case *Atomic:
			kinds = append(kinds, "atomic")
		}
		return true
	})
	assert.Equal(t, []string{"logical", "similarity", "atomic", "comparison", "atomic"}, kinds)
}

func TestDump(t *testing.T) {
	n := &Relation{
		Left:  &Atomic{Kind: "command", Identifier: "dep*"},
		Right: &Atomic{Kind: "job", Identifier: "python-dev"},
	}
	want := "Relation\n" +
		"  Atomic kind=command identifier=\"dep*\" prefix=\"dep\"\n" +
		"  Atomic kind=job identifier=\"python-dev\"\n"
	assert.Equal(t, want, Dump(n))
}
