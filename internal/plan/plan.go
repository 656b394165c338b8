// Package plan compiles an HDQL syntax tree into a linear, costed plan of
// primitive operations.
package plan

import (
	"fmt"
	"strings"
)

// Plan is an ordered list of operations. The last operation is always
// collect_results and Operations holds at least two entries.
type Plan struct {
	Operations    []Operation
	EstimatedCost float64
	IndexHints    []string
	// Query is the canonical text of the compiled tree.
	Query string
}

// Root returns the index of the operation whose output collect_results
// consumes.
func (p *Plan) Root() int {
	return p.Operations[len(p.Operations)-1].Inputs[0]
}

// Has reports whether any operation has type t.
func (p *Plan) Has(t OpType) bool {
	for _, op := range p.Operations {
		if op.Type == t {
			return true
		}
	}
	return false
}

// Count returns the number of operations of type t.
func (p *Plan) Count(t OpType) int {
	n := 0
	for _, op := range p.Operations {
		if op.Type == t {
			n++
		}
	}
	return n
}

// TopK is the result limit applied by collect_results.
func (p *Plan) TopK() int {
	if c, ok := p.Operations[len(p.Operations)-1].Params.(CollectParams); ok {
		return c.TopK
	}
	return 0
}

// Explain renders the plan for humans. The output is not re-parseable.
func (p *Plan) Explain() string {
	lines := []string{
		"Query Execution Plan",
		strings.Repeat("=", 80),
		"",
	}
	if p.Query != "" {
		lines = append(lines, "Query: "+p.Query)
	}
	lines = append(lines,
		fmt.Sprintf("Estimated Cost: %.2f", p.EstimatedCost),
		fmt.Sprintf("Operations: %d", len(p.Operations)),
		"",
		"Execution Steps:",
	)
	for i, op := range p.Operations {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, op))
	}
	if len(p.IndexHints) > 0 {
		lines = append(lines, "", "Index Hints:")
		for _, h := range p.IndexHints {
			lines = append(lines, "  - "+h)
		}
	}
	return strings.Join(lines, "\n")
}

// Map renders the plan as a JSON-friendly mapping.
func (p *Plan) Map() map[string]any {
	ops := make([]map[string]any, len(p.Operations))
	for i, op := range p.Operations {
		ops[i] = op.Map()
	}
	hints := p.IndexHints
	if hints == nil {
		hints = []string{}
	}
	return map[string]any{
		"query":          p.Query,
		"operations":     ops,
		"estimated_cost": p.EstimatedCost,
		"index_hints":    hints,
	}
}
