package plan

import (
	"fmt"
	"strconv"
	"strings"

	"hdql/internal/ast"
)

// OpType names a primitive plan operation.
type OpType string

const (
	OpLookup       OpType = "lookup"
	OpBindRelation OpType = "bind_relation"
	OpLogical      OpType = "logical"
	OpFilter       OpType = "filter"
	OpSimilarity   OpType = "similarity"
	OpOptimize     OpType = "optimize"
	OpCollect      OpType = "collect_results"
)

// Params are the typed parameters of one operation. The concrete type is
// fixed by the operation's OpType.
type Params interface {
	// Map renders the parameters as a JSON-friendly mapping.
	Map() map[string]any
	describe() string
}

type LookupParams struct {
	EntityType string
	Identifier string
}

func (p LookupParams) Wildcard() bool { return strings.HasSuffix(p.Identifier, ast.Wildcard) }
func (p LookupParams) Prefix() string { return strings.TrimSuffix(p.Identifier, ast.Wildcard) }

func (p LookupParams) Map() map[string]any {
	return map[string]any{"entity_type": p.EntityType, "identifier": p.Identifier, "wildcard": p.Wildcard()}
}

func (p LookupParams) describe() string {
	s := p.EntityType + "(" + strconv.Quote(p.Identifier) + ")"
	if p.Wildcard() {
		s += " prefix scan"
	}
	return s
}

// BindParams joins each left entity to its most similar right entity.
type BindParams struct{}

func (BindParams) Map() map[string]any { return map[string]any{"join": "most_similar"} }
func (BindParams) describe() string    { return "most similar partner" }

type LogicalParams struct {
	Operator ast.LogicalOp
}

func (p LogicalParams) Map() map[string]any { return map[string]any{"operator": string(p.Operator)} }
func (p LogicalParams) describe() string    { return string(p.Operator) }

type FilterParams struct {
	Attribute string
	Operator  ast.CompareOp
	Value     float64
}

func (p FilterParams) Map() map[string]any {
	return map[string]any{"attribute": p.Attribute, "operator": string(p.Operator), "value": p.Value}
}

func (p FilterParams) describe() string {
	return fmt.Sprintf("%s %s %g", p.Attribute, p.Operator, p.Value)
}

// SimilarityParams keep candidates within Threshold cosine distance of the
// input set. TopK of 0 keeps every match.
type SimilarityParams struct {
	Threshold float64
	TopK      int
}

func (p SimilarityParams) Map() map[string]any {
	m := map[string]any{"threshold": p.Threshold}
	if p.TopK > 0 {
		m["top_k"] = p.TopK
	}
	return m
}

func (p SimilarityParams) describe() string {
	s := fmt.Sprintf("distance <= %.2f", p.Threshold)
	if p.TopK > 0 {
		s += fmt.Sprintf(", top %d", p.TopK)
	}
	return s
}

// Constraint is a bare attribute comparison an optimize candidate must pass.
type Constraint struct {
	Attribute string
	Operator  ast.CompareOp
	Value     float64
}

func (c Constraint) String() string { return fmt.Sprintf("%s %s %g", c.Attribute, c.Operator, c.Value) }

type OptimizeParams struct {
	Objective   ast.Objective
	Attribute   string
	Constraints []Constraint
}

func (p OptimizeParams) Map() map[string]any {
	cs := make([]map[string]any, len(p.Constraints))
	for i, c := range p.Constraints {
		cs[i] = map[string]any{"attribute": c.Attribute, "operator": string(c.Operator), "value": c.Value}
	}
	return map[string]any{"objective_type": string(p.Objective), "attribute": p.Attribute, "constraints": cs}
}

func (p OptimizeParams) describe() string {
	s := string(p.Objective) + " " + p.Attribute
	if len(p.Constraints) > 0 {
		parts := make([]string, len(p.Constraints))
		for i, c := range p.Constraints {
			parts[i] = c.String()
		}
		s += " subject to " + strings.Join(parts, ", ")
	}
	return s
}

type CollectParams struct {
	TopK int
}

func (p CollectParams) Map() map[string]any { return map[string]any{"top_k": p.TopK} }
func (p CollectParams) describe() string    { return fmt.Sprintf("top %d", p.TopK) }

// Operation is one step of a plan. Inputs are indexes of earlier
// operations whose outputs this one consumes.
type Operation struct {
	Type   OpType
	Inputs []int
	Params Params
	Cost   float64
}

func (op Operation) String() string {
	var b strings.Builder
	b.WriteString(string(op.Type))
	if d := op.Params.describe(); d != "" {
		b.WriteString(" " + d)
	}
	if len(op.Inputs) > 0 {
		refs := make([]string, len(op.Inputs))
		for i, in := range op.Inputs {
			refs[i] = "#" + strconv.Itoa(in+1)
		}
		b.WriteString(" <- " + strings.Join(refs, ", "))
	}
	fmt.Fprintf(&b, " (cost %.2f)", op.Cost)
	return b.String()
}

// Map renders the operation as a JSON-friendly mapping.
func (op Operation) Map() map[string]any {
	inputs := op.Inputs
	if inputs == nil {
		inputs = []int{}
	}
	return map[string]any{
		"op_type":    string(op.Type),
		"inputs":     inputs,
		"parameters": op.Params.Map(),
		"cost":       op.Cost,
	}
}
