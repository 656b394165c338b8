package executor

import (
	"fmt"
	"sort"
	"strings"

	"hdql/internal/ast"
	"hdql/internal/plan"
	"hdql/internal/result"
	"hdql/internal/store"
	"hdql/internal/vector"
)

func (e *Executor) lookup(i int, p plan.LookupParams) (workingSet, error) {
	if !p.Wildcard() {
		ent, ok := e.store.LookupExact(p.EntityType, p.Identifier)
		if !ok {
			return nil, &EntityNotFoundError{Index: i, EntityType: p.EntityType, Name: p.Identifier}
		}
		return workingSet{{entity: ent, score: 1, explanation: "exact match " + ent.Key()}}, nil
	}
	matches := e.store.LookupPrefix(p.EntityType, p.Prefix())
	out := make(workingSet, len(matches))
	for k, ent := range matches {
		out[k] = item{entity: ent, score: 1, explanation: fmt.Sprintf("%s matches %s(%q)", ent.Key(), p.EntityType, p.Identifier)}
	}
	return out, nil
}

// bind keeps each left entity once, paired with its most similar right
// entity. An entity is never its own partner.
func bind(left, right workingSet) workingSet {
	var out workingSet
	for _, l := range left {
		var (
			best  *store.Entity
			score float64
		)
		for _, r := range right {
			if r.entity.Key() == l.entity.Key() {
				continue
			}
			s := vector.Cosine(l.entity.Vector, r.entity.Vector)
			if best == nil || s > score || (s == score && r.entity.Key() < best.Key()) {
				best, score = r.entity, s
			}
		}
		if best == nil {
			continue
		}
		out = append(out, item{
			entity:      l.entity,
			score:       score,
			explanation: fmt.Sprintf("%s relates to %s (similarity %.3f)", l.entity.Key(), best.Key(), score),
		})
	}
	return out
}

func (e *Executor) logical(p plan.LogicalParams, inputs []workingSet) (workingSet, error) {
	switch p.Operator {
	case ast.And:
		if len(inputs) < 2 {
			return nil, fmt.Errorf("AND needs at least 2 inputs, got %d", len(inputs))
		}
		return intersect(inputs), nil
	case ast.Or:
		if len(inputs) < 2 {
			return nil, fmt.Errorf("OR needs at least 2 inputs, got %d", len(inputs))
		}
		return union(inputs), nil
	case ast.Not:
		if len(inputs) != 1 {
			return nil, fmt.Errorf("NOT needs 1 input, got %d", len(inputs))
		}
		return e.complement(inputs[0]), nil
	}
	return nil, fmt.Errorf("unknown logical operator %q", p.Operator)
}

// intersect keeps entities present in every input, in the order of the
// first, scored by their lowest score.
func intersect(inputs []workingSet) workingSet {
	indexes := make([]map[string]int, len(inputs))
	for k, in := range inputs {
		indexes[k] = in.index()
	}
	var out workingSet
next:
	for _, it := range inputs[0] {
		key := it.entity.Key()
		score := it.score
		for k := 1; k < len(inputs); k++ {
			j, ok := indexes[k][key]
			if !ok {
				continue next
			}
			score = min(score, inputs[k][j].score)
		}
		out = append(out, item{entity: it.entity, score: score, explanation: it.explanation + "; present in all AND operands"})
	}
	return out
}

// union keeps every entity once, in first-seen order, scored by its
// highest score.
func union(inputs []workingSet) workingSet {
	var out workingSet
	pos := make(map[string]int)
	for _, in := range inputs {
		for _, it := range in {
			key := it.entity.Key()
			if j, ok := pos[key]; ok {
				if it.score > out[j].score {
					out[j].score = it.score
					out[j].explanation = it.explanation
				}
				continue
			}
			pos[key] = len(out)
			out = append(out, it)
		}
	}
	return out
}

// complement returns every store entity absent from in, in key order.
func (e *Executor) complement(in workingSet) workingSet {
	excluded := in.index()
	var out workingSet
	for _, ent := range e.store.Entities() {
		if _, ok := excluded[ent.Key()]; ok {
			continue
		}
		out = append(out, item{entity: ent, score: 1, explanation: ent.Key() + " excluded by NOT operand"})
	}
	return out
}

// filter keeps entities whose attribute satisfies the comparison. Entities
// without the attribute are dropped.
func filter(p plan.FilterParams, in workingSet) (workingSet, error) {
	var out workingSet
	for _, it := range in {
		v, ok := it.entity.Attr(p.Attribute)
		if !ok {
			continue
		}
		f, ok := v.Float()
		if !ok {
			return nil, fmt.Errorf("%s.%s is a %s, not a number: %w", it.entity.Key(), p.Attribute, v.Kind, ErrTypeMismatch)
		}
		if !p.Operator.Eval(f, p.Value) {
			continue
		}
		it.explanation = fmt.Sprintf("%s; %s = %g %s %g", it.explanation, p.Attribute, f, p.Operator, p.Value)
		out = append(out, it)
	}
	return out, nil
}

// similarity ranks every store entity against the centroid of in and keeps
// those within the distance threshold.
func (e *Executor) similarity(p plan.SimilarityParams, in workingSet) workingSet {
	if len(in) == 0 {
		return nil
	}
	vecs := make([][]float32, len(in))
	names := make([]string, len(in))
	for k, it := range in {
		vecs[k] = it.entity.Vector
		names[k] = it.entity.Key()
	}
	ref := vector.Centroid(vecs)
	refName := names[0]
	if len(names) > 1 {
		refName = fmt.Sprintf("centroid of %d entities", len(names))
	}

	var out workingSet
	for _, ent := range e.store.Entities() {
		s := vector.Cosine(ref, ent.Vector)
		d := 1 - s
		if d > p.Threshold+vector.Tolerance {
			continue
		}
		out = append(out, item{
			entity:      ent,
			score:       s,
			explanation: fmt.Sprintf("distance %.3f to %s (threshold %.2f)", d, refName, p.Threshold),
		})
	}
	sortItems(out)
	if p.TopK > 0 && len(out) > p.TopK {
		out = out[:p.TopK]
	}
	return out
}

// optimize scores every entity by the objective attribute, dropping those
// without it or failing a constraint.
func (e *Executor) optimize(p plan.OptimizeParams) (workingSet, error) {
	var out workingSet
	for _, ent := range e.store.Entities() {
		v, ok := ent.Attr(p.Attribute)
		if !ok {
			continue
		}
		f, ok := v.Float()
		if !ok {
			return nil, fmt.Errorf("%s.%s is a %s, not a number: %w", ent.Key(), p.Attribute, v.Kind, ErrTypeMismatch)
		}
		if !satisfies(ent, p.Constraints) {
			continue
		}
		out = append(out, item{entity: ent, score: f, explanation: fmt.Sprintf("%s = %g", p.Attribute, f)})
	}

	desc := p.Objective != ast.Minimize
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return (out[i].score > out[j].score) == desc
		}
		return out[i].entity.Key() < out[j].entity.Key()
	})
	return out, nil
}

// satisfies fails closed: a missing or non-numeric constraint attribute
// rejects the entity.
func satisfies(ent *store.Entity, cs []plan.Constraint) bool {
	for _, c := range cs {
		v, ok := ent.Attr(c.Attribute)
		if !ok {
			return false
		}
		f, ok := v.Float()
		if !ok || !c.Operator.Eval(f, c.Value) {
			return false
		}
	}
	return true
}

func sortItems(ws workingSet) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].score != ws[j].score {
			return ws[i].score > ws[j].score
		}
		return ws[i].entity.Key() < ws[j].entity.Key()
	})
}

func collectMatches(query string, in workingSet, topK int) *result.VectorQueryResult {
	matches := make([]result.Match, len(in))
	for k, it := range in {
		matches[k] = result.Match{Entity: it.entity, Score: it.score, Distance: 1 - it.score, Explanation: it.explanation}
	}
	result.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return &result.VectorQueryResult{Query: query, Matches: matches}
}

func collectRecommendations(query string, in workingSet, p plan.OptimizeParams, topK int) *result.RecommendationResult {
	r := &result.RecommendationResult{Query: query, Objective: string(p.Objective), Attribute: p.Attribute}
	top := in
	if len(top) > topK {
		top = in[:topK]
		for _, it := range in[topK:] {
			r.Alternatives = append(r.Alternatives, result.Alternative{
				Entity:    it.entity,
				Score:     it.score,
				TradeOffs: fmt.Sprintf("%s %g, ranked below the top %d", p.Attribute, it.score, topK),
			})
		}
	}

	qualifier := ""
	if len(p.Constraints) > 0 {
		parts := make([]string, len(p.Constraints))
		for k, c := range p.Constraints {
			parts[k] = c.String()
		}
		qualifier = " meeting " + strings.Join(parts, ", ")
	}
	entities := make([]*store.Entity, len(top))
	for k, it := range top {
		entities[k] = it.entity
		r.Recommendations = append(r.Recommendations, result.Recommendation{
			Entity: it.entity,
			Score:  it.score,
			Rationale: fmt.Sprintf("ranked %d of %d candidates%s by %s %s (%g)",
				k+1, len(in), qualifier, p.Objective, p.Attribute, it.score),
			Metrics: numericMetrics(it.entity),
		})
	}
	if len(top) > 0 {
		r.ObjectiveValue = top[0].score
	}
	r.TradeOffs = tradeOffs(entities, p)
	return r
}

func numericMetrics(ent *store.Entity) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range ent.Attributes {
		if f, ok := v.Float(); ok {
			out[k] = f
		}
	}
	return out
}

// tradeOffs compares recommendations on the objective and on every
// inequality constraint attribute.
func tradeOffs(entities []*store.Entity, p plan.OptimizeParams) result.TradeOffAnalysis {
	dims := []result.Dimension{{Attribute: p.Attribute, HigherIsBetter: p.Objective != ast.Minimize}}
	seen := map[string]bool{p.Attribute: true}
	for _, c := range p.Constraints {
		if seen[c.Attribute] {
			continue
		}
		switch c.Operator {
		case ast.LE, ast.LT:
			dims = append(dims, result.Dimension{Attribute: c.Attribute})
		case ast.GE, ast.GT:
			dims = append(dims, result.Dimension{Attribute: c.Attribute, HigherIsBetter: true})
		default:
			continue
		}
		seen[c.Attribute] = true
	}
	frontier, dominated := result.Pareto(entities, dims)

	axes := make([]string, len(dims))
	for k, d := range dims {
		dir := "min"
		if d.HigherIsBetter {
			dir = "max"
		}
		axes[k] = fmt.Sprintf("%s (%s)", d.Attribute, dir)
	}
	return result.TradeOffAnalysis{
		Summary: fmt.Sprintf("%d of %d recommendations are Pareto-optimal on %s",
			len(frontier), len(entities), strings.Join(axes, ", ")),
		ParetoFrontier: frontier,
		Dominated:      dominated,
	}
}
