// Package executor runs compiled plans against a vector store snapshot.
package executor

import (
	"fmt"

	"hdql/internal/plan"
	"hdql/internal/result"
	"hdql/internal/store"
)

// Executor evaluates plans. It holds no mutable state and is safe for
// concurrent use as long as the store is not modified.
type Executor struct {
	store store.Store
}

func New(st store.Store) *Executor {
	return &Executor{store: st}
}

// item is one entity in a working set.
type item struct {
	entity      *store.Entity
	score       float64
	explanation string
}

// workingSet is an ordered set of entities, unique by key.
type workingSet []item

func (ws workingSet) index() map[string]int {
	m := make(map[string]int, len(ws))
	for i, it := range ws {
		m[it.entity.Key()] = i
	}
	return m
}

// ExecutePlan runs every operation in order and returns the result built
// by the final collect_results step. With verbose set the result carries a
// reasoning trace.
func (e *Executor) ExecutePlan(p *plan.Plan, verbose bool) (result.Result, error) {
	if p == nil || len(p.Operations) == 0 {
		return nil, &ExecutionError{Err: errEmptyPlan}
	}
	last := p.Operations[len(p.Operations)-1]
	if last.Type != plan.OpCollect {
		return nil, &ExecutionError{Index: len(p.Operations) - 1, Op: last.Type, Err: fmt.Errorf("plan must end with %s", plan.OpCollect)}
	}

	registry := make([]workingSet, len(p.Operations))
	var trace *result.ReasoningTrace
	if verbose {
		trace = &result.ReasoningTrace{Counts: make(map[string]int), ExecutionPlan: p.Explain()}
	}

	for i, op := range p.Operations[:len(p.Operations)-1] {
		inputs, err := gather(registry, i, op)
		if err != nil {
			return nil, err
		}
		out, err := e.run(i, op, inputs)
		if err != nil {
			return nil, err
		}
		registry[i] = out
		if trace != nil {
			trace.Steps = append(trace.Steps, fmt.Sprintf("%s -> %d entities", op, len(out)))
			trace.Counts[fmt.Sprintf("#%d %s", i+1, op.Type)] = len(out)
		}
	}

	i := len(p.Operations) - 1
	inputs, err := gather(registry, i, last)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 {
		return nil, &ExecutionError{Index: i, Op: last.Type, Err: fmt.Errorf("want 1 input, got %d", len(inputs))}
	}
	params, ok := last.Params.(plan.CollectParams)
	if !ok {
		return nil, &ExecutionError{Index: i, Op: last.Type, Err: fmt.Errorf("unexpected parameters %T", last.Params)}
	}

	rootOp := p.Operations[last.Inputs[0]]
	var res result.Result
	if opt, ok := rootOp.Params.(plan.OptimizeParams); ok {
		res = collectRecommendations(p.Query, inputs[0], opt, params.TopK)
	} else {
		res = collectMatches(p.Query, inputs[0], params.TopK)
	}
	if trace != nil {
		trace.Steps = append(trace.Steps, fmt.Sprintf("%s -> %d entities", last, res.Len()))
		trace.Counts[fmt.Sprintf("#%d %s", i+1, last.Type)] = res.Len()
		switch r := res.(type) {
		case *result.VectorQueryResult:
			r.Trace = trace
		case *result.RecommendationResult:
			r.Trace = trace
		}
	}
	return res, nil
}

// gather returns the outputs of op's inputs, which must all precede index i.
func gather(registry []workingSet, i int, op plan.Operation) ([]workingSet, error) {
	out := make([]workingSet, len(op.Inputs))
	for k, in := range op.Inputs {
		if in < 0 || in >= i {
			return nil, &ExecutionError{Index: i, Op: op.Type, Err: fmt.Errorf("input #%d does not precede this operation", in+1)}
		}
		out[k] = registry[in]
	}
	return out, nil
}

func (e *Executor) run(i int, op plan.Operation, inputs []workingSet) (workingSet, error) {
	wrap := func(err error) error { return &ExecutionError{Index: i, Op: op.Type, Err: err} }
	arity := func(n int) error {
		if len(inputs) != n {
			return wrap(fmt.Errorf("want %d inputs, got %d", n, len(inputs)))
		}
		return nil
	}

	switch params := op.Params.(type) {
	case plan.LookupParams:
		if err := arity(0); err != nil {
			return nil, err
		}
		return e.lookup(i, params)

	case plan.BindParams:
		if err := arity(2); err != nil {
			return nil, err
		}
		return bind(inputs[0], inputs[1]), nil

	case plan.LogicalParams:
		out, err := e.logical(params, inputs)
		if err != nil {
			return nil, wrap(err)
		}
		return out, nil

	case plan.FilterParams:
		if err := arity(1); err != nil {
			return nil, err
		}
		out, err := filter(params, inputs[0])
		if err != nil {
			return nil, wrap(err)
		}
		return out, nil

	case plan.SimilarityParams:
		if err := arity(1); err != nil {
			return nil, err
		}
		return e.similarity(params, inputs[0]), nil

	case plan.OptimizeParams:
		if err := arity(0); err != nil {
			return nil, err
		}
		out, err := e.optimize(params)
		if err != nil {
			return nil, wrap(err)
		}
		return out, nil

	case plan.CollectParams:
		return nil, wrap(fmt.Errorf("%s must be the last operation", plan.OpCollect))
	}
	return nil, wrap(fmt.Errorf("unsupported parameters %T", op.Params))
}
