package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdql/internal/parser"
	"hdql/internal/plan"
	"hdql/internal/result"
	"hdql/internal/store"
)

func attrs(kv ...any) map[string]store.Value {
	m := make(map[string]store.Value)
	for i := 0; i < len(kv); i += 2 {
		v, err := store.ValueOf(kv[i+1])
		if err != nil {
			panic(err)
		}
		m[kv[i].(string)] = v
	}
	return m
}

func fixture(t *testing.T) *store.Memory {
	t.Helper()
	m, err := store.NewMemory(0, []store.Entity{
		{Type: "command", Name: "deps-add", Vector: []float32{1, 0, 0}},
		{Type: "command", Name: "deps-remove", Vector: []float32{0.9, 0.1, 0}},
		{Type: "command", Name: "init", Vector: []float32{0, 1, 0}},
		{Type: "command", Name: "check", Vector: []float32{0, 0.9, 0.1}},
		{Type: "feature", Name: "deploy-x", Vector: []float32{0, 0, 1}, Attributes: attrs("coverage", 0.7, "effort", 40)},
		{Type: "feature", Name: "cache", Vector: []float32{0.7, 0.7, 0}, Attributes: attrs("coverage", 0.9, "effort", 120)},
		{Type: "feature", Name: "lint", Vector: []float32{0.1, 0, 0.9}, Attributes: attrs("coverage", 0.3, "effort", 10)},
		{Type: "job", Name: "dev", Vector: []float32{1, 0.1, 0}},
	})
	require.NoError(t, err)
	return m
}

func run(t *testing.T, st store.Store, q string, topK int, verbose bool) (result.Result, error) {
	t.Helper()
	n, err := parser.Parse(q)
	require.NoError(t, err, q)
	p, err := plan.Compile(n, topK)
	require.NoError(t, err, q)
	return New(st).ExecutePlan(p, verbose)
}

func matchKeys(t *testing.T, r result.Result) []string {
	t.Helper()
	vr, ok := r.(*result.VectorQueryResult)
	require.True(t, ok, "want vector result, got %T", r)
	keys := make([]string, len(vr.Matches))
	for i, m := range vr.Matches {
		keys[i] = m.Entity.Key()
	}
	return keys
}

func TestQueries(t *testing.T) {
	st := fixture(t)
	tests := []struct {
		query string
		want  []string
	}{
		{`command("dep*")`, []string{"command:deps-add", "command:deps-remove"}},
		{`command("init")`, []string{"command:init"}},
		{`job("nothing*")`, []string{}},
		{`command("dep*") AND command("deps-add")`, []string{"command:deps-add"}},
		{`command("init") OR command("dep*")`, []string{"command:deps-add", "command:deps-remove", "command:init"}},
		{`NOT command("*")`, []string{"feature:cache", "feature:deploy-x", "feature:lint", "job:dev"}},
		{`feature("*").coverage >= 0.5`, []string{"feature:cache", "feature:deploy-x"}},
		{`command("*").coverage >= 0.5`, []string{}},
		{`similar_to(command("deps-add"), distance=0.1)`, []string{"command:deps-add", "job:dev", "command:deps-remove"}},
		{`similar_to(command("deps-add"), distance=0.1, top_k=1)`, []string{"command:deps-add"}},
		{`similar_to(feature("none*"))`, []string{}},
		{`command("dep*") -> feature("*")`, []string{"command:deps-remove", "command:deps-add"}},
		{`command("dep*") -> job("none*")`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r, err := run(t, st, tt.query, 10, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, matchKeys(t, r))
		})
	}
}

func TestWildcardScenario(t *testing.T) {
	st := fixture(t)
	r, err := run(t, st, `command("dep*")`, 10, false)
	require.NoError(t, err)
	vr := r.(*result.VectorQueryResult)
	require.Len(t, vr.Matches, 2)
	for _, m := range vr.Matches {
		assert.Equal(t, "command", m.Entity.Type)
		assert.Equal(t, 1.0, m.Score)
	}
}

func TestBindExplanation(t *testing.T) {
	r, err := run(t, fixture(t), `command("deps-add") -> feature("*")`, 10, false)
	require.NoError(t, err)
	vr := r.(*result.VectorQueryResult)
	require.Len(t, vr.Matches, 1)
	assert.Contains(t, vr.Matches[0].Explanation, "feature:cache")
	assert.InDelta(t, 0.7071, vr.Matches[0].Score, 1e-3)
}

func TestEntityNotFound(t *testing.T) {
	_, err := run(t, fixture(t), `command("init") AND command("missing")`, 10, false)
	require.Error(t, err)
	var nf *EntityNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, 1, nf.Index)
	assert.Equal(t, "command", nf.EntityType)
	assert.Equal(t, "missing", nf.Name)
}

func TestSimilarityZeroDistance(t *testing.T) {
	st, err := store.NewMemory(0, []store.Entity{
		{Type: "command", Name: "a", Vector: []float32{1, 1}},
		{Type: "command", Name: "b", Vector: []float32{1, 0}},
		{Type: "command", Name: "c", Vector: []float32{2, 2}},
	})
	require.NoError(t, err)

	r, err := run(t, st, `similar_to(command("a"), distance=0)`, 10, false)
	require.NoError(t, err)
	vr, ok := r.(*result.VectorQueryResult)
	require.True(t, ok)
	assert.Equal(t, []string{"command:a", "command:c"}, matchKeys(t, r))
	for _, m := range vr.Matches {
		assert.Equal(t, 1.0, m.Score, m.Entity.Key())
		assert.Equal(t, 0.0, m.Distance, m.Entity.Key())
	}
}

func TestFilterTypeMismatch(t *testing.T) {
	st, err := store.NewMemory(0, []store.Entity{
		{Type: "feature", Name: "a", Vector: []float32{1}, Attributes: attrs("coverage", "high")},
	})
	require.NoError(t, err)

	_, err = run(t, st, `feature("*").coverage > 0.5`, 10, false)
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.Index)
	assert.Equal(t, plan.OpFilter, ee.Op)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = run(t, st, `maximize(coverage)`, 10, false)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, plan.OpOptimize, ee.Op)
}

func TestOptimize(t *testing.T) {
	st := fixture(t)

	r, err := run(t, st, `maximize(coverage) subject_to(effort <= 100)`, 10, false)
	require.NoError(t, err)
	rr, ok := r.(*result.RecommendationResult)
	require.True(t, ok)
	require.Len(t, rr.Recommendations, 2)
	assert.Equal(t, "feature:deploy-x", rr.Recommendations[0].Entity.Key())
	assert.Equal(t, "feature:lint", rr.Recommendations[1].Entity.Key())
	assert.Equal(t, 0.7, rr.ObjectiveValue)
	assert.Equal(t, 40.0, rr.Recommendations[0].Metrics["effort"])
	assert.Len(t, rr.TradeOffs.ParetoFrontier, 2)
	assert.Contains(t, rr.TradeOffs.Summary, "coverage (max), effort (min)")
	assert.Contains(t, rr.Recommendations[0].Rationale, "meeting effort <= 100")

	r, err = run(t, st, `minimize(effort)`, 2, false)
	require.NoError(t, err)
	rr = r.(*result.RecommendationResult)
	require.Len(t, rr.Recommendations, 2)
	assert.Equal(t, "feature:lint", rr.Recommendations[0].Entity.Key())
	assert.Equal(t, "feature:deploy-x", rr.Recommendations[1].Entity.Key())
	require.Len(t, rr.Alternatives, 1)
	assert.Equal(t, "feature:cache", rr.Alternatives[0].Entity.Key())

	r, err = run(t, st, `maximize(coverage) subject_to(risk < 1)`, 10, false)
	require.NoError(t, err)
	assert.Zero(t, r.Len(), "missing constraint attributes fail closed")
}

func TestTopKTruncates(t *testing.T) {
	r, err := run(t, fixture(t), `command("*")`, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"command:check", "command:deps-add"}, matchKeys(t, r))
}

func TestVerboseTrace(t *testing.T) {
	r, err := run(t, fixture(t), `similar_to(command("dep*"), distance=0.1)`, 10, true)
	require.NoError(t, err)
	vr := r.(*result.VectorQueryResult)
	require.NotNil(t, vr.Trace)
	assert.Len(t, vr.Trace.Steps, 3)
	assert.Equal(t, 2, vr.Trace.Counts["#1 lookup"])
	assert.Equal(t, vr.Len(), vr.Trace.Counts["#3 collect_results"])
	assert.Contains(t, vr.Trace.ExecutionPlan, "Query Execution Plan")

	r, err = run(t, fixture(t), `command("dep*")`, 10, false)
	require.NoError(t, err)
	assert.Nil(t, r.(*result.VectorQueryResult).Trace)
}

func TestDeterministic(t *testing.T) {
	st := fixture(t)
	q := `similar_to(command("dep*") OR feature("cache"), distance=1.5)`
	first, err := run(t, st, q, 10, false)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := run(t, st, q, 10, false)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestInvalidPlans(t *testing.T) {
	ex := New(fixture(t))

	_, err := ex.ExecutePlan(nil, false)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)

	_, err = ex.ExecutePlan(&plan.Plan{Operations: []plan.Operation{
		{Type: plan.OpLookup, Params: plan.LookupParams{EntityType: "command", Identifier: "init"}},
	}}, false)
	require.ErrorAs(t, err, &ee)

	_, err = ex.ExecutePlan(&plan.Plan{Operations: []plan.Operation{
		{Type: plan.OpFilter, Inputs: []int{1}, Params: plan.FilterParams{Attribute: "x", Operator: ">", Value: 1}},
		{Type: plan.OpCollect, Inputs: []int{0}, Params: plan.CollectParams{TopK: 1}},
	}}, false)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 0, ee.Index)
}
